package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"

	"github.com/wudi/pdfcore/ir/raw"
)

var (
	// ErrUnsupportedFilter is returned when /Filter is not Standard.
	ErrUnsupportedFilter = errors.New("security: unsupported encryption filter")
	// ErrWrongPassword is returned when neither the user nor the owner
	// password authenticates.
	ErrWrongPassword = errors.New("security: wrong password")
	// ErrBadEncryptDict is returned for malformed encryption dictionaries.
	ErrBadEncryptDict = errors.New("security: malformed encryption dictionary")
)

// passPadding is the standard 32-byte password pad (PDF 32000-1, 7.6.3.3).
var passPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// CipherKind selects the symmetric cipher for a crypt filter.
type CipherKind int

const (
	CipherNone CipherKind = iota
	CipherRC4
	CipherAES  // AES-128-CBC with per-object keys (AESV2)
	CipherAES2 // AES-256-CBC with the file key (AESV3)
)

// StandardHandler implements the Standard security handler: password
// authentication and file-key computation for revisions 2 through 6.
type StandardHandler struct {
	version         int
	revision        int
	keyLen          int
	permissions     uint32
	encryptMetadata bool
	fileID          []byte
	oEntry          []byte
	uEntry          []byte
	oe              []byte
	ue              []byte

	stmCipher CipherKind
	strCipher CipherKind

	fileKey       []byte
	authenticated bool
	ownerAuth     bool
}

// NewStandardHandler validates the encryption dictionary structure. The
// fileID is the raw first element of the trailer /ID array (may be nil).
func NewStandardHandler(dict *raw.DictObj, fileID []byte) (*StandardHandler, error) {
	if dict == nil {
		return nil, ErrBadEncryptDict
	}
	if dict.NameFor("Filter") != "Standard" {
		return nil, ErrUnsupportedFilter
	}
	h := &StandardHandler{
		version:         int(dict.IntFor("V")),
		revision:        int(dict.IntFor("R")),
		permissions:     uint32(dict.IntFor("P")),
		encryptMetadata: dict.BoolFor("EncryptMetadata", true),
		fileID:          fileID,
		oEntry:          dict.StringFor("O"),
		uEntry:          dict.StringFor("U"),
		oe:              dict.StringFor("OE"),
		ue:              dict.StringFor("UE"),
	}
	h.keyLen = int(dict.IntFor("Length")) / 8
	if h.keyLen == 0 {
		h.keyLen = 5
	}
	switch h.version {
	case 1:
		h.keyLen = 5
		h.stmCipher, h.strCipher = CipherRC4, CipherRC4
	case 2:
		h.stmCipher, h.strCipher = CipherRC4, CipherRC4
	case 4, 5:
		if err := h.loadCryptFilters(dict); err != nil {
			return nil, err
		}
	default:
		return nil, ErrBadEncryptDict
	}
	switch h.revision {
	case 2, 3, 4:
		if len(h.oEntry) < 32 || len(h.uEntry) < 32 {
			return nil, ErrBadEncryptDict
		}
	case 5, 6:
		if len(h.oEntry) < 48 || len(h.uEntry) < 48 || len(h.oe) < 32 || len(h.ue) < 32 {
			return nil, ErrBadEncryptDict
		}
		h.keyLen = 32
	default:
		return nil, ErrBadEncryptDict
	}
	return h, nil
}

func (h *StandardHandler) loadCryptFilters(dict *raw.DictObj) error {
	cf := dict.DictFor("CF")
	stmf := dict.NameFor("StmF")
	strf := dict.NameFor("StrF")
	if stmf == "" {
		stmf = "Identity"
	}
	if strf == "" {
		strf = "Identity"
	}
	resolve := func(name string) (CipherKind, error) {
		if name == "Identity" {
			return CipherNone, nil
		}
		if cf == nil {
			return CipherNone, ErrBadEncryptDict
		}
		f := cf.DictFor(name)
		if f == nil {
			return CipherNone, ErrBadEncryptDict
		}
		switch f.NameFor("CFM") {
		case "V2":
			return CipherRC4, nil
		case "AESV2":
			return CipherAES, nil
		case "AESV3":
			return CipherAES2, nil
		case "None":
			return CipherNone, nil
		}
		return CipherNone, ErrBadEncryptDict
	}
	var err error
	if h.stmCipher, err = resolve(stmf); err != nil {
		return err
	}
	h.strCipher, err = resolve(strf)
	return err
}

// Authenticate tries the password as the user password, then as the owner
// password. On success the file encryption key is available.
func (h *StandardHandler) Authenticate(password string) error {
	pwd := []byte(password)
	if h.revision >= 5 {
		return h.authenticateV5(pwd)
	}
	if key, ok := h.checkUserPassword(pwd); ok {
		h.fileKey = key
		h.authenticated = true
		return nil
	}
	if key, ok := h.checkOwnerPassword(pwd); ok {
		h.fileKey = key
		h.authenticated = true
		h.ownerAuth = true
		return nil
	}
	return ErrWrongPassword
}

// FileKey returns the file encryption key after authentication.
func (h *StandardHandler) FileKey() []byte { return h.fileKey }

// IsOwner reports whether the owner password authenticated.
func (h *StandardHandler) IsOwner() bool { return h.ownerAuth }

// RawPermissions returns the /P word as stored.
func (h *StandardHandler) RawPermissions() uint32 { return h.permissions }

// IsMetadataEncrypted reports whether the /Metadata stream is encrypted.
func (h *StandardHandler) IsMetadataEncrypted() bool { return h.encryptMetadata }

// StreamCipher returns the cipher applied to stream data.
func (h *StandardHandler) StreamCipher() CipherKind { return h.stmCipher }

// StringCipher returns the cipher applied to string data.
func (h *StandardHandler) StringCipher() CipherKind { return h.strCipher }

// KeyLength returns the file key length in bytes.
func (h *StandardHandler) KeyLength() int { return h.keyLen }

func padPassword(pwd []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, pwd)
	copy(out[n:], passPadding)
	return out
}

// computeFileKey implements Algorithm 2.
func (h *StandardHandler) computeFileKey(pwd []byte) []byte {
	m := md5.New()
	m.Write(padPassword(pwd))
	m.Write(h.oEntry[:32])
	var p [4]byte
	binary.LittleEndian.PutUint32(p[:], h.permissions)
	m.Write(p[:])
	m.Write(h.fileID)
	if h.revision >= 4 && !h.encryptMetadata {
		m.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	sum := m.Sum(nil)
	if h.revision >= 3 {
		for i := 0; i < 50; i++ {
			s2 := md5.Sum(sum[:h.keyLen])
			sum = s2[:]
		}
	}
	return append([]byte(nil), sum[:h.keyLen]...)
}

// checkUserPassword implements Algorithms 4/5 + 6.
func (h *StandardHandler) checkUserPassword(pwd []byte) ([]byte, bool) {
	key := h.computeFileKey(pwd)
	if h.revision == 2 {
		u := rc4Apply(key, passPadding)
		return key, bytes.Equal(u, h.uEntry[:32])
	}
	m := md5.New()
	m.Write(passPadding)
	m.Write(h.fileID)
	u := rc4Apply(key, m.Sum(nil))
	for i := 1; i <= 19; i++ {
		u = rc4Apply(xorKey(key, byte(i)), u)
	}
	return key, bytes.Equal(u, h.uEntry[:16])
}

// checkOwnerPassword implements Algorithm 7: recover the user password
// from /O, then run the user check.
func (h *StandardHandler) checkOwnerPassword(pwd []byte) ([]byte, bool) {
	sum := md5.Sum(padPassword(pwd))
	key := sum[:]
	if h.revision >= 3 {
		for i := 0; i < 50; i++ {
			s2 := md5.Sum(key)
			key = s2[:]
		}
	}
	key = key[:h.keyLen]

	user := append([]byte(nil), h.oEntry[:32]...)
	if h.revision == 2 {
		user = rc4Apply(key, user)
	} else {
		for i := 19; i >= 0; i-- {
			user = rc4Apply(xorKey(key, byte(i)), user)
		}
	}
	return h.checkUserPassword(user)
}

// authenticateV5 implements Algorithms 2.A/2.B for revisions 5 and 6.
func (h *StandardHandler) authenticateV5(pwd []byte) error {
	if len(pwd) > 127 {
		pwd = pwd[:127]
	}
	uValid := h.uEntry[32:40]
	uKey := h.uEntry[40:48]
	oValid := h.oEntry[32:40]
	oKey := h.oEntry[40:48]

	if bytes.Equal(h.hashV5(pwd, uValid, nil), h.uEntry[:32]) {
		inter := h.hashV5(pwd, uKey, nil)
		key, err := aesNoPadDecrypt(inter, h.ue[:32])
		if err != nil {
			return err
		}
		h.fileKey = key
		h.authenticated = true
		return nil
	}
	if bytes.Equal(h.hashV5(pwd, oValid, h.uEntry[:48]), h.oEntry[:32]) {
		inter := h.hashV5(pwd, oKey, h.uEntry[:48])
		key, err := aesNoPadDecrypt(inter, h.oe[:32])
		if err != nil {
			return err
		}
		h.fileKey = key
		h.authenticated = true
		h.ownerAuth = true
		return nil
	}
	return ErrWrongPassword
}

// hashV5 is SHA-256 for revision 5 and the hardened hash of Algorithm 2.B
// for revision 6.
func (h *StandardHandler) hashV5(pwd, salt, udata []byte) []byte {
	k0 := sha256.New()
	k0.Write(pwd)
	k0.Write(salt)
	k0.Write(udata)
	k := k0.Sum(nil)
	if h.revision == 5 {
		return k
	}
	var e []byte
	for round := 0; ; round++ {
		k1 := make([]byte, 0, 64*(len(pwd)+len(k)+len(udata)))
		for i := 0; i < 64; i++ {
			k1 = append(k1, pwd...)
			k1 = append(k1, k...)
			k1 = append(k1, udata...)
		}
		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)
		var mod int
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		case 2:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if round >= 63 && int(e[len(e)-1]) <= round-31 {
			return k[:32]
		}
	}
}

func rc4Apply(key, data []byte) []byte {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out
}

func xorKey(key []byte, b byte) []byte {
	out := make([]byte, len(key))
	for i, k := range key {
		out[i] = k ^ b
	}
	return out
}

func aesNoPadDecrypt(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("security: bad AES block length")
	}
	out := make([]byte, len(data))
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
