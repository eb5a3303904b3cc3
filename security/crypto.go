package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"errors"
)

// aesSalt is appended to the per-object key material for AESV2 filters.
var aesSalt = []byte{0x73, 0x41, 0x6C, 0x54}

// CryptoHandler decrypts object payloads once a StandardHandler has
// authenticated. It is installed into the syntax scanner so string and
// stream data is decrypted transparently during object parsing.
type CryptoHandler struct {
	key       []byte
	keyLen    int
	stmCipher CipherKind
	strCipher CipherKind
}

// NewCryptoHandler builds a crypto handler from an authenticated security
// handler.
func NewCryptoHandler(h *StandardHandler) (*CryptoHandler, error) {
	if h == nil || !h.authenticated {
		return nil, errors.New("security: handler not authenticated")
	}
	return &CryptoHandler{
		key:       h.FileKey(),
		keyLen:    h.KeyLength(),
		stmCipher: h.StreamCipher(),
		strCipher: h.StringCipher(),
	}, nil
}

// DecryptStream decrypts raw stream bytes of object (objnum, gen).
func (c *CryptoHandler) DecryptStream(objnum, gen uint32, data []byte) []byte {
	return c.decrypt(c.stmCipher, objnum, gen, data)
}

// DecryptString decrypts string bytes of object (objnum, gen).
func (c *CryptoHandler) DecryptString(objnum, gen uint32, data []byte) []byte {
	return c.decrypt(c.strCipher, objnum, gen, data)
}

func (c *CryptoHandler) decrypt(kind CipherKind, objnum, gen uint32, data []byte) []byte {
	switch kind {
	case CipherNone:
		return data
	case CipherRC4:
		return rc4Apply(c.objectKey(objnum, gen, false), data)
	case CipherAES:
		return aesDecrypt(c.objectKey(objnum, gen, true), data)
	case CipherAES2:
		return aesDecrypt(c.key, data)
	}
	return data
}

// objectKey derives the per-object key (Algorithm 1).
func (c *CryptoHandler) objectKey(objnum, gen uint32, aesFilter bool) []byte {
	m := md5.New()
	m.Write(c.key)
	m.Write([]byte{byte(objnum), byte(objnum >> 8), byte(objnum >> 16)})
	m.Write([]byte{byte(gen), byte(gen >> 8)})
	if aesFilter {
		m.Write(aesSalt)
	}
	sum := m.Sum(nil)
	n := c.keyLen + 5
	if n > 16 {
		n = 16
	}
	return sum[:n]
}

// aesDecrypt performs AES-CBC with the IV prefixed to the ciphertext and
// PKCS#7 padding stripped. Malformed input decrypts to nil.
func aesDecrypt(key, data []byte) []byte {
	if len(data) < 2*aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil
	}
	iv, body := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(body))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, body)
	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(out) {
		return out
	}
	return out[:len(out)-pad]
}
