package parser

import (
	"io"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/recovery"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/security"
	"github.com/wudi/pdfcore/xref"
)

// headerSearchWindow bounds the scan for the %PDF- header.
const headerSearchWindow = 1024

// startxrefSearchWindow bounds the backwards scan for startxref.
const startxrefSearchWindow = 4096

// Config carries the knobs shared across a parse.
type Config struct {
	Limits   security.Limits
	Recovery recovery.Strategy
	Logger   observability.Logger
	Password string
}

// Parser discovers a PDF file's cross-reference data and serves random
// access to its indirect objects. One Parser owns one file; instances
// are not safe for concurrent use but independent instances are.
type Parser struct {
	cfg    Config
	log    observability.Logger
	syntax *scanner.Scanner
	loader *xref.Loader
	doc    Document

	securityHandler *security.StandardHandler
	encryptDict     *raw.DictObj

	hasParsed      bool
	rebuilt        bool
	fileVersion    int
	lastXRefOffset int64

	parsingObjNums map[uint32]struct{}
	objStreams     map[uint32]*objStream

	linearized *LinearizedHeader
}

// New builds a parser. A zero Config selects default limits, a nop
// logger and lenient recovery.
func New(cfg Config) *Parser {
	if cfg.Limits == (security.Limits{}) {
		cfg.Limits = security.DefaultLimits()
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Recovery == nil {
		cfg.Recovery = &recovery.Lenient{}
	}
	return &Parser{
		cfg:            cfg,
		log:            cfg.Logger,
		parsingObjNums: make(map[uint32]struct{}),
		objStreams:     make(map[uint32]*objStream),
	}
}

// SetPassword sets the password used when an encryption dictionary is
// found. It must be called before StartParse.
func (p *Parser) SetPassword(pwd string) { p.cfg.Password = pwd }

// StartParse locates the xref data of the file in r (size bytes long),
// builds the object index, configures decryption and loads the document
// through doc. It returns nil, ErrFormat, ErrPassword or ErrHandler.
func (p *Parser) StartParse(r io.ReaderAt, size int64, doc Document) error {
	if p.hasParsed {
		return ErrFormat
	}
	p.hasParsed = true
	p.lastXRefOffset = 0

	if !p.initSyntax(r, size) {
		return ErrFormat
	}
	p.doc = doc

	p.syntax.SetPos(p.syntax.FileLen() - p.syntax.HeaderOffset() - 9)
	p.rebuilt = false
	if p.syntax.BackwardsSearchToWord("startxref", startxrefSearchWindow) {
		p.loader.Offsets.Insert(p.syntax.Pos())
		p.syntax.GetKeyword()

		word, isNumber := p.syntax.GetNextWord()
		if !isNumber {
			return ErrFormat
		}
		p.lastXRefOffset = atoi(word)
		if !p.loader.LoadAllV4(p.lastXRefOffset) && !p.loader.LoadAllV5(p.lastXRefOffset) {
			p.log.Debug("xref chain unusable, rebuilding",
				observability.Int64("startxref", p.lastXRefOffset))
			if !p.loader.Rebuild() {
				return ErrFormat
			}
			p.rebuilt = true
			p.lastXRefOffset = 0
		}
	} else {
		if !p.loader.Rebuild() {
			return ErrFormat
		}
		p.rebuilt = true
	}

	if err := p.setEncryptHandler(); err != nil {
		return err
	}

	p.doc.LoadDoc(p)
	if p.doc.GetRoot() == nil || p.doc.GetPageCount() == 0 {
		if p.rebuilt {
			return ErrFormat
		}
		p.releaseEncryptHandler()
		if !p.loader.Rebuild() {
			return ErrFormat
		}
		p.rebuilt = true
		if err := p.setEncryptHandler(); err != nil {
			return err
		}
		p.doc.LoadDoc(p)
		if p.doc.GetRoot() == nil {
			return ErrFormat
		}
	}
	if p.GetRootObjNum() == 0 {
		p.releaseEncryptHandler()
		if !p.loader.Rebuild() || p.GetRootObjNum() == 0 {
			return ErrFormat
		}
		if err := p.setEncryptHandler(); err != nil {
			return err
		}
	}
	p.recordMetadataObjNum()
	return nil
}

// initSyntax probes the header and wires up the scanner and loader.
func (p *Parser) initSyntax(r io.ReaderAt, size int64) bool {
	headerOffset, version, ok := findHeader(r, size)
	if !ok {
		return false
	}
	p.fileVersion = version

	p.syntax = scanner.New(r, size, headerOffset)
	p.syntax.SetLimits(p.cfg.Limits)
	if size < headerOffset+9 {
		return false
	}
	p.loader = xref.NewLoader(p.syntax, loaderHook{p}, p.cfg.Limits, p.cfg.Recovery, p.log)
	p.loader.OnObjStreamsInvalid = p.clearObjStreamCache
	return true
}

// findHeader searches the first kilobyte for %PDF-M.m and returns the
// junk prefix length plus the encoded version.
func findHeader(r io.ReaderAt, size int64) (offset int64, version int, ok bool) {
	window := int64(headerSearchWindow)
	if size < window {
		window = size
	}
	buf := make([]byte, window)
	n, _ := r.ReadAt(buf, 0)
	buf = buf[:n]

	for i := 0; i+8 <= len(buf); i++ {
		if buf[i] != '%' || buf[i+1] != 'P' || buf[i+2] != 'D' || buf[i+3] != 'F' || buf[i+4] != '-' {
			continue
		}
		if isDigit(buf[i+5]) {
			version = int(buf[i+5]-'0') * 10
		}
		if i+7 < len(buf) && isDigit(buf[i+7]) {
			version += int(buf[i+7] - '0')
		}
		return int64(i), version, true
	}
	return 0, 0, false
}

// recordMetadataObjNum marks the /Metadata stream as a decryption bypass
// when the security handler left it unencrypted.
func (p *Parser) recordMetadataObjNum() {
	if p.securityHandler == nil || p.securityHandler.IsMetadataEncrypted() {
		return
	}
	root := p.doc.GetRoot()
	if root == nil {
		return
	}
	if objnum := root.RefNumFor("Metadata"); objnum != 0 {
		p.syntax.SetMetadataObjNum(objnum)
	}
}

// setEncryptHandler reads /Encrypt from the current trailer and installs
// the security and crypto handlers.
func (p *Parser) setEncryptHandler() error {
	p.releaseEncryptHandler()
	trailer := p.loader.Trailers.Current()
	if trailer == nil {
		return ErrFormat
	}

	encObj, ok := trailer.Get("Encrypt")
	if ok {
		switch v := encObj.(type) {
		case *raw.DictObj:
			p.encryptDict = v
		case raw.RefObj:
			// The encryption dictionary itself is parsed before any key
			// exists; mark it so its strings are never decrypted.
			p.syntax.SetEncryptObjNum(v.R.Num)
			obj := p.ParseIndirectObject(v.R.Num)
			p.encryptDict = raw.ToDict(obj)
		}
	}
	if p.encryptDict == nil {
		return nil
	}

	if p.encryptDict.NameFor("Filter") != "Standard" {
		return ErrHandler
	}
	handler, err := security.NewStandardHandler(p.encryptDict, p.fileIDBytes())
	if err != nil {
		if err == security.ErrUnsupportedFilter {
			return ErrHandler
		}
		return ErrPassword
	}
	if err := handler.Authenticate(p.cfg.Password); err != nil {
		return ErrPassword
	}
	crypto, err := security.NewCryptoHandler(handler)
	if err != nil {
		return ErrHandler
	}
	p.securityHandler = handler
	p.syntax.SetEncrypt(crypto)
	return nil
}

func (p *Parser) releaseEncryptHandler() {
	p.securityHandler = nil
	p.encryptDict = nil
	if p.syntax != nil {
		p.syntax.SetEncrypt(nil)
	}
}

func (p *Parser) fileIDBytes() []byte {
	arr := p.GetIDArray()
	if arr == nil || arr.Len() == 0 {
		return nil
	}
	if s, ok := arr.Items[0].(raw.StringObj); ok {
		return s.Bytes
	}
	return nil
}

// Trailer returns the current trailer dictionary, or nil.
func (p *Parser) Trailer() *raw.DictObj { return p.loader.Trailers.Current() }

// Trailers returns the full trailer history, oldest first.
func (p *Parser) Trailers() []*raw.DictObj { return p.loader.Trailers.All() }

// GetFileVersion returns the header version as 10*major + minor.
func (p *Parser) GetFileVersion() int { return p.fileVersion }

// WasRebuilt reports whether the index came from a rebuild scan.
func (p *Parser) WasRebuilt() bool { return p.rebuilt }

// VersionUpdated reports whether a v4 table entry carried generation >= 1
// or a rebuild scan changed an indexed generation.
func (p *Parser) VersionUpdated() bool { return p.loader.VersionUpdated }

// IsXRefStream reports whether the newest xref section was a stream.
func (p *Parser) IsXRefStream() bool { return p.loader.XRefStream }

// GetLastObjNum returns the largest known object number, or 0.
func (p *Parser) GetLastObjNum() uint32 { return p.loader.Index.LastObjNum() }

// IsValidObjectNumber reports whether objnum falls inside the index.
func (p *Parser) IsValidObjectNumber(objnum uint32) bool {
	return p.loader.Index.IsValidObjectNumber(objnum)
}

// GetObjectType returns the index record type for objnum.
func (p *Parser) GetObjectType(objnum uint32) xref.EntryType {
	return p.loader.Index.GetType(objnum)
}

// GetObjectGenNum returns the generation recorded for objnum.
func (p *Parser) GetObjectGenNum(objnum uint32) uint32 {
	return p.loader.Index.GenNum(objnum)
}

// IsObjectFreeOrNull reports whether objnum holds no directly parseable
// object.
func (p *Parser) IsObjectFreeOrNull(objnum uint32) bool {
	return p.loader.Index.IsFreeOrNull(objnum)
}

// GetObjectOffset returns the byte offset of objnum: direct objects
// yield their own offset, compressed ones their container's.
func (p *Parser) GetObjectOffset(objnum uint32) int64 {
	if !p.IsValidObjectNumber(objnum) {
		return 0
	}
	switch p.GetObjectType(objnum) {
	case xref.TypeDirect:
		return p.loader.Index.OffsetOrZero(objnum)
	case xref.TypeCompressed:
		container := uint32(p.loader.Index.OffsetOrZero(objnum))
		return p.loader.Index.OffsetOrZero(container)
	}
	return 0
}

// ShrinkObjectMap drops all records numbered size and above.
func (p *Parser) ShrinkObjectMap(size uint32) {
	p.loader.Index.Shrink(size)
}

// GetRootObjNum returns the object number the trailer /Root references.
func (p *Parser) GetRootObjNum() uint32 {
	trailer := p.Trailer()
	if trailer == nil {
		return 0
	}
	return trailer.RefNumFor("Root")
}

// GetInfoObjNum returns the /Info object number, searching trailers from
// the newest revision to the oldest.
func (p *Parser) GetInfoObjNum() uint32 {
	trailer := p.Trailer()
	if trailer == nil {
		return 0
	}
	if n := trailer.RefNumFor("Info"); n != 0 {
		return n
	}
	all := p.loader.Trailers.All()
	for i := len(all) - 1; i >= 0; i-- {
		if n := all[i].RefNumFor("Info"); n != 0 {
			return n
		}
	}
	return 0
}

// GetIDArray returns the trailer /ID array, resolving an indirect one
// and re-installing it as a direct value.
func (p *Parser) GetIDArray() *raw.ArrayObj {
	trailer := p.Trailer()
	if trailer == nil {
		return nil
	}
	idObj, ok := trailer.Get("ID")
	if !ok {
		return nil
	}
	if ref, isRef := idObj.(raw.RefObj); isRef {
		obj := p.ParseIndirectObject(ref.R.Num)
		arr, _ := obj.(*raw.ArrayObj)
		if arr != nil {
			trailer.Set("ID", arr)
		}
		return arr
	}
	arr, _ := idObj.(*raw.ArrayObj)
	return arr
}

// GetPermissions returns the document permissions word. The reserved
// bits of a Standard-filter word are canonicalized per the PDF 1.7
// permissions table; an unencrypted file grants everything.
func (p *Parser) GetPermissions() uint32 {
	if p.securityHandler == nil {
		return 0xFFFFFFFF
	}
	perms := p.securityHandler.RawPermissions()
	if p.encryptDict != nil && p.encryptDict.NameFor("Filter") == "Standard" {
		perms &= 0xFFFFFFFC
		perms |= 0xFFFFF0C0
	}
	return perms
}

// IsEncrypted reports whether an encryption dictionary was installed.
func (p *Parser) IsEncrypted() bool { return p.encryptDict != nil }

// GetFirstPageNo returns the linearization first-page index, or 0.
func (p *Parser) GetFirstPageNo() uint32 {
	if p.linearized == nil {
		return 0
	}
	return p.linearized.FirstPageNo
}

func atoi(w []byte) int64 {
	var n int64
	for _, c := range w {
		if !isDigit(c) {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
