package parser

import (
	"io"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
)

// LinearizedHeader carries the fields of a fast-web-view linearization
// dictionary, the first indirect object of a linearized file.
type LinearizedHeader struct {
	FileLength      int64  // /L
	FirstPageObjNum uint32 // /O
	PageCount       int    // /N
	LastXRefOffset  int64  // /T, offset of the main xref
	FirstPageEnd    int64  // /E
	FirstPageNo     uint32 // /P, default 0
	HintStart       int64  // /H[0]
	HintLength      int64  // /H[1]
}

// parseLinearizedHeader validates a candidate dictionary. It returns nil
// unless the dictionary carries the required linearization entries.
func parseLinearizedHeader(dict *raw.DictObj) *LinearizedHeader {
	if dict == nil {
		return nil
	}
	if _, ok := dict.Get("Linearized"); !ok {
		return nil
	}
	h := &LinearizedHeader{
		FileLength:      dict.IntFor("L"),
		FirstPageObjNum: uint32(dict.IntFor("O")),
		PageCount:       int(dict.IntFor("N")),
		LastXRefOffset:  dict.IntFor("T"),
		FirstPageEnd:    dict.IntFor("E"),
		FirstPageNo:     uint32(dict.IntFor("P")),
	}
	if h.FileLength <= 0 || h.FirstPageObjNum == 0 || h.PageCount < 0 || h.LastXRefOffset <= 0 {
		return nil
	}
	if arr := dict.ArrayFor("H"); arr != nil && arr.Len() >= 2 {
		h.HintStart = arr.IntAt(0)
		h.HintLength = arr.IntAt(1)
	} else {
		return nil
	}
	return h
}

// Linearized returns the linearization header, or nil.
func (p *Parser) Linearized() *LinearizedHeader { return p.linearized }

// StartLinearizedParse parses a linearized file in first-page mode: only
// the first-page xref section is loaded, and LoadLinearizedMainXRefTable
// completes the index later. Files that are not actually linearized are
// handed to StartParse.
func (p *Parser) StartLinearizedParse(r io.ReaderAt, size int64, doc Document) error {
	if p.hasParsed {
		return ErrFormat
	}
	p.lastXRefOffset = 0

	if !p.initSyntax(r, size) {
		return ErrFormat
	}

	firstXRefOffset, ok := p.probeLinearized()
	if !ok {
		// Reset so StartParse may run on a fresh parser state.
		p.syntax = nil
		p.loader = nil
		return p.StartParse(r, size, doc)
	}
	p.hasParsed = true
	p.doc = doc
	p.lastXRefOffset = p.linearized.LastXRefOffset

	p.rebuilt = false
	loadedV4 := p.loader.LoadV4(firstXRefOffset, 0, false)
	if !loadedV4 {
		pos := firstXRefOffset
		if !p.loader.LoadV5(&pos, true) {
			if !p.loader.Rebuild() {
				return ErrFormat
			}
			p.rebuilt = true
			p.lastXRefOffset = 0
		}
	}

	if loadedV4 {
		trailer := p.loader.LoadTrailer()
		if trailer == nil {
			return nil
		}
		p.loader.Trailers.Push(trailer)
		if xrefSize := trailer.IntFor("Size"); xrefSize > 0 {
			p.ShrinkObjectMap(uint32(xrefSize))
		}
	}

	if err := p.setEncryptHandler(); err != nil {
		return err
	}

	p.doc.LoadLinearizedDoc(p, p.linearized)
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
		p.doc.LoadLinearizedDoc(p, p.linearized)
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

// probeLinearized parses the first indirect object after the header. On
// success the cursor-derived return value is the offset of the
// first-page xref section that follows it.
func (p *Parser) probeLinearized() (int64, bool) {
	p.syntax.SetPos(9)

	word, isNumber := p.syntax.GetNextWord()
	if !isNumber || len(word) == 0 {
		return 0, false
	}
	if _, isNumber = p.syntax.GetNextWord(); !isNumber {
		return 0, false
	}
	if p.syntax.GetKeyword() != "obj" {
		return 0, false
	}
	obj := p.syntax.GetObject(0, 0, true)
	dict, _ := obj.(*raw.DictObj)
	p.linearized = parseLinearizedHeader(dict)
	if p.linearized == nil {
		return 0, false
	}
	// Move past endobj onto the first-page xref section.
	p.syntax.GetKeyword()
	p.syntax.ToNextWord()
	return p.syntax.Pos(), true
}

// LoadLinearizedMainXRefTable is the second phase of a linearized parse:
// it loads the main xref chain named by the linearization /T entry and
// invalidates object-stream caches built from the first-page section.
func (p *Parser) LoadLinearizedMainXRefTable() error {
	savedMetadata := p.syntax.MetadataObjNum()
	p.syntax.SetMetadataObjNum(0)
	defer p.syntax.SetMetadataObjNum(savedMetadata)

	p.syntax.SetPos(p.lastXRefOffset)
	fileEnd := p.syntax.FileLen() - p.syntax.HeaderOffset()
	for {
		c, ok := p.syntax.GetCharAt(p.syntax.Pos())
		if !ok || !isWhitespaceByte(c) {
			break
		}
		p.lastXRefOffset++
		p.syntax.SetPos(p.syntax.Pos() + 1)
		if p.syntax.Pos() >= fileEnd {
			break
		}
	}
	p.clearObjStreamCache()

	if !p.loader.LoadLinearizedAllV4(p.lastXRefOffset, p.loader.XRefStartObjNum) &&
		!p.loader.LoadLinearizedAllV5(p.lastXRefOffset) {
		p.log.Debug("linearized main xref unusable",
			observability.Int64("offset", p.lastXRefOffset))
		p.lastXRefOffset = 0
		return ErrFormat
	}
	return nil
}

func isWhitespaceByte(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}
