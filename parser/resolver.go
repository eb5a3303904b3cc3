package parser

import (
	"bytes"

	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/xref"
)

// objStream is a loaded object-stream container: decoded payload plus
// the header mapping of inner object numbers to payload-relative
// offsets.
type objStream struct {
	data  []byte // decoded stream bytes, header included
	first int64  // /First: payload offset within data
	count int    // /N
	// inner maps objnum -> offset relative to first. order preserves
	// header order for size slicing.
	inner map[uint32]int64
	order []uint32
}

// ParseIndirectObject fetches object objnum through the index: directly
// from the file, from an object-stream container, or not at all. Cyclic
// fetches resolve to nil.
func (p *Parser) ParseIndirectObject(objnum uint32) raw.Object {
	if !p.IsValidObjectNumber(objnum) {
		return nil
	}
	if _, busy := p.parsingObjNums[objnum]; busy {
		return nil
	}
	p.parsingObjNums[objnum] = struct{}{}
	defer delete(p.parsingObjNums, objnum)

	switch p.GetObjectType(objnum) {
	case xref.TypeDirect, xref.TypeNull:
		pos := p.loader.Index.OffsetOrZero(objnum)
		if pos <= 0 {
			return nil
		}
		obj, _, _, ok := p.syntax.ParseIndirectObjectAt(pos, objnum)
		if !ok {
			return nil
		}
		return obj
	case xref.TypeCompressed:
		container := uint32(p.loader.Index.OffsetOrZero(objnum))
		os := p.getObjectStream(container)
		if os == nil {
			return nil
		}
		off, ok := os.inner[objnum]
		if !ok {
			return nil
		}
		inner := scanner.New(bytes.NewReader(os.data), int64(len(os.data)), 0)
		inner.SetPos(os.first + off)
		return inner.GetObject(0, 0, true)
	}
	return nil
}

// getObjectStream loads and caches the container object stream. The
// container is fetched through the document, whose own resolve path sees
// the container's Null classification and reads its raw bytes.
func (p *Parser) getObjectStream(objnum uint32) *objStream {
	if os, ok := p.objStreams[objnum]; ok {
		return os
	}
	if p.doc == nil {
		return nil
	}
	stream, ok := p.doc.GetOrParseIndirectObject(objnum).(*raw.StreamObj)
	if !ok {
		return nil
	}
	pipeline := filters.Default(filters.Limits{MaxDecompressedSize: p.cfg.Limits.MaxDecompressedSize})
	data, err := pipeline.DecodeStream(stream)
	if err != nil {
		return nil
	}
	os := &objStream{
		data:  data,
		first: stream.Dict.IntFor("First"),
		count: int(stream.Dict.IntFor("N")),
		inner: make(map[uint32]int64),
	}
	// The stream opens with N pairs of (objnum, relative offset).
	header := scanner.New(bytes.NewReader(data), int64(len(data)), 0)
	for i := 0; i < os.count; i++ {
		num := header.GetDirectNum()
		off := int64(header.GetDirectNum())
		if _, dup := os.inner[num]; !dup {
			os.order = append(os.order, num)
		}
		os.inner[num] = off
	}
	p.objStreams[objnum] = os
	return os
}

func (p *Parser) clearObjStreamCache() {
	p.objStreams = make(map[uint32]*objStream)
}

// GetObjectSize bounds the byte size of objnum using the offset set: the
// distance from its offset to the next known offset. Compressed objects
// are measured through their container.
func (p *Parser) GetObjectSize(objnum uint32) int64 {
	if !p.IsValidObjectNumber(objnum) {
		return 0
	}
	if p.GetObjectType(objnum) == xref.TypeCompressed {
		objnum = uint32(p.loader.Index.OffsetOrZero(objnum))
	}
	t := p.GetObjectType(objnum)
	if t != xref.TypeDirect && t != xref.TypeNull {
		return 0
	}
	offset := p.loader.Index.OffsetOrZero(objnum)
	if offset == 0 {
		return 0
	}
	if !p.loader.Offsets.Contains(offset) {
		return 0
	}
	next, ok := p.loader.Offsets.NextAfter(offset)
	if !ok {
		return 0
	}
	return next - offset
}

// GetIndirectBinary returns the raw bytes spanning the object's full
// "N G obj ... endobj" text. For compressed objects the container
// payload is sliced between inner offsets.
func (p *Parser) GetIndirectBinary(objnum uint32) []byte {
	if !p.IsValidObjectNumber(objnum) {
		return nil
	}
	if p.GetObjectType(objnum) == xref.TypeCompressed {
		return p.compressedBinary(objnum)
	}
	if p.GetObjectType(objnum) != xref.TypeDirect {
		return nil
	}

	pos := p.loader.Index.OffsetOrZero(objnum)
	if pos == 0 {
		return nil
	}
	saved := p.syntax.Pos()
	defer p.syntax.SetPos(saved)

	p.syntax.SetPos(pos)
	word, isNumber := p.syntax.GetNextWord()
	if !isNumber {
		return nil
	}
	if got := parseHeaderNum(word); got != 0 && got != objnum {
		return nil
	}
	if _, isNumber = p.syntax.GetNextWord(); !isNumber {
		return nil
	}
	if p.syntax.GetKeyword() != "obj" {
		return nil
	}

	if !p.loader.Offsets.Contains(pos) {
		return nil
	}
	nextOff, haveNext := p.loader.Offsets.NextAfter(pos)
	valid := false
	if haveNext && nextOff != pos {
		// The next offset must itself look like a section boundary.
		p.syntax.SetPos(nextOff)
		word, isNumber = p.syntax.GetNextWord()
		if string(word) == "xref" {
			valid = true
		} else if isNumber {
			if _, isNumber = p.syntax.GetNextWord(); isNumber && p.syntax.GetKeyword() == "obj" {
				valid = true
			}
		}
	}
	if !valid {
		// Fall back to a linear scan for endobj.
		p.syntax.SetPos(pos)
		fileEnd := p.syntax.FileLen() - p.syntax.HeaderOffset()
		for {
			if p.syntax.GetKeyword() == "endobj" {
				break
			}
			if p.syntax.Pos() >= fileEnd {
				break
			}
		}
		nextOff = p.syntax.Pos()
	}

	size := nextOff - pos
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	p.syntax.SetPos(pos)
	if !p.syntax.ReadBlock(buf) {
		return nil
	}
	return buf
}

func (p *Parser) compressedBinary(objnum uint32) []byte {
	container := uint32(p.loader.Index.OffsetOrZero(objnum))
	os := p.getObjectStream(container)
	if os == nil {
		return nil
	}
	off, ok := os.inner[objnum]
	if !ok {
		return nil
	}
	start := os.first + off
	if start < 0 || start > int64(len(os.data)) {
		return nil
	}
	end := int64(len(os.data))
	for i, num := range os.order {
		if num != objnum {
			continue
		}
		if i+1 < len(os.order) {
			end = os.first + os.inner[os.order[i+1]]
		}
		break
	}
	if end < start || end > int64(len(os.data)) {
		return nil
	}
	return append([]byte(nil), os.data[start:end]...)
}

func parseHeaderNum(w []byte) uint32 {
	var n uint64
	for _, c := range w {
		if !isDigit(c) {
			return 0
		}
		n = n*10 + uint64(c-'0')
		if n > 0xFFFFFFFF {
			return 0
		}
	}
	return uint32(n)
}
