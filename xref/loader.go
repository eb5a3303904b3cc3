package xref

import (
	"errors"

	"github.com/wudi/pdfcore/filters"
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
	"github.com/wudi/pdfcore/recovery"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/security"
)

const (
	// maxObjectNumber caps object numbers read from xref data. The format
	// allows more, but 24 bits is far beyond any real file.
	maxObjectNumber = 1 << 24

	// maxXRefSize caps the trailer /Size honored when shrinking.
	maxXRefSize = 1 << 20

	recordSize = 20
)

var errBadRecord = errors.New("corrupt fixed-width xref record")

// DocumentHook is the narrow slice of the document collaborator the
// loaders drive while reading cross-reference streams and rebuilding.
type DocumentHook interface {
	// IsRootObject reports whether objnum is the already-loaded catalog.
	IsRootObject(objnum uint32) bool
	// ReplaceIndirectObjectIfHigherGeneration registers obj unless an
	// object with a higher generation is already held.
	ReplaceIndirectObjectIfHigherGeneration(objnum, gen uint32, obj raw.Object) bool
	// GetOrParseIndirectObject fetches objnum through the current index.
	GetOrParseIndirectObject(objnum uint32) raw.Object
}

// Loader populates the object index, offset set and trailer stack from
// classical xref tables (v4), cross-reference streams (v5) or, when both
// fail, a full-file rebuild scan.
type Loader struct {
	syntax   *scanner.Scanner
	doc      DocumentHook
	pipeline *filters.Pipeline
	limits   security.Limits
	rec      recovery.Strategy
	log      observability.Logger

	Index    *Index
	Offsets  *OffsetSet
	Trailers *TrailerStack

	// LastXRefOffset is updated by the rebuilder when it encounters a
	// startxref keyword.
	LastXRefOffset int64
	// XRefStartObjNum remembers the first objnum of the last-read v4
	// subsection or v5 index segment; linearized reloads reuse it.
	XRefStartObjNum uint32
	// VersionUpdated is set when a v4 table entry carries generation >= 1
	// or a rebuild scan changes an indexed generation.
	VersionUpdated bool
	// XRefStream is set after a successful v5 chain load.
	XRefStream bool

	// OnObjStreamsInvalid is called when loaded object-stream caches
	// must be discarded.
	OnObjStreamsInvalid func()
}

// NewLoader builds a loader around the syntax scanner.
func NewLoader(syntax *scanner.Scanner, doc DocumentHook, limits security.Limits, rec recovery.Strategy, log observability.Logger) *Loader {
	if log == nil {
		log = observability.NopLogger{}
	}
	if rec == nil {
		rec = &recovery.Lenient{}
	}
	return &Loader{
		syntax:   syntax,
		doc:      doc,
		pipeline: filters.Default(filters.Limits{MaxDecompressedSize: limits.MaxDecompressedSize}),
		limits:   limits,
		rec:      rec,
		log:      log,
		Index:    NewIndex(),
		Offsets:  NewOffsetSet(),
		Trailers: NewTrailerStack(),
	}
}

// report routes an absorbed anomaly through the recovery strategy.
// ActionFail turns a tolerated anomaly into a hard stop for strict
// strategies.
func (l *Loader) report(err error, component string, objnum uint32) bool {
	action := l.rec.OnError(err, recovery.Location{
		ByteOffset: l.syntax.Pos(),
		ObjectNum:  objnum,
		Component:  component,
	})
	return action != recovery.ActionFail
}

// Syntax exposes the underlying scanner.
func (l *Loader) Syntax() *scanner.Scanner { return l.syntax }

func (l *Loader) invalidateObjStreams() {
	if l.OnObjStreamsInvalid != nil {
		l.OnObjStreamsInvalid()
	}
}

// LoadAllV4 reads the classical xref chain rooted at pos: the newest
// section plus every /Prev ancestor, replayed oldest to newest so newer
// entries win. Hybrid /XRefStm streams contribute entries that never
// override table ones.
func (l *Loader) LoadAllV4(pos int64) bool {
	if !l.LoadV4(pos, 0, true) {
		return false
	}
	trailer := l.LoadTrailer()
	if trailer == nil {
		return false
	}
	l.Trailers.Push(trailer)

	if size := trailer.IntFor("Size"); size > 0 && size <= maxXRefSize {
		l.Index.Shrink(uint32(size))
	}

	sections := []int64{pos}
	streams := []int64{trailer.IntFor("XRefStm")}
	seen := map[int64]bool{pos: true}

	depth := 0
	next := trailer.IntFor("Prev")
	for next != 0 {
		if seen[next] {
			return false
		}
		seen[next] = true
		depth++
		if l.limits.MaxXRefDepth > 0 && depth > l.limits.MaxXRefDepth {
			return false
		}

		sections = append([]int64{next}, sections...)
		l.LoadV4(next, 0, true)

		dict := l.LoadTrailer()
		if dict == nil {
			return false
		}
		next = dict.IntFor("Prev")
		streams = append([]int64{dict.IntFor("XRefStm")}, streams...)
		l.Trailers.Append(dict)
	}

	for i, sec := range sections {
		if !l.LoadV4(sec, streams[i], false) {
			return false
		}
		if i == 0 && !l.VerifyV4() {
			return false
		}
	}
	return true
}

// LoadV4 reads one textual xref section at pos. With skip set, records
// are stepped over without being stored. A nonzero streampos loads the
// hybrid /XRefStm stream afterwards.
func (l *Loader) LoadV4(pos, streampos int64, skip bool) bool {
	l.syntax.SetPos(pos)
	if l.syntax.GetKeyword() != "xref" {
		return false
	}
	l.Offsets.Insert(pos)
	if streampos != 0 {
		l.Offsets.Insert(streampos)
	}

	for {
		saved := l.syntax.Pos()
		word, isNumber := l.syntax.GetNextWord()
		if len(word) == 0 {
			return false
		}
		if !isNumber {
			l.syntax.SetPos(saved)
			break
		}

		start := parseUint(word)
		if start >= maxObjectNumber {
			return false
		}
		count := l.syntax.GetDirectNum()
		l.syntax.ToNextWord()
		saved = l.syntax.Pos()

		l.XRefStartObjNum = start
		if !skip && !l.readV4Records(start, count) {
			return false
		}

		// count*20 can overflow on hostile subsection headers.
		advance, ok := mulInt64(int64(count), recordSize)
		if !ok {
			return false
		}
		l.syntax.SetPos(saved + advance)
	}
	if streampos == 0 {
		return true
	}
	return l.LoadV5(&streampos, false)
}

// readV4Records reads count fixed-width 20-byte records in blocks of
// 1024 for throughput.
func (l *Loader) readV4Records(start, count uint32) bool {
	buf := make([]byte, 1024*recordSize)
	nBlocks := int(count/1024) + 1
	for block := 0; block < nBlocks; block++ {
		blockSize := 1024
		if block == nBlocks-1 {
			blockSize = int(count % 1024)
		}
		if blockSize == 0 {
			continue
		}
		chunk := buf[:blockSize*recordSize]
		l.syntax.ReadBlock(chunk)

		for i := 0; i < blockSize; i++ {
			objnum := start + uint32(block*1024+i)
			rec := chunk[i*recordSize : (i+1)*recordSize]
			if rec[17] == 'f' {
				l.Index.Set(objnum, Entry{Type: TypeFree})
				continue
			}
			offset := atoi64(rec[:10])
			if offset == 0 {
				for c := 0; c < 10; c++ {
					if !isDigit(rec[c]) {
						l.report(errBadRecord, "XrefV4Loader", objnum)
						return false
					}
				}
			}
			gen := uint32(atoi64(rec[11:16]))
			if gen >= 1 {
				l.VersionUpdated = true
			}
			if offset < l.syntax.FileLen() {
				l.Offsets.Insert(offset)
			}
			l.Index.Set(objnum, Entry{Type: TypeDirect, Offset: offset, Gen: gen})
		}
	}
	return true
}

// LoadLinearizedAllV4 reloads the main xref chain of a linearized file.
// The records at pos are read headerless, as many as the remembered
// start objnum and numbered from 0, and the replay begins at the second
// section.
func (l *Loader) LoadLinearizedAllV4(pos int64, objCount uint32) bool {
	if !l.loadLinearizedV4(pos, objCount) {
		return false
	}
	trailer := l.LoadTrailer()
	if trailer == nil {
		return false
	}
	l.Trailers.Push(trailer)
	if trailer.IntFor("Size") == 0 {
		return false
	}

	sections := []int64{pos}
	streams := []int64{trailer.IntFor("XRefStm")}
	seen := map[int64]bool{pos: true}

	next := trailer.IntFor("Prev")
	for next != 0 {
		if seen[next] {
			return false
		}
		seen[next] = true
		sections = append([]int64{next}, sections...)
		l.LoadV4(next, 0, true)

		dict := l.LoadTrailer()
		if dict == nil {
			return false
		}
		next = dict.IntFor("Prev")
		streams = append([]int64{dict.IntFor("XRefStm")}, streams...)
		l.Trailers.Append(dict)
	}

	for i := 1; i < len(sections); i++ {
		if !l.LoadV4(sections[i], streams[i], false) {
			return false
		}
	}
	return true
}

// loadLinearizedV4 reads objCount records at pos without a subsection
// header, numbering them from 0.
func (l *Loader) loadLinearizedV4(pos int64, objCount uint32) bool {
	l.syntax.SetPos(pos)
	l.Offsets.Insert(pos)

	advance, ok := mulInt64(int64(objCount), recordSize)
	if !ok || pos+advance+l.syntax.HeaderOffset() > l.syntax.FileLen() {
		return false
	}
	if !l.readV4Records(0, objCount) {
		return false
	}
	l.syntax.SetPos(pos + advance)
	return true
}

// VerifyV4 spot-checks the table: the first entry with a nonzero offset
// must point at bytes that start with its own object number.
func (l *Loader) VerifyV4() bool {
	ok := true
	l.Index.ForEach(func(objnum uint32, e Entry) bool {
		if e.Offset == 0 {
			return true
		}
		saved := l.syntax.Pos()
		l.syntax.SetPos(e.Offset)
		word, isNumber := l.syntax.GetNextWord()
		l.syntax.SetPos(saved)
		ok = isNumber && len(word) > 0 && parseUint(word) == objnum
		return false
	})
	return ok
}

// LoadTrailer parses the dictionary after the trailer keyword at the
// cursor.
func (l *Loader) LoadTrailer() *raw.DictObj {
	if l.syntax.GetKeyword() != "trailer" {
		return nil
	}
	obj := l.syntax.GetObject(0, 0, true)
	dict, _ := obj.(*raw.DictObj)
	return dict
}

func parseUint(w []byte) uint32 {
	var n uint64
	for _, c := range w {
		if !isDigit(c) {
			return 0
		}
		n = n*10 + uint64(c-'0')
		if n > 0xFFFFFFFF {
			return 0xFFFFFFFF
		}
	}
	return uint32(n)
}

func atoi64(b []byte) int64 {
	var n int64
	started := false
	for _, c := range b {
		if c == ' ' && !started {
			continue
		}
		if !isDigit(c) {
			break
		}
		started = true
		n = n*10 + int64(c-'0')
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func mulInt64(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}
