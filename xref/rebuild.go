package xref

import (
	"errors"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
)

var errStrictParseFailed = errors.New("object at discovered offset failed strict parse")

// parserState enumerates the rebuild scan states.
type parserState int

const (
	stateDefault parserState = iota
	stateWhitespace
	stateComment
	stateString
	stateHexString
	stateEscapedString
	stateObjNum
	statePostObjNum
	stateGenNum
	statePostGenNum
	stateBeginObj
	stateEndObj
	stateXref
	stateTrailer
)

const rebuildBufferSize = 4096

// Rebuild reconstructs the object index and a trailer by scanning the
// whole file for "N G obj" patterns, trailer dictionaries and embedded
// cross-reference streams. Existing index state is discarded. It
// succeeds when a trailer was found and at least one object indexed.
func (l *Loader) Rebuild() bool {
	l.Index.Clear()
	l.Offsets.Clear()
	l.Trailers.Clear()
	l.log.Debug("rebuilding cross-reference table")

	state := stateDefault
	insideIndex := 0
	var objnum, gennum uint32
	depth := 0
	buffer := make([]byte, rebuildBufferSize)

	fileLen := l.syntax.FileLen() - l.syntax.HeaderOffset()
	var pos int64
	var startPos, startPos1 int64
	lastObj := int64(-1)
	lastXref := int64(-1)
	lastTrailer := int64(-1)

	for pos < fileLen {
		savedPos := pos
		overflow := false
		size := int64(rebuildBufferSize)
		if rem := fileLen - pos; rem < size {
			size = rem
		}
		if l.syntax.ReadBlockAt(buffer[:size], pos) < int(size) {
			break
		}

		for i := int64(0); i < size; i++ {
			byteVal := buffer[i]
			switch state {
			case stateDefault:
				switch {
				case isRebuildWhitespace(byteVal):
					state = stateWhitespace
				case isDigit(byteVal):
					i--
					state = stateWhitespace
				case byteVal == '%':
					insideIndex = 0
					state = stateComment
				case byteVal == '(':
					state = stateString
					depth = 1
				case byteVal == '<':
					insideIndex = 1
					state = stateHexString
				case byteVal == '\\':
					state = stateEscapedString
				case byteVal == 't':
					state = stateTrailer
					insideIndex = 1
				}

			case stateWhitespace:
				switch {
				case isDigit(byteVal):
					startPos = pos + i
					state = stateObjNum
					objnum = uint32(byteVal - '0')
				case byteVal == 't':
					state = stateTrailer
					insideIndex = 1
				case byteVal == 'x':
					state = stateXref
					insideIndex = 1
				case !isRebuildWhitespace(byteVal):
					i--
					state = stateDefault
				}

			case stateObjNum:
				switch {
				case isDigit(byteVal):
					objnum = objnum*10 + uint32(byteVal-'0')
				case isRebuildWhitespace(byteVal):
					state = statePostObjNum
				default:
					i--
					state = stateEndObj
					insideIndex = 0
				}

			case statePostObjNum:
				switch {
				case isDigit(byteVal):
					startPos1 = pos + i
					state = stateGenNum
					gennum = uint32(byteVal - '0')
				case byteVal == 't':
					state = stateTrailer
					insideIndex = 1
				case !isRebuildWhitespace(byteVal):
					i--
					state = stateDefault
				}

			case stateGenNum:
				switch {
				case isDigit(byteVal):
					gennum = gennum*10 + uint32(byteVal-'0')
				case isRebuildWhitespace(byteVal):
					state = statePostGenNum
				default:
					i--
					state = stateDefault
				}

			case statePostGenNum:
				switch {
				case byteVal == 'o':
					state = stateBeginObj
					insideIndex = 1
				case isDigit(byteVal):
					// Patterns like "N G N G obj": shift left one pair.
					objnum = gennum
					gennum = uint32(byteVal - '0')
					startPos = startPos1
					startPos1 = pos + i
					state = stateGenNum
				case byteVal == 't':
					state = stateTrailer
					insideIndex = 1
				case !isRebuildWhitespace(byteVal):
					i--
					state = stateDefault
				}

			case stateBeginObj:
				switch insideIndex {
				case 1:
					if byteVal != 'b' {
						i--
						state = stateDefault
					} else {
						insideIndex++
					}
				case 2:
					if byteVal != 'j' {
						i--
						state = stateDefault
					} else {
						insideIndex++
					}
				case 3:
					if isRebuildWhitespace(byteVal) || isRebuildDelimiter(byteVal) {
						var skipped int64
						skipped, overflow = l.rebuildObjectFound(objnum, gennum, startPos, size-i)
						if overflow {
							pos = skipped
						} else {
							i += skipped
						}
						if lastObj < startPos {
							lastObj = startPos
						}
					}
					i--
					state = stateDefault
				}

			case stateTrailer:
				if insideIndex == 7 {
					if isRebuildWhitespace(byteVal) || isRebuildDelimiter(byteVal) {
						lastTrailer = pos + i - 7
						l.rebuildTrailerFound(pos + i)
					}
					i--
					state = stateDefault
				} else if byteVal == "trailer"[insideIndex] {
					insideIndex++
				} else {
					i--
					state = stateDefault
				}

			case stateXref:
				if insideIndex == 4 {
					lastXref = pos + i - 4
					state = stateWhitespace
				} else if byteVal == "xref"[insideIndex] {
					insideIndex++
				} else {
					i--
					state = stateDefault
				}

			case stateComment:
				if byteVal == '\r' || byteVal == '\n' {
					state = stateDefault
				}

			case stateString:
				if byteVal == ')' {
					if depth > 0 {
						depth--
					}
				} else if byteVal == '(' {
					depth++
				}
				if depth == 0 {
					state = stateDefault
				}

			case stateHexString:
				if byteVal == '>' || (byteVal == '<' && insideIndex == 1) {
					state = stateDefault
				}
				insideIndex = 0

			case stateEscapedString:
				if isRebuildDelimiter(byteVal) || isRebuildWhitespace(byteVal) {
					i--
					state = stateDefault
				}

			case stateEndObj:
				switch {
				case isRebuildWhitespace(byteVal):
					state = stateDefault
				case byteVal == '%' || byteVal == '(' || byteVal == '<' || byteVal == '\\':
					state = stateDefault
					i--
				case insideIndex == 6:
					state = stateDefault
					i--
				case byteVal == "endobj"[insideIndex]:
					insideIndex++
				}
			}

			if overflow {
				size = 0
				break
			}
		}
		pos += size

		// Bail out if a pass made no forward progress; hostile offsets
		// must not loop forever.
		if pos <= savedPos {
			break
		}
	}

	if lastXref != -1 && lastXref > lastObj {
		lastTrailer = lastXref
	} else if lastTrailer == -1 || lastXref < lastObj {
		lastTrailer = fileLen
	}
	l.Offsets.Insert(lastTrailer)

	if l.Trailers.Current() != nil {
		l.log.Debug("rebuild complete",
			observability.Int("objects", l.Index.Len()),
			observability.Int("trailers", l.Trailers.Len()))
	}
	return l.Trailers.Current() != nil && l.Index.Len() > 0
}

// rebuildObjectFound records a discovered "N G obj" header at objPos and
// parses its body. It returns how many buffered bytes the object body
// spans; overflow reports that the body extends past the current buffer,
// in which case skipped is the file position to resume at.
func (l *Loader) rebuildObjectFound(objnum, gennum uint32, objPos, remaining int64) (skipped int64, overflow bool) {
	l.Offsets.Insert(objPos)

	obj, objEnd, parsed := l.syntax.ParseIndirectObjectAtStrict(objPos, objnum)
	if !parsed {
		// The offset is still recorded; the body just cannot be trusted.
		l.report(errStrictParseFailed, "Rebuilder", objnum)
	}

	// An embedded cross-reference stream doubles as a trailer when its
	// catalog reference checks out.
	if stream, ok := obj.(*raw.StreamObj); ok {
		dict := stream.Dict
		if dict.NameFor("Type") == "XRef" {
			if _, hasSize := dict.Get("Size"); hasSize && l.rootHasPages(dict) {
				trailer, _ := dict.Clone().(*raw.DictObj)
				l.Trailers.Push(trailer)
			}
		}
	}

	// Skip the object body so inner tokens are not re-scanned.
	saved := l.syntax.Pos()
	l.syntax.SetPos(objPos)
	headerLen := l.syntax.FindTag("obj")
	if headerLen == -1 {
		headerLen = 0
	} else {
		headerLen += 3
	}
	l.syntax.SetPos(saved)

	bodyLen := objEnd - objPos - headerLen
	if bodyLen > remaining {
		skipped = objEnd
		overflow = true
	} else {
		skipped = bodyLen
	}
	if skipped < 0 {
		skipped = 0
		overflow = false
	}

	if l.Index.Len() > 0 && l.Index.IsValidObjectNumber(objnum) && l.Index.OffsetOrZero(objnum) != 0 {
		if parsed {
			oldGen := l.Index.GenNum(objnum)
			e := l.Index.Get(objnum)
			e.Offset = objPos
			e.Gen = gennum
			l.Index.Set(objnum, e)
			if oldGen != gennum {
				l.VersionUpdated = true
			}
		}
	} else {
		l.Index.Set(objnum, Entry{Type: TypeDirect, Offset: objPos, Gen: gennum})
	}
	return skipped, overflow
}

// rootHasPages resolves the /Root entry of a candidate trailer dict and
// checks the catalog it names carries /Pages.
func (l *Loader) rootHasPages(dict *raw.DictObj) bool {
	rootObj, ok := dict.Get("Root")
	if !ok {
		return false
	}
	var rootDict *raw.DictObj
	switch v := rootObj.(type) {
	case *raw.DictObj:
		rootDict = v
	case raw.RefObj:
		if l.doc == nil {
			return false
		}
		rootDict = raw.ToDict(l.doc.GetOrParseIndirectObject(v.R.Num))
	}
	if rootDict == nil {
		return false
	}
	_, hasPages := rootDict.Get("Pages")
	return hasPages
}

// rebuildTrailerFound parses the dictionary following a trailer keyword
// ending at relative position wordEnd and folds it into the trailer
// stack. A startxref that follows is remembered.
func (l *Loader) rebuildTrailerFound(wordEnd int64) {
	saved := l.syntax.Pos()
	defer l.syntax.SetPos(saved)

	l.syntax.SetPos(wordEnd)
	obj := l.syntax.GetObject(0, 0, true)
	if obj == nil {
		return
	}
	var trailer *raw.DictObj
	isStream := false
	switch v := obj.(type) {
	case *raw.DictObj:
		trailer = v
	case *raw.StreamObj:
		trailer = v.Dict
		isStream = true
	default:
		return
	}
	if trailer == nil {
		return
	}

	if cur := l.Trailers.Current(); cur != nil {
		// Merge only when the new trailer's Root is absent or points at
		// an object the index can actually locate.
		rootObj, hasRoot := trailer.Get("Root")
		mergeable := !hasRoot
		if ref, ok := rootObj.(raw.RefObj); ok {
			mergeable = l.Index.IsValidObjectNumber(ref.R.Num) && l.Index.OffsetOrZero(ref.R.Num) != 0
		}
		if mergeable {
			l.Trailers.MergeRebuilt(trailer, l.Index)
		}
	} else {
		if isStream {
			trailer, _ = trailer.Clone().(*raw.DictObj)
		}
		l.Trailers.Push(trailer)
	}

	// Remember a startxref that follows the trailer dictionary.
	dictEnd := l.syntax.Pos()
	if l.syntax.GetKeyword() == "startxref" {
		if word, isNumber := l.syntax.GetNextWord(); isNumber {
			l.LastXRefOffset = parseInt(word)
		}
	}
	l.syntax.SetPos(dictEnd)
}

func parseInt(w []byte) int64 {
	var n int64
	for _, c := range w {
		if !isDigit(c) {
			break
		}
		n = n*10 + int64(c-'0')
	}
	return n
}

func isRebuildWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isRebuildDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
