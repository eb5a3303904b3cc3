package xref

import (
	"errors"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/observability"
)

var errSegmentOutOfRange = errors.New("xref stream index segment out of range")

// LoadAllV5 reads the cross-reference stream chain rooted at pos.
func (l *Loader) LoadAllV5(pos int64) bool {
	if !l.LoadV5(&pos, true) {
		return false
	}
	seen := map[int64]bool{}
	depth := 0
	for pos != 0 {
		seen[pos] = true
		depth++
		if l.limits.MaxXRefDepth > 0 && depth > l.limits.MaxXRefDepth {
			return false
		}
		if !l.LoadV5(&pos, false) {
			return false
		}
		if seen[pos] {
			return false
		}
	}
	l.invalidateObjStreams()
	l.XRefStream = true
	return true
}

// LoadLinearizedAllV5 reloads the main xref stream chain of a linearized
// file. The first stream is read in non-main mode: the entries loaded
// during the first pass keep precedence.
func (l *Loader) LoadLinearizedAllV5(pos int64) bool {
	if !l.LoadV5(&pos, false) {
		return false
	}
	seen := map[int64]bool{}
	for pos != 0 {
		seen[pos] = true
		if !l.LoadV5(&pos, false) {
			return false
		}
		if seen[pos] {
			return false
		}
	}
	l.invalidateObjStreams()
	l.XRefStream = true
	return true
}

// LoadV5 reads one cross-reference stream at *pos and replaces *pos with
// its /Prev offset (0 when the chain ends). On the main (newest) load the
// stream dictionary becomes the current trailer and every already-known
// entry is tombstoned to Free so older sections may only fill gaps.
func (l *Loader) LoadV5(pos *int64, mainLoad bool) bool {
	obj, objnum, gen, ok := l.syntax.ParseIndirectObjectAt(*pos, 0)
	if !ok || objnum == 0 {
		return false
	}
	if l.doc != nil {
		if l.doc.IsRootObject(objnum) {
			return false
		}
		if !l.doc.ReplaceIndirectObjectIfHigherGeneration(objnum, gen, obj) {
			return false
		}
	}

	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		return false
	}
	dict := stream.Dict
	*pos = dict.IntFor("Prev")
	size := dict.IntFor("Size")
	if size < 0 {
		return false
	}

	trailer, _ := dict.Clone().(*raw.DictObj)
	if mainLoad {
		l.Trailers.Push(trailer)
		l.Index.Shrink(uint32(min64(size, maxXRefSize)))
		l.Index.MarkAllFree()
	} else {
		l.Trailers.Append(trailer)
	}

	segments := l.readIndexSegments(dict, size)

	widths, total, ok := l.readWidths(dict)
	if !ok {
		return false
	}

	data, err := l.pipeline.DecodeStream(stream)
	if err != nil {
		l.log.Debug("xref stream decode failed", observability.Error("err", err))
		l.report(err, "XrefV5Loader", objnum)
		return false
	}

	segStart := int64(0)
	for _, seg := range segments {
		consumed, fatal := l.loadV5Segment(data, segStart, seg.start, seg.count, widths, total)
		if fatal {
			return false
		}
		// Skipped segments do not consume entry data.
		if consumed {
			segStart += seg.count
		}
	}
	return true
}

type v5Segment struct {
	start int64
	count int64
}

func (l *Loader) readIndexSegments(dict *raw.DictObj, size int64) []v5Segment {
	var out []v5Segment
	if arr := dict.ArrayFor("Index"); arr != nil {
		for i := 0; i+1 < arr.Len(); i += 2 {
			start := arr.IntAt(i)
			count := arr.IntAt(i + 1)
			if start >= 0 && count > 0 {
				out = append(out, v5Segment{start: start, count: count})
			}
		}
	}
	if len(out) == 0 {
		out = append(out, v5Segment{start: 0, count: size})
	}
	return out
}

func (l *Loader) readWidths(dict *raw.DictObj) ([]int64, int64, bool) {
	arr := dict.ArrayFor("W")
	if arr == nil || arr.Len() < 3 {
		return nil, 0, false
	}
	widths := make([]int64, arr.Len())
	var total int64
	for i := range widths {
		w := arr.IntAt(i)
		if w < 0 || w > 8 {
			return nil, 0, false
		}
		widths[i] = w
		total += w
	}
	if total <= 0 {
		return nil, 0, false
	}
	return widths, total, true
}

// loadV5Segment decodes count entries for object numbers starting at
// start, reading from data at segment index segStart. Entries for object
// numbers a newer section already placed are left untouched. Segments
// that fall outside the stream data or the index range are skipped, and
// are fatal only when the recovery strategy fails the report; a
// compressed entry naming an invalid container is always fatal.
func (l *Loader) loadV5Segment(data []byte, segStart, start, count int64, widths []int64, total int64) (consumed, fatal bool) {
	if start < 0 || count <= 0 {
		return false, false
	}
	need, ok := mulInt64(segStart+count, total)
	if !ok || need > int64(len(data)) {
		return false, !l.report(errSegmentOutOfRange, "XrefV5Loader", 0)
	}
	l.XRefStartObjNum = uint32(start)

	// Segments must stay inside the already-established index range.
	indexSize := int64(0)
	if l.Index.Len() > 0 {
		indexSize = int64(l.Index.LastObjNum()) + 1
	}
	if start+count > indexSize {
		return false, !l.report(errSegmentOutOfRange, "XrefV5Loader", 0)
	}

	for j := int64(0); j < count; j++ {
		objnum := uint32(start + j)
		entry := data[(segStart+j)*total:]

		entryType := TypeDirect
		if widths[0] > 0 {
			switch getVarInt(entry, widths[0]) {
			case 0:
				entryType = TypeFree
			case 1:
				entryType = TypeDirect
			case 2:
				entryType = TypeCompressed
			default:
				entryType = TypeNull
			}
		}

		// A container keeps its Null classification; only its offset is
		// refreshed.
		if l.Index.GetType(objnum) == TypeNull {
			offset := getVarInt(entry[widths[0]:], widths[1])
			e := l.Index.Get(objnum)
			e.Offset = offset
			l.Index.Set(objnum, e)
			l.Offsets.Insert(offset)
			continue
		}
		// A newer section already supplied this object.
		if l.Index.GetType(objnum) != TypeFree {
			continue
		}

		switch entryType {
		case TypeFree:
			l.Index.Set(objnum, Entry{Type: TypeFree})
		case TypeDirect:
			offset := getVarInt(entry[widths[0]:], widths[1])
			genVal := uint32(0)
			if widths[2] > 0 {
				genVal = uint32(getVarInt(entry[widths[0]+widths[1]:], widths[2]))
			}
			l.Offsets.Insert(offset)
			l.Index.Set(objnum, Entry{Type: TypeDirect, Offset: offset, Gen: genVal})
		case TypeCompressed:
			archive := getVarInt(entry[widths[0]:], widths[1])
			if archive < 0 || !l.Index.IsValidObjectNumber(uint32(archive)) {
				return true, true
			}
			idx := uint32(0)
			if widths[2] > 0 {
				idx = uint32(getVarInt(entry[widths[0]+widths[1]:], widths[2]))
			}
			l.Index.Set(objnum, Entry{
				Type:          TypeCompressed,
				Offset:        archive,
				Gen:           idx,
				ArchiveObjNum: uint32(archive),
			})
			container := l.Index.Get(uint32(archive))
			container.Type = TypeNull
			l.Index.Set(uint32(archive), container)
		default:
			l.Index.Set(objnum, Entry{Type: TypeNull})
		}
	}
	return true, false
}

func getVarInt(p []byte, n int64) int64 {
	var result int64
	for i := int64(0); i < n; i++ {
		result = result<<8 | int64(p[i])
	}
	return result
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
