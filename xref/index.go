package xref

import "sort"

// EntryType classifies how an object number is stored in the file.
type EntryType int

const (
	// TypeFree marks an unused object number.
	TypeFree EntryType = iota
	// TypeDirect marks an object stored at a byte offset as "N G obj".
	TypeDirect
	// TypeCompressed marks an object packed inside an object stream.
	TypeCompressed
	// TypeNull marks an object-stream container: its bytes are raw input
	// for compressed entries, not a directly indexed object.
	TypeNull
)

// Entry is the location record for one object number.
type Entry struct {
	Type EntryType
	// Offset is the byte position for TypeDirect/TypeNull, or the
	// container object number for TypeCompressed.
	Offset int64
	// Gen is the generation for TypeDirect/TypeFree, or the index within
	// the container for TypeCompressed.
	Gen uint32
	// ArchiveObjNum back-links a container referenced by compressed
	// entries.
	ArchiveObjNum uint32
}

// Index maps object numbers to location records.
type Index struct {
	m   map[uint32]Entry
	max uint32
}

func NewIndex() *Index {
	return &Index{m: make(map[uint32]Entry)}
}

func (x *Index) Len() int { return len(x.m) }

// LastObjNum returns the largest known object number, or 0.
func (x *Index) LastObjNum() uint32 {
	if len(x.m) == 0 {
		return 0
	}
	return x.max
}

// IsValidObjectNumber reports whether objnum is within the index range.
func (x *Index) IsValidObjectNumber(objnum uint32) bool {
	return len(x.m) > 0 && objnum <= x.max
}

// Get returns the record for objnum. Missing numbers read as Free.
func (x *Index) Get(objnum uint32) Entry {
	return x.m[objnum]
}

// Has reports whether objnum has an explicit record.
func (x *Index) Has(objnum uint32) bool {
	_, ok := x.m[objnum]
	return ok
}

// Set stores the record for objnum.
func (x *Index) Set(objnum uint32, e Entry) {
	x.m[objnum] = e
	if objnum > x.max {
		x.max = objnum
	}
}

// GetType returns the record type for objnum (Free when unknown).
func (x *Index) GetType(objnum uint32) EntryType {
	return x.m[objnum].Type
}

// OffsetOrZero returns the stored offset, or 0 for unknown numbers.
func (x *Index) OffsetOrZero(objnum uint32) int64 {
	return x.m[objnum].Offset
}

// GenNum returns the stored generation, or 0 for unknown numbers.
func (x *Index) GenNum(objnum uint32) uint32 {
	return x.m[objnum].Gen
}

// IsFreeOrNull reports whether objnum carries no directly parseable
// object.
func (x *Index) IsFreeOrNull(objnum uint32) bool {
	t := x.GetType(objnum)
	return t == TypeFree || t == TypeNull
}

// Keys returns the object numbers in ascending order.
func (x *Index) Keys() []uint32 {
	keys := make([]uint32, 0, len(x.m))
	for k := range x.m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ForEach visits records in ascending object-number order.
func (x *Index) ForEach(fn func(objnum uint32, e Entry) bool) {
	for _, k := range x.Keys() {
		if !fn(k, x.m[k]) {
			return
		}
	}
}

// MarkAllFree re-tags every record as Free, keeping offsets, so older
// xref sections can supply locations again.
func (x *Index) MarkAllFree() {
	for k, e := range x.m {
		e.Type = TypeFree
		x.m[k] = e
	}
}

// Shrink erases every record with objnum >= size. When size > 0 and no
// record exists at size-1, a Free placeholder is created there so that
// LastObjNum() == size-1 afterwards.
func (x *Index) Shrink(size uint32) {
	if size == 0 {
		x.m = make(map[uint32]Entry)
		x.max = 0
		return
	}
	for k := range x.m {
		if k >= size {
			delete(x.m, k)
		}
	}
	if _, ok := x.m[size-1]; !ok {
		x.m[size-1] = Entry{}
	}
	x.recomputeMax()
}

// Clear removes every record.
func (x *Index) Clear() {
	x.m = make(map[uint32]Entry)
	x.max = 0
}

func (x *Index) recomputeMax() {
	x.max = 0
	for k := range x.m {
		if k > x.max {
			x.max = k
		}
	}
}
