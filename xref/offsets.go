package xref

import "sort"

// OffsetSet is an ordered set of meaningful byte offsets: object headers,
// xref keywords, xref-stream objects and trailers. Its purpose is to
// bound the byte size of the object starting at a given offset.
type OffsetSet struct {
	offsets []int64
}

func NewOffsetSet() *OffsetSet {
	return &OffsetSet{}
}

func (s *OffsetSet) Len() int { return len(s.offsets) }

// Insert adds offset, ignoring duplicates.
func (s *OffsetSet) Insert(offset int64) {
	i := sort.Search(len(s.offsets), func(i int) bool { return s.offsets[i] >= offset })
	if i < len(s.offsets) && s.offsets[i] == offset {
		return
	}
	s.offsets = append(s.offsets, 0)
	copy(s.offsets[i+1:], s.offsets[i:])
	s.offsets[i] = offset
}

// Contains reports whether offset is a member.
func (s *OffsetSet) Contains(offset int64) bool {
	i := sort.Search(len(s.offsets), func(i int) bool { return s.offsets[i] >= offset })
	return i < len(s.offsets) && s.offsets[i] == offset
}

// NextAfter returns the smallest member strictly greater than offset.
func (s *OffsetSet) NextAfter(offset int64) (int64, bool) {
	i := sort.Search(len(s.offsets), func(i int) bool { return s.offsets[i] > offset })
	if i == len(s.offsets) {
		return 0, false
	}
	return s.offsets[i], true
}

// Clear removes all members.
func (s *OffsetSet) Clear() {
	s.offsets = s.offsets[:0]
}
