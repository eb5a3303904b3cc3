package xref

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfcore/ir/raw"
)

func TestIndexLastObjNumAndValidity(t *testing.T) {
	idx := NewIndex()
	if idx.LastObjNum() != 0 {
		t.Errorf("empty index last objnum = %d, want 0", idx.LastObjNum())
	}
	if idx.IsValidObjectNumber(0) {
		t.Error("empty index should have no valid numbers")
	}

	idx.Set(7, Entry{Type: TypeDirect, Offset: 120})
	idx.Set(3, Entry{Type: TypeDirect, Offset: 40})
	if idx.LastObjNum() != 7 {
		t.Errorf("last objnum = %d, want 7", idx.LastObjNum())
	}
	if !idx.IsValidObjectNumber(5) {
		t.Error("5 is within range and should be valid")
	}
	if idx.IsValidObjectNumber(8) {
		t.Error("8 is beyond the last objnum")
	}
	if idx.GetType(5) != TypeFree {
		t.Error("unknown numbers must read as Free")
	}
}

func TestIndexShrink(t *testing.T) {
	idx := NewIndex()
	for i := uint32(1); i <= 10; i++ {
		idx.Set(i, Entry{Type: TypeDirect, Offset: int64(i) * 10})
	}

	idx.Shrink(5)
	if idx.LastObjNum() != 4 {
		t.Errorf("last objnum after shrink = %d, want 4", idx.LastObjNum())
	}
	for i := uint32(5); i <= 10; i++ {
		if idx.Has(i) {
			t.Errorf("object %d survived shrink", i)
		}
	}

	// Shrinking to a size with no existing key plants a Free placeholder.
	idx2 := NewIndex()
	idx2.Set(1, Entry{Type: TypeDirect, Offset: 10})
	idx2.Shrink(9)
	if idx2.LastObjNum() != 8 {
		t.Errorf("placeholder last objnum = %d, want 8", idx2.LastObjNum())
	}
	if idx2.GetType(8) != TypeFree {
		t.Error("placeholder entry should be Free")
	}

	idx2.Shrink(0)
	if idx2.Len() != 0 {
		t.Error("shrink to 0 must clear the index")
	}
}

func TestIndexMarkAllFreeKeepsOffsets(t *testing.T) {
	idx := NewIndex()
	idx.Set(2, Entry{Type: TypeDirect, Offset: 77, Gen: 1})
	idx.MarkAllFree()
	e := idx.Get(2)
	if e.Type != TypeFree || e.Offset != 77 {
		t.Errorf("entry after MarkAllFree = %+v, want Free with offset kept", e)
	}
}

func TestOffsetSetNextAfter(t *testing.T) {
	s := NewOffsetSet()
	for _, off := range []int64{50, 10, 30, 10, 30} {
		s.Insert(off)
	}
	if s.Len() != 3 {
		t.Errorf("len = %d, want 3 (duplicates collapse)", s.Len())
	}
	if !s.Contains(30) || s.Contains(20) {
		t.Error("membership misreported")
	}

	next, ok := s.NextAfter(10)
	if !ok || next != 30 {
		t.Errorf("NextAfter(10) = %d,%v, want 30,true", next, ok)
	}
	next, ok = s.NextAfter(29)
	if !ok || next != 30 {
		t.Errorf("NextAfter(29) = %d,%v, want 30,true", next, ok)
	}
	if _, ok = s.NextAfter(50); ok {
		t.Error("NextAfter past the last member must fail")
	}
}

func TestTrailerStackCurrentAndMerge(t *testing.T) {
	ts := NewTrailerStack()
	if ts.Current() != nil {
		t.Fatal("empty stack has no current trailer")
	}

	newest := raw.Dict()
	newest.Set("Size", raw.NumberInt(10))
	newest.Set("Root", raw.Ref(1, 0))
	ts.Push(newest)

	older := raw.Dict()
	older.Set("Size", raw.NumberInt(5))
	ts.Append(older)
	if ts.Current() != newest {
		t.Fatal("Append must not change the current trailer")
	}

	idx := NewIndex()
	idx.Set(4, Entry{Type: TypeDirect, Offset: 99})

	merged := raw.Dict()
	merged.Set("Info", raw.Ref(4, 0))       // valid located object: keep ref
	merged.Set("Encrypt", raw.Ref(77, 0))   // out of range: cloned as-is
	merged.Set("ID", raw.NumberInt(123456)) // direct value: cloned
	ts.MergeRebuilt(merged, idx)

	cur := ts.Current()
	if got := cur.RefNumFor("Info"); got != 4 {
		t.Errorf("merged Info ref = %d, want 4", got)
	}
	if got := cur.IntFor("ID"); got != 123456 {
		t.Errorf("merged ID = %d, want 123456", got)
	}
	if got := cur.IntFor("Size"); got != 10 {
		t.Errorf("merge clobbered Size = %d, want 10", got)
	}
}

func TestEntryComparability(t *testing.T) {
	a := Entry{Type: TypeCompressed, Offset: 4, Gen: 1, ArchiveObjNum: 4}
	b := Entry{Type: TypeCompressed, Offset: 4, Gen: 1, ArchiveObjNum: 4}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("identical entries differ:\n%s", diff)
	}
}
