package xref

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/scanner"
	"github.com/wudi/pdfcore/security"
)

// nopHook satisfies DocumentHook for loader-level tests.
type nopHook struct{}

func (nopHook) IsRootObject(uint32) bool { return false }
func (nopHook) ReplaceIndirectObjectIfHigherGeneration(uint32, uint32, raw.Object) bool {
	return true
}
func (nopHook) GetOrParseIndirectObject(uint32) raw.Object { return nil }

func newLoader(data []byte) *Loader {
	s := scanner.New(bytes.NewReader(data), int64(len(data)), 0)
	return NewLoader(s, nopHook{}, security.DefaultLimits(), nil, nil)
}

func TestLoadAllV4SimpleTable(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /A 1 >>\nendobj\n")
	off2 := int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /B 2 >>\nendobj\n")
	xrefOff := int64(buf.Len())
	fmt.Fprintf(buf, "xref\n0 3\n0000000000 65535 f\r\n%010d 00000 n\r\n%010d 00002 n\r\n", off1, off2)
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n")
	fmt.Fprintf(buf, "%d\n%%%%EOF\n", xrefOff)

	l := newLoader(buf.Bytes())
	if !l.LoadAllV4(xrefOff) {
		t.Fatal("LoadAllV4 failed")
	}
	if got := l.Index.Get(1); got.Type != TypeDirect || got.Offset != off1 {
		t.Errorf("object 1 entry = %+v", got)
	}
	if got := l.Index.Get(2); got.Gen != 2 {
		t.Errorf("object 2 gen = %d, want 2", got.Gen)
	}
	if !l.VersionUpdated {
		t.Error("generation 2 must set the version-updated flag")
	}
	if l.Trailers.Current() == nil || l.Trailers.Current().IntFor("Size") != 3 {
		t.Error("trailer not captured")
	}
	if !l.Offsets.Contains(off1) || !l.Offsets.Contains(off2) {
		t.Error("object offsets missing from offset set")
	}
}

func TestLoadAllV4RejectsCycle(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< >>\nendobj\n")
	xrefOff := int64(buf.Len())
	fmt.Fprintf(buf, "xref\n0 2\n0000000000 65535 f\r\n%010d 00000 n\r\n", off1)
	fmt.Fprintf(buf, "trailer\n<< /Size 2 /Root 1 0 R /Prev %d >>\n", xrefOff)

	l := newLoader(buf.Bytes())
	if l.LoadAllV4(xrefOff) {
		t.Fatal("a self-referencing /Prev chain must fail")
	}
}

func TestLoadAllV4RejectsBadFixedWidthRecord(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	xrefOff := int64(buf.Len())
	// Zero offset whose digits are corrupt.
	buf.WriteString("xref\n1 1\n00000000xy 00000 n\r\n")
	buf.WriteString("trailer\n<< /Size 2 >>\n")

	l := newLoader(buf.Bytes())
	if l.LoadAllV4(xrefOff) {
		t.Fatal("malformed record must fail the v4 load")
	}
}

func TestVerifyV4CatchesShiftedOffsets(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< >>\nendobj\n")
	xrefOff := int64(buf.Len())
	// Offset deliberately off by two: the bytes there do not start with "1".
	fmt.Fprintf(buf, "xref\n0 2\n0000000000 65535 f\r\n%010d 00000 n\r\n", off1+2)
	buf.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")

	l := newLoader(buf.Bytes())
	if l.LoadAllV4(xrefOff) {
		t.Fatal("verification should reject a table whose offsets are shifted")
	}
}

// buildXRefStream emits an uncompressed cross-reference stream with the
// given widths over the entries, each entry a (type, field2, field3)
// triple already truncated to the widths.
func buildXRefStream(objnum uint32, size int, widths string, entries []byte, prev int64) func(buf *bytes.Buffer) int64 {
	return func(buf *bytes.Buffer) int64 {
		off := int64(buf.Len())
		prevPart := ""
		if prev > 0 {
			prevPart = fmt.Sprintf(" /Prev %d", prev)
		}
		fmt.Fprintf(buf, "%d 0 obj\n<< /Type /XRef /Size %d /Root 1 0 R /W %s /Index [0 %d]%s /Length %d >>\nstream\n",
			objnum, size, widths, size, prevPart, len(entries))
		buf.Write(entries)
		buf.WriteString("\nendstream\nendobj\n")
		return off
	}
}

func TestLoadAllV5WidthVariants(t *testing.T) {
	// Entries encode: 0 free, 1 direct @0x0F, 2 compressed in 1 idx 0,
	// 3 direct @0x50.
	t.Run("w121", func(t *testing.T) {
		buf := &bytes.Buffer{}
		buf.WriteString("%PDF-1.5\n")
		entries := []byte{
			0x00, 0x00, 0x00, 0x00,
			0x01, 0x00, 0x0F, 0x00,
			0x02, 0x00, 0x01, 0x00,
			0x01, 0x00, 0x50, 0x00,
			0x01, 0x00, 0x00, 0x00, // self entry, patched below
		}
		// First pass learns the stream's own offset, second pass writes
		// the patched self entry.
		off := buildXRefStream(4, 5, "[1 2 1]", entries, 0)(buf)
		entries[17] = byte(off >> 8)
		entries[18] = byte(off)
		buf.Reset()
		buf.WriteString("%PDF-1.5\n")
		buildXRefStream(4, 5, "[1 2 1]", entries, 0)(buf)

		l := newLoader(buf.Bytes())
		pos := off
		if !l.LoadAllV5(pos) {
			t.Fatal("LoadAllV5 failed")
		}
		if got := l.Index.Get(3); got.Type != TypeDirect || got.Offset != 0x50 {
			t.Errorf("object 3 = %+v, want direct at 0x50", got)
		}
		e := l.Index.Get(2)
		if e.Type != TypeCompressed || e.Offset != 1 || e.Gen != 0 {
			t.Errorf("object 2 = %+v, want compressed in container 1 index 0", e)
		}
		if l.Index.GetType(1) != TypeNull {
			t.Error("container 1 must be reclassified Null")
		}
		if !l.XRefStream {
			t.Error("xref-stream flag unset")
		}
	})

	// With w0 == 0 the type field defaults to direct.
	t.Run("w041", func(t *testing.T) {
		buf := &bytes.Buffer{}
		buf.WriteString("%PDF-1.5\n")
		entries := make([]byte, 3*5)
		put := func(i int, off int64, gen byte) {
			entries[i*5] = byte(off >> 24)
			entries[i*5+1] = byte(off >> 16)
			entries[i*5+2] = byte(off >> 8)
			entries[i*5+3] = byte(off)
			entries[i*5+4] = gen
		}
		put(0, 0, 0)
		put(1, 0x0F, 0)
		off := buildXRefStream(2, 3, "[0 4 1]", entries, 0)(buf)
		put(2, off, 0)
		// Rewrite with patched self entry.
		buf.Reset()
		buf.WriteString("%PDF-1.5\n")
		buildXRefStream(2, 3, "[0 4 1]", entries, 0)(buf)

		l := newLoader(buf.Bytes())
		if !l.LoadAllV5(off) {
			t.Fatal("LoadAllV5 failed for w0=0")
		}
		if got := l.Index.Get(1); got.Type != TypeDirect || got.Offset != 0x0F {
			t.Errorf("object 1 = %+v, want direct at 0x0F", got)
		}
	})
}

func TestLoadAllV5RejectsCycle(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.5\n")
	probe := &bytes.Buffer{}
	probe.WriteString("%PDF-1.5\n")
	entries := []byte{
		0x00, 0x00, 0x00,
		0x01, 0x00, 0x00,
	}
	off := buildXRefStream(1, 2, "[1 1 1]", entries, 1)(probe)
	entries[4] = byte(off)
	// Prev pointing at itself.
	buildXRefStream(1, 2, "[1 1 1]", entries, off)(buf)

	l := newLoader(buf.Bytes())
	if l.LoadAllV5(off) {
		t.Fatal("self-referencing xref stream chain must fail")
	}
}

func TestRebuildFindsObjectsAndTrailer(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	off1 := int64(buf.Len())
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off2 := int64(buf.Len())
	buf.WriteString("2 0 obj\n<< /Type /Pages /Kids [] /Count 0 >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 3 /Root 1 0 R >>\nstartxref\n999\n%%EOF\n")

	l := newLoader(buf.Bytes())
	if !l.Rebuild() {
		t.Fatal("rebuild failed on a scannable file")
	}
	if got := l.Index.Get(1); got.Type != TypeDirect || got.Offset != off1 {
		t.Errorf("object 1 = %+v, want direct at %d", got, off1)
	}
	if got := l.Index.Get(2); got.Offset != off2 {
		t.Errorf("object 2 offset = %d, want %d", got.Offset, off2)
	}
	if l.Trailers.Current() == nil {
		t.Fatal("rebuild must find the trailer")
	}
	if got := l.Trailers.Current().RefNumFor("Root"); got != 1 {
		t.Errorf("trailer root = %d, want 1", got)
	}
	if l.LastXRefOffset != 999 {
		t.Errorf("startxref after trailer = %d, want 999", l.LastXRefOffset)
	}
}

func TestRebuildIgnoresPatternsInsideStrings(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	buf.WriteString("1 0 obj\n<< /Decoy (9 0 obj is not real) >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 2 /Root 1 0 R >>\n")

	l := newLoader(buf.Bytes())
	if !l.Rebuild() {
		t.Fatal("rebuild failed")
	}
	if l.Index.Has(9) {
		t.Error("object pattern inside a string was indexed")
	}
	if !l.Index.Has(1) {
		t.Error("real object missed")
	}
}

func TestRebuildHandlesNGNGobjPattern(t *testing.T) {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n")
	// "7 1 3 0 obj": the scanner must shift and index object 3, gen 0.
	buf.WriteString("7 1 ")
	off3 := int64(buf.Len())
	buf.WriteString("3 0 obj\n<< /X 1 >>\nendobj\n")
	buf.WriteString("trailer\n<< /Size 4 /Root 3 0 R >>\n")

	l := newLoader(buf.Bytes())
	if !l.Rebuild() {
		t.Fatal("rebuild failed")
	}
	e := l.Index.Get(3)
	if e.Type != TypeDirect || e.Offset != off3 || e.Gen != 0 {
		t.Errorf("object 3 = %+v, want direct at %d gen 0", e, off3)
	}
}

func TestRebuildEmptyInputFails(t *testing.T) {
	l := newLoader([]byte("no pdf content here"))
	if l.Rebuild() {
		t.Fatal("rebuild must fail without trailer and objects")
	}
}
