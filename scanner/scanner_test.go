package scanner

import (
	"bytes"
	"testing"

	"github.com/wudi/pdfcore/ir/raw"
)

func newScanner(data string) *Scanner {
	return New(bytes.NewReader([]byte(data)), int64(len(data)), 0)
}

func TestGetNextWordKinds(t *testing.T) {
	s := newScanner("  12 -3.5 /Name#20X << >> [ ] (lit) <48656C6C6F> obj")

	cases := []struct {
		word     string
		isNumber bool
	}{
		{"12", true},
		{"-3.5", true},
		{"/Name#20X", false},
		{"<<", false},
		{">>", false},
		{"[", false},
		{"]", false},
		{"(", false},
	}
	for _, c := range cases {
		word, isNumber := s.GetNextWord()
		if string(word) != c.word || isNumber != c.isNumber {
			t.Fatalf("GetNextWord = %q,%v, want %q,%v", word, isNumber, c.word, c.isNumber)
		}
	}
	// Skip the literal string body manually; word reading does not
	// consume string payloads.
	s.SetPos(s.Pos() + int64(len("lit)")))
	word, _ := s.GetNextWord()
	if string(word) != "<48656C6C6F>" {
		t.Fatalf("hex string word = %q", word)
	}
	if kw := s.GetKeyword(); kw != "obj" {
		t.Fatalf("keyword = %q, want obj", kw)
	}
}

func TestGetNextWordSkipsComments(t *testing.T) {
	s := newScanner("% a comment line\n42")
	word, isNumber := s.GetNextWord()
	if string(word) != "42" || !isNumber {
		t.Fatalf("word = %q,%v, want 42,true", word, isNumber)
	}
}

func TestBackwardsSearchToWord(t *testing.T) {
	data := "junk startxref 1234 %%EOF"
	s := newScanner(data)
	s.SetPos(int64(len(data)) - 1)
	if !s.BackwardsSearchToWord("startxref", 0) {
		t.Fatal("startxref not found")
	}
	if s.GetKeyword() != "startxref" {
		t.Fatal("cursor not left at keyword start")
	}
	if n := s.GetDirectNum(); n != 1234 {
		t.Fatalf("number after keyword = %d, want 1234", n)
	}

	s2 := newScanner(data)
	s2.SetPos(int64(len(data)) - 1)
	if s2.BackwardsSearchToWord("startxref", 4) {
		t.Fatal("limit should stop the search before the keyword")
	}
}

func TestGetObjectScalarsAndRefs(t *testing.T) {
	s := newScanner("<< /A 5 /B 2 0 R /C (hi) /D <414243> /E true /F null /G [3 0 R 7] >>")
	obj := s.GetObject(0, 0, false)
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		t.Fatalf("object = %T, want dict", obj)
	}
	if dict.IntFor("A") != 5 {
		t.Errorf("A = %d", dict.IntFor("A"))
	}
	if got := dict.RefNumFor("B"); got != 2 {
		t.Errorf("B ref = %d, want 2", got)
	}
	if string(dict.StringFor("C")) != "hi" {
		t.Errorf("C = %q", dict.StringFor("C"))
	}
	if string(dict.StringFor("D")) != "ABC" {
		t.Errorf("D = %q, want ABC", dict.StringFor("D"))
	}
	if !dict.BoolFor("E", false) {
		t.Error("E should be true")
	}
	if _, okNull := dict.Get("F"); !okNull {
		t.Error("F missing")
	}
	arr := dict.ArrayFor("G")
	if arr == nil || arr.Len() != 2 {
		t.Fatalf("G = %v", arr)
	}
	if ref, isRef := arr.Items[0].(raw.RefObj); !isRef || ref.R.Num != 3 {
		t.Errorf("G[0] = %#v, want 3 0 R", arr.Items[0])
	}
	if n, isNum := arr.Items[1].(raw.NumberObj); !isNum || n.Int() != 7 {
		t.Errorf("G[1] = %#v, want 7", arr.Items[1])
	}
}

func TestLiteralStringEscapes(t *testing.T) {
	s := newScanner(`(a\(b\)c\n\101 (nested))`)
	obj := s.GetObject(0, 0, false)
	str, ok := obj.(raw.StringObj)
	if !ok {
		t.Fatalf("object = %T, want string", obj)
	}
	want := "a(b)c\nA (nested)"
	if string(str.Bytes) != want {
		t.Errorf("string = %q, want %q", str.Bytes, want)
	}
}

func TestStreamWithDeclaredLength(t *testing.T) {
	payload := "BINARY\x00DATA with endstream inside? no."
	data := "<< /Length " + itoa(len(payload)) + " >>\nstream\n" + payload + "\nendstream"
	s := newScanner(data)
	obj := s.GetObject(0, 0, false)
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		t.Fatalf("object = %T, want stream", obj)
	}
	if string(stream.Data) != payload {
		t.Errorf("stream data = %q", stream.Data)
	}
}

func TestStreamWithBadLengthFallsBackToEndstream(t *testing.T) {
	payload := "0123456789"
	data := "<< /Length 9999 >>\nstream\n" + payload + "\nendstream"
	s := newScanner(data)
	obj := s.GetObject(0, 0, false)
	stream, ok := obj.(*raw.StreamObj)
	if !ok {
		t.Fatalf("object = %T, want stream", obj)
	}
	if string(stream.Data) != payload {
		t.Errorf("stream data = %q, want %q", stream.Data, payload)
	}
}

func TestParseIndirectObjectAt(t *testing.T) {
	data := "junk 12 3 obj\n<< /K /V >>\nendobj\n"
	s := newScanner(data)
	obj, num, gen, ok := s.ParseIndirectObjectAt(5, 12)
	if !ok {
		t.Fatal("parse failed")
	}
	if num != 12 || gen != 3 {
		t.Errorf("header = %d %d, want 12 3", num, gen)
	}
	if raw.ToDict(obj) == nil {
		t.Errorf("object = %T, want dict", obj)
	}

	if _, _, _, ok := s.ParseIndirectObjectAt(5, 99); ok {
		t.Fatal("objnum mismatch must fail")
	}
}

func TestGetObjectStrictRejectsBrokenDict(t *testing.T) {
	s := newScanner("<< /A 1 /B >>garbage")
	if obj := s.GetObjectStrict(0, 0, false); obj != nil {
		// /B followed by ">>" parses B as keyword; strict mode fails.
		t.Fatalf("strict parse produced %#v, want nil", obj)
	}
}

func TestFindTag(t *testing.T) {
	s := newScanner("aa obj bb")
	dist := s.FindTag("obj")
	if dist != 3 {
		t.Fatalf("FindTag distance = %d, want 3", dist)
	}
	if s.Pos() != 6 {
		t.Fatalf("cursor = %d, want 6 (past tag)", s.Pos())
	}
	if s.FindTag("zz") != -1 {
		t.Fatal("missing tag must return -1")
	}
}

func TestHeaderOffsetRelativePositions(t *testing.T) {
	data := "XXXX%PDF-1.4\n1 0 obj\n42\nendobj"
	s := New(bytes.NewReader([]byte(data)), int64(len(data)), 4)
	// Position 9 is relative to the header, i.e. file byte 13.
	obj, num, _, ok := s.ParseIndirectObjectAt(9, 1)
	if !ok || num != 1 {
		t.Fatalf("parse through header offset failed (ok=%v num=%d)", ok, num)
	}
	n, isNum := obj.(raw.NumberObj)
	if !isNum || n.Int() != 42 {
		t.Fatalf("object = %#v, want 42", obj)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
