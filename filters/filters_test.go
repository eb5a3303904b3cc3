package filters

import (
	"bytes"
	"compress/zlib"
	"testing"

	"github.com/wudi/pdfcore/ir/raw"
)

func flateCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	w.Close()
	return buf.Bytes()
}

func TestFlateRoundTrip(t *testing.T) {
	want := []byte("some stream payload, long enough to actually compress compress compress")
	p := Default(Limits{})
	got, err := p.Decode(flateCompress(t, want), []string{"FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip mismatch: %q", got)
	}
}

func TestFlateWithPNGUpPredictor(t *testing.T) {
	// Two rows of four columns. Up predictor stores row deltas.
	rows := [][]byte{
		{0x01, 0x00, 0x10, 0x00},
		{0x01, 0x00, 0x25, 0x01},
	}
	var pred bytes.Buffer
	prior := []byte{0, 0, 0, 0}
	for _, row := range rows {
		pred.WriteByte(2) // Up
		for i, b := range row {
			pred.WriteByte(b - prior[i])
		}
		prior = row
	}

	params := raw.Dict()
	params.Set("Predictor", raw.NumberInt(12))
	params.Set("Columns", raw.NumberInt(4))

	p := Default(Limits{})
	got, err := p.Decode(flateCompress(t, pred.Bytes()), []string{"FlateDecode"}, []*raw.DictObj{params})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := append(append([]byte(nil), rows[0]...), rows[1]...)
	if !bytes.Equal(got, want) {
		t.Errorf("predictor output = %x, want %x", got, want)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	p := Default(Limits{})
	got, err := p.Decode([]byte("48 65 6C6C 6F>trailing"), []string{"ASCIIHexDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "Hello" {
		t.Errorf("got %q, want Hello", got)
	}

	// Odd digit count pads with zero.
	got, err = p.Decode([]byte("414>"), []string{"ASCIIHexDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(got, []byte{0x41, 0x40}) {
		t.Errorf("got %x, want 4140", got)
	}
}

func TestRunLengthDecode(t *testing.T) {
	// 2 literal bytes "ab", then 4 copies of 'z', then EOD.
	in := []byte{0x01, 'a', 'b', 0xFD, 'z', 0x80}
	p := Default(Limits{})
	got, err := p.Decode(in, []string{"RunLengthDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(got) != "abzzzz" {
		t.Errorf("got %q, want abzzzz", got)
	}
}

func TestUnknownFilterFails(t *testing.T) {
	p := Default(Limits{})
	if _, err := p.Decode([]byte("x"), []string{"NoSuchFilter"}, nil); err == nil {
		t.Fatal("unknown filter must error")
	}
}

func TestDecompressionLimit(t *testing.T) {
	big := bytes.Repeat([]byte("A"), 64*1024)
	p := Default(Limits{MaxDecompressedSize: 1024})
	if _, err := p.Decode(flateCompress(t, big), []string{"FlateDecode"}, nil); err == nil {
		t.Fatal("oversized decompression must be rejected")
	}
}

func TestExtractFilters(t *testing.T) {
	dict := raw.Dict()
	dict.Set("Filter", raw.NameObj{Val: "FlateDecode"})
	names, params := ExtractFilters(dict)
	if len(names) != 1 || names[0] != "FlateDecode" || len(params) != 0 {
		t.Errorf("single filter: %v %v", names, params)
	}

	arr := &raw.ArrayObj{}
	arr.Append(raw.NameObj{Val: "ASCIIHexDecode"})
	arr.Append(raw.NameObj{Val: "FlateDecode"})
	parms := raw.Dict()
	parms.Set("Predictor", raw.NumberInt(12))
	parmsArr := &raw.ArrayObj{}
	parmsArr.Append(raw.NullObj{})
	parmsArr.Append(parms)

	dict2 := raw.Dict()
	dict2.Set("Filter", arr)
	dict2.Set("DecodeParms", parmsArr)
	names, params = ExtractFilters(dict2)
	if len(names) != 2 || names[0] != "ASCIIHexDecode" {
		t.Errorf("chained filters: %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1].IntFor("Predictor") != 12 {
		t.Errorf("chained params: %v", params)
	}
}
