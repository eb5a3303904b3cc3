package document_test

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/wudi/pdfcore/document"
	"github.com/wudi/pdfcore/parser"
)

func buildPDF(catalog string, objs map[uint32]string) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.6\n")
	offsets := make(map[uint32]int64)

	write := func(num uint32, body string) {
		offsets[num] = int64(buf.Len())
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}
	write(1, catalog)
	max := uint32(1)
	for num := uint32(2); ; num++ {
		body, ok := objs[num]
		if !ok {
			break
		}
		write(num, body)
		max = num
	}

	xrefOff := int64(buf.Len())
	fmt.Fprintf(buf, "xref\n0 %d\n0000000000 65535 f\r\n", max+1)
	for i := uint32(1); i <= max; i++ {
		fmt.Fprintf(buf, "%010d 00000 n\r\n", offsets[i])
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R /Info %d 0 R >>\n", max+1, max)
	fmt.Fprintf(buf, "startxref\n%d\n%%%%EOF\n", xrefOff)
	return buf.Bytes()
}

func load(t *testing.T, data []byte) (*parser.Parser, *document.Doc) {
	t.Helper()
	p := parser.New(parser.Config{})
	doc := document.New()
	if err := p.StartParse(bytes.NewReader(data), int64(len(data)), doc); err != nil {
		t.Fatalf("StartParse: %v", err)
	}
	return p, doc
}

func TestPageCountFromCountEntry(t *testing.T) {
	data := buildPDF("<< /Type /Catalog /Pages 2 0 R >>", map[uint32]string{
		2: "<< /Type /Pages /Kids [3 0 R] /Count 7 >>",
		3: "<< /Type /Page /Parent 2 0 R >>",
		4: "<< /Producer (unit test) >>",
	})
	_, doc := load(t, data)
	if got := doc.GetPageCount(); got != 7 {
		t.Errorf("page count = %d, want the declared /Count 7", got)
	}
}

func TestPageCountWalksKidsWithoutCount(t *testing.T) {
	data := buildPDF("<< /Type /Catalog /Pages 2 0 R >>", map[uint32]string{
		2: "<< /Type /Pages /Kids [3 0 R 4 0 R] >>",
		3: "<< /Type /Pages /Kids [5 0 R] >>",
		4: "<< /Type /Page >>",
		5: "<< /Type /Page >>",
		6: "<< /Producer (unit test) >>",
	})
	_, doc := load(t, data)
	if got := doc.GetPageCount(); got != 2 {
		t.Errorf("page count = %d, want 2 leaves", got)
	}
}

func TestPageTreeCycleDoesNotHang(t *testing.T) {
	data := buildPDF("<< /Type /Catalog /Pages 2 0 R >>", map[uint32]string{
		2: "<< /Type /Pages /Kids [3 0 R] >>",
		3: "<< /Type /Pages /Kids [2 0 R 4 0 R] >>",
		4: "<< /Type /Page >>",
		5: "<< /Producer (unit test) >>",
	})
	_, doc := load(t, data)
	if got := doc.GetPageCount(); got != 1 {
		t.Errorf("page count = %d, want 1 despite the cycle", got)
	}
}

func TestMetadataDecoding(t *testing.T) {
	data := buildPDF("<< /Type /Catalog /Pages 2 0 R >>", map[uint32]string{
		2: "<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		3: "<< /Type /Page >>",
		4: "<< /Title (plain title) /Author <FEFF00412022> >>",
	})
	p, doc := load(t, data)
	if got := p.GetInfoObjNum(); got != 4 {
		t.Fatalf("info objnum = %d, want 4", got)
	}
	md := doc.Metadata()
	if md["Title"] != "plain title" {
		t.Errorf("title = %q", md["Title"])
	}
	// UTF-16BE with a PDFDoc-impossible rune decodes through the BOM path.
	if md["Author"] != "A•" {
		t.Errorf("author = %q, want %q", md["Author"], "A•")
	}
}

func TestGetOrParseCachesObjects(t *testing.T) {
	data := buildPDF("<< /Type /Catalog /Pages 2 0 R >>", map[uint32]string{
		2: "<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		3: "<< /Type /Page >>",
		4: "<< /Producer (unit test) >>",
	})
	_, doc := load(t, data)
	first := doc.GetOrParseIndirectObject(2)
	second := doc.GetOrParseIndirectObject(2)
	if first == nil || first != second {
		t.Error("repeated fetches should return the cached object")
	}
}
