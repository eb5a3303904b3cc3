// Command pdfinfo parses a PDF's cross-reference data and prints what it
// found: version, object index statistics, trailer references and
// encryption state.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/wudi/pdfcore/document"
	"github.com/wudi/pdfcore/parser"
	"github.com/wudi/pdfcore/xref"
)

func main() {
	password := flag.String("password", "", "password for encrypted files")
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: pdfinfo [-password pwd] file.pdf")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *password); err != nil {
		fmt.Fprintln(os.Stderr, "pdfinfo:", err)
		if errors.Is(err, parser.ErrPassword) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}

func run(path, password string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}

	p := parser.New(parser.Config{Password: password})
	doc := document.New()
	if err := p.StartParse(f, st.Size(), doc); err != nil {
		return err
	}

	fmt.Printf("version:      %d.%d\n", p.GetFileVersion()/10, p.GetFileVersion()%10)
	fmt.Printf("objects:      %d (last objnum %d)\n", countIndexed(p), p.GetLastObjNum())
	fmt.Printf("pages:        %d\n", doc.GetPageCount())
	fmt.Printf("root objnum:  %d\n", p.GetRootObjNum())
	fmt.Printf("info objnum:  %d\n", p.GetInfoObjNum())
	fmt.Printf("encrypted:    %v\n", p.IsEncrypted())
	fmt.Printf("permissions:  %#08x\n", p.GetPermissions())
	fmt.Printf("rebuilt:      %v\n", p.WasRebuilt())
	fmt.Printf("xref stream:  %v\n", p.IsXRefStream())
	for key, val := range doc.Metadata() {
		fmt.Printf("info %-9s %s\n", key+":", val)
	}
	return nil
}

func countIndexed(p *parser.Parser) int {
	n := 0
	for objnum := uint32(1); objnum <= p.GetLastObjNum(); objnum++ {
		if t := p.GetObjectType(objnum); t == xref.TypeDirect || t == xref.TypeCompressed {
			n++
		}
	}
	return n
}
