// Package document provides the reference document collaborator: an
// indirect-object holder fed by the parser, with catalog lookup and page
// counting.
package document

import (
	"github.com/wudi/pdfcore/ir/raw"
	"github.com/wudi/pdfcore/parser"
)

type heldObject struct {
	obj raw.Object
	gen uint32
}

// Doc implements parser.Document.
type Doc struct {
	src        parser.ObjectSource
	objects    map[uint32]heldObject
	root       *raw.DictObj
	rootObjNum uint32
	pageCount  int
}

func New() *Doc {
	return &Doc{objects: make(map[uint32]heldObject)}
}

// LoadDoc binds the document to its object source and resolves the
// catalog and page count.
func (d *Doc) LoadDoc(src parser.ObjectSource) {
	d.src = src
	d.root = nil
	d.rootObjNum = 0
	d.pageCount = 0

	rootNum := src.GetRootObjNum()
	if rootNum == 0 {
		return
	}
	d.root = raw.ToDict(d.GetOrParseIndirectObject(rootNum))
	if d.root == nil {
		return
	}
	d.rootObjNum = rootNum
	d.pageCount = d.countPages()
}

// LoadLinearizedDoc loads through the first-page index of a linearized
// file. The page count comes from the page tree as far as it is
// reachable; the linearization dictionary's count is used only when
// that yields 0.
func (d *Doc) LoadLinearizedDoc(src parser.ObjectSource, lin *parser.LinearizedHeader) {
	d.LoadDoc(src)
	if d.pageCount == 0 && lin != nil {
		d.pageCount = lin.PageCount
	}
}

// GetRoot returns the catalog dictionary, or nil.
func (d *Doc) GetRoot() *raw.DictObj { return d.root }

// RootObjNum returns the catalog object number, or 0.
func (d *Doc) RootObjNum() uint32 { return d.rootObjNum }

// GetPageCount returns the number of pages found below the catalog.
func (d *Doc) GetPageCount() int { return d.pageCount }

// GetInfo returns the resolved /Info dictionary, or nil.
func (d *Doc) GetInfo() *raw.DictObj {
	if d.src == nil {
		return nil
	}
	infoNum := d.src.GetInfoObjNum()
	if infoNum == 0 {
		return nil
	}
	return raw.ToDict(d.GetOrParseIndirectObject(infoNum))
}

// Metadata decodes the common /Info text fields.
func (d *Doc) Metadata() map[string]string {
	info := d.GetInfo()
	if info == nil {
		return nil
	}
	out := make(map[string]string)
	for _, key := range []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"} {
		if b := info.StringFor(key); b != nil {
			out[key] = raw.DecodeText(b)
		}
	}
	return out
}

// GetOrParseIndirectObject returns the held object for objnum, parsing
// and caching it on first access.
func (d *Doc) GetOrParseIndirectObject(objnum uint32) raw.Object {
	if objnum == 0 || d.src == nil {
		return nil
	}
	if held, ok := d.objects[objnum]; ok {
		return held.obj
	}
	obj := d.src.ParseIndirectObject(objnum)
	if obj == nil {
		return nil
	}
	d.objects[objnum] = heldObject{obj: obj}
	return obj
}

// ReplaceIndirectObjectIfHigherGeneration stores obj under objnum unless
// a held object has a strictly higher generation.
func (d *Doc) ReplaceIndirectObjectIfHigherGeneration(objnum, gen uint32, obj raw.Object) bool {
	if objnum == 0 || obj == nil {
		return false
	}
	if held, ok := d.objects[objnum]; ok && held.gen > gen {
		return false
	}
	d.objects[objnum] = heldObject{obj: obj, gen: gen}
	return true
}

// Resolve chases an indirect reference to its target; direct objects
// pass through.
func (d *Doc) Resolve(obj raw.Object) raw.Object {
	for hops := 0; hops < 32; hops++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj
		}
		obj = d.GetOrParseIndirectObject(ref.R.Num)
		if obj == nil {
			return nil
		}
	}
	return nil
}

// countPages walks the /Pages tree. A positive /Count on the root /Pages
// node is trusted as is; otherwise leaves are counted, cycle-guarded.
func (d *Doc) countPages() int {
	pagesObj, ok := d.root.Get("Pages")
	if !ok {
		return 0
	}
	pages := raw.ToDict(d.Resolve(pagesObj))
	if pages == nil {
		return 0
	}
	if count := pages.IntFor("Count"); count > 0 {
		return int(count)
	}
	seen := make(map[*raw.DictObj]bool)
	return d.countPageNode(pages, seen)
}

func (d *Doc) countPageNode(node *raw.DictObj, seen map[*raw.DictObj]bool) int {
	if node == nil || seen[node] {
		return 0
	}
	seen[node] = true
	if node.NameFor("Type") == "Page" {
		return 1
	}
	kids := node.ArrayFor("Kids")
	if kids == nil {
		return 0
	}
	total := 0
	for _, kid := range kids.Items {
		total += d.countPageNode(raw.ToDict(d.Resolve(kid)), seen)
	}
	return total
}
