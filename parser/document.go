package parser

import "github.com/wudi/pdfcore/ir/raw"

// ObjectSource is the view of the parser a document uses to materialize
// objects on demand.
type ObjectSource interface {
	ParseIndirectObject(objnum uint32) raw.Object
	GetRootObjNum() uint32
	GetInfoObjNum() uint32
	GetLastObjNum() uint32
	IsValidObjectNumber(objnum uint32) bool
}

// Document is the document collaborator driven by the orchestrator. The
// reference implementation lives in package document.
type Document interface {
	// LoadDoc binds the document to its object source and loads the
	// catalog and page tree.
	LoadDoc(src ObjectSource)
	// LoadLinearizedDoc is LoadDoc for a linearized first pass.
	LoadLinearizedDoc(src ObjectSource, lin *LinearizedHeader)
	// GetRoot returns the catalog dictionary, or nil.
	GetRoot() *raw.DictObj
	// RootObjNum returns the catalog's object number, or 0.
	RootObjNum() uint32
	// GetPageCount returns the number of pages reachable from the
	// catalog.
	GetPageCount() int
	// GetOrParseIndirectObject returns a held object or parses it.
	GetOrParseIndirectObject(objnum uint32) raw.Object
	// ReplaceIndirectObjectIfHigherGeneration stores obj unless a held
	// object has a higher generation. It reports whether obj was stored
	// or no object was held.
	ReplaceIndirectObjectIfHigherGeneration(objnum, gen uint32, obj raw.Object) bool
}

// loaderHook adapts the parser and its document to the xref loaders.
type loaderHook struct{ p *Parser }

func (h loaderHook) IsRootObject(objnum uint32) bool {
	if h.p.doc == nil || objnum == 0 {
		return false
	}
	return h.p.doc.RootObjNum() == objnum
}

func (h loaderHook) ReplaceIndirectObjectIfHigherGeneration(objnum, gen uint32, obj raw.Object) bool {
	if h.p.doc == nil {
		return true
	}
	return h.p.doc.ReplaceIndirectObjectIfHigherGeneration(objnum, gen, obj)
}

func (h loaderHook) GetOrParseIndirectObject(objnum uint32) raw.Object {
	if h.p.doc != nil {
		return h.p.doc.GetOrParseIndirectObject(objnum)
	}
	return h.p.ParseIndirectObject(objnum)
}
