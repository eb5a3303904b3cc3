package xref

import "github.com/wudi/pdfcore/ir/raw"

// TrailerStack is the ordered history of trailer dictionaries across
// incremental updates. The newest trailer is pushed last and is the
// current one.
type TrailerStack struct {
	trailers []*raw.DictObj
	current  int
}

func NewTrailerStack() *TrailerStack {
	return &TrailerStack{current: -1}
}

func (t *TrailerStack) Len() int { return len(t.trailers) }

// Push appends a trailer and makes it current.
func (t *TrailerStack) Push(dict *raw.DictObj) {
	t.trailers = append(t.trailers, dict)
	t.current = len(t.trailers) - 1
}

// Append adds an older trailer without making it current.
func (t *TrailerStack) Append(dict *raw.DictObj) {
	t.trailers = append([]*raw.DictObj{dict}, t.trailers...)
	t.current++
}

// Current returns the current trailer, or nil when none loaded.
func (t *TrailerStack) Current() *raw.DictObj {
	if t.current < 0 || t.current >= len(t.trailers) {
		return nil
	}
	return t.trailers[t.current]
}

// All returns the trailers oldest-first in push order.
func (t *TrailerStack) All() []*raw.DictObj { return t.trailers }

// Clear drops every trailer.
func (t *TrailerStack) Clear() {
	t.trailers = nil
	t.current = -1
}

// MergeRebuilt folds a trailer found during rebuild into the current one.
// Keys whose value is an indirect reference to a valid, located object
// are re-pointed; every other value is cloned in.
func (t *TrailerStack) MergeRebuilt(newDict *raw.DictObj, index *Index) {
	cur := t.Current()
	if cur == nil {
		t.Push(newDict)
		return
	}
	for _, key := range newDict.Keys() {
		v, _ := newDict.Get(key)
		if ref, ok := v.(raw.RefObj); ok {
			if index.IsValidObjectNumber(ref.R.Num) && index.OffsetOrZero(ref.R.Num) != 0 {
				cur.Set(key, ref)
				continue
			}
		}
		cur.Set(key, v.Clone())
	}
}
