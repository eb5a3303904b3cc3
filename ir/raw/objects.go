package raw

// Concrete implementations for raw objects.

// Name object
type NameObj struct{ Val string }

func (n NameObj) Type() string  { return "name" }
func (n NameObj) Clone() Object { return n }
func (n NameObj) Value() string { return n.Val }

// Number object
type NumberObj struct {
	I     int64
	F     float64
	IsInt bool
}

func (n NumberObj) Type() string  { return "number" }
func (n NumberObj) Clone() Object { return n }
func (n NumberObj) Int() int64 {
	if n.IsInt {
		return n.I
	}
	return int64(n.F)
}
func (n NumberObj) Float() float64 {
	if n.IsInt {
		return float64(n.I)
	}
	return n.F
}
func (n NumberObj) IsInteger() bool { return n.IsInt }

// Boolean object
type BoolObj struct{ V bool }

func (b BoolObj) Type() string  { return "boolean" }
func (b BoolObj) Clone() Object { return b }
func (b BoolObj) Value() bool   { return b.V }

// Null object
type NullObj struct{}

func (n NullObj) Type() string  { return "null" }
func (n NullObj) Clone() Object { return n }

// String object, literal or hex.
type StringObj struct {
	Bytes []byte
	Hex   bool
}

func (s StringObj) Type() string { return "string" }
func (s StringObj) Clone() Object {
	return StringObj{Bytes: append([]byte(nil), s.Bytes...), Hex: s.Hex}
}
func (s StringObj) Value() []byte { return s.Bytes }
func (s StringObj) IsHex() bool   { return s.Hex }

// Array object
type ArrayObj struct{ Items []Object }

func (a *ArrayObj) Type() string { return "array" }
func (a *ArrayObj) Clone() Object {
	out := &ArrayObj{Items: make([]Object, len(a.Items))}
	for i, it := range a.Items {
		out.Items[i] = it.Clone()
	}
	return out
}
func (a *ArrayObj) Get(i int) (Object, bool) {
	if i < 0 || i >= len(a.Items) {
		return nil, false
	}
	return a.Items[i], true
}
func (a *ArrayObj) Len() int        { return len(a.Items) }
func (a *ArrayObj) Append(o Object) { a.Items = append(a.Items, o) }

// IntAt returns the integer at index i, or 0 when absent or non-numeric.
func (a *ArrayObj) IntAt(i int) int64 {
	o, ok := a.Get(i)
	if !ok {
		return 0
	}
	n, ok := o.(Number)
	if !ok {
		return 0
	}
	return n.Int()
}

// Dictionary object
type DictObj struct{ KV map[string]Object }

func (d *DictObj) Type() string { return "dict" }
func (d *DictObj) Clone() Object {
	out := Dict()
	for k, v := range d.KV {
		out.KV[k] = v.Clone()
	}
	return out
}
func (d *DictObj) Get(key string) (Object, bool) { o, ok := d.KV[key]; return o, ok }
func (d *DictObj) Set(key string, value Object) {
	if d.KV == nil {
		d.KV = make(map[string]Object)
	}
	d.KV[key] = value
}
func (d *DictObj) Delete(key string) { delete(d.KV, key) }
func (d *DictObj) Keys() []string {
	keys := make([]string, 0, len(d.KV))
	for k := range d.KV {
		keys = append(keys, k)
	}
	return keys
}
func (d *DictObj) Len() int { return len(d.KV) }

// IntFor returns the integer value for key, or 0 when absent or non-numeric.
// Indirect values are not chased.
func (d *DictObj) IntFor(key string) int64 {
	o, ok := d.Get(key)
	if !ok {
		return 0
	}
	n, ok := o.(Number)
	if !ok {
		return 0
	}
	return n.Int()
}

// NameFor returns the name value for key, or "" when absent.
func (d *DictObj) NameFor(key string) string {
	o, ok := d.Get(key)
	if !ok {
		return ""
	}
	n, ok := o.(NameObj)
	if !ok {
		return ""
	}
	return n.Val
}

// StringFor returns the string bytes for key, or nil.
func (d *DictObj) StringFor(key string) []byte {
	o, ok := d.Get(key)
	if !ok {
		return nil
	}
	s, ok := o.(StringObj)
	if !ok {
		return nil
	}
	return s.Bytes
}

// BoolFor returns the boolean for key, with a default when absent.
func (d *DictObj) BoolFor(key string, def bool) bool {
	o, ok := d.Get(key)
	if !ok {
		return def
	}
	b, ok := o.(BoolObj)
	if !ok {
		return def
	}
	return b.V
}

// DictFor returns the dictionary value for key, or nil.
func (d *DictObj) DictFor(key string) *DictObj {
	o, ok := d.Get(key)
	if !ok {
		return nil
	}
	dd, _ := o.(*DictObj)
	return dd
}

// ArrayFor returns the array value for key, or nil.
func (d *DictObj) ArrayFor(key string) *ArrayObj {
	o, ok := d.Get(key)
	if !ok {
		return nil
	}
	a, _ := o.(*ArrayObj)
	return a
}

// RefNumFor returns the referenced object number for key, or 0 when the
// value is not an indirect reference.
func (d *DictObj) RefNumFor(key string) uint32 {
	o, ok := d.Get(key)
	if !ok {
		return 0
	}
	r, ok := o.(RefObj)
	if !ok {
		return 0
	}
	return r.R.Num
}

// Stream object
type StreamObj struct {
	Dict *DictObj
	Data []byte
}

func (s *StreamObj) Type() string { return "stream" }
func (s *StreamObj) Clone() Object {
	return &StreamObj{Dict: s.Dict.Clone().(*DictObj), Data: append([]byte(nil), s.Data...)}
}
func (s *StreamObj) Dictionary() Dictionary { return s.Dict }
func (s *StreamObj) RawData() []byte        { return s.Data }
func (s *StreamObj) Length() int64          { return int64(len(s.Data)) }

// Reference object
type RefObj struct{ R ObjectRef }

func (r RefObj) Type() string   { return "ref" }
func (r RefObj) Clone() Object  { return r }
func (r RefObj) Ref() ObjectRef { return r.R }

// Keyword object carries a bare keyword the object parser could not type.
// Strict parsing rejects it; lenient callers may inspect Word.
type KeywordObj struct{ Word string }

func (k KeywordObj) Type() string  { return "keyword" }
func (k KeywordObj) Clone() Object { return k }

// Helpers
func NumberInt(i int64) NumberObj { return NumberObj{I: i, IsInt: true} }
func Dict() *DictObj              { return &DictObj{KV: make(map[string]Object)} }
func NewStream(dict *DictObj, data []byte) *StreamObj {
	return &StreamObj{Dict: dict, Data: data}
}
func Ref(num, gen uint32) RefObj { return RefObj{R: ObjectRef{Num: num, Gen: gen}} }

// ToDict unwraps an object to a dictionary: streams yield their dict.
func ToDict(o Object) *DictObj {
	switch v := o.(type) {
	case *DictObj:
		return v
	case *StreamObj:
		return v.Dict
	default:
		return nil
	}
}

// ToRefNum returns the object number when o is a reference, else 0.
func ToRefNum(o Object) uint32 {
	r, ok := o.(RefObj)
	if !ok {
		return 0
	}
	return r.R.Num
}
