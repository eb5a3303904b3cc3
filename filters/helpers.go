package filters

import "github.com/wudi/pdfcore/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream dictionary.
func ExtractFilters(dict *raw.DictObj) ([]string, []*raw.DictObj) {
	var names []string
	var params []*raw.DictObj
	if dict == nil {
		return names, params
	}

	filterObj, ok := dict.Get("Filter")
	if !ok {
		return names, params
	}
	switch f := filterObj.(type) {
	case raw.NameObj:
		names = append(names, f.Val)
	case *raw.ArrayObj:
		for _, item := range f.Items {
			if n, ok := item.(raw.NameObj); ok {
				names = append(names, n.Val)
			}
		}
	}
	if len(names) == 0 {
		return names, params
	}

	parmsObj, ok := dict.Get("DecodeParms")
	if !ok {
		parmsObj, ok = dict.Get("DP")
	}
	if ok {
		switch p := parmsObj.(type) {
		case *raw.DictObj:
			params = append(params, p)
		case *raw.ArrayObj:
			for _, item := range p.Items {
				d, _ := item.(*raw.DictObj)
				params = append(params, d)
			}
		}
	}
	return names, params
}
