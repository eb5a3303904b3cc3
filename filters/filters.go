package filters

import (
	"bytes"
	"compress/flate"
	"compress/lzw"
	"compress/zlib"
	stdascii85 "encoding/ascii85"
	"encoding/hex"
	"errors"
	"io"

	"github.com/wudi/pdfcore/ir/raw"
)

// Decoder decodes one named stream filter.
type Decoder interface {
	Name() string
	Decode(input []byte, params *raw.DictObj) ([]byte, error)
}

type Limits struct {
	MaxDecompressedSize int64
}

// Pipeline applies a /Filter chain with matching /DecodeParms.
type Pipeline struct {
	decoders []Decoder
	limits   Limits
}

func NewPipeline(decoders []Decoder, limits Limits) *Pipeline {
	return &Pipeline{decoders: decoders, limits: limits}
}

// Default returns a pipeline with every decoder this package implements.
func Default(limits Limits) *Pipeline {
	return NewPipeline([]Decoder{
		flateDecoder{},
		lzwDecoder{},
		ascii85Decoder{},
		asciiHexDecoder{},
		runLengthDecoder{},
	}, limits)
}

func (p *Pipeline) findDecoder(name string) Decoder {
	for _, d := range p.decoders {
		if d.Name() == name {
			return d
		}
	}
	return nil
}

func (p *Pipeline) Decode(input []byte, filterNames []string, params []*raw.DictObj) ([]byte, error) {
	data := input
	for i, name := range filterNames {
		if name == "Identity" || name == "Crypt" {
			continue
		}
		dec := p.findDecoder(name)
		if dec == nil {
			return nil, errors.New("unknown filter: " + name)
		}
		var param *raw.DictObj
		if i < len(params) {
			param = params[i]
		}
		out, err := dec.Decode(data, param)
		if err != nil {
			return nil, err
		}
		if p.limits.MaxDecompressedSize > 0 && int64(len(out)) > p.limits.MaxDecompressedSize {
			return nil, errors.New("decompressed size exceeds limit")
		}
		data = out
	}
	return data, nil
}

// DecodeStream decodes a stream object's raw data using its own
// /Filter and /DecodeParms entries.
func (p *Pipeline) DecodeStream(st *raw.StreamObj) ([]byte, error) {
	names, params := ExtractFilters(st.Dict)
	if len(names) == 0 {
		return st.Data, nil
	}
	return p.Decode(st.Data, names, params)
}

type flateDecoder struct{}

func (flateDecoder) Name() string { return "FlateDecode" }
func (flateDecoder) Decode(in []byte, params *raw.DictObj) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	var out bytes.Buffer
	if err == nil {
		_, err = io.Copy(&out, zr)
		zr.Close()
	}
	if err != nil {
		// Some producers emit raw deflate without the zlib wrapper.
		out.Reset()
		fr := flate.NewReader(bytes.NewReader(in))
		if _, err2 := io.Copy(&out, fr); err2 != nil {
			fr.Close()
			return nil, err
		}
		fr.Close()
	}
	return applyPredictor(out.Bytes(), params)
}

type lzwDecoder struct{}

func (lzwDecoder) Name() string { return "LZWDecode" }
func (lzwDecoder) Decode(in []byte, params *raw.DictObj) ([]byte, error) {
	early := int64(1)
	if params != nil {
		if o, ok := params.Get("EarlyChange"); ok {
			if n, ok := o.(raw.Number); ok {
				early = n.Int()
			}
		}
	}
	if early != 0 {
		out, err := lzwEarlyChangeDecode(in)
		if err != nil {
			return nil, err
		}
		return applyPredictor(out, params)
	}
	r := lzw.NewReader(bytes.NewReader(in), lzw.MSB, 8)
	defer r.Close()
	var out bytes.Buffer
	if _, err := io.Copy(&out, r); err != nil && out.Len() == 0 {
		return nil, err
	}
	return applyPredictor(out.Bytes(), params)
}

type ascii85Decoder struct{}

func (ascii85Decoder) Name() string { return "ASCII85Decode" }
func (ascii85Decoder) Decode(in []byte, params *raw.DictObj) ([]byte, error) {
	trimmed := bytes.TrimSpace(in)
	if bytes.HasPrefix(trimmed, []byte("<~")) {
		trimmed = trimmed[2:]
	}
	if i := bytes.Index(trimmed, []byte("~>")); i >= 0 {
		trimmed = trimmed[:i]
	}
	out := make([]byte, len(trimmed)*2)
	n, _, err := stdascii85.Decode(out, trimmed, true)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

type asciiHexDecoder struct{}

func (asciiHexDecoder) Name() string { return "ASCIIHexDecode" }
func (asciiHexDecoder) Decode(in []byte, params *raw.DictObj) ([]byte, error) {
	var compact []byte
	for _, c := range in {
		switch {
		case c == '>':
			goto done
		case isHexDigit(c):
			compact = append(compact, c)
		case isSpace(c):
		default:
			return nil, errors.New("bad character in ASCIIHex data")
		}
	}
done:
	if len(compact)%2 == 1 {
		compact = append(compact, '0')
	}
	result := make([]byte, hex.DecodedLen(len(compact)))
	n, err := hex.Decode(result, compact)
	if err != nil {
		return nil, err
	}
	return result[:n], nil
}

type runLengthDecoder struct{}

func (runLengthDecoder) Name() string { return "RunLengthDecode" }
func (runLengthDecoder) Decode(in []byte, params *raw.DictObj) ([]byte, error) {
	var out bytes.Buffer
	for i := 0; i < len(in); {
		l := in[i]
		i++
		if l == 128 {
			break
		}
		if l < 128 {
			n := int(l) + 1
			if i+n > len(in) {
				return nil, errors.New("truncated run-length data")
			}
			out.Write(in[i : i+n])
			i += n
		} else {
			if i >= len(in) {
				return nil, errors.New("truncated run-length data")
			}
			for n := 257 - int(l); n > 0; n-- {
				out.WriteByte(in[i])
			}
			i++
		}
	}
	return out.Bytes(), nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isSpace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

// lzwEarlyChangeDecode implements the PDF variant of LZW where the code
// width increases one code early. compress/lzw only implements the
// late-change (GIF/TIFF) variant.
func lzwEarlyChangeDecode(in []byte) ([]byte, error) {
	const (
		clearCode = 256
		eodCode   = 257
	)
	var out bytes.Buffer
	table := make([][]byte, 258, 4096)
	for i := 0; i < 256; i++ {
		table[i] = []byte{byte(i)}
	}
	width := uint(9)
	var prev []byte
	var acc, nbits uint
	for _, b := range in {
		acc = acc<<8 | uint(b)
		nbits += 8
		for nbits >= width {
			code := (acc >> (nbits - width)) & (1<<width - 1)
			nbits -= width
			switch {
			case code == clearCode:
				table = table[:258]
				width = 9
				prev = nil
			case code == eodCode:
				return out.Bytes(), nil
			default:
				var entry []byte
				if int(code) < len(table) {
					entry = table[code]
				} else if int(code) == len(table) && prev != nil {
					entry = append(append([]byte(nil), prev...), prev[0])
				} else {
					return nil, errors.New("bad LZW code")
				}
				out.Write(entry)
				if prev != nil {
					ne := append(append([]byte(nil), prev...), entry[0])
					table = append(table, ne)
				}
				prev = entry
				// Early change: bump width when the next code would not fit.
				if len(table)+1 >= 1<<width && width < 12 {
					width++
				}
			}
		}
	}
	return out.Bytes(), nil
}
