package scanner

import (
	"bytes"
	"strconv"

	"github.com/wudi/pdfcore/ir/raw"
)

// GetObject parses one direct object at the cursor. objnum and gen
// identify the enclosing indirect object for decryption. Malformed
// nesting is tolerated where a sensible value can still be produced.
func (s *Scanner) GetObject(objnum, gen uint32, decrypt bool) raw.Object {
	return s.getObject(objnum, gen, decrypt, false, 0)
}

// GetObjectStrict parses like GetObject but fails on malformed nesting
// instead of guessing.
func (s *Scanner) GetObjectStrict(objnum, gen uint32, decrypt bool) raw.Object {
	return s.getObject(objnum, gen, decrypt, true, 0)
}

func (s *Scanner) getObject(objnum, gen uint32, decrypt, strict bool, depth int) raw.Object {
	if s.limits.MaxNestingDepth > 0 && depth > s.limits.MaxNestingDepth {
		return nil
	}
	word, isNumber := s.GetNextWord()
	if len(word) == 0 {
		return nil
	}

	if isNumber {
		// Possible "N G R" reference.
		saved := s.pos
		w2, isNum2 := s.GetNextWord()
		if isNum2 && len(w2) > 0 {
			w3, _ := s.GetNextWord()
			if string(w3) == "R" {
				return raw.Ref(parseUint32(word), parseUint32(w2))
			}
		}
		s.pos = saved
		return parseNumber(word)
	}

	switch {
	case string(word) == "true":
		return raw.BoolObj{V: true}
	case string(word) == "false":
		return raw.BoolObj{V: false}
	case string(word) == "null":
		return raw.NullObj{}
	case word[0] == '/':
		return raw.NameObj{Val: decodeName(word[1:])}
	case word[0] == '(':
		str, ok := s.readLiteralString()
		if !ok && strict {
			return nil
		}
		return raw.StringObj{Bytes: s.maybeDecryptString(objnum, gen, decrypt, str)}
	case string(word) == "<<":
		return s.readDict(objnum, gen, decrypt, strict, depth)
	case word[0] == '<':
		return raw.StringObj{
			Bytes: s.maybeDecryptString(objnum, gen, decrypt, decodeHexString(word)),
			Hex:   true,
		}
	case string(word) == "[":
		arr := &raw.ArrayObj{}
		for {
			saved := s.pos
			w, _ := s.GetNextWord()
			if len(w) == 0 {
				if strict {
					return nil
				}
				break
			}
			if string(w) == "]" {
				break
			}
			s.pos = saved
			item := s.getObject(objnum, gen, decrypt, strict, depth+1)
			if item == nil {
				if strict {
					return nil
				}
				// Skip the unparseable word and carry on.
				s.GetNextWord()
				continue
			}
			arr.Append(item)
		}
		return arr
	}
	if strict {
		return nil
	}
	return raw.KeywordObj{Word: string(word)}
}

func (s *Scanner) readDict(objnum, gen uint32, decrypt, strict bool, depth int) raw.Object {
	dict := raw.Dict()
	for {
		word, _ := s.GetNextWord()
		if len(word) == 0 {
			if strict {
				return nil
			}
			break
		}
		if string(word) == ">>" {
			break
		}
		if word[0] != '/' {
			if strict {
				return nil
			}
			continue
		}
		key := decodeName(word[1:])
		value := s.getObject(objnum, gen, decrypt, strict, depth+1)
		if value == nil {
			if strict {
				return nil
			}
			continue
		}
		if _, isKeyword := value.(raw.KeywordObj); isKeyword {
			continue
		}
		dict.Set(key, value)
	}

	// A following stream keyword turns the dictionary into a stream.
	saved := s.pos
	word, _ := s.GetNextWord()
	if string(word) != "stream" {
		s.pos = saved
		return dict
	}
	return s.readStream(dict, objnum, gen, decrypt)
}

// readStream consumes stream payload bytes after the stream keyword. The
// declared /Length wins when the data it ends at is followed by
// endstream or endobj; otherwise the payload is bounded by searching for the
// endstream keyword.
func (s *Scanner) readStream(dict *raw.DictObj, objnum, gen uint32, decrypt bool) raw.Object {
	// Single EOL after the stream keyword, CR, LF or CRLF.
	if c, ok := s.GetCharAt(s.pos); ok && c == '\r' {
		s.pos++
	}
	if c, ok := s.GetCharAt(s.pos); ok && c == '\n' {
		s.pos++
	}
	dataStart := s.pos

	length := int64(-1)
	if lo, ok := dict.Get("Length"); ok {
		if n, ok := lo.(raw.Number); ok {
			length = n.Int()
		}
	}
	if s.limits.MaxStreamLength > 0 && length > s.limits.MaxStreamLength {
		length = -1
	}

	dataEnd := int64(-1)
	if length >= 0 && dataStart+length+s.headerOffset <= s.fileLen {
		// Validate that endstream follows the declared length.
		s.SetPos(dataStart + length)
		if kw := s.GetKeyword(); kw == "endstream" || kw == "endobj" {
			dataEnd = dataStart + length
		}
	}
	if dataEnd < 0 {
		s.SetPos(dataStart)
		if s.FindTag("endstream") < 0 {
			s.SetPos(s.fileLen - s.headerOffset)
			dataEnd = s.pos
		} else {
			dataEnd = s.pos - int64(len("endstream"))
			// Trim the EOL that separates data from the keyword.
			if c, ok := s.GetCharAt(dataEnd - 1); ok && c == '\n' {
				dataEnd--
			}
			if c, ok := s.GetCharAt(dataEnd - 1); ok && c == '\r' {
				dataEnd--
			}
		}
	}

	data := make([]byte, dataEnd-dataStart)
	s.SetPos(dataStart)
	if len(data) > 0 && !s.ReadBlock(data) {
		data = nil
	}
	s.SetPos(dataEnd)
	if kw := s.GetKeyword(); kw != "endstream" {
		s.SetPos(dataEnd)
	}

	if decrypt && s.crypto != nil && !s.bypassed(objnum) {
		data = s.crypto.DecryptStream(objnum, gen, data)
	}
	dict.Set("Length", raw.NumberInt(int64(len(data))))
	return raw.NewStream(dict, data)
}

func (s *Scanner) bypassed(objnum uint32) bool {
	if objnum == 0 {
		return false
	}
	return objnum == s.metadataObjNum || objnum == s.encryptObjNum
}

func (s *Scanner) maybeDecryptString(objnum, gen uint32, decrypt bool, b []byte) []byte {
	if decrypt && s.crypto != nil && !s.bypassed(objnum) {
		return s.crypto.DecryptString(objnum, gen, b)
	}
	return b
}

// readLiteralString reads a ( ) string, cursor positioned just after the
// opening parenthesis. Escapes and nested parentheses are processed.
func (s *Scanner) readLiteralString() ([]byte, bool) {
	var buf bytes.Buffer
	depth := 1
	for {
		c, ok := s.GetNextChar()
		if !ok {
			return buf.Bytes(), false
		}
		switch c {
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return buf.Bytes(), true
			}
			buf.WriteByte(c)
		case '\\':
			esc, ok := s.GetNextChar()
			if !ok {
				return buf.Bytes(), false
			}
			switch {
			case esc == 'n':
				buf.WriteByte('\n')
			case esc == 'r':
				buf.WriteByte('\r')
			case esc == 't':
				buf.WriteByte('\t')
			case esc == 'b':
				buf.WriteByte('\b')
			case esc == 'f':
				buf.WriteByte('\f')
			case esc == '\r':
				if c2, ok := s.GetCharAt(s.pos); ok && c2 == '\n' {
					s.pos++
				}
			case esc == '\n':
			case esc >= '0' && esc <= '7':
				val := int(esc - '0')
				for k := 0; k < 2; k++ {
					d, ok := s.GetCharAt(s.pos)
					if !ok || d < '0' || d > '7' {
						break
					}
					val = val<<3 + int(d-'0')
					s.pos++
				}
				buf.WriteByte(byte(val))
			default:
				buf.WriteByte(esc)
			}
		default:
			buf.WriteByte(c)
		}
		if s.limits.MaxStringLength > 0 && int64(buf.Len()) > s.limits.MaxStringLength {
			return buf.Bytes(), false
		}
	}
}

// decodeHexString decodes a <...> word (angle brackets included).
func decodeHexString(word []byte) []byte {
	var out []byte
	var hi byte
	haveHi := false
	for _, c := range word {
		var v byte
		switch {
		case c >= '0' && c <= '9':
			v = c - '0'
		case c >= 'a' && c <= 'f':
			v = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			v = c - 'A' + 10
		default:
			continue
		}
		if haveHi {
			out = append(out, hi<<4|v)
			haveHi = false
		} else {
			hi = v
			haveHi = true
		}
	}
	if haveHi {
		out = append(out, hi<<4)
	}
	return out
}

// decodeName resolves #xx escapes in a name body.
func decodeName(body []byte) string {
	if !bytes.ContainsRune(body, '#') {
		return string(body)
	}
	var out []byte
	for i := 0; i < len(body); i++ {
		if body[i] == '#' && i+2 < len(body) {
			if v, err := strconv.ParseUint(string(body[i+1:i+3]), 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, body[i])
	}
	return string(out)
}

func parseNumber(word []byte) raw.Object {
	if bytes.ContainsRune(word, '.') {
		f, err := strconv.ParseFloat(string(word), 64)
		if err != nil {
			return raw.NumberObj{}
		}
		return raw.NumberObj{F: f}
	}
	return raw.NumberInt(parseInt64(word))
}

// ParseIndirectObjectAt parses "N G obj <body> endobj" at pos. When
// objnum is nonzero a header mismatch fails the parse. The cursor is
// restored afterwards.
func (s *Scanner) ParseIndirectObjectAt(pos int64, objnum uint32) (raw.Object, uint32, uint32, bool) {
	saved := s.pos
	defer func() { s.pos = saved }()

	s.SetPos(pos)
	word, isNumber := s.GetNextWord()
	if !isNumber || len(word) == 0 {
		return nil, 0, 0, false
	}
	gotNum := parseUint32(word)
	if objnum != 0 && gotNum != objnum {
		return nil, 0, 0, false
	}
	word, isNumber = s.GetNextWord()
	if !isNumber {
		return nil, 0, 0, false
	}
	gotGen := parseUint32(word)
	if s.GetKeyword() != "obj" {
		return nil, 0, 0, false
	}
	obj := s.getObject(gotNum, gotGen, true, false, 0)
	if obj == nil {
		return nil, 0, 0, false
	}
	s.GetKeyword() // optional endobj
	return obj, gotNum, gotGen, true
}

// ParseIndirectObjectAtStrict is the strict variant used by the
// rebuilder. It additionally reports the position one past the object
// body, or past its endobj keyword when one follows. The cursor is
// restored afterwards.
func (s *Scanner) ParseIndirectObjectAtStrict(pos int64, objnum uint32) (raw.Object, int64, bool) {
	saved := s.pos
	defer func() { s.pos = saved }()

	s.SetPos(pos)
	word, isNumber := s.GetNextWord()
	if !isNumber || len(word) == 0 {
		return nil, 0, false
	}
	gotNum := parseUint32(word)
	if objnum != 0 && gotNum != objnum {
		return nil, 0, false
	}
	word, isNumber = s.GetNextWord()
	if !isNumber {
		return nil, 0, false
	}
	gotGen := parseUint32(word)
	if s.GetKeyword() != "obj" {
		return nil, 0, false
	}
	obj := s.getObject(gotNum, gotGen, true, true, 0)
	end := s.pos
	if obj == nil {
		return nil, end, false
	}
	if kwPos := s.pos; s.GetKeyword() == "endobj" {
		end = s.pos
	} else {
		s.SetPos(kwPos)
		end = kwPos
	}
	return obj, end, true
}
