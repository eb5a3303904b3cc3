package scanner

import (
	"io"

	"github.com/wudi/pdfcore/security"
)

// Scanner is the low-level syntax parser: a cursor over the PDF byte
// stream with word, keyword and object reading primitives. All positions
// are relative to the header offset (bytes of junk before %PDF- count
// toward neither positions nor searches), matching the offsets stored in
// cross-reference tables.
type Scanner struct {
	r            io.ReaderAt
	fileLen      int64 // absolute file length
	headerOffset int64
	pos          int64 // relative to headerOffset
	limits       security.Limits

	crypto         *security.CryptoHandler
	metadataObjNum uint32
	encryptObjNum  uint32

	win    []byte // read-through cache window
	winOff int64  // relative offset of win[0]
}

const windowSize = 4096

// New initializes a scanner over r. size is the total byte length of the
// stream; headerOffset the junk prefix before the %PDF- header.
func New(r io.ReaderAt, size, headerOffset int64) *Scanner {
	return &Scanner{
		r:            r,
		fileLen:      size,
		headerOffset: headerOffset,
		limits:       security.DefaultLimits(),
	}
}

// SetLimits replaces the default parse limits.
func (s *Scanner) SetLimits(l security.Limits) { s.limits = l }

// SetEncrypt installs the crypto handler applied to strings and streams.
func (s *Scanner) SetEncrypt(ch *security.CryptoHandler) { s.crypto = ch }

// Crypto returns the installed crypto handler, if any.
func (s *Scanner) Crypto() *security.CryptoHandler { return s.crypto }

// SetMetadataObjNum marks an object whose payload must not be decrypted.
func (s *Scanner) SetMetadataObjNum(objnum uint32) { s.metadataObjNum = objnum }

// MetadataObjNum returns the current metadata bypass object number.
func (s *Scanner) MetadataObjNum() uint32 { return s.metadataObjNum }

// SetEncryptObjNum marks the encryption dictionary's object number; it is
// parsed before any key exists, so it always bypasses decryption.
func (s *Scanner) SetEncryptObjNum(objnum uint32) { s.encryptObjNum = objnum }

// FileLen returns the absolute length of the underlying stream.
func (s *Scanner) FileLen() int64 { return s.fileLen }

// HeaderOffset returns the junk prefix length.
func (s *Scanner) HeaderOffset() int64 { return s.headerOffset }

// Pos returns the cursor, relative to the header offset.
func (s *Scanner) Pos() int64 { return s.pos }

// SetPos moves the cursor. Positions past EOF are clamped at EOF.
func (s *Scanner) SetPos(pos int64) {
	if pos < 0 {
		pos = 0
	}
	if max := s.fileLen - s.headerOffset; pos > max {
		pos = max
	}
	s.pos = pos
}

// GetCharAt reads the byte at pos without moving the cursor.
func (s *Scanner) GetCharAt(pos int64) (byte, bool) {
	if pos < 0 || pos+s.headerOffset >= s.fileLen {
		return 0, false
	}
	if pos < s.winOff || pos >= s.winOff+int64(len(s.win)) {
		if !s.fill(pos) {
			return 0, false
		}
	}
	return s.win[pos-s.winOff], true
}

func (s *Scanner) fill(pos int64) bool {
	n := int64(windowSize)
	if rem := s.fileLen - s.headerOffset - pos; rem < n {
		n = rem
	}
	if n <= 0 {
		return false
	}
	buf := make([]byte, n)
	got, err := s.r.ReadAt(buf, pos+s.headerOffset)
	if got <= 0 && err != nil {
		return false
	}
	s.win = buf[:got]
	s.winOff = pos
	return true
}

// GetNextChar reads the byte at the cursor and advances.
func (s *Scanner) GetNextChar() (byte, bool) {
	c, ok := s.GetCharAt(s.pos)
	if ok {
		s.pos++
	}
	return c, ok
}

// ReadBlockAt reads up to len(p) bytes at pos without moving the cursor,
// returning the byte count.
func (s *Scanner) ReadBlockAt(p []byte, pos int64) int {
	if pos < 0 || pos+s.headerOffset >= s.fileLen {
		return 0
	}
	if max := s.fileLen - s.headerOffset - pos; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := s.r.ReadAt(p, pos+s.headerOffset)
	if n <= 0 && err != nil {
		return 0
	}
	return n
}

// ReadBlock fills p from the cursor, advancing it. Short reads fail.
func (s *Scanner) ReadBlock(p []byte) bool {
	if s.pos+int64(len(p))+s.headerOffset > s.fileLen {
		return false
	}
	n, err := s.r.ReadAt(p, s.pos+s.headerOffset)
	if n < len(p) && err != nil {
		return false
	}
	s.pos += int64(len(p))
	return true
}

func isWhitespace(c byte) bool {
	switch c {
	case 0x00, 0x09, 0x0A, 0x0C, 0x0D, 0x20:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isNumberChar(c byte) bool {
	return isDigit(c) || c == '+' || c == '-' || c == '.'
}

// ToNextWord skips whitespace and comments, leaving the cursor on the
// first byte of the next word.
func (s *Scanner) ToNextWord() {
	for {
		c, ok := s.GetCharAt(s.pos)
		if !ok {
			return
		}
		if isWhitespace(c) {
			s.pos++
			continue
		}
		if c == '%' {
			for {
				c, ok = s.GetCharAt(s.pos)
				if !ok {
					return
				}
				s.pos++
				if c == '\r' || c == '\n' {
					break
				}
			}
			continue
		}
		return
	}
}

// GetNextWord returns the next syntactic word. Delimiter pairs << and >>
// and a whole hex string <...> are single words; other delimiters are
// single-byte words; names include the leading slash. isNumber reports whether every byte is numeric.
func (s *Scanner) GetNextWord() (word []byte, isNumber bool) {
	s.ToNextWord()
	c, ok := s.GetCharAt(s.pos)
	if !ok {
		return nil, false
	}
	start := s.pos
	if isDelimiter(c) {
		s.pos++
		switch c {
		case '<':
			if c2, ok := s.GetCharAt(s.pos); ok && c2 == '<' {
				s.pos++
				return []byte("<<"), false
			}
			// Hex string: the whole <...> is one word.
			for {
				c2, ok := s.GetCharAt(s.pos)
				if !ok {
					break
				}
				s.pos++
				if c2 == '>' {
					break
				}
			}
			return s.slice(start, s.pos), false
		case '>':
			if c2, ok := s.GetCharAt(s.pos); ok && c2 == '>' {
				s.pos++
				return []byte(">>"), false
			}
		case '/':
			for {
				c2, ok := s.GetCharAt(s.pos)
				if !ok || isWhitespace(c2) || isDelimiter(c2) {
					break
				}
				s.pos++
			}
			return s.slice(start, s.pos), false
		}
		return s.slice(start, s.pos), false
	}
	isNumber = true
	for {
		c2, ok := s.GetCharAt(s.pos)
		if !ok || isWhitespace(c2) || isDelimiter(c2) {
			break
		}
		if !isNumberChar(c2) {
			isNumber = false
		}
		s.pos++
	}
	return s.slice(start, s.pos), isNumber
}

func (s *Scanner) slice(from, to int64) []byte {
	out := make([]byte, 0, to-from)
	for p := from; p < to; p++ {
		c, ok := s.GetCharAt(p)
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

// GetKeyword returns the next word as a string.
func (s *Scanner) GetKeyword() string {
	w, _ := s.GetNextWord()
	return string(w)
}

// GetDirectNum returns the next word parsed as an unsigned integer, or 0.
func (s *Scanner) GetDirectNum() uint32 {
	w, isNum := s.GetNextWord()
	if !isNum {
		return 0
	}
	return parseUint32(w)
}

func parseUint32(w []byte) uint32 {
	var n uint64
	for _, c := range w {
		if !isDigit(c) {
			return 0
		}
		n = n*10 + uint64(c-'0')
		if n > 0xFFFFFFFF {
			return 0xFFFFFFFF
		}
	}
	return uint32(n)
}

func parseInt64(w []byte) int64 {
	var n int64
	neg := false
	for i, c := range w {
		if i == 0 && (c == '+' || c == '-') {
			neg = c == '-'
			continue
		}
		if !isDigit(c) {
			break
		}
		n = n*10 + int64(c-'0')
	}
	if neg {
		return -n
	}
	return n
}

// BackwardsSearchToWord scans backwards from the cursor for word bounded
// by whitespace or delimiters, within limit bytes (0 = unbounded). On
// success the cursor is left at the start of the word.
func (s *Scanner) BackwardsSearchToWord(word string, limit int64) bool {
	taglen := int64(len(word))
	if taglen == 0 {
		return false
	}
	pos := s.pos
	for {
		if pos < taglen-1 {
			return false
		}
		if limit > 0 && s.pos-pos >= limit {
			return false
		}
		start := pos - taglen + 1
		if s.matchAt(start, word) && s.isWordBoundary(start, taglen) {
			s.pos = start
			return true
		}
		pos--
	}
}

// FindTag searches forward from the cursor for tag, leaving the cursor
// just past it. It returns the byte distance from the search start to the
// tag start, or -1.
func (s *Scanner) FindTag(tag string) int64 {
	taglen := int64(len(tag))
	if taglen == 0 {
		return -1
	}
	start := s.pos
	for pos := start; pos+taglen+s.headerOffset <= s.fileLen; pos++ {
		if s.matchAt(pos, tag) {
			s.pos = pos + taglen
			return pos - start
		}
	}
	return -1
}

func (s *Scanner) matchAt(pos int64, word string) bool {
	for i := 0; i < len(word); i++ {
		c, ok := s.GetCharAt(pos + int64(i))
		if !ok || c != word[i] {
			return false
		}
	}
	return true
}

func (s *Scanner) isWordBoundary(start, taglen int64) bool {
	if start > 0 {
		if c, ok := s.GetCharAt(start - 1); ok && !isWhitespace(c) && !isDelimiter(c) {
			return false
		}
	}
	if c, ok := s.GetCharAt(start + taglen); ok && !isWhitespace(c) && !isDelimiter(c) {
		return false
	}
	return true
}
