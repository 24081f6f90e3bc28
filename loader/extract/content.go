package extract

import (
	"strconv"
	"strings"
)

// Margins drop text shown within Top points of the upper page edge or
// Bottom points of the lower edge, which is where running headers and
// footers live. Zero disables the check for that edge.
type Margins struct {
	Top    float64
	Bottom float64
}

func (m Margins) enabled() bool { return m.Top > 0 || m.Bottom > 0 }

type operandKind int

const (
	opNumber operandKind = iota
	opString
	opArray
	opName
)

type operand struct {
	kind operandKind
	num  float64
	str  string
}

// contentScanner walks a decoded page content stream and collects the text
// shown by Tj, TJ, ' and ". Strings are decoded byte by byte as Latin-1;
// composite font encodings are not resolved.
type contentScanner struct {
	data []byte
	pos  int

	operands []operand
	inArray  bool
	array    strings.Builder

	out strings.Builder

	// text position, only tracked when margins are in use
	margins    Margins
	pageHeight float64
	lineY      float64
	leading    float64
}

// PageText extracts the visible text of one content stream.
func PageText(content []byte) string {
	return pageText(content, Margins{}, 0)
}

func pageText(content []byte, margins Margins, pageHeight float64) string {
	s := &contentScanner{data: content, margins: margins, pageHeight: pageHeight}
	s.run()
	return normalize(s.out.String())
}

func (s *contentScanner) run() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isSpace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			s.pushString(s.literal())
		case c == '<':
			if s.peek(1) == '<' {
				s.pos += 2
				continue
			}
			s.pushString(s.hex())
		case c == '>':
			s.pos++
		case c == '[':
			s.pos++
			s.inArray = true
			s.array.Reset()
		case c == ']':
			s.pos++
			if s.inArray {
				s.inArray = false
				s.operands = append(s.operands, operand{kind: opArray, str: s.array.String()})
			}
		case c == '/':
			s.pos++
			s.operands = append(s.operands, operand{kind: opName, str: s.word()})
		case c == '{' || c == '}':
			s.pos++
		default:
			tok := s.word()
			if tok == "" {
				s.pos++
				continue
			}
			if n, err := strconv.ParseFloat(tok, 64); err == nil {
				s.pushNumber(n)
				continue
			}
			s.operator(tok)
		}
	}
}

func (s *contentScanner) pushString(str string) {
	if s.inArray {
		s.array.WriteString(str)
		return
	}
	s.operands = append(s.operands, operand{kind: opString, str: str})
}

func (s *contentScanner) pushNumber(n float64) {
	if s.inArray {
		// large negative kerning inside TJ is how most producers encode a word gap
		if n < -200 {
			s.array.WriteByte(' ')
		}
		return
	}
	s.operands = append(s.operands, operand{kind: opNumber, num: n})
}

func (s *contentScanner) operator(op string) {
	defer func() { s.operands = s.operands[:0] }()

	switch op {
	case "BT":
		s.lineY = 0
	case "ET":
		s.newline()
	case "Tm":
		if n, ok := s.number(0); ok {
			s.lineY = n
		}
		s.space()
	case "Td", "TD":
		if n, ok := s.number(0); ok {
			if op == "TD" {
				s.leading = -n
			}
			if n != 0 {
				s.lineY += n
				s.newline()
			} else {
				s.space()
			}
		}
	case "TL":
		if n, ok := s.number(0); ok {
			s.leading = n
		}
	case "T*":
		s.nextLine()
	case "Tj":
		s.show(opString)
	case "TJ":
		s.show(opArray)
	case "'", "\"":
		s.nextLine()
		s.show(opString)
	case "BI":
		s.skipInlineImage()
	}
}

// number returns the operand idx positions from the end of the stack.
func (s *contentScanner) number(idx int) (float64, bool) {
	i := len(s.operands) - 1 - idx
	if i < 0 || s.operands[i].kind != opNumber {
		return 0, false
	}
	return s.operands[i].num, true
}

func (s *contentScanner) nextLine() {
	s.lineY -= s.leading
	s.newline()
}

func (s *contentScanner) show(kind operandKind) {
	if len(s.operands) == 0 {
		return
	}
	last := s.operands[len(s.operands)-1]
	if last.kind != kind || !s.visible() {
		return
	}
	s.out.WriteString(last.str)
}

func (s *contentScanner) visible() bool {
	if !s.margins.enabled() || s.pageHeight <= 0 {
		return true
	}
	if s.margins.Top > 0 && s.lineY > s.pageHeight-s.margins.Top {
		return false
	}
	if s.margins.Bottom > 0 && s.lineY < s.margins.Bottom {
		return false
	}
	return true
}

func (s *contentScanner) newline() {
	if s.out.Len() > 0 {
		s.out.WriteByte('\n')
	}
}

func (s *contentScanner) space() {
	if s.out.Len() > 0 {
		s.out.WriteByte(' ')
	}
}

func (s *contentScanner) peek(off int) byte {
	if s.pos+off < len(s.data) {
		return s.data[s.pos+off]
	}
	return 0
}

func (s *contentScanner) word() string {
	start := s.pos
	for s.pos < len(s.data) && !isSpace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func (s *contentScanner) literal() string {
	s.pos++ // (
	var b strings.Builder
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return b.String()
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 'r':
				b.WriteByte('\r')
			case 't':
				b.WriteByte('\t')
			case 'b', 'f':
			case '\r':
				if s.peek(0) == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					writeLatin1(&b, byte(v))
				} else {
					writeLatin1(&b, e)
				}
			}
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return b.String()
			}
			b.WriteByte(c)
		default:
			writeLatin1(&b, c)
		}
	}
	return b.String()
}

func (s *contentScanner) hex() string {
	s.pos++ // <
	var b strings.Builder
	hi := -1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			break
		}
		v := hexValue(c)
		if v < 0 {
			continue
		}
		if hi < 0 {
			hi = v
			continue
		}
		writeLatin1(&b, byte(hi<<4|v))
		hi = -1
	}
	if hi >= 0 {
		writeLatin1(&b, byte(hi<<4))
	}
	return b.String()
}

// skipInlineImage jumps past the binary data between ID and EI.
func (s *contentScanner) skipInlineImage() {
	idx := strings.Index(string(s.data[s.pos:]), "ID")
	if idx < 0 {
		s.pos = len(s.data)
		return
	}
	s.pos += idx + 2
	for s.pos+2 <= len(s.data) {
		if s.data[s.pos] == 'E' && s.data[s.pos+1] == 'I' &&
			s.pos > 0 && isSpace(s.data[s.pos-1]) &&
			(s.pos+2 == len(s.data) || isSpace(s.data[s.pos+2]) || isDelimiter(s.data[s.pos+2])) {
			s.pos += 2
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

func writeLatin1(b *strings.Builder, c byte) {
	if c < 0x20 && c != '\n' && c != '\t' {
		return
	}
	b.WriteRune(rune(c))
}

func hexValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
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

// normalize collapses runs of blanks, trims every line and drops empty ones.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
