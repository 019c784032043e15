package pdfdoc

import (
	"bytes"
	"errors"
	"strconv"
)

// maxOperands bounds the operand stack; content streams never need more
// than a handful per operator, so overflow means garbage input.
const maxOperands = 256

// OperandKind distinguishes content stream operands.
type OperandKind int

const (
	OperandNumber OperandKind = iota
	OperandName
	OperandString
	OperandArray
	OperandDict
	OperandBool
	OperandNull
)

// Operand is one argument of a content stream operator.
type Operand struct {
	Kind  OperandKind
	Num   float64
	Str   string
	Items []Operand
}

// Op is an operator with its operands.
type Op struct {
	Name     string
	Operands []Operand
}

// Num returns operand i as a number, 0 when missing or not numeric.
func (o Op) Num(i int) float64 {
	if i < 0 || i >= len(o.Operands) || o.Operands[i].Kind != OperandNumber {
		return 0
	}
	return o.Operands[i].Num
}

// Nums returns the last n operands as numbers, or false when fewer than n
// numeric operands are present.
func (o Op) Nums(n int) ([]float64, bool) {
	if len(o.Operands) < n {
		return nil, false
	}
	out := make([]float64, n)
	base := len(o.Operands) - n
	for i := range n {
		op := o.Operands[base+i]
		if op.Kind != OperandNumber {
			return nil, false
		}
		out[i] = op.Num
	}
	return out, true
}

// ErrStop may be returned by a Walk callback to end parsing early.
var ErrStop = errors.New("pdfdoc: stop")

// Walk tokenizes a content stream and calls fn for every operator. Inline
// images are reported as a single "EI" operator without operands. Malformed
// tokens are skipped. Walk returns fn's first non-ErrStop error.
func Walk(data []byte, fn func(Op) error) error {
	l := &lexer{data: data}
	var stack []Operand
	for {
		tok, ok := l.next()
		if !ok {
			return nil
		}
		switch tok.kind {
		case tokKeyword:
			switch tok.text {
			case "true", "false":
				stack = push(stack, Operand{Kind: OperandBool, Str: tok.text})
				continue
			case "null":
				stack = push(stack, Operand{Kind: OperandNull})
				continue
			case "BI":
				l.skipInlineImage()
				stack = stack[:0]
				if err := fn(Op{Name: "EI"}); err != nil {
					return stopErr(err)
				}
				continue
			}
			if err := fn(Op{Name: tok.text, Operands: stack}); err != nil {
				return stopErr(err)
			}
			stack = nil
		case tokArrayEnd, tokDictEnd:
			// Unbalanced close: ignore.
		default:
			stack = push(stack, l.operand(tok))
		}
	}
}

func stopErr(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

func push(stack []Operand, op Operand) []Operand {
	if len(stack) >= maxOperands {
		return stack
	}
	return append(stack, op)
}

type tokKind int

const (
	tokNumber tokKind = iota
	tokName
	tokString
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
	tokKeyword
)

type token struct {
	kind tokKind
	text string
	num  float64
}

type lexer struct {
	data []byte
	pos  int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		if isSpace(c) {
			l.pos++
			continue
		}
		if c == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() (token, bool) {
	for {
		l.skipSpace()
		if l.pos >= len(l.data) {
			return token{}, false
		}
		c := l.data[l.pos]
		switch {
		case c == '[':
			l.pos++
			return token{kind: tokArrayStart}, true
		case c == ']':
			l.pos++
			return token{kind: tokArrayEnd}, true
		case c == '<' && l.peek(1) == '<':
			l.pos += 2
			return token{kind: tokDictStart}, true
		case c == '>' && l.peek(1) == '>':
			l.pos += 2
			return token{kind: tokDictEnd}, true
		case c == '<':
			return token{kind: tokString, text: l.hexString()}, true
		case c == '(':
			return token{kind: tokString, text: l.literalString()}, true
		case c == '/':
			l.pos++
			return token{kind: tokName, text: l.regular()}, true
		case c == '{' || c == '}' || c == ')' || c == '>':
			l.pos++
			continue
		}
		word := l.regular()
		if word == "" {
			l.pos++
			continue
		}
		if looksNumeric(word) {
			if f, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, num: f}, true
			}
			continue
		}
		return token{kind: tokKeyword, text: word}, true
	}
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.data) {
		return l.data[l.pos+off]
	}
	return 0
}

func (l *lexer) regular() string {
	start := l.pos
	for l.pos < len(l.data) && !isSpace(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return string(l.data[start:l.pos])
}

func looksNumeric(w string) bool {
	c := w[0]
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.'
}

func (l *lexer) literalString() string {
	l.pos++ // (
	var sb bytes.Buffer
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '\\':
			if l.pos < len(l.data) {
				e := l.data[l.pos]
				l.pos++
				switch e {
				case 'n':
					sb.WriteByte('\n')
				case 'r':
					sb.WriteByte('\r')
				case 't':
					sb.WriteByte('\t')
				case 'b':
					sb.WriteByte('\b')
				case 'f':
					sb.WriteByte('\f')
				case '\n', '\r':
				default:
					if e >= '0' && e <= '7' {
						v := int(e - '0')
						for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
							v = v*8 + int(l.data[l.pos]-'0')
							l.pos++
						}
						sb.WriteByte(byte(v))
					} else {
						sb.WriteByte(e)
					}
				}
			}
		case '(':
			depth++
			sb.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				return sb.String()
			}
			sb.WriteByte(c)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (l *lexer) hexString() string {
	l.pos++ // <
	var sb bytes.Buffer
	var hi byte
	half := false
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		if c == '>' {
			break
		}
		v, ok := hexVal(c)
		if !ok {
			continue
		}
		if half {
			sb.WriteByte(hi<<4 | v)
		} else {
			hi = v
		}
		half = !half
	}
	if half {
		sb.WriteByte(hi << 4)
	}
	return sb.String()
}

func hexVal(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// operand converts tok, consuming nested arrays and dictionaries.
func (l *lexer) operand(tok token) Operand {
	switch tok.kind {
	case tokNumber:
		return Operand{Kind: OperandNumber, Num: tok.num}
	case tokName:
		return Operand{Kind: OperandName, Str: tok.text}
	case tokString:
		return Operand{Kind: OperandString, Str: tok.text}
	case tokArrayStart:
		arr := Operand{Kind: OperandArray}
		for {
			t, ok := l.next()
			if !ok || t.kind == tokArrayEnd {
				return arr
			}
			if t.kind == tokDictEnd {
				continue
			}
			if len(arr.Items) < maxOperands {
				arr.Items = append(arr.Items, l.operand(t))
			}
		}
	case tokDictStart:
		dict := Operand{Kind: OperandDict}
		for {
			t, ok := l.next()
			if !ok || t.kind == tokDictEnd {
				return dict
			}
			if t.kind == tokArrayEnd {
				continue
			}
			if len(dict.Items) < maxOperands {
				dict.Items = append(dict.Items, l.operand(t))
			}
		}
	}
	return Operand{Kind: OperandName, Str: tok.text}
}

// skipInlineImage advances past "ID <binary> EI".
func (l *lexer) skipInlineImage() {
	for {
		tok, ok := l.next()
		if !ok {
			return
		}
		if tok.kind == tokKeyword && tok.text == "ID" {
			break
		}
	}
	if l.pos < len(l.data) {
		l.pos++ // single whitespace after ID
	}
	for l.pos+2 <= len(l.data) {
		if l.data[l.pos] == 'E' && l.data[l.pos+1] == 'I' &&
			(l.pos == 0 || isSpace(l.data[l.pos-1])) &&
			(l.pos+2 == len(l.data) || isSpace(l.data[l.pos+2])) {
			l.pos += 2
			return
		}
		l.pos++
	}
	l.pos = len(l.data)
}
