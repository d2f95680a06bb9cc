package optimize

import (
	"bytes"
	"strconv"
)

// tokenType classifies content stream tokens
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenName
	tokenOperand
	tokenOperator
)

// token is a lexical token of a content stream
type token struct {
	Type  tokenType
	Value string
	Pos   int
}

// contentLexer tokenizes page and form content streams. Only names and
// operators are kept; strings, numbers and delimiters are reported as opaque
// operands.
type contentLexer struct {
	data     []byte
	position int
}

func newContentLexer(data []byte) *contentLexer {
	return &contentLexer{data: data}
}

func isWhitespace(ch byte) bool {
	return ch == 0 || ch == '\t' || ch == '\n' || ch == '\f' || ch == '\r' || ch == ' '
}

func isDelimiter(ch byte) bool {
	switch ch {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func isRegular(ch byte) bool {
	return !isWhitespace(ch) && !isDelimiter(ch)
}

func (l *contentLexer) hasNext() bool {
	return l.position < len(l.data)
}

func (l *contentLexer) current() byte {
	return l.data[l.position]
}

func (l *contentLexer) peek() byte {
	if l.position+1 >= len(l.data) {
		return 0
	}
	return l.data[l.position+1]
}

func (l *contentLexer) skipWhitespaceAndComments() {
	for l.hasNext() {
		switch {
		case isWhitespace(l.current()):
			l.position++
		case l.current() == '%':
			for l.hasNext() && l.current() != '\n' && l.current() != '\r' {
				l.position++
			}
		default:
			return
		}
	}
}

// next returns the next token
func (l *contentLexer) next() token {
	l.skipWhitespaceAndComments()
	if !l.hasNext() {
		return token{Type: tokenEOF, Pos: l.position}
	}

	start := l.position
	switch ch := l.current(); ch {
	case '(':
		l.skipLiteralString()
		return token{Type: tokenOperand, Pos: start}
	case '<':
		if l.peek() == '<' {
			l.position += 2
			return token{Type: tokenOperand, Value: "<<", Pos: start}
		}
		for l.hasNext() && l.current() != '>' {
			l.position++
		}
		if l.hasNext() {
			l.position++
		}
		return token{Type: tokenOperand, Pos: start}
	case '>':
		l.position++
		if l.hasNext() && l.current() == '>' {
			l.position++
		}
		return token{Type: tokenOperand, Value: ">>", Pos: start}
	case '[', ']', '{', '}', ')':
		l.position++
		return token{Type: tokenOperand, Value: string(ch), Pos: start}
	case '/':
		return l.readName()
	default:
		for l.hasNext() && isRegular(l.current()) {
			l.position++
		}
		word := string(l.data[start:l.position])
		if isNumber(word) || word == "true" || word == "false" || word == "null" {
			return token{Type: tokenOperand, Value: word, Pos: start}
		}
		if word == "ID" {
			l.skipInlineImageData()
		}
		return token{Type: tokenOperator, Value: word, Pos: start}
	}
}

func isNumber(word string) bool {
	if word == "" {
		return false
	}
	_, err := strconv.ParseFloat(word, 64)
	return err == nil
}

// skipLiteralString skips a balanced literal string, honouring escapes
func (l *contentLexer) skipLiteralString() {
	l.position++
	depth := 1
	for l.hasNext() && depth > 0 {
		switch l.current() {
		case '\\':
			l.position++
		case '(':
			depth++
		case ')':
			depth--
		}
		l.position++
	}
}

// readName reads a name, decoding #xx escapes
func (l *contentLexer) readName() token {
	start := l.position
	l.position++

	var buffer bytes.Buffer
	for l.hasNext() && isRegular(l.current()) {
		ch := l.current()
		if ch == '#' && l.position+2 < len(l.data) {
			if v, err := strconv.ParseUint(string(l.data[l.position+1:l.position+3]), 16, 8); err == nil {
				buffer.WriteByte(byte(v))
				l.position += 3
				continue
			}
		}
		buffer.WriteByte(ch)
		l.position++
	}
	return token{Type: tokenName, Value: buffer.String(), Pos: start}
}

// skipInlineImageData moves past binary inline image data up to and including EI
func (l *contentLexer) skipInlineImageData() {
	// one whitespace byte separates ID from the data
	if l.hasNext() {
		l.position++
	}
	for l.position+1 < len(l.data) {
		if l.data[l.position] == 'E' && l.data[l.position+1] == 'I' &&
			(l.position == 0 || isWhitespace(l.data[l.position-1])) &&
			(l.position+2 >= len(l.data) || isWhitespace(l.data[l.position+2])) {
			l.position += 2
			return
		}
		l.position++
	}
	l.position = len(l.data)
}
