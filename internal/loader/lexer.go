package loader

import (
	"fmt"
	"strings"
	"unicode"
)

// tokenKind classifies lexer output.
type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokLBrace // {
	tokRBrace // }
	tokLParen // (
	tokRParen // )
	tokComma  // ,
	tokColon  // :
	tokEquals // =
	tokArrow  // ->
	tokLess   // <
	tokAt     // @
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokLBrace:
		return "'{'"
	case tokRBrace:
		return "'}'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	case tokComma:
		return "','"
	case tokColon:
		return "':'"
	case tokEquals:
		return "'='"
	case tokArrow:
		return "'->'"
	case tokLess:
		return "'<'"
	case tokAt:
		return "'@'"
	}
	return fmt.Sprintf("token(%d)", int(k))
}

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// lexer tokenizes module text. Identifiers are word runs (letters, digits,
// underscore), which also covers numeric node names used by typing rules.
// Line comments start with "//".
type lexer struct {
	src  string
	pos  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) errorf(line, col int, format string, args ...any) *ParseError {
	return &ParseError{Line: line, Col: col, Message: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() (token, *ParseError) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, line: l.line, col: l.col}, nil
	}
	line, col := l.line, l.col
	c := l.src[l.pos]
	switch c {
	case '{':
		l.advance(1)
		return token{kind: tokLBrace, text: "{", line: line, col: col}, nil
	case '}':
		l.advance(1)
		return token{kind: tokRBrace, text: "}", line: line, col: col}, nil
	case '(':
		l.advance(1)
		return token{kind: tokLParen, text: "(", line: line, col: col}, nil
	case ')':
		l.advance(1)
		return token{kind: tokRParen, text: ")", line: line, col: col}, nil
	case ',':
		l.advance(1)
		return token{kind: tokComma, text: ",", line: line, col: col}, nil
	case ':':
		l.advance(1)
		return token{kind: tokColon, text: ":", line: line, col: col}, nil
	case '=':
		l.advance(1)
		return token{kind: tokEquals, text: "=", line: line, col: col}, nil
	case '<':
		l.advance(1)
		return token{kind: tokLess, text: "<", line: line, col: col}, nil
	case '@':
		l.advance(1)
		return token{kind: tokAt, text: "@", line: line, col: col}, nil
	case '-':
		if l.pos+1 < len(l.src) && l.src[l.pos+1] == '>' {
			l.advance(2)
			return token{kind: tokArrow, text: "->", line: line, col: col}, nil
		}
		return token{}, l.errorf(line, col, "unexpected character '-'")
	}
	if isWordChar(rune(c)) {
		start := l.pos
		for l.pos < len(l.src) && isWordChar(rune(l.src[l.pos])) {
			l.advance(1)
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], line: line, col: col}, nil
	}
	return token{}, l.errorf(line, col, "unexpected character %q", string(c))
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '/' && strings.HasPrefix(l.src[l.pos:], "//") {
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.advance(1)
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.advance(1)
			continue
		}
		return
	}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		if l.src[l.pos] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
		l.pos++
	}
}

func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
