package iql

import (
	"fmt"
	"strings"
	"unicode"
)

// lexer walks query text and produces tokens carrying source positions.
type lexer struct {
	input string
	pos   int
}

// lex tokenizes the whole query up front. Errors name the byte offset of the
// offending character.
func lex(input string) ([]Token, error) {
	l := &lexer{input: input}
	var tokens []Token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *lexer) next() (Token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == ',':
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: start}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	case c == '=':
		l.pos++
		return Token{Type: TokenOperator, Value: "=", Pos: start}, nil
	case c == '!':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokenOperator, Value: "!=", Pos: start}, nil
		}
		return Token{}, &SyntaxError{Pos: start, Got: fmt.Sprintf("%q", string(c)), Expected: []string{"!="}}
	case c == '<' || c == '>':
		l.pos++
		op := string(c)
		if l.pos < len(l.input) && l.input[l.pos] == '=' {
			op += "="
			l.pos++
		}
		return Token{Type: TokenOperator, Value: op, Pos: start}, nil
	case c >= '0' && c <= '9' || c == '-' && l.pos+1 < len(l.input) && l.input[l.pos+1] >= '0' && l.input[l.pos+1] <= '9':
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	default:
		return Token{}, &SyntaxError{Pos: start, Got: fmt.Sprintf("%q", string(c))}
	}
}

func (l *lexer) lexString(quote byte) (Token, error) {
	start := l.pos
	l.pos++
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		switch c {
		case '\\':
			if l.pos+1 >= len(l.input) {
				return Token{}, &SyntaxError{Pos: l.pos, Got: "end of query", Expected: []string{"escaped character"}}
			}
			next := l.input[l.pos+1]
			switch next {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte(next)
			}
			l.pos += 2
		case quote:
			l.pos++
			return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
		default:
			sb.WriteByte(c)
			l.pos++
		}
	}
	return Token{}, &SyntaxError{Pos: start, Got: "unterminated string", Expected: []string{"closing quote"}}
}

func (l *lexer) lexNumber() (Token, error) {
	start := l.pos
	if l.input[l.pos] == '-' {
		l.pos++
	}
	seenDot := false
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '.' && !seenDot {
			seenDot = true
			l.pos++
			continue
		}
		if c < '0' || c > '9' {
			break
		}
		l.pos++
	}
	return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start}, nil
}

func (l *lexer) lexIdent() (Token, error) {
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.pos++
	}
	word := l.input[start:l.pos]
	upper := strings.ToUpper(word)
	if keywords[upper] {
		return Token{Type: TokenKeyword, Value: upper, Pos: start}, nil
	}
	return Token{Type: TokenIdent, Value: word, Pos: start}, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9' || c == '.' || c == '-'
}
