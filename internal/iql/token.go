// Package iql implements the infrastructure query language: a lexer, a
// recursive-descent parser producing a typed AST, a static classifier, and an
// executor that runs statements against any storage.Store.
package iql

import "fmt"

// TokenType identifies a lexical token class.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenKeyword
	TokenIdent
	TokenString
	TokenNumber
	TokenOperator
	TokenComma
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "end of query"
	case TokenKeyword:
		return "keyword"
	case TokenIdent:
		return "identifier"
	case TokenString:
		return "string"
	case TokenNumber:
		return "number"
	case TokenOperator:
		return "operator"
	case TokenComma:
		return "comma"
	default:
		return "unknown"
	}
}

// Token is one lexical token with its source position (0-based offset into
// the query text).
type Token struct {
	Type  TokenType
	Value string // keywords are upper-cased, strings are unquoted
	Pos   int
}

func (t Token) String() string {
	if t.Type == TokenEOF {
		return "end of query"
	}
	return fmt.Sprintf("%q", t.Value)
}

// Keywords recognized case-insensitively by the lexer.
var keywords = map[string]bool{
	"FIND":       true,
	"SUMMARIZE":  true,
	"WHERE":      true,
	"LIMIT":      true,
	"BY":         true,
	"OF":         true,
	"AND":        true,
	"LIKE":       true,
	"MATCHES":    true,
	"COUNT":      true,
	"COST":       true,
	"RESOURCES":  true,
	"DOWNSTREAM": true,
	"UPSTREAM":   true,
}

// SyntaxError reports a parse failure with the offending position and the
// token set that would have been acceptable there.
type SyntaxError struct {
	Pos      int
	Got      string
	Expected []string
}

func (e *SyntaxError) Error() string {
	if len(e.Expected) == 0 {
		return fmt.Sprintf("syntax error at position %d: unexpected %s", e.Pos, e.Got)
	}
	return fmt.Sprintf("syntax error at position %d: got %s, expected %s", e.Pos, e.Got, joinAlternatives(e.Expected))
}

func joinAlternatives(alts []string) string {
	switch len(alts) {
	case 0:
		return ""
	case 1:
		return alts[0]
	case 2:
		return alts[0] + " or " + alts[1]
	default:
		out := ""
		for i, a := range alts[:len(alts)-1] {
			if i > 0 {
				out += ", "
			}
			out += a
		}
		return out + ", or " + alts[len(alts)-1]
	}
}
