package iql

import (
	"sort"
	"strconv"
)

// parser is a recursive-descent parser over the token stream. Every rejection
// carries the offending position and the token set acceptable there.
type parser struct {
	tokens []Token
	idx    int
}

// Parse turns one IQL statement into its typed AST.
func Parse(input string) (*Query, error) {
	tokens, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"end of query"}}
	}
	return q, nil
}

func (p *parser) peek() Token {
	return p.tokens[p.idx]
}

func (p *parser) advance() Token {
	tok := p.tokens[p.idx]
	if tok.Type != TokenEOF {
		p.idx++
	}
	return tok
}

func (p *parser) expectKeyword(words ...string) (Token, error) {
	tok := p.peek()
	if tok.Type == TokenKeyword {
		for _, w := range words {
			if tok.Value == w {
				return p.advance(), nil
			}
		}
	}
	return Token{}, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: words}
}

func (p *parser) parseQuery() (*Query, error) {
	tok := p.peek()
	if tok.Type != TokenKeyword {
		return nil, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"FIND", "SUMMARIZE"}}
	}
	switch tok.Value {
	case "FIND":
		p.advance()
		return p.parseFind()
	case "SUMMARIZE":
		p.advance()
		return p.parseSummarize()
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"FIND", "SUMMARIZE"}}
	}
}

func (p *parser) parseFind() (*Query, error) {
	q := &Query{Kind: KindFind, Limit: -1}

	tok := p.peek()
	switch {
	case tok.Type == TokenKeyword && tok.Value == "RESOURCES":
		p.advance()
		q.Target = TargetResources
	case tok.Type == TokenKeyword && (tok.Value == "DOWNSTREAM" || tok.Value == "UPSTREAM"):
		p.advance()
		if tok.Value == "DOWNSTREAM" {
			q.Target = TargetDownstream
		} else {
			q.Target = TargetUpstream
		}
		if _, err := p.expectKeyword("OF"); err != nil {
			return nil, err
		}
		idTok := p.peek()
		if idTok.Type != TokenString {
			return nil, &SyntaxError{Pos: idTok.Pos, Got: idTok.String(), Expected: []string{"quoted node id"}}
		}
		p.advance()
		q.TargetID = idTok.Value
	default:
		return nil, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"resources", "downstream", "upstream"}}
	}

	if tok := p.peek(); tok.Type == TokenKeyword && tok.Value == "WHERE" {
		p.advance()
		where, err := p.parsePredicates()
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	if tok := p.peek(); tok.Type == TokenKeyword && tok.Value == "LIMIT" {
		p.advance()
		limit, err := p.parseLimit()
		if err != nil {
			return nil, err
		}
		q.Limit = limit
	}

	return q, nil
}

func (p *parser) parseSummarize() (*Query, error) {
	q := &Query{Kind: KindSummarize, Target: TargetResources, Limit: -1}

	aggTok, err := p.expectKeyword("COUNT", "COST")
	if err != nil {
		return nil, err
	}
	if aggTok.Value == "COUNT" {
		q.Aggregate = AggCount
	} else {
		q.Aggregate = AggCost
	}

	if tok := p.peek(); tok.Type == TokenKeyword && tok.Value == "WHERE" {
		p.advance()
		where, err := p.parsePredicates()
		if err != nil {
			return nil, err
		}
		q.Where = where
	}

	if _, err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	fieldTok := p.peek()
	if fieldTok.Type != TokenIdent || !isQueryableField(fieldTok.Value) {
		return nil, &SyntaxError{Pos: fieldTok.Pos, Got: fieldTok.String(), Expected: knownFieldNames()}
	}
	p.advance()
	q.GroupBy = fieldTok.Value

	return q, nil
}

// parsePredicates parses one or more predicates joined by comma or AND.
func (p *parser) parsePredicates() ([]Predicate, error) {
	var out []Predicate
	for {
		pred, err := p.parsePredicate()
		if err != nil {
			return nil, err
		}
		out = append(out, pred)

		tok := p.peek()
		if tok.Type == TokenComma || tok.Type == TokenKeyword && tok.Value == "AND" {
			p.advance()
			continue
		}
		return out, nil
	}
}

func (p *parser) parsePredicate() (Predicate, error) {
	fieldTok := p.peek()
	if fieldTok.Type != TokenIdent {
		return Predicate{}, &SyntaxError{Pos: fieldTok.Pos, Got: fieldTok.String(), Expected: []string{"field name"}}
	}
	if !isQueryableField(fieldTok.Value) {
		return Predicate{}, &SyntaxError{Pos: fieldTok.Pos, Got: fieldTok.String(), Expected: knownFieldNames()}
	}
	p.advance()

	pred := Predicate{Field: fieldTok.Value, Pos: fieldTok.Pos}

	opTok := p.peek()
	switch {
	case opTok.Type == TokenOperator:
		p.advance()
		pred.Operator = Operator(opTok.Value)
	case opTok.Type == TokenKeyword && opTok.Value == "LIKE":
		p.advance()
		pred.Operator = OpLike
	case opTok.Type == TokenKeyword && opTok.Value == "MATCHES":
		p.advance()
		pred.Operator = OpMatches
	default:
		return Predicate{}, &SyntaxError{Pos: opTok.Pos, Got: opTok.String(), Expected: []string{"=", "!=", "<", "<=", ">", ">=", "LIKE", "MATCHES"}}
	}

	if pred.Operator != OpEq && pred.Operator != OpNeq && pred.Operator != OpLike && pred.Operator != OpMatches {
		if !numericFields[pred.Field] {
			return Predicate{}, &SyntaxError{Pos: opTok.Pos, Got: opTok.String(), Expected: []string{"=, !=, LIKE, or MATCHES on non-numeric field " + pred.Field}}
		}
	}

	valTok := p.peek()
	switch valTok.Type {
	case TokenString:
		p.advance()
		pred.StrValue = valTok.Value
		if pred.Operator == OpLike || pred.Operator == OpMatches {
			return pred, nil
		}
		if numericFields[pred.Field] && pred.Operator != OpEq && pred.Operator != OpNeq {
			return Predicate{}, &SyntaxError{Pos: valTok.Pos, Got: valTok.String(), Expected: []string{"number"}}
		}
		return pred, nil
	case TokenNumber:
		p.advance()
		num, err := strconv.ParseFloat(valTok.Value, 64)
		if err != nil {
			return Predicate{}, &SyntaxError{Pos: valTok.Pos, Got: valTok.String(), Expected: []string{"number"}}
		}
		pred.NumValue = num
		pred.IsNumber = true
		return pred, nil
	default:
		return Predicate{}, &SyntaxError{Pos: valTok.Pos, Got: valTok.String(), Expected: []string{"string", "number"}}
	}
}

func (p *parser) parseLimit() (int, error) {
	tok := p.peek()
	if tok.Type != TokenNumber {
		return 0, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"number"}}
	}
	p.advance()
	n, err := strconv.Atoi(tok.Value)
	if err != nil || n < 0 {
		return 0, &SyntaxError{Pos: tok.Pos, Got: tok.String(), Expected: []string{"non-negative integer"}}
	}
	return n, nil
}

func knownFieldNames() []string {
	names := make([]string, 0, len(queryableFields)+1)
	for f := range queryableFields {
		names = append(names, f)
	}
	names = append(names, "tags.<key>")
	sort.Strings(names)
	return names
}
