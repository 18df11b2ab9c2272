package query

import (
	"strconv"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/tokenizer"
)

// parser implements the recursive-descent grammar of spec §4.8, grounded
// on original_source/src/M6Query.cpp's M6QueryParser (ParseQuery/ParseTest/
// ParseLink/ParseQualifiedTest/ParseTerm/ParseBetween/ParseString), kept as
// a pure parser here per spec §9's note to separate parsing from
// evaluation — the original's M6QueryParser also drives iterator
// construction inline, which this package pushes into Build instead.
type parser struct {
	tok       *tokenizer.Tokenizer
	lookahead tokenizer.Token
	allTerms  bool
	terms     []string
	isBoolean bool
	pos       int
}

// Result is the outcome of parsing a query string: the compiled Ast, the
// free-text terms collected along the way (fed to ranked scoring), and
// whether the query used any boolean/qualified syntax.
type Result struct {
	Ast       *Ast
	Terms     []string
	IsBoolean bool
}

// Parse compiles query into a Result. allTermsRequired selects implicit
// composition mode: true means bare term runs combine via AND, false via
// OR (spec §4.8's "implicit composition" rule).
func Parse(query string, allTermsRequired bool) (*Result, error) {
	p := &parser{tok: tokenizer.NewQuery(query), allTerms: allTermsRequired}
	p.advance()
	ast, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.lookahead.Kind != tokenizer.EOF {
		return nil, m6.NewParse("query.Parse", p.pos, "unexpected trailing input")
	}
	return &Result{Ast: ast, Terms: p.terms, IsBoolean: p.isBoolean}, nil
}

func (p *parser) advance() {
	p.lookahead = p.tok.NextQuery()
}

func (p *parser) expect(k tokenizer.Kind) (tokenizer.Token, error) {
	if p.lookahead.Kind != k {
		return tokenizer.Token{}, m6.NewParse("query.Parse", p.pos,
			"expected "+k.String()+" but found "+p.lookahead.Kind.String())
	}
	tok := p.lookahead
	p.advance()
	return tok, nil
}

func (p *parser) parseQuery() (*Ast, error) {
	result, err := p.parseTest()
	if err != nil {
		return nil, err
	}

	for {
		switch p.lookahead.Kind {
		case tokenizer.EOF, tokenizer.CloseParen:
			return result, nil
		case tokenizer.And:
			p.isBoolean = true
			p.advance()
			rhs, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			result = &Ast{Kind: AstAnd, Left: result, Right: rhs}
		case tokenizer.Or:
			p.isBoolean = true
			p.advance()
			rhs, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			result = &Ast{Kind: AstOr, Left: result, Right: rhs}
		default:
			rhs, err := p.parseTest()
			if err != nil {
				return nil, err
			}
			kind := AstOr
			if p.allTerms {
				kind = AstAnd
			}
			result = &Ast{Kind: kind, Left: result, Right: rhs}
		}
	}
}

func (p *parser) parseTest() (*Ast, error) {
	switch p.lookahead.Kind {
	case tokenizer.OpenBracket:
		p.advance()
		link, err := p.parseLink()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenizer.CloseBracket); err != nil {
			return nil, err
		}
		return link, nil

	case tokenizer.OpenParen:
		p.advance()
		inner, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokenizer.CloseParen); err != nil {
			return nil, err
		}
		return inner, nil

	case tokenizer.Not:
		p.advance()
		p.isBoolean = true
		savedTerms := append([]string(nil), p.terms...)
		inner, err := p.parseQuery()
		if err != nil {
			return nil, err
		}
		p.terms = savedTerms
		return &Ast{Kind: AstNot, Inner: inner}, nil

	case tokenizer.DocNr:
		n, err := strconv.ParseUint(p.lookahead.Text, 10, 32)
		if err != nil {
			return nil, m6.NewParse("query.Parse", p.pos, "invalid doc-nr")
		}
		p.advance()
		return &Ast{Kind: AstDocNr, DocNr: uint32(n)}, nil

	case tokenizer.String:
		phrase := p.lookahead.Text
		p.collectTerms(phrase)
		p.advance()
		return &Ast{Kind: AstPhrase, Index: "*", Phrase: phrase}, nil

	case tokenizer.Pattern:
		pat := p.lookahead.Text
		p.advance()
		if pat == "*" && p.lookahead.Kind == tokenizer.Colon {
			p.advance()
			return p.parseTest()
		}
		if pat == "*" {
			return &Ast{Kind: AstAllDocs}, nil
		}
		return &Ast{Kind: AstPattern, Index: "full-text", Pattern: pat}, nil

	case tokenizer.Word, tokenizer.Number, tokenizer.Float:
		s := p.lookahead.Text
		p.advance()

		switch {
		case isQualifier(p.lookahead.Kind):
			return p.parseQualifiedTest(s)
		case p.lookahead.Kind == tokenizer.Between:
			return p.parseBetween(s)
		case p.lookahead.Kind == tokenizer.Punctuation:
			return p.parseHyphenatedTerm(s)
		default:
			p.terms = append(p.terms, s)
			return &Ast{Kind: AstContains, Index: "*", Value: s}, nil
		}

	default:
		return nil, m6.NewParse("query.Parse", p.pos, "unexpected token "+p.lookahead.Kind.String())
	}
}

// parseHyphenatedTerm glues a run of Word/Number/Float tokens joined by
// punctuation (e.g. "hyhel-5") into a single compound term, mirroring
// M6Query.cpp's ParseTest punctuation-run handling.
func (p *parser) parseHyphenatedTerm(first string) (*Ast, error) {
	terms := []string{first}
	combined := first
	for p.lookahead.Kind == tokenizer.Punctuation {
		punct := p.lookahead.Text
		p.advance()
		if p.lookahead.Kind != tokenizer.Word && p.lookahead.Kind != tokenizer.Number && p.lookahead.Kind != tokenizer.Float {
			break
		}
		terms = append(terms, p.lookahead.Text)
		combined += punct + p.lookahead.Text
		p.advance()
	}
	p.terms = append(p.terms, terms...)
	if len(terms) > 1 {
		return &Ast{Kind: AstPhrase, Index: "*", Phrase: combined}, nil
	}
	return &Ast{Kind: AstContains, Index: "*", Value: first}, nil
}

func isQualifier(k tokenizer.Kind) bool {
	switch k {
	case tokenizer.Colon, tokenizer.Equals, tokenizer.LessThan, tokenizer.LessEqual, tokenizer.GreaterEqual, tokenizer.GreaterThan:
		return true
	}
	return false
}

func (p *parser) parseQualifiedTest(index string) (*Ast, error) {
	p.isBoolean = true
	switch p.lookahead.Kind {
	case tokenizer.Colon, tokenizer.Equals:
		p.advance()
		return p.parseTerm(index)
	case tokenizer.LessThan:
		p.advance()
		return p.parseBooleanTerm(index, OpLessThan)
	case tokenizer.LessEqual:
		p.advance()
		return p.parseBooleanTerm(index, OpLessOrEqual)
	case tokenizer.GreaterEqual:
		p.advance()
		return p.parseBooleanTerm(index, OpGreaterOrEqual)
	case tokenizer.GreaterThan:
		p.advance()
		return p.parseBooleanTerm(index, OpGreaterThan)
	default:
		return nil, m6.NewParse("query.Parse", p.pos, "relational operators are unsupported here")
	}
}

func (p *parser) parseTerm(index string) (*Ast, error) {
	switch p.lookahead.Kind {
	case tokenizer.String:
		phrase := p.lookahead.Text
		p.collectTerms(phrase)
		p.advance()
		return &Ast{Kind: AstPhrase, Index: index, Phrase: phrase}, nil
	case tokenizer.Word, tokenizer.Number, tokenizer.Float:
		s := p.lookahead.Text
		p.advance()
		return &Ast{Kind: AstContains, Index: index, Value: s}, nil
	default:
		return nil, m6.NewParse("query.Parse", p.pos, "expected a term")
	}
}

func (p *parser) parseBooleanTerm(index string, op Op) (*Ast, error) {
	value, err := p.takeComparableToken()
	if err != nil {
		return nil, err
	}
	return &Ast{Kind: AstRange, Index: index, Value: value, RangeOp: op}, nil
}

func (p *parser) parseBetween(index string) (*Ast, error) {
	p.isBoolean = true
	if _, err := p.expect(tokenizer.Between); err != nil {
		return nil, err
	}
	lo, err := p.takeComparableToken()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenizer.And); err != nil {
		return nil, err
	}
	hi, err := p.takeComparableToken()
	if err != nil {
		return nil, err
	}
	return &Ast{Kind: AstBetween, Index: index, Lo: lo, Hi: hi}, nil
}

// takeComparableToken consumes one relational operand. A Punctuation "-"
// immediately followed by a Number/Float is glued into one signed literal
// here rather than in the tokenizer, since the tokenizer has no notion of
// "relational-operand position" (spec §4.7's "query context" rule).
func (p *parser) takeComparableToken() (string, error) {
	if p.lookahead.Kind == tokenizer.Punctuation && p.lookahead.Text == "-" {
		p.advance()
		if p.lookahead.Kind != tokenizer.Number && p.lookahead.Kind != tokenizer.Float {
			return "", m6.NewParse("query.Parse", p.pos, "expected a number after '-'")
		}
		s := "-" + p.lookahead.Text
		p.advance()
		return s, nil
	}
	switch p.lookahead.Kind {
	case tokenizer.String, tokenizer.Word, tokenizer.Float, tokenizer.Number:
		s := p.lookahead.Text
		p.advance()
		return s, nil
	default:
		return "", m6.NewParse("query.Parse", p.pos, "expected a comparable value")
	}
}

func (p *parser) parseLink() (*Ast, error) {
	db, err := p.expect(tokenizer.Word)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokenizer.Slash); err != nil {
		return nil, err
	}
	switch p.lookahead.Kind {
	case tokenizer.DocNr:
		n, err := strconv.ParseUint(p.lookahead.Text, 10, 32)
		if err != nil {
			return nil, m6.NewParse("query.Parse", p.pos, "invalid doc-nr")
		}
		p.advance()
		return &Ast{Kind: AstLinked, LinkDB: db.Text, LinkDocNr: uint32(n)}, nil
	case tokenizer.Word, tokenizer.Number, tokenizer.Float:
		id := p.lookahead.Text
		p.advance()
		return &Ast{Kind: AstLinked, LinkDB: db.Text, LinkID: id}, nil
	default:
		return nil, m6.NewParse("query.Parse", p.pos, "expected a doc-nr or id after '/'")
	}
}

// collectTerms tokenizes phrase in plain (non-query) mode and appends its
// Word/Number/Float tokens to p.terms, mirroring M6Query.cpp's inline
// re-tokenization of quoted strings for ranked-term collection.
func (p *parser) collectTerms(phrase string) {
	sub := tokenizer.New(phrase)
	for {
		tok := sub.Next()
		if tok.Kind == tokenizer.EOF {
			break
		}
		if tok.Kind == tokenizer.Word || tok.Kind == tokenizer.Number || tok.Kind == tokenizer.Float {
			p.terms = append(p.terms, tok.Text)
		}
	}
}
