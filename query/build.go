package query

import (
	"fmt"

	m6 "github.com/mhekkel/m6"
)

// Resolver is everything Build needs from a databank to turn an Ast into
// an Iterator, kept as an interface here (rather than importing package
// databank directly) to avoid a cycle: databank imports query to parse and
// build queries, so query cannot import databank back. databank.Databank
// implements this interface.
type Resolver interface {
	// Find returns the posting iterator for an exact key in the named
	// index ("*" means the default full-text index).
	Find(index, value string) (Iterator, error)
	// FindString returns the iterator for a multi-word phrase query
	// against index (spec's FindString / phrase search).
	FindString(index, phrase string) (Iterator, error)
	// FindPattern returns the iterator for a glob pattern against index.
	FindPattern(index, pattern string) (Iterator, error)
	// FindRange returns the iterator for a relational comparison against
	// index's numeric or string ordering.
	FindRange(index string, op Op, value string) (Iterator, error)
	// FindBetween returns the iterator for an inclusive [lo, hi] range.
	FindBetween(index, lo, hi string) (Iterator, error)
	// MaxDocNr is the highest doc-nr currently assigned, used by Not and
	// the bare "*" all-docs pattern.
	MaxDocNr() uint32
	// Linked resolves cross-databank link navigation (spec's
	// linked_documents / the `[db/id]` query syntax).
	Linked(otherDB string, docNr uint32, id string) (Iterator, error)
}

// Build folds ast into an Iterator tree by walking it once, resolving
// leaves against r (spec §9's design note: "push the iterator-construction
// logic into a single build(ast, databank) -> Iterator fold").
func Build(ast *Ast, r Resolver) (Iterator, error) {
	switch ast.Kind {
	case AstAnd:
		left, err := Build(ast.Left, r)
		if err != nil {
			return nil, err
		}
		right, err := Build(ast.Right, r)
		if err != nil {
			return nil, err
		}
		return NewIntersectionIterator(left, right), nil

	case AstOr:
		left, err := Build(ast.Left, r)
		if err != nil {
			return nil, err
		}
		right, err := Build(ast.Right, r)
		if err != nil {
			return nil, err
		}
		return NewUnionIterator(left, right), nil

	case AstNot:
		inner, err := Build(ast.Inner, r)
		if err != nil {
			return nil, err
		}
		return NewNotIterator(inner, r.MaxDocNr()), nil

	case AstContains:
		return r.Find(ast.Index, ast.Value)

	case AstPhrase:
		return r.FindString(ast.Index, ast.Phrase)

	case AstPattern:
		return r.FindPattern(ast.Index, ast.Pattern)

	case AstRange:
		return r.FindRange(ast.Index, ast.RangeOp, ast.Value)

	case AstBetween:
		return r.FindBetween(ast.Index, ast.Lo, ast.Hi)

	case AstDocNr:
		return NewSingleDocIterator(ast.DocNr, 1), nil

	case AstAllDocs:
		return NewAllDocIterator(r.MaxDocNr()), nil

	case AstLinked:
		return r.Linked(ast.LinkDB, ast.LinkDocNr, ast.LinkID)

	default:
		return nil, m6.New("query.Build", m6.KindInvariant, fmt.Sprintf("unhandled ast kind %d", ast.Kind))
	}
}
