package query

// Op is a relational comparison operator, used by Ast.Range (spec §4.8's
// `Term (= | < | <= | >= | >) TermRHS` production).
type Op int

const (
	OpEquals Op = iota
	OpLessThan
	OpLessOrEqual
	OpGreaterOrEqual
	OpGreaterThan
)

// Ast is the query parse tree (spec §9's design note: "build an explicit
// Ast algebraic type; push the iterator-construction logic into a single
// build(ast, databank) fold", replacing the original's conflation of
// parsing and evaluation). Exactly one of the typed fields is populated
// per node, selected by Kind.
type Ast struct {
	Kind AstKind

	// And, Or: Left/Right.
	Left, Right *Ast

	// Not: Inner.
	Inner *Ast

	// Contains (Term or Term:Index), Range, Between: Index ("*" for
	// full-text), Value(s).
	Index string
	Value string
	Lo, Hi string
	RangeOp Op

	// Pattern: glob pattern string; Index is the target index ("full-text"
	// for a bare top-level pattern).
	Pattern string

	// Phrase: the quoted phrase text, tokenized by Build.
	Phrase string

	// DocNr: literal document number.
	DocNr uint32

	// Linked: other databank name + either a literal doc-nr or a foreign id.
	LinkDB    string
	LinkDocNr uint32
	LinkID    string
}

// AstKind discriminates Ast node variants.
type AstKind int

const (
	AstAnd AstKind = iota
	AstOr
	AstNot
	AstContains
	AstRange
	AstBetween
	AstPattern
	AstPhrase
	AstDocNr
	AstLinked
	AstAllDocs
)
