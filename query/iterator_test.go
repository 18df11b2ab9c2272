package query

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(it Iterator) []uint32 {
	var docs []uint32
	for {
		d, _, ok := it.Next()
		if !ok {
			break
		}
		docs = append(docs, d)
	}
	return docs
}

func vecOf(docs ...uint32) *VectorIterator {
	hits := make([]Hit, len(docs))
	for i, d := range docs {
		hits[i] = Hit{Doc: d, Rank: 1}
	}
	return NewVectorIterator(hits)
}

func TestUnionIsSetUnion(t *testing.T) {
	u := NewUnionIterator(vecOf(1, 3, 5), vecOf(2, 3, 6))
	require.Equal(t, []uint32{1, 2, 3, 5, 6}, drain(u))
}

func TestIntersectionIsSetIntersection(t *testing.T) {
	it := NewIntersectionIterator(vecOf(1, 2, 3, 4), vecOf(2, 4, 6))
	require.Equal(t, []uint32{2, 4}, drain(it))
}

func TestUnionCommutativeAndAssociative(t *testing.T) {
	a := []uint32{1, 4, 7}
	b := []uint32{2, 4, 8}
	c := []uint32{3, 4, 9}

	ab := drain(NewUnionIterator(vecOf(a...), vecOf(b...)))
	ba := drain(NewUnionIterator(vecOf(b...), vecOf(a...)))
	require.Equal(t, ab, ba)

	abc1 := drain(NewUnionIterator(NewUnionIterator(vecOf(a...), vecOf(b...)), vecOf(c...)))
	abc2 := drain(NewUnionIterator(vecOf(a...), NewUnionIterator(vecOf(b...), vecOf(c...))))
	require.Equal(t, abc1, abc2)
}

func TestIntersectionCommutativeAndAssociative(t *testing.T) {
	a := []uint32{1, 2, 3, 4, 5}
	b := []uint32{2, 3, 4, 6}
	c := []uint32{3, 4, 7}

	ab := drain(NewIntersectionIterator(vecOf(a...), vecOf(b...)))
	ba := drain(NewIntersectionIterator(vecOf(b...), vecOf(a...)))
	require.Equal(t, ab, ba)

	abc1 := drain(NewIntersectionIterator(NewIntersectionIterator(vecOf(a...), vecOf(b...)), vecOf(c...)))
	abc2 := drain(NewIntersectionIterator(vecOf(a...), NewIntersectionIterator(vecOf(b...), vecOf(c...))))
	require.Equal(t, abc1, abc2)
}

func TestNotIsComplement(t *testing.T) {
	it := NewNotIterator(vecOf(2, 4, 6), 8)
	require.Equal(t, []uint32{1, 3, 5, 7, 8}, drain(it))
}

func TestAllDocIterator(t *testing.T) {
	it := NewAllDocIterator(5)
	require.Equal(t, []uint32{1, 2, 3, 4, 5}, drain(it))
}

func TestSingleDocIterator(t *testing.T) {
	it := NewSingleDocIterator(42, 1)
	require.Equal(t, []uint32{42}, drain(it))

	zero := NewSingleDocIterator(0, 1)
	require.Empty(t, drain(zero))
}

type fakePositions map[uint32][]uint32

func (f fakePositions) at(doc uint32) []uint32 { return f[doc] }

func TestPhraseIteratorRequiresAdjacentPositions(t *testing.T) {
	// doc 1: term A at {0, 10}, term B at {1, 20} -> adjacent at (0,1)
	// doc 2: term A at {0}, term B at {5} -> not adjacent
	posA := fakePositions{1: {0, 10}, 2: {0}}
	posB := fakePositions{1: {1, 20}, 2: {5}}

	parts := []PhrasePart{
		{Iter: vecOf(1, 2), Position: 0, Positions: posA.at},
		{Iter: vecOf(1, 2), Position: 1, Positions: posB.at},
	}
	phrase := NewPhraseIterator(parts)
	require.Equal(t, []uint32{1}, drain(phrase))
}

func TestParseSimpleTermIsNotBoolean(t *testing.T) {
	res, err := Parse("hyhel-5", true)
	require.NoError(t, err)
	require.Equal(t, []string{"hyhel-5"}, res.Terms)
	require.False(t, res.IsBoolean)
}

func TestParseSplitTermIsTwoTerms(t *testing.T) {
	res, err := Parse("hyhel -5", true)
	require.NoError(t, err)
	require.Len(t, res.Terms, 2)
}

func TestParseRelationalIsBooleanWithNoFreeTerms(t *testing.T) {
	res, err := Parse("resolution < 1.2", true)
	require.NoError(t, err)
	require.True(t, res.IsBoolean)
	require.Empty(t, res.Terms)
	require.Equal(t, AstRange, res.Ast.Kind)
	require.Equal(t, OpLessThan, res.Ast.RangeOp)
}

func TestParseRelationalWithNegativeValue(t *testing.T) {
	res, err := Parse("resolution < -1.2", true)
	require.NoError(t, err)
	require.True(t, res.IsBoolean)
	require.Equal(t, AstRange, res.Ast.Kind)
	require.Equal(t, OpLessThan, res.Ast.RangeOp)
	require.Equal(t, "-1.2", res.Ast.Value)
}

func TestParseBetweenWithNegativeBounds(t *testing.T) {
	res, err := Parse("resolution between -5 and -1", true)
	require.NoError(t, err)
	require.Equal(t, AstBetween, res.Ast.Kind)
	require.Equal(t, "-5", res.Ast.Lo)
	require.Equal(t, "-1", res.Ast.Hi)
}

// fakeResolver implements Resolver over in-memory maps, for Build tests.
type fakeResolver struct {
	byIndex map[string]map[string][]uint32
	max     uint32
}

func (f *fakeResolver) Find(index, value string) (Iterator, error) {
	docs := f.byIndex[index][value]
	return vecOf(docs...), nil
}
func (f *fakeResolver) FindString(index, phrase string) (Iterator, error) { return f.Find(index, phrase) }
func (f *fakeResolver) FindPattern(index, pattern string) (Iterator, error) {
	return NewAllDocIterator(0), nil
}
func (f *fakeResolver) FindRange(index string, op Op, value string) (Iterator, error) {
	return vecOf(), nil
}
func (f *fakeResolver) FindBetween(index, lo, hi string) (Iterator, error) { return vecOf(), nil }
func (f *fakeResolver) MaxDocNr() uint32                                   { return f.max }
func (f *fakeResolver) Linked(db string, docNr uint32, id string) (Iterator, error) {
	return vecOf(), nil
}

func TestBuildBooleanQueryAgainstResolver(t *testing.T) {
	r := &fakeResolver{
		max: 2,
		byIndex: map[string]map[string][]uint32{
			"*": {"x": {1, 2}},
		},
	}
	res, err := Parse("x", true)
	require.NoError(t, err)
	it, err := Build(res.Ast, r)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, drain(it))
}
