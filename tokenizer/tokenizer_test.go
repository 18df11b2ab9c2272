package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func scanAll(src string, query bool) []Token {
	t := New(src)
	if query {
		t = NewQuery(src)
	}
	var toks []Token
	for {
		var tok Token
		if query {
			tok = t.NextQuery()
		} else {
			tok = t.Next()
		}
		if tok.Kind == EOF {
			break
		}
		toks = append(toks, tok)
	}
	return toks
}

func TestPlainWordsAndCaseFold(t *testing.T) {
	toks := scanAll("Hello WORLD", false)
	require.Len(t, toks, 2)
	require.Equal(t, Word, toks[0].Kind)
	require.Equal(t, "hello", toks[0].Fold)
	require.Equal(t, "world", toks[1].Fold)
}

func TestNumberAndFloat(t *testing.T) {
	toks := scanAll("resolution 1.2 42", false)
	require.Len(t, toks, 3)
	require.Equal(t, Word, toks[0].Kind)
	require.Equal(t, Float, toks[1].Kind)
	require.Equal(t, Number, toks[2].Kind)
}

func TestHyphenSplitsOutsideQueryContext(t *testing.T) {
	toks := scanAll("hyhel-5", false)
	require.Len(t, toks, 3)
	require.Equal(t, Word, toks[0].Kind)
	require.Equal(t, Punctuation, toks[1].Kind)
	require.Equal(t, Number, toks[2].Kind)
}

func TestHyphenSplitsEvenInQueryContext(t *testing.T) {
	// Gluing '-' with a following number into one signed literal is the
	// query parser's job (query.parser.takeComparableToken), not the
	// tokenizer's: here it still splits into two tokens.
	toks := scanAll("resolution < -1.2", true)
	require.Len(t, toks, 4)
	require.Equal(t, Word, toks[0].Kind)
	require.Equal(t, LessThan, toks[1].Kind)
	require.Equal(t, Punctuation, toks[2].Kind)
	require.Equal(t, "-", toks[2].Text)
	require.Equal(t, Float, toks[3].Kind)
	require.Equal(t, "1.2", toks[3].Text)
}

func TestHanCharactersSegmentOneAtATime(t *testing.T) {
	toks := scanAll("中文测试", false)
	require.Len(t, toks, 4)
	for _, tok := range toks {
		require.Equal(t, Word, tok.Kind)
	}
}

func TestPatternToken(t *testing.T) {
	toks := scanAll("hy*el", false)
	require.Len(t, toks, 1)
	require.Equal(t, Pattern, toks[0].Kind)
	require.Equal(t, "hy*el", toks[0].Text)
}

func TestQueryOperatorsAndKeywords(t *testing.T) {
	toks := scanAll("a AND b OR NOT c", true)
	require.Equal(t, []Kind{Word, And, Word, Or, Not, Word}, kinds(toks))
}

func TestQuotedString(t *testing.T) {
	toks := scanAll(`"hello world" rest`, true)
	require.Equal(t, String, toks[0].Kind)
	require.Equal(t, "hello world", toks[0].Text)
	require.Equal(t, Word, toks[1].Kind)
}

func TestDocNrToken(t *testing.T) {
	toks := scanAll("#123", true)
	require.Len(t, toks, 1)
	require.Equal(t, DocNr, toks[0].Kind)
	require.Equal(t, "123", toks[0].Text)
}

func TestGapStopWords(t *testing.T) {
	ids := []uint32{1, 5, 10, 2}
	GapStopWords(ids, 5)
	require.Equal(t, []uint32{0, 0, 10, 0}, ids)

	ids2 := []uint32{1, 5, 10}
	GapStopWords(ids2, 0)
	require.Equal(t, []uint32{1, 5, 10}, ids2)
}

func kinds(toks []Token) []Kind {
	ks := make([]Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}
