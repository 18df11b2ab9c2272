package databank

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhekkel/m6/lexicon"
)

func newWeightedTestDatabank(t *testing.T) *Databank {
	t.Helper()
	dir := t.TempDir()
	schemas := []IndexSchema{
		{Name: "id", Type: IndexUnique, Desc: "unique document identifier"},
		{Name: "text", Type: IndexText, Desc: "full text"},
		{Name: "weighted", Type: IndexWeighted, Desc: "ranked scoring index"},
	}
	db, err := CreateNew(filepath.Join(dir, "test.m6db"), schemas, "text", "id")
	require.NoError(t, err)
	require.NoError(t, db.StartBatchImport())
	return db
}

func storeWeightedDoc(t *testing.T, db *Databank, text string, idValue string) uint32 {
	t.Helper()
	staging := lexicon.NewStaging()
	ids := TokenizeAndIntern(text, staging)
	remap := staging.FlushInto(db.Lexicon())

	doc := InputDocument{
		Text:   text,
		Values: []IndexValue{{IndexName: "id", Value: idValue}},
		Tokens: []IndexTokens{
			{IndexName: "text", TokenIDs: remapTokens(ids, remap)},
			{IndexName: "weighted", TokenIDs: remapTokens(ids, remap)},
		},
	}
	docNr, err := db.Store(doc)
	require.NoError(t, err)
	return docNr
}

func TestWeightedIndexStoresTermFrequencyWeights(t *testing.T) {
	db := newWeightedTestDatabank(t)
	dHigh := storeWeightedDoc(t, db, "fox fox fox fox dog", "HIGH")
	dLow := storeWeightedDoc(t, db, "fox cat bird", "LOW")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.Find("weighted", "fox")
	require.NoError(t, err)
	require.True(t, it.Ranked())

	ranks := map[uint32]float32{}
	for {
		d, r, ok := it.Next()
		if !ok {
			break
		}
		ranks[d] = r
	}
	require.Len(t, ranks, 2)
	require.Greater(t, ranks[dHigh], ranks[dLow], "doc with higher term frequency must rank higher")
}

func TestFindRankedScoresHigherTermFrequencyHigher(t *testing.T) {
	db := newWeightedTestDatabank(t)
	dHigh := storeWeightedDoc(t, db, "fox fox fox fox fox dog", "A")
	dMid := storeWeightedDoc(t, db, "fox fox cat", "B")
	dNone := storeWeightedDoc(t, db, "cat bird squirrel", "C")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.FindRanked("weighted", "fox", nil, 0)
	require.NoError(t, err)
	require.True(t, it.Ranked())

	var docs []uint32
	ranks := map[uint32]float32{}
	for {
		d, r, ok := it.Next()
		if !ok {
			break
		}
		docs = append(docs, d)
		ranks[d] = r
	}
	require.ElementsMatch(t, []uint32{dHigh, dMid}, docs, "only documents containing the query term should score")
	require.NotContains(t, docs, dNone)
	require.Greater(t, ranks[dHigh], ranks[dMid])
	for _, r := range ranks {
		require.GreaterOrEqual(t, r, float32(0))
		require.LessOrEqual(t, r, float32(1))
	}
}

func TestFindRankedRespectsMaxResultsAndFilter(t *testing.T) {
	db := newWeightedTestDatabank(t)
	storeWeightedDoc(t, db, "fox fox fox", "A")
	dKeep := storeWeightedDoc(t, db, "fox fox", "B")
	storeWeightedDoc(t, db, "fox", "C")
	storeWeightedDoc(t, db, "cat bird squirrel", "D")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.FindRanked("weighted", "fox", nil, 1)
	require.NoError(t, err)
	_, _, ok := it.Next()
	require.True(t, ok)
	_, _, ok = it.Next()
	require.False(t, ok, "maxResults=1 must bound the result set to the single highest scorer")

	filter, err := db.Find("id", "b")
	require.NoError(t, err)
	it, err = db.FindRanked("weighted", "fox", filter, 0)
	require.NoError(t, err)
	doc, _, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, dKeep, doc)
	_, _, ok = it.Next()
	require.False(t, ok, "a boolean filter must restrict the accumulator's doc set")
}

func TestFindRankedRejectsNonWeightedIndex(t *testing.T) {
	db := newWeightedTestDatabank(t)
	storeWeightedDoc(t, db, "fox", "A")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	_, err := db.FindRanked("text", "fox", nil, 0)
	require.Error(t, err)
}
