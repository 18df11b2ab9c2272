package databank

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhekkel/m6/lexicon"
)

func remapTokens(ids []uint32, remap []uint32) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = remap[id]
	}
	return out
}

func storeDoc(t *testing.T, db *Databank, text string, attrs map[string]string, idValue string) uint32 {
	t.Helper()
	staging := lexicon.NewStaging()
	ids := TokenizeAndIntern(text, staging)
	remap := staging.FlushInto(db.Lexicon())

	doc := InputDocument{
		Text:       text,
		Attributes: attrs,
		Values:     []IndexValue{{IndexName: "id", Value: idValue}},
		Tokens:     []IndexTokens{{IndexName: "text", TokenIDs: remapTokens(ids, remap)}},
	}
	docNr, err := db.Store(doc)
	require.NoError(t, err)
	return docNr
}

func newTestDatabank(t *testing.T) *Databank {
	t.Helper()
	dir := t.TempDir()
	schemas := []IndexSchema{
		{Name: "id", Type: IndexUnique, Desc: "unique document identifier"},
		{Name: "text", Type: IndexText, Desc: "full text"},
	}
	db, err := CreateNew(filepath.Join(dir, "test.m6db"), schemas, "text", "id")
	require.NoError(t, err)
	require.NoError(t, db.StartBatchImport())
	return db
}

// TestUniqueIndexFindByCaseFoldedID exercises spec §8 scenario 4: 1000
// documents with id = "ID_00001".."ID_01000", indexed unique and
// case-folded; find("id", "ID_00500") must resolve to exactly the one
// document whose text equals "id_00500" and whose stored "id" attribute
// is still the original-case "ID_00500".
func TestUniqueIndexFindByCaseFoldedID(t *testing.T) {
	db := newTestDatabank(t)

	const n = 1000
	docNrs := make(map[string]uint32, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("ID_%05d", i)
		text := strings.ToLower(id)
		docNr := storeDoc(t, db, text, map[string]string{"id": id}, id)
		docNrs[id] = docNr
	}

	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.Find("id", "ID_00500")
	require.NoError(t, err)
	doc, _, ok := it.Next()
	require.True(t, ok)
	_, _, ok = it.Next()
	require.False(t, ok, "unique index must resolve to exactly one document")

	require.Equal(t, docNrs["ID_00500"], doc)

	fetched, err := db.Fetch(doc)
	require.NoError(t, err)
	require.Equal(t, "id_00500", fetched.Text)
	require.Equal(t, "ID_00500", fetched.Attributes["id"])
}

func TestExistsAndDocNrForID(t *testing.T) {
	db := newTestDatabank(t)
	docNr := storeDoc(t, db, "hello world", map[string]string{"id": "DOC1"}, "DOC1")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	ok, got, err := db.Exists("id", "doc1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, docNr, got)

	got2, err := db.DocNrForID("doc1")
	require.NoError(t, err)
	require.Equal(t, docNr, got2)

	ok, _, err = db.Exists("id", "nope")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindQueryBooleanAgainstTextIndex(t *testing.T) {
	db := newTestDatabank(t)
	d1 := storeDoc(t, db, "the quick brown fox", map[string]string{"id": "A"}, "A")
	d2 := storeDoc(t, db, "the lazy dog", map[string]string{"id": "B"}, "B")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.FindQuery("fox", true)
	require.NoError(t, err)
	doc, _, ok := it.Next()
	require.True(t, ok)
	require.Equal(t, d1, doc)
	_, _, ok = it.Next()
	require.False(t, ok)

	it, err = db.FindQuery("the", true)
	require.NoError(t, err)
	var docs []uint32
	for {
		d, _, ok := it.Next()
		if !ok {
			break
		}
		docs = append(docs, d)
	}
	require.ElementsMatch(t, []uint32{d1, d2}, docs)
}

func TestFindRangeAcrossTextIndex(t *testing.T) {
	db := newTestDatabank(t)
	storeDoc(t, db, "apple", map[string]string{"id": "A"}, "A")
	storeDoc(t, db, "banana", map[string]string{"id": "B"}, "B")
	storeDoc(t, db, "cherry", map[string]string{"id": "C"}, "C")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	it, err := db.FindQuery("text < banana", true)
	require.NoError(t, err)
	doc, _, ok := it.Next()
	require.True(t, ok)
	_, _, more := it.Next()
	require.False(t, more)

	fetched, err := db.Fetch(doc)
	require.NoError(t, err)
	require.Equal(t, "apple", fetched.Text)
}

func TestValidateVacuumAndDumpIndex(t *testing.T) {
	db := newTestDatabank(t)
	storeDoc(t, db, "apple pie", map[string]string{"id": "A"}, "A")
	storeDoc(t, db, "banana split", map[string]string{"id": "B"}, "B")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	require.NoError(t, db.Validate())
	require.NoError(t, db.Vacuum())
	require.NoError(t, db.Validate())

	var buf bytes.Buffer
	require.NoError(t, db.DumpIndex("id", &buf))
	dump := buf.String()
	require.Contains(t, dump, "a\t")
	require.Contains(t, dump, "b\t")

	err := db.DumpIndex("no-such-index", &buf)
	require.Error(t, err)
}

func TestFetchBy(t *testing.T) {
	db := newTestDatabank(t)
	docNr := storeDoc(t, db, "hello world", map[string]string{"id": "DOC1"}, "DOC1")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	doc, err := db.FetchBy("id", "doc1")
	require.NoError(t, err)
	require.Equal(t, "hello world", doc.Text)

	_, err = db.FetchBy("id", "nope")
	require.Error(t, err)

	_, err = db.FetchBy("text", "hello")
	require.Error(t, err, "FetchBy against a non-unique index must fail")

	fetched, err := db.Fetch(docNr)
	require.NoError(t, err)
	require.Equal(t, doc.Text, fetched.Text)
}

func TestSuggestCorrections(t *testing.T) {
	db := newTestDatabank(t)
	storeDoc(t, db, "banana bandana band", map[string]string{"id": "A"}, "A")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())

	suggestions, err := db.SuggestCorrections("banan", 5)
	require.NoError(t, err)
	require.NotEmpty(t, suggestions)
	require.Equal(t, "banana", suggestions[0].Word)
}

func TestOpenReopensPersistedDatabank(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "reopen.m6db")
	schemas := []IndexSchema{
		{Name: "id", Type: IndexUnique},
		{Name: "text", Type: IndexText},
	}
	db, err := CreateNew(path, schemas, "text", "id")
	require.NoError(t, err)
	require.NoError(t, db.StartBatchImport())
	docNr := storeDoc(t, db, "persisted document", map[string]string{"id": "X"}, "X")
	require.NoError(t, db.EndBatchImport())
	require.NoError(t, db.FinishBatchImport())
	require.NoError(t, db.Close())

	reopened, err := Open(path, false)
	require.NoError(t, err)
	defer reopened.Close()

	fetched, err := reopened.Fetch(docNr)
	require.NoError(t, err)
	require.Equal(t, "persisted document", fetched.Text)

	ok, got, err := reopened.Exists("id", "x")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, docNr, got)
}
