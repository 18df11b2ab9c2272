package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mhekkel/m6/databank"
)

func newTestDatabank(t *testing.T) *databank.Databank {
	t.Helper()
	dir := t.TempDir()
	schemas := []databank.IndexSchema{
		{Name: "id", Type: databank.IndexUnique, Desc: "unique document identifier"},
		{Name: "text", Type: databank.IndexText, Desc: "full text"},
	}
	db, err := databank.CreateNew(filepath.Join(dir, "test.m6db"), schemas, "text", "id")
	require.NoError(t, err)
	return db
}

func TestPipelineRunStoresEveryDocument(t *testing.T) {
	db := newTestDatabank(t)
	p := NewPipeline(db, Config{
		TextIndex:    "text",
		ValueIndexes: []ValueIndex{{IndexName: "id", Attribute: "id"}},
		Workers:      4,
		BatchSize:    3,
	})

	const n = 37
	docs := make(chan Document)
	go func() {
		defer close(docs)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("D%03d", i)
			docs <- Document{
				Text:       fmt.Sprintf("document number %d about foxes", i),
				Attributes: map[string]string{"id": id},
			}
		}
	}()

	require.NoError(t, p.Run(context.Background(), docs))
	require.Equal(t, uint32(n), db.MaxDocNr())

	it, err := db.FindQuery("foxes", true)
	require.NoError(t, err)
	var count int
	for {
		_, _, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, n, count)

	ok, _, err := db.Exists("id", "d020")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPipelineStopWordsAreGapped(t *testing.T) {
	db := newTestDatabank(t)
	p := NewPipeline(db, Config{
		TextIndex: "text",
		Workers:   1,
		BatchSize: 10,
		StopWords: []string{"the", "a"},
	})

	docs := make(chan Document, 1)
	docs <- Document{Text: "the quick fox jumps", Attributes: map[string]string{"id": "D1"}}
	close(docs)

	require.NoError(t, p.Run(context.Background(), docs))

	it, err := db.FindQuery("the", true)
	require.NoError(t, err)
	_, _, ok := it.Next()
	require.False(t, ok, "stop word must not be searchable")

	it, err = db.FindQuery("fox", true)
	require.NoError(t, err)
	_, _, ok = it.Next()
	require.True(t, ok, "non-stop-word must still be searchable")
}

func TestPipelineMissingAttributeFailsFast(t *testing.T) {
	db := newTestDatabank(t)
	p := NewPipeline(db, Config{
		TextIndex:    "text",
		ValueIndexes: []ValueIndex{{IndexName: "id", Attribute: "id"}},
		Workers:      2,
		BatchSize:    5,
	})

	docs := make(chan Document, 2)
	docs <- Document{Text: "fine", Attributes: map[string]string{"id": "D1"}}
	docs <- Document{Text: "missing attribute", Attributes: map[string]string{}}
	close(docs)

	err := p.Run(context.Background(), docs)
	require.Error(t, err)
}
