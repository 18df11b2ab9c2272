package docstore

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.m6db")
	s, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestStoreFetchRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	doc := Document{
		Text: "the quick brown fox jumps over the lazy dog",
		Attributes: map[string]string{
			"id":    "doc-1",
			"title": "Fox",
		},
		Links: map[string][]string{
			"uniprot": {"P12345", "Q99999"},
		},
	}

	nr, err := s.Store(doc)
	require.NoError(t, err)
	require.Equal(t, uint32(1), nr)

	got, err := s.Fetch(nr)
	require.NoError(t, err)
	require.Equal(t, nr, got.DocNr)
	require.Equal(t, doc.Text, got.Text)
	require.Equal(t, doc.Attributes, got.Attributes)
	require.Equal(t, doc.Links, got.Links)
}

func TestFetchOutOfRangeIsNotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Fetch(1)
	require.Error(t, err)

	_, err = s.Store(Document{Text: "x", Attributes: map[string]string{"id": "1"}})
	require.NoError(t, err)

	_, err = s.Fetch(0)
	require.Error(t, err)
	_, err = s.Fetch(2)
	require.Error(t, err)
}

func TestBatchImportSizeAndOrder(t *testing.T) {
	s, _ := newTestStore(t)

	const n = 250
	for i := 1; i <= n; i++ {
		_, err := s.Store(Document{
			Text:       fmt.Sprintf("document number %d has some repeated repeated repeated text", i),
			Attributes: map[string]string{"id": fmt.Sprintf("ID_%05d", i)},
		})
		require.NoError(t, err)
	}

	require.Equal(t, n, s.Size())
	require.Equal(t, uint32(n), s.MaxDocNr())

	for i := 1; i <= n; i++ {
		doc, err := s.Fetch(uint32(i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("ID_%05d", i), doc.Attributes["id"])
	}

	seen := 0
	expected := 1
	err := s.Iter(func(doc Document) bool {
		seen++
		require.Equal(t, fmt.Sprintf("ID_%05d", expected), doc.Attributes["id"])
		expected++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, n, seen)
}

func TestIterStopsEarly(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 1; i <= 10; i++ {
		_, err := s.Store(Document{Text: "x", Attributes: map[string]string{"id": fmt.Sprintf("%d", i)}})
		require.NoError(t, err)
	}

	count := 0
	err := s.Iter(func(doc Document) bool {
		count++
		return count < 3
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestOpenAfterCloseRebuildsDirectory(t *testing.T) {
	s, path := newTestStore(t)

	const n = 40
	for i := 1; i <= n; i++ {
		_, err := s.Store(Document{
			Text:       strings.Repeat("lorem ipsum dolor sit amet ", i%7+1),
			Attributes: map[string]string{"id": fmt.Sprintf("ID_%03d", i)},
			Links:      map[string][]string{"other": {fmt.Sprintf("X%d", i)}},
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())

	reopened, err := Open(path, true)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, n, reopened.Size())
	require.Equal(t, uint32(n), reopened.MaxDocNr())

	for i := 1; i <= n; i++ {
		doc, err := reopened.Fetch(uint32(i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("ID_%03d", i), doc.Attributes["id"])
		require.Equal(t, []string{fmt.Sprintf("X%d", i)}, doc.Links["other"])
	}

	_, err = reopened.Store(Document{Text: "after reopen", Attributes: map[string]string{"id": "extra"}})
	require.NoError(t, err)
	require.Equal(t, n+1, reopened.Size())
}

func TestLargeDocumentSpansMultiplePages(t *testing.T) {
	s, _ := newTestStore(t)

	// Pseudo-random bytes defeat fastlz's matcher, forcing the raw
	// fallback path and a record that spans several 8192-byte pages.
	var b strings.Builder
	x := uint32(1)
	for i := 0; i < 20000; i++ {
		x = x*1664525 + 1013904223
		b.WriteByte(byte(x >> 24))
	}
	big := b.String()

	nr, err := s.Store(Document{Text: big, Attributes: map[string]string{"id": "big"}})
	require.NoError(t, err)

	got, err := s.Fetch(nr)
	require.NoError(t, err)
	require.Equal(t, big, got.Text)
}

func TestManySmallAttributesAndLinks(t *testing.T) {
	s, _ := newTestStore(t)

	attrs := map[string]string{}
	for i := 0; i < 20; i++ {
		attrs[fmt.Sprintf("attr%02d", i)] = fmt.Sprintf("value-%02d", i)
	}
	links := map[string][]string{
		"dbA": {"a1", "a2", "a3"},
		"dbB": {"b1"},
	}

	nr, err := s.Store(Document{Text: "small doc", Attributes: attrs, Links: links})
	require.NoError(t, err)

	got, err := s.Fetch(nr)
	require.NoError(t, err)
	require.Equal(t, attrs, got.Attributes)
	require.Equal(t, links, got.Links)
}

func TestFastlzRoundTrip(t *testing.T) {
	cases := []string{
		"",
		"a",
		"ab",
		"abc",
		strings.Repeat("x", 3),
		strings.Repeat("the quick brown fox ", 200),
		strings.Repeat("ab", 1),
	}
	for _, in := range cases {
		input := []byte(in)
		out := make([]byte, len(input)+len(input)/20+16)
		n := fastlzCompress(input, out)
		if n == 0 {
			continue // too small / incompressible, caller falls back to raw
		}
		decoded := make([]byte, len(input))
		dn := fastlzDecompress(out[:n], decoded)
		require.Equal(t, len(input), dn)
		require.Equal(t, input, decoded[:dn])
	}
}

func TestFastlzRoundTripRandomish(t *testing.T) {
	buf := make([]byte, 5000)
	for i := range buf {
		buf[i] = byte((i*2654435761 + i*i) % 256)
	}
	out := make([]byte, len(buf)+len(buf)/20+16)
	n := fastlzCompress(buf, out)
	if n == 0 {
		return
	}
	decoded := make([]byte, len(buf))
	dn := fastlzDecompress(out[:n], decoded)
	require.Equal(t, len(buf), dn)
	require.Equal(t, buf, decoded[:dn])
}

func TestEncodeBodyFallsBackToRawWhenIncompressible(t *testing.T) {
	var b strings.Builder
	x := uint32(1)
	for i := 0; i < 2000; i++ {
		x = x*1664525 + 1013904223
		b.WriteByte(byte(x >> 24))
	}
	doc := Document{Text: b.String(), Attributes: map[string]string{"id": "rand"}}
	body := encodeBody(doc)

	decoded, err := decodeRecord(body)
	require.NoError(t, err)
	require.Equal(t, doc.Text, decoded.Text)
}
