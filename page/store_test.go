package page

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateAllocGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.m6idx")

	s, err := Create(path)
	require.NoError(t, err)

	p, err := s.Alloc()
	require.NoError(t, err)
	p.SetType(TypeLeafSimple)
	p.SetN(3)
	copy(p.Data(), []byte("hello"))
	s.MarkDirty(p)
	nr := p.Nr()
	s.Release(p)

	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	s2, err := Open(path, true)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get(nr)
	require.NoError(t, err)
	require.Equal(t, TypeLeafSimple, got.Type())
	require.Equal(t, uint16(3), got.N())
	require.Equal(t, "hello", string(got.Data()[:5]))
	s2.Release(got)
}

func TestGetOutOfRangeIsInvariantError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.m6idx")
	s, err := Create(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(999)
	require.Error(t, err)
}

func TestEvictionSkipsPinnedPages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.m6idx")
	s, err := Create(path)
	require.NoError(t, err)
	defer s.Close()

	pinned, err := s.Alloc()
	require.NoError(t, err)
	pinnedNr := pinned.Nr()

	for i := 0; i < cacheCapacity+10; i++ {
		p, err := s.Alloc()
		require.NoError(t, err)
		s.Release(p)
	}

	got, err := s.Get(pinnedNr)
	require.NoError(t, err)
	require.Equal(t, pinnedNr, got.Nr())
	s.Release(got)
	s.Release(pinned)
}
