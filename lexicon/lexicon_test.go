package lexicon

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreInternIsStableAndOneBased(t *testing.T) {
	s := NewStore()
	a := s.Intern("alpha")
	b := s.Intern("beta")
	a2 := s.Intern("alpha")

	require.Equal(t, uint32(1), a)
	require.Equal(t, uint32(2), b)
	require.Equal(t, a, a2)
	require.Equal(t, "alpha", s.GetString(a))
	require.Equal(t, "", s.GetString(0))
}

func TestStoreLookupDoesNotAssign(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("missing")
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
}

func TestStoreInternConcurrentSameWord(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	ids := make([]uint32, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = s.Intern("shared")
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		require.Equal(t, uint32(1), id)
	}
	require.Equal(t, 1, s.Len())
}

func TestStagingFlushIntoRemapsAgainstShared(t *testing.T) {
	shared := NewStore()
	shared.Intern("existing") // id 1 in shared already

	staging := NewStaging()
	sOne := staging.Intern("existing")
	sTwo := staging.Intern("newword")

	remap := staging.FlushInto(shared)

	require.Equal(t, uint32(0), remap[0])
	require.Equal(t, uint32(1), remap[sOne])
	got, ok := shared.Lookup("newword")
	require.True(t, ok)
	require.Equal(t, got, remap[sTwo])
}

func TestMultipleStagingLexiconsFlushToSameIds(t *testing.T) {
	shared := NewStore()

	workerA := NewStaging()
	aWord := workerA.Intern("common")
	remapA := workerA.FlushInto(shared)

	workerB := NewStaging()
	bWord := workerB.Intern("common")
	remapB := workerB.FlushInto(shared)

	require.Equal(t, remapA[aWord], remapB[bWord])
}
