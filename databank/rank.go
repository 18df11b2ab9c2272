package databank

import (
	"container/heap"
	"math"
	"sort"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/query"
	"github.com/mhekkel/m6/tokenizer"
)

// rankHeapItem is one scored document parked in FindRanked's bounded
// min-heap, mirroring query.unionHeapItem's role in UnionIterator's merge.
type rankHeapItem struct {
	doc   uint32
	score float64
}

type rankHeap []rankHeapItem

func (h rankHeap) Len() int           { return len(h) }
func (h rankHeap) Less(i, j int) bool { return h[i].score < h[j].score }
func (h rankHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankHeap) Push(x any)        { *h = append(*h, x.(rankHeapItem)) }
func (h *rankHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// FindRanked scores every document carrying at least one query term against
// a weighted index by a BM25-like accumulator (spec §4.8): each term
// contributes weight*idf(term) to its owning document, idf = log(N/df)
// where N is the document count and df the term's posting count; the total
// is then divided by the document's length norm (spec §4.9 step 7's
// "per-document length norms for ranked scoring"). Only the maxResults
// highest-scoring documents survive, kept via a bounded min-heap (spec
// §4.8's "top-K via bounded min-heap"); maxResults <= 0 means unbounded.
// Surviving scores are normalized against the batch's own maximum into
// [0,1] floats before being handed back as query.Hit ranks. filter, if
// non-nil, is a boolean iterator (e.g. from FindQuery) restricting the
// accumulator's doc set (spec §4.8: "when the user supplies a boolean filter
// alongside ranked terms, the intersection with the filter restricts the
// accumulator's doc set") — term idf is still computed from the full corpus,
// only which documents accumulate is restricted.
func (db *Databank) FindRanked(indexName, queryText string, filter query.Iterator, maxResults int) (query.Iterator, error) {
	ix, ok := db.indexes[indexName]
	if !ok {
		return nil, m6.New("databank.FindRanked", m6.KindNotFound, "no such index: "+indexName)
	}
	if ix.schema.Type != IndexWeighted {
		return nil, m6.New("databank.FindRanked", m6.KindInvariant,
			"ranked scoring requires a weighted index, got "+ix.schema.Type.String())
	}

	var allowed map[uint32]bool
	if filter != nil {
		allowed = make(map[uint32]bool)
		for {
			d, _, ok := filter.Next()
			if !ok {
				break
			}
			allowed[d] = true
		}
	}

	n := float64(db.MaxDocNr())
	scores := make(map[uint32]float64)
	for _, term := range tokenizeWords(queryText) {
		entries, err := ix.weightedEntries(tokenizer.Fold(term))
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		idf := math.Log(n / float64(len(entries)))
		if idf <= 0 {
			continue // term occurs in every document: no discriminating power
		}
		for _, e := range entries {
			if allowed != nil && !allowed[e.Doc] {
				continue
			}
			scores[e.Doc] += float64(e.Weight) * idf
		}
	}

	h := &rankHeap{}
	heap.Init(h)
	var max float64
	for doc, s := range scores {
		if norm := ix.lengthNorm(doc); norm > 0 {
			s /= norm
		}
		if s > max {
			max = s
		}
		heap.Push(h, rankHeapItem{doc: doc, score: s})
		if maxResults > 0 && h.Len() > maxResults {
			heap.Pop(h)
		}
	}

	hits := make([]query.Hit, h.Len())
	for i := len(hits) - 1; i >= 0; i-- {
		item := heap.Pop(h).(rankHeapItem)
		rank := float32(1)
		if max > 0 {
			rank = float32(item.score / max)
		}
		hits[i] = query.Hit{Doc: item.doc, Rank: rank}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Doc < hits[j].Doc })
	return query.NewVectorIterator(hits), nil
}
