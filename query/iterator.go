// Package query implements the lazy doc-id iterator algebra (spec §4.8,
// L8) plus the query grammar that compiles a query string into a tree of
// iterators (spec §4.8's grammar, §9's "explicit Ast + Build fold" note).
//
// Grounded directly on original_source/src/M6Iterator.{h,cpp} for the
// iterator shapes (M6AllDocIterator, M6SingleDocIterator,
// M6MultiDocIterator, M6NotIterator, M6UnionIterator,
// M6IntersectionIterator, M6PhraseIterator) and on index/read.go's
// postReader/mergeOr for the idiomatic Go "lazy cursor with an Next/ok
// pair" shape the teacher already uses for its own posting-list merges.
package query

import (
	"container/heap"

	"github.com/RoaringBitmap/roaring"
)

// Iterator is a lazy stream of (doc-nr, rank) pairs in non-decreasing
// doc-nr order. Next returns false once exhausted.
type Iterator interface {
	Next() (doc uint32, rank float32, ok bool)
	// Count is a best-effort upper bound on remaining hits: exact for leaf
	// postings, heuristic for composites. Don't trust it for correctness.
	Count() uint32
	// Ranked reports whether returned ranks carry real scores (vs. the
	// default 1.0 boolean-match rank).
	Ranked() bool
}

// AllDocIterator yields every doc-nr in [1, max], rank 1.
type AllDocIterator struct {
	cur, max uint32
}

func NewAllDocIterator(max uint32) *AllDocIterator { return &AllDocIterator{cur: 1, max: max} }

func (it *AllDocIterator) Next() (uint32, float32, bool) {
	if it.cur > it.max {
		return 0, 0, false
	}
	d := it.cur
	it.cur++
	return d, 1, true
}
func (it *AllDocIterator) Count() uint32 { return it.max }
func (it *AllDocIterator) Ranked() bool  { return false }

// SingleDocIterator yields one doc-nr once.
type SingleDocIterator struct {
	doc  uint32
	rank float32
	done bool
}

func NewSingleDocIterator(doc uint32, rank float32) *SingleDocIterator {
	return &SingleDocIterator{doc: doc, rank: rank}
}

func (it *SingleDocIterator) Next() (uint32, float32, bool) {
	if it.done || it.doc == 0 {
		return 0, 0, false
	}
	it.done = true
	return it.doc, it.rank, true
}
func (it *SingleDocIterator) Count() uint32 { return 1 }
func (it *SingleDocIterator) Ranked() bool  { return it.rank != 1 }

// VectorIterator replays a precomputed, already doc-nr-sorted (doc, rank)
// slice — the path ranked BM25-like results take back into boolean
// composition (spec §4.8).
type VectorIterator struct {
	hits []Hit
	pos  int
}

// Hit is one (doc-nr, rank) pair, as produced by ranked scoring.
type Hit struct {
	Doc  uint32
	Rank float32
}

func NewVectorIterator(hits []Hit) *VectorIterator { return &VectorIterator{hits: hits} }

func (it *VectorIterator) Next() (uint32, float32, bool) {
	if it.pos >= len(it.hits) {
		return 0, 0, false
	}
	h := it.hits[it.pos]
	it.pos++
	return h.Doc, h.Rank, true
}
func (it *VectorIterator) Count() uint32 { return uint32(len(it.hits)) }
func (it *VectorIterator) Ranked() bool  { return true }

// postings is the minimal decoded-posting-list cursor MultiDocIterator
// wraps: anything that can hand back ascending doc-nrs one at a time
// (carray.Iterator satisfies this).
type postings interface {
	Next() (uint32, bool)
}

// MultiDocIterator wraps a decoded compressed posting list (spec §4.2).
type MultiDocIterator struct {
	it    postings
	count uint32
}

func NewMultiDocIterator(it postings, count uint32) *MultiDocIterator {
	return &MultiDocIterator{it: it, count: count}
}

func (it *MultiDocIterator) Next() (uint32, float32, bool) {
	d, ok := it.it.Next()
	if !ok {
		return 0, 0, false
	}
	return d, 1, true
}
func (it *MultiDocIterator) Count() uint32 { return it.count }
func (it *MultiDocIterator) Ranked() bool  { return false }

// NotIterator yields the complement of its child against [1, max],
// advancing the child lazily as the complement is walked.
type NotIterator struct {
	inner   Iterator
	cur     uint32
	next    uint32 // next doc the inner iterator will exclude, 0 once inner exhausted
	max     uint32
	primed  bool
}

func NewNotIterator(inner Iterator, max uint32) *NotIterator {
	return &NotIterator{inner: inner, max: max}
}

func (it *NotIterator) prime() {
	if it.primed {
		return
	}
	it.primed = true
	it.cur = 1
	it.advanceInner()
}

func (it *NotIterator) advanceInner() {
	for {
		d, _, ok := it.inner.Next()
		if !ok {
			it.next = 0
			return
		}
		if d >= it.cur {
			it.next = d
			return
		}
	}
}

func (it *NotIterator) Next() (uint32, float32, bool) {
	it.prime()
	for it.cur <= it.max {
		d := it.cur
		it.cur++
		if d == it.next {
			it.advanceInner()
			continue
		}
		return d, 1, true
	}
	return 0, 0, false
}
func (it *NotIterator) Count() uint32 { return it.max }
func (it *NotIterator) Ranked() bool  { return false }

// unionHeapItem is one child iterator parked at its current head doc-nr,
// mirroring M6Iterator.h's M6IteratorPart.
type unionHeapItem struct {
	it   Iterator
	doc  uint32
	rank float32
}

type unionHeap []*unionHeapItem

func (h unionHeap) Len() int            { return len(h) }
func (h unionHeap) Less(i, j int) bool  { return h[i].doc < h[j].doc }
func (h unionHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *unionHeap) Push(x any)         { *h = append(*h, x.(*unionHeapItem)) }
func (h *unionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// UnionIterator merges its children via a min-heap keyed on doc-nr,
// deduplicating equal heads (the documented M6UnionIterator behavior).
type UnionIterator struct {
	h      unionHeap
	count  uint32
	ranked bool
}

// NewUnionIterator builds a union over children, priming the heap with
// each child's first hit.
func NewUnionIterator(children ...Iterator) *UnionIterator {
	u := &UnionIterator{}
	for _, c := range children {
		u.count += c.Count()
		if c.Ranked() {
			u.ranked = true
		}
		if d, r, ok := c.Next(); ok {
			heap.Push(&u.h, &unionHeapItem{it: c, doc: d, rank: r})
		}
	}
	heap.Init(&u.h)
	return u
}

func (u *UnionIterator) Next() (uint32, float32, bool) {
	if u.h.Len() == 0 {
		return 0, 0, false
	}
	top := u.h[0]
	doc, rank := top.doc, top.rank

	// Swallow every child currently parked on the same doc-nr.
	for u.h.Len() > 0 && u.h[0].doc == doc {
		item := heap.Pop(&u.h).(*unionHeapItem)
		if item.rank > rank {
			rank = item.rank
		}
		if d, r, ok := item.it.Next(); ok {
			item.doc, item.rank = d, r
			heap.Push(&u.h, item)
		}
	}
	return doc, rank, true
}
func (u *UnionIterator) Count() uint32 { return u.count }
func (u *UnionIterator) Ranked() bool  { return u.ranked }

// IntersectionIterator advances all children in lock-step, yielding a
// doc-nr only when every child's head agrees (mirrors M6IntersectionIterator's
// sort-children-by-head, advance-the-laggards approach).
type IntersectionIterator struct {
	children []Iterator
	heads    []uint32
	ranks    []float32
	ok       []bool
	ranked   bool
}

func NewIntersectionIterator(children ...Iterator) *IntersectionIterator {
	it := &IntersectionIterator{
		children: children,
		heads:    make([]uint32, len(children)),
		ranks:    make([]float32, len(children)),
		ok:       make([]bool, len(children)),
	}
	for i, c := range children {
		if c.Ranked() {
			it.ranked = true
		}
		it.heads[i], it.ranks[i], it.ok[i] = c.Next()
	}
	return it
}

func (it *IntersectionIterator) Next() (uint32, float32, bool) {
	if len(it.children) == 0 {
		return 0, 0, false
	}
	for {
		var maxDoc uint32
		for i := range it.children {
			if !it.ok[i] {
				return 0, 0, false
			}
			if it.heads[i] > maxDoc {
				maxDoc = it.heads[i]
			}
		}
		allMatch := true
		for i := range it.children {
			if it.heads[i] != maxDoc {
				allMatch = false
			}
		}
		if allMatch {
			rank := float32(0)
			for i := range it.children {
				if it.ranks[i] > rank {
					rank = it.ranks[i]
				}
			}
			doc := maxDoc
			for i := range it.children {
				it.heads[i], it.ranks[i], it.ok[i] = it.children[i].Next()
			}
			return doc, rank, true
		}
		for i := range it.children {
			if it.heads[i] < maxDoc {
				it.heads[i], it.ranks[i], it.ok[i] = it.children[i].Next()
			}
		}
	}
}
func (it *IntersectionIterator) Count() uint32 {
	min := uint32(1<<32 - 1)
	for _, c := range it.children {
		if n := c.Count(); n < min {
			min = n
		}
	}
	if len(it.children) == 0 {
		return 0
	}
	return min
}
func (it *IntersectionIterator) Ranked() bool { return it.ranked }

// BitmapIterator scans a densely encoded hit bitmap, yielding set-bit
// doc-nrs in ascending order (spec §4.8). Backed by RoaringBitmap for the
// same compact representation ranked-query accumulators use.
type BitmapIterator struct {
	it  roaring.IntPeekable
	max uint32
}

func NewBitmapIterator(bm *roaring.Bitmap) *BitmapIterator {
	return &BitmapIterator{it: bm.Iterator(), max: uint32(bm.GetCardinality())}
}

func (it *BitmapIterator) Next() (uint32, float32, bool) {
	if !it.it.HasNext() {
		return 0, 0, false
	}
	return it.it.Next(), 1, true
}
func (it *BitmapIterator) Count() uint32 { return it.max }
func (it *BitmapIterator) Ranked() bool  { return false }

// PhrasePart is one term of a phrase query: the term's posting iterator,
// its 0-based position within the phrase, and a function that returns the
// term's in-document token positions for the iterator's current doc.
type PhrasePart struct {
	Iter     Iterator
	Position int
	Positions func(doc uint32) []uint32
}

// PhraseIterator behaves like an intersection, but additionally requires
// that each term's in-document positions (after shifting by the term's
// 0-based offset within the phrase) have a common value for the document
// to be a hit (spec §4.8, §8's phrase-adjacency property).
type PhraseIterator struct {
	parts []PhrasePart
	inner *IntersectionIterator
}

func NewPhraseIterator(parts []PhrasePart) *PhraseIterator {
	iters := make([]Iterator, len(parts))
	for i, p := range parts {
		iters[i] = p.Iter
	}
	return &PhraseIterator{parts: parts, inner: NewIntersectionIterator(iters...)}
}

func (it *PhraseIterator) Next() (uint32, float32, bool) {
	for {
		doc, rank, ok := it.inner.Next()
		if !ok {
			return 0, 0, false
		}
		if it.adjacent(doc) {
			return doc, rank, true
		}
	}
}

// adjacent reports whether there exist positions p1 < p2 < ... < pk with
// p(i+1) = p(i) + 1 and term i occurring at p(i), by shifting each term's
// position set by -Position and intersecting.
func (it *PhraseIterator) adjacent(doc uint32) bool {
	if len(it.parts) == 0 {
		return false
	}
	common := map[uint32]bool{}
	for _, p := range it.parts[0].Positions(doc) {
		if p >= uint32(it.parts[0].Position) {
			common[p-uint32(it.parts[0].Position)] = true
		}
	}
	for _, part := range it.parts[1:] {
		next := map[uint32]bool{}
		for _, p := range part.Positions(doc) {
			if p < uint32(part.Position) {
				continue
			}
			base := p - uint32(part.Position)
			if common[base] {
				next[base] = true
			}
		}
		common = next
		if len(common) == 0 {
			return false
		}
	}
	return len(common) > 0
}

func (it *PhraseIterator) Count() uint32 { return it.inner.Count() }
func (it *PhraseIterator) Ranked() bool  { return false }
