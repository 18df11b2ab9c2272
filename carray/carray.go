// Package carray implements the compressed ascending-integer-array codec
// used for posting lists (spec §4.2, L2): a gamma-coded count prefix
// followed by delta values packed under a 16-entry selector table that
// trades width for run length four deltas at a time.
//
// Grounded line-for-line on original_source/src/M6BitStream.cpp's
// kSelectors/Select/CompressSimpleArraySelector/ReadArray/ReadSimpleArray;
// index/delta.go (the teacher's simpler single-delta gamma codec) grounds
// the general shape of a reader/writer pair layered over a bit stream, but
// the selector table itself has no teacher analogue and is M6-specific.
package carray

import "github.com/mhekkel/m6/bitstream"

// selector pairs a bit-width adjustment with how many consecutive deltas it
// covers.
type selector struct {
	databits int32
	span     uint32
}

// selectors is M6BitStream.cpp's kSelectors, unchanged.
var selectors = [16]selector{
	{0, 1},
	{-3, 1},
	{-2, 1}, {-2, 2},
	{-1, 1}, {-1, 2}, {-1, 4},
	{0, 1}, {0, 2}, {0, 4},
	{1, 1}, {1, 2}, {1, 4},
	{2, 1}, {2, 2},
	{3, 1},
}

const (
	maxWidth   = 32
	startWidth = maxWidth / 2
)

// bitWidth returns the number of bits needed to hold v (0 for v == 0).
func bitWidth(v uint32) int32 {
	var w int32
	for v > 0 {
		v >>= 1
		w++
	}
	return w
}

// selectFor picks the best-fitting selector for the bitsNeeded[0:count]
// buffered deltas at the current width, exactly mirroring the original's
// greedy (span-1)*4-waste scoring. count is in [1,4].
func selectFor(bitsNeeded [4]int32, count uint32, width int32) uint32 {
	result := uint32(0)
	best := bitsNeeded[0] - maxWidth

	for i := 1; i < 16; i++ {
		s := selectors[i]
		if s.span > count {
			continue
		}
		w := width + s.databits
		if w > maxWidth || w < 0 {
			continue
		}

		fits := true
		waste := int32(0)
		for j := uint32(0); j < s.span; j++ {
			if bitsNeeded[j] > w {
				fits = false
			}
			waste += w - bitsNeeded[j]
		}
		if !fits {
			continue
		}

		n := int32(s.span-1)*4 - waste
		if n > best {
			result = uint32(i)
			best = n
		}
	}

	return result
}

// encoder buffers up to 4 pending deltas and flushes them with
// CompressSimpleArraySelector's greedy selector choice. Used directly by
// WriteArray, through which weighted-list encoding (below) reuses the
// exact same per-bucket codec.
type encoder struct {
	out   *bitstream.Output
	width int32
	last  uint32
	bn    [4]int32
	dv    [4]uint32
	bc    uint32
}

func newEncoder(out *bitstream.Output) *encoder {
	return &encoder{out: out, width: startWidth}
}

// push buffers one ascending value (must be > the previous value pushed,
// and > 0 for the first value).
func (e *encoder) push(v uint32) {
	delta := v - e.last - 1
	e.last = v
	e.dv[e.bc] = delta
	e.bn[e.bc] = bitWidth(delta)
	e.bc++
	if e.bc == 4 {
		e.flush()
	}
}

func (e *encoder) flush() {
	for e.bc > 0 {
		s := selectFor(e.bn, e.bc, e.width)
		if s == 0 {
			e.width = maxWidth
		} else {
			e.width += selectors[s].databits
		}
		n := selectors[s].span
		if n > e.bc {
			n = e.bc
		}

		e.out.WriteBinary(4, uint64(s))
		if e.width > 0 {
			for i := uint32(0); i < n; i++ {
				e.out.WriteBinary(int(e.width), uint64(e.dv[i]))
			}
		}

		e.bc -= n
		for i := uint32(0); i < e.bc; i++ {
			e.bn[i] = e.bn[i+n]
			e.dv[i] = e.dv[i+n]
		}
	}
}

// decoder is the read-side mirror of encoder, one value at a time — the
// same state machine as M6CompressedArrayIterator::Next.
type decoder struct {
	in      *bitstream.Input
	width   uint32
	span    uint32
	current uint32
}

func newDecoder(in *bitstream.Input) *decoder {
	return &decoder{in: in, width: startWidth}
}

// next decodes and returns the next value.
func (d *decoder) next() uint32 {
	if d.span == 0 {
		s := d.in.ReadBinary(4)
		d.span = selectors[s].span
		if s == 0 {
			d.width = maxWidth
		} else {
			d.width = uint32(int32(d.width) + selectors[s].databits)
		}
	}

	if d.width > 0 {
		d.current += uint32(d.in.ReadBinary(int(d.width)))
	}
	d.current++
	d.span--
	return d.current
}

// Iterator walks a compressed array one value at a time without materializing
// the whole slice, mirroring M6CompressedArrayIterator — used by query
// iterators over large posting lists.
type Iterator struct {
	dec   *decoder
	count uint32
}

// NewIterator returns an Iterator over count values encoded at in's current
// position (the caller has already consumed the gamma-coded count prefix,
// typically by calling ReadCount first).
func NewIterator(in *bitstream.Input, count uint32) *Iterator {
	return &Iterator{dec: newDecoder(in), count: count}
}

// Next reports whether a value was produced and, if so, its value.
func (it *Iterator) Next() (uint32, bool) {
	if it.count == 0 {
		return 0, false
	}
	it.count--
	return it.dec.next(), true
}

// ReadCount reads the gamma-coded element count prefix written by
// WriteArray, without decoding any values.
func ReadCount(in *bitstream.Input) uint32 {
	return uint32(in.ReadGamma())
}

// WriteArray writes values (strictly ascending, first element > 0) as a
// gamma-coded count followed by the selector-coded delta stream.
func WriteArray(out *bitstream.Output, values []uint32) {
	out.WriteGamma(uint64(len(values)))
	if len(values) == 0 {
		return
	}
	if values[0] == 0 {
		panic("carray: array must not contain zero")
	}
	enc := newEncoder(out)
	for _, v := range values {
		enc.push(v)
	}
	enc.flush()
}

// ReadArray decodes a value written by WriteArray.
func ReadArray(in *bitstream.Input) []uint32 {
	count := ReadCount(in)
	values := make([]uint32, 0, count)
	dec := newDecoder(in)
	for i := uint32(0); i < count; i++ {
		values = append(values, dec.next())
	}
	return values
}

// ReadArrayIntoBitmap decodes a value array written by WriteArray directly
// into a caller-owned bitmap (length len(bitmap)), setting bit[v] for each
// decoded value v that falls within range. It reports the encoded element
// count and how many previously-unset bits it set, mirroring the original's
// union-accumulation ReadArray(vector<bool>&, ...) overload used when
// merging several postings lists that share one bit-vector page.
func ReadArrayIntoBitmap(in *bitstream.Input, bitmap []bool) (count, updated uint32) {
	count = ReadCount(in)
	dec := newDecoder(in)
	for i := uint32(0); i < count; i++ {
		v := dec.next()
		if int(v) >= len(bitmap) {
			break
		}
		if !bitmap[v] {
			bitmap[v] = true
			updated++
		}
	}
	return count, updated
}

// ReadSimpleArrayIntoBitmap is the no-count-prefix variant (the caller
// already knows the element count, e.g. from a B+ tree leaf's stored
// count), mirroring ReadSimpleArray.
func ReadSimpleArrayIntoBitmap(in *bitstream.Input, n uint32, bitmap []bool) (updated uint32) {
	dec := newDecoder(in)
	for i := uint32(0); i < n; i++ {
		v := dec.next()
		if int(v) >= len(bitmap) {
			break
		}
		if !bitmap[v] {
			bitmap[v] = true
			updated++
		}
	}
	return updated
}

// --------------------------------------------------------------------
// Weighted lists (spec §4.2's weight-descending encoding; left
// "unfinished" in the original per spec §9 and specified in full here). A
// weighted list is stored as a sequence of (weight, bucket) pairs in
// descending weight order, each bucket a normal ascending carray of the doc
// numbers sharing that weight, terminated by a gamma-coded 1<<32, a value
// no uint32 weight can take. Doc numbers are ascending within a bucket,
// since carray's codec only compresses ascending runs, and ReadWeightedArray
// returns them in that order: weight descending, then doc-nr ascending. No
// doc-nr-descending order within a weight is produced.
type WeightedEntry struct {
	Doc    uint32
	Weight uint32 // must be >= 1; WriteWeightedArray panics on weight 0
}

// WriteWeightedArray writes entries, which need not be pre-sorted. Every
// entry's Weight must be >= 1.
func WriteWeightedArray(out *bitstream.Output, entries []WeightedEntry) {
	byWeight := make(map[uint32][]uint32, len(entries))
	weights := make([]uint32, 0, len(entries))
	for _, e := range entries {
		if e.Weight == 0 {
			panic("carray: weighted entry must have weight >= 1")
		}
		if _, ok := byWeight[e.Weight]; !ok {
			weights = append(weights, e.Weight)
		}
		byWeight[e.Weight] = append(byWeight[e.Weight], e.Doc)
	}
	sortDescending(weights)

	for _, w := range weights {
		docs := byWeight[w]
		sortAscending(docs)
		out.WriteGamma(uint64(w))
		WriteArray(out, docs)
	}
	out.WriteGamma(1 << 32) // weight value no real bucket ever uses: end-of-stream sentinel
}

// ReadWeightedArray decodes a stream written by WriteWeightedArray.
func ReadWeightedArray(in *bitstream.Input) []WeightedEntry {
	var out []WeightedEntry
	for {
		w := in.ReadGamma()
		if w == 1<<32 {
			return out
		}
		docs := ReadArray(in)
		for _, d := range docs {
			out = append(out, WeightedEntry{Doc: d, Weight: uint32(w)})
		}
	}
}

func sortDescending(v []uint32) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] < v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

func sortAscending(v []uint32) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}
