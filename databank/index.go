package databank

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/bitstream"
	"github.com/mhekkel/m6/btree"
	"github.com/mhekkel/m6/carray"
	"github.com/mhekkel/m6/page"
	"github.com/mhekkel/m6/query"
	"github.com/mhekkel/m6/tokenizer"
)

// weightedMaxWeight is the largest weight a weighted posting can carry: the
// 5-bit field spec §3/§4.2 declare for the weighted character index.
const weightedMaxWeight = 31

// index is the run-time handle for one declared index: its B+ tree (in the
// leaf flavor its IndexType calls for), the out-of-line posting-list file
// ("indirect" storage per spec §4.4) and, for phrase-capable indexes, the
// companion IDL file holding per-document position lists (spec §6's ".idl
// companion file per phrase-capable index").
type index struct {
	schema IndexSchema
	dir    string
	store  *page.Store

	unique *btree.Tree[uint32]
	multi  *btree.Tree[btree.MultiData]
	idl    *btree.Tree[btree.MultiIDLData]

	spill       *os.File
	idlFile     *os.File
	lengthsPath string

	mu      sync.Mutex
	acc     map[string]*accEntry
	lengths map[uint32]uint32 // IndexWeighted only: doc-nr -> token count, for FindRanked's length norm
}

// accEntry is one key's in-memory posting accumulator during batch import
// (spec §4.9 step 5: "per-index accumulators ... insert doc-nr (and
// positions) into the accumulator").
type accEntry struct {
	docs      []uint32
	seen      map[uint32]bool
	positions map[uint32][]uint32 // IndexPhrase only
	weights   map[uint32]uint32   // IndexWeighted only: doc-nr -> term-frequency weight
}

func indexFileNames(dir, name string) (storePath, spillPath, idlPath, lengthsPath string) {
	storePath = filepath.Join(dir, name+".index")
	spillPath = filepath.Join(dir, name+".postings")
	idlPath = filepath.Join(dir, name+".idl")
	lengthsPath = filepath.Join(dir, name+".lengths")
	return
}

// createIndex allocates a fresh, empty index of the declared schema.
func createIndex(dir string, schema IndexSchema) (*index, error) {
	storePath, spillPath, idlPath, lengthsPath := indexFileNames(dir, schema.Name)
	ps, err := page.Create(storePath)
	if err != nil {
		return nil, err
	}
	ix := &index{schema: schema, dir: dir, store: ps, lengthsPath: lengthsPath}
	if err := ix.attachTree(); err != nil {
		ps.Close()
		return nil, err
	}
	if schema.Type != IndexUnique {
		f, err := os.OpenFile(spillPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			ps.Close()
			return nil, m6.Wrap("databank.createIndex", m6.KindIO, err)
		}
		ix.spill = f
	}
	if schema.Type == IndexPhrase {
		f, err := os.OpenFile(idlPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			ps.Close()
			return nil, m6.Wrap("databank.createIndex", m6.KindIO, err)
		}
		ix.idlFile = f
	}
	return ix, nil
}

// openIndex reopens an index previously created by createIndex.
func openIndex(dir string, schema IndexSchema, writable bool) (*index, error) {
	storePath, spillPath, idlPath, lengthsPath := indexFileNames(dir, schema.Name)
	ps, err := page.Open(storePath, writable)
	if err != nil {
		return nil, err
	}
	ix := &index{schema: schema, dir: dir, store: ps, lengthsPath: lengthsPath}
	if err := ix.attachTree(); err != nil {
		ps.Close()
		return nil, err
	}
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	if schema.Type != IndexUnique {
		f, err := os.OpenFile(spillPath, flag, 0644)
		if err != nil {
			ps.Close()
			return nil, m6.Wrap("databank.openIndex", m6.KindIO, err)
		}
		ix.spill = f
	}
	if schema.Type == IndexPhrase {
		f, err := os.OpenFile(idlPath, flag, 0644)
		if err != nil {
			ps.Close()
			return nil, m6.Wrap("databank.openIndex", m6.KindIO, err)
		}
		ix.idlFile = f
	}
	if schema.Type == IndexWeighted {
		if err := ix.loadLengths(); err != nil {
			ps.Close()
			return nil, err
		}
	}
	return ix, nil
}

func (ix *index) attachTree() error {
	switch ix.schema.Type {
	case IndexUnique:
		ix.unique = btree.NewSimple(ix.store)
	case IndexPhrase:
		ix.idl = btree.NewMultiIDL(ix.store)
	default:
		ix.multi = btree.NewMulti(ix.store)
	}
	return nil
}

func (ix *index) close() error {
	var err error
	if cerr := ix.store.Close(); cerr != nil {
		err = cerr
	}
	if ix.spill != nil {
		if cerr := ix.spill.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	if ix.idlFile != nil {
		if cerr := ix.idlFile.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// startBatch resets the in-memory accumulator (spec §4.9 step 1).
func (ix *index) startBatch() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.acc = make(map[string]*accEntry)
}

// storeUnique records doc as the (expected-only) holder of key.
func (ix *index) storeUnique(value string, doc uint32) error {
	key, err := ix.encodeKey(value)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if e, ok := ix.acc[string(key)]; ok {
		return m6.New("databank.Store", m6.KindInvariant,
			"duplicate value for unique index "+ix.schema.Name+": "+value+" (doc "+strconv.Itoa(int(e.docs[0]))+")")
	}
	ix.acc[string(key)] = &accEntry{docs: []uint32{doc}}
	return nil
}

// storePosting records one occurrence of value in doc, for a plain
// posting-list index (IndexText/IndexNumber/IndexFloat).
func (ix *index) storePosting(value string, doc uint32) error {
	key, err := ix.encodeKey(value)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.acc[string(key)]
	if !ok {
		e = &accEntry{seen: map[uint32]bool{}}
		ix.acc[string(key)] = e
	}
	if !e.seen[doc] {
		e.seen[doc] = true
		e.docs = append(e.docs, doc)
	}
	return nil
}

// storePosition is storePosting plus a recorded in-document token position,
// for a phrase-capable index.
func (ix *index) storePosition(value string, doc, pos uint32) error {
	key, err := ix.encodeKey(value)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.acc[string(key)]
	if !ok {
		e = &accEntry{seen: map[uint32]bool{}, positions: map[uint32][]uint32{}}
		ix.acc[string(key)] = e
	}
	if !e.seen[doc] {
		e.seen[doc] = true
		e.docs = append(e.docs, doc)
	}
	e.positions[doc] = append(e.positions[doc], pos)
	return nil
}

// storeWeighted records doc's term-frequency weight for value in a weighted
// index, clamped to the 5-bit range the posting-list codec allows.
func (ix *index) storeWeighted(value string, doc uint32, weight uint32) error {
	key, err := ix.encodeKey(value)
	if err != nil {
		return err
	}
	if weight == 0 {
		weight = 1
	}
	if weight > weightedMaxWeight {
		weight = weightedMaxWeight
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.acc[string(key)]
	if !ok {
		e = &accEntry{weights: map[uint32]uint32{}}
		ix.acc[string(key)] = e
	}
	e.weights[doc] = weight
	return nil
}

// recordLength remembers doc's total token count against this weighted
// index, for FindRanked's length norm (spec §4.9 step 7).
func (ix *index) recordLength(doc uint32, tokenCount uint32) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.lengths == nil {
		ix.lengths = make(map[uint32]uint32)
	}
	ix.lengths[doc] = tokenCount
}

// lengthNorm returns the cosine-style length norm FindRanked divides its
// accumulator by: sqrt of the document's recorded token count, 0 if no
// length was ever recorded for doc (e.g. it didn't feed this index).
func (ix *index) lengthNorm(doc uint32) float64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	count, ok := ix.lengths[doc]
	if !ok || count == 0 {
		return 0
	}
	return math.Sqrt(float64(count))
}

// persistLengths overwrites this index's length file with the full
// in-memory table, run once per flush (every length a process has ever
// recorded is still resident, so a full rewrite is always authoritative).
func (ix *index) persistLengths() error {
	raw, err := json.Marshal(ix.lengths)
	if err != nil {
		return m6.Wrap("databank.persistLengths", m6.KindIO, err)
	}
	if err := os.WriteFile(ix.lengthsPath, raw, 0644); err != nil {
		return m6.Wrap("databank.persistLengths", m6.KindIO, err)
	}
	return nil
}

// loadLengths restores the length table a previous session persisted,
// leaving it empty if this weighted index has never been flushed yet.
func (ix *index) loadLengths() error {
	raw, err := os.ReadFile(ix.lengthsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return m6.Wrap("databank.loadLengths", m6.KindIO, err)
	}
	return json.Unmarshal(raw, &ix.lengths)
}

// flush walks the accumulator in ascending key order, compressing each
// posting list and inserting it into the B+ tree (spec §4.9 step 6).
func (ix *index) flush() error {
	ix.mu.Lock()
	acc := ix.acc
	ix.acc = nil
	ix.mu.Unlock()

	keys := make([]string, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		e := acc[k]
		key := []byte(k)
		switch ix.schema.Type {
		case IndexUnique:
			if err := ix.unique.Insert(key, e.docs[0]); err != nil {
				return err
			}
		case IndexPhrase:
			sortAscendingU32(e.docs)
			md, err := ix.encodePostings(e.docs)
			if err != nil {
				return err
			}
			idlOff, err := ix.writeIDL(e.docs, e.positions)
			if err != nil {
				return err
			}
			full := btree.MultiIDLData{Count: md.Count, BitVec: md.BitVec, IDLOffset: idlOff}
			if err := ix.idl.Insert(key, full); err != nil {
				return err
			}
		case IndexWeighted:
			entries := make([]carray.WeightedEntry, 0, len(e.weights))
			for doc, w := range e.weights {
				entries = append(entries, carray.WeightedEntry{Doc: doc, Weight: w})
			}
			md, err := ix.encodeWeightedPostings(entries)
			if err != nil {
				return err
			}
			if err := ix.multi.Insert(key, md); err != nil {
				return err
			}
		default:
			sortAscendingU32(e.docs)
			md, err := ix.encodePostings(e.docs)
			if err != nil {
				return err
			}
			if err := ix.multi.Insert(key, md); err != nil {
				return err
			}
		}
	}
	if ix.schema.Type == IndexWeighted {
		if err := ix.persistLengths(); err != nil {
			return err
		}
	}
	return ix.store.Flush()
}

// encodePostings compresses docs (spec §4.2) and picks inline vs. indirect
// storage per spec §4.4 (inline iff the synced byte length fits in the
// bitvec's 19 bytes of payload past its flag byte).
func (ix *index) encodePostings(docs []uint32) (btree.MultiData, error) {
	out := bitstream.NewMemoryOutput()
	carray.WriteArray(out, docs)
	out.Sync()
	bs := out.Bytes()

	md := btree.MultiData{Count: uint32(len(docs))}
	if len(bs) <= len(md.BitVec)-1 {
		copy(md.BitVec[1:], bs)
		return md, nil
	}
	off, err := ix.appendSpill(bs)
	if err != nil {
		return btree.MultiData{}, err
	}
	md.SetOffset(off)
	return md, nil
}

func (ix *index) appendSpill(bs []byte) (int64, error) {
	off, err := ix.spill.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, m6.Wrap("databank.appendSpill", m6.KindIO, err)
	}
	if _, err := ix.spill.Write(bs); err != nil {
		return 0, m6.Wrap("databank.appendSpill", m6.KindIO, err)
	}
	return off, nil
}

// writeIDL appends, for each doc in posting order, the compressed
// (1-shifted, since carray forbids zero values) ascending position list for
// that doc, returning the byte offset the IDL tree entry should remember.
func (ix *index) writeIDL(docs []uint32, positions map[uint32][]uint32) (int64, error) {
	out := bitstream.NewMemoryOutput()
	for _, d := range docs {
		ps := positions[d]
		shifted := make([]uint32, len(ps))
		for i, p := range ps {
			shifted[i] = p + 1
		}
		carray.WriteArray(out, shifted)
	}
	out.Sync()
	bs := out.Bytes()

	off, err := ix.idlFile.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, m6.Wrap("databank.writeIDL", m6.KindIO, err)
	}
	if _, err := ix.idlFile.Write(bs); err != nil {
		return 0, m6.Wrap("databank.writeIDL", m6.KindIO, err)
	}
	return off, nil
}

// encodeWeightedPostings compresses a weighted index's (doc, weight) pairs
// (spec §4.2) with the same inline-vs-indirect choice encodePostings makes.
func (ix *index) encodeWeightedPostings(entries []carray.WeightedEntry) (btree.MultiData, error) {
	out := bitstream.NewMemoryOutput()
	carray.WriteWeightedArray(out, entries)
	out.Sync()
	bs := out.Bytes()

	md := btree.MultiData{Count: uint32(len(entries))}
	if len(bs) <= len(md.BitVec)-1 {
		copy(md.BitVec[1:], bs)
		return md, nil
	}
	off, err := ix.appendSpill(bs)
	if err != nil {
		return btree.MultiData{}, err
	}
	md.SetOffset(off)
	return md, nil
}

// decodeWeightedPostings eagerly materializes md's (doc, weight) list.
func (ix *index) decodeWeightedPostings(md btree.MultiData) []carray.WeightedEntry {
	in := ix.postingsInput(md)
	return carray.ReadWeightedArray(in)
}

// weightedEntries resolves value's raw weighted posting list, bypassing the
// normalized-rank Iterator find() returns, for FindRanked's idf/accumulator
// math which needs the df (len(entries)) and each raw term-frequency weight.
func (ix *index) weightedEntries(value string) ([]carray.WeightedEntry, error) {
	key, err := ix.encodeKey(value)
	if err != nil {
		return nil, err
	}
	md, ok, err := ix.multi.Find(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return ix.decodeWeightedPostings(md), nil
}

// postingsInput returns a bit-stream cursor positioned at md's compressed
// array, reading either the inline bytes or the spill file.
func (ix *index) postingsInput(md btree.MultiData) *bitstream.Input {
	if md.Inline() {
		return bitstream.NewMemoryInput(md.BitVec[1:])
	}
	return bitstream.NewFileInput(ix.spill, md.Offset(), -1, 0)
}

// decodePostings eagerly materializes md's doc-nr list.
func (ix *index) decodePostings(md btree.MultiData) []uint32 {
	in := ix.postingsInput(md)
	return carray.ReadArray(in)
}

// postingsIterator wraps md lazily as a query.Iterator.
func (ix *index) postingsIterator(md btree.MultiData) query.Iterator {
	in := ix.postingsInput(md)
	count := carray.ReadCount(in)
	return query.NewMultiDocIterator(carray.NewIterator(in, count), md.Count)
}

// positionsByDoc decodes every per-doc position list for one IndexPhrase
// key, returning a lookup closure suitable for query.PhrasePart.Positions.
func (ix *index) positionsByDoc(value string) (func(uint32) []uint32, error) {
	key, err := ix.encodeKey(value)
	if err != nil {
		return nil, err
	}
	full, ok, err := ix.idl.Find(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return func(uint32) []uint32 { return nil }, nil
	}
	docs := ix.decodePostings(btree.MultiData{Count: full.Count, BitVec: full.BitVec})
	in := bitstream.NewFileInput(ix.idlFile, full.IDLOffset, -1, 0)
	byDoc := make(map[uint32][]uint32, len(docs))
	for _, d := range docs {
		raw := carray.ReadArray(in)
		pos := make([]uint32, len(raw))
		for i, p := range raw {
			pos[i] = p - 1
		}
		byDoc[d] = pos
	}
	return func(d uint32) []uint32 { return byDoc[d] }, nil
}

// find resolves an exact-match lookup (spec's Find(index, value)).
func (ix *index) find(value string) (query.Iterator, error) {
	key, err := ix.encodeKey(value)
	if err != nil {
		return nil, err
	}
	switch ix.schema.Type {
	case IndexUnique:
		doc, ok, err := ix.unique.Find(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return query.NewVectorIterator(nil), nil
		}
		return query.NewSingleDocIterator(doc, 1), nil
	case IndexPhrase:
		full, ok, err := ix.idl.Find(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return query.NewVectorIterator(nil), nil
		}
		return ix.postingsIterator(btree.MultiData{Count: full.Count, BitVec: full.BitVec}), nil
	case IndexWeighted:
		md, ok, err := ix.multi.Find(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return query.NewVectorIterator(nil), nil
		}
		entries := ix.decodeWeightedPostings(md)
		hits := make([]query.Hit, len(entries))
		for i, e := range entries {
			hits[i] = query.Hit{Doc: e.Doc, Rank: float32(e.Weight) / float32(weightedMaxWeight)}
		}
		sort.Slice(hits, func(i, j int) bool { return hits[i].Doc < hits[j].Doc })
		return query.NewVectorIterator(hits), nil
	default:
		md, ok, err := ix.multi.Find(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return query.NewVectorIterator(nil), nil
		}
		return ix.postingsIterator(md), nil
	}
}

// findPattern resolves a glob pattern against this index's keys (spec's
// FindPattern; IndexUnique and IndexText/IndexPhrase only — a glob against
// a sortable-encoded numeric key isn't meaningful).
func (ix *index) findPattern(pattern string) (query.Iterator, error) {
	pattern = tokenizer.Fold(pattern)
	var keys []string
	var err error
	switch ix.schema.Type {
	case IndexUnique:
		keys, err = ix.unique.FindPattern(pattern)
	case IndexPhrase:
		keys, err = ix.idl.FindPattern(pattern)
	case IndexText:
		keys, err = ix.multi.FindPattern(pattern)
	default:
		return nil, m6.New("databank.findPattern", m6.KindInvariant,
			"pattern search is not meaningful against a "+ix.schema.Type.String()+" index")
	}
	if err != nil {
		return nil, err
	}
	var iters []query.Iterator
	for _, k := range keys {
		it, err := ix.findEncoded([]byte(k))
		if err != nil {
			return nil, err
		}
		iters = append(iters, it)
	}
	return query.NewUnionIterator(iters...), nil
}

func (ix *index) findEncoded(key []byte) (query.Iterator, error) {
	switch ix.schema.Type {
	case IndexUnique:
		doc, ok, err := ix.unique.Find(key)
		if err != nil || !ok {
			return query.NewVectorIterator(nil), err
		}
		return query.NewSingleDocIterator(doc, 1), nil
	case IndexPhrase:
		full, ok, err := ix.idl.Find(key)
		if err != nil || !ok {
			return query.NewVectorIterator(nil), err
		}
		return ix.postingsIterator(btree.MultiData{Count: full.Count, BitVec: full.BitVec}), nil
	default:
		md, ok, err := ix.multi.Find(key)
		if err != nil || !ok {
			return query.NewVectorIterator(nil), err
		}
		return ix.postingsIterator(md), nil
	}
}

// findRange resolves a relational comparison by scanning the whole key
// range and unioning the matching keys' postings (spec's Find(index, op,
// value)).
func (ix *index) findRange(op query.Op, value string) (query.Iterator, error) {
	if ix.schema.Type == IndexWeighted {
		return nil, m6.New("databank.findRange", m6.KindInvariant,
			"range comparison is not meaningful against a weighted index")
	}
	key, err := ix.encodeKey(value)
	if err != nil {
		return nil, err
	}
	matches := func(k []byte) bool {
		c := bytes.Compare(k, key)
		switch op {
		case query.OpLessThan:
			return c < 0
		case query.OpLessOrEqual:
			return c <= 0
		case query.OpGreaterOrEqual:
			return c >= 0
		case query.OpGreaterThan:
			return c > 0
		case query.OpEquals:
			return c == 0
		default:
			return false
		}
	}
	return ix.scan(matches)
}

// findBetween resolves an inclusive [lo, hi] range.
func (ix *index) findBetween(lo, hi string) (query.Iterator, error) {
	if ix.schema.Type == IndexWeighted {
		return nil, m6.New("databank.findBetween", m6.KindInvariant,
			"range comparison is not meaningful against a weighted index")
	}
	loKey, err := ix.encodeKey(lo)
	if err != nil {
		return nil, err
	}
	hiKey, err := ix.encodeKey(hi)
	if err != nil {
		return nil, err
	}
	return ix.scan(func(k []byte) bool {
		return bytes.Compare(k, loKey) >= 0 && bytes.Compare(k, hiKey) <= 0
	})
}

// scan walks every key in the index and unions the postings of keys
// accepted by pred. Straightforward rather than range-bounded: the index's
// cursor already visits keys in ascending order, so a full scan with an
// early union is simple and correct even though it isn't as cheap as a
// bounded descent for a one-sided comparison.
func (ix *index) scan(pred func(key []byte) bool) (query.Iterator, error) {
	var iters []query.Iterator
	switch ix.schema.Type {
	case IndexUnique:
		cur, err := ix.unique.All()
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		for {
			k, v, ok, err := cur.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if pred(k) {
				iters = append(iters, query.NewSingleDocIterator(v, 1))
			}
		}
	case IndexPhrase:
		cur, err := ix.idl.All()
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		for {
			k, v, ok, err := cur.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if pred(k) {
				iters = append(iters, ix.postingsIterator(btree.MultiData{Count: v.Count, BitVec: v.BitVec}))
			}
		}
	default:
		cur, err := ix.multi.All()
		if err != nil {
			return nil, err
		}
		defer cur.Close()
		for {
			k, v, ok, err := cur.Next()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			if pred(k) {
				iters = append(iters, ix.postingsIterator(v))
			}
		}
	}
	return query.NewUnionIterator(iters...), nil
}

// encodeKey turns a query-level string value into this index's B+ tree key
// bytes: verbatim for character indexes, sortable big-endian for numeric
// ones (spec §3 requires numeric indexes to "compare numerically"; the B+
// tree itself only ever compares raw key bytes, so the sortable encoding is
// this index's own responsibility).
func (ix *index) encodeKey(value string) ([]byte, error) {
	switch ix.schema.Type {
	case IndexNumber:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, m6.Wrap("databank.encodeKey", m6.KindInvariant, err)
		}
		return encodeNumberKey(n), nil
	case IndexFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, m6.Wrap("databank.encodeKey", m6.KindInvariant, err)
		}
		return encodeFloatKey(f), nil
	default:
		return []byte(tokenizer.Fold(value)), nil
	}
}

// encodeNumberKey maps a signed int64 onto an unsigned byte order that
// sorts the same way the integers do, by flipping the sign bit.
func encodeNumberKey(n int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n)^(1<<63))
	return buf[:]
}

// encodeFloatKey maps a float64 onto a byte order that sorts the same way
// the floats do: for non-negative values, flip the sign bit; for negative
// values, flip every bit (a larger-magnitude negative has a larger IEEE-754
// bit pattern, so inverting it makes larger-magnitude negatives sort before
// smaller-magnitude ones, and the cleared sign bit puts every negative
// before every non-negative value).
func encodeFloatKey(f float64) []byte {
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], bits)
	return buf[:]
}

func sortAscendingU32(v []uint32) {
	sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
}

// keyCount reports how many distinct keys this index currently holds, for
// Info/DatabankInfo.
func (ix *index) keyCount() (uint32, error) {
	var n uint32
	switch ix.schema.Type {
	case IndexUnique:
		cur, err := ix.unique.All()
		if err != nil {
			return 0, err
		}
		defer cur.Close()
		for {
			_, _, ok, err := cur.Next()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			n++
		}
	case IndexPhrase:
		cur, err := ix.idl.All()
		if err != nil {
			return 0, err
		}
		defer cur.Close()
		for {
			_, _, ok, err := cur.Next()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			n++
		}
	default:
		cur, err := ix.multi.All()
		if err != nil {
			return 0, err
		}
		defer cur.Close()
		for {
			_, _, ok, err := cur.Next()
			if err != nil {
				return 0, err
			}
			if !ok {
				break
			}
			n++
		}
	}
	return n, nil
}

// validate checks this index's B+ tree structural invariant (spec's
// validate(db), M6Index.cpp's own index-validation pass).
func (ix *index) validate() error {
	switch ix.schema.Type {
	case IndexUnique:
		return ix.unique.Validate()
	case IndexPhrase:
		return ix.idl.Validate()
	default:
		return ix.multi.Validate()
	}
}

// vacuum rebuilds this index's B+ tree into a freshly packed set of pages
// (spec's vacuum(db)).
func (ix *index) vacuum() error {
	switch ix.schema.Type {
	case IndexUnique:
		return ix.unique.Vacuum()
	case IndexPhrase:
		return ix.idl.Vacuum()
	default:
		return ix.multi.Vacuum()
	}
}

// dumpKeys writes one line per key to w: the decoded key followed by its
// posting count (1 for a unique index), the shape spec's dump_index(db,
// name) tooling prints.
func (ix *index) dumpKeys(w io.Writer) error {
	switch ix.schema.Type {
	case IndexUnique:
		cur, err := ix.unique.All()
		if err != nil {
			return err
		}
		defer cur.Close()
		for {
			k, _, ok, err := cur.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "%s\t%d\n", k, 1); err != nil {
				return m6.Wrap("databank.dumpKeys", m6.KindIO, err)
			}
		}
	case IndexPhrase:
		cur, err := ix.idl.All()
		if err != nil {
			return err
		}
		defer cur.Close()
		for {
			k, v, ok, err := cur.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "%s\t%d\n", k, v.Count); err != nil {
				return m6.Wrap("databank.dumpKeys", m6.KindIO, err)
			}
		}
	default:
		cur, err := ix.multi.All()
		if err != nil {
			return err
		}
		defer cur.Close()
		for {
			k, v, ok, err := cur.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "%s\t%d\n", k, v.Count); err != nil {
				return m6.Wrap("databank.dumpKeys", m6.KindIO, err)
			}
		}
	}
}
