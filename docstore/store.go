// Package docstore implements the document store (spec §4.6, L6): fixed
// 8192-byte data pages, built on package page's paged file, each holding one
// or more documents' records back to back, spilling across Link-chained
// pages when a record doesn't fit the page it started on.
//
// Record layout, as written by Store and parsed by Fetch/iteration:
//
//	totalLen     uint32  // byte length of everything that follows
//	docNr        uint32
//	rawLen       uint32  // uncompressed text length
//	compLen      uint32  // bytes of compressed (or, if raw, verbatim) text
//	flag         byte    // 0 = fastlz-compressed, 1 = stored verbatim
//	attrCount    uint16
//	TOC          attrCount * { nameLen byte, name []byte, valOffset uint32 }
//	attrBlob     TOC-addressed, each entry { valLen byte, value []byte }
//	linkCount    uint16
//	links        linkCount * { dbNameLen byte, dbName []byte,
//	                 idCount uint16, idCount * { idLen byte, id []byte } }
//	text         compLen bytes (fastlz-compressed or verbatim per flag)
//
// The leading totalLen lets a directory rebuild (Open on an existing store)
// walk the record stream by reading one 4-byte count per record instead of
// re-parsing each record's TOC and link section just to find where it ends.
//
// Grounded on original_source/src/M6Document.h for the document shape
// (text + attribute map + per-target-databank link sets) and §4.6's prose
// for the page/TOC/compression layout; the fastlz compressor itself is
// ported in fastlz.go from original_source/src/M6FastLZ.cpp.
package docstore

import (
	"encoding/binary"
	"sort"
	"sync"

	m6 "github.com/mhekkel/m6"
	"github.com/mhekkel/m6/page"
)

// Document is one stored document: its text, short string attributes
// (spec: at most 255 bytes each), and links to other databanks' documents.
type Document struct {
	DocNr      uint32
	Text       string
	Attributes map[string]string
	Links      map[string][]string
}

// streamHeaderSize is the byte length of the small directory-cursor header
// docstore keeps at the start of page 1's payload: count, endPage, endOff.
const streamHeaderSize = 12

// docLoc records where one document's record begins (pointing at its
// totalLen prefix) and how long the whole record is.
type docLoc struct {
	page uint32
	off  uint32
	size uint32
}

// Store is the document store for one databank.
type Store struct {
	mu  sync.RWMutex
	ps  *page.Store
	dir []docLoc // dir[docNr-1]

	endPage uint32
	endOff  uint32
}

// Create initializes a new, empty document store file.
func Create(path string) (*Store, error) {
	ps, err := page.Create(path)
	if err != nil {
		return nil, err
	}
	root, err := ps.Get(1)
	if err != nil {
		ps.Close()
		return nil, err
	}
	root.SetType(page.TypeDocData)
	binary.BigEndian.PutUint32(root.Data()[0:4], 0)
	binary.BigEndian.PutUint32(root.Data()[4:8], 1)
	binary.BigEndian.PutUint32(root.Data()[8:12], streamHeaderSize)
	ps.MarkDirty(root)
	ps.Release(root)

	return &Store{ps: ps, endPage: 1, endOff: streamHeaderSize}, nil
}

// Open opens an existing document store, rebuilding its in-memory directory
// by scanning every record's length prefix once.
func Open(path string, writable bool) (*Store, error) {
	ps, err := page.Open(path, writable)
	if err != nil {
		return nil, err
	}
	root, err := ps.Get(1)
	if err != nil {
		ps.Close()
		return nil, err
	}
	count := binary.BigEndian.Uint32(root.Data()[0:4])
	endPage := binary.BigEndian.Uint32(root.Data()[4:8])
	endOff := binary.BigEndian.Uint32(root.Data()[8:12])
	ps.Release(root)

	s := &Store{ps: ps, endPage: endPage, endOff: endOff}
	if err := s.rebuildDirectory(count); err != nil {
		ps.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying paged file.
func (s *Store) Close() error { return s.ps.Close() }

// Size returns the number of documents stored.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dir)
}

// MaxDocNr returns the highest doc-nr assigned so far (0 if empty).
func (s *Store) MaxDocNr() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint32(len(s.dir))
}

// Store compresses and appends doc, assigning and returning its doc-nr.
// Thread-safe: concurrent Store calls are serialized, matching spec §4.6's
// "doc-nrs assigned in store order" guarantee.
func (s *Store) Store(doc Document) (uint32, error) {
	body := encodeBody(doc)
	rec := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(body)))
	copy(rec[4:], body)

	s.mu.Lock()
	defer s.mu.Unlock()

	docNr := uint32(len(s.dir)) + 1
	binary.BigEndian.PutUint32(rec[4:8], docNr)

	startPage, startOff := s.endPage, s.endOff
	if err := s.appendLocked(rec); err != nil {
		return 0, err
	}
	s.dir = append(s.dir, docLoc{page: startPage, off: startOff, size: uint32(len(rec))})

	if err := s.writeStreamHeaderLocked(); err != nil {
		return 0, err
	}
	return docNr, nil
}

// Fetch returns the document stored under docNr.
func (s *Store) Fetch(docNr uint32) (Document, error) {
	s.mu.RLock()
	if docNr == 0 || int(docNr) > len(s.dir) {
		s.mu.RUnlock()
		return Document{}, m6.New("docstore.Fetch", m6.KindNotFound, "doc-nr out of range")
	}
	loc := s.dir[docNr-1]
	s.mu.RUnlock()

	buf := make([]byte, loc.size)
	if err := s.readAtLocked(loc.page, loc.off, buf); err != nil {
		return Document{}, err
	}
	return decodeRecord(buf[4:])
}

// Iter calls fn for every stored document in ascending doc-nr order,
// stopping early if fn returns false.
func (s *Store) Iter(fn func(Document) bool) error {
	n := s.Size()
	for i := uint32(1); i <= uint32(n); i++ {
		doc, err := s.Fetch(i)
		if err != nil {
			return err
		}
		if !fn(doc) {
			break
		}
	}
	return nil
}

func (s *Store) writeStreamHeaderLocked() error {
	root, err := s.ps.Get(1)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(root.Data()[0:4], uint32(len(s.dir)))
	binary.BigEndian.PutUint32(root.Data()[4:8], s.endPage)
	binary.BigEndian.PutUint32(root.Data()[8:12], s.endOff)
	s.ps.MarkDirty(root)
	s.ps.Release(root)
	return nil
}

// appendLocked writes b to the stream cursor (s.endPage, s.endOff),
// allocating and Link-chaining new pages as each one fills, and advances
// the cursor. Callers hold s.mu.
func (s *Store) appendLocked(b []byte) error {
	p, err := s.ps.Get(s.endPage)
	if err != nil {
		return err
	}
	for len(b) > 0 {
		data := p.Data()
		avail := len(data) - int(s.endOff)
		n := avail
		if n > len(b) {
			n = len(b)
		}
		if n > 0 {
			copy(data[s.endOff:], b[:n])
			s.ps.MarkDirty(p)
			b = b[n:]
			s.endOff += uint32(n)
		}
		if len(b) == 0 {
			break
		}
		next, err := s.ps.Alloc()
		if err != nil {
			s.ps.Release(p)
			return err
		}
		next.SetType(page.TypeDocData)
		p.SetLink(next.Nr())
		s.ps.MarkDirty(p)
		s.ps.Release(p)
		p = next
		s.endPage = p.Nr()
		s.endOff = 0
	}
	s.ps.Release(p)
	return nil
}

// readAtLocked fills out by reading from (startPage, startOff) across the
// Link chain. Safe to call concurrently with other reads.
func (s *Store) readAtLocked(startPage, startOff uint32, out []byte) error {
	p, err := s.ps.Get(startPage)
	if err != nil {
		return err
	}
	off := startOff
	for len(out) > 0 {
		data := p.Data()
		avail := len(data) - int(off)
		n := avail
		if n > len(out) {
			n = len(out)
		}
		copy(out[:n], data[off:off+uint32(n)])
		out = out[n:]
		if len(out) == 0 {
			s.ps.Release(p)
			return nil
		}
		link := p.Link()
		s.ps.Release(p)
		if link == 0 {
			return m6.New("docstore.readAt", m6.KindCorruption, "record runs past end of page chain")
		}
		p, err = s.ps.Get(link)
		if err != nil {
			return err
		}
		off = 0
	}
	s.ps.Release(p)
	return nil
}

// rebuildDirectory reconstructs s.dir from a single linear pass over the
// append stream, reading only each record's 4-byte length prefix.
func (s *Store) rebuildDirectory(count uint32) error {
	curPage, curOff := uint32(1), uint32(streamHeaderSize)
	s.dir = make([]docLoc, 0, count)

	for i := uint32(0); i < count; i++ {
		lenBuf := make([]byte, 4)
		if err := s.readAtLocked(curPage, curOff, lenBuf); err != nil {
			return err
		}
		bodyLen := binary.BigEndian.Uint32(lenBuf)
		total := 4 + bodyLen

		s.dir = append(s.dir, docLoc{page: curPage, off: curOff, size: total})

		nextPage, nextOff, ok := s.advance(curPage, curOff, total)
		if !ok {
			if i+1 < count {
				return m6.New("docstore.rebuildDirectory", m6.KindCorruption, "truncated record stream")
			}
			break
		}
		curPage, curOff = nextPage, nextOff
	}
	return nil
}

// advance walks forward size bytes from (pg, off) along the Link chain.
func (s *Store) advance(pg, off, size uint32) (uint32, uint32, bool) {
	remaining := size
	for {
		p, err := s.ps.Get(pg)
		if err != nil {
			return 0, 0, false
		}
		avail := uint32(len(p.Data())) - off
		if remaining <= avail {
			newOff := off + remaining
			link := p.Link()
			atEnd := newOff == uint32(len(p.Data()))
			s.ps.Release(p)
			if atEnd && link != 0 {
				return link, 0, true
			}
			return pg, newOff, true
		}
		remaining -= avail
		link := p.Link()
		s.ps.Release(p)
		if link == 0 {
			return 0, 0, false
		}
		pg, off = link, 0
	}
}

func encodeBody(doc Document) []byte {
	names := make([]string, 0, len(doc.Attributes))
	for n := range doc.Attributes {
		names = append(names, n)
	}
	sort.Strings(names)

	var attrBlob []byte
	tocOffsets := make([]int, len(names))
	for i, n := range names {
		v := doc.Attributes[n]
		tocOffsets[i] = len(attrBlob)
		attrBlob = append(attrBlob, byte(len(v)))
		attrBlob = append(attrBlob, v...)
	}

	dbNames := make([]string, 0, len(doc.Links))
	for n := range doc.Links {
		dbNames = append(dbNames, n)
	}
	sort.Strings(dbNames)

	var linkBlob []byte
	linkBlob = appendUint16(linkBlob, uint16(len(dbNames)))
	for _, db := range dbNames {
		linkBlob = append(linkBlob, byte(len(db)))
		linkBlob = append(linkBlob, db...)
		ids := doc.Links[db]
		linkBlob = appendUint16(linkBlob, uint16(len(ids)))
		for _, id := range ids {
			linkBlob = append(linkBlob, byte(len(id)))
			linkBlob = append(linkBlob, id...)
		}
	}

	text := []byte(doc.Text)
	rawLen := len(text)
	maxout := rawLen + rawLen/20
	if maxout < rawLen+5 {
		maxout = rawLen + 5
	}
	compBuf := make([]byte, maxout)
	compLen := fastlzCompress(text, compBuf)
	flag := byte(0)
	var textBytes []byte
	if compLen == 0 || compLen >= rawLen {
		flag = 1
		textBytes = text
		compLen = rawLen
	} else {
		textBytes = compBuf[:compLen]
	}

	header := make([]byte, 4+4+4+1+2)
	// header[0:4] (docNr) is filled in by Store once the doc-nr is known.
	binary.BigEndian.PutUint32(header[4:8], uint32(rawLen))
	binary.BigEndian.PutUint32(header[8:12], uint32(compLen))
	header[12] = flag
	binary.BigEndian.PutUint16(header[13:15], uint16(len(names)))

	var toc []byte
	for i, n := range names {
		toc = append(toc, byte(len(n)))
		toc = append(toc, n...)
		toc = appendUint32(toc, uint32(tocOffsets[i]))
	}

	out := make([]byte, 0, len(header)+len(toc)+len(attrBlob)+len(linkBlob)+len(textBytes))
	out = append(out, header...)
	out = append(out, toc...)
	out = append(out, attrBlob...)
	out = append(out, linkBlob...)
	out = append(out, textBytes...)
	return out
}

// decodeRecord parses a record body (everything after the totalLen prefix).
func decodeRecord(b []byte) (Document, error) {
	if len(b) < 4+4+4+1+2 {
		return Document{}, m6.New("docstore.decodeRecord", m6.KindCorruption, "truncated record header")
	}
	docNr := binary.BigEndian.Uint32(b[0:4])
	rawLen := binary.BigEndian.Uint32(b[4:8])
	compLen := binary.BigEndian.Uint32(b[8:12])
	flag := b[12]
	attrCount := binary.BigEndian.Uint16(b[13:15])

	off := 15
	type tocEntry struct {
		name   string
		offset int
	}
	toc := make([]tocEntry, attrCount)
	for i := range toc {
		nameLen := int(b[off])
		off++
		name := string(b[off : off+nameLen])
		off += nameLen
		valOffset := int(binary.BigEndian.Uint32(b[off : off+4]))
		off += 4
		toc[i] = tocEntry{name: name, offset: valOffset}
	}
	attrBlobStart := off
	attrBlobLen := 0
	for _, e := range toc {
		valLen := int(b[attrBlobStart+e.offset])
		end := e.offset + 1 + valLen
		if end > attrBlobLen {
			attrBlobLen = end
		}
	}
	attrs := make(map[string]string, attrCount)
	for _, e := range toc {
		valLen := int(b[attrBlobStart+e.offset])
		val := string(b[attrBlobStart+e.offset+1 : attrBlobStart+e.offset+1+valLen])
		attrs[e.name] = val
	}
	off = attrBlobStart + attrBlobLen

	linkCount := binary.BigEndian.Uint16(b[off : off+2])
	off += 2
	links := make(map[string][]string, linkCount)
	for i := uint16(0); i < linkCount; i++ {
		dbNameLen := int(b[off])
		off++
		dbName := string(b[off : off+dbNameLen])
		off += dbNameLen
		idCount := binary.BigEndian.Uint16(b[off : off+2])
		off += 2
		ids := make([]string, idCount)
		for j := range ids {
			idLen := int(b[off])
			off++
			ids[j] = string(b[off : off+idLen])
			off += idLen
		}
		links[dbName] = ids
	}

	textBytes := b[off : off+int(compLen)]
	var text []byte
	if flag == 1 {
		text = textBytes
	} else {
		text = make([]byte, rawLen)
		n := fastlzDecompress(textBytes, text)
		text = text[:n]
	}

	return Document{DocNr: docNr, Text: string(text), Attributes: attrs, Links: links}, nil
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v>>8), byte(v))
}

func appendUint32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
