package page

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	mmap "github.com/edsrzf/mmap-go"

	m6 "github.com/mhekkel/m6"
)

// Signature is the 4-byte page-0 magic ("m6ix").
const Signature = "m6ix"

// fileHeaderSize is the byte length of the page-0 header fields, padded out
// to Size by the rest of page 0 (an M6IxFileHeaderPage, unused beyond the
// header fields).
const fileHeaderSize = 4 + 4 + 4 + 4 + 4 + 4

// Header is the page-0 file header (M6IxFileHeader).
type Header struct {
	HeaderSize   uint32
	Size         uint32 // total page count, including page 0
	Depth        uint32
	Root         uint32
	LastBitsPage uint32
}

func (h *Header) encode(buf []byte) {
	copy(buf[0:4], Signature)
	binary.BigEndian.PutUint32(buf[4:8], h.HeaderSize)
	binary.BigEndian.PutUint32(buf[8:12], h.Size)
	binary.BigEndian.PutUint32(buf[12:16], h.Depth)
	binary.BigEndian.PutUint32(buf[16:20], h.Root)
	binary.BigEndian.PutUint32(buf[20:24], h.LastBitsPage)
}

func (h *Header) decode(buf []byte) error {
	if string(buf[0:4]) != Signature {
		return m6.New("page.decodeHeader", m6.KindCorruption, "bad page file signature")
	}
	h.HeaderSize = binary.BigEndian.Uint32(buf[4:8])
	h.Size = binary.BigEndian.Uint32(buf[8:12])
	h.Depth = binary.BigEndian.Uint32(buf[12:16])
	h.Root = binary.BigEndian.Uint32(buf[16:20])
	h.LastBitsPage = binary.BigEndian.Uint32(buf[20:24])
	return nil
}

// slot is a cached page plus its bookkeeping. Pages with refs > 0 are
// pinned in use by a caller and must survive eviction.
type slot struct {
	page  *Page
	dirty bool
	refs  int32
}

// cacheCapacity bounds the unpinned resident set. Pages currently pinned
// (refs > 0) live in Store.pinned instead of the LRU, so hashicorp/golang-lru
// never has to decide whether to evict something a caller is using — the
// "cache-doubling fallback" referred to in SPEC_FULL.md §4.3 is this
// unbounded pinned side-table, which only grows if callers hold an
// unusually large number of pages open at once.
const cacheCapacity = 4096

// Store is a paged file: page 0 is the Header, every other page number
// (1..Size-1) is a fixed Size-byte Page addressed by PRead/PWrite-style
// positioning. Reads prefer a read-only mmap when one is open; writes
// always go through the buffered file path.
type Store struct {
	mu       sync.Mutex
	f        *os.File
	header   Header
	cache    *lru.Cache[uint32, *slot] // unpinned pages (refs == 0)
	pinned   map[uint32]*slot          // pages with refs > 0
	readOnly bool
	mapped   mmap.MMap
}

// Create initializes a new, empty paged file at path with a single root
// leaf page.
func Create(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, m6.Wrap("page.Create", m6.KindIO, err)
	}
	s := &Store{f: f, header: Header{HeaderSize: fileHeaderSize, Size: 2, Depth: 1, Root: 1}, pinned: map[uint32]*slot{}}
	s.cache, _ = lru.NewWithEvict(cacheCapacity, s.onEvict)

	root := newPage(1)
	root.SetType(TypeLeafSimple)
	s.cache.Add(1, &slot{page: root, dirty: true})

	if err := s.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	if err := s.flushLocked(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// Open opens an existing paged file. Read-only stores are served through a
// read-only mmap where possible; writable stores always use buffered I/O so
// concurrent writers see consistent page boundaries.
func Open(path string, writable bool) (*Store, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, m6.Wrap("page.Open", m6.KindIO, err)
	}

	s := &Store{f: f, readOnly: !writable, pinned: map[uint32]*slot{}}
	s.cache, _ = lru.NewWithEvict(cacheCapacity, s.onEvict)

	hdrBuf := make([]byte, Size)
	if _, err := f.ReadAt(hdrBuf, 0); err != nil {
		f.Close()
		return nil, m6.Wrap("page.Open", m6.KindIO, err)
	}
	if err := s.header.decode(hdrBuf); err != nil {
		f.Close()
		return nil, err
	}

	if !writable {
		if m, err := mmap.Map(f, mmap.RDONLY, 0); err == nil {
			s.mapped = m
		}
	}
	return s, nil
}

// onEvict fires only for unpinned slots (pinned pages live in s.pinned, not
// the LRU), so it only needs to write the page back if dirty before the
// buffer is dropped.
func (s *Store) onEvict(nr uint32, sl *slot) {
	if s.readOnly || !sl.dirty {
		return
	}
	if _, err := s.f.WriteAt(sl.page.bytes(), int64(nr)*Size); err == nil {
		sl.dirty = false
	}
}

func (s *Store) writeHeader() error {
	buf := make([]byte, Size)
	s.header.encode(buf)
	if _, err := s.f.WriteAt(buf, 0); err != nil {
		return m6.Wrap("page.writeHeader", m6.KindIO, err)
	}
	return nil
}

// Header returns a copy of the current file header.
func (s *Store) Header() Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Alloc returns a fresh, pinned, dirty page. The caller must Release it.
func (s *Store) Alloc() (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return nil, m6.New("page.Alloc", m6.KindInvariant, "store is read-only")
	}
	nr := s.header.Size
	s.header.Size++
	p := newPage(nr)
	s.pinned[nr] = &slot{page: p, dirty: true, refs: 1}
	return p, nil
}

// Get returns the page at nr, pinning it. The caller must Release it when
// done.
func (s *Store) Get(nr uint32) (*Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nr == 0 || nr >= s.header.Size {
		return nil, m6.New("page.Get", m6.KindInvariant, fmt.Sprintf("page %d out of range", nr))
	}

	if sl, ok := s.pinned[nr]; ok {
		sl.refs++
		return sl.page, nil
	}
	if sl, ok := s.cache.Get(nr); ok {
		s.cache.Remove(nr)
		sl.refs = 1
		s.pinned[nr] = sl
		return sl.page, nil
	}

	p := newPage(nr)
	if s.mapped != nil {
		off := int64(nr) * Size
		copy(p.bytes(), s.mapped[off:off+Size])
	} else {
		if _, err := s.f.ReadAt(p.bytes(), int64(nr)*Size); err != nil {
			return nil, m6.Wrap("page.Get", m6.KindIO, err)
		}
	}
	s.pinned[nr] = &slot{page: p, refs: 1}
	return p, nil
}

// Release unpins p. Once its refcount reaches zero it moves into the LRU
// and becomes eligible for eviction.
func (s *Store) Release(p *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nr := p.Nr()
	sl, ok := s.pinned[nr]
	if !ok || sl.refs == 0 {
		return
	}
	sl.refs--
	if sl.refs == 0 {
		delete(s.pinned, nr)
		s.cache.Add(nr, sl)
	}
}

// MarkDirty flags p for write-back on the next Flush.
func (s *Store) MarkDirty(p *Page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nr := p.Nr()
	if sl, ok := s.pinned[nr]; ok {
		sl.dirty = true
		return
	}
	if sl, ok := s.cache.Peek(nr); ok {
		sl.dirty = true
	}
}

// Flush writes every dirty page (pinned or cached) and the file header to
// disk.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	if s.readOnly {
		return nil
	}
	write := func(nr uint32, sl *slot) error {
		if !sl.dirty {
			return nil
		}
		if _, err := s.f.WriteAt(sl.page.bytes(), int64(nr)*Size); err != nil {
			return m6.Wrap("page.Flush", m6.KindIO, err)
		}
		sl.dirty = false
		return nil
	}
	for nr, sl := range s.pinned {
		if err := write(nr, sl); err != nil {
			return err
		}
	}
	for _, nr := range s.cache.Keys() {
		sl, ok := s.cache.Peek(nr)
		if !ok {
			continue
		}
		if err := write(nr, sl); err != nil {
			return err
		}
	}
	return s.writeHeader()
}

// SetRoot updates the tree root page number recorded in the header.
func (s *Store) SetRoot(nr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header.Root = nr
}

// SetDepth updates the tree depth recorded in the header.
func (s *Store) SetDepth(d uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header.Depth = d
}

// Close flushes pending writes (if writable) and releases the underlying
// file and mmap.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if !s.readOnly {
		err = s.flushLocked()
	}
	if s.mapped != nil {
		s.mapped.Unmap()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReaderAt exposes the store for use as a bitstream.Input source over a
// page-file-backed bit vector (the Multi/MultiIDL leaf payload's spill
// region lives past the B+ tree pages proper, addressed by byte offset
// rather than page number).
func (s *Store) ReaderAt() ReaderAtFunc { return s.readAt }

// ReaderAtFunc adapts Store to io.ReaderAt without exposing Store's locking
// internals.
type ReaderAtFunc func(p []byte, off int64) (int, error)

func (fn ReaderAtFunc) ReadAt(p []byte, off int64) (int, error) { return fn(p, off) }

func (s *Store) readAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapped != nil {
		if off >= int64(len(s.mapped)) {
			return 0, nil
		}
		n := copy(p, s.mapped[off:])
		return n, nil
	}
	return s.f.ReadAt(p, off)
}
