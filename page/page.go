// Package page implements the fixed-size paged file that backs the B+ tree
// index family (spec §4.3, L3): a page-0 header, a typed page tag, and a
// refcount-aware cache fronting either buffered read/write I/O or a
// read-only mmap.
//
// Page format
//
// Page 0 holds the file header (signature, header size, page count, tree
// depth, root page number, last allocated bit-vector page). Every other
// page begins with an 8-byte header (type tag, flags, entry count, sibling
// link) followed by a KeySpace-byte payload whose interpretation depends on
// the type tag; package btree owns that payload layout.
//
// Grounded on original_source/src/M6Index.cpp's M6IndexPageHeader/
// M6IxFileHeader (page type enum, page-0 header fields, 8192-byte page
// size) and on index/read.go's mmapData/mmapFile (the teacher's read-only
// mmap path) for the idiomatic Go shape of a typed accessor over a flat
// []byte buffer.
package page

import "encoding/binary"

// Size is the fixed page size in bytes.
const Size = 8192

// HeaderSize is the per-page header size (type + flags + n + link).
const HeaderSize = 8

// KeySpace is the usable payload size of a non-header-0 page.
const KeySpace = Size - HeaderSize

// Type tags a page's payload layout (M6IndexPageType).
type Type uint8

const (
	TypeEmpty        Type = 'e'
	TypeBranch       Type = 'b'
	TypeLeafSimple   Type = 'l'
	TypeLeafMulti    Type = 'm'
	TypeLeafMultiIDL Type = 'i'
	TypeBitVector    Type = 'v'
	TypeDocData      Type = 'd'
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeBranch:
		return "branch"
	case TypeLeafSimple:
		return "leaf-simple"
	case TypeLeafMulti:
		return "leaf-multi"
	case TypeLeafMultiIDL:
		return "leaf-multi-idl"
	case TypeBitVector:
		return "bit-vector"
	case TypeDocData:
		return "doc-data"
	default:
		return "unknown"
	}
}

// Page is one fixed-size buffer, addressed by page number within a Store.
type Page struct {
	buf [Size]byte
	nr  uint32
}

func newPage(nr uint32) *Page {
	return &Page{nr: nr}
}

func (p *Page) Nr() uint32 { return p.nr }

func (p *Page) Type() Type     { return Type(p.buf[0]) }
func (p *Page) SetType(t Type) { p.buf[0] = byte(t) }

func (p *Page) Flags() uint8     { return p.buf[1] }
func (p *Page) SetFlags(f uint8) { p.buf[1] = f }

func (p *Page) N() uint16     { return binary.BigEndian.Uint16(p.buf[2:4]) }
func (p *Page) SetN(n uint16) { binary.BigEndian.PutUint16(p.buf[2:4], n) }

// Link is the sibling pointer used by leaf pages for cursor iteration
// (spec §4.4).
func (p *Page) Link() uint32     { return binary.BigEndian.Uint32(p.buf[4:8]) }
func (p *Page) SetLink(l uint32) { binary.BigEndian.PutUint32(p.buf[4:8], l) }

// Data returns the mutable payload region following the header.
func (p *Page) Data() []byte { return p.buf[HeaderSize:] }

// Reset clears the page to TypeEmpty with a zeroed payload.
func (p *Page) Reset() {
	for i := range p.buf {
		p.buf[i] = 0
	}
	p.SetType(TypeEmpty)
}

// bytes exposes the whole raw page buffer, for Store's I/O.
func (p *Page) bytes() []byte { return p.buf[:] }
