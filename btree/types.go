package btree

import "encoding/binary"

// MultiData is the multi-leaf value flavor: a posting count plus a 20-byte
// region that either holds a short posting list's bytes directly (inline)
// or, when the high bit of the first byte is set, a 63-bit file offset to
// an out-of-line compressed posting list (spec §4.4's inline-vs-indirect
// storage mode). Mirrors M6Index.cpp's M6MultiData.
type MultiData struct {
	Count  uint32
	BitVec [20]byte
}

// MultiIDLData is MultiData plus an inter-document-list offset, used by
// phrase-searchable indexes. Mirrors M6Index.cpp's M6MultiIDLData.
type MultiIDLData struct {
	Count     uint32
	BitVec    [20]byte
	IDLOffset int64
}

// Inline reports whether BitVec holds posting bytes directly rather than an
// indirect offset.
func (d MultiData) Inline() bool { return d.BitVec[0]&0x80 == 0 }

// Offset decodes the 63-bit indirect file offset (only meaningful when
// !Inline()).
func (d MultiData) Offset() int64 {
	buf := make([]byte, 8)
	copy(buf, d.BitVec[:8])
	buf[0] &^= 0x80
	return int64(binary.BigEndian.Uint64(buf))
}

// SetOffset encodes an indirect offset, setting the high bit.
func (d *MultiData) SetOffset(off int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(off))
	buf[0] |= 0x80
	copy(d.BitVec[:8], buf[:])
}

const (
	simpleValueSize   = 4
	multiValueSize    = 4 + 20
	multiIDLValueSize = 4 + 20 + 8
	childValueSize    = 4
)

func u32Codec() valueCodec[uint32] {
	return valueCodec[uint32]{
		size: simpleValueSize,
		encode: func(v uint32, buf []byte) {
			binary.BigEndian.PutUint32(buf, v)
		},
		decode: func(buf []byte) uint32 {
			return binary.BigEndian.Uint32(buf)
		},
	}
}

func multiDataCodec() valueCodec[MultiData] {
	return valueCodec[MultiData]{
		size: multiValueSize,
		encode: func(v MultiData, buf []byte) {
			binary.BigEndian.PutUint32(buf[0:4], v.Count)
			copy(buf[4:24], v.BitVec[:])
		},
		decode: func(buf []byte) MultiData {
			var v MultiData
			v.Count = binary.BigEndian.Uint32(buf[0:4])
			copy(v.BitVec[:], buf[4:24])
			return v
		},
	}
}

func multiIDLDataCodec() valueCodec[MultiIDLData] {
	return valueCodec[MultiIDLData]{
		size: multiIDLValueSize,
		encode: func(v MultiIDLData, buf []byte) {
			binary.BigEndian.PutUint32(buf[0:4], v.Count)
			copy(buf[4:24], v.BitVec[:])
			binary.BigEndian.PutUint64(buf[24:32], uint64(v.IDLOffset))
		},
		decode: func(buf []byte) MultiIDLData {
			var v MultiIDLData
			v.Count = binary.BigEndian.Uint32(buf[0:4])
			copy(v.BitVec[:], buf[4:24])
			v.IDLOffset = int64(binary.BigEndian.Uint64(buf[24:32]))
			return v
		},
	}
}

func childCodec() valueCodec[uint32] { return u32Codec() }
