// Package bitstream implements append-only and cursor-based bit-level I/O
// against memory or file-backed storage, with binary and Elias-gamma
// codecs layered on top (spec §4.1, L1).
//
// Grounded on index/delta.go's deltaReader/deltaWriter (the teacher's
// gamma-coded delta codec for posting lists) for the general shape of a
// bit-at-a-time reader/writer pair, and on original_source/src/M6BitStream.{h,cpp}
// for the exact buffering discipline: an inline on-stack staging region that
// spills into a pluggable backing store once full.
package bitstream

import "io"

// inlineSize is the number of bytes an Output buffers before spilling into
// its backing store (M6BitStream.h's kBufferSize).
const inlineSize = 22

// fileFlushUnit is the flush granularity for a file-backed Output.
const fileFlushUnit = 16 << 10

// backing is the pluggable spill target for an Output once its inline
// buffer is full.
type backing interface {
	write(p []byte)
	size() int64
	truncate()
	sync()
}

type memBacking struct {
	buf []byte
}

func (m *memBacking) write(p []byte)  { m.buf = append(m.buf, p...) }
func (m *memBacking) size() int64     { return int64(len(m.buf)) }
func (m *memBacking) truncate()       { m.buf = m.buf[:0] }
func (m *memBacking) sync()           {}

// fileBacking buffers writes in 16 KiB chunks before flushing to w. It
// accumulates the first write error (if any) rather than panicking, in the
// manner of bufio.Writer.
type fileBacking struct {
	w       io.Writer
	buf     []byte
	written int64
	err     error
}

func (f *fileBacking) write(p []byte) {
	f.buf = append(f.buf, p...)
	for len(f.buf) >= fileFlushUnit {
		f.flushChunk(f.buf[:fileFlushUnit])
		f.buf = append(f.buf[:0], f.buf[fileFlushUnit:]...)
	}
}

func (f *fileBacking) flushChunk(p []byte) {
	if f.err != nil || len(p) == 0 {
		return
	}
	n, err := f.w.Write(p)
	f.written += int64(n)
	if err != nil {
		f.err = err
	}
}

func (f *fileBacking) size() int64 { return f.written + int64(len(f.buf)) }
func (f *fileBacking) truncate()   { f.buf = f.buf[:0] }
func (f *fileBacking) sync()       { f.flushChunk(f.buf); f.buf = f.buf[:0] }

// Output is an append-only bit sink. The zero value is not usable; build
// one with NewMemoryOutput or NewFileOutput.
type Output struct {
	backing backing
	data    [inlineSize]byte
	byteOff int
	bitOff  int // 7 down to 0: next bit position to fill in data[byteOff]
}

func newOutput(b backing) *Output {
	return &Output{backing: b, bitOff: 7}
}

// NewMemoryOutput returns an Output backed by a growable in-memory buffer.
func NewMemoryOutput() *Output { return newOutput(&memBacking{}) }

// NewFileOutput returns an Output that spills its staging buffer to w in
// 16 KiB chunks.
func NewFileOutput(w io.Writer) *Output { return newOutput(&fileBacking{w: w}) }

// Err returns the first write error encountered by a file-backed Output, if
// any.
func (o *Output) Err() error {
	if fb, ok := o.backing.(*fileBacking); ok {
		return fb.err
	}
	return nil
}

func (o *Output) overflow() {
	if o.backing == nil {
		o.backing = &memBacking{}
	}
	if o.byteOff > 0 {
		o.backing.write(o.data[:o.byteOff])
		o.byteOff = 0
	}
}

// WriteBit appends a single bit, MSB-first within each byte.
func (o *Output) WriteBit(bit int) {
	if bit != 0 {
		o.data[o.byteOff] |= 1 << uint(o.bitOff)
	}
	o.bitOff--
	if o.bitOff < 0 {
		o.byteOff++
		o.bitOff = 7
		if o.byteOff >= inlineSize {
			o.overflow()
		}
		o.data[o.byteOff] = 0
	}
}

// WriteBinary appends the low nBits of value, most-significant bit first.
// nBits must be in [1, 64].
func (o *Output) WriteBinary(nBits int, value uint64) {
	for nBits > 0 {
		nBits--
		o.WriteBit(int((value >> uint(nBits)) & 1))
	}
}

// WriteGamma appends v using Elias gamma coding: floor(log2 v) one-bits, a
// terminating zero, then the low floor(log2 v) bits of v. Not defined for
// v == 0.
func (o *Output) WriteGamma(v uint64) {
	if v == 0 {
		panic("bitstream: WriteGamma of zero")
	}
	e := 0
	x := v
	for x > 1 {
		x >>= 1
		e++
		o.WriteBit(1)
	}
	o.WriteBit(0)
	for e > 0 {
		e--
		o.WriteBit(int((v >> uint(e)) & 1))
	}
}

// Sync emits a terminating 0 bit followed by 1 bits until byte aligned,
// flushes any staged bytes to the backing store, and establishes a stable,
// resumable boundary: BitSize/ByteSize/Bytes are only meaningful once Sync
// has been called.
func (o *Output) Sync() {
	o.WriteBit(0)
	for o.bitOff != 7 {
		o.WriteBit(1)
	}
	o.overflow()
	o.data[0] = 0
	o.backing.sync()
}

// Size returns the number of bytes written so far, including the
// not-yet-full trailing byte.
func (o *Output) Size() int64 {
	var backed int64
	if o.backing != nil {
		backed = o.backing.size()
	}
	return int64(o.byteOff+1) + backed
}

// BitSize returns the exact bit length written so far.
func (o *Output) BitSize() int64 {
	return o.Size()*8 - int64(o.bitOff) - 1
}

// ByteSize returns ceil(BitSize/8); meaningful once Sync has been called.
func (o *Output) ByteSize() int64 {
	return (o.BitSize() + 7) / 8
}

// Empty reports whether no bits have been written.
func (o *Output) Empty() bool { return o.BitSize() == 0 }

// Bytes returns the memory-backed Output's buffer. It panics if the Output
// is file-backed or Sync has not been called. Used to embed a short
// compressed posting list directly into a B+ tree leaf entry (spec §4.4's
// inline storage mode).
func (o *Output) Bytes() []byte {
	mb, ok := o.backing.(*memBacking)
	if !ok {
		panic("bitstream: Bytes called on a non-memory-backed Output")
	}
	if o.byteOff != 0 || o.bitOff != 7 {
		panic("bitstream: Bytes called before Sync")
	}
	return mb.buf
}

// Clone returns a copy of o. A memory-backed clone shares o's buffer, with
// the shared slice capped at its length so that the next write on either
// side grows into a fresh array instead of changing what the other sees —
// the original's reference-counted, copy-on-write backing impl without
// manual refcounting. A file-backed clone shares o's file backing.
func (o *Output) Clone() *Output {
	c := *o
	if mb, ok := o.backing.(*memBacking); ok {
		mb.buf = mb.buf[:len(mb.buf):len(mb.buf)]
		c.backing = &memBacking{buf: mb.buf}
	}
	return &c
}

// --------------------------------------------------------------------
// Input

// source supplies an Input with bytes one at a time, returning 0 past its
// logical end (matching M6IBitStreamImpl::Get's documented EOF behavior:
// callers rely on trailing zero bits to terminate gamma loops).
type source interface {
	next() byte
}

type memSource struct {
	data []byte
	pos  int
}

func (m *memSource) next() byte {
	if m.pos >= len(m.data) {
		return 0
	}
	b := m.data[m.pos]
	m.pos++
	return b
}

// fileSource reads through a buffered window over an io.ReaderAt, matching
// the original's M6IBitStreamFileImpl buffering.
type fileSource struct {
	r      io.ReaderAt
	offset int64
	limit  int64 // -1 means unbounded (read to EOF)
	buf    []byte
	pos    int
}

func (f *fileSource) next() byte {
	if f.pos >= len(f.buf) {
		f.fill()
	}
	if f.pos >= len(f.buf) {
		return 0
	}
	b := f.buf[f.pos]
	f.pos++
	return b
}

func (f *fileSource) fill() {
	want := cap(f.buf)
	if f.limit >= 0 {
		remaining := f.limit - f.offset
		if remaining <= 0 {
			f.buf = f.buf[:0]
			return
		}
		if int64(want) > remaining {
			want = int(remaining)
		}
	}
	n, _ := f.r.ReadAt(f.buf[:want], f.offset)
	f.buf = f.buf[:n]
	f.pos = 0
	f.offset += int64(n)
}

// DefaultBitBufferSize is the default read-ahead window for a file-backed
// Input (M6BitStream.h's kM6DefaultBitBufferSize).
const DefaultBitBufferSize = 4096

// Input is a cursor over a bit stream held in memory or a paged file.
type Input struct {
	src    source
	byteV  byte
	bitOff int
}

func newInput(src source) *Input {
	in := &Input{src: src, bitOff: 7}
	in.byteV = src.next()
	return in
}

// NewMemoryInput returns an Input reading from data.
func NewMemoryInput(data []byte) *Input { return newInput(&memSource{data: data}) }

// NewFileInput returns an Input reading bitBufferSize bytes at a time from
// r starting at offset. If limit >= 0, reads never advance past limit
// bytes from the start of r (used to bound a stream to one posting list's
// byte extent within a shared bit-vector page chain); pass -1 for
// unbounded.
func NewFileInput(r io.ReaderAt, offset int64, limit int64, bitBufferSize int) *Input {
	if bitBufferSize <= 0 {
		bitBufferSize = DefaultBitBufferSize
	}
	return newInput(&fileSource{r: r, offset: offset, limit: limit, buf: make([]byte, 0, bitBufferSize)})
}

// NewInputFromOutput wraps a Sync'd, memory-backed Output for reading back.
func NewInputFromOutput(o *Output) *Input {
	return NewMemoryInput(o.Bytes())
}

// ReadBit returns 0 or 1; reading past the logical end of the stream
// returns 0 forever.
func (in *Input) ReadBit() int {
	result := 0
	if in.byteV&(1<<uint(in.bitOff)) != 0 {
		result = 1
	}
	in.bitOff--
	if in.bitOff < 0 {
		in.byteV = in.src.next()
		in.bitOff = 7
	}
	return result
}

// ReadBinary reads nBits (MSB-first) and returns them as the low bits of a
// uint64.
func (in *Input) ReadBinary(nBits int) uint64 {
	var v uint64
	for nBits > 0 {
		nBits--
		v = v<<1 | uint64(in.ReadBit())
	}
	return v
}

// ReadGamma decodes a value written by Output.WriteGamma. The v != 0 guard
// mirrors the original's defense against a run of corrupt 1-bits shifting a
// 64-bit accumulator all the way to zero.
func (in *Input) ReadGamma() uint64 {
	v := uint64(1)
	e := 0
	for v != 0 && in.ReadBit() == 1 {
		v <<= 1
		e++
	}
	var v2 uint64
	for e > 0 {
		e--
		v2 = v2<<1 | uint64(in.ReadBit())
	}
	return v + v2
}

// Skip discards n bits.
func (in *Input) Skip(n uint32) {
	for ; n > 0; n-- {
		in.ReadBit()
	}
}

// NextByte returns the current byte-aligned byte and advances by one byte.
// Only meaningful when the stream is byte-aligned (bitOff == 7, i.e. right
// after construction or after a Skip/ReadBinary that lands on a byte
// boundary), which callers establish via Sync boundaries per spec §4.1.
func (in *Input) NextByte() byte {
	b := in.byteV
	in.byteV = in.src.next()
	return b
}
