package bitstream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGammaRoundTrip(t *testing.T) {
	o := NewMemoryOutput()
	for v := uint64(1); v <= 99; v++ {
		o.WriteGamma(v)
	}
	o.Sync()

	in := NewInputFromOutput(o)
	for v := uint64(1); v <= 99; v++ {
		require.Equal(t, v, in.ReadGamma(), "value %d", v)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	o := NewMemoryOutput()
	widths := []int{1, 3, 7, 8, 13, 32, 64}
	values := []uint64{0, 1, 5, 0xFF, 0x1FFF, 0xFFFFFFFF, 0xFFFFFFFFFFFFFFFF}
	for i, w := range widths {
		o.WriteBinary(w, values[i])
	}
	o.Sync()

	in := NewInputFromOutput(o)
	for i, w := range widths {
		want := values[i]
		if w < 64 {
			want &= (uint64(1) << uint(w)) - 1
		}
		require.Equal(t, want, in.ReadBinary(w))
	}
}

func TestBitRoundTripOverByteBoundary(t *testing.T) {
	o := NewMemoryOutput()
	bits := []int{1, 0, 1, 1, 0, 0, 0, 1, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1}
	for _, b := range bits {
		o.WriteBit(b)
	}
	o.Sync()

	in := NewInputFromOutput(o)
	for i, want := range bits {
		got := in.ReadBit()
		require.Equal(t, want, got, "bit %d", i)
	}
}

func TestReadPastEndReturnsZero(t *testing.T) {
	o := NewMemoryOutput()
	o.WriteBit(1)
	o.Sync()

	in := NewInputFromOutput(o)
	// The synced byte is the written 1 bit, Sync's 0 bit and six 1-bit pads.
	in.Skip(8)
	for i := 0; i < 64; i++ {
		require.Equal(t, 0, in.ReadBit())
	}
}

func TestFileBackedOutputSpillsAndFlushes(t *testing.T) {
	var buf bytes.Buffer
	o := NewFileOutput(&buf)
	for v := uint64(1); v <= 1000; v++ {
		o.WriteGamma(v)
	}
	o.Sync()
	require.NoError(t, o.Err())
	require.True(t, buf.Len() > 0)

	in := NewFileInput(bytes.NewReader(buf.Bytes()), 0, int64(buf.Len()), 0)
	for v := uint64(1); v <= 1000; v++ {
		require.Equal(t, v, in.ReadGamma())
	}
}

func TestSizeAccounting(t *testing.T) {
	o := NewMemoryOutput()
	require.True(t, o.Empty())
	o.WriteBinary(8, 0xAB)
	o.WriteBinary(8, 0xCD)
	o.Sync()
	require.Equal(t, int64(24), o.BitSize())
	require.Equal(t, int64(3), o.ByteSize())
	require.Equal(t, []byte{0xAB, 0xCD, 0x7F}, o.Bytes())
}

func TestCloneSharesPriorContent(t *testing.T) {
	o := NewMemoryOutput()
	o.WriteBinary(8, 0x42)
	o.Sync()
	clone := o.Clone()
	require.Equal(t, o.Bytes(), clone.Bytes())
}
