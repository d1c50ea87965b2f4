package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Invariants(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, PrependSize, b.PrependableBytes())
	assert.Equal(t, InitialSize, b.WritableBytes())

	b.AppendString("hello")
	assert.Equal(t, 5, b.ReadableBytes())
	assert.Equal(t, PrependSize, b.PrependableBytes())

	b.Retrieve(2)
	assert.Equal(t, 3, b.ReadableBytes())
	assert.Equal(t, "llo", string(b.Peek()))
}

func TestBuffer_RoundTripInt32(t *testing.T) {
	b := New()
	before := b.ReadableBytes()
	b.AppendInt32(424242)
	after := b.ReadableBytes()
	assert.Equal(t, before+4, after)

	v, err := b.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(424242), v)
	assert.Equal(t, before, b.ReadableBytes())
}

func TestBuffer_RoundTripAllWidths(t *testing.T) {
	b := New()
	b.AppendUint8(0xAB)
	b.AppendUint16(0xBEEF)
	b.AppendUint32(0xDEADBEEF)
	b.AppendUint64(0x0102030405060708)

	v8, err := b.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), v8)

	v16, err := b.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), v16)

	v32, err := b.ReadUint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0xDEADBEEF), v32)

	v64, err := b.ReadUint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), v64)

	assert.Equal(t, 0, b.ReadableBytes())
}

func TestBuffer_NotEnoughData(t *testing.T) {
	b := New()
	b.AppendUint8(1)
	_, err := b.ReadUint32()
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestBuffer_PrependLengthHeader(t *testing.T) {
	b := New()
	b.AppendString("payload")
	b.PrependInt32(int32(b.ReadableBytes()))

	length, err := b.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(7), length)
	assert.Equal(t, "payload", string(b.Peek()))
}

func TestBuffer_RelocatesWhenPrependPlusWritableSuffices(t *testing.T) {
	b := NewSize(4)
	b.AppendString("abcd")
	// forces relocation since writable == 0 but prependable+writable is big enough
	b.Retrieve(2)
	b.AppendString("ef")
	assert.Equal(t, "cdef", string(b.Peek()))
}

func TestBuffer_GrowsCapacityWhenNeeded(t *testing.T) {
	b := NewSize(4)
	big := make([]byte, 4096)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	assert.Equal(t, 4096, b.ReadableBytes())
	assert.Equal(t, big, b.Peek())
}

func TestBuffer_RetrieveAllResetsToPrependBoundary(t *testing.T) {
	b := New()
	b.AppendString("xyz")
	b.RetrieveAll()
	assert.Equal(t, 0, b.ReadableBytes())
	assert.Equal(t, PrependSize, b.PrependableBytes())
}
