// Package buffer implements the reactor core's growable byte
// container: a contiguous slice with separate read and write cursors
// plus a small prepend region, grounded on muduo's net/Buffer.h
// cursor-invariant design.
package buffer

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

const (
	// PrependSize is the default size of the prepend region, large
	// enough to hold a 4-byte length header without relocation.
	PrependSize = 8
	// InitialSize is the default capacity beyond the prepend region.
	InitialSize = 1024
)

// ErrNotEnoughData is returned by the ReadInt* family when fewer than
// the requested number of bytes are readable.
var ErrNotEnoughData = errors.New("buffer: not enough readable data")

// Buffer is a growable byte container with read cursor R and write
// cursor W such that 0 <= prependIndex <= R <= W <= len(data).
type Buffer struct {
	data  []byte
	rIdx  int
	wIdx  int
	esize int // size of the prepend region, constant for this buffer
}

// New returns an empty Buffer with the default prepend region and
// initial capacity.
func New() *Buffer {
	return NewSize(InitialSize)
}

// NewSize returns an empty Buffer with the given initial writable
// capacity beyond the default prepend region.
func NewSize(initialSize int) *Buffer {
	return &Buffer{
		data:  make([]byte, PrependSize+initialSize),
		rIdx:  PrependSize,
		wIdx:  PrependSize,
		esize: PrependSize,
	}
}

// ReadableBytes returns the number of bytes available to read.
func (b *Buffer) ReadableBytes() int { return b.wIdx - b.rIdx }

// WritableBytes returns the number of bytes that can be appended
// without growing the buffer.
func (b *Buffer) WritableBytes() int { return len(b.data) - b.wIdx }

// PrependableBytes returns the number of bytes currently available in
// the prepend region.
func (b *Buffer) PrependableBytes() int { return b.rIdx }

// Peek returns the readable region without consuming it. The slice
// aliases the buffer's storage and is invalidated by any mutating
// call.
func (b *Buffer) Peek() []byte { return b.data[b.rIdx:b.wIdx] }

// Retrieve advances the read cursor by n bytes (n must be <=
// ReadableBytes). When the buffer becomes empty both cursors reset to
// the prepend boundary so future appends reuse the front of the array.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.rIdx += n
		return
	}
	b.RetrieveAll()
}

// RetrieveAll discards every readable byte.
func (b *Buffer) RetrieveAll() {
	b.rIdx = b.esize
	b.wIdx = b.esize
}

// RetrieveAsBytes consumes and returns a copy of all readable bytes.
func (b *Buffer) RetrieveAsBytes() []byte {
	out := make([]byte, b.ReadableBytes())
	copy(out, b.Peek())
	b.RetrieveAll()
	return out
}

// RetrieveAsString consumes and returns all readable bytes as a string.
func (b *Buffer) RetrieveAsString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// Append copies data into the writable region, growing the buffer if
// necessary. W advances by len(data); R is unchanged.
func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	n := copy(b.data[b.wIdx:], data)
	b.wIdx += n
}

// AppendString is a convenience wrapper around Append.
func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// ensureWritable guarantees WritableBytes() >= need, either by
// shifting the readable region down to the prepend boundary (if the
// combined prependable+writable space suffices) or by growing the
// underlying array.
func (b *Buffer) ensureWritable(need int) {
	if b.WritableBytes() >= need {
		return
	}
	if b.PrependableBytes()-b.esize+b.WritableBytes() >= need {
		readable := b.ReadableBytes()
		copy(b.data[b.esize:], b.data[b.rIdx:b.wIdx])
		b.rIdx = b.esize
		b.wIdx = b.esize + readable
		return
	}
	newCap := len(b.data) + need - b.WritableBytes()
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.wIdx])
	b.data = grown
}

// Prepend writes data immediately before the current read cursor,
// into the prepend region, without relocating any bytes. Callers use
// this to insert a length header after the payload is known.
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.PrependableBytes() {
		panic("buffer: prepend region exhausted")
	}
	b.rIdx -= len(data)
	copy(b.data[b.rIdx:], data)
}

// --- network byte order integer helpers ---

func (b *Buffer) AppendInt8(v int8) { b.Append([]byte{byte(v)}) }

func (b *Buffer) AppendUint8(v uint8) { b.Append([]byte{v}) }

func (b *Buffer) AppendInt16(v int16) { b.AppendUint16(uint16(v)) }

func (b *Buffer) AppendUint16(v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.Append(tmp[:])
}

func (b *Buffer) AppendInt32(v int32) { b.AppendUint32(uint32(v)) }

func (b *Buffer) AppendUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.Append(tmp[:])
}

func (b *Buffer) AppendInt64(v int64) { b.AppendUint64(uint64(v)) }

func (b *Buffer) AppendUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.Append(tmp[:])
}

func (b *Buffer) PeekUint8() (uint8, error) {
	if b.ReadableBytes() < 1 {
		return 0, ErrNotEnoughData
	}
	return b.data[b.rIdx], nil
}

func (b *Buffer) PeekInt8() (int8, error) {
	v, err := b.PeekUint8()
	return int8(v), err
}

func (b *Buffer) PeekUint16() (uint16, error) {
	if b.ReadableBytes() < 2 {
		return 0, ErrNotEnoughData
	}
	return binary.BigEndian.Uint16(b.data[b.rIdx:]), nil
}

func (b *Buffer) PeekInt16() (int16, error) {
	v, err := b.PeekUint16()
	return int16(v), err
}

func (b *Buffer) PeekUint32() (uint32, error) {
	if b.ReadableBytes() < 4 {
		return 0, ErrNotEnoughData
	}
	return binary.BigEndian.Uint32(b.data[b.rIdx:]), nil
}

func (b *Buffer) PeekInt32() (int32, error) {
	v, err := b.PeekUint32()
	return int32(v), err
}

func (b *Buffer) PeekUint64() (uint64, error) {
	if b.ReadableBytes() < 8 {
		return 0, ErrNotEnoughData
	}
	return binary.BigEndian.Uint64(b.data[b.rIdx:]), nil
}

func (b *Buffer) PeekInt64() (int64, error) {
	v, err := b.PeekUint64()
	return int64(v), err
}

func (b *Buffer) ReadUint8() (uint8, error) {
	v, err := b.PeekUint8()
	if err != nil {
		return 0, err
	}
	b.Retrieve(1)
	return v, nil
}

func (b *Buffer) ReadInt8() (int8, error) {
	v, err := b.ReadUint8()
	return int8(v), err
}

func (b *Buffer) ReadUint16() (uint16, error) {
	v, err := b.PeekUint16()
	if err != nil {
		return 0, err
	}
	b.Retrieve(2)
	return v, nil
}

func (b *Buffer) ReadInt16() (int16, error) {
	v, err := b.ReadUint16()
	return int16(v), err
}

func (b *Buffer) ReadUint32() (uint32, error) {
	v, err := b.PeekUint32()
	if err != nil {
		return 0, err
	}
	b.Retrieve(4)
	return v, nil
}

func (b *Buffer) ReadInt32() (int32, error) {
	v, err := b.ReadUint32()
	return int32(v), err
}

func (b *Buffer) ReadUint64() (uint64, error) {
	v, err := b.PeekUint64()
	if err != nil {
		return 0, err
	}
	b.Retrieve(8)
	return v, nil
}

func (b *Buffer) ReadInt64() (int64, error) {
	v, err := b.ReadUint64()
	return int64(v), err
}

// PrependInt32 inserts a 32-bit network-order length header in front
// of the current readable region without relocating it — the
// canonical use is writing a length-prefix after the payload has
// already been appended.
func (b *Buffer) PrependInt32(v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	b.Prepend(tmp[:])
}

func (b *Buffer) PrependInt16(v int16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], uint16(v))
	b.Prepend(tmp[:])
}

func (b *Buffer) PrependInt8(v int8) {
	b.Prepend([]byte{byte(v)})
}

// ReadFromFD performs a scatter read from fd into the buffer,
// combining the existing writable tail with a fallback stack buffer
// so a single large datagram/stream read doesn't force an
// unconditional grow — mirrors muduo's Buffer::readFd extra-buffer
// trick, implemented here via readv(2).
func (b *Buffer) ReadFromFD(fd int) (int, error) {
	const extraBufSize = 65536
	var extra [extraBufSize]byte

	writable := b.WritableBytes()
	iovs := make([][]byte, 0, 2)
	iovs = append(iovs, b.data[b.wIdx:])
	if writable < extraBufSize {
		iovs = append(iovs, extra[:])
	}

	n, err := readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	if n <= writable {
		b.wIdx += n
	} else {
		b.wIdx = len(b.data)
		b.Append(extra[:n-writable])
	}
	return n, nil
}

func readv(fd int, iovs [][]byte) (int, error) {
	total := 0
	for _, iov := range iovs {
		total += len(iov)
	}
	if total == 0 {
		return 0, nil
	}
	n, err := unix.Readv(fd, iovs)
	if err != nil {
		return 0, err
	}
	return n, nil
}
