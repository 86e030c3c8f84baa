// Package pbf reads the length-delimited, tag-dispatched binary message
// format used by vector tiles without a schema compiler.
//
// Input is treated as untrusted: every read is bounds checked and reports
// an error instead of panicking.
package pbf

import (
	"encoding/binary"
	"math"
	"unicode/utf8"
)

// Buffer is a growable byte container with little-endian accessors.
type Buffer struct {
	buf []byte
}

// NewBuffer wraps data without copying it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{buf: data}
}

// Len returns the number of bytes held.
func (b *Buffer) Len() int { return len(b.buf) }

// Bytes returns the underlying bytes.
func (b *Buffer) Bytes() []byte { return b.buf }

// Grow makes room for at least n more bytes.
func (b *Buffer) Grow(n int) {
	if n <= cap(b.buf)-len(b.buf) {
		return
	}
	next := make([]byte, len(b.buf), 2*cap(b.buf)+n)
	copy(next, b.buf)
	b.buf = next
}

// Write appends p to the buffer. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Grow(len(p))
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	b.Grow(1)
	b.buf = append(b.buf, c)
	return nil
}

func (b *Buffer) span(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off > len(b.buf)-n {
		return nil, ErrTruncated
	}
	return b.buf[off : off+n], nil
}

// Uint32 reads a little-endian uint32 at off.
func (b *Buffer) Uint32(off int) (uint32, error) {
	p, err := b.span(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

// Int32 reads a little-endian int32 at off.
func (b *Buffer) Int32(off int) (int32, error) {
	v, err := b.Uint32(off)
	return int32(v), err
}

// Uint64 reads a little-endian uint64 at off.
func (b *Buffer) Uint64(off int) (uint64, error) {
	p, err := b.span(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

// Int64 reads a little-endian int64 at off.
func (b *Buffer) Int64(off int) (int64, error) {
	v, err := b.Uint64(off)
	return int64(v), err
}

// Float32 reads a little-endian IEEE 754 single at off.
func (b *Buffer) Float32(off int) (float32, error) {
	v, err := b.Uint32(off)
	return math.Float32frombits(v), err
}

// Float64 reads a little-endian IEEE 754 double at off.
func (b *Buffer) Float64(off int) (float64, error) {
	v, err := b.Uint64(off)
	return math.Float64frombits(v), err
}

// String returns the UTF-8 text in [start, end). Invalid sequences are
// replaced with U+FFFD.
func (b *Buffer) String(start, end int) (string, error) {
	p, err := b.span(start, end-start)
	if err != nil {
		return "", err
	}
	if utf8.Valid(p) {
		return string(p), nil
	}
	return string([]rune(string(p))), nil
}

// Slice returns the raw bytes in [start, end) without copying.
func (b *Buffer) Slice(start, end int) ([]byte, error) {
	return b.span(start, end-start)
}
