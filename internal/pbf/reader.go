package pbf

// WireType is the low three bits of a field tag.
type WireType uint8

const (
	Varint  WireType = 0
	Fixed64 WireType = 1
	Bytes   WireType = 2
	Fixed32 WireType = 5
)

// maxVarintLen is the longest legal encoding of a 64-bit varint.
const maxVarintLen = 10

// FieldFunc handles one field of a message. It is called with the cursor
// positioned on the field's payload; leaving the cursor untouched marks the
// field as unrecognised and it is skipped.
type FieldFunc func(field int, r *Reader) error

// Reader is a cursor over a Buffer.
type Reader struct {
	buf *Buffer

	// Pos is the offset of the next unread byte.
	Pos int

	field int
	wire  WireType
}

// NewReader returns a reader positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{buf: NewBuffer(data)}
}

// Buffer returns the underlying buffer.
func (r *Reader) Buffer() *Buffer { return r.buf }

// Len returns the total number of bytes addressable by the reader.
func (r *Reader) Len() int { return r.buf.Len() }

// WireType returns the wire type of the tag most recently read by ReadFields.
func (r *Reader) WireType() WireType { return r.wire }

// ReadVarint decodes an unsigned varint.
func (r *Reader) ReadVarint() (uint64, error) {
	var v uint64
	data := r.buf.buf
	for i := 0; i < maxVarintLen; i++ {
		if r.Pos >= len(data) {
			return 0, ErrTruncated
		}
		b := data[r.Pos]
		r.Pos++
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b < 0x80 {
			return v, nil
		}
	}
	return 0, ErrMalformedVarint
}

// ReadSVarint decodes a zigzag-encoded signed varint.
func (r *Reader) ReadSVarint() (int64, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return DecodeZigzag(n), nil
}

// DecodeZigzag maps 0, 1, 2, 3... back to 0, -1, 1, -2...
func DecodeZigzag(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

// EncodeZigzag is the inverse of DecodeZigzag.
func EncodeZigzag(v int64) uint64 {
	return uint64(v<<1) ^ uint64(v>>63)
}

// ReadBool decodes a varint as a boolean.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadVarint()
	return v != 0, err
}

// ReadFixed32 reads four bytes as an unsigned integer.
func (r *Reader) ReadFixed32() (uint32, error) {
	v, err := r.buf.Uint32(r.Pos)
	if err != nil {
		return 0, err
	}
	r.Pos += 4
	return v, nil
}

// ReadSFixed32 reads four bytes as a signed integer.
func (r *Reader) ReadSFixed32() (int32, error) {
	v, err := r.ReadFixed32()
	return int32(v), err
}

// ReadFixed64 reads eight bytes as an unsigned integer.
func (r *Reader) ReadFixed64() (uint64, error) {
	v, err := r.buf.Uint64(r.Pos)
	if err != nil {
		return 0, err
	}
	r.Pos += 8
	return v, nil
}

// ReadSFixed64 reads eight bytes as a signed integer.
func (r *Reader) ReadSFixed64() (int64, error) {
	v, err := r.ReadFixed64()
	return int64(v), err
}

// ReadFloat reads a single-precision float.
func (r *Reader) ReadFloat() (float32, error) {
	v, err := r.buf.Float32(r.Pos)
	if err != nil {
		return 0, err
	}
	r.Pos += 4
	return v, nil
}

// ReadDouble reads a double-precision float.
func (r *Reader) ReadDouble() (float64, error) {
	v, err := r.buf.Float64(r.Pos)
	if err != nil {
		return 0, err
	}
	r.Pos += 8
	return v, nil
}

// readLength reads a length prefix and returns the end offset it implies.
func (r *Reader) readLength() (int, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	if n > uint64(r.buf.Len()-r.Pos) {
		return 0, ErrTruncated
	}
	return r.Pos + int(n), nil
}

// ReadBytes reads a length-prefixed byte slice. The result aliases the
// underlying buffer.
func (r *Reader) ReadBytes() ([]byte, error) {
	end, err := r.readLength()
	if err != nil {
		return nil, err
	}
	p, err := r.buf.Slice(r.Pos, end)
	if err != nil {
		return nil, err
	}
	r.Pos = end
	return p, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	end, err := r.readLength()
	if err != nil {
		return "", err
	}
	s, err := r.buf.String(r.Pos, end)
	if err != nil {
		return "", err
	}
	r.Pos = end
	return s, nil
}

// ReadFields dispatches every field in [Pos, end) to fn. Fields fn does not
// consume are skipped according to their wire type.
func (r *Reader) ReadFields(end int, fn FieldFunc) error {
	if end > r.buf.Len() {
		return ErrTruncated
	}
	for r.Pos < end {
		tag, err := r.ReadVarint()
		if err != nil {
			return err
		}
		r.field = int(tag >> 3)
		r.wire = WireType(tag & 7)

		start := r.Pos
		if err := fn(r.field, r); err != nil {
			return err
		}
		if r.Pos == start {
			if err := r.Skip(r.wire); err != nil {
				return err
			}
		}
	}
	if r.Pos > end {
		return ErrTruncated
	}
	return nil
}

// ReadMessage reads a length prefix then the fields it bounds.
func (r *Reader) ReadMessage(fn FieldFunc) error {
	end, err := r.readLength()
	if err != nil {
		return err
	}
	return r.ReadFields(end, fn)
}

// Skip advances past a value of the given wire type.
func (r *Reader) Skip(t WireType) error {
	switch t {
	case Varint:
		data := r.buf.buf
		for i := 0; ; i++ {
			if i == maxVarintLen {
				return ErrMalformedVarint
			}
			if r.Pos >= len(data) {
				return ErrTruncated
			}
			b := data[r.Pos]
			r.Pos++
			if b < 0x80 {
				return nil
			}
		}
	case Bytes:
		end, err := r.readLength()
		if err != nil {
			return err
		}
		r.Pos = end
	case Fixed32:
		if r.Pos+4 > r.buf.Len() {
			return ErrTruncated
		}
		r.Pos += 4
	case Fixed64:
		if r.Pos+8 > r.buf.Len() {
			return ErrTruncated
		}
		r.Pos += 8
	default:
		return &UnsupportedWireTypeError{Type: t, Field: r.field, Pos: r.Pos}
	}
	return nil
}

// packed runs read until the length-prefixed range is exhausted.
func (r *Reader) packed(read func() error) error {
	end, err := r.readLength()
	if err != nil {
		return err
	}
	for r.Pos < end {
		if err := read(); err != nil {
			return err
		}
	}
	if r.Pos != end {
		return ErrTruncated
	}
	return nil
}

// ReadPackedVarint appends a packed run of varints to dst.
func (r *Reader) ReadPackedVarint(dst []uint64) ([]uint64, error) {
	err := r.packed(func() error {
		v, err := r.ReadVarint()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedSVarint appends a packed run of zigzag varints to dst.
func (r *Reader) ReadPackedSVarint(dst []int64) ([]int64, error) {
	err := r.packed(func() error {
		v, err := r.ReadSVarint()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedBool appends a packed run of booleans to dst.
func (r *Reader) ReadPackedBool(dst []bool) ([]bool, error) {
	err := r.packed(func() error {
		v, err := r.ReadBool()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedFixed32 appends a packed run of fixed32 values to dst.
func (r *Reader) ReadPackedFixed32(dst []uint32) ([]uint32, error) {
	err := r.packed(func() error {
		v, err := r.ReadFixed32()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedSFixed32 appends a packed run of sfixed32 values to dst.
func (r *Reader) ReadPackedSFixed32(dst []int32) ([]int32, error) {
	err := r.packed(func() error {
		v, err := r.ReadSFixed32()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedFixed64 appends a packed run of fixed64 values to dst.
func (r *Reader) ReadPackedFixed64(dst []uint64) ([]uint64, error) {
	err := r.packed(func() error {
		v, err := r.ReadFixed64()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedSFixed64 appends a packed run of sfixed64 values to dst.
func (r *Reader) ReadPackedSFixed64(dst []int64) ([]int64, error) {
	err := r.packed(func() error {
		v, err := r.ReadSFixed64()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedFloat appends a packed run of floats to dst.
func (r *Reader) ReadPackedFloat(dst []float32) ([]float32, error) {
	err := r.packed(func() error {
		v, err := r.ReadFloat()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}

// ReadPackedDouble appends a packed run of doubles to dst.
func (r *Reader) ReadPackedDouble(dst []float64) ([]float64, error) {
	err := r.packed(func() error {
		v, err := r.ReadDouble()
		if err != nil {
			return err
		}
		dst = append(dst, v)
		return nil
	})
	return dst, err
}
