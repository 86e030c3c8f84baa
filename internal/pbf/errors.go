package pbf

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedVarint is returned when a varint runs past ten bytes.
	ErrMalformedVarint = errors.New("pbf: malformed varint")

	// ErrTruncated is returned when a read runs off the end of the buffer.
	ErrTruncated = errors.New("pbf: unexpected end of buffer")

	// ErrUnsupportedWireType matches any *UnsupportedWireTypeError.
	ErrUnsupportedWireType = errors.New("pbf: unsupported wire type")
)

// UnsupportedWireTypeError reports a tag whose wire type cannot be skipped.
type UnsupportedWireTypeError struct {
	Type  WireType
	Field int
	Pos   int
}

func (e *UnsupportedWireTypeError) Error() string {
	return fmt.Sprintf("pbf: unsupported wire type %d for field %d at offset %d", e.Type, e.Field, e.Pos)
}

func (e *UnsupportedWireTypeError) Is(target error) bool {
	return target == ErrUnsupportedWireType
}
