package vtile

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownGeometryCommand matches any *UnknownCommandError.
	ErrUnknownGeometryCommand = errors.New("vtile: unknown geometry command")

	// ErrUnsupportedGeometryType is returned for features whose type is not
	// Point, LineString or Polygon.
	ErrUnsupportedGeometryType = errors.New("vtile: unsupported geometry type")
)

// UnknownCommandError reports a command integer outside MoveTo, LineTo and
// ClosePath. It is scoped to a single feature.
type UnknownCommandError struct {
	Command uint64
	Pos     int
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("vtile: unknown geometry command %d at offset %d", e.Command, e.Pos)
}

func (e *UnknownCommandError) Is(target error) bool {
	return target == ErrUnknownGeometryCommand
}
