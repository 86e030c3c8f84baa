// Package canvas provides the 2D drawing surfaces tiles are rendered onto.
package canvas

// Surface is a per-tile drawing target in pixel coordinates. Paths are built
// with BeginPath, MoveTo, LineTo, ClosePath and Circle, then painted with
// Fill or Stroke using the most recent SetFill or SetStroke. Painting keeps
// the current path so a polygon can be filled and then outlined.
type Surface interface {
	Clear()
	BeginPath()
	MoveTo(x, y float64)
	LineTo(x, y float64)
	ClosePath()
	Circle(x, y, r float64)
	SetFill(color string, opacity float64)
	SetStroke(color string, width, opacity float64)
	Fill()
	Stroke()
}
