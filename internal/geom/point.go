// Package geom holds the small amount of 2D math the tile renderer and hit
// tester need, expressed on orb.Point.
package geom

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Add returns a+b.
func Add(a, b orb.Point) orb.Point {
	return orb.Point{a[0] + b[0], a[1] + b[1]}
}

// Sub returns a-b.
func Sub(a, b orb.Point) orb.Point {
	return orb.Point{a[0] - b[0], a[1] - b[1]}
}

// Scale multiplies both coordinates by k.
func Scale(p orb.Point, k float64) orb.Point {
	return orb.Point{p[0] * k, p[1] * k}
}

// Div divides both coordinates by d.
func Div(p orb.Point, d float64) orb.Point {
	return orb.Point{p[0] / d, p[1] / d}
}

// Round rounds both coordinates to the nearest integer.
func Round(p orb.Point) orb.Point {
	return orb.Point{math.Round(p[0]), math.Round(p[1])}
}

// Dist is the euclidean distance between a and b.
func Dist(a, b orb.Point) float64 {
	return planar.Distance(a, b)
}

// DistSq is the squared euclidean distance between a and b.
func DistSq(a, b orb.Point) float64 {
	return planar.DistanceSquared(a, b)
}

// SegmentDistance is the distance from p to the closest point of segment ab.
func SegmentDistance(p, a, b orb.Point) float64 {
	return planar.DistanceFromSegment(a, b, p)
}

// PathDistance is the minimum distance from p to any segment of path. A
// single point path degrades to point distance.
func PathDistance(p orb.Point, path []orb.Point) float64 {
	switch len(path) {
	case 0:
		return math.Inf(1)
	case 1:
		return Dist(p, path[0])
	}
	best := math.Inf(1)
	for i := 0; i+1 < len(path); i++ {
		if d := SegmentDistance(p, path[i], path[i+1]); d < best {
			best = d
		}
	}
	return best
}

// RingContains reports whether p lies inside ring using the odd-crossing
// rule. Points on the boundary count as inside.
func RingContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 3 {
		return false
	}
	return planar.RingContains(ring, p)
}

// CircleContains reports whether p lies within r of center.
func CircleContains(center orb.Point, r float64, p orb.Point) bool {
	return DistSq(center, p) <= r*r
}

// SignedArea is the shoelace area of ring in a y-down coordinate space.
// Positive rings are clockwise on screen.
func SignedArea(ring orb.Ring) float64 {
	var sum float64
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		sum += (ring[j][0] - ring[i][0]) * (ring[i][1] + ring[j][1])
	}
	return sum / 2
}
