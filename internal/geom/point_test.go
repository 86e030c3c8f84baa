package geom

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
)

func TestRingContains(t *testing.T) {
	square := orb.Ring{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}, {-1, -1}}
	if !RingContains(square, orb.Point{0, 0}) {
		t.Fatal("origin should be inside the unit square")
	}

	away := orb.Ring{{2, 2}, {3, 2}, {3, 3}, {2, 3}, {2, 3}}
	if RingContains(away, orb.Point{0, 0}) {
		t.Fatal("origin should be outside the distant square")
	}

	if RingContains(orb.Ring{{0, 0}, {1, 1}}, orb.Point{0, 0}) {
		t.Fatal("degenerate ring should contain nothing")
	}
}

func TestSegmentDistance(t *testing.T) {
	tests := []struct {
		name string
		p    orb.Point
		want float64
	}{
		{"perpendicular", orb.Point{0, 5}, 5},
		{"middle", orb.Point{5, -3}, 3},
		{"past end", orb.Point{13, 4}, 5},
		{"on segment", orb.Point{7, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SegmentDistance(tt.p, orb.Point{0, 0}, orb.Point{10, 0})
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestPathDistance(t *testing.T) {
	path := []orb.Point{{0, 0}, {10, 0}, {10, 10}}
	if got := PathDistance(orb.Point{12, 5}, path); math.Abs(got-2) > 1e-9 {
		t.Fatalf("distance=%v, want 2", got)
	}
	if got := PathDistance(orb.Point{3, 4}, path[:1]); math.Abs(got-5) > 1e-9 {
		t.Fatalf("distance=%v, want 5", got)
	}
	if got := PathDistance(orb.Point{}, nil); !math.IsInf(got, 1) {
		t.Fatalf("distance=%v, want +Inf", got)
	}
}

func TestCircleContains(t *testing.T) {
	if !CircleContains(orb.Point{10, 10}, 5, orb.Point{13, 14}) {
		t.Fatal("point on the circle should be contained")
	}
	if CircleContains(orb.Point{10, 10}, 5, orb.Point{14, 14}) {
		t.Fatal("point outside the circle should not be contained")
	}
}

func TestSignedArea(t *testing.T) {
	// clockwise on a y-down screen
	cw := orb.Ring{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}}
	if got := SignedArea(cw); got != 100 {
		t.Fatalf("area=%v, want 100", got)
	}
	ccw := orb.Ring{{0, 0}, {0, 10}, {10, 10}, {10, 0}, {0, 0}}
	if got := SignedArea(ccw); got != -100 {
		t.Fatalf("area=%v, want -100", got)
	}
}

func TestPointOps(t *testing.T) {
	p := Div(Add(orb.Point{4, 6}, Scale(orb.Point{1, 1}, 4)), 2)
	if p != (orb.Point{4, 5}) {
		t.Fatalf("p=%v, want [4 5]", p)
	}
	if d := Dist(orb.Point{0, 0}, Sub(orb.Point{5, 5}, orb.Point{2, 1})); d != 5 {
		t.Fatalf("dist=%v, want 5", d)
	}
	if r := Round(orb.Point{1.4, 1.6}); r != (orb.Point{1, 2}) {
		t.Fatalf("round=%v, want [1 2]", r)
	}
}
