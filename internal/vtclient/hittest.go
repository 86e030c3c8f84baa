package vtclient

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-vtile/internal/geom"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// indexed is a drawn feature in a tile's R-tree.
type indexed struct {
	f    *Feature
	rect rtreego.Rect
}

func (i *indexed) Bounds() rtreego.Rect { return i.rect }

// minExtent keeps degenerate bounds valid for the R-tree.
const minExtent = 1e-6

func rectOf(b orb.Bound) rtreego.Rect {
	w := math.Max(b.Max[0]-b.Min[0], minExtent)
	h := math.Max(b.Max[1]-b.Min[1], minExtent)
	r, _ := rtreego.NewRect(rtreego.Point{b.Min[0], b.Min[1]}, []float64{w, h})
	return r
}

// candidates returns the features whose drawn bounds come within tolerance
// of local, or nil if the tile has no index.
func (e *tileEntry) candidates(local orb.Point, tolerance float64) map[*Feature]bool {
	if e.index == nil {
		return nil
	}
	q := orb.Bound{Min: local, Max: local}.Pad(tolerance)
	found := e.index.SearchIntersect(rectOf(q))
	set := make(map[*Feature]bool, len(found))
	for _, s := range found {
		set[s.(*indexed).f] = true
	}
	return set
}

// HitTest returns the feature of the tile best matching a click at local
// tile pixels. Points and polygons that contain the click win immediately;
// otherwise the nearest line within half its width plus tolerance wins,
// the earliest feature keeping ties.
func (l *Layer) HitTest(key TileKey, local orb.Point, tolerance float64) *Feature {
	e := l.tiles[key]
	if e == nil {
		return nil
	}
	cands := e.candidates(local, tolerance)

	var best *Feature
	bestDist := math.Inf(1)
	for _, f := range e.features {
		if cands != nil && !cands[f] {
			continue
		}
		p := f.pieces[key]
		if p == nil || !p.drawn {
			continue
		}
		d, exact, ok := p.distance(f.Type, local, tolerance)
		if !ok {
			continue
		}
		if exact {
			return f
		}
		if d < bestDist {
			best, bestDist = f, d
		}
	}
	return best
}

// distance measures a click against the drawn piece. exact is set for
// containment hits, which need no comparison.
func (p *piece) distance(t vtile.GeomType, local orb.Point, tolerance float64) (d float64, exact, ok bool) {
	switch t {
	case vtile.Point:
		for _, path := range p.paths {
			if len(path) > 0 && geom.CircleContains(path[0], p.radius, local) {
				return 0, true, true
			}
		}
	case vtile.LineString:
		d = math.Inf(1)
		for _, path := range p.paths {
			d = math.Min(d, geom.PathDistance(local, path))
		}
		if d < p.width/2+tolerance {
			return d, false, true
		}
	case vtile.Polygon:
		for _, path := range p.paths {
			if geom.RingContains(orb.Ring(path), local) {
				return 0, true, true
			}
		}
	}
	return 0, false, false
}
