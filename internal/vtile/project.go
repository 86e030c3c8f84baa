package vtile

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/project"
)

// LonLat returns the feature as a GeoJSON feature in WGS84, placing its
// tile-local coordinates inside tile t.
func (f *Feature) LonLat(t maptile.Tile) (*geojson.Feature, error) {
	gf, err := f.GeoJSON()
	if err != nil {
		return nil, err
	}
	extent := float64(f.Extent())
	n := math.Exp2(float64(t.Z))
	gf.Geometry = project.Geometry(orb.Clone(gf.Geometry), func(p orb.Point) orb.Point {
		fx := (float64(t.X) + p[0]/extent) / n
		fy := (float64(t.Y) + p[1]/extent) / n
		lat := math.Atan(math.Sinh(math.Pi*(1-2*fy))) * 180 / math.Pi
		return orb.Point{fx*360 - 180, lat}
	})
	return gf, nil
}
