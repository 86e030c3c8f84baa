package vtclient

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/canvas"
)

// Host is the map the client renders into.
type Host interface {
	// Zoom is the map's current zoom level.
	Zoom() maptile.Zoom

	// Surface returns the drawing surface for a layer's tile, or nil if the
	// surface is not available yet. A host that returns nil must later
	// call Source.SurfaceReady for that layer and tile.
	Surface(layer string, t maptile.Tile) canvas.Surface

	SetLayerVisible(layer string, visible bool)
	SetLayerOpacity(layer string, opacity float64)
}

// Projection converts between lon/lat and world pixel coordinates at a
// zoom level.
type Projection interface {
	Project(ll orb.Point, z maptile.Zoom) orb.Point
	Unproject(px orb.Point, z maptile.Zoom) orb.Point
}

// Mercator is the spherical web-mercator projection with square tiles of
// TileSize pixels.
type Mercator struct {
	TileSize int
}

func (m Mercator) Project(ll orb.Point, z maptile.Zoom) orb.Point {
	f := maptile.Fraction(ll, z)
	return orb.Point{f[0] * float64(m.TileSize), f[1] * float64(m.TileSize)}
}

func (m Mercator) Unproject(px orb.Point, z maptile.Zoom) orb.Point {
	world := float64(m.TileSize) * math.Exp2(float64(z))
	lon := px[0]/world*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*px[1]/world))) * 180 / math.Pi
	return orb.Point{lon, lat}
}

// tileAt returns the tile containing the world pixel px and the pixel's
// offset inside it.
func tileAt(px orb.Point, z maptile.Zoom, size int) (maptile.Tile, orb.Point) {
	s := float64(size)
	last := math.Exp2(float64(z)) - 1
	tx := math.Max(0, math.Min(last, math.Floor(px[0]/s)))
	ty := math.Max(0, math.Min(last, math.Floor(px[1]/s)))
	t := maptile.New(uint32(tx), uint32(ty), z)
	return t, orb.Point{px[0] - tx*s, px[1] - ty*s}
}

// tileOrigin is the world pixel of t's top-left corner.
func tileOrigin(t maptile.Tile, size int) orb.Point {
	return orb.Point{float64(t.X) * float64(size), float64(t.Y) * float64(size)}
}
