package vtclient

import (
	"fmt"

	"github.com/paulmach/orb/maptile"
)

// TileKey packs z/x/y into one integer: 6 bits of zoom, 29 bits each of x
// and y. It identifies a tile in every per-tile table of the client.
type TileKey uint64

const (
	keyCoordBits = 29
	keyCoordMask = 1<<keyCoordBits - 1
)

// KeyOf returns the key of t.
func KeyOf(t maptile.Tile) TileKey {
	return TileKey(uint64(t.Z)<<(2*keyCoordBits) | uint64(t.X&keyCoordMask)<<keyCoordBits | uint64(t.Y&keyCoordMask))
}

// Tile unpacks the key.
func (k TileKey) Tile() maptile.Tile {
	return maptile.New(
		uint32(k>>keyCoordBits)&keyCoordMask,
		uint32(k)&keyCoordMask,
		k.Zoom(),
	)
}

// Zoom returns the zoom component of the key.
func (k TileKey) Zoom() maptile.Zoom {
	return maptile.Zoom(k >> (2 * keyCoordBits))
}

func (k TileKey) String() string {
	t := k.Tile()
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// TileContext is what a layer needs to know about the tile it is ingesting.
type TileContext struct {
	Tile maptile.Tile

	// Size is the rendered tile edge in pixels.
	Size int
}

// Key returns the context's tile key.
func (c TileContext) Key() TileKey { return KeyOf(c.Tile) }

// Request is one tile fetch. ID increases monotonically per source.
type Request struct {
	Tile maptile.Tile
	ID   uint64
}
