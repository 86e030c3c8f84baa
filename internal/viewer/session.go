// Package viewer hosts a tile client on the server: it keeps per-tile
// raster surfaces for every vector layer, moves the view between zoom
// levels and composites tiles to PNG.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/canvas"
	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/style"
	"github.com/joeblew999/plat-vtile/internal/vtclient"
)

// MaxZoom bounds View.
const MaxZoom = 24

// ErrWrongZoom is returned when rendering a tile outside the view's zoom.
var ErrWrongZoom = errors.New("tile is not at the view zoom")

type surfaceKey struct {
	layer string
	tile  vtclient.TileKey
}

// Session is one map view over a tile source. It implements
// vtclient.Host; its own lock is never held while calling the source.
type Session struct {
	name   string
	source *vtclient.Source
	proj   vtclient.Mercator

	mu       sync.Mutex
	zoom     maptile.Zoom
	bound    orb.Bound
	surfaces map[surfaceKey]*canvas.Image
	hidden   map[string]bool
	opacity  map[string]float64

	// configured holds the layers whose default visibility was applied.
	configured map[string]bool
}

var _ vtclient.Host = (*Session)(nil)

// New returns a session reading tiles from fetcher. name identifies the
// session in events, usually the archive name.
func New(name string, fetcher vtclient.Fetcher, opts vtclient.Options) *Session {
	s := &Session{
		name:     name,
		surfaces: make(map[surfaceKey]*canvas.Image),
		hidden:   make(map[string]bool),
		opacity:  make(map[string]float64),

		configured: make(map[string]bool),
	}
	s.source = vtclient.NewSource(s, fetcher, opts)
	s.proj = vtclient.Mercator{TileSize: s.source.Options().TileSize}
	return s
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Source returns the tile client driving the session.
func (s *Session) Source() *vtclient.Source { return s.source }

// Publish forwards selection changes and finished batches to bus.
func (s *Session) Publish(bus *service.EventBus) {
	s.source.OnSelectionChange(func(ev vtclient.SelectionEvent) {
		action := "deselected"
		if ev.Selected {
			action = "selected"
		}
		bus.Publish(service.Event{
			Resource: service.ResourceSelection,
			Action:   action,
			ID:       ev.FeatureID,
			Archive:  s.name,
			Layer:    ev.Layer,
		})
	})
	s.source.OnTilesLoaded(func(ev vtclient.LoadedEvent) {
		bus.Publish(service.Event{
			Resource: service.ResourceTiles,
			Action:   "loaded",
			Archive:  s.name,
			Data: map[string]any{
				"requested": ev.Requested,
				"loaded":    ev.Loaded,
				"failed":    ev.Failed,
				"stale":     ev.Stale,
			},
		})
	})
}

func (s *Session) Zoom() maptile.Zoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

// Surface creates surfaces on demand, so it never returns nil.
func (s *Session) Surface(layer string, t maptile.Tile) canvas.Surface {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.image(layer, t)
}

// image finds or creates a surface. Callers hold mu.
func (s *Session) image(layer string, t maptile.Tile) *canvas.Image {
	k := surfaceKey{layer, vtclient.KeyOf(t)}
	img, ok := s.surfaces[k]
	if !ok {
		img = canvas.NewImage(s.proj.TileSize)
		s.surfaces[k] = img
	}
	return img
}

func (s *Session) SetLayerVisible(layer string, visible bool) {
	s.mu.Lock()
	s.hidden[layer] = !visible
	s.mu.Unlock()
}

func (s *Session) SetLayerOpacity(layer string, opacity float64) {
	s.mu.Lock()
	s.opacity[layer] = opacity
	s.mu.Unlock()
}

// View moves the map to zoom z over bound (lon/lat) and loads the tiles
// covering it. Changing zoom drops the surfaces and cached tiles of the
// previous zoom first.
func (s *Session) View(ctx context.Context, z maptile.Zoom, bound orb.Bound) ([]maptile.Tile, error) {
	if z > MaxZoom {
		return nil, fmt.Errorf("zoom %d above maximum %d", z, MaxZoom)
	}
	s.mu.Lock()
	changed := s.zoom != z
	s.zoom, s.bound = z, bound
	if changed {
		for k := range s.surfaces {
			if k.tile.Zoom() != z {
				delete(s.surfaces, k)
			}
		}
	}
	s.mu.Unlock()

	if changed {
		s.source.ZoomChanged()
	}
	tiles := TilesInBound(bound, z)
	log.WithFields(log.Fields{"session": s.name, "zoom": z, "tiles": len(tiles)}).Debug("loading view")
	return tiles, s.source.Load(ctx, tiles)
}

// Click hit tests a lon/lat at the current zoom and toggles the feature
// found, if any.
func (s *Session) Click(ll orb.Point) *vtclient.Feature {
	return s.source.HandleClick(ll)
}

// ApplyLayerConfigs styles and filters the vector layers named by cfgs.
// A config without a PMTilesLayer applies to the layer named by its ID.
// DefaultVisible is applied the first time a layer is configured only, so
// later restyles keep visibility changed at runtime.
func (s *Session) ApplyLayerConfigs(cfgs []service.LayerConfig) {
	for _, cfg := range cfgs {
		name := cfg.PMTilesLayer
		if name == "" {
			name = cfg.ID
		}
		c := vtclient.LayerConfig{
			Style:  style.FromLayerConfig(cfg),
			Filter: style.FilterFromLayerConfig(cfg),
		}
		if cfg.ZIndexOrdering {
			c.Ordering = vtclient.ByZIndex
		}
		s.source.Configure(name, c)

		s.mu.Lock()
		first := !s.configured[name]
		s.configured[name] = true
		s.mu.Unlock()
		if first {
			s.source.SetLayerVisible(name, cfg.DefaultVisible)
		}
	}
}

// RenderTile composites the visible layers of t, bottom layer first, and
// the labels falling inside it, then writes a PNG.
func (s *Session) RenderTile(t maptile.Tile, w io.Writer) error {
	layers := s.source.LayerNames()
	labels := s.source.Labels()

	if z := s.Zoom(); t.Z != z {
		return fmt.Errorf("%w: tile %d/%d/%d, view zoom %d", ErrWrongZoom, t.Z, t.X, t.Y, z)
	}
	out := canvas.NewImage(s.proj.TileSize)

	// The source draws into surfaces under its own lock.
	s.source.Update(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, name := range layers {
			if s.hidden[name] {
				continue
			}
			img, ok := s.surfaces[surfaceKey{name, vtclient.KeyOf(t)}]
			if !ok {
				continue
			}
			opacity, ok := s.opacity[name]
			if !ok {
				opacity = 1
			}
			out.Draw(img.Image(), opacity)
		}
	})

	origin := orb.Point{float64(t.X) * float64(s.proj.TileSize), float64(t.Y) * float64(s.proj.TileSize)}
	size := float64(s.proj.TileSize)
	for _, lbl := range labels {
		if s.isHidden(lbl.Layer) {
			continue
		}
		px := s.proj.Project(lbl.Position, t.Z)
		x, y := px[0]-origin[0], px[1]-origin[1]
		if x < 0 || y < 0 || x >= size || y >= size {
			continue
		}
		c := lbl.Color
		if c == "" {
			c = "#000000"
		}
		out.Text(lbl.Text, x, y, c)
	}
	return out.EncodePNG(w)
}

func (s *Session) isHidden(layer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hidden[layer]
}

// TilesInBound returns the tiles at zoom z intersecting a lon/lat bound.
func TilesInBound(b orb.Bound, z maptile.Zoom) []maptile.Tile {
	b = orb.Bound{
		Min: orb.Point{clamp(b.Min[0], -180, 180), clamp(b.Min[1], -85.05112878, 85.05112878)},
		Max: orb.Point{clamp(b.Max[0], -180, 180), clamp(b.Max[1], -85.05112878, 85.05112878)},
	}
	minTile := maptile.At(b.Min, z)
	maxTile := maptile.At(b.Max, z)

	minX, maxX := minTile.X, maxTile.X
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	minY, maxY := minTile.Y, maxTile.Y
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	last := uint32(1)<<z - 1
	maxX, maxY = min(maxX, last), min(maxY, last)

	var tiles []maptile.Tile
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			tiles = append(tiles, maptile.New(x, y, z))
		}
	}
	return tiles
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
