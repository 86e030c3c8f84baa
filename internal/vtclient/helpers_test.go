package vtclient

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/canvas"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// testHost hands out recording surfaces.
type testHost struct {
	mu       sync.Mutex
	zoom     maptile.Zoom
	withhold bool
	surfaces map[string]*canvas.Recorder
	visible  map[string]bool
	opacity  map[string]float64
}

func newTestHost(z maptile.Zoom) *testHost {
	return &testHost{
		zoom:     z,
		surfaces: make(map[string]*canvas.Recorder),
		visible:  make(map[string]bool),
		opacity:  make(map[string]float64),
	}
}

func (h *testHost) Zoom() maptile.Zoom {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.zoom
}

func (h *testHost) setZoom(z maptile.Zoom) {
	h.mu.Lock()
	h.zoom = z
	h.mu.Unlock()
}

func (h *testHost) Surface(layer string, t maptile.Tile) canvas.Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.withhold {
		return nil
	}
	return h.recorder(layer, t)
}

// recorder returns the surface for a layer's tile, creating it. Callers
// hold mu or own the host.
func (h *testHost) recorder(layer string, t maptile.Tile) *canvas.Recorder {
	k := layer + "@" + KeyOf(t).String()
	r, ok := h.surfaces[k]
	if !ok {
		r = &canvas.Recorder{}
		h.surfaces[k] = r
	}
	return r
}

func (h *testHost) surface(layer string, t maptile.Tile) *canvas.Recorder {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recorder(layer, t)
}

func (h *testHost) SetLayerVisible(layer string, visible bool) {
	h.mu.Lock()
	h.visible[layer] = visible
	h.mu.Unlock()
}

func (h *testHost) SetLayerOpacity(layer string, opacity float64) {
	h.mu.Lock()
	h.opacity[layer] = opacity
	h.mu.Unlock()
}

// pixelExtent makes tile coordinates equal pixels at the default tile size.
const pixelExtent = DefaultTileSize

func feature(id string, g orb.Geometry, props ...any) *geojson.Feature {
	f := geojson.NewFeature(g)
	if id != "" {
		f.Properties["id"] = id
	}
	for i := 0; i+1 < len(props); i += 2 {
		f.Properties[props[i].(string)] = props[i+1]
	}
	return f
}

func square(x0, y0, x1, y1 float64) orb.Polygon {
	return orb.Polygon{{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0}}}
}

// encodeTile encodes named layers of features in pixel coordinates.
func encodeTile(t *testing.T, layers map[string][]*geojson.Feature) []byte {
	t.Helper()
	var ls mvt.Layers
	for name, feats := range layers {
		fc := geojson.NewFeatureCollection()
		fc.Features = feats
		l := mvt.NewLayer(name, fc)
		l.Extent = pixelExtent
		ls = append(ls, l)
	}
	data, err := mvt.Marshal(ls)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func decodeLayer(t *testing.T, name string, feats ...*geojson.Feature) *vtile.Layer {
	t.Helper()
	tile, err := vtile.Decode(encodeTile(t, map[string][]*geojson.Feature{name: feats}))
	if err != nil {
		t.Fatal(err)
	}
	l, ok := tile.Layers[name]
	if !ok {
		t.Fatalf("layer %s missing from fixture", name)
	}
	return l
}

// tileFetcher serves fixed tiles and counts calls.
type tileFetcher struct {
	tiles  map[TileKey][]byte
	errs   map[TileKey]error
	before func(maptile.Tile)
	calls  atomic.Int32
}

func (f *tileFetcher) Fetch(_ context.Context, t maptile.Tile) ([]byte, error) {
	f.calls.Add(1)
	if f.before != nil {
		f.before(t)
	}
	if err := f.errs[KeyOf(t)]; err != nil {
		return nil, err
	}
	return f.tiles[KeyOf(t)], nil
}

func ids(fs []*Feature) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.ID
	}
	return out
}

func equalStrings(a, b []string) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}
