package vtclient

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/canvas"
	"github.com/joeblew999/plat-vtile/internal/geom"
	"github.com/joeblew999/plat-vtile/internal/style"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// Feature is one application feature: every piece of a logical feature,
// merged across the tiles that carry it by its application id. It keeps
// pieces for a single zoom level only.
//
// A Feature belongs to its Layer and is not safe for concurrent use; use
// Source.Update to call its methods from outside a source callback.
type Feature struct {
	ID         string
	Type       vtile.GeomType
	Properties map[string]any
	Style      style.Style

	layer    *Layer
	selected bool
	zoom     maptile.Zoom
	hasZoom  bool
	pieces   map[TileKey]*piece
	label    *Label
}

// piece is the feature's geometry in one tile plus what was drawn for it.
type piece struct {
	vt      *vtile.Feature
	divisor float64

	// paths are the drawn rings in tile pixels; radius is the point radius
	// and width the line width used for the last draw.
	paths  [][]orb.Point
	radius float64
	width  float64
	bound  orb.Bound
	drawn  bool
}

func newFeature(id string, vt *vtile.Feature, l *Layer, s style.Style) *Feature {
	return &Feature{
		ID:         id,
		Type:       vt.Type,
		Properties: vt.Properties,
		Style:      s,
		layer:      l,
		pieces:     make(map[TileKey]*piece),
	}
}

// Layer returns the owning layer.
func (f *Feature) Layer() *Layer { return f.layer }

// Selected reports whether the feature is selected.
func (f *Feature) Selected() bool { return f.selected }

// Zoom returns the zoom level of the cached pieces.
func (f *Feature) Zoom() maptile.Zoom { return f.zoom }

// Label returns the attached label, or nil.
func (f *Feature) Label() *Label { return f.label }

// Tiles returns the keys of the tiles holding a piece of the feature.
func (f *Feature) Tiles() []TileKey {
	keys := make([]TileKey, 0, len(f.pieces))
	for k := range f.pieces {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// AddTileFeature stores vt as the feature's piece of ctx's tile. Pieces
// cached for any other zoom are evicted first.
func (f *Feature) AddTileFeature(vt *vtile.Feature, ctx TileContext) {
	if f.hasZoom && f.zoom != ctx.Tile.Z {
		f.clearTileFeatures()
	}
	f.zoom, f.hasZoom = ctx.Tile.Z, true

	size := ctx.Size
	if size <= 0 {
		size = DefaultTileSize
	}
	f.pieces[ctx.Key()] = &piece{
		vt:      vt,
		divisor: float64(vt.Extent()) / float64(size),
	}
	if f.label == nil && f.layer != nil {
		f.layer.attachLabel(f, vt, ctx)
	}
}

func (f *Feature) clearTileFeatures() {
	clear(f.pieces)
}

func (f *Feature) removeTile(key TileKey) {
	delete(f.pieces, key)
}

// Draw paints the feature's piece of the tile onto s and records the drawn
// paths for hit testing. A feature with no piece in the tile draws nothing.
func (f *Feature) Draw(key TileKey, s canvas.Surface) error {
	p := f.pieces[key]
	if p == nil {
		return nil
	}
	rings, err := p.vt.LoadGeometry()
	if err != nil {
		return err
	}
	st := f.Style.For(f.selected)

	paths := make([][]orb.Point, 0, len(rings))
	switch f.Type {
	case vtile.Point:
		r := st.PointRadius(int(f.zoom))
		for _, ring := range rings {
			for _, pt := range ring {
				c := geom.Div(pt, p.divisor)
				s.BeginPath()
				s.Circle(c[0], c[1], r)
				s.SetFill(st.Color, st.Opacity)
				s.Fill()
				if st.Outline != nil {
					s.SetStroke(st.Outline.Color, st.Outline.Width, 1)
					s.Stroke()
				}
				paths = append(paths, []orb.Point{c})
			}
		}
		p.radius = r

	case vtile.LineString:
		s.BeginPath()
		for _, ring := range rings {
			path := tracePath(s, ring, p.divisor)
			paths = append(paths, path)
		}
		s.SetStroke(st.Color, st.Width, st.Opacity)
		s.Stroke()
		p.width = st.Width

	case vtile.Polygon:
		s.BeginPath()
		for _, ring := range rings {
			path := tracePath(s, ring, p.divisor)
			s.ClosePath()
			paths = append(paths, path)
		}
		s.SetFill(st.Color, st.Opacity)
		s.Fill()
		if st.Outline != nil {
			s.SetStroke(st.Outline.Color, st.Outline.Width, 1)
			s.Stroke()
		}

	default:
		return fmt.Errorf("feature %s of type %s: %w", f.ID, f.Type, vtile.ErrUnsupportedGeometryType)
	}

	p.paths = paths
	p.bound = pathBound(paths).Pad(p.radius + p.width/2)
	p.drawn = true
	return nil
}

// tracePath adds ring to the current path in pixels and returns the points.
func tracePath(s canvas.Surface, ring orb.Ring, divisor float64) []orb.Point {
	path := make([]orb.Point, len(ring))
	for i, pt := range ring {
		path[i] = geom.Div(pt, divisor)
		if i == 0 {
			s.MoveTo(path[i][0], path[i][1])
		} else {
			s.LineTo(path[i][0], path[i][1])
		}
	}
	return path
}

func pathBound(paths [][]orb.Point) orb.Bound {
	var b orb.Bound
	first := true
	for _, path := range paths {
		for _, pt := range path {
			if first {
				b = orb.Bound{Min: pt, Max: pt}
				first = false
				continue
			}
			b = b.Extend(pt)
		}
	}
	return b
}

// Select marks the feature selected and redraws its tiles.
func (f *Feature) Select() { f.setSelected(true) }

// Deselect clears the selection and redraws the feature's tiles.
func (f *Feature) Deselect() { f.setSelected(false) }

// Toggle flips the selection.
func (f *Feature) Toggle() { f.setSelected(!f.selected) }

func (f *Feature) setSelected(v bool) {
	if f.selected == v {
		return
	}
	f.selected = v
	if f.label != nil {
		f.label.Selected = v
	}
	if f.layer == nil {
		return
	}
	f.layer.featureSelected(f, v)
	for _, key := range f.Tiles() {
		if key.Zoom() == f.zoom {
			f.layer.RedrawTile(key)
		}
	}
}

// Label is a text label placed on the map for a feature.
type Label struct {
	Layer     string `json:"layer"`
	FeatureID string `json:"feature_id"`
	Text      string `json:"text"`
	Color     string `json:"color"`

	// Position is the label anchor as lon/lat.
	Position orb.Point `json:"position"`
	Selected bool      `json:"selected"`
}
