package vtclient

import (
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/geom"
	"github.com/joeblew999/plat-vtile/internal/style"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// TileConsumer receives decoded tile layers and answers hit tests for the
// tiles it holds. *Layer is the implementation used by Source.
type TileConsumer interface {
	Ingest(vl *vtile.Layer, ctx TileContext)
	RedrawTile(key TileKey)
	HitTest(key TileKey, local orb.Point, tolerance float64) *Feature
}

var _ TileConsumer = (*Layer)(nil)

// Layer owns the features of one named vector-tile layer and the tiles
// they are drawn into.
type Layer struct {
	Name string

	host   Host
	source *Source
	opts   Options

	features map[string]*Feature
	tiles    map[TileKey]*tileEntry

	styleData    any
	hasStyleData bool

	visible bool
	opacity float64
}

// tileEntry is one slot of the layer's tile arena.
type tileEntry struct {
	ctx      TileContext
	raw      *vtile.Layer
	features []*Feature
	index    *rtreego.Rtree
	dirty    bool
}

// NewLayer returns an empty layer drawing into host. opts is completed with
// defaults.
func NewLayer(name string, host Host, opts Options) *Layer {
	return &Layer{
		Name:     name,
		host:     host,
		opts:     opts.withDefaults(),
		features: make(map[string]*Feature),
		tiles:    make(map[TileKey]*tileEntry),
		visible:  true,
		opacity:  1,
	}
}

// Feature returns the feature registered under id.
func (l *Layer) Feature(id string) (*Feature, bool) {
	f, ok := l.features[id]
	return f, ok
}

// Len returns the number of registered features.
func (l *Layer) Len() int { return len(l.features) }

// TileFeatures returns the draw list of a tile in ingest order.
func (l *Layer) TileFeatures(key TileKey) []*Feature {
	e := l.tiles[key]
	if e == nil {
		return nil
	}
	return slices.Clone(e.features)
}

// Tiles returns the keys of the tiles the layer holds, sorted.
func (l *Layer) Tiles() []TileKey {
	keys := make([]TileKey, 0, len(l.tiles))
	for k := range l.tiles {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Visible reports whether the layer is shown on the host.
func (l *Layer) Visible() bool { return l.visible }

// Opacity returns the layer opacity.
func (l *Layer) Opacity() float64 { return l.opacity }

// Ingest merges the features of a decoded tile layer into the registry and
// replaces the tile's draw list in one step, then redraws the tile.
func (l *Layer) Ingest(vl *vtile.Layer, ctx TileContext) {
	key := ctx.Key()
	list := make([]*Feature, 0, vl.Len())
	seen := make(map[*Feature]bool, vl.Len())

	for i := 0; i < vl.Len(); i++ {
		vf, err := vl.Feature(i)
		if err != nil {
			log.WithFields(log.Fields{"layer": l.Name, "tile": key}).WithError(err).Warn("dropping feature")
			continue
		}
		if l.opts.Filter != nil && !l.opts.Filter(vf) {
			continue
		}

		id := l.opts.IDFunc(vf, i)
		f, ok := l.features[id]
		if !ok {
			f = newFeature(id, vf, l, l.opts.Style(vf, l.styleData))
			l.features[id] = f
		}
		f.AddTileFeature(vf, ctx)
		if !seen[f] {
			seen[f] = true
			list = append(list, f)
		}
	}
	if l.opts.Ordering != nil {
		slices.SortStableFunc(list, l.opts.Ordering)
	}

	e := l.tiles[key]
	if e == nil {
		e = &tileEntry{}
		l.tiles[key] = e
	}
	for _, f := range e.features {
		if !seen[f] {
			f.removeTile(key)
		}
	}
	e.ctx, e.raw = ctx, vl
	e.features = list
	l.RedrawTile(key)
}

// RedrawTile clears the tile's surface and draws unselected features, then
// selected ones on top. Without a surface the tile is marked dirty and
// drawn by SurfaceReady.
func (l *Layer) RedrawTile(key TileKey) {
	e := l.tiles[key]
	if e == nil {
		return
	}
	s := l.host.Surface(l.Name, e.ctx.Tile)
	if s == nil {
		e.dirty = true
		return
	}
	e.dirty = false
	s.Clear()

	idx := rtreego.NewTree(2, 4, 16)
	draw := func(f *Feature) {
		if err := f.Draw(key, s); err != nil {
			log.WithFields(log.Fields{"layer": l.Name, "tile": key, "feature": f.ID}).WithError(err).Warn("skipping feature")
			return
		}
		if p := f.pieces[key]; p != nil && len(p.paths) > 0 {
			idx.Insert(&indexed{f: f, rect: rectOf(p.bound)})
		}
	}
	for _, f := range e.features {
		if !f.selected {
			draw(f)
		}
	}
	for _, f := range e.features {
		if f.selected {
			draw(f)
		}
	}
	e.index = idx
}

// SetStyle replaces the style function and re-ingests every cached tile.
func (l *Layer) SetStyle(fn style.Func) {
	if fn == nil {
		fn = style.DefaultFunc
	}
	l.opts.Style = fn
	l.reingest()
}

// SetFilter replaces the feature filter and re-ingests every cached tile.
// A nil filter accepts everything.
func (l *Layer) SetFilter(fn func(*vtile.Feature) bool) {
	l.opts.Filter = fn
	l.reingest()
}

// SetOrdering replaces the draw order of each tile's features and
// re-ingests. A nil ordering keeps tile order.
func (l *Layer) SetOrdering(fn func(a, b *Feature) int) {
	l.opts.Ordering = fn
	l.reingest()
}

// configure takes the style, filter and ordering of o and re-ingests once.
func (l *Layer) configure(o Options) {
	l.opts.Style, l.opts.Filter, l.opts.Ordering = o.Style, o.Filter, o.Ordering
	if l.opts.Style == nil {
		l.opts.Style = style.DefaultFunc
	}
	l.reingest()
}

// SetStyleData hands data to the style function and re-ingests. Labels
// wait for style data when AwaitStyleData is set.
func (l *Layer) SetStyleData(data any) {
	l.styleData, l.hasStyleData = data, true
	l.reingest()
}

// reingest drops the registry and rebuilds it from the decoded layers of
// the cached tiles. Nothing is fetched. Selected features are released
// with a deselect event since their replacements start unselected.
func (l *Layer) reingest() {
	for _, f := range l.features {
		if !f.selected {
			continue
		}
		f.selected = false
		if l.source != nil {
			l.source.featureSelected(f, false)
		}
	}
	clear(l.features)
	for _, key := range l.Tiles() {
		e := l.tiles[key]
		e.features = nil
		if e.raw != nil {
			l.Ingest(e.raw, e.ctx)
		}
	}
}

// prune drops the tiles keep rejects, and every label.
func (l *Layer) prune(keep func(TileKey) bool) {
	for key := range l.tiles {
		if !keep(key) {
			delete(l.tiles, key)
		}
	}
	for _, f := range l.features {
		f.label = nil
		for key := range f.pieces {
			if !keep(key) {
				f.removeTile(key)
			}
		}
	}
}

func (l *Layer) featureSelected(f *Feature, selected bool) {
	if l.source != nil {
		l.source.featureSelected(f, selected)
	}
}

func (l *Layer) attachLabel(f *Feature, vt *vtile.Feature, ctx TileContext) {
	lbl := f.Style.Label()
	if lbl == nil {
		return
	}
	if l.opts.AwaitStyleData && !l.hasStyleData {
		return
	}
	text := lbl.TextFor(vt)
	if text == "" {
		return
	}
	rings, err := vt.LoadGeometry()
	if err != nil || len(rings) == 0 || len(rings[0]) == 0 {
		return
	}
	size := ctx.Size
	if size <= 0 {
		size = DefaultTileSize
	}
	local := geom.Div(rings[0][0], float64(vt.Extent())/float64(size))
	world := geom.Add(tileOrigin(ctx.Tile, size), local)
	f.label = &Label{
		Layer:     l.Name,
		FeatureID: f.ID,
		Text:      text,
		Color:     lbl.Color,
		Position:  l.opts.Projection.Unproject(world, ctx.Tile.Z),
		Selected:  f.selected,
	}
}

// labels returns a copy of every attached label.
func (l *Layer) labels() []Label {
	var out []Label
	for _, f := range l.features {
		if f.label != nil {
			out = append(out, *f.label)
		}
	}
	return out
}
