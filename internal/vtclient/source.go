// Package vtclient renders vector tiles into a host map and answers clicks
// on them.
//
// A Source fetches and decodes tiles and hands each decoded layer to the
// Layer of the same name. Layers merge tile pieces into application
// features, draw them onto the host's per-tile surfaces and hit test them.
// Everything that mutates layers and features runs under the source lock;
// only fetching and decoding happen concurrently.
package vtclient

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-vtile/internal/style"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// SelectionEvent reports a feature being selected or deselected.
type SelectionEvent struct {
	Layer     string
	FeatureID string
	Selected  bool
}

// LoadedEvent closes a Load batch.
type LoadedEvent struct {
	Requested int
	Loaded    int
	Failed    int
	Stale     int
}

// Source owns the layers of one tile source.
type Source struct {
	host    Host
	fetcher Fetcher
	opts    Options

	mu       sync.Mutex
	layers   map[string]*Layer
	order    []string
	selected *Feature
	nextID   uint64
	queue    []func()

	onSelect []func(SelectionEvent)
	onLoaded []func(LoadedEvent)
}

// NewSource returns a source rendering into host with tiles from fetcher.
func NewSource(host Host, fetcher Fetcher, opts Options) *Source {
	return &Source{
		host:    host,
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		layers:  make(map[string]*Layer),
	}
}

// Options returns the effective options.
func (s *Source) Options() Options { return s.opts }

// OnSelectionChange registers fn for selection changes. Callbacks run after
// the source lock is released.
func (s *Source) OnSelectionChange(fn func(SelectionEvent)) {
	s.mu.Lock()
	s.onSelect = append(s.onSelect, fn)
	s.mu.Unlock()
}

// OnTilesLoaded registers fn to run once at the end of every Load batch.
func (s *Source) OnTilesLoaded(fn func(LoadedEvent)) {
	s.mu.Lock()
	s.onLoaded = append(s.onLoaded, fn)
	s.mu.Unlock()
}

// unlock releases the lock, then runs the callbacks queued while holding it.
func (s *Source) unlock() {
	q := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, fn := range q {
		fn()
	}
}

// Update runs fn with the source locked, for calling Layer and Feature
// methods from outside source callbacks.
func (s *Source) Update(fn func()) {
	s.mu.Lock()
	defer s.unlock()
	fn()
}

// Layer returns the layer called name if it has been created.
func (s *Source) Layer(name string) (*Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[name]
	return l, ok
}

// LayerNames returns the created layers in creation order.
func (s *Source) LayerNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// layer finds or creates a layer. Callers hold mu.
func (s *Source) layer(name string) *Layer {
	if l, ok := s.layers[name]; ok {
		return l
	}
	l := NewLayer(name, s.host, s.opts.forLayer(name))
	l.source = s
	s.layers[name] = l
	s.order = append(s.order, name)
	return l
}

type batch struct {
	pending int
	event   LoadedEvent
}

// Load fetches tiles as one batch. Results for a zoom the host has left are
// discarded. Failed tiles are logged and count as done; the TilesLoaded
// callbacks run exactly once when the last tile of the batch completes.
func (s *Source) Load(ctx context.Context, tiles []maptile.Tile) error {
	if len(tiles) == 0 {
		return nil
	}
	b := &batch{pending: len(tiles), event: LoadedEvent{Requested: len(tiles)}}

	s.mu.Lock()
	reqs := make([]Request, len(tiles))
	for i, t := range tiles {
		s.nextID++
		reqs[i] = Request{Tile: t, ID: s.nextID}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, req := range reqs {
		g.Go(func() error {
			s.fetchTile(gctx, req, b)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *Source) fetchTile(ctx context.Context, req Request, b *batch) {
	var tile *vtile.Tile
	data, err := s.fetcher.Fetch(ctx, req.Tile)
	if err == nil && len(data) > 0 {
		tile, err = vtile.Decode(data)
	}

	s.mu.Lock()
	defer s.unlock()
	fields := log.Fields{"tile": KeyOf(req.Tile), "request": req.ID}

	switch {
	case err != nil:
		log.WithFields(fields).WithError(err).Warn("tile load failed")
		b.event.Failed++
	case s.host.Zoom() != req.Tile.Z:
		log.WithFields(fields).Debug("discarding stale tile")
		b.event.Stale++
	default:
		b.event.Loaded++
		if tile != nil {
			for _, skipped := range tile.Skipped {
				log.WithFields(fields).WithError(skipped).Warn("skipped layer")
			}
			s.checkVectorTileLayers(tile, TileContext{Tile: req.Tile, Size: s.opts.TileSize})
		}
	}

	b.pending--
	if b.pending == 0 {
		ev := b.event
		for _, fn := range s.onLoaded {
			s.queue = append(s.queue, func() { fn(ev) })
		}
	}
}

// checkVectorTileLayers ingests the allowed layers of a decoded tile.
func (s *Source) checkVectorTileLayers(t *vtile.Tile, ctx TileContext) {
	names := s.opts.VisibleLayers
	if len(names) == 0 {
		names = t.Names()
	}
	for _, name := range names {
		vl, ok := t.Layers[name]
		if !ok {
			continue
		}
		s.layer(name).Ingest(vl, ctx)
	}
}

// IngestTile decodes data as the tile t and ingests it immediately,
// bypassing the fetcher. The stale-zoom check still applies.
func (s *Source) IngestTile(data []byte, t maptile.Tile) error {
	tile, err := vtile.Decode(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.unlock()
	if s.host.Zoom() != t.Z {
		return nil
	}
	s.checkVectorTileLayers(tile, TileContext{Tile: t, Size: s.opts.TileSize})
	return nil
}

// HandleClick hit tests the clickable layers at a lon/lat and applies the
// selection policy to the hit, which it returns.
func (s *Source) HandleClick(ll orb.Point) *Feature {
	z := s.host.Zoom()
	px := s.opts.Projection.Project(ll, z)
	t, local := tileAt(px, z, s.opts.TileSize)
	return s.HitTest(t, local)
}

// HitTest hit tests a click at local pixels of tile t, topmost clickable
// layer first, and toggles the hit feature. With mutex selection the
// previously selected feature is deselected.
func (s *Source) HitTest(t maptile.Tile, local orb.Point) *Feature {
	s.mu.Lock()
	defer s.unlock()

	key := KeyOf(t)
	for _, l := range s.clickable() {
		if f := l.HitTest(key, local, s.opts.ClickTolerance); f != nil {
			f.Toggle()
			return f
		}
	}
	return nil
}

// clickable returns the visible layers that accept clicks, topmost first.
// Callers hold mu.
func (s *Source) clickable() []*Layer {
	var names []string
	if len(s.opts.ClickableLayers) > 0 {
		names = s.opts.ClickableLayers
	} else {
		names = slices.Clone(s.order)
		slices.Reverse(names)
	}
	out := make([]*Layer, 0, len(names))
	for _, name := range names {
		if l, ok := s.layers[name]; ok && l.visible {
			out = append(out, l)
		}
	}
	return out
}

// Selected returns the mutex-selected feature, if any.
func (s *Source) Selected() *Feature {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// featureSelected keeps the mutex slot and queues the event. Callers hold
// mu.
func (s *Source) featureSelected(f *Feature, selected bool) {
	if s.opts.MutexSelection {
		if selected {
			prev := s.selected
			s.selected = f
			if prev != nil && prev != f {
				prev.Deselect()
			}
		} else if s.selected == f {
			s.selected = nil
		}
	}
	ev := SelectionEvent{Layer: f.layer.Name, FeatureID: f.ID, Selected: selected}
	for _, fn := range s.onSelect {
		s.queue = append(s.queue, func() { fn(ev) })
	}
}

// SetStyle sets the style function of a layer, re-ingesting it if it
// exists already.
func (s *Source) SetStyle(layer string, fn style.Func) {
	s.mu.Lock()
	defer s.unlock()
	if s.opts.LayerStyle == nil {
		s.opts.LayerStyle = make(map[string]style.Func)
	}
	s.opts.LayerStyle[layer] = fn
	if l, ok := s.layers[layer]; ok {
		l.SetStyle(fn)
	}
}

// SetFilter sets the feature filter of a layer, re-ingesting it if it
// exists already.
func (s *Source) SetFilter(layer string, fn func(*vtile.Feature) bool) {
	s.mu.Lock()
	defer s.unlock()
	if s.opts.LayerFilter == nil {
		s.opts.LayerFilter = make(map[string]func(*vtile.Feature) bool)
	}
	s.opts.LayerFilter[layer] = fn
	if l, ok := s.layers[layer]; ok {
		l.SetFilter(fn)
	}
}

// SetOrdering sets the draw order of a layer's features, re-ingesting it
// if it exists already.
func (s *Source) SetOrdering(layer string, fn func(a, b *Feature) int) {
	s.mu.Lock()
	defer s.unlock()
	if s.opts.LayerOrdering == nil {
		s.opts.LayerOrdering = make(map[string]func(a, b *Feature) int)
	}
	s.opts.LayerOrdering[layer] = fn
	if l, ok := s.layers[layer]; ok {
		l.SetOrdering(fn)
	}
}

// LayerConfig sets a layer's style, filter and draw order together. Nil
// fields fall back to the source-wide Options.
type LayerConfig struct {
	Style    style.Func
	Filter   func(*vtile.Feature) bool
	Ordering func(a, b *Feature) int
}

// Configure replaces a layer's style, filter and ordering, re-ingesting it
// once if it exists already.
func (s *Source) Configure(layer string, c LayerConfig) {
	s.mu.Lock()
	defer s.unlock()
	if s.opts.LayerStyle == nil {
		s.opts.LayerStyle = make(map[string]style.Func)
	}
	if s.opts.LayerFilter == nil {
		s.opts.LayerFilter = make(map[string]func(*vtile.Feature) bool)
	}
	if s.opts.LayerOrdering == nil {
		s.opts.LayerOrdering = make(map[string]func(a, b *Feature) int)
	}
	delete(s.opts.LayerStyle, layer)
	delete(s.opts.LayerFilter, layer)
	delete(s.opts.LayerOrdering, layer)
	if c.Style != nil {
		s.opts.LayerStyle[layer] = c.Style
	}
	if c.Filter != nil {
		s.opts.LayerFilter[layer] = c.Filter
	}
	if c.Ordering != nil {
		s.opts.LayerOrdering[layer] = c.Ordering
	}
	if l, ok := s.layers[layer]; ok {
		l.configure(s.opts.forLayer(layer))
	}
}

// SetStyleData passes data to every layer's style function.
func (s *Source) SetStyleData(data any) {
	s.mu.Lock()
	defer s.unlock()
	for _, name := range s.order {
		s.layers[name].SetStyleData(data)
	}
}

// SetLayerVisible shows or hides a layer on the host. The layer's features
// are kept.
func (s *Source) SetLayerVisible(layer string, visible bool) {
	s.mu.Lock()
	if l, ok := s.layers[layer]; ok {
		l.visible = visible
	}
	s.unlock()
	s.host.SetLayerVisible(layer, visible)
}

// SetLayerOpacity changes a layer's opacity on the host.
func (s *Source) SetLayerOpacity(layer string, opacity float64) {
	s.mu.Lock()
	if l, ok := s.layers[layer]; ok {
		l.opacity = opacity
	}
	s.unlock()
	s.host.SetLayerOpacity(layer, opacity)
}

// ZoomChanged drops every label and the tiles of zoom levels other than
// the host's current one. Hosts call it after changing zoom.
func (s *Source) ZoomChanged() {
	s.mu.Lock()
	defer s.unlock()
	z := s.host.Zoom()
	for _, l := range s.layers {
		l.prune(func(k TileKey) bool { return k.Zoom() == z })
	}
}

// SurfaceReady draws a tile that was skipped for lack of a surface.
func (s *Source) SurfaceReady(layer string, t maptile.Tile) {
	s.mu.Lock()
	defer s.unlock()
	l, ok := s.layers[layer]
	if !ok {
		return
	}
	if e := l.tiles[KeyOf(t)]; e != nil && e.dirty {
		l.RedrawTile(KeyOf(t))
	}
}

// Labels returns a snapshot of every label, ordered by layer creation.
func (s *Source) Labels() []Label {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Label
	for _, name := range s.order {
		ls := s.layers[name].labels()
		slices.SortFunc(ls, func(a, b Label) int { return strings.Compare(a.FeatureID, b.FeatureID) })
		out = append(out, ls...)
	}
	return out
}
