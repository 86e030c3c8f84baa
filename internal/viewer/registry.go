package viewer

import (
	"path/filepath"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/vtclient"
)

// Registry keeps one session per archive, created on first use and
// styled from the stored layer configurations.
type Registry struct {
	tiles  *service.TileService
	layers *service.LayerService
	bus    *service.EventBus
	opts   vtclient.Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. layers and bus may be nil.
func NewRegistry(tiles *service.TileService, layers *service.LayerService, bus *service.EventBus, opts vtclient.Options) *Registry {
	return &Registry{
		tiles:    tiles,
		layers:   layers,
		bus:      bus,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session over the named archive, opening it if
// needed.
func (r *Registry) Session(archive string) (*Session, error) {
	a, err := r.tiles.Open(archive)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(a.Name())

	r.mu.Lock()
	s, ok := r.sessions[name]
	if !ok {
		s = New(name, a, r.opts)
		if r.bus != nil {
			s.Publish(r.bus)
		}
		r.sessions[name] = s
	}
	r.mu.Unlock()

	if !ok {
		log.WithField("archive", name).Info("viewer session created")
		r.restyle(s)
	}
	return s, nil
}

// Restyle re-applies the layer configurations of an archive to its open
// session, if any.
func (r *Registry) Restyle(archive string) {
	file, err := service.ArchiveFile(archive)
	if err != nil {
		return
	}
	r.mu.Lock()
	s, ok := r.sessions[file]
	r.mu.Unlock()
	if ok {
		r.restyle(s)
	}
}

func (r *Registry) restyle(s *Session) {
	if r.layers == nil {
		return
	}
	s.ApplyLayerConfigs(r.layers.ForArchive(s.Name()))
}

// Names returns the archives with an open session.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
