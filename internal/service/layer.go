package service

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	ErrLayerNotFound  = errors.New("layer not found")
	ErrLayerExists    = errors.New("layer already exists")
	ErrInvalidLayerID = errors.New("invalid layer id")
)

// LayerService stores the styling configurations of the vector layers in
// the archives, in <data>/layers.json. Each configuration names the
// archive it reads from by file name.
type LayerService struct {
	dataDir string

	mu     sync.RWMutex
	layers map[string]LayerConfig
}

// NewLayerService loads the configurations saved under dataDir. A missing
// or unreadable file starts empty.
func NewLayerService(dataDir string) *LayerService {
	s := &LayerService{
		dataDir: dataDir,
		layers:  make(map[string]LayerConfig),
	}
	s.load()
	return s
}

// ForArchive returns the configurations reading from the named archive,
// ordered by ID. The .pmtiles extension is optional.
func (s *LayerService) ForArchive(archive string) []LayerConfig {
	file, err := ArchiveFile(archive)
	if err != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []LayerConfig
	for _, l := range s.layers {
		if l.File == file {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b LayerConfig) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *LayerService) List() map[string]LayerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.layers)
}

func (s *LayerService) Get(id string) (LayerConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.layers[id]
	return l, ok
}

// Create stores a new configuration. An empty ID is derived from the
// name.
func (s *LayerService) Create(l LayerConfig) (LayerConfig, error) {
	if l.ID == "" {
		l.ID = layerID(l.Name)
	}
	l, err := normalize(l)
	if err != nil {
		return LayerConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.layers[l.ID]; ok {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrLayerExists, l.ID)
	}
	s.layers[l.ID] = l
	if err := s.save(); err != nil {
		delete(s.layers, l.ID)
		return LayerConfig{}, err
	}
	return l, nil
}

// Update replaces the configuration stored under id.
func (s *LayerService) Update(id string, l LayerConfig) (LayerConfig, error) {
	l.ID = id
	l, err := normalize(l)
	if err != nil {
		return LayerConfig{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.layers[id]
	if !ok {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	s.layers[id] = l
	if err := s.save(); err != nil {
		s.layers[id] = prev
		return LayerConfig{}, err
	}
	return l, nil
}

func (s *LayerService) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.layers[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrLayerNotFound, id)
	}
	delete(s.layers, id)
	if err := s.save(); err != nil {
		s.layers[id] = prev
		return err
	}
	return nil
}

// normalize checks the ID and rewrites File to the archive's file name.
func normalize(l LayerConfig) (LayerConfig, error) {
	if !validID(l.ID) {
		return LayerConfig{}, fmt.Errorf("%w: %q", ErrInvalidLayerID, l.ID)
	}
	file, err := ArchiveFile(l.File)
	if err != nil {
		return LayerConfig{}, err
	}
	l.File = file
	return l, nil
}

func (s *LayerService) path() string {
	return filepath.Join(s.dataDir, "layers.json")
}

func (s *LayerService) load() {
	data, err := os.ReadFile(s.path())
	if err != nil {
		return
	}
	var layers map[string]LayerConfig
	if err := json.Unmarshal(data, &layers); err != nil {
		log.WithField("file", s.path()).WithError(err).Warn("ignoring invalid layer configurations")
		return
	}
	for id, l := range layers {
		l.ID = id
		l, err := normalize(l)
		if err != nil {
			log.WithField("layer", id).WithError(err).Warn("skipping layer configuration")
			continue
		}
		s.layers[id] = l
	}
}

// save writes the configurations through a temporary file so a failed
// write leaves the previous file intact. Callers hold mu.
func (s *LayerService) save() error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s.layers, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dataDir, "layers-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path())
}

// validID accepts IDs that are safe as a URL path segment.
func validID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// layerID lowercases name, turns spaces into underscores and drops
// everything but ASCII letters, digits and underscores.
func layerID(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + 'a' - 'A'
		case r == ' ':
			return '_'
		}
		return -1
	}, name)
}
