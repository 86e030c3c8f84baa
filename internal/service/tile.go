package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/pmtiles"
)

// ErrInvalidArchiveName rejects names that would escape the tiles directory.
var ErrInvalidArchiveName = errors.New("invalid archive name")

// ArchiveFile validates an archive name and returns its file name under
// the tiles directory, adding the .pmtiles extension when missing.
func ArchiveFile(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidArchiveName, name)
	}
	if filepath.Ext(name) != ".pmtiles" {
		name += ".pmtiles"
	}
	return name, nil
}

// TileService manages the PMTiles archives under <data>/tiles. Opened
// archives are kept open until Close.
type TileService struct {
	tilesDir string

	mu       sync.Mutex
	archives map[string]*pmtiles.Archive
}

// NewTileService creates a new tile service.
func NewTileService(dataDir string) *TileService {
	return &TileService{
		tilesDir: filepath.Join(dataDir, "tiles"),
		archives: make(map[string]*pmtiles.Archive),
	}
}

// List returns all available PMTiles files.
func (s *TileService) List() ([]TileFile, error) {
	entries, err := os.ReadDir(s.tilesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TileFile{}, nil
		}
		return nil, err
	}

	files := []TileFile{}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".pmtiles" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		tf := TileFile{
			Name: entry.Name(),
			Size: formatSize(info.Size()),
		}
		if a, err := s.Open(entry.Name()); err != nil {
			log.WithField("archive", entry.Name()).WithError(err).Warn("unreadable archive")
		} else {
			h := a.Header()
			tf.TileType = h.TileType.String()
			tf.MinZoom, tf.MaxZoom = int(h.MinZoom), int(h.MaxZoom)
		}
		files = append(files, tf)
	}
	return files, nil
}

// Open returns the archive called name, opening it on first use.
func (s *TileService) Open(name string) (*pmtiles.Archive, error) {
	name, err := ArchiveFile(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.archives[name]; ok {
		return a, nil
	}
	a, err := pmtiles.Open(filepath.Join(s.tilesDir, name))
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"archive": name, "maxZoom": a.Header().MaxZoom}).Debug("opened archive")
	s.archives[name] = a
	return a, nil
}

// Close closes every opened archive.
func (s *TileService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for name, a := range s.archives {
		errs = append(errs, a.Close())
		delete(s.archives, name)
	}
	return errors.Join(errs...)
}

// TilesDir returns the path to the tiles directory.
func (s *TileService) TilesDir() string {
	return s.tilesDir
}

// formatSize returns a human-readable file size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
