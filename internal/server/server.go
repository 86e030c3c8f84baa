package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/api"
	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/viewer"
	"github.com/joeblew999/plat-vtile/internal/vtclient"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string

	// ClientConfig is an optional YAML file with the vector tile client
	// options used by viewer sessions.
	ClientConfig string
}

// Server is the vector tile HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
}

// New creates a new server.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-vtile API", api.Version)
	humaConfig.Info.Description = "Vector tile API for PMTiles archives: tiles, decoded features, layer styling and a server-side viewer."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	var opts vtclient.Options
	if cfg.ClientConfig != "" {
		o, err := vtclient.LoadOptions(cfg.ClientConfig)
		if err != nil {
			log.WithError(err).WithField("file", cfg.ClientConfig).Warn("using default client options")
		} else {
			opts = o
		}
	}

	bus := service.NewEventBus()
	layers := service.NewLayerService(cfg.DataDir)
	tiles := service.NewTileService(cfg.DataDir)
	services := &api.Services{
		Layer:  layers,
		Tile:   tiles,
		Viewer: viewer.NewRegistry(tiles, layers, bus, opts),
		Bus:    bus,
	}

	s := &Server{
		config:   cfg,
		mux:      mux,
		humaAPI:  humaAPI,
		services: services,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services returns the services behind the API.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close closes open archives.
func (s *Server) Close() error {
	return s.services.Tile.Close()
}

func (s *Server) routes() {
	api.RegisterRoutes(s.humaAPI, s.services, s.config.DataDir)

	// Raw archives, for browser-side PMTiles readers using range requests.
	tilesDir := filepath.Join(s.config.DataDir, "tiles")
	s.mux.Handle("/tiles/", http.StripPrefix("/tiles/", s.handleTiles(tilesDir)))

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-vtile",
		"status":  "running",
	})
}

func (s *Server) handleTiles(tilesDir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		http.FileServer(http.Dir(tilesDir)).ServeHTTP(w, r)
	})
}
