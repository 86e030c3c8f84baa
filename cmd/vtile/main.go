package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-vtile/internal/api"
	"github.com/joeblew999/plat-vtile/internal/pmtiles"
	"github.com/joeblew999/plat-vtile/internal/server"
	"github.com/joeblew999/plat-vtile/internal/vtclient"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// Options defines all CLI flags and env vars for the server.
// Flags: --host, --port, --data-dir, --client-config, --log-level
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, ...
type Options struct {
	Host         string `doc:"Host to bind to" default:"0.0.0.0"`
	Port         int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir      string `doc:"Directory holding tiles/ and layers.json" default:".data"`
	ClientConfig string `doc:"YAML file with vector tile client options"`
	LogLevel     string `doc:"Log level (debug, info, warn, error)" default:"info"`
}

func setupLogging(opts *Options) {
	lvl, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		log.WithField("level", opts.LogLevel).Warn("unknown log level, using info")
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func newServer(opts *Options) *server.Server {
	setupLogging(opts)
	return server.New(server.Config{
		Host:         opts.Host,
		Port:         fmt.Sprintf("%d", opts.Port),
		DataDir:      opts.DataDir,
		ClientConfig: opts.ClientConfig,
	})
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		srv := newServer(opts)
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf("%s:%d", opts.Host, opts.Port),
			Handler: srv,
		}

		hooks.OnStart(func() {
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-vtile API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Println()
			fmt.Printf("  Tiles:   %s/api/v1/tiles\n", baseURL)
			fmt.Printf("  Events:  %s/api/v1/viewer/events\n", baseURL)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.WithError(err).Fatal("server error")
			}
		})

		hooks.OnStop(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(ctx); err != nil {
				log.WithError(err).Warn("shutdown")
			}
			if err := srv.Close(); err != nil {
				log.WithError(err).Warn("closing archives")
			}
		})
	})

	cli.Root().Use = "vtile"
	cli.Root().Short = "Vector tile server and viewer for PMTiles archives"
	cli.Root().Version = api.Version

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			srv := newServer(opts)
			defer srv.Close()
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")

			var output []byte
			var err error
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error marshaling spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// inspect subcommand: dump an archive's header, metadata and one tile
	inspectCmd := &cobra.Command{
		Use:   "inspect <archive.pmtiles>",
		Short: "Print an archive's header, metadata and the layers of one tile as YAML",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts)
			tileFlag, _ := cmd.Flags().GetString("tile")
			if err := inspect(cmd.Context(), args[0], tileFlag); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	inspectCmd.Flags().StringP("tile", "t", "", "Tile to decode as z/x/y (default: the archive's center tile)")
	cli.Root().AddCommand(inspectCmd)

	// fetch subcommand: fetch one tile from a URL template
	fetchCmd := &cobra.Command{
		Use:   "fetch <z/x/y>",
		Short: "Fetch one tile from a {z}/{x}/{y} URL template and print its layers as YAML",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			setupLogging(opts)
			url, _ := cmd.Flags().GetString("url")
			if err := fetch(cmd.Context(), url, args[0]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	fetchCmd.Flags().StringP("url", "u", "", "Tile URL template")
	fetchCmd.MarkFlagRequired("url")
	cli.Root().AddCommand(fetchCmd)

	cli.Run()
}

type layerSummary struct {
	Features int            `yaml:"features"`
	Extent   int            `yaml:"extent"`
	Types    map[string]int `yaml:"types"`
}

type tileSummary struct {
	Tile    string                  `yaml:"tile"`
	Bytes   int                     `yaml:"bytes"`
	Layers  map[string]layerSummary `yaml:"layers"`
	Skipped []string                `yaml:"skipped,omitempty"`
}

func inspect(ctx context.Context, path, tileFlag string) error {
	a, err := pmtiles.Open(path)
	if err != nil {
		return err
	}
	defer a.Close()

	md, err := a.Metadata()
	if err != nil {
		return err
	}
	h := a.Header()

	t := maptile.At(orb.Point{float64(h.CenterLonE7) / 1e7, float64(h.CenterLatE7) / 1e7}, maptile.Zoom(h.CenterZoom))
	if tileFlag != "" {
		if t, err = parseTile(tileFlag); err != nil {
			return err
		}
	}
	data, err := a.Fetch(ctx, t)
	if err != nil {
		return err
	}

	out := struct {
		Header   pmtiles.HeaderV3 `yaml:"header"`
		Metadata map[string]any   `yaml:"metadata"`
		Tile     *tileSummary     `yaml:"tile,omitempty"`
	}{Header: h, Metadata: md}
	if data != nil {
		if out.Tile, err = summarize(t, data); err != nil {
			return err
		}
	}
	return yaml.NewEncoder(os.Stdout).Encode(out)
}

func fetch(ctx context.Context, url, tileArg string) error {
	t, err := parseTile(tileArg)
	if err != nil {
		return err
	}
	f := vtclient.NewHTTPFetcher(url, nil, 1)
	defer f.Close()

	log.WithField("url", f.TileURL(t)).Debug("fetching tile")
	data, err := f.Fetch(ctx, t)
	if err != nil {
		return err
	}
	if data == nil {
		return fmt.Errorf("tile %s is empty", vtclient.KeyOf(t))
	}
	s, err := summarize(t, data)
	if err != nil {
		return err
	}
	return yaml.NewEncoder(os.Stdout).Encode(s)
}

func summarize(t maptile.Tile, data []byte) (*tileSummary, error) {
	tile, err := vtile.Decode(data)
	if err != nil {
		return nil, err
	}
	s := &tileSummary{
		Tile:   vtclient.KeyOf(t).String(),
		Bytes:  len(data),
		Layers: make(map[string]layerSummary),
	}
	for _, err := range tile.Skipped {
		s.Skipped = append(s.Skipped, err.Error())
	}
	for _, name := range tile.Names() {
		l := tile.Layers[name]
		ls := layerSummary{Features: l.Len(), Extent: l.Extent, Types: make(map[string]int)}
		for i := 0; i < l.Len(); i++ {
			f, err := l.Feature(i)
			if err != nil {
				ls.Types["invalid"]++
				continue
			}
			ls.Types[f.Type.String()]++
		}
		s.Layers[name] = ls
	}
	return s, nil
}

func parseTile(s string) (maptile.Tile, error) {
	var z, x, y uint32
	if _, err := fmt.Sscanf(s, "%d/%d/%d", &z, &x, &y); err != nil {
		return maptile.Tile{}, fmt.Errorf("tile %q: want z/x/y", s)
	}
	if z > 24 || x >= 1<<z || y >= 1<<z {
		return maptile.Tile{}, fmt.Errorf("tile %q outside its zoom level", s)
	}
	return maptile.New(x, y, maptile.Zoom(z)), nil
}
