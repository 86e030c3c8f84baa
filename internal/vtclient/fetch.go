package vtclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/singleflight"
)

// Fetcher returns the raw bytes of a tile. A nil slice with a nil error is
// an empty tile.
type Fetcher interface {
	Fetch(ctx context.Context, t maptile.Tile) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, t maptile.Tile) ([]byte, error)

func (fn FetcherFunc) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	return fn(ctx, t)
}

const (
	defaultCacheSize = 1024
	cacheTTL         = 10 * time.Minute
)

// HTTPFetcher GETs tiles from a URL template. Responses are cached in
// memory and concurrent requests for the same tile share one round trip.
type HTTPFetcher struct {
	// URL contains {z}, {x} and {y} placeholders.
	URL     string
	Headers map[string]string
	Client  *http.Client

	cache    *ccache.Cache[[]byte]
	inflight singleflight.Group
}

// NewHTTPFetcher returns a fetcher caching up to cacheSize tiles. Headers
// are sent unchanged with every request.
func NewHTTPFetcher(url string, headers map[string]string, cacheSize int64) *HTTPFetcher {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	return &HTTPFetcher{
		URL:     url,
		Headers: headers,
		Client:  &http.Client{Timeout: 30 * time.Second},
		cache:   ccache.New(ccache.Configure[[]byte]().MaxSize(cacheSize)),
	}
}

// TileURL expands the template for t.
func (h *HTTPFetcher) TileURL(t maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(t.Z)),
		"{x}", strconv.FormatUint(uint64(t.X), 10),
		"{y}", strconv.FormatUint(uint64(t.Y), 10),
	).Replace(h.URL)
}

func (h *HTTPFetcher) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	u := h.TileURL(t)
	if item := h.cache.Get(u); item != nil && !item.Expired() {
		return item.Value(), nil
	}

	v, err, _ := h.inflight.Do(u, func() (any, error) {
		data, err := h.get(ctx, u)
		if err != nil {
			return nil, err
		}
		h.cache.Set(u, data, cacheTTL)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (h *HTTPFetcher) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetching %s: status %d", u, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u, err)
	}
	return Gunzip(data)
}

// Gunzip decompresses data if it starts with the gzip magic number and
// returns it unchanged otherwise.
func Gunzip(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip: %w", err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Close stops the cache's background worker.
func (h *HTTPFetcher) Close() {
	h.cache.Stop()
}
