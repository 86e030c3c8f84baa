package vtclient

import (
	"cmp"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-vtile/internal/style"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// Defaults for Options.
const (
	DefaultTileSize       = 256
	DefaultIDProperty     = "id"
	DefaultClickTolerance = 3
	DefaultConcurrency    = 8
)

// IDFunc returns the application id of the index-th feature of a decoded
// tile layer. Features sharing an id across tiles are merged.
type IDFunc func(f *vtile.Feature, index int) string

// Options configure a Source and the layers it creates. The serialisable
// part can be loaded from YAML; the function fields are set in code.
type Options struct {
	TileSize        int      `yaml:"tileSize"`
	VisibleLayers   []string `yaml:"visibleLayers"`
	ClickableLayers []string `yaml:"clickableLayers"`
	IDProperty      string   `yaml:"idProperty"`
	MutexSelection  bool     `yaml:"mutexSelection"`
	ClickTolerance  float64  `yaml:"clickTolerance"`
	Concurrency     int      `yaml:"concurrency"`
	ZIndexOrdering  bool     `yaml:"zIndexOrdering"`
	AwaitStyleData  bool     `yaml:"awaitStyleData"`

	// URL is a tile URL template with {z}, {x} and {y} placeholders, used
	// by NewHTTPFetcher.
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	CacheSize int64             `yaml:"cacheSize"`

	IDFunc      IDFunc                               `yaml:"-"`
	Filter      func(*vtile.Feature) bool            `yaml:"-"`
	Ordering    func(a, b *Feature) int              `yaml:"-"`
	Style       style.Func                           `yaml:"-"`
	Projection  Projection                           `yaml:"-"`
	LayerStyle  map[string]style.Func                `yaml:"-"`
	LayerFilter map[string]func(*vtile.Feature) bool `yaml:"-"`

	LayerOrdering map[string]func(a, b *Feature) int `yaml:"-"`
}

func (o Options) withDefaults() Options {
	if o.TileSize <= 0 {
		o.TileSize = DefaultTileSize
	}
	if o.IDProperty == "" {
		o.IDProperty = DefaultIDProperty
	}
	if o.ClickTolerance <= 0 {
		o.ClickTolerance = DefaultClickTolerance
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.IDFunc == nil {
		o.IDFunc = PropertyID(o.IDProperty)
	}
	if o.Ordering == nil && o.ZIndexOrdering {
		o.Ordering = ByZIndex
	}
	if o.Style == nil {
		o.Style = style.DefaultFunc
	}
	if o.Projection == nil {
		o.Projection = Mercator{TileSize: o.TileSize}
	}
	return o
}

// forLayer returns the options a layer called name is created with.
func (o Options) forLayer(name string) Options {
	if fn, ok := o.LayerStyle[name]; ok && fn != nil {
		o.Style = fn
	}
	if fn, ok := o.LayerFilter[name]; ok {
		o.Filter = fn
	}
	if fn, ok := o.LayerOrdering[name]; ok {
		o.Ordering = fn
	}
	return o
}

// LoadOptions reads Options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return o, nil
}

// PropertyID uses the named property as the id, falling back to the
// feature's position in its tile layer.
func PropertyID(property string) IDFunc {
	return func(f *vtile.Feature, index int) string {
		if v, ok := f.Properties[property]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return strconv.Itoa(index)
	}
}

// ByZIndex orders features by their numeric zIndex property, highest
// first. Features without one sort as zero.
func ByZIndex(a, b *Feature) int {
	return cmp.Compare(zIndex(b), zIndex(a))
}

func zIndex(f *Feature) float64 {
	switch v := f.Properties["zIndex"].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		n, _ := strconv.ParseFloat(v, 64)
		return n
	}
	return 0
}
