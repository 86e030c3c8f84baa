package vtile

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-vtile/internal/pbf"
)

func buildingsLayer() testLayer {
	return testLayer{
		name:   "buildings",
		extent: 512,
		keys:   []string{"id", "name", "height", "tall"},
		values: [][]byte{stringValue("b-1"), stringValue("Town Hall"), doubleValue(12.5), boolValue(true)},
		features: []testFeature{
			{id: 7, typ: Polygon, tags: []uint64{0, 0, 1, 1, 2, 2, 3, 3}, geometry: squareGeometry()},
			{typ: Point, tags: []uint64{1, 1}, geometry: []uint64{command(1, 1), zz(3), zz(4)}},
		},
	}
}

func TestDecodeLayers(t *testing.T) {
	data := encodeTile(buildingsLayer(), testLayer{name: "empty"})
	tile, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(tile.Layers) != 1 {
		t.Fatalf("layers=%v, want only buildings", tile.Names())
	}
	l := tile.Layers["buildings"]
	if l == nil {
		t.Fatal("missing buildings layer")
	}
	if l.Extent != 512 || l.Version != 2 || l.Len() != 2 {
		t.Fatalf("extent=%d version=%d len=%d, want 512 2 2", l.Extent, l.Version, l.Len())
	}
}

func TestDecodeDefaultExtent(t *testing.T) {
	layer := buildingsLayer()
	layer.extent = 0
	tile, err := Decode(encodeTile(layer))
	if err != nil {
		t.Fatal(err)
	}
	if got := tile.Layers["buildings"].Extent; got != DefaultExtent {
		t.Fatalf("extent=%d, want %d", got, DefaultExtent)
	}
}

func TestFeatureProperties(t *testing.T) {
	tile, err := Decode(encodeTile(buildingsLayer()))
	if err != nil {
		t.Fatal(err)
	}
	f, err := tile.Layers["buildings"].Feature(0)
	if err != nil {
		t.Fatal(err)
	}
	if !f.HasID || f.ID != 7 {
		t.Fatalf("id=%d has=%v, want 7", f.ID, f.HasID)
	}
	if f.Type != Polygon {
		t.Fatalf("type=%s, want Polygon", f.Type)
	}
	want := map[string]any{"id": "b-1", "name": "Town Hall", "height": 12.5, "tall": true}
	for k, v := range want {
		if f.Properties[k] != v {
			t.Errorf("property %s=%v, want %v", k, f.Properties[k], v)
		}
	}

	g, err := tile.Layers["buildings"].Feature(1)
	if err != nil {
		t.Fatal(err)
	}
	if g.HasID {
		t.Fatal("second feature should have no id")
	}
	if g.Properties["name"] != "Town Hall" {
		t.Fatalf("name=%v, want Town Hall", g.Properties["name"])
	}
}

func TestFeatureValueIndexOutOfRange(t *testing.T) {
	layer := buildingsLayer()
	layer.features = []testFeature{{typ: Point, tags: []uint64{1, 99, 42, 0, 2}, geometry: []uint64{command(1, 1), 0, 0}}}
	tile, err := Decode(encodeTile(layer))
	if err != nil {
		t.Fatal(err)
	}
	f, err := tile.Layers["buildings"].Feature(0)
	if err != nil {
		t.Fatal(err)
	}
	v, ok := f.Properties["name"]
	if !ok || v != nil {
		t.Fatalf("name=%v present=%v, want nil value", v, ok)
	}
	if len(f.Properties) != 1 {
		t.Fatalf("properties=%v, want only name", f.Properties)
	}
}

func TestValuePriority(t *testing.T) {
	tests := []struct {
		name  string
		value []byte
		want  any
	}{
		{"string", stringValue("x"), "x"},
		{"float", msg(nil).fixed32(2, 0x3fc00000), 1.5},
		{"double", doubleValue(2.5), 2.5},
		{"int", msg(nil).varint(4, 9), int64(9)},
		{"uint", msg(nil).varint(5, 10), uint64(10)},
		{"sint", msg(nil).varint(6, zz(-3)), int64(-3)},
		{"bool", boolValue(false), false},
		{"first wins", msg(nil).varint(5, 1).str(1, "later"), uint64(1)},
		{"unknown skipped", msg(nil).varint(12, 4).str(1, "kept"), "kept"},
		{"empty", nil, nil},
		{"wrong wire type", msg(nil).varint(1, 5), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer := testLayer{
				name:     "v",
				keys:     []string{"k"},
				values:   [][]byte{tt.value},
				features: []testFeature{{typ: Point, tags: []uint64{0, 0}, geometry: []uint64{command(1, 1), 0, 0}}},
			}
			tile, err := Decode(encodeTile(layer))
			if err != nil {
				t.Fatal(err)
			}
			if got := tile.Layers["v"].Values[0]; got != tt.want {
				t.Errorf("expected %#v, got %#v", tt.want, got)
			}
		})
	}
}

func TestDecodeSkipsLayerWithUnsupportedWireType(t *testing.T) {
	bad := append(buildingsLayer().encode(), msg(nil).tag(9, 3)...)
	good := buildingsLayer()
	good.name = "roads"
	data := msg(nil).bytes(3, bad)
	data = append(data, encodeTile(good)...)

	tile, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tile.Layers["roads"]; !ok {
		t.Fatalf("layers=%v, want roads to survive", tile.Names())
	}
	if _, ok := tile.Layers["buildings"]; ok {
		t.Fatal("corrupt layer should be dropped")
	}
	if len(tile.Skipped) != 1 || !errors.Is(tile.Skipped[0], pbf.ErrUnsupportedWireType) {
		t.Fatalf("skipped=%v", tile.Skipped)
	}
}

func TestDecodeMalformedVarintAbortsTile(t *testing.T) {
	data := encodeTile(buildingsLayer())
	data = append(data, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	if _, err := Decode(data); !errors.Is(err, pbf.ErrMalformedVarint) {
		t.Fatalf("err=%v, want ErrMalformedVarint", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := encodeTile(buildingsLayer())
	if _, err := Decode(data[:len(data)-3]); !errors.Is(err, pbf.ErrTruncated) {
		t.Fatalf("err=%v, want ErrTruncated", err)
	}
}

func TestFeatureOutOfRange(t *testing.T) {
	tile, err := Decode(encodeTile(buildingsLayer()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tile.Layers["buildings"].Feature(5); err == nil {
		t.Fatal("expected error for feature index out of range")
	}
}

// TestDecodeOrbEncodedTile checks interop with an independent encoder.
func TestDecodeOrbEncodedTile(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	road := geojson.NewFeature(orb.LineString{{10, 10}, {100, 10}, {100, 200}})
	road.Properties["class"] = "primary"
	fc.Append(road)
	park := geojson.NewFeature(orb.Polygon{{{0, 0}, {50, 0}, {50, 50}, {0, 50}, {0, 0}}})
	park.Properties["class"] = "park"
	fc.Append(park)

	data, err := mvt.Marshal(mvt.Layers{mvt.NewLayer("landuse", fc)})
	if err != nil {
		t.Fatal(err)
	}

	tile, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	l := tile.Layers["landuse"]
	if l == nil || l.Len() != 2 {
		t.Fatalf("layers=%v, want landuse with 2 features", tile.Names())
	}
	if l.Extent != DefaultExtent {
		t.Fatalf("extent=%d, want %d", l.Extent, DefaultExtent)
	}

	seen := map[GeomType]bool{}
	for i := 0; i < l.Len(); i++ {
		f, err := l.Feature(i)
		if err != nil {
			t.Fatal(err)
		}
		seen[f.Type] = true
		rings, err := f.LoadGeometry()
		if err != nil {
			t.Fatal(err)
		}
		switch f.Type {
		case LineString:
			if f.Properties["class"] != "primary" {
				t.Errorf("class=%v, want primary", f.Properties["class"])
			}
			if len(rings) != 1 || len(rings[0]) != 3 {
				t.Errorf("rings=%v, want one 3-point ring", rings)
			}
		case Polygon:
			if len(rings) != 1 || rings[0][0] != rings[0][len(rings[0])-1] {
				t.Errorf("rings=%v, want one closed ring", rings)
			}
		}
	}
	if !seen[LineString] || !seen[Polygon] {
		t.Fatalf("types=%v, want LineString and Polygon", seen)
	}
}
