package vtile

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
)

func singleFeatureTile(t *testing.T, f testFeature) *Feature {
	t.Helper()
	tile, err := Decode(encodeTile(testLayer{name: "l", features: []testFeature{f}}))
	if err != nil {
		t.Fatal(err)
	}
	feat, err := tile.Layers["l"].Feature(0)
	if err != nil {
		t.Fatal(err)
	}
	return feat
}

func TestLoadGeometrySquare(t *testing.T) {
	f := singleFeatureTile(t, testFeature{typ: Polygon, geometry: squareGeometry()})
	rings, err := f.LoadGeometry()
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Ring{{5, 5}, {10, 5}, {10, 10}, {5, 5}}
	if len(rings) != 1 || !rings[0].Equal(want) {
		t.Fatalf("rings=%v, want [%v]", rings, want)
	}
}

func TestLoadGeometryMultiPoint(t *testing.T) {
	f := singleFeatureTile(t, testFeature{typ: Point, geometry: []uint64{
		command(1, 2), zz(5), zz(7), zz(3), zz(2),
	}})
	rings, err := f.LoadGeometry()
	if err != nil {
		t.Fatal(err)
	}
	if len(rings) != 2 || rings[0][0] != (orb.Point{5, 7}) || rings[1][0] != (orb.Point{8, 9}) {
		t.Fatalf("rings=%v", rings)
	}
	g, err := f.Geometry()
	if err != nil {
		t.Fatal(err)
	}
	if mp, ok := g.(orb.MultiPoint); !ok || len(mp) != 2 {
		t.Fatalf("geometry=%#v, want 2-point MultiPoint", g)
	}
}

func TestLoadGeometryMultiLine(t *testing.T) {
	f := singleFeatureTile(t, testFeature{typ: LineString, geometry: []uint64{
		command(1, 1), zz(0), zz(0),
		command(2, 1), zz(10), zz(0),
		command(1, 1), zz(0), zz(10),
		command(2, 1), zz(-10), zz(0),
	}})
	g, err := f.Geometry()
	if err != nil {
		t.Fatal(err)
	}
	mls, ok := g.(orb.MultiLineString)
	if !ok || len(mls) != 2 {
		t.Fatalf("geometry=%#v, want 2 lines", g)
	}
	if mls[1][1] != (orb.Point{0, 10}) {
		t.Fatalf("second line=%v, want to end at (0,10)", mls[1])
	}
}

func TestGeometryPolygonWithHole(t *testing.T) {
	// outer clockwise 0..20, inner counter-clockwise 5..15
	f := singleFeatureTile(t, testFeature{typ: Polygon, geometry: []uint64{
		command(1, 1), zz(0), zz(0),
		command(2, 3), zz(20), zz(0), zz(0), zz(20), zz(-20), zz(0),
		command(7, 1),
		command(1, 1), zz(5), zz(5),
		command(2, 3), zz(0), zz(10), zz(10), zz(0), zz(0), zz(-10),
		command(7, 1),
	}})
	g, err := f.Geometry()
	if err != nil {
		t.Fatal(err)
	}
	poly, ok := g.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry=%#v, want Polygon", g)
	}
	if len(poly) != 2 {
		t.Fatalf("polygon has %d rings, want outer and hole", len(poly))
	}
}

func TestBBox(t *testing.T) {
	f := singleFeatureTile(t, testFeature{typ: Polygon, geometry: squareGeometry()})
	b, err := f.BBox()
	if err != nil {
		t.Fatal(err)
	}
	want := orb.Bound{Min: orb.Point{5, 5}, Max: orb.Point{10, 10}}
	if !b.Equal(want) {
		t.Fatalf("bbox=%v, want %v", b, want)
	}
}

func TestUnknownCommandFailsOnlyThatFeature(t *testing.T) {
	layer := testLayer{
		name: "l",
		features: []testFeature{
			{typ: LineString, geometry: []uint64{command(1, 1), 0, 0, command(4, 1), 0, 0}},
			{typ: Point, geometry: []uint64{command(1, 1), zz(1), zz(1)}},
		},
	}
	tile, err := Decode(encodeTile(layer))
	if err != nil {
		t.Fatal(err)
	}
	l := tile.Layers["l"]

	bad, err := l.Feature(0)
	if err != nil {
		t.Fatal(err)
	}
	_, err = bad.LoadGeometry()
	var uce *UnknownCommandError
	if !errors.As(err, &uce) || uce.Command != 4 {
		t.Fatalf("err=%v, want unknown command 4", err)
	}
	if !errors.Is(err, ErrUnknownGeometryCommand) {
		t.Fatal("expected errors.Is to match ErrUnknownGeometryCommand")
	}

	good, err := l.Feature(1)
	if err != nil {
		t.Fatal(err)
	}
	if rings, err := good.LoadGeometry(); err != nil || len(rings) != 1 {
		t.Fatalf("rings=%v err=%v", rings, err)
	}
}

func TestUnknownGeometryType(t *testing.T) {
	f := singleFeatureTile(t, testFeature{typ: Unknown, geometry: []uint64{command(1, 1), 0, 0}})
	if _, err := f.Geometry(); !errors.Is(err, ErrUnsupportedGeometryType) {
		t.Fatalf("err=%v, want ErrUnsupportedGeometryType", err)
	}
}

func TestGeoJSONCarriesProperties(t *testing.T) {
	tile, err := Decode(encodeTile(buildingsLayer()))
	if err != nil {
		t.Fatal(err)
	}
	f, err := tile.Layers["buildings"].Feature(0)
	if err != nil {
		t.Fatal(err)
	}
	gf, err := f.GeoJSON()
	if err != nil {
		t.Fatal(err)
	}
	if gf.ID != uint64(7) {
		t.Fatalf("id=%v, want 7", gf.ID)
	}
	if gf.Properties["name"] != "Town Hall" {
		t.Fatalf("name=%v", gf.Properties["name"])
	}
	if _, ok := gf.Geometry.(orb.Polygon); !ok {
		t.Fatalf("geometry=%T, want orb.Polygon", gf.Geometry)
	}
}
