package vtile

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-vtile/internal/geom"
	"github.com/joeblew999/plat-vtile/internal/pbf"
)

// GeomType is the geometry type of a feature.
type GeomType uint8

const (
	Unknown GeomType = iota
	Point
	LineString
	Polygon
)

func (t GeomType) String() string {
	switch t {
	case Point:
		return "Point"
	case LineString:
		return "LineString"
	case Polygon:
		return "Polygon"
	default:
		return "Unknown"
	}
}

// Feature is a single feature of a layer.
type Feature struct {
	ID         uint64
	HasID      bool
	Type       GeomType
	Properties map[string]any

	// Layer is the layer the feature was decoded from.
	Layer *Layer

	geometry int
	rings    []orb.Ring
	bound    *orb.Bound
}

var featureWireTypes = map[int]pbf.WireType{
	1: pbf.Varint,
	2: pbf.Bytes,
	3: pbf.Varint,
	4: pbf.Bytes,
}

func decodeFeature(r *pbf.Reader, end int, l *Layer) (*Feature, error) {
	f := &Feature{
		Layer:      l,
		Properties: make(map[string]any),
		geometry:   -1,
	}
	var tags []uint64
	err := r.ReadFields(end, func(field int, r *pbf.Reader) error {
		if want, ok := featureWireTypes[field]; !ok || r.WireType() != want {
			return nil
		}
		var err error
		switch field {
		case 1:
			f.ID, err = r.ReadVarint()
			f.HasID = err == nil
		case 2:
			tags, err = r.ReadPackedVarint(tags[:0])
		case 3:
			var t uint64
			t, err = r.ReadVarint()
			if t <= uint64(Polygon) {
				f.Type = GeomType(t)
			}
		case 4:
			f.geometry = r.Pos
			err = r.Skip(pbf.Bytes)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	for i := 0; i+1 < len(tags); i += 2 {
		k, v := tags[i], tags[i+1]
		if k >= uint64(len(l.Keys)) {
			continue
		}
		if v >= uint64(len(l.Values)) {
			f.Properties[l.Keys[k]] = nil
			continue
		}
		f.Properties[l.Keys[k]] = l.Values[v]
	}
	return f, nil
}

// Extent returns the coordinate space of the feature's layer.
func (f *Feature) Extent() int {
	if f.Layer == nil {
		return DefaultExtent
	}
	return f.Layer.Extent
}

const (
	cmdMoveTo    = 1
	cmdLineTo    = 2
	cmdClosePath = 7
)

// walk interprets the command stream in absolute tile coordinates.
func (f *Feature) walk(moveTo func(p orb.Point), lineTo func(p orb.Point), closeRing func()) error {
	if f.geometry < 0 {
		return nil
	}
	r := pbf.NewReader(f.Layer.r.Buffer().Bytes())
	r.Pos = f.geometry
	n, err := r.ReadVarint()
	if err != nil {
		return err
	}
	if n > uint64(r.Len()-r.Pos) {
		return pbf.ErrTruncated
	}
	end := r.Pos + int(n)

	var (
		x, y      int64
		cmd       uint64
		remaining int
	)
	for r.Pos < end {
		if remaining <= 0 {
			c, err := r.ReadVarint()
			if err != nil {
				return err
			}
			cmd = c & 7
			remaining = int(c >> 3)
		}
		remaining--

		switch cmd {
		case cmdMoveTo, cmdLineTo:
			dx, err := r.ReadSVarint()
			if err != nil {
				return err
			}
			dy, err := r.ReadSVarint()
			if err != nil {
				return err
			}
			x += dx
			y += dy
			p := orb.Point{float64(x), float64(y)}
			if cmd == cmdMoveTo {
				moveTo(p)
			} else {
				lineTo(p)
			}
		case cmdClosePath:
			closeRing()
			remaining = 0
		default:
			return &UnknownCommandError{Command: cmd, Pos: r.Pos}
		}
	}
	if r.Pos != end {
		return pbf.ErrTruncated
	}
	return nil
}

// LoadGeometry decodes the feature's rings in tile-local coordinates. A
// MoveTo starts a new ring; ClosePath appends a copy of the ring's first
// point. The result is cached.
func (f *Feature) LoadGeometry() ([]orb.Ring, error) {
	if f.rings != nil {
		return f.rings, nil
	}
	var (
		rings []orb.Ring
		ring  orb.Ring
	)
	err := f.walk(
		func(p orb.Point) {
			if ring != nil {
				rings = append(rings, ring)
			}
			ring = orb.Ring{p}
		},
		func(p orb.Point) {
			ring = append(ring, p)
		},
		func() {
			if len(ring) > 0 {
				ring = append(ring, ring[0])
			}
		},
	)
	if err != nil {
		return nil, err
	}
	if ring != nil {
		rings = append(rings, ring)
	}
	f.rings = rings
	return rings, nil
}

// BBox returns the bounds of the geometry without materialising rings.
func (f *Feature) BBox() (orb.Bound, error) {
	if f.bound != nil {
		return *f.bound, nil
	}
	var (
		b     orb.Bound
		empty = true
	)
	extend := func(p orb.Point) {
		if empty {
			b = orb.Bound{Min: p, Max: p}
			empty = false
			return
		}
		b = b.Extend(p)
	}
	if err := f.walk(extend, extend, func() {}); err != nil {
		return orb.Bound{}, err
	}
	f.bound = &b
	return b, nil
}

// Geometry converts the decoded rings into an orb geometry in tile-local
// coordinates. Polygon rings are grouped into polygons by winding order.
func (f *Feature) Geometry() (orb.Geometry, error) {
	rings, err := f.LoadGeometry()
	if err != nil {
		return nil, err
	}

	switch f.Type {
	case Point:
		var mp orb.MultiPoint
		for _, r := range rings {
			mp = append(mp, r...)
		}
		if len(mp) == 1 {
			return mp[0], nil
		}
		return mp, nil
	case LineString:
		if len(rings) == 1 {
			return orb.LineString(rings[0]), nil
		}
		mls := make(orb.MultiLineString, len(rings))
		for i, r := range rings {
			mls[i] = orb.LineString(r)
		}
		return mls, nil
	case Polygon:
		polys := classifyRings(rings)
		if len(polys) == 1 {
			return polys[0], nil
		}
		return orb.MultiPolygon(polys), nil
	default:
		return nil, fmt.Errorf("feature type %s: %w", f.Type, ErrUnsupportedGeometryType)
	}
}

// classifyRings starts a new polygon at every ring wound like the first
// ring; oppositely wound rings are holes of the current polygon. Degenerate
// rings are dropped.
func classifyRings(rings []orb.Ring) []orb.Polygon {
	var (
		polys    []orb.Polygon
		poly     orb.Polygon
		outerNeg bool
		seen     bool
	)
	for _, r := range rings {
		area := geom.SignedArea(r)
		if area == 0 {
			continue
		}
		if !seen {
			outerNeg, seen = area < 0, true
		}
		if (area < 0) == outerNeg {
			if poly != nil {
				polys = append(polys, poly)
			}
			poly = orb.Polygon{r}
		} else if poly != nil {
			poly = append(poly, r)
		}
	}
	if poly != nil {
		polys = append(polys, poly)
	}
	return polys
}

// GeoJSON returns the feature as a GeoJSON feature in tile-local
// coordinates.
func (f *Feature) GeoJSON() (*geojson.Feature, error) {
	g, err := f.Geometry()
	if err != nil {
		return nil, err
	}
	gf := geojson.NewFeature(g)
	for k, v := range f.Properties {
		gf.Properties[k] = v
	}
	if f.HasID {
		gf.ID = f.ID
	}
	return gf, nil
}
