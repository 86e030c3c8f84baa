// Package vtile decodes vector tiles lazily on top of package pbf.
//
// Layers are decoded when the tile is decoded; features are decoded on
// first access and their geometry only when LoadGeometry or BBox is called,
// since most features are discarded by filters before they are drawn.
package vtile

import (
	"errors"
	"fmt"
	"sort"

	"github.com/joeblew999/plat-vtile/internal/pbf"
)

// DefaultExtent is the layer coordinate space used when a layer omits it.
const DefaultExtent = 4096

// Tile is a decoded vector tile.
type Tile struct {
	Layers map[string]*Layer

	// Skipped holds the errors of layers that were dropped because they
	// contained a field that could not be skipped.
	Skipped []error
}

// Decode parses the layer dictionary of a tile. Layers without features are
// dropped. A malformed varint or truncated buffer aborts the whole tile; an
// unsupported wire type inside a layer drops only that layer.
func Decode(data []byte) (*Tile, error) {
	r := pbf.NewReader(data)
	t := &Tile{Layers: make(map[string]*Layer)}

	err := r.ReadFields(r.Len(), func(field int, r *pbf.Reader) error {
		if field != 3 || r.WireType() != pbf.Bytes {
			return nil
		}
		n, err := r.ReadVarint()
		if err != nil {
			return err
		}
		end := r.Pos + int(n)
		if n > uint64(r.Len()-r.Pos) {
			return pbf.ErrTruncated
		}

		l, err := decodeLayer(r, end)
		if errors.Is(err, pbf.ErrUnsupportedWireType) {
			t.Skipped = append(t.Skipped, fmt.Errorf("layer at offset %d: %w", end-int(n), err))
			r.Pos = end
			return nil
		}
		if err != nil {
			return err
		}
		if len(l.features) > 0 {
			t.Layers[l.Name] = l
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("decoding tile: %w", err)
	}
	return t, nil
}

// Names returns the layer names in sorted order.
func (t *Tile) Names() []string {
	names := make([]string, 0, len(t.Layers))
	for name := range t.Layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Layer is one named layer of a tile. Its key and value tables are shared
// by every feature in the layer.
type Layer struct {
	Name    string
	Version uint32
	Extent  int

	Keys   []string
	Values []any

	r        *pbf.Reader
	features []span
}

type span struct{ start, end int }

var layerWireTypes = map[int]pbf.WireType{
	1:  pbf.Bytes,
	2:  pbf.Bytes,
	3:  pbf.Bytes,
	4:  pbf.Bytes,
	5:  pbf.Varint,
	15: pbf.Varint,
}

func decodeLayer(r *pbf.Reader, end int) (*Layer, error) {
	l := &Layer{
		Version: 1,
		Extent:  DefaultExtent,
		r:       r,
	}
	err := r.ReadFields(end, func(field int, r *pbf.Reader) error {
		if want, ok := layerWireTypes[field]; !ok || r.WireType() != want {
			return nil
		}
		var err error
		switch field {
		case 15:
			var v uint64
			v, err = r.ReadVarint()
			l.Version = uint32(v)
		case 1:
			l.Name, err = r.ReadString()
		case 5:
			var v uint64
			v, err = r.ReadVarint()
			if v > 0 {
				l.Extent = int(v)
			}
		case 2:
			var n uint64
			n, err = r.ReadVarint()
			if err != nil {
				return err
			}
			if n > uint64(r.Len()-r.Pos) {
				return pbf.ErrTruncated
			}
			l.features = append(l.features, span{r.Pos, r.Pos + int(n)})
			r.Pos += int(n)
		case 3:
			var k string
			k, err = r.ReadString()
			l.Keys = append(l.Keys, k)
		case 4:
			var v any
			v, err = decodeValue(r)
			l.Values = append(l.Values, v)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Len returns the number of features in the layer.
func (l *Layer) Len() int { return len(l.features) }

// Feature decodes the i-th feature. Properties are resolved immediately;
// geometry is not.
func (l *Layer) Feature(i int) (*Feature, error) {
	if i < 0 || i >= len(l.features) {
		return nil, fmt.Errorf("feature %d out of range [0, %d)", i, len(l.features))
	}
	s := l.features[i]
	r := pbf.NewReader(l.r.Buffer().Bytes())
	r.Pos = s.start
	f, err := decodeFeature(r, s.end, l)
	if err != nil {
		return nil, fmt.Errorf("layer %q feature %d: %w", l.Name, i, err)
	}
	return f, nil
}
