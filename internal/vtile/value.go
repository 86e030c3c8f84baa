package vtile

import (
	"errors"

	"github.com/joeblew999/plat-vtile/internal/pbf"
)

// decodeValue reads one entry of a layer's value table. The first typed
// field present wins. A field whose payload does not match its declared
// type yields nil instead of failing the layer; only errors that leave the
// cursor in an unknown state are returned.
func decodeValue(r *pbf.Reader) (any, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if n > uint64(r.Len()-r.Pos) {
		return nil, pbf.ErrTruncated
	}
	end := r.Pos + int(n)

	var (
		value any
		found bool
	)
	err = r.ReadFields(end, func(field int, r *pbf.Reader) error {
		if found || field < 1 || field > 7 {
			return nil
		}
		if r.WireType() != valueWireTypes[field] {
			// Structurally invalid: skip it and keep the slot null.
			found = true
			return nil
		}
		v, err := readValueField(field, r)
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		if errors.Is(err, pbf.ErrUnsupportedWireType) {
			r.Pos = end
			return nil, nil
		}
		return nil, err
	}
	return value, nil
}

var valueWireTypes = [8]pbf.WireType{
	1: pbf.Bytes,
	2: pbf.Fixed32,
	3: pbf.Fixed64,
	4: pbf.Varint,
	5: pbf.Varint,
	6: pbf.Varint,
	7: pbf.Varint,
}

func readValueField(field int, r *pbf.Reader) (any, error) {
	switch field {
	case 1:
		return r.ReadString()
	case 2:
		v, err := r.ReadFloat()
		return float64(v), err
	case 3:
		return r.ReadDouble()
	case 4:
		v, err := r.ReadVarint()
		return int64(v), err
	case 5:
		return r.ReadVarint()
	case 6:
		return r.ReadSVarint()
	default:
		return r.ReadBool()
	}
}
