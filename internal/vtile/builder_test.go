package vtile

import (
	"encoding/binary"
	"math"

	"github.com/joeblew999/plat-vtile/internal/pbf"
)

// msg is a tiny message encoder used to build fixtures by hand.
type msg []byte

func (m msg) tag(field int, t pbf.WireType) msg {
	return binary.AppendUvarint(m, uint64(field)<<3|uint64(t))
}

func (m msg) varint(field int, v uint64) msg {
	return binary.AppendUvarint(m.tag(field, pbf.Varint), v)
}

func (m msg) bytes(field int, p []byte) msg {
	m = binary.AppendUvarint(m.tag(field, pbf.Bytes), uint64(len(p)))
	return append(m, p...)
}

func (m msg) str(field int, s string) msg { return m.bytes(field, []byte(s)) }

func (m msg) fixed32(field int, v uint32) msg {
	return binary.LittleEndian.AppendUint32(m.tag(field, pbf.Fixed32), v)
}

func (m msg) fixed64(field int, v uint64) msg {
	return binary.LittleEndian.AppendUint64(m.tag(field, pbf.Fixed64), v)
}

func (m msg) packed(field int, vs ...uint64) msg {
	var p []byte
	for _, v := range vs {
		p = binary.AppendUvarint(p, v)
	}
	return m.bytes(field, p)
}

func command(id, count uint64) uint64 { return id&7 | count<<3 }

func zz(v int64) uint64 { return pbf.EncodeZigzag(v) }

// squareGeometry is MoveTo(5,5) LineTo(10,5) LineTo(10,10) ClosePath.
func squareGeometry() []uint64 {
	return []uint64{
		command(1, 1), zz(5), zz(5),
		command(2, 2), zz(5), zz(0), zz(0), zz(5),
		command(7, 1),
	}
}

func stringValue(s string) []byte { return msg(nil).str(1, s) }

func doubleValue(f float64) []byte { return msg(nil).fixed64(3, math.Float64bits(f)) }

func boolValue(b bool) []byte {
	var v uint64
	if b {
		v = 1
	}
	return msg(nil).varint(7, v)
}

type testFeature struct {
	id       uint64
	typ      GeomType
	tags     []uint64
	geometry []uint64
}

func (f testFeature) encode() []byte {
	m := msg(nil)
	if f.id != 0 {
		m = m.varint(1, f.id)
	}
	if len(f.tags) > 0 {
		m = m.packed(2, f.tags...)
	}
	m = m.varint(3, uint64(f.typ))
	if f.geometry != nil {
		m = m.packed(4, f.geometry...)
	}
	return m
}

type testLayer struct {
	name     string
	extent   uint64
	keys     []string
	values   [][]byte
	features []testFeature
}

func (l testLayer) encode() []byte {
	m := msg(nil).varint(15, 2).str(1, l.name)
	for _, f := range l.features {
		m = m.bytes(2, f.encode())
	}
	for _, k := range l.keys {
		m = m.str(3, k)
	}
	for _, v := range l.values {
		m = m.bytes(4, v)
	}
	if l.extent != 0 {
		m = m.varint(5, l.extent)
	}
	return m
}

func encodeTile(layers ...testLayer) []byte {
	m := msg(nil)
	for _, l := range layers {
		m = m.bytes(3, l.encode())
	}
	return m
}
