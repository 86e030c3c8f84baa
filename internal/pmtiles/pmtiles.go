// Package pmtiles reads PMTiles v3 archives: a fixed header, a root
// directory, optional leaf directories and tile data, all in one file.
//
// Spec: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Compression is the compression algorithm applied to directories,
// metadata or individual tiles.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

func (c Compression) String() string {
	switch c {
	case UnknownCompression:
		return "unknown"
	case NoCompression:
		return "none"
	case Gzip:
		return "gzip"
	case Brotli:
		return "brotli"
	case Zstd:
		return "zstd"
	}
	return strconv.Itoa(int(c))
}

// TileType is the format of individual tile contents.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

func (t TileType) String() string {
	switch t {
	case UnknownTileType:
		return "unknown"
	case Mvt:
		return "mvt"
	case Png:
		return "png"
	case Jpeg:
		return "jpeg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	}
	return strconv.Itoa(int(t))
}

// HeaderV3LenBytes is the fixed-size binary header.
const HeaderV3LenBytes = 127

var (
	ErrShortHeader            = errors.New("pmtiles: buffer too small for header")
	ErrBadMagic               = errors.New("pmtiles: magic number not detected")
	ErrUnsupportedVersion     = errors.New("pmtiles: unsupported spec version")
	ErrUnsupportedCompression = errors.New("pmtiles: unsupported compression")
	ErrCorruptDirectory       = errors.New("pmtiles: corrupt directory")
)

// HeaderV3 is the binary header of a v3 archive. Offsets are absolute
// within the file.
type HeaderV3 struct {
	SpecVersion         uint8       `json:"specVersion" yaml:"specVersion"`
	RootOffset          uint64      `json:"rootOffset" yaml:"rootOffset"`
	RootLength          uint64      `json:"rootLength" yaml:"rootLength"`
	MetadataOffset      uint64      `json:"metadataOffset" yaml:"metadataOffset"`
	MetadataLength      uint64      `json:"metadataLength" yaml:"metadataLength"`
	LeafDirectoryOffset uint64      `json:"leafDirectoryOffset" yaml:"leafDirectoryOffset"`
	LeafDirectoryLength uint64      `json:"leafDirectoryLength" yaml:"leafDirectoryLength"`
	TileDataOffset      uint64      `json:"tileDataOffset" yaml:"tileDataOffset"`
	TileDataLength      uint64      `json:"tileDataLength" yaml:"tileDataLength"`
	AddressedTilesCount uint64      `json:"addressedTilesCount" yaml:"addressedTilesCount"`
	TileEntriesCount    uint64      `json:"tileEntriesCount" yaml:"tileEntriesCount"`
	TileContentsCount   uint64      `json:"tileContentsCount" yaml:"tileContentsCount"`
	Clustered           bool        `json:"clustered" yaml:"clustered"`
	InternalCompression Compression `json:"internalCompression" yaml:"internalCompression"`
	TileCompression     Compression `json:"tileCompression" yaml:"tileCompression"`
	TileType            TileType    `json:"tileType" yaml:"tileType"`
	MinZoom             uint8       `json:"minZoom" yaml:"minZoom"`
	MaxZoom             uint8       `json:"maxZoom" yaml:"maxZoom"`
	MinLonE7            int32       `json:"minLonE7" yaml:"minLonE7"`
	MinLatE7            int32       `json:"minLatE7" yaml:"minLatE7"`
	MaxLonE7            int32       `json:"maxLonE7" yaml:"maxLonE7"`
	MaxLatE7            int32       `json:"maxLatE7" yaml:"maxLatE7"`
	CenterZoom          uint8       `json:"centerZoom" yaml:"centerZoom"`
	CenterLonE7         int32       `json:"centerLonE7" yaml:"centerLonE7"`
	CenterLatE7         int32       `json:"centerLatE7" yaml:"centerLatE7"`
}

// EntryV3 is an entry in a directory. A RunLength of zero marks a leaf
// directory; otherwise the entry covers RunLength consecutive tile ids
// sharing the same data.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
}

// ZxyToID converts tile coordinates to a Hilbert tile id.
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	var acc uint64 = (1<<(z*2) - 1) / 3
	n := uint32(z - 1)
	for s := uint32(1 << n); s > 0; s >>= 1 {
		rx := s & x
		ry := s & y
		acc += uint64((3*rx)^ry) << n
		x, y = rotate(s, x, y, rx, ry)
		n--
	}
	return acc
}

func rotate(n uint32, x uint32, y uint32, rx uint32, ry uint32) (uint32, uint32) {
	if ry == 0 {
		if rx != 0 {
			x = n - 1 - x
			y = n - 1 - y
		}
		return y, x
	}
	return x, y
}

// SerializeHeader converts a header to bytes.
func SerializeHeader(header HeaderV3) []byte {
	b := make([]byte, HeaderV3LenBytes)
	copy(b[0:7], "PMTiles")

	b[7] = 3
	le := binary.LittleEndian
	le.PutUint64(b[8:], header.RootOffset)
	le.PutUint64(b[16:], header.RootLength)
	le.PutUint64(b[24:], header.MetadataOffset)
	le.PutUint64(b[32:], header.MetadataLength)
	le.PutUint64(b[40:], header.LeafDirectoryOffset)
	le.PutUint64(b[48:], header.LeafDirectoryLength)
	le.PutUint64(b[56:], header.TileDataOffset)
	le.PutUint64(b[64:], header.TileDataLength)
	le.PutUint64(b[72:], header.AddressedTilesCount)
	le.PutUint64(b[80:], header.TileEntriesCount)
	le.PutUint64(b[88:], header.TileContentsCount)
	if header.Clustered {
		b[96] = 0x1
	}
	b[97] = uint8(header.InternalCompression)
	b[98] = uint8(header.TileCompression)
	b[99] = uint8(header.TileType)
	b[100] = header.MinZoom
	b[101] = header.MaxZoom
	le.PutUint32(b[102:], uint32(header.MinLonE7))
	le.PutUint32(b[106:], uint32(header.MinLatE7))
	le.PutUint32(b[110:], uint32(header.MaxLonE7))
	le.PutUint32(b[114:], uint32(header.MaxLatE7))
	b[118] = header.CenterZoom
	le.PutUint32(b[119:], uint32(header.CenterLonE7))
	le.PutUint32(b[123:], uint32(header.CenterLatE7))
	return b
}

// DeserializeHeader parses a binary header.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	h := HeaderV3{}
	if len(d) < HeaderV3LenBytes {
		return h, ErrShortHeader
	}
	if string(d[0:7]) != "PMTiles" {
		return h, ErrBadMagic
	}
	if d[7] != 3 {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, d[7])
	}

	le := binary.LittleEndian
	h.SpecVersion = d[7]
	h.RootOffset = le.Uint64(d[8:])
	h.RootLength = le.Uint64(d[16:])
	h.MetadataOffset = le.Uint64(d[24:])
	h.MetadataLength = le.Uint64(d[32:])
	h.LeafDirectoryOffset = le.Uint64(d[40:])
	h.LeafDirectoryLength = le.Uint64(d[48:])
	h.TileDataOffset = le.Uint64(d[56:])
	h.TileDataLength = le.Uint64(d[64:])
	h.AddressedTilesCount = le.Uint64(d[72:])
	h.TileEntriesCount = le.Uint64(d[80:])
	h.TileContentsCount = le.Uint64(d[88:])
	h.Clustered = d[96] == 0x1
	h.InternalCompression = Compression(d[97])
	h.TileCompression = Compression(d[98])
	h.TileType = TileType(d[99])
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(le.Uint32(d[102:]))
	h.MinLatE7 = int32(le.Uint32(d[106:]))
	h.MaxLonE7 = int32(le.Uint32(d[110:]))
	h.MaxLatE7 = int32(le.Uint32(d[114:]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(le.Uint32(d[119:]))
	h.CenterLatE7 = int32(le.Uint32(d[123:]))
	return h, nil
}

// Compress compresses data with c. Only none and gzip are written.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case NoCompression:
		return data, nil
	case Gzip:
		var b bytes.Buffer
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
}

// Decompress reverses c.
func Decompress(data []byte, c Compression) ([]byte, error) {
	var r io.Reader
	switch c {
	case NoCompression, UnknownCompression:
		return data, nil
	case Gzip:
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		r = zr
	case Brotli:
		r = brotli.NewReader(bytes.NewReader(data))
	case Zstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		r = zr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCompression, c)
	}
	return io.ReadAll(r)
}

// SerializeMetadata encodes metadata as compressed JSON.
func SerializeMetadata(metadata map[string]any, c Compression) ([]byte, error) {
	data, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}
	return Compress(data, c)
}

// SerializeEntries encodes a directory and compresses it with c.
func SerializeEntries(entries []EntryV3, c Compression) ([]byte, error) {
	var b []byte
	b = binary.AppendUvarint(b, uint64(len(entries)))

	lastID := uint64(0)
	for _, e := range entries {
		b = binary.AppendUvarint(b, e.TileID-lastID)
		lastID = e.TileID
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.RunLength))
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			b = binary.AppendUvarint(b, 0)
		} else {
			b = binary.AppendUvarint(b, e.Offset+1)
		}
	}
	return Compress(b, c)
}

// DeserializeEntries decodes a directory compressed with c.
func DeserializeEntries(data []byte, c Compression) ([]EntryV3, error) {
	raw, err := Decompress(data, c)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(raw)
	next := func() (uint64, error) {
		v, err := binary.ReadUvarint(r)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCorruptDirectory, err)
		}
		return v, nil
	}

	n, err := next()
	if err != nil {
		return nil, err
	}
	if n > uint64(len(raw)) {
		return nil, fmt.Errorf("%w: %d entries in %d bytes", ErrCorruptDirectory, n, len(raw))
	}
	entries := make([]EntryV3, n)

	lastID := uint64(0)
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		lastID += v
		entries[i].TileID = lastID
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		entries[i].RunLength = uint32(v)
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		entries[i].Length = uint32(v)
	}
	for i := range entries {
		v, err := next()
		if err != nil {
			return nil, err
		}
		if v == 0 && i > 0 {
			entries[i].Offset = entries[i-1].Offset + uint64(entries[i-1].Length)
		} else {
			entries[i].Offset = v - 1
		}
	}
	return entries, nil
}

// FindTile returns the entry covering id: a tile entry whose run contains
// it, or the leaf directory entry that may hold it.
func FindTile(entries []EntryV3, id uint64) (EntryV3, bool) {
	lo, hi := 0, len(entries)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case entries[mid].TileID < id:
			lo = mid + 1
		case entries[mid].TileID > id:
			hi = mid - 1
		default:
			return entries[mid], true
		}
	}
	// hi is now the last entry with TileID < id.
	if hi >= 0 {
		e := entries[hi]
		if e.RunLength == 0 || id-e.TileID < uint64(e.RunLength) {
			return e, true
		}
	}
	return EntryV3{}, false
}
