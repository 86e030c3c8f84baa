// Package pmtilestest builds small in-memory PMTiles archives for tests.
package pmtilestest

import (
	"bytes"
	"cmp"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/pmtiles"
)

// Options control the archive layout.
type Options struct {
	// Compression applies to directories, metadata and tiles. Zero means
	// gzip.
	Compression pmtiles.Compression

	// Leaf moves every tile entry into a single leaf directory.
	Leaf bool

	Metadata map[string]any
}

// Build lays out header, root directory, metadata, leaf directory and
// tile data for tiles.
func Build(tb testing.TB, tiles map[maptile.Tile][]byte, opts Options) []byte {
	tb.Helper()
	c := opts.Compression
	if c == pmtiles.UnknownCompression {
		c = pmtiles.Gzip
	}
	md := opts.Metadata
	if md == nil {
		md = map[string]any{"name": "fixture"}
	}

	keys := make([]maptile.Tile, 0, len(tiles))
	for t := range tiles {
		keys = append(keys, t)
	}
	id := func(t maptile.Tile) uint64 { return pmtiles.ZxyToID(uint8(t.Z), t.X, t.Y) }
	slices.SortFunc(keys, func(a, b maptile.Tile) int { return cmp.Compare(id(a), id(b)) })

	var data []byte
	var entries []pmtiles.EntryV3
	minZoom, maxZoom := uint8(255), uint8(0)
	for _, t := range keys {
		blob, err := pmtiles.Compress(tiles[t], c)
		if err != nil {
			tb.Fatal(err)
		}
		entries = append(entries, pmtiles.EntryV3{
			TileID:    id(t),
			Offset:    uint64(len(data)),
			Length:    uint32(len(blob)),
			RunLength: 1,
		})
		data = append(data, blob...)
		minZoom, maxZoom = min(minZoom, uint8(t.Z)), max(maxZoom, uint8(t.Z))
	}
	if len(keys) == 0 {
		minZoom = 0
	}

	var leaf []byte
	root := entries
	if opts.Leaf && len(entries) > 0 {
		var err error
		if leaf, err = pmtiles.SerializeEntries(entries, c); err != nil {
			tb.Fatal(err)
		}
		root = []pmtiles.EntryV3{{TileID: entries[0].TileID, Length: uint32(len(leaf))}}
	}
	rootDir, err := pmtiles.SerializeEntries(root, c)
	if err != nil {
		tb.Fatal(err)
	}
	meta, err := pmtiles.SerializeMetadata(md, c)
	if err != nil {
		tb.Fatal(err)
	}

	h := pmtiles.HeaderV3{
		RootOffset:          pmtiles.HeaderV3LenBytes,
		RootLength:          uint64(len(rootDir)),
		InternalCompression: c,
		TileCompression:     c,
		TileType:            pmtiles.Mvt,
		MinZoom:             minZoom,
		MaxZoom:             maxZoom,
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
	}
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(meta))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = uint64(len(leaf))
	h.TileDataOffset = h.LeafDirectoryOffset + h.LeafDirectoryLength
	h.TileDataLength = uint64(len(data))

	var out bytes.Buffer
	out.Write(pmtiles.SerializeHeader(h))
	out.Write(rootDir)
	out.Write(meta)
	out.Write(leaf)
	out.Write(data)
	return out.Bytes()
}

// WriteFile builds an archive and writes it to dir/name.
func WriteFile(tb testing.TB, dir, name string, tiles map[maptile.Tile][]byte, opts Options) string {
	tb.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		tb.Fatal(err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Build(tb, tiles, opts), 0o644); err != nil {
		tb.Fatal(err)
	}
	return path
}
