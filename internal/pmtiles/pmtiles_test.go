package pmtiles_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/pmtiles"
	"github.com/joeblew999/plat-vtile/internal/pmtiles/pmtilestest"
)

var fixture = map[maptile.Tile][]byte{
	maptile.New(0, 0, 0): []byte("world"),
	maptile.New(1, 0, 1): []byte("north-east"),
	maptile.New(0, 1, 1): []byte("south-west"),
	maptile.New(5, 2, 3): []byte("deep"),
	maptile.New(9, 9, 4): []byte("deeper"),
}

func TestZxyToID(t *testing.T) {
	tests := []struct {
		z    uint8
		x, y uint32
		want uint64
	}{
		{0, 0, 0, 0},
		{1, 0, 0, 1},
		{1, 0, 1, 2},
		{1, 1, 1, 3},
		{1, 1, 0, 4},
		{2, 0, 0, 5},
	}
	for _, tt := range tests {
		if got := pmtiles.ZxyToID(tt.z, tt.x, tt.y); got != tt.want {
			t.Errorf("ZxyToID(%d,%d,%d)=%d, want %d", tt.z, tt.x, tt.y, got, tt.want)
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	h := pmtiles.HeaderV3{
		SpecVersion: 3, RootOffset: 127, RootLength: 9, TileType: pmtiles.Mvt,
		TileCompression: pmtiles.Gzip, MinZoom: 2, MaxZoom: 14,
		MinLonE7: -1800000000, MaxLatE7: 850511287, CenterLonE7: 12345,
	}
	got, err := pmtiles.DeserializeHeader(pmtiles.SerializeHeader(h))
	if err != nil {
		t.Fatal(err)
	}
	if got != h {
		t.Fatalf("header=%+v, want %+v", got, h)
	}

	if _, err := pmtiles.DeserializeHeader([]byte("PMTiles")); !errors.Is(err, pmtiles.ErrShortHeader) {
		t.Fatalf("err=%v, want ErrShortHeader", err)
	}
	bad := pmtiles.SerializeHeader(h)
	copy(bad, "MBTiles")
	if _, err := pmtiles.DeserializeHeader(bad); !errors.Is(err, pmtiles.ErrBadMagic) {
		t.Fatalf("err=%v, want ErrBadMagic", err)
	}
	v2 := pmtiles.SerializeHeader(h)
	v2[7] = 2
	if _, err := pmtiles.DeserializeHeader(v2); !errors.Is(err, pmtiles.ErrUnsupportedVersion) {
		t.Fatalf("err=%v, want ErrUnsupportedVersion", err)
	}
}

func TestEntriesRoundTrip(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 0, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 1, Offset: 10, Length: 5, RunLength: 3},
		{TileID: 7, Offset: 0, Length: 10, RunLength: 1},
		{TileID: 9, Offset: 40, Length: 2, RunLength: 0},
	}
	for _, c := range []pmtiles.Compression{pmtiles.NoCompression, pmtiles.Gzip} {
		data, err := pmtiles.SerializeEntries(entries, c)
		if err != nil {
			t.Fatal(err)
		}
		got, err := pmtiles.DeserializeEntries(data, c)
		if err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(got, entries) {
			t.Fatalf("%s: entries=%+v, want %+v", c, got, entries)
		}
	}

	if _, err := pmtiles.DeserializeEntries([]byte{0x05, 0x01}, pmtiles.NoCompression); !errors.Is(err, pmtiles.ErrCorruptDirectory) {
		t.Fatalf("err=%v, want ErrCorruptDirectory", err)
	}
}

func TestFindTile(t *testing.T) {
	entries := []pmtiles.EntryV3{
		{TileID: 1, RunLength: 2},
		{TileID: 10, RunLength: 0},
		{TileID: 20, RunLength: 1},
	}
	tests := []struct {
		id     uint64
		want   uint64
		wantOK bool
	}{
		{0, 0, false},
		{1, 1, true},
		{2, 1, true},
		{3, 0, false},
		{15, 10, true},
		{20, 20, true},
		{21, 0, false},
	}
	for _, tt := range tests {
		e, ok := pmtiles.FindTile(entries, tt.id)
		if ok != tt.wantOK || (ok && e.TileID != tt.want) {
			t.Errorf("FindTile(%d)=%d,%v, want %d,%v", tt.id, e.TileID, ok, tt.want, tt.wantOK)
		}
	}
}

func TestArchiveTiles(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts pmtilestest.Options
	}{
		{"plain root", pmtilestest.Options{Compression: pmtiles.NoCompression}},
		{"gzip root", pmtilestest.Options{Compression: pmtiles.Gzip}},
		{"gzip leaf", pmtilestest.Options{Compression: pmtiles.Gzip, Leaf: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a, err := pmtiles.New(bytes.NewReader(pmtilestest.Build(t, fixture, tc.opts)), "fixture")
			if err != nil {
				t.Fatal(err)
			}
			defer a.Close()

			for tile, want := range fixture {
				got, err := a.Tile(uint8(tile.Z), tile.X, tile.Y)
				if err != nil {
					t.Fatal(err)
				}
				if string(got) != string(want) {
					t.Errorf("tile %v=%q, want %q", tile, got, want)
				}
			}

			for _, missing := range []maptile.Tile{
				maptile.New(0, 0, 1),
				maptile.New(3, 3, 2),
				maptile.New(0, 0, 9),
				maptile.New(4, 0, 1),
			} {
				got, err := a.Tile(uint8(missing.Z), missing.X, missing.Y)
				if err != nil || got != nil {
					t.Errorf("tile %v=%q,%v, want nothing", missing, got, err)
				}
			}

			md, err := a.Metadata()
			if err != nil {
				t.Fatal(err)
			}
			if md["name"] != "fixture" {
				t.Fatalf("metadata=%v", md)
			}
		})
	}
}

func TestOpenAndFetch(t *testing.T) {
	path := pmtilestest.WriteFile(t, t.TempDir(), "fixture.pmtiles", fixture, pmtilestest.Options{})
	a, err := pmtiles.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Header().TileType != pmtiles.Mvt || a.Header().MaxZoom != 4 {
		t.Fatalf("header=%+v", a.Header())
	}
	got, err := a.Fetch(context.Background(), maptile.New(5, 2, 3))
	if err != nil || string(got) != "deep" {
		t.Fatalf("fetch=%q,%v, want deep", got, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Fetch(ctx, maptile.New(0, 0, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestOpenRejectsOtherFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.pmtiles")
	if err := os.WriteFile(path, bytes.Repeat([]byte{'x'}, 200), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := pmtiles.Open(path); !errors.Is(err, pmtiles.ErrBadMagic) {
		t.Fatalf("err=%v, want ErrBadMagic", err)
	}
}

// readerAt hides the Size method of the reader it wraps.
type readerAt struct{ r *bytes.Reader }

func (r readerAt) ReadAt(p []byte, off int64) (int, error) { return r.r.ReadAt(p, off) }

func TestArchiveRejectsOutOfRangeLengths(t *testing.T) {
	corrupt := func(t *testing.T, opts pmtilestest.Options, edit func(*pmtiles.HeaderV3)) []byte {
		t.Helper()
		data := pmtilestest.Build(t, fixture, opts)
		h, err := pmtiles.DeserializeHeader(data[:pmtiles.HeaderV3LenBytes])
		if err != nil {
			t.Fatal(err)
		}
		edit(&h)
		copy(data, pmtiles.SerializeHeader(h))
		return data
	}

	t.Run("root past end of archive", func(t *testing.T) {
		data := corrupt(t, pmtilestest.Options{}, func(h *pmtiles.HeaderV3) { h.RootLength = 1 << 62 })
		if _, err := pmtiles.New(bytes.NewReader(data), "fixture"); !errors.Is(err, pmtiles.ErrCorruptDirectory) {
			t.Fatalf("err=%v, want ErrCorruptDirectory", err)
		}
	})

	t.Run("root over read limit without size", func(t *testing.T) {
		data := corrupt(t, pmtilestest.Options{}, func(h *pmtiles.HeaderV3) { h.RootLength = 1 << 40 })
		if _, err := pmtiles.New(readerAt{bytes.NewReader(data)}, "fixture"); !errors.Is(err, pmtiles.ErrCorruptDirectory) {
			t.Fatalf("err=%v, want ErrCorruptDirectory", err)
		}
	})

	tests := []struct {
		name string
		opts pmtilestest.Options
		edit func(*pmtiles.HeaderV3)
	}{
		{"leaf outside leaf section", pmtilestest.Options{Leaf: true}, func(h *pmtiles.HeaderV3) { h.LeafDirectoryLength = 1 }},
		{"tile outside tile data", pmtilestest.Options{}, func(h *pmtiles.HeaderV3) { h.TileDataLength = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := pmtiles.New(bytes.NewReader(corrupt(t, tt.opts, tt.edit)), "fixture")
			if err != nil {
				t.Fatal(err)
			}
			defer a.Close()
			if _, err := a.Tile(3, 5, 2); !errors.Is(err, pmtiles.ErrCorruptDirectory) {
				t.Fatalf("err=%v, want ErrCorruptDirectory", err)
			}
		})
	}
}
