package pmtiles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/paulmach/orb/maptile"
)

// maxDepth bounds the root plus leaf directories walked for one tile.
const maxDepth = 3

const leafCacheSize = 256

// maxRead bounds one read when the archive size is unknown.
const maxRead = 64 << 20

// Archive is an open PMTiles archive. It is safe for concurrent use.
type Archive struct {
	name   string
	r      io.ReaderAt
	size   int64 // -1 when r does not report a size
	closer io.Closer

	header HeaderV3
	root   []EntryV3
	leaves *ccache.Cache[[]EntryV3]
}

// Open opens the archive at path.
func Open(path string) (*Archive, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := New(io.NewSectionReader(f, 0, fi.Size()), path)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// New reads the header and root directory of an archive held by r. Reads
// are bounds checked against r's Size method when it has one.
func New(r io.ReaderAt, name string) (*Archive, error) {
	buf := make([]byte, HeaderV3LenBytes)
	if _, err := r.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	h, err := DeserializeHeader(buf)
	if err != nil {
		return nil, err
	}
	a := &Archive{
		name:   name,
		r:      r,
		size:   -1,
		header: h,
		leaves: ccache.New(ccache.Configure[[]EntryV3]().MaxSize(leafCacheSize)),
	}
	if sr, ok := r.(interface{ Size() int64 }); ok {
		a.size = sr.Size()
	}
	a.root, err = a.directory(h.RootOffset, h.RootLength)
	if err != nil {
		a.leaves.Stop()
		return nil, fmt.Errorf("root directory: %w", err)
	}
	return a, nil
}

// Name is the path or name the archive was opened with.
func (a *Archive) Name() string { return a.name }

// Header returns the archive header.
func (a *Archive) Header() HeaderV3 { return a.header }

// Metadata decodes the archive's JSON metadata.
func (a *Archive) Metadata() (map[string]any, error) {
	if a.header.MetadataLength == 0 {
		return map[string]any{}, nil
	}
	raw, err := a.read(a.header.MetadataOffset, a.header.MetadataLength)
	if err != nil {
		return nil, err
	}
	data, err := Decompress(raw, a.header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	var md map[string]any
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return md, nil
}

// Tile returns the decompressed bytes of a tile, or nil if the archive
// has no such tile.
func (a *Archive) Tile(z uint8, x, y uint32) ([]byte, error) {
	if z < a.header.MinZoom || z > a.header.MaxZoom {
		return nil, nil
	}
	if x >= 1<<z || y >= 1<<z {
		return nil, nil
	}
	id := ZxyToID(z, x, y)

	dir := a.root
	for depth := 0; depth < maxDepth; depth++ {
		e, ok := FindTile(dir, id)
		if !ok {
			return nil, nil
		}
		if e.RunLength > 0 {
			if !within(e.Offset, uint64(e.Length), a.header.TileDataLength) {
				return nil, fmt.Errorf("%w: tile %d/%d/%d outside tile data", ErrCorruptDirectory, z, x, y)
			}
			raw, err := a.read(a.header.TileDataOffset+e.Offset, uint64(e.Length))
			if err != nil {
				return nil, err
			}
			return Decompress(raw, a.header.TileCompression)
		}
		var err error
		dir, err = a.leaf(e)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: tile %d/%d/%d deeper than %d directories", ErrCorruptDirectory, z, x, y, maxDepth)
}

// Fetch returns the tile t. It lets an archive serve a tile client
// directly.
func (a *Archive) Fetch(ctx context.Context, t maptile.Tile) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.Tile(uint8(t.Z), t.X, t.Y)
}

// Close releases the file and the leaf cache.
func (a *Archive) Close() error {
	a.leaves.Stop()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func (a *Archive) leaf(e EntryV3) ([]EntryV3, error) {
	key := strconv.FormatUint(e.Offset, 10)
	if item := a.leaves.Get(key); item != nil {
		return item.Value(), nil
	}
	if !within(e.Offset, uint64(e.Length), a.header.LeafDirectoryLength) {
		return nil, fmt.Errorf("%w: leaf at %d outside leaf directories", ErrCorruptDirectory, e.Offset)
	}
	dir, err := a.directory(a.header.LeafDirectoryOffset+e.Offset, uint64(e.Length))
	if err != nil {
		return nil, fmt.Errorf("leaf directory at %d: %w", e.Offset, err)
	}
	a.leaves.Set(key, dir, time.Hour)
	return dir, nil
}

func (a *Archive) directory(offset, length uint64) ([]EntryV3, error) {
	raw, err := a.read(offset, length)
	if err != nil {
		return nil, err
	}
	return DeserializeEntries(raw, a.header.InternalCompression)
}

// read returns length bytes at offset. Ranges past the end of the archive
// fail before anything is allocated.
func (a *Archive) read(offset, length uint64) ([]byte, error) {
	if a.size >= 0 {
		if !within(offset, length, uint64(a.size)) {
			return nil, fmt.Errorf("%w: %d bytes at %d past end of archive (%d bytes)", ErrCorruptDirectory, length, offset, a.size)
		}
	} else if length > maxRead {
		return nil, fmt.Errorf("%w: %d bytes at %d exceeds read limit", ErrCorruptDirectory, length, offset)
	}
	buf := make([]byte, length)
	n, err := a.r.ReadAt(buf, int64(offset))
	if err != nil && !(errors.Is(err, io.EOF) && uint64(n) == length) {
		return nil, fmt.Errorf("reading %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

// within reports whether length bytes at offset fit in a section of size
// bytes.
func within(offset, length, size uint64) bool {
	return offset <= size && length <= size-offset
}
