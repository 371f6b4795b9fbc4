package pmtiles

import (
	"bytes"
	"fmt"
	"os"
	"sort"
)

// Tile is one encoded tile at a Z/X/Y address.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

// ArchiveOptions describes the archive-level fields of a written file.
// Bounds are WGS84 degrees in [minLon, minLat, maxLon, maxLat] order.
type ArchiveOptions struct {
	TileType        TileType
	TileCompression Compression
	MinZoom         uint8
	MaxZoom         uint8
	Bounds          [4]float64
	Metadata        map[string]any
}

// WriteArchive writes a single-root-directory PMTiles v3 archive. All
// entries go into the root directory, which caps the archive at a few
// thousand tiles; callers producing full pyramids use tippecanoe instead.
func WriteArchive(path string, tiles []Tile, opts ArchiveOptions) error {
	if len(tiles) == 0 {
		return fmt.Errorf("no tiles to write")
	}

	type addressed struct {
		id   uint64
		data []byte
	}
	addr := make([]addressed, 0, len(tiles))
	for _, t := range tiles {
		addr = append(addr, addressed{id: ZxyToID(t.Z, t.X, t.Y), data: t.Data})
	}
	// Clustered archives require entries in tile ID order.
	sort.Slice(addr, func(i, j int) bool { return addr[i].id < addr[j].id })

	var entries []EntryV3
	var tileData bytes.Buffer
	offset := uint64(0)
	for _, a := range addr {
		entries = append(entries, EntryV3{
			TileID:    a.id,
			Offset:    offset,
			Length:    uint32(len(a.data)),
			RunLength: 1,
		})
		tileData.Write(a.data)
		offset += uint64(len(a.data))
	}

	meta := opts.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metadataBytes, err := SerializeMetadata(meta, Gzip)
	if err != nil {
		return fmt.Errorf("serializing metadata: %w", err)
	}
	rootDirBytes := SerializeEntries(entries, Gzip)

	rootDirOffset := uint64(HeaderV3LenBytes)
	metadataOffset := rootDirOffset + uint64(len(rootDirBytes))
	tileDataOffset := metadataOffset + uint64(len(metadataBytes))

	header := HeaderV3{
		SpecVersion:         3,
		RootOffset:          rootDirOffset,
		RootLength:          uint64(len(rootDirBytes)),
		MetadataOffset:      metadataOffset,
		MetadataLength:      uint64(len(metadataBytes)),
		TileDataOffset:      tileDataOffset,
		TileDataLength:      uint64(tileData.Len()),
		AddressedTilesCount: uint64(len(entries)),
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(entries)),
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     opts.TileCompression,
		TileType:            opts.TileType,
		MinZoom:             opts.MinZoom,
		MaxZoom:             opts.MaxZoom,
		MinLonE7:            toE7(opts.Bounds[0]),
		MinLatE7:            toE7(opts.Bounds[1]),
		MaxLonE7:            toE7(opts.Bounds[2]),
		MaxLatE7:            toE7(opts.Bounds[3]),
		CenterZoom:          opts.MinZoom,
		CenterLonE7:         toE7((opts.Bounds[0] + opts.Bounds[2]) / 2),
		CenterLatE7:         toE7((opts.Bounds[1] + opts.Bounds[3]) / 2),
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	for _, chunk := range [][]byte{SerializeHeader(header), rootDirBytes, metadataBytes, tileData.Bytes()} {
		if _, err := f.Write(chunk); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

func toE7(deg float64) int32 {
	return int32(deg * 10000000)
}
