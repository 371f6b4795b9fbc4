package pmtiles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	assert.EqualValues(t, 0, ZxyToID(0, 0, 0))
	assert.EqualValues(t, 1, ZxyToID(1, 0, 0))
	assert.EqualValues(t, 2, ZxyToID(1, 0, 1))
	assert.EqualValues(t, 3, ZxyToID(1, 1, 1))
	assert.EqualValues(t, 4, ZxyToID(1, 1, 0))
	assert.EqualValues(t, 5, ZxyToID(2, 0, 0))
}

func TestHeaderRoundTrip(t *testing.T) {
	h := HeaderV3{
		SpecVersion:         3,
		RootOffset:          127,
		RootLength:          25,
		MetadataOffset:      152,
		MetadataLength:      10,
		TileDataOffset:      162,
		TileDataLength:      4096,
		AddressedTilesCount: 1,
		TileEntriesCount:    1,
		TileContentsCount:   1,
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     Gzip,
		TileType:            Mvt,
		MinZoom:             0,
		MaxZoom:             14,
		MinLonE7:            -1800000000,
		MinLatE7:            -850511290,
		MaxLonE7:            1800000000,
		MaxLatE7:            850511290,
	}
	got, err := DeserializeHeader(SerializeHeader(h))
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestDeserializeHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderV3LenBytes)
	copy(buf, "NOTPMT")
	_, err := DeserializeHeader(buf)
	require.Error(t, err)
}

func TestWriteArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layer.pmtiles")

	err := WriteArchive(path, []Tile{
		{Z: 0, X: 0, Y: 0, Data: []byte("tile-zero")},
	}, ArchiveOptions{
		TileType:        Mvt,
		TileCompression: Gzip,
		MinZoom:         0,
		MaxZoom:         0,
		Bounds:          [4]float64{-1.5, 50.0, 1.5, 52.0},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), HeaderV3LenBytes)
	assert.Equal(t, "PMTiles", string(raw[0:7]))

	h, err := DeserializeHeader(raw[:HeaderV3LenBytes])
	require.NoError(t, err)
	assert.True(t, h.Clustered)
	assert.EqualValues(t, 1, h.TileEntriesCount)
	assert.EqualValues(t, len("tile-zero"), h.TileDataLength)
	assert.EqualValues(t, -15000000, h.MinLonE7)
	assert.EqualValues(t, 520000000, h.MaxLatE7)
	assert.EqualValues(t, 510000000, h.CenterLatE7)

	// Tile bytes land at the recorded data offset.
	assert.Equal(t, "tile-zero", string(raw[h.TileDataOffset:h.TileDataOffset+h.TileDataLength]))
}

func TestWriteArchiveEmpty(t *testing.T) {
	err := WriteArchive(filepath.Join(t.TempDir(), "x.pmtiles"), nil, ArchiveOptions{})
	require.Error(t, err)
}
