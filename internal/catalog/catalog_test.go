package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-layers/internal/db"
	"github.com/joeblew999/plat-layers/internal/ingest"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	conn, err := db.OpenMemory()
	if err != nil {
		t.Skipf("duckdb unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	c := New(conn)
	require.NoError(t, c.Init(context.Background()))
	return c
}

func pointRecord(id string) ingest.LayerRecord {
	count := int64(76)
	bounds := ingest.Bounds{-0.5, 51.2, 0.3, 51.7}
	return ingest.LayerRecord{
		ID:         id,
		Name:       "sensors",
		LayerType:  ingest.LayerVector,
		SourceKind: ingest.SourceUploaded,
		PMTilesKey: "pmtiles/layer/" + id + ".pmtiles",
		Metadata: ingest.Metadata{
			GeometryType:     ingest.GeomPoint,
			FeatureCount:     &count,
			Bounds:           &bounds,
			OriginalFilename: "sensors.csv",
			OriginalFormat:   "csv",
			ConvertedTo:      "fgb",
		},
	}
}

func TestInsertAndGet(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.Insert(ctx, pointRecord("Labc123")))

	got, err := c.Get(ctx, "Labc123")
	require.NoError(t, err)
	assert.Equal(t, "sensors", got.Name)
	assert.Equal(t, "vector", got.LayerType)
	assert.Equal(t, "point", got.Metadata["geometry_type"])
	assert.EqualValues(t, 76, got.Metadata["feature_count"])
	assert.Equal(t, "pmtiles/layer/Labc123.pmtiles", got.Metadata["pmtiles_key"])
}

func TestGetMissing(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Get(context.Background(), "Lmissing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPatchMetadataMergesFields(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, pointRecord("Labc123")))

	require.NoError(t, c.AttachCOGKey(ctx, "Labc123", "cog/layer/Labc123.cog.tif"))

	got, err := c.Get(ctx, "Labc123")
	require.NoError(t, err)
	assert.Equal(t, "cog/layer/Labc123.cog.tif", got.Metadata["cog_key"])
	// Existing fields survive the patch.
	assert.Equal(t, "point", got.Metadata["geometry_type"])
}

func TestPatchMetadataMissingLayer(t *testing.T) {
	c := newTestCatalog(t)
	err := c.PatchMetadata(context.Background(), "Lmissing", map[string]any{"x": 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAndDelete(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, pointRecord("L1aaaaaaaaaa")))
	require.NoError(t, c.Insert(ctx, pointRecord("L2bbbbbbbbbb")))

	layers, err := c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, layers, 2)

	require.NoError(t, c.Delete(ctx, "L1aaaaaaaaaa"))
	assert.ErrorIs(t, c.Delete(ctx, "L1aaaaaaaaaa"), ErrNotFound)

	layers, err = c.List(ctx)
	require.NoError(t, err)
	assert.Len(t, layers, 1)
}

func TestStyleSeeded(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	require.NoError(t, c.Insert(ctx, pointRecord("Labc123")))

	style, err := c.Style(ctx, "Labc123")
	require.NoError(t, err)
	assert.Contains(t, string(style), `"circle"`)
}

func TestDefaultStyleByGeometry(t *testing.T) {
	rec := pointRecord("L1")
	assert.Equal(t, "circle", DefaultStyle(rec)["type"])

	rec.Metadata.GeometryType = ingest.GeomMultiPolygon
	assert.Equal(t, "fill", DefaultStyle(rec)["type"])

	rec.LayerType = ingest.LayerRaster
	assert.Equal(t, "raster", DefaultStyle(rec)["type"])
}
