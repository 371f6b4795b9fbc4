package ingest

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-layers/internal/gis"
)

func writeTestZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, content := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func TestSniffCSVColumns(t *testing.T) {
	dir := t.TempDir()

	ok := filepath.Join(dir, "ok.csv")
	require.NoError(t, os.WriteFile(ok, []byte("Name,Latitude,Longitude\nA,51.5,-0.1\n"), 0o644))
	assert.NoError(t, sniffCSVColumns(ok))

	xy := filepath.Join(dir, "xy.csv")
	require.NoError(t, os.WriteFile(xy, []byte("id,X,Y\n1,10,20\n"), 0o644))
	assert.NoError(t, sniffCSVColumns(xy))

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("name,address,city\nA,1 Main St,Springfield\n"), 0o644))
	err := sniffCSVColumns(bad)
	require.Error(t, err)
	assert.Equal(t, KindMissingCoordinateColumns, KindOf(err))

	lonOnly := filepath.Join(dir, "lon.csv")
	require.NoError(t, os.WriteFile(lonOnly, []byte("lng,value\n-0.1,3\n"), 0o644))
	assert.Equal(t, KindMissingCoordinateColumns, KindOf(sniffCSVColumns(lonOnly)))
}

func TestExtractKMZ(t *testing.T) {
	dir := t.TempDir()
	kmz := filepath.Join(dir, "places.kmz")
	writeTestZip(t, kmz, map[string]string{
		"doc.kml":        "<kml/>",
		"images/pin.png": "png-bytes",
	})

	kml, err := extractKMZ(kmz, dir)
	require.NoError(t, err)
	data, err := os.ReadFile(kml)
	require.NoError(t, err)
	assert.Equal(t, "<kml/>", string(data))
}

func TestExtractKMZNoKML(t *testing.T) {
	dir := t.TempDir()
	kmz := filepath.Join(dir, "empty.kmz")
	writeTestZip(t, kmz, map[string]string{"readme.txt": "nothing here"})

	_, err := extractKMZ(kmz, dir)
	require.Error(t, err)
	assert.Equal(t, KindNoKMLInArchive, KindOf(err))
}

func TestExtractShapefileZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "parcels.zip")
	writeTestZip(t, zipPath, map[string]string{
		"data/parcels.shp": "shp",
		"data/parcels.dbf": "dbf",
		"data/parcels.shx": "shx",
		"data/parcels.prj": "prj",
	})

	shp, err := extractShapefileZip(zipPath, dir)
	require.NoError(t, err)
	assert.Equal(t, "parcels.shp", filepath.Base(shp))

	// Sidecars land next to the .shp so OGR can open the triplet.
	for _, side := range []string{"parcels.dbf", "parcels.shx", "parcels.prj"} {
		_, err := os.Stat(filepath.Join(filepath.Dir(shp), side))
		assert.NoError(t, err, side)
	}
}

func TestExtractShapefileZipNoShp(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "noshp.zip")
	writeTestZip(t, zipPath, map[string]string{"data.csv": "x,y\n"})

	_, err := extractShapefileZip(zipPath, dir)
	require.Error(t, err)
	assert.Equal(t, KindNoShapefileInArchive, KindOf(err))
}

func TestNormalizeRejectsUnknownFormat(t *testing.T) {
	n := &Normalizer{OGR: &gis.OGR{Runner: &scriptRunner{}}}
	_, err := n.Normalize(context.Background(), "/tmp/in.xyz", ".xyz", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, KindInvalidSourceFormat, KindOf(err))
}

func TestNormalizePassthrough(t *testing.T) {
	n := &Normalizer{OGR: &gis.OGR{Runner: &scriptRunner{}}}
	out, err := n.Normalize(context.Background(), "/tmp/in.GeoJSON", ".GeoJSON", t.TempDir())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "/tmp/in.GeoJSON", out[0].Path)
	assert.Equal(t, ".geojson", out[0].Ext)
}

func TestNormalizeKMLExpandsSublayers(t *testing.T) {
	runner := &scriptRunner{
		infoJSON: `{"layers":[{"name":"points"},{"name":"lines"},{"name":"areas"}]}`,
	}
	n := &Normalizer{OGR: &gis.OGR{Runner: runner}}

	dir := t.TempDir()
	kml := filepath.Join(dir, "doc.kml")
	require.NoError(t, os.WriteFile(kml, []byte("<kml/>"), 0o644))

	out, err := n.Normalize(context.Background(), kml, ".kml", dir)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "points", out[0].Layer)
	assert.Equal(t, "areas", out[2].Layer)
	assert.NotEqual(t, out[0].Path, out[1].Path)
}
