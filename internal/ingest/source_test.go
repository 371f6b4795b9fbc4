package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyCSVVirtual(t *testing.T) {
	src, err := Classify("CSV:/vsicurl/https://example.com/export.csv", DeclaredSheets)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteCSV, src.Kind)
	assert.Equal(t, LayerVector, src.LayerType)
}

func TestClassifyCSVRequiresSheets(t *testing.T) {
	_, err := Classify("CSV:/vsicurl/https://example.com/export.csv", DeclaredVector)
	require.Error(t, err)
	assert.Equal(t, KindInvalidSourceFormat, KindOf(err))
}

func TestClassifyWFS(t *testing.T) {
	src, err := Classify("WFS:https://geo.example.com/ows?SERVICE=WFS&REQUEST=GetFeature&TYPENAME=roads", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteWFS, src.Kind)
}

func TestClassifyWFSPrefixAloneIsNotEnough(t *testing.T) {
	// Missing SERVICE/REQUEST parameters: not a WFS GetFeature URL, and
	// the WFS: prefix breaks the http(s) requirement of the generic path.
	_, err := Classify("WFS:https://geo.example.com/ows", DeclaredVector)
	require.Error(t, err)
	assert.Equal(t, KindInvalidURLFormat, KindOf(err))
}

func TestClassifyESRI(t *testing.T) {
	for _, url := range []string{
		"ESRIJSON:https://gis.example.com/arcgis/rest/services/x/FeatureServer/0/query?f=json",
		"https://gis.example.com/arcgis/rest/services/x/FeatureServer/0/query?f=json",
		"https://gis.example.com/arcgis/rest/services/x/MapServer/3/query",
	} {
		src, err := Classify(url, DeclaredVector)
		require.NoError(t, err, url)
		assert.Equal(t, SourceRemoteESRI, src.Kind, url)
	}
}

func TestClassifyESRIServiceWithoutQueryIsGeneric(t *testing.T) {
	src, err := Classify("https://gis.example.com/arcgis/rest/services/x/FeatureServer/0", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteHTTP, src.Kind)
}

func TestClassifyCloudNative(t *testing.T) {
	src, err := Classify("https://tiles.example.com/basemap.pmtiles", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteCloudNative, src.Kind)
	assert.Equal(t, CloudNativePMTiles, src.CloudNative)
	assert.Equal(t, LayerVector, src.LayerType)

	src, err = Classify("https://data.example.com/dem.tif?v=2", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteCloudNative, src.Kind)
	assert.Equal(t, CloudNativeCOG, src.CloudNative)
	assert.Equal(t, LayerRaster, src.LayerType)
}

func TestClassifyGenericHTTP(t *testing.T) {
	src, err := Classify("https://example.com/data.geojson", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, SourceRemoteHTTP, src.Kind)
	assert.Equal(t, LayerVector, src.LayerType)
}

func TestClassifyRejectsNonHTTP(t *testing.T) {
	for _, url := range []string{"ftp://example.com/data.zip", "file:///etc/passwd", "not a url"} {
		_, err := Classify(url, DeclaredVector)
		require.Error(t, err, url)
		assert.Equal(t, KindInvalidURLFormat, KindOf(err), url)
	}
}

func TestClassifyLayerTypeInference(t *testing.T) {
	// Declared raster wins regardless of extension.
	src, err := Classify("https://example.com/blob", DeclaredRaster)
	require.NoError(t, err)
	assert.Equal(t, LayerRaster, src.LayerType)

	// Generic vector declaration falls back to the extension.
	src, err = Classify("https://example.com/photo.jpg", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, LayerRaster, src.LayerType)

	src, err = Classify("https://example.com/data.gpkg", DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, LayerVector, src.LayerType)
}

func TestClassifyIdempotent(t *testing.T) {
	url := "https://gis.example.com/arcgis/rest/services/x/FeatureServer/0/query"
	first, err := Classify(url, DeclaredVector)
	require.NoError(t, err)
	second, err := Classify(url, DeclaredVector)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
