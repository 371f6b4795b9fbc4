package gis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records invocations and replays canned output.
type fakeRunner struct {
	calls  []call
	stdout []byte
	err    error
}

type call struct {
	name  string
	args  []string
	stdin []byte
}

func (f *fakeRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args, stdin: stdin})
	return f.stdout, nil, f.err
}

func TestOGRConvertCSV(t *testing.T) {
	fr := &fakeRunner{}
	o := &OGR{Runner: fr}

	err := o.Convert(context.Background(), "/tmp/out.fgb", "/tmp/in.csv", ConvertOptions{
		Format:       "FlatGeobuf",
		AssignSRS:    "EPSG:4326",
		SpatialIndex: true,
		CSVColumns:   true,
	})
	require.NoError(t, err)
	require.Len(t, fr.calls, 1)

	c := fr.calls[0]
	assert.Equal(t, "ogr2ogr", c.name)
	assert.Contains(t, c.args, "-oo")
	assert.Contains(t, c.args, "X_POSSIBLE_NAMES="+CSVXPossibleNames)
	assert.Contains(t, c.args, "Y_POSSIBLE_NAMES="+CSVYPossibleNames)
	assert.Contains(t, c.args, "-a_srs")
	assert.Contains(t, c.args, "SPATIAL_INDEX=YES")
	// dst before src
	assert.Equal(t, "/tmp/in.csv", c.args[len(c.args)-1])
	assert.Equal(t, "/tmp/out.fgb", c.args[len(c.args)-2])
}

func TestOGRConvertReproject(t *testing.T) {
	fr := &fakeRunner{}
	o := &OGR{Runner: fr}

	err := o.Convert(context.Background(), "/tmp/out.json", "/tmp/in.fgb", ConvertOptions{
		Format:       "GeoJSONSeq",
		TargetSRS:    "EPSG:4326",
		PromoteMulti: true,
		SkipFailures: true,
	})
	require.NoError(t, err)

	c := fr.calls[0]
	assert.Contains(t, c.args, "-t_srs")
	assert.Contains(t, c.args, "PROMOTE_TO_MULTI")
	assert.Contains(t, c.args, "-skipfailures")
	assert.NotContains(t, c.args, "-a_srs")
}

func TestOGRInfo(t *testing.T) {
	fr := &fakeRunner{stdout: []byte(`{
		"layers": [{
			"name": "parcels",
			"featureCount": 42,
			"geometryFields": [{
				"type": "MultiPolygon",
				"extent": [-1.5, 50.0, 1.5, 52.0],
				"coordinateSystem": {"wkt": "GEOGCRS[\"WGS 84\", ID[\"EPSG\",4326]]"}
			}]
		}]
	}`)}
	o := &OGR{Runner: fr}

	info, err := o.Info(context.Background(), "/tmp/in.fgb")
	require.NoError(t, err)
	require.Len(t, info.Layers, 1)

	ly := info.Layers[0]
	assert.Equal(t, "parcels", ly.Name)
	require.NotNil(t, ly.FeatureCount)
	assert.EqualValues(t, 42, *ly.FeatureCount)
	require.Len(t, ly.GeometryFields, 1)
	assert.Equal(t, []float64{-1.5, 50.0, 1.5, 52.0}, ly.GeometryFields[0].Extent)
	assert.Contains(t, ly.GeometryFields[0].CoordinateSystem.WKT, "EPSG")

	assert.Equal(t, []string{"-json", "-so", "/tmp/in.fgb"}, fr.calls[0].args)
}

func TestGDALInfoExact(t *testing.T) {
	fr := &fakeRunner{stdout: []byte(`{
		"size": [512, 256],
		"geoTransform": [10.0, 0.01, 0, 55.0, 0, -0.01],
		"coordinateSystem": {"wkt": "PROJCRS[\"ETRS89\"]"},
		"bands": [{"band": 1, "type": "Float32", "computedMin": -3.5, "computedMax": 812.25}]
	}`)}
	g := &GDAL{Runner: fr}

	info, err := g.Info(context.Background(), "/tmp/dem.tif", true)
	require.NoError(t, err)

	assert.Equal(t, []string{"-json", "-mm", "/tmp/dem.tif"}, fr.calls[0].args)
	assert.Equal(t, []int{512, 256}, info.Size)
	require.Len(t, info.Bands, 1)
	require.NotNil(t, info.Bands[0].ComputedMin)
	assert.Equal(t, -3.5, *info.Bands[0].ComputedMin)
	assert.Equal(t, 812.25, *info.Bands[0].ComputedMax)
}

func TestGDALTransformPoints(t *testing.T) {
	fr := &fakeRunner{stdout: []byte("-1.234 51.5 0\n0.567 52.25 0\n")}
	g := &GDAL{Runner: fr}

	out, err := g.TransformPoints(context.Background(), "EPSG:27700", "EPSG:4326",
		[][2]float64{{400000, 100000}, {450000, 180000}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, [2]float64{-1.234, 51.5}, out[0])
	assert.Equal(t, [2]float64{0.567, 52.25}, out[1])
	assert.Equal(t, []byte("400000 100000\n450000 180000\n"), fr.calls[0].stdin)
}

func TestGDALTransformPointsCountMismatch(t *testing.T) {
	fr := &fakeRunner{stdout: []byte("-1.0 51.0 0\n")}
	g := &GDAL{Runner: fr}

	_, err := g.TransformPoints(context.Background(), "EPSG:27700", "EPSG:4326",
		[][2]float64{{1, 2}, {3, 4}})
	require.Error(t, err)
}

func TestTippecanoeArgs(t *testing.T) {
	fr := &fakeRunner{}
	tc := &Tippecanoe{Runner: fr}

	err := tc.Build(context.Background(), "/tmp/out.pmtiles", "/tmp/in.json", TippecanoeOptions{
		ZoomGuess: true,
		Layer:     "roads",
	})
	require.NoError(t, err)

	c := fr.calls[0]
	assert.Equal(t, "tippecanoe", c.name)
	assert.Contains(t, c.args, "-q")
	assert.Contains(t, c.args, "-zg")
	assert.Contains(t, c.args, "--drop-densest-as-needed")
	assert.Equal(t, []string{"-l", "roads"}, c.args[2:4])
}

func TestTippecanoeNoZoomGuess(t *testing.T) {
	fr := &fakeRunner{}
	tc := &Tippecanoe{Runner: fr}

	err := tc.Build(context.Background(), "/tmp/out.pmtiles", "/tmp/in.json", TippecanoeOptions{})
	require.NoError(t, err)
	assert.NotContains(t, fr.calls[0].args, "-zg")
}

func TestParseLASInfo(t *testing.T) {
	report := []byte(`lasinfo64 (240416) report for '/tmp/cloud.laz'
reporting all LAS header entries:
  version major.minor:        1.2
  number of point records:    1308675
  min x y z:                  419500.00 6338000.00 121.97
  max x y z:                  420499.99 6339000.00 198.04
variable length header record 1 of 1:
  GeoKeyDirectoryTag version 1.1.0 number of keys 4
    key 3072 tiff_tag_location 0 count 1 value_offset 25832 - ProjectedCSTypeGeoKey: 25832 (ETRS89 / UTM 32N)
`)
	h := parseLASInfo(report)
	assert.EqualValues(t, 1308675, h.PointCount)
	assert.Equal(t, 419500.0, h.MinX)
	assert.Equal(t, 198.04, h.MaxZ)
	assert.Equal(t, 25832, h.EPSG)
	assert.True(t, h.HasCRS())
}

func TestParseLASInfoNoCRS(t *testing.T) {
	report := []byte(`  number of point records:    10
  min x y z:                  0 0 0
  max x y z:                  1 1 1
`)
	h := parseLASInfo(report)
	assert.False(t, h.HasCRS())
	assert.EqualValues(t, 10, h.PointCount)
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Tool: "ogr2ogr", Args: []string{"-f", "FlatGeobuf"}, Code: 1, Stderr: "ERROR 1: boom"}
	assert.Contains(t, err.Error(), "ogr2ogr")
	assert.Contains(t, err.Error(), "boom")
}
