package raster

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-layers/internal/gis"
	"github.com/joeblew999/plat-layers/internal/storage"
)

// cogRunner fakes the GDAL binaries. failWarp and failExpand force the
// fallback paths.
type cogRunner struct {
	bands      int
	failWarp   bool
	failExpand bool
	calls      [][]string
}

func (r *cogRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	switch name {
	case "gdalinfo":
		bands := `[{"band":1}]`
		if r.bands == 3 {
			bands = `[{"band":1},{"band":2},{"band":3}]`
		}
		return []byte(`{"size":[10,10],"geoTransform":[0,1,0,10,0,-1],"bands":` + bands + `}`), nil, nil
	case "gdalwarp":
		if r.failWarp {
			return nil, nil, &gis.ExitError{Tool: name, Code: 1, Stderr: "no transform"}
		}
		os.WriteFile(args[len(args)-1], []byte("warped"), 0o644)
	case "gdal_translate":
		for _, a := range args {
			if a == "rgb" && r.failExpand {
				return nil, nil, &gis.ExitError{Tool: name, Code: 1, Stderr: "not paletted"}
			}
		}
		os.WriteFile(args[len(args)-1], []byte("tiff"), 0o644)
	}
	return nil, nil, nil
}

func (r *cogRunner) args(tool string) []string {
	for _, c := range r.calls {
		if c[0] == tool {
			return c[1:]
		}
	}
	return nil
}

func newCOGBuilder(t *testing.T, r gis.Runner) (*Builder, *storage.LocalBucket) {
	t.Helper()
	bucket, err := storage.NewLocalBucket(t.TempDir())
	require.NoError(t, err)
	return &Builder{
		GDAL:   &gis.GDAL{Runner: r},
		Bucket: bucket,
		Log:    slog.New(slog.DiscardHandler),
	}, bucket
}

func TestBuildRGB(t *testing.T) {
	runner := &cogRunner{bands: 3}
	b, bucket := newCOGBuilder(t, runner)

	art, err := b.Build(context.Background(), "Labc", "/tmp/src.tif", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "cog/layer/Labc.cog.tif", art.Key)
	assert.False(t, art.SingleBand)

	_, err = bucket.Head(context.Background(), art.Key)
	assert.NoError(t, err)

	// RGB output uses lossy compression.
	joined := strings.Join(runner.args("gdal_translate"), " ")
	assert.Contains(t, joined, "COMPRESS=JPEG")
	assert.Contains(t, joined, "BLOCKSIZE=256")
}

func TestBuildSingleBandExpandFallback(t *testing.T) {
	runner := &cogRunner{bands: 1, failExpand: true}
	b, _ := newCOGBuilder(t, runner)

	art, err := b.Build(context.Background(), "Labc", "/tmp/dem.tif", t.TempDir())
	require.NoError(t, err)
	assert.True(t, art.SingleBand, "failed RGB expansion keeps single band")

	var cogArgs string
	for _, c := range runner.calls {
		if c[0] == "gdal_translate" {
			cogArgs = strings.Join(c[1:], " ")
		}
	}
	assert.Contains(t, cogArgs, "COMPRESS=LZW")
	assert.Contains(t, cogArgs, "Float32")
}

func TestBuildWarpFallback(t *testing.T) {
	runner := &cogRunner{bands: 3, failWarp: true}
	b, _ := newCOGBuilder(t, runner)

	art, err := b.Build(context.Background(), "Labc", "/tmp/src.tif", t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, art)

	// The repack ran against the original source path.
	args := runner.args("gdal_translate")
	assert.Contains(t, args, "/tmp/src.tif")
}

func TestBuildSurfacesProbeFailure(t *testing.T) {
	b, _ := newCOGBuilder(t, failingRunner{})
	_, err := b.Build(context.Background(), "Labc", "/tmp/src.tif", t.TempDir())
	require.Error(t, err)
}

type failingRunner struct{}

func (failingRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, []byte, error) {
	return nil, nil, errors.New("tool not installed")
}
