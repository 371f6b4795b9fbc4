// Package raster repacks rasters into Cloud-Optimized GeoTIFFs for
// range-request serving. Builds are lazy: the serving route triggers the
// first build and the stored artifact key short-circuits later requests.
package raster

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joeblew999/plat-layers/internal/gis"
	"github.com/joeblew999/plat-layers/internal/storage"
)

// ServingSRS is the web mercator projection tiles are served in.
const ServingSRS = "EPSG:3857"

// Artifact describes the uploaded COG.
type Artifact struct {
	Key string
	// SingleBand marks output the client must color-ramp using the
	// layer's stored band statistics.
	SingleBand bool
}

type Builder struct {
	GDAL   *gis.GDAL
	Bucket storage.Bucket
	Log    *slog.Logger
}

// Build converts src into a COG and uploads it under the layer's key.
// Reprojection and RGB-expansion failures fall back rather than abort:
// the output may stay in the source projection or stay single-band, but
// a usable artifact is always produced unless the final repack fails.
func (b *Builder) Build(ctx context.Context, layerID, src, workDir string) (*Artifact, error) {
	info, err := b.GDAL.Info(ctx, src, false)
	if err != nil {
		return nil, err
	}

	warped := filepath.Join(workDir, "warped.tif")
	if err := b.GDAL.Warp(ctx, warped, src, ServingSRS); err != nil {
		if b.Log != nil {
			b.Log.Warn("reprojection failed, serving in source projection", "layer", layerID, "error", err)
		}
		warped = src
	}

	cogSrc := warped
	singleBand := false
	if len(info.Bands) == 1 {
		expanded := filepath.Join(workDir, "rgb.tif")
		if err := b.GDAL.ExpandRGB(ctx, expanded, warped); err != nil {
			if b.Log != nil {
				b.Log.Warn("rgb expansion failed, keeping single band", "layer", layerID, "error", err)
			}
			singleBand = true
		} else {
			cogSrc = expanded
		}
	}

	out := filepath.Join(workDir, "out.cog.tif")
	var extra []string
	if singleBand {
		extra = []string{"-ot", "Float32", "-co", "COMPRESS=LZW"}
	} else {
		extra = []string{"-co", "COMPRESS=JPEG", "-co", "QUALITY=85"}
	}
	if err := b.GDAL.TranslateCOG(ctx, out, cogSrc, extra...); err != nil {
		return nil, err
	}

	key := storage.COGKey(layerID)
	if err := b.Bucket.PutFile(ctx, key, out, "image/tiff"); err != nil {
		return nil, err
	}
	os.Remove(out)
	return &Artifact{Key: key, SingleBand: singleBand}, nil
}
