// Package tiler builds PMTiles archives from normalized vector sources.
//
// The normal path shells out to tippecanoe for a full zoom pyramid. Data
// with a single unique feature location trips tippecanoe's zoom guesser,
// so those sources take a pure Go fallback that writes a flat zoom-0
// archive instead.
package tiler

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-layers/internal/gis"
)

// Options selects the source sublayer and names the tile layer.
type Options struct {
	Layer        string // OGR sublayer to convert, empty for the only one
	TileLayer    string // layer name inside the MVT tiles
	FeatureCount int64
}

// Builder converts a vector source into a PMTiles archive.
type Builder struct {
	OGR        *gis.OGR
	Tippecanoe *gis.Tippecanoe
	Log        *slog.Logger
}

// Build reprojects src to WGS84 GeoJSON, then tiles it. workDir holds the
// intermediate GeoJSON; the caller owns and removes it.
func (b *Builder) Build(ctx context.Context, dst, src, workDir string, opts Options) error {
	geojsonPath := filepath.Join(workDir, "tiles.geojson")
	err := b.OGR.Convert(ctx, geojsonPath, src, gis.ConvertOptions{
		Format:       "GeoJSON",
		TargetSRS:    "EPSG:4326",
		PromoteMulti: true,
		SkipFailures: true,
		Layer:        opts.Layer,
	})
	if err != nil {
		return err
	}

	tileLayer := opts.TileLayer
	if tileLayer == "" {
		tileLayer = "layer"
	}

	err = b.Tippecanoe.Build(ctx, dst, geojsonPath, gis.TippecanoeOptions{
		ZoomGuess: opts.FeatureCount > 1,
		Layer:     tileLayer,
	})
	if err == nil {
		return nil
	}
	if !isSingleLocationError(err) {
		return err
	}

	if b.Log != nil {
		b.Log.Info("single feature location, writing flat archive", "src", src)
	}
	return writeFlatArchive(dst, geojsonPath, tileLayer)
}

// isSingleLocationError recognizes tippecanoe's refusal to guess a max
// zoom for data with fewer than two distinct feature locations.
func isSingleLocationError(err error) bool {
	var exit *gis.ExitError
	if !errors.As(err, &exit) {
		return false
	}
	return strings.Contains(exit.Stderr, "distinct feature locations")
}
