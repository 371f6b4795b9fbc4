package tiler

import (
	"fmt"
	"os"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-layers/internal/pmtiles"
)

// writeFlatArchive encodes every feature into the single zoom-0 tile and
// writes a one-entry PMTiles archive. Readers overzoom from it; there is
// no pyramid.
func writeFlatArchive(dst, geojsonPath, tileLayer string) error {
	raw, err := os.ReadFile(geojsonPath)
	if err != nil {
		return fmt.Errorf("reading geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return fmt.Errorf("parsing geojson: %w", err)
	}
	if len(fc.Features) == 0 {
		return fmt.Errorf("no features to tile")
	}

	bound := fc.Features[0].Geometry.Bound()
	for _, f := range fc.Features[1:] {
		bound = bound.Union(f.Geometry.Bound())
	}

	root := maptile.New(0, 0, 0)
	layer := mvt.NewLayer(tileLayer, fc)
	layer.Clip(root.Bound())
	layer.ProjectToTile(root)

	data, err := mvt.MarshalGzipped(mvt.Layers{layer})
	if err != nil {
		return fmt.Errorf("encoding tile: %w", err)
	}

	return pmtiles.WriteArchive(dst, []pmtiles.Tile{
		{Z: 0, X: 0, Y: 0, Data: data},
	}, pmtiles.ArchiveOptions{
		TileType:        pmtiles.Mvt,
		TileCompression: pmtiles.Gzip,
		MinZoom:         0,
		MaxZoom:         0,
		Bounds:          [4]float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
		Metadata: map[string]any{
			"name":   tileLayer,
			"format": "pbf",
			"vector_layers": []map[string]any{
				{"id": tileLayer, "minzoom": 0, "maxzoom": 0, "fields": map[string]string{}},
			},
		},
	})
}
