package catalog

import (
	"fmt"

	"github.com/joeblew999/plat-layers/internal/ingest"
)

// geometry-keyed default paints for freshly ingested vector layers
var defaultPaints = map[ingest.GeometryType]map[string]any{
	ingest.GeomPoint:           {"circle-radius": 5, "circle-color": "#3b82f6", "circle-opacity": 0.9},
	ingest.GeomMultiPoint:      {"circle-radius": 5, "circle-color": "#3b82f6", "circle-opacity": 0.9},
	ingest.GeomLineString:      {"line-color": "#3b82f6", "line-width": 2},
	ingest.GeomMultiLineString: {"line-color": "#3b82f6", "line-width": 2},
	ingest.GeomPolygon:         {"fill-color": "#3b82f6", "fill-opacity": 0.4, "fill-outline-color": "#1d4ed8"},
	ingest.GeomMultiPolygon:    {"fill-color": "#3b82f6", "fill-opacity": 0.4, "fill-outline-color": "#1d4ed8"},
}

// DefaultStyle builds the MapLibre layer stanza a viewer can drop into
// its style document. Rasters get a raster layer against the COG tile
// endpoint; vectors get a paint matching their geometry.
func DefaultStyle(rec ingest.LayerRecord) map[string]any {
	sourceID := "layer-" + rec.ID

	switch rec.LayerType {
	case ingest.LayerRaster:
		return map[string]any{
			"id":     rec.ID,
			"type":   "raster",
			"source": sourceID,
		}
	case ingest.LayerPointCloud:
		// Point clouds are rendered by a dedicated viewer, not MapLibre;
		// the style only anchors the extent.
		return map[string]any{
			"id":     rec.ID,
			"type":   "circle",
			"source": sourceID,
			"paint":  defaultPaints[ingest.GeomPoint],
		}
	}

	layerType := "circle"
	switch rec.Metadata.GeometryType {
	case ingest.GeomLineString, ingest.GeomMultiLineString:
		layerType = "line"
	case ingest.GeomPolygon, ingest.GeomMultiPolygon:
		layerType = "fill"
	}

	paint, ok := defaultPaints[rec.Metadata.GeometryType]
	if !ok {
		paint = defaultPaints[ingest.GeomPoint]
	}
	return map[string]any{
		"id":           rec.ID,
		"type":         layerType,
		"source":       sourceID,
		"source-layer": "layer",
		"paint":        paint,
	}
}

// SourceStanza builds the MapLibre source entry pointing at the served
// artifact.
func SourceStanza(rec ingest.LayerRecord, baseURL string) map[string]any {
	switch rec.LayerType {
	case ingest.LayerRaster:
		url := rec.RemoteURL
		if url == "" {
			url = fmt.Sprintf("%s/api/v1/layers/%s/cog", baseURL, rec.ID)
		}
		return map[string]any{"type": "raster", "url": "cog://" + url}
	default:
		url := rec.RemoteURL
		if url == "" {
			url = fmt.Sprintf("%s/api/v1/layers/%s/pmtiles", baseURL, rec.ID)
		}
		return map[string]any{"type": "vector", "url": "pmtiles://" + url}
	}
}
