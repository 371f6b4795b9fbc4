package ingest

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-layers/internal/gis"
)

// GeometryType is the canonical lowercase geometry name stored on a layer.
type GeometryType string

const (
	GeomPoint           GeometryType = "point"
	GeomMultiPoint      GeometryType = "multipoint"
	GeomLineString      GeometryType = "linestring"
	GeomMultiLineString GeometryType = "multilinestring"
	GeomPolygon         GeometryType = "polygon"
	GeomMultiPolygon    GeometryType = "multipolygon"
	GeomUnknown         GeometryType = "unknown"
)

// Bounds is a WGS84 bounding box: [minLon, minLat, maxLon, maxLat].
type Bounds [4]float64

// Valid reports whether the box is ordered and within WGS84 range.
func (b Bounds) Valid() bool {
	return b[0] <= b[2] && b[1] <= b[3] &&
		b[0] >= -180 && b[2] <= 180 && b[1] >= -90 && b[3] <= 90
}

// RasterStats carries band-1 min/max for client-side color ramps.
type RasterStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// ExtractionIssue records a soft failure during metadata extraction. It is
// informational: ingestion continues with the affected fields left null.
type ExtractionIssue struct {
	Stage  string
	Detail string
}

// Metadata is the extracted facts about a layer. Bounds, when present,
// are always WGS84 regardless of the source CRS.
type Metadata struct {
	GeometryType     GeometryType
	FeatureCount     *int64
	Bounds           *Bounds
	OriginalSRID     *int
	RasterStats      *RasterStats
	ZRange           *[2]float64
	OriginalFilename string
	OriginalFormat   string
	ConvertedTo      string
	Issues           []ExtractionIssue
}

// Extractor computes layer metadata from a normalized source. Tool
// failures degrade the result instead of aborting ingestion.
type Extractor struct {
	OGR  *gis.OGR
	GDAL *gis.GDAL
	Log  *slog.Logger
}

// ExtractVector reads geometry type, feature count and WGS84 bounds from
// a vector source. The first feature's actual geometry type wins over the
// schema-declared type, which is often a generic "Unknown".
func (e *Extractor) ExtractVector(ctx context.Context, src NormalizedSource) Metadata {
	md := Metadata{GeometryType: GeomUnknown}

	info, err := e.OGR.Info(ctx, src.Path)
	if err != nil {
		e.soft(&md, "inspect", err)
		return md
	}
	layer := pickLayer(info, src.Layer)
	if layer == nil {
		e.soft(&md, "inspect", Errf(KindToolFailed, "source reports no layers"))
		return md
	}

	md.FeatureCount = layer.FeatureCount

	var wkt string
	var extent []float64
	if len(layer.GeometryFields) > 0 {
		gf := layer.GeometryFields[0]
		md.GeometryType = canonicalGeometryType(gf.Type)
		extent = gf.Extent
		if gf.CoordinateSystem != nil {
			wkt = gf.CoordinateSystem.WKT
		}
	}

	if layer.FeatureCount != nil && *layer.FeatureCount > 0 {
		if gt, err := e.sampleGeometryType(ctx, src.Path); err != nil {
			e.soft(&md, "sample", err)
		} else if gt != GeomUnknown {
			md.GeometryType = gt
		}
	}

	if srid := parseEPSG(wkt); srid != 0 {
		md.OriginalSRID = &srid
	}

	if len(extent) == 4 {
		b, err := e.toWGS84(ctx, Bounds{extent[0], extent[1], extent[2], extent[3]}, wkt)
		if err != nil {
			e.soft(&md, "reproject", err)
		} else {
			md.Bounds = &b
		}
	} else {
		// WFS services routinely report no extent; expected, not an error.
		md.Issues = append(md.Issues, ExtractionIssue{Stage: "extent", Detail: "source reports no extent"})
	}
	return md
}

// ExtractRaster derives bounds from the affine geotransform and, for
// single-band rasters, exact band statistics.
func (e *Extractor) ExtractRaster(ctx context.Context, path string) Metadata {
	md := Metadata{GeometryType: GeomUnknown}

	info, err := e.GDAL.Info(ctx, path, false)
	if err != nil {
		e.soft(&md, "inspect", err)
		return md
	}

	var wkt string
	if info.CoordinateSystem != nil {
		wkt = info.CoordinateSystem.WKT
	}
	if srid := parseEPSG(wkt); srid != 0 {
		md.OriginalSRID = &srid
	}

	if len(info.GeoTransform) == 6 && len(info.Size) == 2 {
		raw := geotransformBounds(info.GeoTransform, info.Size[0], info.Size[1])
		b, err := e.toWGS84(ctx, raw, wkt)
		if err != nil {
			e.soft(&md, "reproject", err)
		} else {
			md.Bounds = &b
		}
	}

	if len(info.Bands) == 1 {
		exact, err := e.GDAL.Info(ctx, path, true)
		if err != nil {
			e.soft(&md, "stats", err)
		} else if len(exact.Bands) == 1 && exact.Bands[0].ComputedMin != nil && exact.Bands[0].ComputedMax != nil {
			md.RasterStats = &RasterStats{Min: *exact.Bands[0].ComputedMin, Max: *exact.Bands[0].ComputedMax}
		}
	}
	return md
}

// sampleGeometryType reads the first feature and reports its concrete
// geometry type.
func (e *Extractor) sampleGeometryType(ctx context.Context, path string) (GeometryType, error) {
	raw, err := e.OGR.FirstFeatureGeoJSON(ctx, path)
	if err != nil {
		return GeomUnknown, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return GeomUnknown, err
	}
	if len(fc.Features) == 0 || fc.Features[0].Geometry == nil {
		return GeomUnknown, nil
	}
	return canonicalGeometryType(string(fc.Features[0].Geometry.GeoJSONType())), nil
}

// toWGS84 reprojects a bounding box's corners when the source CRS is not
// already WGS84. The check is by name containment, never by attempting a
// transform with an empty CRS.
func (e *Extractor) toWGS84(ctx context.Context, b Bounds, wkt string) (Bounds, error) {
	if wkt == "" || isWGS84(wkt) {
		return b, nil
	}
	corners := [][2]float64{
		{b[0], b[1]}, {b[2], b[1]}, {b[2], b[3]}, {b[0], b[3]},
	}
	out, err := e.GDAL.TransformPoints(ctx, wkt, "EPSG:4326", corners)
	if err != nil {
		return Bounds{}, err
	}
	res := Bounds{out[0][0], out[0][1], out[0][0], out[0][1]}
	for _, p := range out[1:] {
		res[0] = min(res[0], p[0])
		res[1] = min(res[1], p[1])
		res[2] = max(res[2], p[0])
		res[3] = max(res[3], p[1])
	}
	return res, nil
}

func (e *Extractor) soft(md *Metadata, stage string, err error) {
	if e.Log != nil {
		e.Log.Warn("metadata extraction degraded", "stage", stage, "error", err)
	}
	md.Issues = append(md.Issues, ExtractionIssue{Stage: stage, Detail: err.Error()})
}

func pickLayer(info *gis.DatasetInfo, name string) *gis.LayerInfo {
	if len(info.Layers) == 0 {
		return nil
	}
	if name != "" {
		for i := range info.Layers {
			if info.Layers[i].Name == name {
				return &info.Layers[i]
			}
		}
	}
	return &info.Layers[0]
}

// geotransformBounds computes the envelope of the four pixel-space corners
// through the affine transform, honoring rotation/skew terms.
func geotransformBounds(gt []float64, width, height int) Bounds {
	corner := func(px, py float64) (float64, float64) {
		x := gt[0] + px*gt[1] + py*gt[2]
		y := gt[3] + px*gt[4] + py*gt[5]
		return x, y
	}
	w, h := float64(width), float64(height)
	xs := make([]float64, 0, 4)
	ys := make([]float64, 0, 4)
	for _, p := range [][2]float64{{0, 0}, {w, 0}, {w, h}, {0, h}} {
		x, y := corner(p[0], p[1])
		xs = append(xs, x)
		ys = append(ys, y)
	}
	b := Bounds{xs[0], ys[0], xs[0], ys[0]}
	for i := 1; i < 4; i++ {
		b[0] = min(b[0], xs[i])
		b[1] = min(b[1], ys[i])
		b[2] = max(b[2], xs[i])
		b[3] = max(b[3], ys[i])
	}
	return b
}

// canonicalGeometryType maps OGR and GeoJSON geometry names, with or
// without spaces and dimension prefixes, onto the stored vocabulary.
func canonicalGeometryType(s string) GeometryType {
	n := strings.ToLower(s)
	n = strings.TrimPrefix(n, "3d ")
	n = strings.TrimPrefix(n, "measured ")
	n = strings.ReplaceAll(n, " ", "")
	switch {
	case strings.HasPrefix(n, "multipoint"):
		return GeomMultiPoint
	case strings.HasPrefix(n, "point"):
		return GeomPoint
	case strings.HasPrefix(n, "multilinestring"):
		return GeomMultiLineString
	case strings.HasPrefix(n, "linestring"):
		return GeomLineString
	case strings.HasPrefix(n, "multipolygon"):
		return GeomMultiPolygon
	case strings.HasPrefix(n, "polygon"):
		return GeomPolygon
	default:
		return GeomUnknown
	}
}

// isWGS84 matches the CRS name, not its parameters. An empty CRS never
// counts as WGS84.
func isWGS84(wkt string) bool {
	return strings.Contains(wkt, "EPSG:4326") ||
		strings.Contains(wkt, "WGS84") ||
		strings.Contains(wkt, "WGS 84") ||
		strings.Contains(wkt, `ID["EPSG",4326]`) ||
		strings.Contains(wkt, `AUTHORITY["EPSG","4326"]`)
}

var epsgRe = regexp.MustCompile(`(?:ID\["EPSG",(\d+)\]|AUTHORITY\["EPSG","(\d+)"\])`)

// parseEPSG pulls the authority code from a CRS WKT string. The last
// match is the whole-CRS identifier; earlier ones belong to datum or
// axis sub-nodes.
func parseEPSG(wkt string) int {
	all := epsgRe.FindAllStringSubmatch(wkt, -1)
	if len(all) == 0 {
		return 0
	}
	m := all[len(all)-1]
	for _, g := range m[1:] {
		if g != "" {
			code, _ := strconv.Atoi(g)
			return code
		}
	}
	return 0
}
