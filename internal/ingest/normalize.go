package ingest

import (
	"archive/zip"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-layers/internal/gis"
)

// NormalizedSource is an OGR/GDAL-openable handle the extractor and tile
// builder consume uniformly. Path is a local file except for remote
// sources, where it is a driver-prefixed connection string.
type NormalizedSource struct {
	Path   string
	Ext    string
	Layer  string // sublayer name, set when one input expands into many
	Remote bool
}

var csvLonColumns = map[string]bool{"lon": true, "long": true, "longitude": true, "lng": true, "x": true}
var csvLatColumns = map[string]bool{"lat": true, "latitude": true, "y": true}

// Normalizer converts arbitrary vector inputs into FlatGeobuf (GeoPackage
// for zipped shapefiles). All temp files it creates live under the work
// dir the caller owns and removes.
type Normalizer struct {
	OGR *gis.OGR
	Log *slog.Logger
}

// Normalize converts a local input file into one or more canonical
// sources. KML inputs expand one output per sublayer; every other format
// is one-to-one.
func (n *Normalizer) Normalize(ctx context.Context, src, ext, workDir string) ([]NormalizedSource, error) {
	switch strings.ToLower(ext) {
	case ".csv":
		out, err := n.normalizeCSV(ctx, src, workDir)
		if err != nil {
			return nil, err
		}
		return []NormalizedSource{out}, nil

	case ".kmz":
		kml, err := extractKMZ(src, workDir)
		if err != nil {
			return nil, err
		}
		return n.normalizeKML(ctx, kml, workDir)

	case ".kml":
		return n.normalizeKML(ctx, src, workDir)

	case ".zip":
		out, err := n.normalizeShapefileZip(ctx, src, workDir)
		if err != nil {
			return nil, err
		}
		return []NormalizedSource{out}, nil

	case ".geojson", ".json", ".gpkg", ".fgb", ".shp":
		return []NormalizedSource{{Path: src, Ext: strings.ToLower(ext)}}, nil

	default:
		return nil, Errf(KindInvalidSourceFormat, "unsupported vector format %q", ext)
	}
}

// normalizeCSV validates coordinate columns then converts with the
// coordinate-column hints and a forced EPSG:4326 assignment.
func (n *Normalizer) normalizeCSV(ctx context.Context, src, workDir string) (NormalizedSource, error) {
	if err := sniffCSVColumns(src); err != nil {
		return NormalizedSource{}, err
	}
	dst := filepath.Join(workDir, "normalized.fgb")
	err := n.OGR.Convert(ctx, dst, src, gis.ConvertOptions{
		Format:       "FlatGeobuf",
		AssignSRS:    "EPSG:4326",
		SpatialIndex: true,
		CSVColumns:   true,
	})
	if err != nil {
		return NormalizedSource{}, Wrap(KindToolFailed, err, "converting csv")
	}
	return NormalizedSource{Path: dst, Ext: ".fgb"}, nil
}

// normalizeKML converts each sublayer to its own FlatGeobuf.
func (n *Normalizer) normalizeKML(ctx context.Context, src, workDir string) ([]NormalizedSource, error) {
	info, err := n.OGR.Info(ctx, src)
	if err != nil {
		return nil, Wrap(KindToolFailed, err, "inspecting kml")
	}
	if len(info.Layers) == 0 {
		return nil, Errf(KindEmptyDataset, "kml has no layers")
	}

	out := make([]NormalizedSource, 0, len(info.Layers))
	for i, ly := range info.Layers {
		dst := filepath.Join(workDir, fmt.Sprintf("normalized_%d.fgb", i))
		err := n.OGR.Convert(ctx, dst, src, gis.ConvertOptions{
			Format:       "FlatGeobuf",
			SpatialIndex: true,
			Layer:        ly.Name,
		})
		if err != nil {
			return nil, Wrap(KindToolFailed, err, "converting kml layer %q", ly.Name)
		}
		out = append(out, NormalizedSource{Path: dst, Ext: ".fgb", Layer: ly.Name})
	}
	return out, nil
}

// normalizeShapefileZip unpacks the archive, finds the shapefile and
// converts it to GeoPackage.
func (n *Normalizer) normalizeShapefileZip(ctx context.Context, src, workDir string) (NormalizedSource, error) {
	shp, err := extractShapefileZip(src, workDir)
	if err != nil {
		return NormalizedSource{}, err
	}
	dst := filepath.Join(workDir, "normalized.gpkg")
	err = n.OGR.Convert(ctx, dst, shp, gis.ConvertOptions{
		Format:       "GPKG",
		SpatialIndex: true,
	})
	if err != nil {
		return NormalizedSource{}, Wrap(KindToolFailed, err, "converting shapefile")
	}
	return NormalizedSource{Path: dst, Ext: ".gpkg"}, nil
}

// sniffCSVColumns reads the header row and requires one recognized
// longitude column and one recognized latitude column, case-insensitive.
func sniffCSVColumns(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return Wrap(KindToolFailed, err, "opening csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return Wrap(KindMissingCoordinateColumns, err, "reading csv header")
	}

	var hasLon, hasLat bool
	for _, col := range header {
		c := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF")))
		if csvLonColumns[c] {
			hasLon = true
		}
		if csvLatColumns[c] {
			hasLat = true
		}
	}
	if !hasLon || !hasLat {
		return Errf(KindMissingCoordinateColumns,
			"csv header %v has no recognized longitude/latitude columns", header)
	}
	return nil
}

// extractKMZ unzips a KMZ and returns the path of the first KML inside.
func extractKMZ(src, workDir string) (string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return "", Wrap(KindInvalidSourceFormat, err, "opening kmz")
	}
	defer zr.Close()

	for _, f := range zr.File {
		if strings.EqualFold(filepath.Ext(f.Name), ".kml") {
			dst := filepath.Join(workDir, "doc.kml")
			if err := extractZipFile(f, dst); err != nil {
				return "", Wrap(KindToolFailed, err, "extracting %q", f.Name)
			}
			return dst, nil
		}
	}
	return "", Errf(KindNoKMLInArchive, "kmz contains no kml file")
}

// extractShapefileZip unpacks every member into workDir and returns the
// path of the first .shp. Sidecar files (.dbf, .shx, .prj) land next to
// it so OGR can open the triplet.
func extractShapefileZip(src, workDir string) (string, error) {
	zr, err := zip.OpenReader(src)
	if err != nil {
		return "", Wrap(KindInvalidSourceFormat, err, "opening zip")
	}
	defer zr.Close()

	dir := filepath.Join(workDir, "shp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Wrap(KindToolFailed, err, "creating extract dir")
	}

	var shpPath string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		// Flatten: zips often nest everything under one folder.
		dst := filepath.Join(dir, filepath.Base(f.Name))
		if err := extractZipFile(f, dst); err != nil {
			return "", Wrap(KindToolFailed, err, "extracting %q", f.Name)
		}
		if shpPath == "" && strings.EqualFold(filepath.Ext(f.Name), ".shp") {
			shpPath = dst
		}
	}
	if shpPath == "" {
		return "", Errf(KindNoShapefileInArchive, "zip contains no .shp file")
	}
	return shpPath, nil
}

func extractZipFile(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
