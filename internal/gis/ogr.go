package gis

import (
	"context"
	"encoding/json"
	"fmt"
)

// CSV coordinate column candidates accepted by the OGR CSV driver options.
const (
	CSVXPossibleNames = "lon,long,longitude,lng,x"
	CSVYPossibleNames = "lat,latitude,y"
)

// OGR wraps ogr2ogr and ogrinfo.
type OGR struct {
	Runner Runner
}

// ConvertOptions configures an ogr2ogr conversion.
type ConvertOptions struct {
	Format       string // output driver, e.g. "FlatGeobuf", "GPKG", "GeoJSON"
	TargetSRS    string // -t_srs, empty to keep source CRS
	AssignSRS    string // -a_srs, empty to keep source CRS
	Layer        string // restrict conversion to a single source layer
	SpatialIndex bool   // -lco SPATIAL_INDEX=YES
	PromoteMulti bool   // -nlt PROMOTE_TO_MULTI
	SkipFailures bool   // drop unconvertible features instead of aborting
	CSVColumns   bool   // enable X/Y column sniffing for CSV sources
	Overwrite    bool
}

// Convert runs ogr2ogr from src to dst with the given options.
func (o *OGR) Convert(ctx context.Context, dst, src string, opts ConvertOptions) error {
	args := []string{}
	if opts.Overwrite {
		args = append(args, "-overwrite")
	}
	args = append(args, "-f", opts.Format)
	if opts.TargetSRS != "" {
		args = append(args, "-t_srs", opts.TargetSRS)
	}
	if opts.AssignSRS != "" {
		args = append(args, "-a_srs", opts.AssignSRS)
	}
	if opts.PromoteMulti {
		args = append(args, "-nlt", "PROMOTE_TO_MULTI")
	}
	if opts.SkipFailures {
		args = append(args, "-skipfailures")
	}
	if opts.CSVColumns {
		args = append(args,
			"-oo", "X_POSSIBLE_NAMES="+CSVXPossibleNames,
			"-oo", "Y_POSSIBLE_NAMES="+CSVYPossibleNames,
			"-oo", "KEEP_GEOM_COLUMNS=NO",
		)
	}
	if opts.SpatialIndex {
		args = append(args, "-lco", "SPATIAL_INDEX=YES")
	}
	args = append(args, dst, src)
	if opts.Layer != "" {
		args = append(args, opts.Layer)
	}

	_, _, err := o.Runner.Run(ctx, nil, "ogr2ogr", args...)
	return err
}

// DatasetInfo is the subset of `ogrinfo -json` output the pipeline reads.
type DatasetInfo struct {
	Layers []LayerInfo `json:"layers"`
}

// LayerInfo describes one layer of an OGR dataset.
type LayerInfo struct {
	Name           string          `json:"name"`
	FeatureCount   *int64          `json:"featureCount"`
	GeometryFields []GeometryField `json:"geometryFields"`
}

// GeometryField carries geometry type, extent and CRS for a layer.
type GeometryField struct {
	Type             string     `json:"type"`
	Extent           []float64  `json:"extent"` // [xmin, ymin, xmax, ymax]
	CoordinateSystem *CoordInfo `json:"coordinateSystem"`
}

// CoordInfo holds the CRS as reported by ogrinfo/gdalinfo.
type CoordInfo struct {
	WKT string `json:"wkt"`
}

// Info runs `ogrinfo -json -so` over an OGR source and parses the result.
func (o *OGR) Info(ctx context.Context, src string) (*DatasetInfo, error) {
	stdout, _, err := o.Runner.Run(ctx, nil, "ogrinfo", "-json", "-so", src)
	if err != nil {
		return nil, err
	}
	var info DatasetInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parsing ogrinfo output: %w", err)
	}
	return &info, nil
}

// FirstFeatureGeoJSON converts up to one feature of src to GeoJSON on stdout.
// Used to sample the actual geometry type when the schema declares a generic
// one.
func (o *OGR) FirstFeatureGeoJSON(ctx context.Context, src string) ([]byte, error) {
	stdout, _, err := o.Runner.Run(ctx, nil, "ogr2ogr",
		"-f", "GeoJSON", "-limit", "1", "/vsistdout/", src)
	if err != nil {
		return nil, err
	}
	return stdout, nil
}
