package gis

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// GDAL wraps gdalinfo, gdalwarp, gdal_translate and gdaltransform.
type GDAL struct {
	Runner Runner
}

// RasterInfo is the subset of `gdalinfo -json` output the pipeline reads.
type RasterInfo struct {
	Size             []int      `json:"size"`         // [width, height]
	GeoTransform     []float64  `json:"geoTransform"` // affine, 6 terms
	CoordinateSystem *CoordInfo `json:"coordinateSystem"`
	Bands            []BandInfo `json:"bands"`
}

// BandInfo describes one raster band. ComputedMin/Max are present when
// gdalinfo ran with -mm (exact statistics, not approximated).
type BandInfo struct {
	Band        int      `json:"band"`
	Type        string   `json:"type"`
	ComputedMin *float64 `json:"computedMin"`
	ComputedMax *float64 `json:"computedMax"`
}

// Info runs `gdalinfo -json` over a raster. With exact set, band min/max are
// computed over every pixel.
func (g *GDAL) Info(ctx context.Context, src string, exact bool) (*RasterInfo, error) {
	args := []string{"-json"}
	if exact {
		args = append(args, "-mm")
	}
	args = append(args, src)

	stdout, _, err := g.Runner.Run(ctx, nil, "gdalinfo", args...)
	if err != nil {
		return nil, err
	}
	var info RasterInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parsing gdalinfo output: %w", err)
	}
	return &info, nil
}

// Warp reprojects src into dst with bilinear resampling.
func (g *GDAL) Warp(ctx context.Context, dst, src, targetSRS string) error {
	_, _, err := g.Runner.Run(ctx, nil, "gdalwarp",
		"-t_srs", targetSRS,
		"-r", "bilinear",
		src, dst)
	return err
}

// ExpandRGB converts a paletted single-band raster to RGB.
func (g *GDAL) ExpandRGB(ctx context.Context, dst, src string) error {
	_, _, err := g.Runner.Run(ctx, nil, "gdal_translate",
		"-of", "GTiff",
		"-expand", "rgb",
		src, dst)
	return err
}

// TranslateCOG repacks src into a Cloud-Optimized GeoTIFF. extraArgs carries
// compression/type flags chosen by the caller.
func (g *GDAL) TranslateCOG(ctx context.Context, dst, src string, extraArgs ...string) error {
	args := []string{"-of", "COG", "-co", "BLOCKSIZE=256"}
	args = append(args, extraArgs...)
	args = append(args, "-co", "OVERVIEWS=AUTO", src, dst)
	_, _, err := g.Runner.Run(ctx, nil, "gdal_translate", args...)
	return err
}

// TransformPoints reprojects x/y pairs from srcSRS to dstSRS via
// gdaltransform with x,y axis order on both sides. Points are fed one per
// line on stdin; z output is discarded.
func (g *GDAL) TransformPoints(ctx context.Context, srcSRS, dstSRS string, pts [][2]float64) ([][2]float64, error) {
	var in bytes.Buffer
	for _, p := range pts {
		fmt.Fprintf(&in, "%g %g\n", p[0], p[1])
	}

	stdout, _, err := g.Runner.Run(ctx, in.Bytes(), "gdaltransform",
		"-s_srs", srcSRS,
		"-t_srs", dstSRS,
		"-output_xy")
	if err != nil {
		return nil, err
	}

	out := make([][2]float64, 0, len(pts))
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("parsing gdaltransform output %q", sc.Text())
		}
		out = append(out, [2]float64{x, y})
	}
	if len(out) != len(pts) {
		return nil, fmt.Errorf("gdaltransform returned %d points, want %d", len(out), len(pts))
	}
	return out, nil
}
