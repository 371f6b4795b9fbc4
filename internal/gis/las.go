package gis

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
)

// LAS wraps the LAStools 64-bit binaries used for point cloud handling.
type LAS struct {
	Runner Runner
}

// LASHeader carries the subset of the lasinfo report the pipeline cares
// about. CRS fields stay empty when the file has no georeferencing VLR.
type LASHeader struct {
	PointCount       int64
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
	CRSWKT           string
	EPSG             int
}

// HasCRS reports whether the header carried any georeferencing information.
func (h *LASHeader) HasCRS() bool {
	return h.CRSWKT != "" || h.EPSG != 0
}

// Info parses the lasinfo64 header report for src.
func (l *LAS) Info(ctx context.Context, src string) (*LASHeader, error) {
	// lasinfo writes the report to stderr by default; -stdout moves it.
	stdout, _, err := l.Runner.Run(ctx, nil, "lasinfo64", "-i", src, "-no_check", "-stdout")
	if err != nil {
		return nil, err
	}
	return parseLASInfo(stdout), nil
}

// Normalize rewrites src as LAS 1.3 in EPSG:4326. Z values keep the source
// vertical units.
func (l *LAS) Normalize(ctx context.Context, dst, src string) error {
	_, _, err := l.Runner.Run(ctx, nil, "las2las64",
		"-i", src,
		"-set_version", "1.3",
		"-proj_epsg", "4326",
		"-o", dst)
	return err
}

func parseLASInfo(report []byte) *LASHeader {
	h := &LASHeader{}
	sc := bufio.NewScanner(bytes.NewReader(report))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "number of point records:"):
			v := strings.TrimSpace(strings.TrimPrefix(line, "number of point records:"))
			h.PointCount, _ = strconv.ParseInt(v, 10, 64)
		case strings.HasPrefix(line, "min x y z:"):
			h.MinX, h.MinY, h.MinZ = parseTriple(strings.TrimPrefix(line, "min x y z:"))
		case strings.HasPrefix(line, "max x y z:"):
			h.MaxX, h.MaxY, h.MaxZ = parseTriple(strings.TrimPrefix(line, "max x y z:"))
		case strings.Contains(line, "GeographicTypeGeoKey:") || strings.Contains(line, "ProjectedCSTypeGeoKey:"):
			if code := parseEPSGCode(line); code != 0 {
				h.EPSG = code
			}
		case strings.HasPrefix(line, "COMPD_CS[") || strings.HasPrefix(line, "PROJCS[") ||
			strings.HasPrefix(line, "GEOGCS[") || strings.HasPrefix(line, "GEOGCRS["):
			h.CRSWKT = line
		}
	}
	return h
}

func parseTriple(s string) (a, b, c float64) {
	fields := strings.Fields(s)
	if len(fields) >= 3 {
		a, _ = strconv.ParseFloat(fields[0], 64)
		b, _ = strconv.ParseFloat(fields[1], 64)
		c, _ = strconv.ParseFloat(fields[2], 64)
	}
	return
}

// parseEPSGCode pulls the numeric code out of geo key lines like
// "GeographicTypeGeoKey: 4326 (WGS 84)".
func parseEPSGCode(line string) int {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return 0
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return 0
	}
	code, _ := strconv.Atoi(fields[0])
	return code
}
