// Package pointcloud reprojects point clouds to WGS84 and downgrades
// them to LAS 1.3 containers for viewer compatibility.
package pointcloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joeblew999/plat-layers/internal/gis"
	"github.com/joeblew999/plat-layers/internal/storage"
)

// ErrMissingCRS means the input has no embedded coordinate system. Unlike
// CSV lat/lon, point cloud coordinates cannot be assumed to be WGS84.
var ErrMissingCRS = errors.New("point cloud has no embedded CRS")

// Result carries header-derived metadata and the uploaded artifact key.
// ZRange keeps the source vertical units; only horizontal coordinates
// are reprojected.
type Result struct {
	Key        string
	PointCount int64
	Bounds     [4]float64 // WGS84
	Anchor     [2]float64 // WGS84 centroid of the header bbox
	ZRange     [2]float64
	SourceEPSG int
}

type Normalizer struct {
	LAS    *gis.LAS
	GDAL   *gis.GDAL
	Bucket storage.Bucket
	Log    *slog.Logger
}

// Normalize reads the header, reprojects bbox corners and the centroid to
// WGS84, transcodes to LAS 1.3 in EPSG:4326, validates the output and
// uploads it.
func (n *Normalizer) Normalize(ctx context.Context, layerID, src, workDir string) (*Result, error) {
	hdr, err := n.LAS.Info(ctx, src)
	if err != nil {
		return nil, err
	}
	if !hdr.HasCRS() {
		return nil, ErrMissingCRS
	}

	srcSRS := hdr.CRSWKT
	if hdr.EPSG != 0 {
		srcSRS = fmt.Sprintf("EPSG:%d", hdr.EPSG)
	}
	pts := [][2]float64{
		{hdr.MinX, hdr.MinY}, {hdr.MaxX, hdr.MinY},
		{hdr.MaxX, hdr.MaxY}, {hdr.MinX, hdr.MaxY},
		{(hdr.MinX + hdr.MaxX) / 2, (hdr.MinY + hdr.MaxY) / 2},
	}
	out, err := n.GDAL.TransformPoints(ctx, srcSRS, "EPSG:4326", pts)
	if err != nil {
		return nil, err
	}
	bounds := [4]float64{out[0][0], out[0][1], out[0][0], out[0][1]}
	for _, p := range out[:4] {
		bounds[0] = min(bounds[0], p[0])
		bounds[1] = min(bounds[1], p[1])
		bounds[2] = max(bounds[2], p[0])
		bounds[3] = max(bounds[3], p[1])
	}

	dst := filepath.Join(workDir, "normalized.laz")
	if err := n.LAS.Normalize(ctx, dst, src); err != nil {
		return nil, err
	}
	// A zero exit code is not enough; read the output header back.
	check, err := n.LAS.Info(ctx, dst)
	if err != nil {
		return nil, fmt.Errorf("validating transcoded output: %w", err)
	}
	if check.PointCount == 0 {
		return nil, fmt.Errorf("transcoded output has no points")
	}

	key := storage.PointCloudKey(layerID)
	if err := n.Bucket.PutFile(ctx, key, dst, "application/octet-stream"); err != nil {
		return nil, err
	}

	if n.Log != nil {
		n.Log.Info("point cloud normalized", "layer", layerID, "points", hdr.PointCount)
	}
	return &Result{
		Key:        key,
		PointCount: hdr.PointCount,
		Bounds:     bounds,
		Anchor:     out[4],
		ZRange:     [2]float64{hdr.MinZ, hdr.MaxZ},
		SourceEPSG: hdr.EPSG,
	}, nil
}
