// Package storage abstracts the object store holding layer sources and
// derived artifacts. Keys are flat slash-separated paths; artifacts are
// immutable once written, regeneration always targets a fresh key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object without its body.
type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
}

// Bucket is the object store surface the pipeline needs. Get returns an
// io.ReadCloser the caller must close; offset/length implement byte ranges
// with length < 0 meaning "to end of object".
type Bucket interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
	PutFile(ctx context.Context, key, path, contentType string) error
	Get(ctx context.Context, key string, offset, length int64) (io.ReadCloser, *ObjectInfo, error)
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// PresignGet returns a URL that grants temporary read access, or ""
	// when the backend has no URL scheme (local directories).
	PresignGet(ctx context.Context, key string) (string, error)
}

// Object keys for the artifacts a layer owns.

func UploadKey(layerID, ext string) string {
	return "uploads/" + layerID + ext
}

func SourceKey(layerID string) string {
	return "sources/layer/" + layerID + ".fgb"
}

func PMTilesKey(layerID string) string {
	return "pmtiles/layer/" + layerID + ".pmtiles"
}

func COGKey(layerID string) string {
	return "cog/layer/" + layerID + ".cog.tif"
}

func PointCloudKey(layerID string) string {
	return "pointcloud/layer/" + layerID + ".laz"
}

// ContentTypeForKey guesses a MIME type from the artifact extension.
func ContentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".pmtiles"):
		return "application/octet-stream"
	case strings.HasSuffix(key, ".tif"):
		return "image/tiff"
	case strings.HasSuffix(key, ".laz"), strings.HasSuffix(key, ".las"):
		return "application/octet-stream"
	case strings.HasSuffix(key, ".fgb"):
		return "application/octet-stream"
	case strings.HasSuffix(key, ".json"), strings.HasSuffix(key, ".geojson"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("invalid object key %q", key)
	}
	return nil
}
