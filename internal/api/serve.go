package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joeblew999/plat-layers/internal/catalog"
	"github.com/joeblew999/plat-layers/internal/storage"
)

// ArtifactHandler streams layer artifacts (PMTiles, COG, LAZ, source
// FlatGeobuf) with byte-range support so map clients can fetch tile
// directories and raster windows without pulling whole files.
type ArtifactHandler struct {
	svc     *Services
	tempDir string

	// cogMu serializes lazy COG builds. A cross-process duplicate build
	// is tolerated: both writers produce the same object and the key
	// attach is a single merge patch.
	cogMu sync.Mutex
}

func NewArtifactHandler(svc *Services, tempDir string) *ArtifactHandler {
	return &ArtifactHandler{svc: svc, tempDir: tempDir}
}

// Mount registers the artifact routes on the mux alongside the Huma
// routes.
func (h *ArtifactHandler) Mount(mux *http.ServeMux) {
	for _, artifact := range []string{"pmtiles", "cog", "pointcloud", "source"} {
		pattern := "/api/v1/layers/{id}/" + artifact
		mux.HandleFunc("GET "+pattern, h.serve(artifact))
		mux.HandleFunc("HEAD "+pattern, h.serve(artifact))
		mux.HandleFunc("OPTIONS "+pattern, h.serve(artifact))
	}
}

func (h *ArtifactHandler) serve(artifact string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		layer, err := h.svc.Catalog.Get(r.Context(), r.PathValue("id"))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				http.Error(w, "layer not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		// Cloud-native layers are never materialized; the client range
		// reads the origin directly.
		if layer.SourceKind == "remote_cloud_native" && layer.RemoteURL != "" &&
			(artifact == "pmtiles" || artifact == "cog") {
			http.Redirect(w, r, layer.RemoteURL, http.StatusFound)
			return
		}

		key, err := h.artifactKey(r.Context(), layer, artifact)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if key == "" {
			http.Error(w, "artifact not available for this layer", http.StatusNotFound)
			return
		}

		// Backends with URL schemes hand the byte serving to the store.
		if url, err := h.svc.Bucket.PresignGet(r.Context(), key); err == nil && url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}

		h.stream(w, r, key)
	}
}

// artifactKey resolves the object key for the requested artifact,
// building the COG on first request for rasters that deferred it.
func (h *ArtifactHandler) artifactKey(ctx context.Context, layer *catalog.Layer, artifact string) (string, error) {
	switch artifact {
	case "pmtiles":
		return metaString(layer, "pmtiles_key"), nil
	case "pointcloud":
		return metaString(layer, "pointcloud_key"), nil
	case "source":
		return metaString(layer, "source_key"), nil
	case "cog":
		if key := metaString(layer, "cog_key"); key != "" {
			return key, nil
		}
		if pending, _ := layer.Metadata["cog_pending"].(bool); !pending {
			return "", nil
		}
		return h.buildCOG(ctx, layer)
	default:
		return "", nil
	}
}

// buildCOG materializes the deferred COG from the stored upload.
func (h *ArtifactHandler) buildCOG(ctx context.Context, layer *catalog.Layer) (string, error) {
	h.cogMu.Lock()
	defer h.cogMu.Unlock()

	// Another request may have finished the build while we waited.
	fresh, err := h.svc.Catalog.Get(ctx, layer.ID)
	if err != nil {
		return "", err
	}
	if key := metaString(fresh, "cog_key"); key != "" {
		return key, nil
	}

	uploadKey := metaString(fresh, "upload_key")
	if uploadKey == "" {
		return "", fmt.Errorf("layer %s has no stored upload to build from", layer.ID)
	}

	workDir, err := os.MkdirTemp(h.tempDir, "cog-"+layer.ID+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(workDir)

	src := filepath.Join(workDir, "source"+filepath.Ext(uploadKey))
	if err := h.fetchToFile(ctx, uploadKey, src); err != nil {
		return "", err
	}

	h.svc.Log.Info("building deferred cloud optimized geotiff", "layer", layer.ID)
	art, err := h.svc.Raster.Build(ctx, layer.ID, src, workDir)
	if err != nil {
		return "", err
	}
	if err := h.svc.Catalog.AttachCOGKey(ctx, layer.ID, art.Key); err != nil {
		return "", err
	}
	return art.Key, nil
}

func (h *ArtifactHandler) fetchToFile(ctx context.Context, key, dst string) error {
	body, _, err := h.svc.Bucket.Get(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// stream writes the object, honoring a single bytes= range.
func (h *ArtifactHandler) stream(w http.ResponseWriter, r *http.Request, key string) {
	info, err := h.svc.Bucket.Head(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "artifact not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", info.ContentType)

	offset, length, partial, ok := parseRange(r.Header.Get("Range"), info.Size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", info.Size))
		http.Error(w, "invalid range", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if partial {
		w.Header().Set("Content-Range",
			fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, info.Size))
	}

	if r.Method == http.MethodHead {
		if partial {
			w.WriteHeader(http.StatusPartialContent)
		}
		return
	}

	body, _, err := h.svc.Bucket.Get(r.Context(), key, offset, length)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer body.Close()

	if partial {
		w.WriteHeader(http.StatusPartialContent)
	}
	io.Copy(w, body)
}

// parseRange handles the single-range forms bytes=a-b, bytes=a- and
// bytes=-n. Multipart ranges are not supported; clients fall back to
// full reads.
func parseRange(header string, size int64) (offset, length int64, partial, ok bool) {
	if header == "" {
		return 0, size, false, true
	}
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false, false
	}
	start, end, found := strings.Cut(spec, "-")
	if !found {
		return 0, 0, false, false
	}

	if start == "" {
		// Suffix range: last n bytes.
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false, false
		}
		if n > size {
			n = size
		}
		return size - n, n, true, true
	}

	offset, err := strconv.ParseInt(start, 10, 64)
	if err != nil || offset < 0 || offset >= size {
		return 0, 0, false, false
	}
	if end == "" {
		return offset, size - offset, true, true
	}
	last, err := strconv.ParseInt(end, 10, 64)
	if err != nil || last < offset {
		return 0, 0, false, false
	}
	if last >= size {
		last = size - 1
	}
	return offset, last - offset + 1, true, true
}

func metaString(layer *catalog.Layer, field string) string {
	s, _ := layer.Metadata[field].(string)
	return s
}
