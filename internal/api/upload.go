package api

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/joeblew999/plat-layers/internal/catalog"
	"github.com/joeblew999/plat-layers/internal/ingest"
)

// maxUploadMemory bounds the in-memory portion of multipart parsing;
// larger uploads spill to temp files.
const maxUploadMemory = 50 << 20

// UploadHandler accepts a multipart file upload and runs it through the
// ingestion pipeline. It stays on a plain mux handler because Huma's
// schema layer adds nothing over a streamed multipart body.
func (h *APIHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to parse upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || strings.Contains(header.Filename, "..") {
		writeJSONError(w, http.StatusBadRequest, "invalid filename")
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}

	res, err := h.svc.Pipeline.IngestUpload(r.Context(), name, filename, file)
	if err != nil {
		status := http.StatusInternalServerError
		if ingest.KindOf(err).ClientError() {
			status = http.StatusUnprocessableEntity
		}
		writeJSONError(w, status, err.Error())
		return
	}

	out := make([]catalog.Layer, 0, len(res.Layers))
	for _, rec := range res.Layers {
		if err := h.svc.Catalog.Insert(r.Context(), rec); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to persist layer: "+err.Error())
			return
		}
		stored, err := h.svc.Catalog.Get(r.Context(), rec.ID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to load persisted layer: "+err.Error())
			return
		}
		out = append(out, *stored)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(IngestedLayersBody{Layers: out, Message: "Layer ingested"})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
