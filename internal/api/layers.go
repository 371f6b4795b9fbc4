package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-layers/internal/catalog"
	"github.com/joeblew999/plat-layers/internal/ingest"
)

type RemoteLayerInput struct {
	Body struct {
		Name       string `json:"name" required:"true" doc:"Display name for the layer" example:"County parcels"`
		URL        string `json:"url" required:"true" doc:"Remote source URL" example:"https://example.com/parcels.geojson"`
		SourceType string `json:"source_type,omitempty" enum:"vector,raster,sheets" doc:"Declared source type; defaults to vector"`
	}
}

type IngestedLayersBody struct {
	Layers  []catalog.Layer `json:"layers" doc:"Layers produced by the ingestion"`
	Message string          `json:"message" doc:"Result message"`
}

type StyleOutput struct {
	Body []byte `contentType:"application/json"`
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*struct{ Body LayersBody }, error) {
	layers, err := h.svc.Catalog.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list layers", err)
	}
	if layers == nil {
		layers = []catalog.Layer{}
	}
	return &struct{ Body LayersBody }{Body: LayersBody{Layers: layers}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	layer, err := h.svc.Catalog.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, huma.Error404NotFound("layer not found")
		}
		return nil, huma.Error500InternalServerError("failed to load layer", err)
	}
	return &LayerOutput{Body: *layer}, nil
}

// AddRemoteLayer classifies a remote URL and runs the ingestion
// pipeline over it. Cloud-native sources are registered without
// materialization; everything else is fetched and normalized.
func (h *APIHandler) AddRemoteLayer(ctx context.Context, input *RemoteLayerInput) (*struct{ Body IngestedLayersBody }, error) {
	declared := ingest.DeclaredType(input.Body.SourceType)
	if declared == "" {
		declared = ingest.DeclaredVector
	}

	res, err := h.svc.Pipeline.IngestRemote(ctx, input.Body.Name, input.Body.URL, declared)
	if err != nil {
		return nil, ingestError(err)
	}
	return h.persistResult(ctx, res)
}

// persistResult writes every pipeline layer to the catalog and reads
// the stored rows back for the response.
func (h *APIHandler) persistResult(ctx context.Context, res *ingest.Result) (*struct{ Body IngestedLayersBody }, error) {
	out := make([]catalog.Layer, 0, len(res.Layers))
	for _, rec := range res.Layers {
		if err := h.svc.Catalog.Insert(ctx, rec); err != nil {
			return nil, huma.Error500InternalServerError("failed to persist layer", err)
		}
		stored, err := h.svc.Catalog.Get(ctx, rec.ID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load persisted layer", err)
		}
		out = append(out, *stored)
	}
	return &struct{ Body IngestedLayersBody }{Body: IngestedLayersBody{
		Layers:  out,
		Message: "Layer ingested",
	}}, nil
}

// DeleteLayer removes the catalog row and every stored artifact the
// layer owns. Artifact deletes are idempotent, so retries are safe.
func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	layer, err := h.svc.Catalog.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, huma.Error404NotFound("layer not found")
		}
		return nil, huma.Error500InternalServerError("failed to load layer", err)
	}

	for _, field := range []string{"pmtiles_key", "pointcloud_key", "source_key", "upload_key", "cog_key"} {
		key, ok := layer.Metadata[field].(string)
		if !ok || key == "" {
			continue
		}
		if err := h.svc.Bucket.Delete(ctx, key); err != nil {
			h.svc.Log.Warn("artifact delete failed", "layer", input.ID, "key", key, "error", err)
		}
	}

	if err := h.svc.Catalog.Delete(ctx, input.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete layer", err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func (h *APIHandler) GetStyle(ctx context.Context, input *IDInput) (*StyleOutput, error) {
	style, err := h.svc.Catalog.Style(ctx, input.ID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, huma.Error404NotFound("layer not found")
		}
		return nil, huma.Error500InternalServerError("failed to load style", err)
	}
	return &StyleOutput{Body: []byte(style)}, nil
}
