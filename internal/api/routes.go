// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-layers/internal/catalog"
	"github.com/joeblew999/plat-layers/internal/ingest"
	"github.com/joeblew999/plat-layers/internal/raster"
	"github.com/joeblew999/plat-layers/internal/storage"
)

// Services holds the dependencies shared by API handlers.
type Services struct {
	Catalog  *catalog.Catalog
	Pipeline *ingest.Pipeline
	Raster   *raster.Builder
	Bucket   storage.Bucket
	Bus      *ingest.Bus
	Log      *slog.Logger
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"LUxTtYfCB9qQB"`
}

type LayerOutput struct {
	Body catalog.Layer
}

type LayersBody struct {
	Layers []catalog.Layer `json:"layers" doc:"All catalogued layers"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// RegisterRoutes wires every JSON handler onto the Huma API and
// returns the handler so the server can mount its plain mux routes.
func RegisterRoutes(api huma.API, svc *Services) *APIHandler {
	h := NewAPIHandler(svc)
	huma.AutoRegister(api, h)
	return h
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer catalog routes. Uploads and artifact
// streaming stay on plain mux handlers; see UploadHandler and
// ArtifactHandler.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers/remote", h.AddRemoteLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}/style", h.GetStyle, huma.OperationTags("layers"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

// ingestError maps a tagged pipeline failure onto an HTTP status. Input
// rejections are the caller's fault; everything else is a 500.
func ingestError(err error) error {
	kind := ingest.KindOf(err)
	if kind.ClientError() {
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError("ingestion failed", err)
}
