package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// EventHandler streams ingestion progress to clients via SSE. Patches
// are Datastar signal frames so a map UI can bind them directly.
type EventHandler struct {
	svc *Services
}

func NewEventHandler(svc *Services) *EventHandler {
	return &EventHandler{svc: svc}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
}

func (h *EventHandler) Events(ctx context.Context, input *struct{}) (*huma.StreamResponse, error) {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			r, w := humago.Unwrap(humaCtx)
			sse := datastar.NewSSE(w, r)

			ch := h.svc.Bus.Subscribe()
			defer h.svc.Bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					sse.MarshalAndPatchSignals(map[string]any{
						"ingest": map[string]any{
							"layer_id": ev.LayerID,
							"stage":    ev.Stage,
							"detail":   ev.Detail,
						},
					})
				}
			}
		},
	}, nil
}
