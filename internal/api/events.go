package api

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	log "github.com/sirupsen/logrus"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/joeblew999/plat-vtile/internal/service"
)

type EventsInput struct {
	Archive string `query:"archive" doc:"Only stream events for this archive"`
}

// RegisterEvents registers the Datastar SSE event stream.
func (h *APIHandler) RegisterEvents(api huma.API) {
	huma.Get(api, "/api/v1/viewer/events", h.Events, huma.OperationTags("viewer"))
}

// Events streams bus events as Datastar signal patches followed by a
// resource-changed custom event.
func (h *APIHandler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	if h.svc == nil || h.svc.Bus == nil {
		return nil, huma.Error503ServiceUnavailable("event bus not available")
	}
	bus := h.svc.Bus
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			r, w := humago.Unwrap(humaCtx)
			sse := datastar.NewSSE(w, r)
			ch := bus.Subscribe()
			defer bus.Unsubscribe(ch)

			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-ch:
					if input.Archive != "" && ev.Archive != "" && !sameArchive(ev.Archive, input.Archive) {
						continue
					}
					if err := sendEvent(sse, ev); err != nil {
						log.WithError(err).Debug("event stream closed")
						return
					}
				}
			}
		},
	}, nil
}

func sendEvent(sse *datastar.ServerSentEventGenerator, ev service.Event) error {
	if signals := eventSignals(ev); signals != nil {
		if err := sse.MarshalAndPatchSignals(signals); err != nil {
			return err
		}
	}
	return sse.DispatchCustomEvent("resource-changed", map[string]any{
		"resource": ev.Resource,
		"action":   ev.Action,
		"id":       ev.ID,
		"archive":  ev.Archive,
		"layer":    ev.Layer,
	})
}

// eventSignals maps an event to the signals a page binds to.
func eventSignals(ev service.Event) map[string]any {
	switch ev.Resource {
	case service.ResourceSelection:
		sel := map[string]any{"archive": ev.Archive, "layer": ev.Layer, "id": ""}
		if ev.Action == "selected" {
			sel["id"] = ev.ID
		}
		return map[string]any{"selection": sel}
	case service.ResourceTiles:
		tiles := map[string]any{"archive": ev.Archive}
		for k, v := range ev.Data {
			tiles[k] = v
		}
		return map[string]any{"tiles": tiles}
	case service.ResourceLayers:
		return map[string]any{"layersVersion": ev.Action + ":" + ev.ID}
	}
	return nil
}

func sameArchive(a, b string) bool {
	return strings.TrimSuffix(a, ".pmtiles") == strings.TrimSuffix(b, ".pmtiles")
}
