// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"
	"io/fs"

	"github.com/danielgtaylor/huma/v2"
	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/pmtiles"
	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/viewer"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.2.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Layer  *service.LayerService
	Tile   *service.TileService
	Viewer *viewer.Registry
	Bus    *service.EventBus
}

// Types

type IDInput struct {
	ID string `path:"id" doc:"Layer ID" example:"buildings"`
}

type LayerOutput struct {
	Body service.LayerConfig
}

type LayersOutput struct {
	Body map[string]service.LayerConfig
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type CreatedLayerBody struct {
	ID      string              `json:"id" doc:"Generated layer ID"`
	Layer   service.LayerConfig `json:"layer" doc:"Created layer configuration"`
	Message string              `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"0.2.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every handler of the package on api.
func RegisterRoutes(api huma.API, svc *Services, dataDir string) {
	huma.AutoRegister(api, NewAPIHandler(svc))
	NewInfoHandler(dataDir).RegisterRoutes(api)
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterLayers registers layer CRUD routes.
func (h *APIHandler) RegisterLayers(api huma.API) {
	huma.Get(api, "/api/v1/layers", h.GetLayers, huma.OperationTags("layers"))
	huma.Post(api, "/api/v1/layers", h.CreateLayer, huma.OperationTags("layers"))
	huma.Get(api, "/api/v1/layers/{id}", h.GetLayer, huma.OperationTags("layers"))
	huma.Put(api, "/api/v1/layers/{id}", h.PutLayer, huma.OperationTags("layers"))
	huma.Delete(api, "/api/v1/layers/{id}", h.DeleteLayer, huma.OperationTags("layers"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version}}, nil
}

func (h *APIHandler) GetLayers(ctx context.Context, input *struct{}) (*LayersOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return &LayersOutput{Body: map[string]service.LayerConfig{}}, nil
	}
	return &LayersOutput{Body: h.svc.Layer.List()}, nil
}

func (h *APIHandler) CreateLayer(ctx context.Context, input *struct{ Body service.LayerConfig }) (*struct{ Body CreatedLayerBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	created, err := h.svc.Layer.Create(input.Body)
	if err != nil {
		return nil, layerError(err)
	}
	h.layerChanged("created", created)
	return &struct{ Body CreatedLayerBody }{Body: CreatedLayerBody{
		ID: created.ID, Layer: created, Message: "Layer created",
	}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *IDInput) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error404NotFound("service not available")
	}
	layer, ok := h.svc.Layer.Get(input.ID)
	if !ok {
		return nil, huma.Error404NotFound("layer not found")
	}
	return &LayerOutput{Body: layer}, nil
}

func (h *APIHandler) PutLayer(ctx context.Context, input *struct {
	IDInput
	Body service.LayerConfig
}) (*LayerOutput, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	prev, _ := h.svc.Layer.Get(input.ID)
	updated, err := h.svc.Layer.Update(input.ID, input.Body)
	if err != nil {
		return nil, layerError(err)
	}
	if prev.File != updated.File && h.svc.Viewer != nil {
		h.svc.Viewer.Restyle(prev.File)
	}
	h.layerChanged("updated", updated)
	return &LayerOutput{Body: updated}, nil
}

func (h *APIHandler) DeleteLayer(ctx context.Context, input *IDInput) (*struct{ Body MessageBody }, error) {
	if h.svc == nil || h.svc.Layer == nil {
		return nil, huma.Error400BadRequest("service not available")
	}
	layer, _ := h.svc.Layer.Get(input.ID)
	if err := h.svc.Layer.Delete(input.ID); err != nil {
		return nil, layerError(err)
	}
	h.layerChanged("deleted", layer)
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer deleted"}}, nil
}

func layerError(err error) error {
	switch {
	case errors.Is(err, service.ErrLayerNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrLayerExists):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, service.ErrInvalidLayerID), errors.Is(err, service.ErrInvalidArchiveName):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	return huma.Error500InternalServerError("saving layer configuration", err)
}

// layerChanged restyles open sessions over the layer's archive and
// publishes the mutation.
func (h *APIHandler) layerChanged(action string, layer service.LayerConfig) {
	log.WithFields(log.Fields{"layer": layer.ID, "action": action}).Info("layer configuration changed")
	if h.svc.Viewer != nil && layer.File != "" {
		h.svc.Viewer.Restyle(layer.File)
	}
	if h.svc.Bus != nil {
		h.svc.Bus.Publish(service.Event{
			Resource: service.ResourceLayers,
			Action:   action,
			ID:       layer.ID,
			Archive:  layer.File,
		})
	}
}

// archiveError maps archive lookup failures to API errors.
func archiveError(name string, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArchiveName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, fs.ErrNotExist):
		return huma.Error404NotFound("archive " + name + " not found")
	case errors.Is(err, pmtiles.ErrBadMagic), errors.Is(err, pmtiles.ErrUnsupportedVersion):
		return huma.Error422UnprocessableEntity(err.Error())
	}
	log.WithField("archive", name).WithError(err).Error("archive unavailable")
	return huma.Error500InternalServerError("archive unavailable", err)
}
