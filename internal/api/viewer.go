package api

import (
	"bytes"
	"context"
	"errors"
	"maps"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/joeblew999/plat-vtile/internal/viewer"
	"github.com/joeblew999/plat-vtile/internal/vtclient"
)

type ViewInput struct {
	ArchiveInput
	Body struct {
		Zoom  int        `json:"zoom" minimum:"0" maximum:"24" doc:"Zoom level to view"`
		Bound [4]float64 `json:"bound,omitempty" doc:"minLon, minLat, maxLon, maxLat" example:"[-180,-85,180,85]"`
	}
}

type ViewBody struct {
	Zoom   int      `json:"zoom" doc:"Current zoom level"`
	Tiles  []string `json:"tiles" doc:"Tiles covering the view as z/x/y"`
	Layers []string `json:"layers" doc:"Vector layers loaded so far"`
}

type ClickInput struct {
	ArchiveInput
	Body struct {
		Lon float64 `json:"lon" minimum:"-180" maximum:"180" doc:"Longitude"`
		Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude"`
	}
}

type ClickBody struct {
	Hit        bool           `json:"hit" doc:"Whether a feature was hit"`
	Layer      string         `json:"layer,omitempty" doc:"Layer of the hit feature"`
	ID         string         `json:"id,omitempty" doc:"Application ID of the hit feature"`
	Selected   bool           `json:"selected" doc:"Selection state after the click"`
	Properties map[string]any `json:"properties,omitempty" doc:"Feature properties"`
}

type RenderInput struct {
	ArchiveInput
	Z int `path:"z" minimum:"0" maximum:"24" doc:"Zoom level"`
	X int `path:"x" minimum:"0" doc:"Tile column"`
	Y int `path:"y" minimum:"0" doc:"Tile row"`
}

type LayerStateInput struct {
	ArchiveInput
	Name string `path:"name" doc:"Vector layer name"`
	Body struct {
		Visible *bool    `json:"visible,omitempty" doc:"Show or hide the layer"`
		Opacity *float64 `json:"opacity,omitempty" minimum:"0" maximum:"1" doc:"Layer opacity"`
	}
}

type LabelsBody struct {
	Labels []vtclient.Label `json:"labels" doc:"Labels placed for the loaded features"`
}

// RegisterViewer registers the server-side viewer routes.
func (h *APIHandler) RegisterViewer(api huma.API) {
	huma.Post(api, "/api/v1/viewer/{archive}/view", h.PostView, huma.OperationTags("viewer"))
	huma.Post(api, "/api/v1/viewer/{archive}/click", h.PostClick, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/{archive}/render/{z}/{x}/{y}", h.GetRender, huma.OperationTags("viewer"))
	huma.Put(api, "/api/v1/viewer/{archive}/layers/{name}", h.PutLayerState, huma.OperationTags("viewer"))
	huma.Get(api, "/api/v1/viewer/{archive}/labels", h.GetLabels, huma.OperationTags("viewer"))
}

func (h *APIHandler) session(archive string) (*viewer.Session, error) {
	if h.svc == nil || h.svc.Viewer == nil {
		return nil, huma.Error503ServiceUnavailable("viewer not available")
	}
	s, err := h.svc.Viewer.Session(archive)
	if err != nil {
		return nil, archiveError(archive, err)
	}
	return s, nil
}

func (h *APIHandler) PostView(ctx context.Context, input *ViewInput) (*struct{ Body ViewBody }, error) {
	s, err := h.session(input.Archive)
	if err != nil {
		return nil, err
	}
	b := input.Body.Bound
	if b == [4]float64{} {
		b = [4]float64{-180, -85, 180, 85}
	}
	bound := orb.Bound{Min: orb.Point{b[0], b[1]}, Max: orb.Point{b[2], b[3]}}

	tiles, err := s.View(ctx, maptile.Zoom(input.Body.Zoom), bound)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	body := ViewBody{Zoom: input.Body.Zoom, Tiles: []string{}, Layers: s.Source().LayerNames()}
	for _, t := range tiles {
		body.Tiles = append(body.Tiles, vtclient.KeyOf(t).String())
	}
	return &struct{ Body ViewBody }{Body: body}, nil
}

func (h *APIHandler) PostClick(ctx context.Context, input *ClickInput) (*struct{ Body ClickBody }, error) {
	s, err := h.session(input.Archive)
	if err != nil {
		return nil, err
	}
	var body ClickBody
	f := s.Click(orb.Point{input.Body.Lon, input.Body.Lat})
	if f != nil {
		s.Source().Update(func() {
			body = ClickBody{
				Hit:        true,
				Layer:      f.Layer().Name,
				ID:         f.ID,
				Selected:   f.Selected(),
				Properties: maps.Clone(f.Properties),
			}
		})
	}
	return &struct{ Body ClickBody }{Body: body}, nil
}

func (h *APIHandler) GetRender(ctx context.Context, input *RenderInput) (*TileBytesOutput, error) {
	s, err := h.session(input.Archive)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	t := maptile.New(uint32(input.X), uint32(input.Y), maptile.Zoom(input.Z))
	if err := s.RenderTile(t, &buf); err != nil {
		if errors.Is(err, viewer.ErrWrongZoom) {
			return nil, huma.Error409Conflict(err.Error())
		}
		return nil, huma.Error500InternalServerError("rendering tile", err)
	}
	return &TileBytesOutput{ContentType: "image/png", Body: buf.Bytes()}, nil
}

func (h *APIHandler) PutLayerState(ctx context.Context, input *LayerStateInput) (*struct{ Body MessageBody }, error) {
	s, err := h.session(input.Archive)
	if err != nil {
		return nil, err
	}
	if input.Body.Visible != nil {
		s.Source().SetLayerVisible(input.Name, *input.Body.Visible)
	}
	if input.Body.Opacity != nil {
		s.Source().SetLayerOpacity(input.Name, *input.Body.Opacity)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Layer updated"}}, nil
}

func (h *APIHandler) GetLabels(ctx context.Context, input *ArchiveInput) (*struct{ Body LabelsBody }, error) {
	s, err := h.session(input.Archive)
	if err != nil {
		return nil, err
	}
	labels := s.Source().Labels()
	if labels == nil {
		labels = []vtclient.Label{}
	}
	return &struct{ Body LabelsBody }{Body: LabelsBody{Labels: labels}}, nil
}
