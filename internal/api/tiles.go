package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/maptile"
	log "github.com/sirupsen/logrus"

	"github.com/joeblew999/plat-vtile/internal/pmtiles"
	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

type ArchiveInput struct {
	Archive string `path:"archive" doc:"PMTiles archive name, with or without extension" example:"buildings"`
}

type TileInput struct {
	ArchiveInput
	Z int `path:"z" minimum:"0" maximum:"24" doc:"Zoom level"`
	X int `path:"x" minimum:"0" doc:"Tile column"`
	Y int `path:"y" minimum:"0" doc:"Tile row"`
}

func (i TileInput) tile() maptile.Tile {
	return maptile.New(uint32(i.X), uint32(i.Y), maptile.Zoom(i.Z))
}

type ArchiveBody struct {
	Name     string           `json:"name" doc:"Archive file name"`
	Header   pmtiles.HeaderV3 `json:"header" doc:"PMTiles v3 header"`
	Metadata map[string]any   `json:"metadata" doc:"Archive JSON metadata"`
}

type TileBytesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type FeaturesInput struct {
	TileInput
	Layer string `query:"layer" doc:"Only decode this vector layer"`
}

type FeaturesBody struct {
	Layers  map[string]*geojson.FeatureCollection `json:"layers" doc:"Decoded features per vector layer, in WGS84"`
	Skipped []string                              `json:"skipped,omitempty" doc:"Layers dropped while decoding"`
}

// RegisterTiles registers archive and tile routes.
func (h *APIHandler) RegisterTiles(api huma.API) {
	huma.Get(api, "/api/v1/tiles", h.GetTiles, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{archive}", h.GetArchive, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{archive}/{z}/{x}/{y}", h.GetTile, huma.OperationTags("tiles"))
	huma.Get(api, "/api/v1/tiles/{archive}/{z}/{x}/{y}/features", h.GetTileFeatures, huma.OperationTags("tiles"))
}

func (h *APIHandler) GetTiles(ctx context.Context, input *struct{}) (*struct{ Body []service.TileFile }, error) {
	if h.svc == nil || h.svc.Tile == nil {
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	tiles, err := h.svc.Tile.List()
	if err != nil {
		log.WithError(err).Warn("listing archives")
		return &struct{ Body []service.TileFile }{Body: []service.TileFile{}}, nil
	}
	return &struct{ Body []service.TileFile }{Body: tiles}, nil
}

func (h *APIHandler) GetArchive(ctx context.Context, input *ArchiveInput) (*struct{ Body ArchiveBody }, error) {
	a, err := h.archive(input.Archive)
	if err != nil {
		return nil, err
	}
	md, err := a.Metadata()
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}
	return &struct{ Body ArchiveBody }{Body: ArchiveBody{
		Name:     input.Archive,
		Header:   a.Header(),
		Metadata: md,
	}}, nil
}

func (h *APIHandler) GetTile(ctx context.Context, input *TileInput) (*TileBytesOutput, error) {
	data, err := h.tileBytes(ctx, input)
	if err != nil {
		return nil, err
	}
	return &TileBytesOutput{ContentType: "application/vnd.mapbox-vector-tile", Body: data}, nil
}

func (h *APIHandler) GetTileFeatures(ctx context.Context, input *FeaturesInput) (*struct{ Body FeaturesBody }, error) {
	data, err := h.tileBytes(ctx, &input.TileInput)
	if err != nil {
		return nil, err
	}
	tile, err := vtile.Decode(data)
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	body := FeaturesBody{Layers: make(map[string]*geojson.FeatureCollection)}
	for _, skipped := range tile.Skipped {
		body.Skipped = append(body.Skipped, skipped.Error())
	}
	for _, name := range tile.Names() {
		if input.Layer != "" && name != input.Layer {
			continue
		}
		l := tile.Layers[name]
		fc := geojson.NewFeatureCollection()
		for i := 0; i < l.Len(); i++ {
			f, err := l.Feature(i)
			if err == nil {
				var gf *geojson.Feature
				if gf, err = f.LonLat(input.tile()); err == nil {
					fc.Append(gf)
					continue
				}
			}
			log.WithFields(log.Fields{"layer": name, "index": i}).WithError(err).Warn("dropping feature")
		}
		body.Layers[name] = fc
	}
	return &struct{ Body FeaturesBody }{Body: body}, nil
}

func (h *APIHandler) archive(name string) (*pmtiles.Archive, error) {
	if h.svc == nil || h.svc.Tile == nil {
		return nil, huma.Error503ServiceUnavailable("tile service not available")
	}
	a, err := h.svc.Tile.Open(name)
	if err != nil {
		return nil, archiveError(name, err)
	}
	return a, nil
}

func (h *APIHandler) tileBytes(ctx context.Context, input *TileInput) ([]byte, error) {
	if input.X >= 1<<input.Z || input.Y >= 1<<input.Z {
		return nil, huma.Error400BadRequest("tile outside the zoom level")
	}
	a, err := h.archive(input.Archive)
	if err != nil {
		return nil, err
	}
	data, err := a.Fetch(ctx, input.tile())
	if err != nil {
		return nil, huma.Error500InternalServerError("reading tile", err)
	}
	if data == nil {
		return nil, huma.Error404NotFound("tile not found")
	}
	return data, nil
}
