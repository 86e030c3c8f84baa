// Package service holds the stored layer configurations, the tile
// archives on disk and the event bus the API streams from.
package service

// LayerConfig is the stored styling of one vector layer of an archive.
// Huma reads the tags for OpenAPI and validation.
type LayerConfig struct {
	ID             string       `json:"id,omitempty" doc:"Unique layer identifier" example:"buildings"`
	Name           string       `json:"name" required:"true" minLength:"1" maxLength:"100" doc:"Display name" example:"Buildings"`
	File           string       `json:"file" required:"true" doc:"PMTiles archive the layer is read from" example:"buildings.pmtiles"`
	PMTilesLayer   string       `json:"pmtilesLayer,omitempty" doc:"Vector layer name within the archive tiles" example:"buildings"`
	GeomType       string       `json:"geomType" required:"true" enum:"polygon,line,point" doc:"Geometry type" example:"polygon" default:"polygon"`
	DefaultVisible bool         `json:"defaultVisible" default:"true" doc:"Whether layer is visible by default" example:"true"`
	Fill           string       `json:"fill,omitempty" doc:"Fill color (CSS)" example:"#3388ff" default:"#3388ff"`
	Stroke         string       `json:"stroke,omitempty" doc:"Stroke color (CSS)" example:"#2266cc" default:"#2266cc"`
	Opacity        float64      `json:"opacity,omitempty" minimum:"0" maximum:"1" default:"0.7" doc:"Layer opacity (0-1)" example:"0.7"`
	Published      bool         `json:"published" default:"false" doc:"Whether layer is published"`
	Label          string       `json:"label,omitempty" doc:"Feature property drawn as a label" example:"name"`
	ZIndexOrdering bool         `json:"zIndexOrdering,omitempty" doc:"Draw features ordered by their zIndex property"`
	Styles         []Style      `json:"styles,omitempty" doc:"Named style variants"`
	RenderRules    []RenderRule `json:"renderRules,omitempty" doc:"Conditional styling rules"`
	Legend         []LegendItem `json:"legend,omitempty" doc:"Legend entries for this layer"`
}

// RenderRule defines conditional styling rules for a layer.
type RenderRule struct {
	FilterProp  string  `json:"filterProp,omitempty" doc:"Property name to filter on"`
	FilterValue string  `json:"filterValue,omitempty" doc:"Value to match"`
	Fill        string  `json:"fill" doc:"Fill color (CSS)"`
	Stroke      string  `json:"stroke,omitempty" doc:"Stroke color (CSS)"`
	Opacity     float64 `json:"opacity,omitempty" doc:"Opacity (0-1)"`
	Width       float64 `json:"width,omitempty" doc:"Line width"`
	Radius      float64 `json:"radius,omitempty" doc:"Point radius"`
	Hidden      bool    `json:"hidden,omitempty" doc:"Drop matching features instead of styling them"`
}

// LegendItem defines a legend entry.
type LegendItem struct {
	Label string `json:"label" doc:"Legend label"`
	Color string `json:"color" doc:"Legend color (CSS)"`
}

// Style is a named style variant for a layer.
type Style struct {
	Name    string  `json:"name" required:"true" minLength:"1" maxLength:"50" doc:"Style name"`
	Fill    string  `json:"fill,omitempty" default:"#3388ff" doc:"Fill color (CSS)"`
	Stroke  string  `json:"stroke,omitempty" default:"#2266cc" doc:"Stroke color (CSS)"`
	Opacity float64 `json:"opacity,omitempty" default:"0.7" minimum:"0" maximum:"1" doc:"Opacity (0-1)"`
	Width   float64 `json:"width,omitempty" doc:"Line or outline width"`
	Radius  float64 `json:"radius,omitempty" doc:"Point radius"`
}

// TileFile represents a PMTiles archive in the tiles directory.
type TileFile struct {
	Name     string `json:"name" doc:"PMTiles file name" example:"buildings.pmtiles"`
	Size     string `json:"size" doc:"Human-readable file size" example:"5.4 MB"`
	TileType string `json:"tileType,omitempty" doc:"Tile format" example:"mvt"`
	MinZoom  int    `json:"minZoom" doc:"Lowest zoom level in the archive"`
	MaxZoom  int    `json:"maxZoom" doc:"Highest zoom level in the archive"`
}
