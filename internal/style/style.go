// Package style resolves how a decoded feature is drawn.
//
// A Style is a base appearance plus an optional variant used while the
// feature is selected. Style functions are evaluated once per feature when
// it is first ingested; changing the function means re-ingesting.
package style

import (
	"fmt"

	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// Outline is the stroke drawn around a filled polygon or point.
type Outline struct {
	Color string
	Width float64
}

// Label is a text label anchored at the feature's first point. Text wins
// over Property when both are set.
type Label struct {
	Text     string
	Property string
	Color    string
}

// TextFor returns the label text for f, or "" when there is nothing to draw.
func (l *Label) TextFor(f *vtile.Feature) string {
	if l == nil {
		return ""
	}
	if l.Text != "" {
		return l.Text
	}
	if l.Property == "" || f == nil {
		return ""
	}
	v, ok := f.Properties[l.Property]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Resolved is the concrete appearance of one feature.
type Resolved struct {
	Color   string
	Opacity float64

	// Width is the stroke width of lines.
	Width float64

	// Radius is the point radius in pixels. RadiusFunc, when set, takes
	// precedence and receives the current zoom.
	Radius     float64
	RadiusFunc func(zoom int) float64

	Outline *Outline
	Label   *Label
}

// PointRadius returns the radius to draw a point at zoom.
func (r Resolved) PointRadius(zoom int) float64 {
	if r.RadiusFunc != nil {
		return r.RadiusFunc(zoom)
	}
	return r.Radius
}

// Style is a base appearance with an optional selected variant.
type Style struct {
	Base     Resolved
	Selected *Resolved
}

// For returns the appearance for the given selection state.
func (s Style) For(selected bool) Resolved {
	if selected && s.Selected != nil {
		return *s.Selected
	}
	return s.Base
}

// Label returns the label declared by the base appearance, if any.
func (s Style) Label() *Label { return s.Base.Label }

// Func resolves the style of a feature. data is the style data most
// recently supplied to the layer, or nil.
type Func func(f *vtile.Feature, data any) Style

const (
	defaultColor    = "#3388ff"
	defaultStroke   = "#2266cc"
	selectedColor   = "#ff7800"
	defaultOpacity  = 0.7
	defaultRadius   = 5
	defaultWidth    = 1
	selectedOpacity = 0.9
)

// Default returns the built-in style for a geometry type.
func Default(t vtile.GeomType) Style {
	switch t {
	case vtile.Point:
		return Style{
			Base:     Resolved{Color: defaultColor, Opacity: defaultOpacity, Radius: defaultRadius},
			Selected: &Resolved{Color: selectedColor, Opacity: selectedOpacity, Radius: defaultRadius + 2},
		}
	case vtile.LineString:
		return Style{
			Base:     Resolved{Color: defaultStroke, Opacity: defaultOpacity, Width: defaultWidth},
			Selected: &Resolved{Color: selectedColor, Opacity: selectedOpacity, Width: defaultWidth + 2},
		}
	default:
		return Style{
			Base: Resolved{
				Color:   defaultColor,
				Opacity: defaultOpacity / 2,
				Outline: &Outline{Color: defaultStroke, Width: defaultWidth},
			},
			Selected: &Resolved{
				Color:   selectedColor,
				Opacity: selectedOpacity / 2,
				Outline: &Outline{Color: selectedColor, Width: defaultWidth + 1},
			},
		}
	}
}

// DefaultFunc resolves every feature to Default of its type.
func DefaultFunc(f *vtile.Feature, _ any) Style { return Default(f.Type) }

// Static returns a Func that resolves every feature to s.
func Static(s Style) Func {
	return func(*vtile.Feature, any) Style { return s }
}
