package style

import (
	"fmt"

	"github.com/joeblew999/plat-vtile/internal/service"
	"github.com/joeblew999/plat-vtile/internal/vtile"
)

// SelectedStyleName is the LayerConfig style variant used for selected
// features.
const SelectedStyleName = "selected"

// FromLayerConfig turns a stored layer configuration into a style function.
// The first matching render rule overrides the layer defaults.
func FromLayerConfig(cfg service.LayerConfig) Func {
	var selected *service.Style
	for i := range cfg.Styles {
		if cfg.Styles[i].Name == SelectedStyleName {
			selected = &cfg.Styles[i]
			break
		}
	}

	return func(f *vtile.Feature, _ any) Style {
		s := Default(f.Type)
		applyColors(&s.Base, f.Type, cfg.Fill, cfg.Stroke, cfg.Opacity, 0, 0)
		if rule := matchRule(cfg.RenderRules, f); rule != nil {
			applyColors(&s.Base, f.Type, rule.Fill, rule.Stroke, rule.Opacity, rule.Width, rule.Radius)
		}
		if selected != nil {
			sel := s.Base
			if sel.Outline != nil {
				o := *sel.Outline
				sel.Outline = &o
			}
			applyColors(&sel, f.Type, selected.Fill, selected.Stroke, selected.Opacity, selected.Width, selected.Radius)
			s.Selected = &sel
		}
		if cfg.Label != "" {
			s.Base.Label = &Label{Property: cfg.Label}
			if s.Selected != nil {
				s.Selected.Label = s.Base.Label
			}
		}
		return s
	}
}

// FilterFromLayerConfig returns a predicate rejecting features matched by a
// hidden render rule, or nil when the config hides nothing.
func FilterFromLayerConfig(cfg service.LayerConfig) func(*vtile.Feature) bool {
	hidden := false
	for _, r := range cfg.RenderRules {
		hidden = hidden || r.Hidden
	}
	if !hidden {
		return nil
	}
	return func(f *vtile.Feature) bool {
		r := matchRule(cfg.RenderRules, f)
		return r == nil || !r.Hidden
	}
}

func matchRule(rules []service.RenderRule, f *vtile.Feature) *service.RenderRule {
	for i := range rules {
		r := &rules[i]
		if r.FilterProp == "" {
			return r
		}
		v, ok := f.Properties[r.FilterProp]
		if ok && v != nil && fmt.Sprint(v) == r.FilterValue {
			return r
		}
	}
	return nil
}

// applyColors overlays the non-zero settings onto r. Lines take their
// colour from stroke; fills keep stroke for the outline.
func applyColors(r *Resolved, t vtile.GeomType, fill, stroke string, opacity, width, radius float64) {
	switch t {
	case vtile.LineString:
		if stroke != "" {
			r.Color = stroke
		} else if fill != "" {
			r.Color = fill
		}
		if width > 0 {
			r.Width = width
		}
	default:
		if fill != "" {
			r.Color = fill
		}
		if stroke != "" {
			if r.Outline == nil {
				r.Outline = &Outline{Width: defaultWidth}
			}
			r.Outline.Color = stroke
		}
		if width > 0 && r.Outline != nil {
			r.Outline.Width = width
		}
		if radius > 0 && t == vtile.Point {
			r.Radius = radius
		}
	}
	if opacity > 0 {
		r.Opacity = opacity
	}
}
