package canvas

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

var named = map[string]color.NRGBA{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"yellow":      {255, 255, 0, 255},
	"orange":      {255, 165, 0, 255},
	"gray":        {128, 128, 128, 255},
	"grey":        {128, 128, 128, 255},
	"transparent": {0, 0, 0, 0},
}

// ParseColor parses a CSS colour: #rgb, #rrggbb, #rrggbbaa, rgb(r,g,b),
// rgba(r,g,b,a) or one of a few names.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := named[s]; ok {
		return c, nil
	}
	if strings.HasPrefix(s, "#") {
		return parseHex(s[1:])
	}
	if open := strings.IndexByte(s, '('); open > 0 && strings.HasSuffix(s, ")") {
		fn := s[:open]
		parts := strings.Split(s[open+1:len(s)-1], ",")
		if (fn == "rgb" && len(parts) == 3) || (fn == "rgba" && len(parts) == 4) {
			return parseFunc(parts)
		}
	}
	return color.NRGBA{}, fmt.Errorf("canvas: unrecognised colour %q", s)
}

func parseHex(h string) (color.NRGBA, error) {
	switch len(h) {
	case 3:
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]}) + "ff"
	case 6:
		h += "ff"
	case 8:
	default:
		return color.NRGBA{}, fmt.Errorf("canvas: bad hex colour #%s", h)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("canvas: bad hex colour #%s: %w", h, err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

func parseFunc(parts []string) (color.NRGBA, error) {
	var c [4]uint8
	c[3] = 255
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return color.NRGBA{}, fmt.Errorf("canvas: bad colour component %q: %w", p, err)
		}
		if i == 3 {
			f *= 255
		}
		c[i] = uint8(math.Max(0, math.Min(255, math.Round(f))))
	}
	return color.NRGBA{R: c[0], G: c[1], B: c[2], A: c[3]}, nil
}

// WithOpacity scales the alpha of c by opacity in [0, 1].
func WithOpacity(c color.NRGBA, opacity float64) color.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	c.A = uint8(math.Round(float64(c.A) * opacity))
	return c
}
