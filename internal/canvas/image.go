package canvas

import (
	"image"
	"image/color"
	"io"

	"github.com/fogleman/gg"
	log "github.com/sirupsen/logrus"
)

// Image is a raster Surface backed by a gg context.
type Image struct {
	dc     *gg.Context
	fill   color.NRGBA
	stroke color.NRGBA
	width  float64
}

// NewImage returns a transparent size x size surface.
func NewImage(size int) *Image {
	return &Image{dc: gg.NewContext(size, size), width: 1}
}

// Size returns the edge length in pixels.
func (m *Image) Size() int { return m.dc.Width() }

func (m *Image) Clear() {
	m.dc.ClearPath()
	m.dc.SetColor(color.Transparent)
	m.dc.Clear()
}

func (m *Image) BeginPath() { m.dc.ClearPath() }

func (m *Image) MoveTo(x, y float64) { m.dc.MoveTo(x, y) }

func (m *Image) LineTo(x, y float64) { m.dc.LineTo(x, y) }

func (m *Image) ClosePath() { m.dc.ClosePath() }

func (m *Image) Circle(x, y, r float64) {
	m.dc.NewSubPath()
	m.dc.DrawCircle(x, y, r)
}

func (m *Image) SetFill(c string, opacity float64) {
	m.fill = parseOrWarn(c, opacity)
}

func (m *Image) SetStroke(c string, width, opacity float64) {
	m.stroke = parseOrWarn(c, opacity)
	m.width = width
}

func (m *Image) Fill() {
	m.dc.SetColor(m.fill)
	m.dc.FillPreserve()
}

func (m *Image) Stroke() {
	m.dc.SetColor(m.stroke)
	m.dc.SetLineWidth(m.width)
	m.dc.StrokePreserve()
}

// Text draws s centred horizontally above (x, y).
func (m *Image) Text(s string, x, y float64, c string) {
	m.dc.SetColor(parseOrWarn(c, 1))
	m.dc.DrawStringAnchored(s, x, y, 0.5, 0)
}

// Draw composites src at the origin with the given opacity.
func (m *Image) Draw(src image.Image, opacity float64) {
	if opacity >= 1 {
		m.dc.DrawImage(src, 0, 0)
		return
	}
	b := src.Bounds()
	faded := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			faded.SetNRGBA(x, y, WithOpacity(c, opacity))
		}
	}
	m.dc.DrawImage(faded, 0, 0)
}

// Image returns the rendered raster.
func (m *Image) Image() image.Image { return m.dc.Image() }

// EncodePNG writes the surface as a PNG.
func (m *Image) EncodePNG(w io.Writer) error { return m.dc.EncodePNG(w) }

func parseOrWarn(s string, opacity float64) color.NRGBA {
	c, err := ParseColor(s)
	if err != nil {
		log.WithError(err).Debug("falling back to black")
		c = color.NRGBA{A: 255}
	}
	return WithOpacity(c, opacity)
}
