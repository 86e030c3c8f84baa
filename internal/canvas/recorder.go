package canvas

import (
	"fmt"
	"strings"
	"sync"
)

// Op is one recorded surface call.
type Op struct {
	Name  string
	Args  []float64
	Color string
}

func (o Op) String() string {
	var b strings.Builder
	b.WriteString(o.Name)
	if o.Color != "" {
		b.WriteString(" " + o.Color)
	}
	for _, a := range o.Args {
		fmt.Fprintf(&b, " %g", a)
	}
	return b.String()
}

// Recorder is a Surface that records every call.
type Recorder struct {
	mu  sync.Mutex
	ops []Op
}

// Ops returns a copy of the recorded calls.
func (r *Recorder) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Op(nil), r.ops...)
}

// Painted returns the colour of every Fill and Stroke in call order.
func (r *Recorder) Painted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	fill, stroke := "", ""
	for _, op := range r.ops {
		switch op.Name {
		case "SetFill":
			fill = op.Color
		case "SetStroke":
			stroke = op.Color
		case "Fill":
			out = append(out, fill)
		case "Stroke":
			out = append(out, stroke)
		}
	}
	return out
}

// Reset drops the recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.ops = nil
	r.mu.Unlock()
}

func (r *Recorder) record(name, c string, args ...float64) {
	r.mu.Lock()
	r.ops = append(r.ops, Op{Name: name, Args: args, Color: c})
	r.mu.Unlock()
}

func (r *Recorder) Clear()                   { r.record("Clear", "") }
func (r *Recorder) BeginPath()               { r.record("BeginPath", "") }
func (r *Recorder) MoveTo(x, y float64)      { r.record("MoveTo", "", x, y) }
func (r *Recorder) LineTo(x, y float64)      { r.record("LineTo", "", x, y) }
func (r *Recorder) ClosePath()               { r.record("ClosePath", "") }
func (r *Recorder) Circle(x, y, rad float64) { r.record("Circle", "", x, y, rad) }
func (r *Recorder) Fill()                    { r.record("Fill", "") }
func (r *Recorder) Stroke()                  { r.record("Stroke", "") }

func (r *Recorder) SetFill(c string, opacity float64) { r.record("SetFill", c, opacity) }

func (r *Recorder) SetStroke(c string, width, opacity float64) {
	r.record("SetStroke", c, width, opacity)
}
