// Package plotview is a headless progressive view that collects streamed
// curve batches into a gonum plot and saves it as an image.
package plotview

import (
	"fmt"
	"image/color"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"vektor/internal/engine"
	"vektor/internal/render"
)

// sampleTolerance is the flattening tolerance in width-normalised units.
const sampleTolerance = 1e-3

// View implements render.View.
type View struct {
	mu     sync.Mutex
	title  string
	plot   *plot.Plot
	style  render.Style
	curves []engine.Curve
	err    error
}

var _ render.View = (*View)(nil)

func New(title string) *View {
	v := &View{title: title}
	v.Reset(render.Style{})
	return v
}

// Reset discards every drawn curve and repaints the background.
func (v *View) Reset(style render.Style) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p := plot.New()
	p.Title.Text = v.title
	p.HideAxes()
	p.BackgroundColor = toColor(style.Paper())
	if style.Inverted() {
		p.Title.TextStyle.Color = color.White
	}
	v.plot = p
	v.style = style
	v.curves = v.curves[:0]
	v.err = nil
}

// AddBatch appends one line per curve. The first line error is kept and
// reported by Save.
func (v *View) AddBatch(batch []engine.Curve, style render.Style) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, c := range batch {
		pts := c.Flatten(sampleTolerance)
		xys := make(plotter.XYs, len(pts))
		for i, p := range pts {
			xys[i] = plotter.XY{X: p.X, Y: -p.Y}
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			if v.err == nil {
				v.err = fmt.Errorf("curve %d: %w", len(v.curves), err)
			}
			continue
		}
		line.Color = toColor(style.Stroke(c))
		line.Width = vg.Points(1)
		v.plot.Add(line)
		v.curves = append(v.curves, c)
	}
}

// Len returns the number of curves drawn since the last reset.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.curves)
}

// Style returns the style of the last reset.
func (v *View) Style() render.Style {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.style
}

// Save writes the plot to path, framed to the drawn curves at the aspect of
// the output size. The format follows the file extension.
func (v *View) Save(width, height vg.Length, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.err != nil {
		return fmt.Errorf("save %s: %w", path, v.err)
	}
	b := render.FitAspect(render.CurveBounds(v.curves), float64(width/height), 0.05)
	v.plot.X.Min, v.plot.X.Max = b.Left, b.Right
	v.plot.Y.Min, v.plot.Y.Max = b.Bottom, b.Top
	if err := v.plot.Save(width, height, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func toColor(c engine.RGB) color.Color {
	return c.NRGBA()
}
