package render

import (
	"math"

	"vektor/internal/engine"
)

// Bounds is a rectangle in curve space with y pointing up.
type Bounds struct {
	Left, Right, Bottom, Top float64
}

func (b Bounds) Width() float64  { return b.Right - b.Left }
func (b Bounds) Height() float64 { return b.Top - b.Bottom }

// Empty reports whether no point was ever added.
func (b Bounds) Empty() bool {
	return b.Left > b.Right || b.Bottom > b.Top
}

// CurveBounds returns the box around every control point. Curve y grows
// downwards, so it is negated.
func CurveBounds(curves []engine.Curve) Bounds {
	b := Bounds{Left: math.Inf(1), Right: math.Inf(-1), Bottom: math.Inf(1), Top: math.Inf(-1)}
	for _, c := range curves {
		for _, p := range []engine.Point{c.P0, c.P1, c.P2, c.P3} {
			b.Left = math.Min(b.Left, p.X)
			b.Right = math.Max(b.Right, p.X)
			b.Top = math.Max(b.Top, -p.Y)
			b.Bottom = math.Min(b.Bottom, -p.Y)
		}
	}
	return b
}

// FitAspect grows b around its centre so that width/height equals aspect,
// after padding the longer side by the given fraction on each end.
func FitAspect(b Bounds, aspect, padding float64) Bounds {
	if b.Empty() {
		return Bounds{Left: 0, Right: 1, Bottom: -1, Top: 0}
	}
	w, h := b.Width(), b.Height()
	if w == 0 && h == 0 {
		w, h = 1, 1
	}
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = w / math.Max(h, 1e-9)
	}
	cx, cy := (b.Left+b.Right)/2, (b.Bottom+b.Top)/2

	var nw, nh float64
	if h > w {
		nh = h * (2*padding + 1)
		nw = nh * aspect
	} else {
		nw = w * (2*padding + 1)
		nh = nw / aspect
	}
	if nw < w {
		nw, nh = w, w/aspect
	}
	if nh < h {
		nw, nh = h*aspect, h
	}
	return Bounds{Left: cx - nw/2, Right: cx + nw/2, Bottom: cy - nh/2, Top: cy + nh/2}
}

// Project maps a curve-space point into a w×h pixel frame showing b.
func (b Bounds) Project(p engine.Point, w, h float64) (float64, float64) {
	x := (p.X - b.Left) / b.Width() * w
	y := (b.Top + p.Y) / b.Height() * h
	return x, y
}
