package gui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"

	"vektor/internal/engine"
	"vektor/internal/render"
)

// curveTolerance is the flattening tolerance in width-normalised units.
const curveTolerance = 2e-3

type segment struct {
	line *canvas.Line
	a, b engine.Point
}

// CurveView draws streamed curves as line segments fitted to the widget.
// Every method must run on the fyne main goroutine.
type CurveView struct {
	paper    *canvas.Rectangle
	lines    *fyne.Container
	segments []segment
	curves   []engine.Curve
	frame    render.Bounds
	framed   bool
	layout   *curveLayout
	root     *fyne.Container
}

var _ render.View = (*CurveView)(nil)

func NewCurveView() *CurveView {
	cv := &CurveView{paper: canvas.NewRectangle(color.Black)}
	cv.layout = &curveLayout{view: cv}
	cv.lines = container.New(cv.layout)
	cv.root = container.NewStack(cv.paper, cv.lines)
	return cv
}

func (cv *CurveView) GetContainer() fyne.CanvasObject {
	return cv.root
}

// Frame fixes the view bounds to the given curves, so that a progressive
// cycle does not rescale as batches arrive.
func (cv *CurveView) Frame(curves []engine.Curve) {
	cv.frame = render.CurveBounds(curves)
	cv.framed = true
}

// Len returns the number of curves drawn since the last reset.
func (cv *CurveView) Len() int {
	return len(cv.curves)
}

func (cv *CurveView) Reset(style render.Style) {
	cv.paper.FillColor = style.Paper().NRGBA()
	cv.paper.Refresh()
	cv.lines.RemoveAll()
	cv.segments = cv.segments[:0]
	cv.curves = cv.curves[:0]
}

func (cv *CurveView) AddBatch(batch []engine.Curve, style render.Style) {
	for _, c := range batch {
		stroke := style.Stroke(c).NRGBA()
		pts := c.Flatten(curveTolerance)
		for i := 1; i < len(pts); i++ {
			line := canvas.NewLine(stroke)
			line.StrokeWidth = 1
			cv.segments = append(cv.segments, segment{line: line, a: pts[i-1], b: pts[i]})
			cv.lines.Add(line)
		}
		cv.curves = append(cv.curves, c)
	}
	cv.layout.Layout(cv.lines.Objects, cv.lines.Size())
	cv.lines.Refresh()
}

// curveLayout projects every segment into the current size.
type curveLayout struct {
	view *CurveView
}

func (l *curveLayout) Layout(_ []fyne.CanvasObject, size fyne.Size) {
	if size.Width <= 0 || size.Height <= 0 {
		return
	}
	w, h := float64(size.Width), float64(size.Height)
	bounds := l.view.frame
	if !l.view.framed {
		bounds = render.CurveBounds(l.view.curves)
	}
	b := render.FitAspect(bounds, w/h, 0.05)
	for _, s := range l.view.segments {
		x1, y1 := b.Project(s.a, w, h)
		x2, y2 := b.Project(s.b, w, h)
		s.line.Position1 = fyne.NewPos(float32(x1), float32(y1))
		s.line.Position2 = fyne.NewPos(float32(x2), float32(y2))
	}
}

func (l *curveLayout) MinSize(_ []fyne.CanvasObject) fyne.Size {
	return fyne.NewSize(320, 240)
}
