package cvengine

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"

	"vektor/internal/engine"
)

// flattenTolerance is the pixel tolerance used when sampling curves.
const flattenTolerance = 0.1

// CurveColor averages the source colour under the curve in linear RGB.
func (e *Engine) CurveColor(curve engine.Bezier, src engine.Image) (engine.RGB, error) {
	in, err := asImage(src)
	if err != nil {
		return engine.RGB{}, err
	}
	return curveColor(curve, in)
}

func curveColor(curve engine.Bezier, src *Image) (engine.RGB, error) {
	if src.mat.Type() != gocv.MatTypeCV32FC3 {
		return engine.RGB{}, errors.New("cvengine: curve colour needs the colour source image")
	}
	data, err := floatData(src.mat)
	if err != nil {
		return engine.RGB{}, err
	}
	w, h := src.mat.Cols(), src.mat.Rows()

	var lr, lg, lb float64
	n := 0
	for _, p := range curve.Scale(float64(w)).Flatten(flattenTolerance) {
		x := min(max(int(math.Round(p.X)), 0), w-1)
		y := min(max(int(math.Round(p.Y)), 0), h-1)
		i := 3 * (y*w + x)
		c := colorful.Color{R: float64(data[i+2]), G: float64(data[i+1]), B: float64(data[i])}
		r, g, b := c.LinearRgb()
		lr, lg, lb = lr+r, lg+g, lb+b
		n++
	}
	if n == 0 {
		return engine.RGB{}, nil
	}
	avg := colorful.LinearRgb(lr/float64(n), lg/float64(n), lb/float64(n)).Clamped()
	return engine.RGB{R: avg.R, G: avg.G, B: avg.B}, nil
}

// RenderGreyscale draws every curve in the inverse of the background value.
func (e *Engine) RenderGreyscale(width, height int, curves engine.CurveList, background float64) (engine.Image, error) {
	cl, ok := asCurves(curves)
	if !ok {
		return nil, fmt.Errorf("cvengine: foreign or released curve list %T", curves)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cvengine: invalid plot size %dx%d", width, height)
	}
	bg := 255 * background
	plot := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(bg, bg, bg, 0), height, width, gocv.MatTypeCV8UC1)
	ink := uint8(255 - bg)
	stroke := color.RGBA{R: ink, G: ink, B: ink, A: 255}
	for _, b := range cl.curves {
		drawCurve(&plot, b.Scale(float64(width)), stroke)
	}
	return &Image{mat: plot}, nil
}

// RenderColor draws every curve in its source colour.
func (e *Engine) RenderColor(width, height int, curves engine.CurveList, src engine.Image, background engine.RGB) (engine.Image, error) {
	cl, ok := asCurves(curves)
	if !ok {
		return nil, fmt.Errorf("cvengine: foreign or released curve list %T", curves)
	}
	source, err := asImage(src)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cvengine: invalid plot size %dx%d", width, height)
	}
	bg := background.NRGBA()
	plot := gocv.NewMatWithSizeFromScalar(
		gocv.NewScalar(float64(bg.B), float64(bg.G), float64(bg.R), 0),
		height, width, gocv.MatTypeCV8UC3)
	for _, b := range cl.curves {
		c, err := curveColor(b, source)
		if err != nil {
			plot.Close()
			return nil, err
		}
		n := c.NRGBA()
		drawCurve(&plot, b.Scale(float64(width)), color.RGBA{R: n.R, G: n.G, B: n.B, A: 255})
	}
	return &Image{mat: plot}, nil
}

func drawCurve(plot *gocv.Mat, b engine.Bezier, c color.RGBA) {
	pts := b.Flatten(flattenTolerance)
	for i := 1; i < len(pts); i++ {
		gocv.Line(plot, toPixel(pts[i-1]), toPixel(pts[i]), c, 1)
	}
}

func toPixel(p engine.Point) image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}
