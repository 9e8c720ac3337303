// Package cvengine implements the processing engine on top of OpenCV.
//
// Colour images are CV_32FC3 in BGR order with channels in [0,1]. Grey
// images are CV_32FC1. Rendered plots are 8-bit.
package cvengine

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"vektor/internal/engine"
)

// Image wraps an OpenCV matrix. Gradient images also carry an angle matrix.
type Image struct {
	mat      gocv.Mat
	angle    gocv.Mat
	hasAngle bool
	closed   bool
}

func (img *Image) Width() int  { return img.mat.Cols() }
func (img *Image) Height() int { return img.mat.Rows() }

func (img *Image) Close() error {
	if img.closed {
		return nil
	}
	img.closed = true
	err := img.mat.Close()
	if img.hasAngle {
		err = errors.Join(err, img.angle.Close())
	}
	return err
}

// Engine is safe to share; every call allocates its own matrices.
type Engine struct {
	logger logrus.FieldLogger
}

var _ engine.Engine = (*Engine)(nil)

func New(logger logrus.FieldLogger) *Engine {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Engine{logger: logger}
}

func asImage(img engine.Image) (*Image, error) {
	ci, ok := img.(*Image)
	if !ok || ci == nil {
		return nil, fmt.Errorf("cvengine: foreign image %T", img)
	}
	if ci.closed || ci.mat.Empty() {
		return nil, errors.New("cvengine: image is released or empty")
	}
	return ci, nil
}

func floatData(m gocv.Mat) ([]float32, error) {
	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("cvengine: float view: %w", err)
	}
	return data, nil
}

// BuildSource converts RGBA bytes to a float BGR matrix.
func (e *Engine) BuildSource(src engine.PixelBuffer) (engine.Image, error) {
	if _, err := engine.NewPixelBuffer(src.Width, src.Height, src.Pix); err != nil {
		return nil, err
	}
	rgba, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8UC4, src.Pix)
	if err != nil {
		return nil, fmt.Errorf("cvengine: wrap pixels: %w", err)
	}
	defer rgba.Close()

	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR); err != nil {
		return nil, fmt.Errorf("cvengine: convert source: %w", err)
	}
	out := gocv.NewMat()
	bgr.ConvertToWithParams(&out, gocv.MatTypeCV32FC3, 1.0/255, 0)
	return &Image{mat: out}, nil
}

// Blur applies the edge-preserving adaptive blur: each pixel is averaged over
// a (2k+1)² window, weighted by exp(-sqrt(|∇|) / 2h²).
func (e *Engine) Blur(src engine.Image, factor float64, kernelSize, iterations int) (engine.Image, error) {
	in, err := asImage(src)
	if err != nil {
		return nil, err
	}
	if kernelSize < 1 || iterations < 1 {
		return nil, fmt.Errorf("cvengine: kernel %d and iterations %d must be positive", kernelSize, iterations)
	}
	if factor <= 0 {
		return nil, fmt.Errorf("cvengine: blur factor must be positive, got %g", factor)
	}

	cur := in.mat.Clone()
	window := image.Pt(2*kernelSize+1, 2*kernelSize+1)
	for it := 0; it < iterations; it++ {
		next, err := adaptiveStep(cur, factor, window)
		cur.Close()
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return &Image{mat: cur}, nil
}

func adaptiveStep(src gocv.Mat, h float64, window image.Point) (gocv.Mat, error) {
	gx, gy := gocv.NewMat(), gocv.NewMat()
	defer gx.Close()
	defer gy.Close()
	gocv.Sobel(src, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderReflect101)
	gocv.Sobel(src, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderReflect101)

	weights := gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV32FC3)
	defer weights.Close()
	dx, err := floatData(gx)
	if err != nil {
		return gocv.Mat{}, err
	}
	dy, err := floatData(gy)
	if err != nil {
		return gocv.Mat{}, err
	}
	w, err := floatData(weights)
	if err != nil {
		return gocv.Mat{}, err
	}
	denom := 2 * h * h
	for i := range w {
		mag := math.Hypot(float64(dx[i]), float64(dy[i]))
		w[i] = float32(math.Exp(-math.Sqrt(mag) / denom))
	}

	weighted, num, den := gocv.NewMat(), gocv.NewMat(), gocv.NewMat()
	defer weighted.Close()
	defer num.Close()
	defer den.Close()
	gocv.Multiply(src, weights, &weighted)
	gocv.BoxFilter(weighted, &num, -1, window)
	gocv.BoxFilter(weights, &den, -1, window)

	out := gocv.NewMat()
	gocv.Divide(num, den, &out)
	return out, nil
}

// Gradient returns the normalised magnitude of the dominant channel's Sobel
// gradient, with its direction folded into [0, π).
func (e *Engine) Gradient(blurred engine.Image) (engine.Image, error) {
	in, err := asImage(blurred)
	if err != nil {
		return nil, err
	}
	gx, gy := gocv.NewMat(), gocv.NewMat()
	defer gx.Close()
	defer gy.Close()
	gocv.Sobel(in.mat, &gx, gocv.MatTypeCV32F, 1, 0, 3, 1, 0, gocv.BorderReflect101)
	gocv.Sobel(in.mat, &gy, gocv.MatTypeCV32F, 0, 1, 3, 1, 0, gocv.BorderReflect101)
	dx, err := floatData(gx)
	if err != nil {
		return nil, err
	}
	dy, err := floatData(gy)
	if err != nil {
		return nil, err
	}

	rows, cols := in.mat.Rows(), in.mat.Cols()
	mag := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32FC1)
	ang := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32FC1)
	out := &Image{mat: mag, angle: ang, hasAngle: true}
	m, err := floatData(mag)
	if err != nil {
		out.Close()
		return nil, err
	}
	a, err := floatData(ang)
	if err != nil {
		out.Close()
		return nil, err
	}

	channels := in.mat.Channels()
	maxMag := 0.0
	for i := range m {
		best, bx, by := -1.0, 0.0, 0.0
		for c := 0; c < channels; c++ {
			x, y := float64(dx[i*channels+c]), float64(dy[i*channels+c])
			if s := x*x + y*y; s > best {
				best, bx, by = s, x, y
			}
		}
		v := math.Sqrt(best)
		maxMag = math.Max(maxMag, v)
		theta := math.Atan2(by, bx)
		if theta < 0 {
			theta += math.Pi
		}
		m[i], a[i] = float32(v), float32(theta)
	}
	if maxMag > 0 {
		for i := range m {
			m[i] = float32(float64(m[i]) / maxMag)
		}
	}
	return out, nil
}

// Pixels converts any engine image to RGBA bytes.
func (e *Engine) Pixels(img engine.Image) (engine.PixelBuffer, error) {
	in, err := asImage(img)
	if err != nil {
		return engine.PixelBuffer{}, err
	}

	src := in.mat
	var scaled gocv.Mat
	switch src.Type() {
	case gocv.MatTypeCV32FC1:
		scaled = gocv.NewMat()
		defer scaled.Close()
		src.ConvertToWithParams(&scaled, gocv.MatTypeCV8UC1, 255, 0)
		src = scaled
	case gocv.MatTypeCV32FC3:
		scaled = gocv.NewMat()
		defer scaled.Close()
		src.ConvertToWithParams(&scaled, gocv.MatTypeCV8UC3, 255, 0)
		src = scaled
	}

	code := gocv.ColorBGRToRGBA
	if src.Channels() == 1 {
		code = gocv.ColorGrayToRGBA
	}
	rgba := gocv.NewMat()
	defer rgba.Close()
	if err := gocv.CvtColor(src, &rgba, code); err != nil {
		return engine.PixelBuffer{}, fmt.Errorf("cvengine: snapshot: %w", err)
	}
	return engine.NewPixelBuffer(rgba.Cols(), rgba.Rows(), rgba.ToBytes())
}
