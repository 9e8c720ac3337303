// Package engine is the boundary to the image processing engine.
//
// Every call is synchronous and returns a newly allocated value owned by the
// caller. Implementations are not required to be safe for concurrent use.
package engine

import (
	"fmt"
	"image"
	"image/color"
)

// Image is an engine-owned raster. Close frees it.
type Image interface {
	Width() int
	Height() int
	Close() error
}

// CurveList is an engine-owned list of traced curves.
type CurveList interface {
	Len() int
	At(i int) Bezier
	Close() error
}

// Thresholds is the (high, low) pair used by hysteresis.
type Thresholds struct {
	High float64
	Low  float64
}

// Engine is the narrow function-call interface every stage goes through.
type Engine interface {
	BuildSource(src PixelBuffer) (Image, error)
	Blur(src Image, factor float64, kernelSize, iterations int) (Image, error)
	Gradient(blurred Image) (Image, error)
	Thin(gradient Image) (Image, error)
	Threshold(thinned Image, buckets int) (Thresholds, error)
	Hysteresis(thinned Image, t Thresholds, percentile float64) (Image, error)
	Trace(edges Image) (CurveList, error)
	CurveColor(curve Bezier, src Image) (RGB, error)
	RenderGreyscale(width, height int, curves CurveList, background float64) (Image, error)
	RenderColor(width, height int, curves CurveList, src Image, background RGB) (Image, error)
	Pixels(img Image) (PixelBuffer, error)
}

// PixelBuffer is an immutable RGBA8 raster, row-major, no padding.
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewPixelBuffer validates dimensions against the byte length.
func NewPixelBuffer(width, height int, pix []byte) (PixelBuffer, error) {
	if width <= 0 || height <= 0 {
		return PixelBuffer{}, fmt.Errorf("invalid dimensions: %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return PixelBuffer{}, fmt.Errorf("pixel data length %d does not match %dx%d RGBA", len(pix), width, height)
	}
	return PixelBuffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage copies any image.Image into a PixelBuffer.
func FromImage(img image.Image) PixelBuffer {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			rgba.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: rgba.Pix}
}

func (p PixelBuffer) Empty() bool {
	return p.Width == 0 || p.Height == 0 || len(p.Pix) == 0
}

// RGBA returns a view over the same bytes. Callers must not modify it.
func (p PixelBuffer) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// Equal compares dimensions and bytes.
func (p PixelBuffer) Equal(o PixelBuffer) bool {
	if p.Width != o.Width || p.Height != o.Height || len(p.Pix) != len(o.Pix) {
		return false
	}
	for i := range p.Pix {
		if p.Pix[i] != o.Pix[i] {
			return false
		}
	}
	return true
}

// RGB is a colour with channels in [0,1].
type RGB struct {
	R, G, B float64
}

func (c RGB) NRGBA() color.NRGBA {
	return color.NRGBA{R: unit8(c.R), G: unit8(c.G), B: unit8(c.B), A: 0xff}
}

func unit8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 0xff
	}
	return uint8(v*255 + 0.5)
}
