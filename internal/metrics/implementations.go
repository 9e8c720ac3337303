package metrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"vektor/internal/engine"
)

var errEmpty = errors.New("empty images")

// luma returns the Rec. 601 luminance of every pixel in [0,255].
func luma(p engine.PixelBuffer) []float64 {
	out := make([]float64, p.Width*p.Height)
	for i := range out {
		px := p.Pix[4*i : 4*i+3]
		out[i] = 0.299*float64(px[0]) + 0.587*float64(px[1]) + 0.114*float64(px[2])
	}
	return out
}

func sameSize(a, b engine.PixelBuffer) error {
	if a.Empty() || b.Empty() {
		return errEmpty
	}
	if a.Width != b.Width || a.Height != b.Height {
		return fmt.Errorf("image dimensions mismatch: %dx%d vs %dx%d", a.Width, a.Height, b.Width, b.Height)
	}
	return nil
}

func meanSquaredError(a, b engine.PixelBuffer) float64 {
	la, lb := luma(a), luma(b)
	floats.Sub(la, lb)
	return floats.Dot(la, la) / float64(len(la))
}

// MSE is the mean squared luminance difference.
type MSE struct{}

func NewMSE() *MSE { return &MSE{} }

func (m *MSE) Calculate(original, processed engine.PixelBuffer) (float64, error) {
	if err := sameSize(original, processed); err != nil {
		return 0, err
	}
	return meanSquaredError(original, processed), nil
}

func (m *MSE) GetName() string              { return "MSE" }
func (m *MSE) GetDescription() string       { return "Mean squared luminance error" }
func (m *MSE) GetRange() (float64, float64) { return 0, 255 * 255 }
func (m *MSE) IsHigherBetter() bool         { return false }

// PSNR implements the peak signal-to-noise ratio in decibels.
type PSNR struct{}

func NewPSNR() *PSNR { return &PSNR{} }

func (p *PSNR) Calculate(original, processed engine.PixelBuffer) (float64, error) {
	if err := sameSize(original, processed); err != nil {
		return 0, err
	}
	mse := meanSquaredError(original, processed)
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}
	return 20 * math.Log10(255/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string              { return "PSNR" }
func (p *PSNR) GetDescription() string       { return "Peak Signal-to-Noise Ratio - measures image quality" }
func (p *PSNR) GetRange() (float64, float64) { return 0, 100 }
func (p *PSNR) IsHigherBetter() bool         { return true }

// Sharpness is the ratio of the Laplacian variance of processed to that of
// original.
type Sharpness struct{}

func NewSharpness() *Sharpness { return &Sharpness{} }

func (s *Sharpness) Calculate(original, processed engine.PixelBuffer) (float64, error) {
	if err := sameSize(original, processed); err != nil {
		return 0, err
	}
	orig := laplacianVariance(original)
	if orig == 0 {
		return 1, nil
	}
	return laplacianVariance(processed) / orig, nil
}

func laplacianVariance(p engine.PixelBuffer) float64 {
	l := luma(p)
	w, h := p.Width, p.Height
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return l[y*w+x]
	}
	lap := make([]float64, 0, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			lap = append(lap, at(x-1, y)+at(x+1, y)+at(x, y-1)+at(x, y+1)-4*at(x, y))
		}
	}
	if len(lap) < 2 {
		return 0
	}
	return stat.Variance(lap, nil)
}

func (s *Sharpness) GetName() string              { return "Sharpness" }
func (s *Sharpness) GetDescription() string       { return "Edge preservation measure" }
func (s *Sharpness) GetRange() (float64, float64) { return 0, 2 }
func (s *Sharpness) IsHigherBetter() bool         { return true }

// EdgeDensity is the fraction of lit pixels in processed that were lit in
// original. Applied to the thinned and hysteresis images it is the share of
// edge candidates hysteresis kept.
type EdgeDensity struct{}

func NewEdgeDensity() *EdgeDensity { return &EdgeDensity{} }

func (d *EdgeDensity) Calculate(original, processed engine.PixelBuffer) (float64, error) {
	if err := sameSize(original, processed); err != nil {
		return 0, err
	}
	candidates, kept := 0.0, 0.0
	lo, lp := luma(original), luma(processed)
	for i := range lo {
		if lo[i] > 0 {
			candidates++
			if lp[i] > 127 {
				kept++
			}
		}
	}
	if candidates == 0 {
		return 0, nil
	}
	return kept / candidates, nil
}

func (d *EdgeDensity) GetName() string              { return "Edge density" }
func (d *EdgeDensity) GetDescription() string       { return "Share of edge candidates kept by hysteresis" }
func (d *EdgeDensity) GetRange() (float64, float64) { return 0, 1 }
func (d *EdgeDensity) IsHigherBetter() bool         { return true }
