package cvengine

import (
	"fmt"
	"math"
	"sort"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"

	"vektor/internal/engine"
)

// raster is a row-major float view with zero padding outside the frame.
type raster struct {
	w, h int
	v    []float32
}

func (r raster) at(x, y int) float32 {
	if x < 0 || y < 0 || x >= r.w || y >= r.h {
		return 0
	}
	return r.v[y*r.w+x]
}

func greyRaster(img *Image) (raster, error) {
	if img.mat.Type() != gocv.MatTypeCV32FC1 {
		return raster{}, fmt.Errorf("cvengine: expected a grey float image, got type %v", img.mat.Type())
	}
	v, err := floatData(img.mat)
	if err != nil {
		return raster{}, err
	}
	return raster{w: img.mat.Cols(), h: img.mat.Rows(), v: v}, nil
}

func newGrey(w, h int) (*Image, raster, error) {
	m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV32FC1)
	v, err := floatData(m)
	if err != nil {
		m.Close()
		return nil, raster{}, err
	}
	for i := range v {
		v[i] = 0
	}
	return &Image{mat: m}, raster{w: w, h: h, v: v}, nil
}

// Thin keeps gradient maxima along the gradient direction.
func (e *Engine) Thin(gradient engine.Image) (engine.Image, error) {
	in, err := asImage(gradient)
	if err != nil {
		return nil, err
	}
	if !in.hasAngle {
		return nil, fmt.Errorf("cvengine: thinning needs a gradient image")
	}
	mag, err := greyRaster(in)
	if err != nil {
		return nil, err
	}
	ang, err := floatData(in.angle)
	if err != nil {
		return nil, err
	}

	out, dst, err := newGrey(mag.w, mag.h)
	if err != nil {
		return nil, err
	}
	for y := 1; y < mag.h-1; y++ {
		for x := 0; x < mag.w; x++ {
			i := y*mag.w + x
			dx, dy := direction(float64(ang[i]) * 180 / math.Pi)
			g0 := mag.v[i]
			if g0 > mag.at(x+dx, y+dy) && g0 > mag.at(x-dx, y-dy) {
				dst.v[i] = g0
			}
		}
	}
	return out, nil
}

func direction(deg float64) (int, int) {
	switch {
	case deg <= 22.5 || deg >= 157.5:
		return 1, 0
	case deg < 67.5:
		return 1, 1
	case deg < 122.5:
		return 0, 1
	}
	return -1, 1
}

// Threshold picks the Otsu split of the thinned magnitudes. The low
// threshold is half the high one.
func (e *Engine) Threshold(thinned engine.Image, buckets int) (engine.Thresholds, error) {
	in, err := asImage(thinned)
	if err != nil {
		return engine.Thresholds{}, err
	}
	if buckets < 2 {
		return engine.Thresholds{}, fmt.Errorf("cvengine: need at least 2 buckets, got %d", buckets)
	}
	r, err := greyRaster(in)
	if err != nil {
		return engine.Thresholds{}, err
	}

	bins := make([]float64, buckets)
	for _, v := range r.v {
		idx := int(float64(v) * float64(buckets-1))
		bins[min(max(idx, 0), buckets-1)]++
	}
	high := otsu(bins)
	return engine.Thresholds{High: high, Low: high / 2}, nil
}

// otsu returns the bucket boundary maximising between-class variance, on the
// same [0,1] scale the histogram was filled with.
func otsu(bins []float64) float64 {
	n := len(bins)
	index := make([]float64, n)
	floats.Span(index, 0, float64(n-1))
	total := floats.Sum(bins)
	muTotal := floats.Dot(bins, index)

	best, bestIdx := 0.0, 0
	w0, mu0 := 0.0, 0.0
	for i := 0; i < n; i++ {
		w1 := total - w0
		if w0 > 0 && w1 > 0 {
			m0 := mu0 / w0
			m1 := (muTotal - mu0) / w1
			if v := w0 * w1 * (m1 - m0) * (m1 - m0); v > best {
				best, bestIdx = v, i
			}
		}
		w0 += bins[i]
		mu0 += float64(i) * bins[i]
	}
	return float64(bestIdx) / float64(n-1)
}

var neighbours8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Hysteresis keeps strong pixels, weak components touching a strong pixel,
// and the largest percentile of the remaining weak components.
func (e *Engine) Hysteresis(thinned engine.Image, t engine.Thresholds, percentile float64) (engine.Image, error) {
	in, err := asImage(thinned)
	if err != nil {
		return nil, err
	}
	r, err := greyRaster(in)
	if err != nil {
		return nil, err
	}
	out, dst, err := newGrey(r.w, r.h)
	if err != nil {
		return nil, err
	}
	high, low := float32(t.High), float32(t.Low)

	visited := make([]bool, len(r.v))
	var orphans [][]int
	var stack []int
	for start, v := range r.v {
		if visited[start] {
			continue
		}
		if v >= high && v > 0 {
			dst.v[start] = 1
			continue
		}
		if v < low || v == 0 {
			continue
		}

		var component []int
		strong := false
		stack = append(stack[:0], start)
		visited[start] = true
		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, p)
			px, py := p%r.w, p/r.w
			for _, d := range neighbours8 {
				qx, qy := px+d[0], py+d[1]
				q := r.at(qx, qy)
				if q >= high && q > 0 {
					strong = true
				}
				if q < low || q >= high || q == 0 {
					continue
				}
				qi := qy*r.w + qx
				if !visited[qi] {
					visited[qi] = true
					stack = append(stack, qi)
				}
			}
		}
		if strong {
			for _, p := range component {
				dst.v[p] = 1
			}
			continue
		}
		orphans = append(orphans, component)
	}

	sort.SliceStable(orphans, func(i, j int) bool { return len(orphans[i]) > len(orphans[j]) })
	take := int(float64(len(orphans)) * min(max(percentile, 0), 1))
	for _, component := range orphans[:take] {
		for _, p := range component {
			dst.v[p] = 1
		}
	}
	return out, nil
}
