// Package enginetest provides a deterministic in-memory engine that records
// every allocation and release, with failure injection per operation.
package enginetest

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"vektor/internal/engine"
)

// Operation names, as counted by Calls and targeted by FailOn.
const (
	OpBuildSource     = "BuildSource"
	OpBlur            = "Blur"
	OpGradient        = "Gradient"
	OpThin            = "Thin"
	OpThreshold       = "Threshold"
	OpHysteresis      = "Hysteresis"
	OpTrace           = "Trace"
	OpCurveColor      = "CurveColor"
	OpRenderGreyscale = "RenderGreyscale"
	OpRenderColor     = "RenderColor"
	OpPixels          = "Pixels"
)

// AnalyticOps are the operations upstream of plotting.
var AnalyticOps = []string{OpBlur, OpGradient, OpThin, OpThreshold, OpHysteresis, OpTrace}

type allocation struct {
	op       string
	releases int
}

// Engine implements engine.Engine over plain Go slices.
type Engine struct {
	mu       sync.Mutex
	nextID   int
	allocs   map[int]*allocation
	calls    map[string]int
	failures map[string]error
	panics   map[string]bool
}

var _ engine.Engine = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		allocs:   make(map[int]*allocation),
		calls:    make(map[string]int),
		failures: make(map[string]error),
		panics:   make(map[string]bool),
	}
}

// FailOn makes every following call to op return err. A nil err clears it.
func (e *Engine) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, op)
		return
	}
	e.failures[op] = err
}

// PanicOn makes every following call to op panic.
func (e *Engine) PanicOn(op string, on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.panics[op] = on
}

// Calls returns how many times op was invoked.
func (e *Engine) Calls(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// ResetCalls zeroes the call counters, leaving the ledger intact.
func (e *Engine) ResetCalls() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = make(map[string]int)
}

// Allocated is the number of resources ever handed out.
func (e *Engine) Allocated() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.allocs)
}

// Live lists the operations whose results are still unreleased, sorted.
func (e *Engine) Live() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var live []string
	for _, a := range e.allocs {
		if a.releases == 0 {
			live = append(live, a.op)
		}
	}
	sort.Strings(live)
	return live
}

// OverReleased counts resources closed more than once.
func (e *Engine) OverReleased() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, a := range e.allocs {
		if a.releases > 1 {
			n++
		}
	}
	return n
}

func (e *Engine) enter(op string) error {
	e.mu.Lock()
	e.calls[op]++
	err := e.failures[op]
	panics := e.panics[op]
	e.mu.Unlock()

	if panics {
		panic(fmt.Sprintf("enginetest: %s panicked", op))
	}
	return err
}

func (e *Engine) alloc(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.allocs[e.nextID] = &allocation{op: op}
	return e.nextID
}

func (e *Engine) release(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if a, ok := e.allocs[id]; ok {
		a.releases++
	}
}

// Image is the engine's raster. Grey images use grey; colour images use rgb.
type Image struct {
	eng    *Engine
	id     int
	width  int
	height int
	grey   []float64
	rgb    []engine.RGB
	angle  []float64
	closed bool
}

func (img *Image) Width() int  { return img.width }
func (img *Image) Height() int { return img.height }

func (img *Image) Close() error {
	img.eng.release(img.id)
	img.closed = true
	return nil
}

func (img *Image) at(x, y int) float64 {
	x = clamp(x, 0, img.width-1)
	y = clamp(y, 0, img.height-1)
	i := y*img.width + x
	if img.grey != nil {
		return img.grey[i]
	}
	c := img.rgb[i]
	return 0.299*c.R + 0.587*c.G + 0.114*c.B
}

// Curves is the engine's curve list.
type Curves struct {
	eng    *Engine
	id     int
	curves []engine.Bezier
}

func (c *Curves) Len() int               { return len(c.curves) }
func (c *Curves) At(i int) engine.Bezier { return c.curves[i] }

func (c *Curves) Close() error {
	c.eng.release(c.id)
	return nil
}

func (e *Engine) newGrey(op string, w, h int) *Image {
	return &Image{eng: e, id: e.alloc(op), width: w, height: h, grey: make([]float64, w*h)}
}

func (e *Engine) newRGB(op string, w, h int) *Image {
	return &Image{eng: e, id: e.alloc(op), width: w, height: h, rgb: make([]engine.RGB, w*h)}
}

func asImage(img engine.Image) (*Image, error) {
	fi, ok := img.(*Image)
	if !ok || fi == nil {
		return nil, fmt.Errorf("enginetest: foreign image %T", img)
	}
	if fi.closed {
		return nil, fmt.Errorf("enginetest: use of released image #%d", fi.id)
	}
	return fi, nil
}

func asCurves(cl engine.CurveList) (*Curves, error) {
	c, ok := cl.(*Curves)
	if !ok || c == nil {
		return nil, fmt.Errorf("enginetest: foreign curve list %T", cl)
	}
	return c, nil
}

func (e *Engine) BuildSource(src engine.PixelBuffer) (engine.Image, error) {
	if err := e.enter(OpBuildSource); err != nil {
		return nil, err
	}
	if _, err := engine.NewPixelBuffer(src.Width, src.Height, src.Pix); err != nil {
		return nil, err
	}
	img := e.newRGB(OpBuildSource, src.Width, src.Height)
	for i := range img.rgb {
		img.rgb[i] = engine.RGB{
			R: float64(src.Pix[4*i]) / 255,
			G: float64(src.Pix[4*i+1]) / 255,
			B: float64(src.Pix[4*i+2]) / 255,
		}
	}
	return img, nil
}

func (e *Engine) Blur(src engine.Image, factor float64, kernelSize, iterations int) (engine.Image, error) {
	if err := e.enter(OpBlur); err != nil {
		return nil, err
	}
	in, err := asImage(src)
	if err != nil {
		return nil, err
	}
	w, h := in.width, in.height
	cur := append([]engine.RGB(nil), in.rgb...)
	for it := 0; it < iterations; it++ {
		next := make([]engine.RGB, len(cur))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				var sum engine.RGB
				n := 0.0
				for dy := -kernelSize; dy <= kernelSize; dy++ {
					for dx := -kernelSize; dx <= kernelSize; dx++ {
						c := cur[clamp(y+dy, 0, h-1)*w+clamp(x+dx, 0, w-1)]
						sum.R += c.R
						sum.G += c.G
						sum.B += c.B
						n++
					}
				}
				orig := cur[y*w+x]
				next[y*w+x] = engine.RGB{
					R: mix(orig.R, sum.R/n, factor),
					G: mix(orig.G, sum.G/n, factor),
					B: mix(orig.B, sum.B/n, factor),
				}
			}
		}
		cur = next
	}
	out := e.newRGB(OpBlur, w, h)
	copy(out.rgb, cur)
	return out, nil
}

func (e *Engine) Gradient(blurred engine.Image) (engine.Image, error) {
	if err := e.enter(OpGradient); err != nil {
		return nil, err
	}
	in, err := asImage(blurred)
	if err != nil {
		return nil, err
	}
	out := e.newGrey(OpGradient, in.width, in.height)
	out.angle = make([]float64, len(out.grey))
	maxMag := 0.0
	for y := 0; y < in.height; y++ {
		for x := 0; x < in.width; x++ {
			gx := in.at(x+1, y) - in.at(x-1, y)
			gy := in.at(x, y+1) - in.at(x, y-1)
			i := y*in.width + x
			out.grey[i] = math.Hypot(gx, gy)
			out.angle[i] = math.Atan2(gy, gx)
			maxMag = math.Max(maxMag, out.grey[i])
		}
	}
	if maxMag > 0 {
		for i := range out.grey {
			out.grey[i] /= maxMag
		}
	}
	return out, nil
}

func (e *Engine) Thin(gradient engine.Image) (engine.Image, error) {
	if err := e.enter(OpThin); err != nil {
		return nil, err
	}
	in, err := asImage(gradient)
	if err != nil {
		return nil, err
	}
	out := e.newGrey(OpThin, in.width, in.height)
	for y := 0; y < in.height; y++ {
		for x := 0; x < in.width; x++ {
			i := y*in.width + x
			v := in.grey[i]
			dx, dy := 1, 0
			if in.angle != nil && math.Abs(math.Sin(in.angle[i])) > math.Abs(math.Cos(in.angle[i])) {
				dx, dy = 0, 1
			}
			if v > 0 && v >= in.at(x+dx, y+dy) && v >= in.at(x-dx, y-dy) {
				out.grey[i] = v
			}
		}
	}
	return out, nil
}

func (e *Engine) Threshold(thinned engine.Image, buckets int) (engine.Thresholds, error) {
	if err := e.enter(OpThreshold); err != nil {
		return engine.Thresholds{}, err
	}
	in, err := asImage(thinned)
	if err != nil {
		return engine.Thresholds{}, err
	}
	if buckets < 2 {
		return engine.Thresholds{}, fmt.Errorf("enginetest: need at least 2 buckets, got %d", buckets)
	}
	maxV := 0.0
	for _, v := range in.grey {
		maxV = math.Max(maxV, v)
	}
	high := math.Floor(maxV*0.5*float64(buckets-1)) / float64(buckets-1)
	return engine.Thresholds{High: high, Low: high / 2}, nil
}

func (e *Engine) Hysteresis(thinned engine.Image, t engine.Thresholds, percentile float64) (engine.Image, error) {
	if err := e.enter(OpHysteresis); err != nil {
		return nil, err
	}
	in, err := asImage(thinned)
	if err != nil {
		return nil, err
	}
	w, h := in.width, in.height
	out := e.newGrey(OpHysteresis, w, h)
	strong := func(x, y int) bool {
		if x < 0 || y < 0 || x >= w || y >= h {
			return false
		}
		v := in.grey[y*w+x]
		return v > 0 && v >= t.High
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := in.grey[y*w+x]
			switch {
			case strong(x, y):
				out.grey[y*w+x] = 1
			case v > 0 && v >= t.Low:
				if percentile >= 1 || strong(x-1, y) || strong(x+1, y) || strong(x, y-1) || strong(x, y+1) {
					out.grey[y*w+x] = 1
				}
			}
		}
	}
	return out, nil
}

// Trace emits one straight curve per horizontal run of edge pixels.
func (e *Engine) Trace(edges engine.Image) (engine.CurveList, error) {
	if err := e.enter(OpTrace); err != nil {
		return nil, err
	}
	in, err := asImage(edges)
	if err != nil {
		return nil, err
	}
	scale := 1 / float64(in.width)
	var curves []engine.Bezier
	for y := 0; y < in.height; y++ {
		x := 0
		for x < in.width {
			if in.grey[y*in.width+x] == 0 {
				x++
				continue
			}
			start := x
			for x < in.width && in.grey[y*in.width+x] != 0 {
				x++
			}
			p0 := engine.Point{X: float64(start), Y: float64(y)}
			p3 := engine.Point{X: float64(x - 1), Y: float64(y)}
			curves = append(curves, engine.Bezier{
				P0: p0, P1: p0.Lerp(p3, 1.0/3), P2: p0.Lerp(p3, 2.0/3), P3: p3,
			}.Scale(scale))
		}
	}
	return &Curves{eng: e, id: e.alloc(OpTrace), curves: curves}, nil
}

func (e *Engine) CurveColor(curve engine.Bezier, src engine.Image) (engine.RGB, error) {
	if err := e.enter(OpCurveColor); err != nil {
		return engine.RGB{}, err
	}
	in, err := asImage(src)
	if err != nil {
		return engine.RGB{}, err
	}
	return in.colorAt(curve.Scale(float64(in.width)).Eval(0.5)), nil
}

func (img *Image) colorAt(p engine.Point) engine.RGB {
	x := clamp(int(math.Round(p.X)), 0, img.width-1)
	y := clamp(int(math.Round(p.Y)), 0, img.height-1)
	if img.rgb != nil {
		return img.rgb[y*img.width+x]
	}
	v := img.grey[y*img.width+x]
	return engine.RGB{R: v, G: v, B: v}
}

func (e *Engine) RenderGreyscale(width, height int, curves engine.CurveList, background float64) (engine.Image, error) {
	if err := e.enter(OpRenderGreyscale); err != nil {
		return nil, err
	}
	cl, err := asCurves(curves)
	if err != nil {
		return nil, err
	}
	out := e.newGrey(OpRenderGreyscale, width, height)
	for i := range out.grey {
		out.grey[i] = background
	}
	for _, b := range cl.curves {
		for _, p := range b.Scale(float64(width)).Flatten(0.1) {
			if x, y, ok := out.pixel(p); ok {
				out.grey[y*width+x] = 1 - background
			}
		}
	}
	return out, nil
}

func (e *Engine) RenderColor(width, height int, curves engine.CurveList, src engine.Image, background engine.RGB) (engine.Image, error) {
	if err := e.enter(OpRenderColor); err != nil {
		return nil, err
	}
	cl, err := asCurves(curves)
	if err != nil {
		return nil, err
	}
	source, err := asImage(src)
	if err != nil {
		return nil, err
	}
	out := e.newRGB(OpRenderColor, width, height)
	for i := range out.rgb {
		out.rgb[i] = background
	}
	for _, b := range cl.curves {
		c := source.colorAt(b.Scale(float64(source.width)).Eval(0.5))
		for _, p := range b.Scale(float64(width)).Flatten(0.1) {
			if x, y, ok := out.pixel(p); ok {
				out.rgb[y*width+x] = c
			}
		}
	}
	return out, nil
}

func (img *Image) pixel(p engine.Point) (int, int, bool) {
	x, y := int(math.Round(p.X)), int(math.Round(p.Y))
	if x < 0 || y < 0 || x >= img.width || y >= img.height {
		return 0, 0, false
	}
	return x, y, true
}

func (e *Engine) Pixels(img engine.Image) (engine.PixelBuffer, error) {
	if err := e.enter(OpPixels); err != nil {
		return engine.PixelBuffer{}, err
	}
	in, err := asImage(img)
	if err != nil {
		return engine.PixelBuffer{}, err
	}
	pix := make([]byte, in.width*in.height*4)
	for i := 0; i < in.width*in.height; i++ {
		var c engine.RGB
		if in.rgb != nil {
			c = in.rgb[i]
		} else {
			c = engine.RGB{R: in.grey[i], G: in.grey[i], B: in.grey[i]}
		}
		n := c.NRGBA()
		pix[4*i], pix[4*i+1], pix[4*i+2], pix[4*i+3] = n.R, n.G, n.B, 0xff
	}
	return engine.PixelBuffer{Width: in.width, Height: in.height, Pix: pix}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func mix(a, b, t float64) float64 {
	t = math.Max(0, math.Min(1, t))
	return a + (b-a)*t
}
