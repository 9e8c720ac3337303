package cvengine

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"vektor/internal/engine"
)

const (
	// minPathLen drops specks shorter than this many pixels.
	minPathLen = 6
	// fitTolerance is the largest allowed pixel distance from a fitted curve.
	fitTolerance = 1.5
	// maxFitDepth caps recursive splitting of a path.
	maxFitDepth = 12
)

// Curves is a traced curve list in width-normalised coordinates.
type Curves struct {
	curves []engine.Bezier
	closed bool
}

func (c *Curves) Len() int               { return len(c.curves) }
func (c *Curves) At(i int) engine.Bezier { return c.curves[i] }

func (c *Curves) Close() error {
	c.closed = true
	c.curves = nil
	return nil
}

func asCurves(cl engine.CurveList) (*Curves, bool) {
	c, ok := cl.(*Curves)
	return c, ok && c != nil && !c.closed
}

// Trace links edge pixels into paths and fits cubic Béziers to them.
func (e *Engine) Trace(edges engine.Image) (engine.CurveList, error) {
	in, err := asImage(edges)
	if err != nil {
		return nil, err
	}
	r, err := greyRaster(in)
	if err != nil {
		return nil, err
	}

	paths := findPaths(r)
	scale := 1 / float64(r.w)
	out := &Curves{}
	for _, path := range paths {
		for _, b := range fitPath(path, 0) {
			out.curves = append(out.curves, b.Scale(scale))
		}
	}
	e.logger.WithField("paths", len(paths)).WithField("curves", len(out.curves)).Debug("cvengine: traced")
	return out, nil
}

// pathNeighbours is ordered so that axis steps are tried before diagonals.
var pathNeighbours = [8][2]int{
	{1, 0}, {0, 1}, {-1, 0}, {0, -1},
	{1, 1}, {-1, 1}, {-1, -1}, {1, -1},
}

func findPaths(r raster) [][]engine.Point {
	on := func(x, y int) bool { return r.at(x, y) > 0.5 }
	visited := make([]bool, len(r.v))
	free := func(x, y int) bool {
		return on(x, y) && !visited[y*r.w+x]
	}

	// step picks the free neighbour best aligned with the previous heading.
	step := func(x, y, hx, hy int) (int, int, bool) {
		bestScore, bx, by, found := math.Inf(-1), 0, 0, false
		for _, d := range pathNeighbours {
			nx, ny := x+d[0], y+d[1]
			if !free(nx, ny) {
				continue
			}
			score := float64(d[0]*hx+d[1]*hy) - 0.1*math.Hypot(float64(d[0]), float64(d[1]))
			if score > bestScore {
				bestScore, bx, by, found = score, nx, ny, true
			}
		}
		return bx, by, found
	}

	walk := func(x, y int) []engine.Point {
		pts := []engine.Point{{X: float64(x), Y: float64(y)}}
		visited[y*r.w+x] = true
		hx, hy := 0, 0
		for {
			nx, ny, ok := step(x, y, hx, hy)
			if !ok {
				return pts
			}
			hx, hy = nx-x, ny-y
			x, y = nx, ny
			visited[y*r.w+x] = true
			pts = append(pts, engine.Point{X: float64(x), Y: float64(y)})
		}
	}

	var paths [][]engine.Point
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			if !free(x, y) {
				continue
			}
			// Walk both ways from the seed and join the halves.
			forward := walk(x, y)
			backward := walk(x, y)
			path := make([]engine.Point, 0, len(forward)+len(backward))
			for i := len(backward) - 1; i > 0; i-- {
				path = append(path, backward[i])
			}
			path = append(path, forward...)
			if len(path) >= minPathLen {
				paths = append(paths, path)
			}
		}
	}
	return paths
}

// fitPath fits one cubic to pts with fixed end points, splitting at the
// worst point while the error exceeds the tolerance.
func fitPath(pts []engine.Point, depth int) []engine.Bezier {
	if len(pts) < 2 {
		return nil
	}
	b, worst, err := fitCubic(pts)
	if err <= fitTolerance || len(pts) < 2*minPathLen || depth >= maxFitDepth {
		return []engine.Bezier{b}
	}
	worst = min(max(worst, minPathLen/2), len(pts)-1-minPathLen/2)
	left := fitPath(pts[:worst+1], depth+1)
	right := fitPath(pts[worst:], depth+1)
	return append(left, right...)
}

// fitCubic solves for the inner control points by least squares over a
// chord-length parameterisation. It returns the curve, the index of the worst
// fitted point and its distance.
func fitCubic(pts []engine.Point) (engine.Bezier, int, float64) {
	n := len(pts)
	p0, p3 := pts[0], pts[n-1]
	line := engine.Bezier{P0: p0, P1: p0.Lerp(p3, 1.0/3), P2: p0.Lerp(p3, 2.0/3), P3: p3}
	if n < 4 {
		return line, 0, 0
	}

	ts := make([]float64, n)
	for i := 1; i < n; i++ {
		ts[i] = ts[i-1] + pts[i].Dist(pts[i-1])
	}
	total := ts[n-1]
	if total == 0 {
		return line, 0, 0
	}
	for i := range ts {
		ts[i] /= total
	}

	a := mat.NewDense(n, 2, nil)
	rhs := mat.NewDense(n, 2, nil)
	for i, t := range ts {
		u := 1 - t
		b0, b1, b2, b3 := u*u*u, 3*u*u*t, 3*u*t*t, t*t*t
		a.Set(i, 0, b1)
		a.Set(i, 1, b2)
		rhs.Set(i, 0, pts[i].X-b0*p0.X-b3*p3.X)
		rhs.Set(i, 1, pts[i].Y-b0*p0.Y-b3*p3.Y)
	}
	var ctrl mat.Dense
	if err := ctrl.Solve(a, rhs); err != nil {
		return line, n / 2, math.Inf(1)
	}
	b := engine.Bezier{
		P0: p0,
		P1: engine.Point{X: ctrl.At(0, 0), Y: ctrl.At(0, 1)},
		P2: engine.Point{X: ctrl.At(1, 0), Y: ctrl.At(1, 1)},
		P3: p3,
	}

	worst, worstErr := 0, 0.0
	for i, t := range ts {
		if d := b.Eval(t).Dist(pts[i]); d > worstErr {
			worst, worstErr = i, d
		}
	}
	return b, worst, worstErr
}
