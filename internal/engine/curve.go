package engine

import "math"

// Point is a 2D coordinate. Traced curves use coordinates normalised by the
// source image width.
type Point struct {
	X, Y float64
}

func (p Point) Add(q Point) Point             { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) Sub(q Point) Point             { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) Mul(s float64) Point           { return Point{p.X * s, p.Y * s} }
func (p Point) Dist(q Point) float64          { return math.Hypot(p.X-q.X, p.Y-q.Y) }
func (p Point) Lerp(q Point, t float64) Point { return p.Add(q.Sub(p).Mul(t)) }

// Bezier is a cubic Bézier curve.
type Bezier struct {
	P0, P1, P2, P3 Point
}

// Eval returns the point at parameter t in [0,1].
func (b Bezier) Eval(t float64) Point {
	u := 1 - t
	return b.P0.Mul(u * u * u).
		Add(b.P1.Mul(3 * u * u * t)).
		Add(b.P2.Mul(3 * u * t * t)).
		Add(b.P3.Mul(t * t * t))
}

// Scale multiplies every control point by s.
func (b Bezier) Scale(s float64) Bezier {
	return Bezier{b.P0.Mul(s), b.P1.Mul(s), b.P2.Mul(s), b.P3.Mul(s)}
}

// Flatten samples the curve into a polyline whose chords deviate from the
// curve by at most tolerance (in the curve's own units). The first and last
// points are the curve endpoints.
func (b Bezier) Flatten(tolerance float64) []Point {
	sq := func(v float64) float64 { return v * v }
	dd0 := sq(b.P0.X-2*b.P1.X+b.P2.X) + sq(b.P0.Y-2*b.P1.Y+b.P2.Y)
	dd1 := sq(b.P1.X-2*b.P2.X+b.P3.X) + sq(b.P1.Y-2*b.P2.Y+b.P3.Y)
	dd := 6 * math.Sqrt(math.Max(dd0, dd1))

	e2 := 1.0
	if 8*tolerance <= dd {
		e2 = 8 * tolerance / dd
	}
	step := math.Sqrt(e2)

	points := []Point{b.P0}
	for t := step; t < 1; t += step {
		points = append(points, b.Eval(t))
	}
	return append(points, b.P3)
}

// Curve is a plain-value traced curve with its display colour. It holds no
// engine resources.
type Curve struct {
	Bezier
	Color RGB
}
