package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vektor/internal/engine"
)

func TestCurveBounds(t *testing.T) {
	b := CurveBounds([]engine.Curve{
		{Bezier: engine.Bezier{P0: engine.Point{X: 0.1, Y: 0.2}, P1: engine.Point{X: 0.5, Y: 0.9}, P3: engine.Point{X: 0.3, Y: 0.4}}},
	})
	assert.InDelta(t, 0, b.Left, 1e-9) // P2 is the zero point
	assert.InDelta(t, 0.5, b.Right, 1e-9)
	assert.InDelta(t, 0, b.Top, 1e-9)
	assert.InDelta(t, -0.9, b.Bottom, 1e-9)
	assert.True(t, CurveBounds(nil).Empty())
}

func TestFitAspect(t *testing.T) {
	b := Bounds{Left: 0, Right: 2, Bottom: -1, Top: 0}

	wide := FitAspect(b, 4, 0)
	assert.InDelta(t, 4, wide.Width()/wide.Height(), 1e-9)
	assert.LessOrEqual(t, wide.Left, b.Left)
	assert.GreaterOrEqual(t, wide.Right, b.Right)
	assert.LessOrEqual(t, wide.Bottom, b.Bottom)
	assert.GreaterOrEqual(t, wide.Top, b.Top)

	tall := FitAspect(b, 0.5, 0.1)
	assert.InDelta(t, 0.5, tall.Width()/tall.Height(), 1e-9)
	assert.LessOrEqual(t, tall.Left, b.Left)
	assert.GreaterOrEqual(t, tall.Right, b.Right)

	assert.False(t, FitAspect(Bounds{Left: 1, Right: 0}, 1, 0).Empty())
}

func TestProject(t *testing.T) {
	b := Bounds{Left: 0, Right: 1, Bottom: -1, Top: 0}
	x, y := b.Project(engine.Point{X: 0.5, Y: 0.25}, 200, 100)
	assert.InDelta(t, 100, x, 1e-9)
	assert.InDelta(t, 25, y, 1e-9)
}
