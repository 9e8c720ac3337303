package plotview

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/plot/vg"

	"vektor/internal/core"
	"vektor/internal/engine"
	"vektor/internal/render"
)

func diagonal(i int) engine.Curve {
	o := float64(i) / 100
	return engine.Curve{
		Bezier: engine.Bezier{
			P0: engine.Point{X: o, Y: 0},
			P1: engine.Point{X: o + 0.1, Y: 0.1},
			P2: engine.Point{X: o + 0.2, Y: 0.2},
			P3: engine.Point{X: o + 0.3, Y: 0.3},
		},
		Color: engine.RGB{R: 0.2, G: 0.4, B: 0.6},
	}
}

func TestViewCollectsStreamedBatches(t *testing.T) {
	curves := make([]engine.Curve, 47)
	for i := range curves {
		curves[i] = diagonal(i)
	}

	v := New("curves")
	var q render.Queue
	r := render.NewRenderer(v, &q)
	style := render.Style{ColorMode: core.ColorModeSolid, Background: core.BackgroundWhite}
	r.Start(curves, style)
	q.Drain()

	assert.Equal(t, render.StateCompleted, r.State())
	assert.Equal(t, 47, v.Len())
	assert.Equal(t, style, v.Style())

	dir := t.TempDir()
	for _, name := range []string{"curves.png", "curves.svg"} {
		path := filepath.Join(dir, name)
		require.NoError(t, v.Save(4*vg.Inch, 3*vg.Inch, path))
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size(), name)
	}
}

func TestViewResetDropsCurves(t *testing.T) {
	v := New("")
	v.AddBatch([]engine.Curve{diagonal(0), diagonal(1)}, render.Style{})
	assert.Equal(t, 2, v.Len())

	v.Reset(render.Style{Background: core.BackgroundWhite})
	assert.Zero(t, v.Len())
	require.NoError(t, v.Save(2*vg.Inch, 2*vg.Inch, filepath.Join(t.TempDir(), "empty.png")))
}
