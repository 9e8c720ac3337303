package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/core"
	"vektor/internal/engine"
	"vektor/internal/engine/enginetest"
)

func TestPSNRAndMSE(t *testing.T) {
	a := enginetest.Blank(4, 4, 100)
	b := enginetest.Blank(4, 4, 110)
	e := NewEvaluator()

	mse, err := e.Calculate("mse", a, b)
	require.NoError(t, err)
	assert.InDelta(t, 100, mse, 1e-6)

	psnr, err := e.Calculate("psnr", a, b)
	require.NoError(t, err)
	assert.InDelta(t, 20*math.Log10(25.5), psnr, 1e-6)

	same, err := e.Calculate("psnr", a, a)
	require.NoError(t, err)
	assert.True(t, math.IsInf(same, 1))
}

func TestMetricErrors(t *testing.T) {
	e := NewEvaluator()
	_, err := e.Calculate("psnr", enginetest.Blank(2, 2, 0), enginetest.Blank(3, 2, 0))
	assert.ErrorContains(t, err, "mismatch")
	_, err = e.Calculate("mse", engine.PixelBuffer{}, enginetest.Blank(1, 1, 0))
	assert.ErrorIs(t, err, errEmpty)
	_, err = e.Calculate("ssim", enginetest.Blank(1, 1, 0), enginetest.Blank(1, 1, 0))
	assert.ErrorContains(t, err, "metric not found")

	assert.Equal(t, []string{"edge_density", "mse", "psnr", "sharpness"}, e.Names())
	assert.Empty(t, e.CalculateAll(enginetest.Blank(2, 2, 0), enginetest.Blank(1, 1, 0)))
}

func TestSharpnessOfFlatImages(t *testing.T) {
	flat := enginetest.Blank(8, 8, 50)
	square := enginetest.Square(8, 8, engine.RGB{R: 1, G: 1, B: 1})

	got, err := NewSharpness().Calculate(flat, square)
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)

	got, err = NewSharpness().Calculate(square, flat)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestEvaluateStages(t *testing.T) {
	thinned := enginetest.Square(8, 8, engine.RGB{R: 1, G: 1, B: 1})
	edges := enginetest.Blank(8, 8, 0)
	edges.Pix[4*(2*8+2)], edges.Pix[4*(2*8+2)+1], edges.Pix[4*(2*8+2)+2] = 255, 255, 255

	views := []core.StageView{
		{Stage: core.StageSource, Pixels: enginetest.Blank(8, 8, 10)},
		{Stage: core.StageBlur, Pixels: enginetest.Blank(8, 8, 10)},
		{Stage: core.StageThinned, Pixels: thinned},
		{Stage: core.StageEdgeMap, Pixels: edges},
		{Stage: core.StageColorPlot, Pixels: enginetest.Blank(16, 16, 0)},
	}
	got := NewEvaluator().EvaluateStages(views)

	assert.True(t, math.IsInf(got["blur_psnr"], 1))
	assert.Equal(t, 1.0, got["blur_sharpness"])
	assert.InDelta(t, 1.0/16, got["edge_density"], 1e-9)
	assert.NotContains(t, got, "plot_psnr", "scaled plots are not compared")
}

func TestMetricForAndDescribe(t *testing.T) {
	e := NewEvaluator()
	m, ok := e.MetricFor("blur_psnr")
	require.True(t, ok)
	assert.Equal(t, "PSNR: Peak Signal-to-Noise Ratio - measures image quality, higher is better, range 0 to 100", Describe(m))

	m, ok = e.MetricFor("edge_density")
	require.True(t, ok)
	assert.Equal(t, "Edge density", m.GetName())

	_, ok = e.MetricFor("mse")
	assert.False(t, ok, "only stage results are mapped")

	assert.Contains(t, Describe(NewMSE()), "lower is better, range 0 to 65025")
}
