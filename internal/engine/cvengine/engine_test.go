package cvengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/engine"
	"vektor/internal/engine/enginetest"
)

func TestOtsuSplitsBimodalHistogram(t *testing.T) {
	bins := make([]float64, 10)
	bins[1], bins[8] = 50, 50
	high := otsu(bins)
	assert.Greater(t, high, 0.1)
	assert.LessOrEqual(t, high, 0.8)

	assert.Zero(t, otsu(make([]float64, 4)))
}

func TestOtsuThresholdMatchesHistogramScale(t *testing.T) {
	// Values 0 and 1 land in the first and last of 256 buckets. The split is
	// the lower edge of bucket 1, which is 1/255 in value space.
	bins := make([]float64, 256)
	bins[0], bins[255] = 10, 10
	assert.InDelta(t, 1.0/255, otsu(bins), 1e-12)

	bins = make([]float64, 10)
	bins[1], bins[8] = 50, 50
	high := otsu(bins)
	assert.InDelta(t, 2.0/9, high, 1e-12)
	assert.Less(t, 1.0/9, high)
	assert.GreaterOrEqual(t, 8.0/9, high)
}

func TestDirectionBuckets(t *testing.T) {
	cases := []struct {
		deg    float64
		dx, dy int
	}{
		{0, 1, 0},
		{170, 1, 0},
		{45, 1, 1},
		{90, 0, 1},
		{135, -1, 1},
	}
	for _, c := range cases {
		dx, dy := direction(c.deg)
		assert.Equal(t, [2]int{c.dx, c.dy}, [2]int{dx, dy}, "deg %v", c.deg)
	}
}

func TestFitCubicOnStraightLine(t *testing.T) {
	var pts []engine.Point
	for i := 0; i <= 20; i++ {
		pts = append(pts, engine.Point{X: float64(i), Y: 2 * float64(i)})
	}
	b, _, worst := fitCubic(pts)
	assert.Less(t, worst, 1e-6)
	assert.Equal(t, pts[0], b.P0)
	assert.Equal(t, pts[20], b.P3)
	assert.Len(t, fitPath(pts, 0), 1)
}

func TestFindPathsJoinsBothDirections(t *testing.T) {
	r := raster{w: 12, h: 3, v: make([]float32, 36)}
	for x := 1; x < 11; x++ {
		r.v[12+x] = 1
	}
	paths := findPaths(r)
	require.Len(t, paths, 1)
	assert.Len(t, paths[0], 10)

	r.v = make([]float32, 36)
	r.v[13], r.v[14] = 1, 1
	assert.Empty(t, findPaths(r))
}

func TestEngineBlankImageHasNoCurves(t *testing.T) {
	e := New(nil)
	src, err := e.BuildSource(enginetest.Blank(24, 16, 200))
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 24, src.Width())
	assert.Equal(t, 16, src.Height())

	px, err := e.Pixels(src)
	require.NoError(t, err)
	assert.True(t, px.Equal(enginetest.Blank(24, 16, 200)))

	edges, err := e.Hysteresis(mustGrey(t, 24, 16), engine.Thresholds{High: 0.5, Low: 0.25}, 1)
	require.NoError(t, err)
	defer edges.Close()
	cl, err := e.Trace(edges)
	require.NoError(t, err)
	defer cl.Close()
	assert.Zero(t, cl.Len())

	plot, err := e.RenderGreyscale(8, 4, cl, 0)
	require.NoError(t, err)
	defer plot.Close()
	assert.Equal(t, 8, plot.Width())
}

func TestEngineRejectsForeignHandles(t *testing.T) {
	e := New(nil)
	fake := enginetest.New()
	img, err := fake.BuildSource(enginetest.Blank(2, 2, 0))
	require.NoError(t, err)
	defer img.Close()

	_, err = e.Blur(img, 1, 1, 1)
	assert.Error(t, err)
	_, err = e.RenderGreyscale(2, 2, nil, 0)
	assert.Error(t, err)
}

func mustGrey(t *testing.T, w, h int) *Image {
	t.Helper()
	img, _, err := newGrey(w, h)
	require.NoError(t, err)
	t.Cleanup(func() { img.Close() })
	return img
}
