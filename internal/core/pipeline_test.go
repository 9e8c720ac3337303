package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/engine"
	"vektor/internal/engine/enginetest"
)

func newTestPipeline(t *testing.T) (*Pipeline, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.New()
	p := NewPipeline(eng, nil, WithTracer(NewTracer(nil, 8)))
	t.Cleanup(func() {
		require.NoError(t, p.Close())
		assert.Empty(t, eng.Live())
		assert.Zero(t, eng.OverReleased())
	})
	return p, eng
}

func TestPipelineIterationChangeScenario(t *testing.T) {
	p, eng := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Square(100, 100, white)))

	views := p.ReadyStages()
	require.Len(t, views, len(ImageStages))
	sourceBefore := views[0].Pixels
	assert.Equal(t, "Source Image", views[0].Name)
	assert.NotEmpty(t, p.Curves())

	eng.ResetCalls()
	next := p.Parameters()
	next.Iterations = 2
	start, ok := EarliestInvalidated(p.Parameters(), next)
	require.True(t, ok)
	assert.Equal(t, StageBlur, start)

	require.NoError(t, p.SetParameters(next))
	assert.Zero(t, eng.Calls(enginetest.OpBuildSource))
	for _, op := range enginetest.AnalyticOps {
		assert.Equal(t, 1, eng.Calls(op), op)
	}
	assert.Equal(t, 1, eng.Calls(enginetest.OpRenderGreyscale))
	assert.Equal(t, 1, eng.Calls(enginetest.OpRenderColor))

	after := p.ReadyStages()
	assert.True(t, sourceBefore.Equal(after[0].Pixels))
	assert.NotEmpty(t, p.Curves())
	assert.Equal(t, 2, p.Parameters().Iterations)

	last, ok := p.Tracer().Last()
	require.True(t, ok)
	assert.Equal(t, StageBlur, last.Start)
}

func TestPipelineBlankImage(t *testing.T) {
	p, _ := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Blank(100, 100, 200)))
	assert.Empty(t, p.Curves())
	assert.Len(t, p.ReadyStages(), len(ImageStages))
}

func TestPipelineParametersWithoutSource(t *testing.T) {
	p, eng := newTestPipeline(t)
	var updates int
	p.Subscribe(func(Update) { updates++ })

	next := DefaultParameters()
	next.KernelSize = 3
	require.NoError(t, p.SetParameters(next))
	assert.Equal(t, next, p.Parameters())
	assert.False(t, p.HasSource())
	assert.Nil(t, p.ReadyStages())
	assert.Zero(t, eng.Allocated())
	assert.Zero(t, updates)

	bad := next
	bad.PlotScale = -1
	assert.ErrorIs(t, p.SetParameters(bad), ErrInvalidParameters)
	assert.Equal(t, next, p.Parameters())
}

func TestPipelineColorModeNotifiesWithoutRecompute(t *testing.T) {
	p, eng := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Square(30, 30, white)))

	var got []Update
	p.Subscribe(func(u Update) { got = append(got, u) })
	eng.ResetCalls()

	next := p.Parameters()
	next.ColorMode = ColorModeSolid
	require.NoError(t, p.SetParameters(next))

	assert.Zero(t, eng.Calls(enginetest.OpRenderGreyscale))
	for _, op := range enginetest.AnalyticOps {
		assert.Zero(t, eng.Calls(op), op)
	}
	require.Len(t, got, 1)
	assert.True(t, got[0].Recolor)
	assert.Equal(t, ColorModeSolid, got[0].Parameters.ColorMode)
	assert.Empty(t, cmp.Diff(p.Curves(), got[0].Curves))
}

func TestPipelineSubscribeAndUnsubscribe(t *testing.T) {
	p, _ := newTestPipeline(t)
	var a, b int
	unsubA := p.Subscribe(func(Update) { a++ })
	p.Subscribe(func(Update) { b++ })

	require.NoError(t, p.SetSourceImage(enginetest.Square(16, 16, white)))
	unsubA()
	next := p.Parameters()
	next.TakePercentile = 0.6
	require.NoError(t, p.SetParameters(next))

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestPipelineKeepsLastGoodStagesOnFailure(t *testing.T) {
	p, eng := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Square(20, 20, white)))
	good := p.ReadyStages()
	goodCurves := p.Curves()

	eng.FailOn(enginetest.OpGradient, errors.New("engine fault"))
	next := p.Parameters()
	next.KernelSize = 2
	err := p.SetParameters(next)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageGradient, se.Stage)

	assert.Equal(t, good, p.ReadyStages())
	assert.Empty(t, cmp.Diff(goodCurves, p.Curves()))

	// The stale blur stage is rebuilt by the next change even when that
	// change maps to a later stage.
	eng.FailOn(enginetest.OpGradient, nil)
	eng.ResetCalls()
	next.PlotScale = 2
	require.NoError(t, p.SetParameters(next))
	assert.Equal(t, 1, eng.Calls(enginetest.OpBlur))
	assert.Len(t, p.ReadyStages(), len(ImageStages))
}

func TestPipelineNewSourceClearsLastGood(t *testing.T) {
	p, eng := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Square(20, 20, white)))
	require.NotNil(t, p.ReadyStages())

	eng.FailOn(enginetest.OpBuildSource, errors.New("decode"))
	err := p.SetSourceImage(enginetest.Square(10, 10, white))
	require.Error(t, err)
	assert.Nil(t, p.ReadyStages())
	assert.Empty(t, p.Curves())

	eng.FailOn(enginetest.OpBuildSource, nil)
	require.NoError(t, p.Refresh(StageSource))
	views := p.ReadyStages()
	require.NotEmpty(t, views)
	assert.Equal(t, 10, views[0].Pixels.Width)
}

func TestPipelineRejectsBadSource(t *testing.T) {
	p, _ := newTestPipeline(t)
	err := p.SetSourceImage(engine.PixelBuffer{Width: 2, Height: 2, Pix: make([]byte, 3)})
	assert.Error(t, err)
	assert.ErrorIs(t, p.Refresh(StageBlur), ErrNoSource)
}

func TestPipelineSourceIsCopied(t *testing.T) {
	p, _ := newTestPipeline(t)
	src := enginetest.Square(12, 12, white)
	want := enginetest.Square(12, 12, white)
	require.NoError(t, p.SetSourceImage(src))

	for i := range src.Pix {
		src.Pix[i] = 0x7f
	}
	require.NoError(t, p.Refresh(StageSource))
	views := p.ReadyStages()
	require.NotEmpty(t, views)
	assert.True(t, want.Equal(views[0].Pixels), "caller mutations do not reach the pipeline")
}

func TestPipelineReset(t *testing.T) {
	p, _ := newTestPipeline(t)
	require.NoError(t, p.SetSourceImage(enginetest.Square(12, 12, white)))
	next := p.Parameters()
	next.Iterations = 3
	next.Background = BackgroundWhite
	require.NoError(t, p.SetParameters(next))
	require.NoError(t, p.Reset())
	assert.Equal(t, DefaultParameters(), p.Parameters())
}

func TestPipelineClose(t *testing.T) {
	eng := enginetest.New()
	p := NewPipeline(eng, nil)
	require.NoError(t, p.SetSourceImage(enginetest.Square(12, 12, white)))
	for i := 1; i <= 3; i++ {
		next := p.Parameters()
		next.KernelSize = i
		next.PlotScale = float64(i)
		require.NoError(t, p.SetParameters(next))
	}
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Empty(t, eng.Live())
	assert.Zero(t, eng.OverReleased())
	assert.ErrorIs(t, p.SetParameters(DefaultParameters()), ErrClosed)
	assert.ErrorIs(t, p.SetSourceImage(enginetest.Blank(2, 2, 0)), ErrClosed)
}
