package gui

import (
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/core"
	"vektor/internal/engine"
	"vektor/internal/engine/enginetest"
	"vektor/internal/render"
)

func TestCurveViewProjectsIntoItsSize(t *testing.T) {
	test.NewTempApp(t)

	cv := NewCurveView()
	cv.GetContainer().Resize(fyne.NewSize(200, 100))
	curve := engine.Curve{Bezier: engine.Bezier{
		P0: engine.Point{X: 0, Y: 0},
		P1: engine.Point{X: 0.3, Y: 0},
		P2: engine.Point{X: 0.6, Y: 0},
		P3: engine.Point{X: 1, Y: 0.5},
	}}
	cv.Frame([]engine.Curve{curve})
	cv.Reset(render.Style{Background: core.BackgroundWhite})
	cv.AddBatch([]engine.Curve{curve}, render.Style{Background: core.BackgroundWhite})

	require.Equal(t, 1, cv.Len())
	require.NotEmpty(t, cv.segments)
	for _, s := range cv.segments {
		for _, p := range []fyne.Position{s.line.Position1, s.line.Position2} {
			assert.GreaterOrEqual(t, p.X, float32(0))
			assert.LessOrEqual(t, p.X, float32(200))
			assert.GreaterOrEqual(t, p.Y, float32(0))
			assert.LessOrEqual(t, p.Y, float32(100))
		}
	}

	cv.Reset(render.Style{})
	assert.Zero(t, cv.Len())
	assert.Empty(t, cv.lines.Objects)
}

func TestConfigPanelReportsEdits(t *testing.T) {
	test.NewTempApp(t)

	cp := NewConfigPanel(core.DefaultParameters())
	var got []core.Parameters
	cp.OnChanged = func(p core.Parameters) { got = append(got, p) }

	cp.iterations.SetValue(3)
	cp.colorMode.SetSelected(string(core.ColorModeSolid))
	require.Len(t, got, 2)
	assert.Equal(t, 3, got[0].Iterations)
	assert.Equal(t, core.ColorModeSolid, got[1].ColorMode)

	cp.SetParameters(core.DefaultParameters())
	assert.Len(t, got, 2, "programmatic updates are silent")
	assert.Equal(t, core.DefaultParameters(), cp.Parameters())
}

func TestStageViewerCycles(t *testing.T) {
	test.NewTempApp(t)

	sv := NewStageViewer()
	_, ok := sv.Current()
	assert.False(t, ok)

	px := enginetest.Blank(2, 2, 9)
	sv.SetStages([]core.StageView{
		{Stage: core.StageSource, Name: core.StageSource.String(), Pixels: px},
		{Stage: core.StageBlur, Name: core.StageBlur.String(), Pixels: px},
	})
	sv.step(1)
	cur, _ := sv.Current()
	assert.Equal(t, core.StageBlur, cur.Stage)

	// The shown stage survives a refresh.
	sv.SetStages([]core.StageView{
		{Stage: core.StageSource, Name: core.StageSource.String(), Pixels: px},
		{Stage: core.StageBlur, Name: core.StageBlur.String(), Pixels: px},
		{Stage: core.StageGradient, Name: core.StageGradient.String(), Pixels: px},
	})
	cur, _ = sv.Current()
	assert.Equal(t, core.StageBlur, cur.Stage)

	sv.step(2)
	cur, _ = sv.Current()
	assert.Equal(t, core.StageSource, cur.Stage)
}
