package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vektor/internal/resource"
)

type countingImage struct {
	closes int
	err    error
}

func (c *countingImage) Width() int  { return 1 }
func (c *countingImage) Height() int { return 1 }

func (c *countingImage) Close() error {
	c.closes++
	return c.err
}

func TestStageNames(t *testing.T) {
	assert.Equal(t, "Source Image", StageSource.String())
	assert.Equal(t, "Hysteresis Image", StageEdgeMap.String())
	assert.Equal(t, "Color Plot", StageColorPlot.String())
	assert.Equal(t, "Stage(9)", StageIndex(9).String())
	assert.NotContains(t, ImageStages, StageCurves)
	assert.Len(t, ImageStages, StageCount-1)
}

func TestSlotReplaceReleasesPrevious(t *testing.T) {
	r := NewRegistry()
	slot := r.Slot(StageBlur)
	a, b := &countingImage{}, &countingImage{}
	ha, hb := resource.NewHandle("a", a), resource.NewHandle("b", b)

	require.NoError(t, slot.replace(ha, nil))
	require.NoError(t, slot.replace(ha, nil))
	assert.Zero(t, a.closes, "reinstalling the same handle keeps it")

	require.NoError(t, slot.replace(hb, nil))
	assert.Equal(t, 1, a.closes)
	assert.Same(t, hb, r.Handle(StageBlur))

	img, ok := r.Image(StageBlur)
	require.True(t, ok)
	assert.Same(t, b, img)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, b.closes)
	assert.False(t, r.Ready(StageBlur))
}

func TestSlotTakeDoesNotRelease(t *testing.T) {
	r := NewRegistry()
	img := &countingImage{}
	h := resource.NewHandle("src", img)
	require.NoError(t, r.Slot(StageSource).replace(h, nil))

	moved := r.Slot(StageSource).take()
	assert.Same(t, h, moved.Handle())
	assert.Nil(t, r.Handle(StageSource))
	assert.Equal(t, StageSource, r.Slot(StageSource).Index())
	require.NoError(t, r.Close())
	assert.Zero(t, img.closes)
}

func TestRegistryInvalidateJoinsErrors(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Slot(StageThinned).replace(resource.NewHandle("t", &countingImage{err: boom}), nil))
	ok := &countingImage{}
	require.NoError(t, r.Slot(StageEdgeMap).replace(resource.NewHandle("e", ok), nil))

	err := r.Invalidate(StageGradient)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, ok.closes)
	assert.False(t, r.Ready(StageThinned))
}

func TestRegistryFirstMissing(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, StageSource, r.FirstMissing(StageEdgeMap))
	for i := StageSource; i < StageThinned; i++ {
		require.NoError(t, r.Slot(i).replace(resource.NewHandle(i.String(), &countingImage{}), nil))
	}
	assert.Equal(t, StageThinned, r.FirstMissing(StageEdgeMap))
	assert.Equal(t, StageGradient, r.FirstMissing(StageGradient))
	assert.Nil(t, r.Snapshots())
	require.NoError(t, r.Close())
}

func TestStageViewFileName(t *testing.T) {
	assert.Equal(t, "0_source_image.png", StageView{Stage: StageSource, Name: StageSource.String()}.FileName())
	assert.Equal(t, "7_color_plot.png", StageView{Stage: StageColorPlot, Name: StageColorPlot.String()}.FileName())
}
