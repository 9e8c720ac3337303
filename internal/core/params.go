package core

import (
	"fmt"
	"math"
)

// Background is the plot background polarity.
type Background string

const (
	BackgroundBlack Background = "black"
	BackgroundWhite Background = "white"
)

// Luminance is the greyscale plot background value.
func (b Background) Luminance() float64 {
	if b == BackgroundWhite {
		return 1
	}
	return 0
}

// ColorMode selects how the final view colours curves.
type ColorMode string

const (
	ColorModeColorful ColorMode = "colorful"
	ColorModeSolid    ColorMode = "solid"
)

// Engine constants that are not user tunable.
const (
	BlurFactor       = 1.0
	HistogramBuckets = 256

	MaxKernelSize = 15
	MaxIterations = 16
	MaxPlotScale  = 16.0
)

// Parameters is one immutable snapshot of the tunable knobs.
type Parameters struct {
	KernelSize     int        `toml:"kernel_size"`
	Iterations     int        `toml:"iterations"`
	TakePercentile float64    `toml:"take_percentile"`
	PlotScale      float64    `toml:"plot_scale"`
	Background     Background `toml:"background"`
	ColorMode      ColorMode  `toml:"color_mode"`
}

func DefaultParameters() Parameters {
	return Parameters{
		KernelSize:     1,
		Iterations:     1,
		TakePercentile: 0.25,
		PlotScale:      1,
		Background:     BackgroundBlack,
		ColorMode:      ColorModeColorful,
	}
}

// Validate rejects values outside their declared domain.
func (p Parameters) Validate() error {
	switch {
	case p.KernelSize < 1 || p.KernelSize > MaxKernelSize:
		return &ParameterError{Field: "kernel_size", Value: p.KernelSize, Reason: fmt.Sprintf("must be between 1 and %d", MaxKernelSize)}
	case p.Iterations < 1 || p.Iterations > MaxIterations:
		return &ParameterError{Field: "iterations", Value: p.Iterations, Reason: fmt.Sprintf("must be between 1 and %d", MaxIterations)}
	case math.IsNaN(p.TakePercentile) || p.TakePercentile < 0 || p.TakePercentile > 1:
		return &ParameterError{Field: "take_percentile", Value: p.TakePercentile, Reason: "must be between 0 and 1"}
	case math.IsNaN(p.PlotScale) || p.PlotScale <= 0 || p.PlotScale > MaxPlotScale:
		return &ParameterError{Field: "plot_scale", Value: p.PlotScale, Reason: fmt.Sprintf("must be in (0, %g]", MaxPlotScale)}
	case p.Background != BackgroundBlack && p.Background != BackgroundWhite:
		return &ParameterError{Field: "background", Value: p.Background, Reason: "must be black or white"}
	case p.ColorMode != ColorModeColorful && p.ColorMode != ColorModeSolid:
		return &ParameterError{Field: "color_mode", Value: p.ColorMode, Reason: "must be colorful or solid"}
	}
	return nil
}

// PlotSize scales the source dimensions by PlotScale, rounding and flooring
// each side to at least one pixel.
func (p Parameters) PlotSize(width, height int) (int, int) {
	w := int(math.Round(float64(width) * p.PlotScale))
	h := int(math.Round(float64(height) * p.PlotScale))
	return max(w, 1), max(h, 1)
}

type parameterField struct {
	name  string
	stage StageIndex
	value func(Parameters) any
}

// parameterStages maps every field to the earliest stage it invalidates.
// Colour mode only affects the final view, so it maps to no stage.
var parameterStages = []parameterField{
	{"kernel_size", StageBlur, func(p Parameters) any { return p.KernelSize }},
	{"iterations", StageBlur, func(p Parameters) any { return p.Iterations }},
	{"take_percentile", StageEdgeMap, func(p Parameters) any { return p.TakePercentile }},
	{"plot_scale", StageGreyscalePlot, func(p Parameters) any { return p.PlotScale }},
	{"background", StageGreyscalePlot, func(p Parameters) any { return p.Background }},
	{"color_mode", NoStage, func(p Parameters) any { return p.ColorMode }},
}

// StageFor returns the stage mapped to the named field.
func StageFor(field string) (StageIndex, bool) {
	for _, f := range parameterStages {
		if f.name == field {
			return f.stage, true
		}
	}
	return NoStage, false
}

// ChangedFields lists the fields that differ between two snapshots.
func ChangedFields(prev, next Parameters) []string {
	var changed []string
	for _, f := range parameterStages {
		if f.value(prev) != f.value(next) {
			changed = append(changed, f.name)
		}
	}
	return changed
}

// EarliestInvalidated returns the smallest stage index mapped by any changed
// field. It returns false when nothing that maps to a stage changed.
func EarliestInvalidated(prev, next Parameters) (StageIndex, bool) {
	earliest := NoStage
	for _, f := range parameterStages {
		if f.stage == NoStage || f.value(prev) == f.value(next) {
			continue
		}
		if earliest == NoStage || f.stage < earliest {
			earliest = f.stage
		}
	}
	return earliest, earliest != NoStage
}
