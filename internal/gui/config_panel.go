package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"vektor/internal/core"
)

// Slider ranges offered by the panel. They are narrower than what
// Parameters.Validate accepts.
const (
	panelMaxKernel     = 3
	panelMaxIterations = 4
	panelMaxPlotScale  = 4
)

// ConfigPanel edits a parameter snapshot. OnChanged receives every edit made
// through the widgets; SetParameters does not trigger it.
type ConfigPanel struct {
	params    core.Parameters
	OnChanged func(core.Parameters)
	OnReset   func()

	kernel     *widget.Slider
	iterations *widget.Slider
	percentile *widget.Slider
	scale      *widget.Slider
	background *widget.RadioGroup
	colorMode  *widget.RadioGroup
	labels     map[*widget.Slider]*widget.Label
	show       map[*widget.Slider]func(float64)
	container  *fyne.Container
	updating   bool
}

func NewConfigPanel(params core.Parameters) *ConfigPanel {
	cp := &ConfigPanel{
		params: params,
		labels: make(map[*widget.Slider]*widget.Label),
		show:   make(map[*widget.Slider]func(float64)),
	}

	cp.kernel = cp.slider(1, panelMaxKernel, 1, "%.0f", func(p *core.Parameters, v float64) { p.KernelSize = int(v) })
	cp.iterations = cp.slider(1, panelMaxIterations, 1, "%.0f", func(p *core.Parameters, v float64) { p.Iterations = int(v) })
	cp.percentile = cp.slider(0, 1, 0.01, "%.2f", func(p *core.Parameters, v float64) { p.TakePercentile = v })
	cp.scale = cp.slider(1, panelMaxPlotScale, 1, "%.0f", func(p *core.Parameters, v float64) { p.PlotScale = v })

	cp.background = widget.NewRadioGroup([]string{string(core.BackgroundBlack), string(core.BackgroundWhite)}, func(v string) {
		cp.edit(func(p *core.Parameters) { p.Background = core.Background(v) })
	})
	cp.background.Horizontal = true
	cp.background.Required = true
	cp.colorMode = widget.NewRadioGroup([]string{string(core.ColorModeColorful), string(core.ColorModeSolid)}, func(v string) {
		cp.edit(func(p *core.Parameters) { p.ColorMode = core.ColorMode(v) })
	})
	cp.colorMode.Horizontal = true
	cp.colorMode.Required = true

	reset := widget.NewButton("Reset", func() {
		if cp.OnReset != nil {
			cp.OnReset()
		}
	})

	form := container.NewVBox(
		widget.NewLabel("Kernel size:"), cp.row(cp.kernel),
		widget.NewLabel("Iterations:"), cp.row(cp.iterations),
		widget.NewLabel("Take percentile:"), cp.row(cp.percentile),
		widget.NewLabel("Plot scale:"), cp.row(cp.scale),
		widget.NewSeparator(),
		widget.NewLabel("Background:"), cp.background,
		widget.NewLabel("Colour mode:"), cp.colorMode,
		widget.NewSeparator(),
		reset,
	)
	cp.container = container.NewVBox(widget.NewCard("Parameters", "", form))
	cp.SetParameters(params)
	return cp
}

func (cp *ConfigPanel) GetContainer() fyne.CanvasObject {
	return cp.container
}

// Parameters returns the panel's snapshot.
func (cp *ConfigPanel) Parameters() core.Parameters {
	return cp.params
}

// SetParameters moves every widget to p.
func (cp *ConfigPanel) SetParameters(p core.Parameters) {
	cp.updating = true
	defer func() { cp.updating = false }()

	cp.params = p
	cp.setSlider(cp.kernel, float64(p.KernelSize))
	cp.setSlider(cp.iterations, float64(p.Iterations))
	cp.setSlider(cp.percentile, p.TakePercentile)
	cp.setSlider(cp.scale, p.PlotScale)
	cp.background.SetSelected(string(p.Background))
	cp.colorMode.SetSelected(string(p.ColorMode))
}

func (cp *ConfigPanel) slider(lo, hi, step float64, format string, set func(*core.Parameters, float64)) *widget.Slider {
	s := widget.NewSlider(lo, hi)
	s.Step = step
	label := widget.NewLabel("")
	cp.labels[s] = label
	cp.show[s] = func(v float64) { label.SetText(fmt.Sprintf(format, v)) }
	s.OnChanged = func(v float64) {
		cp.show[s](v)
		cp.edit(func(p *core.Parameters) { set(p, v) })
	}
	return s
}

func (cp *ConfigPanel) row(s *widget.Slider) fyne.CanvasObject {
	return container.NewBorder(nil, nil, nil, cp.labels[s], s)
}

func (cp *ConfigPanel) setSlider(s *widget.Slider, v float64) {
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
	s.SetValue(v)
	cp.show[s](v)
}

func (cp *ConfigPanel) edit(fn func(*core.Parameters)) {
	next := cp.params
	fn(&next)
	if next == cp.params {
		return
	}
	cp.params = next
	if !cp.updating && cp.OnChanged != nil {
		cp.OnChanged(next)
	}
}
