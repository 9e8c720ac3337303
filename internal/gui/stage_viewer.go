package gui

import (
	"fmt"
	"image"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"vektor/internal/core"
)

// StageViewer is a carousel over the ready stage snapshots.
type StageViewer struct {
	stages []core.StageView
	index  int

	image     *canvas.Image
	label     *widget.Label
	prev      *widget.Button
	next      *widget.Button
	pixelated *widget.Check
	container *fyne.Container
}

func NewStageViewer() *StageViewer {
	sv := &StageViewer{}

	placeholder := image.NewRGBA(image.Rect(0, 0, 1, 1))
	sv.image = canvas.NewImageFromImage(placeholder)
	sv.image.FillMode = canvas.ImageFillContain
	sv.image.ScaleMode = canvas.ImageScaleSmooth
	sv.image.SetMinSize(fyne.NewSize(320, 240))

	sv.label = widget.NewLabel("No image loaded")
	sv.label.Alignment = fyne.TextAlignCenter
	sv.prev = widget.NewButtonWithIcon("", theme.NavigateBackIcon(), func() { sv.step(-1) })
	sv.next = widget.NewButtonWithIcon("", theme.NavigateNextIcon(), func() { sv.step(1) })
	sv.pixelated = widget.NewCheck("Pixelated", func(on bool) {
		if on {
			sv.image.ScaleMode = canvas.ImageScalePixels
		} else {
			sv.image.ScaleMode = canvas.ImageScaleSmooth
		}
		sv.image.Refresh()
	})

	bar := container.NewBorder(nil, nil, sv.prev, container.NewHBox(sv.pixelated, sv.next), sv.label)
	sv.container = container.NewBorder(nil, bar, nil, nil, sv.image)
	sv.update()
	return sv
}

func (sv *StageViewer) GetContainer() fyne.CanvasObject {
	return sv.container
}

// SetStages replaces the carousel contents, keeping the shown stage when it
// is still present.
func (sv *StageViewer) SetStages(stages []core.StageView) {
	current := core.NoStage
	if sv.index < len(sv.stages) {
		current = sv.stages[sv.index].Stage
	}
	sv.stages = stages
	sv.index = 0
	for i, s := range stages {
		if s.Stage == current {
			sv.index = i
		}
	}
	sv.update()
}

// Current returns the shown stage.
func (sv *StageViewer) Current() (core.StageView, bool) {
	if sv.index >= len(sv.stages) {
		return core.StageView{}, false
	}
	return sv.stages[sv.index], true
}

func (sv *StageViewer) step(delta int) {
	n := len(sv.stages)
	if n == 0 {
		return
	}
	sv.index = (sv.index + delta + n) % n
	sv.update()
}

func (sv *StageViewer) update() {
	s, ok := sv.Current()
	if !ok {
		sv.label.SetText("No image loaded")
		sv.prev.Disable()
		sv.next.Disable()
		return
	}
	sv.prev.Enable()
	sv.next.Enable()
	sv.label.SetText(fmt.Sprintf("%s (%d/%d)", s.Name, sv.index+1, len(sv.stages)))
	sv.image.Image = s.Pixels.RGBA()
	sv.image.Refresh()
}
