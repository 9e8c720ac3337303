package core

import (
	"errors"
	"fmt"
	"strings"

	"vektor/internal/engine"
	"vektor/internal/resource"
)

// StageIndex is the fixed ordinal of a pipeline stage.
type StageIndex int

const (
	StageSource StageIndex = iota
	StageBlur
	StageGradient
	StageThinned
	StageEdgeMap
	StageCurves
	StageGreyscalePlot
	StageColorPlot

	// StageCount is the number of slots in a Registry.
	StageCount = int(StageColorPlot) + 1

	// NoStage marks a parameter that never invalidates a stage.
	NoStage StageIndex = -1
)

var stageNames = [StageCount]string{
	StageSource:        "Source Image",
	StageBlur:          "Blurred Image",
	StageGradient:      "Gradient Image",
	StageThinned:       "Thinned Image",
	StageEdgeMap:       "Hysteresis Image",
	StageCurves:        "Curves",
	StageGreyscalePlot: "Greyscale Plot",
	StageColorPlot:     "Color Plot",
}

// ImageStages are the stages that carry a pixel snapshot, in display order.
var ImageStages = []StageIndex{
	StageSource,
	StageBlur,
	StageGradient,
	StageThinned,
	StageEdgeMap,
	StageGreyscalePlot,
	StageColorPlot,
}

func (s StageIndex) String() string {
	if s < 0 || int(s) >= StageCount {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Valid reports whether s names a slot.
func (s StageIndex) Valid() bool {
	return s >= 0 && int(s) < StageCount
}

// StageView is a ready stage as the UI sees it.
type StageView struct {
	Stage  StageIndex
	Name   string
	Pixels engine.PixelBuffer
}

// FileName is the snapshot file name, e.g. "0_source_image.png".
func (v StageView) FileName() string {
	return fmt.Sprintf("%d_%s.png", int(v.Stage), strings.ReplaceAll(strings.ToLower(v.Name), " ", "_"))
}

// Slot is one pipeline position. It is the sole owner of its handle.
type Slot struct {
	index      StageIndex
	handle     *resource.Handle
	snapshot   *engine.PixelBuffer
	thresholds engine.Thresholds
	curves     []engine.Curve
}

func (s *Slot) Index() StageIndex { return s.index }
func (s *Slot) Name() string      { return s.index.String() }

// Handle returns the resident handle, or nil.
func (s *Slot) Handle() *resource.Handle {
	return s.handle
}

// Snapshot returns the pixel buffer derived from the resident resource.
func (s *Slot) Snapshot() (engine.PixelBuffer, bool) {
	if s.snapshot == nil {
		return engine.PixelBuffer{}, false
	}
	return *s.snapshot, true
}

// Populated reports whether the slot holds a live resource.
func (s *Slot) Populated() bool {
	return s.handle != nil && !s.handle.Released()
}

// replace installs h and releases whatever the slot held before.
func (s *Slot) replace(h *resource.Handle, snapshot *engine.PixelBuffer) error {
	prev := s.handle
	s.handle = h
	s.snapshot = snapshot
	s.thresholds = engine.Thresholds{}
	s.curves = nil
	if prev == nil || prev == h {
		return nil
	}
	if err := prev.Release(); err != nil && !errors.Is(err, resource.ErrAlreadyReleased) {
		return err
	}
	return nil
}

// clear releases the resource and empties every field.
func (s *Slot) clear() error {
	return s.replace(nil, nil)
}

// take moves the slot's contents out without releasing them.
func (s *Slot) take() Slot {
	moved := *s
	*s = Slot{index: s.index}
	return moved
}

// Registry is the fixed, ordered set of stage slots.
type Registry struct {
	slots [StageCount]Slot
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.slots {
		r.slots[i].index = StageIndex(i)
	}
	return r
}

// Slot returns the slot at i. It panics on an invalid index.
func (r *Registry) Slot(i StageIndex) *Slot {
	return &r.slots[i]
}

// Handle returns the handle resident at i, or nil.
func (r *Registry) Handle(i StageIndex) *resource.Handle {
	return r.slots[i].handle
}

// Image returns the engine image resident at i.
func (r *Registry) Image(i StageIndex) (engine.Image, bool) {
	return resource.As[engine.Image](r.slots[i].handle)
}

// CurveList returns the resident engine curve list.
func (r *Registry) CurveList() (engine.CurveList, bool) {
	return resource.As[engine.CurveList](r.slots[StageCurves].handle)
}

// Thresholds returns the pair computed alongside the thinned stage.
func (r *Registry) Thresholds() engine.Thresholds {
	return r.slots[StageThinned].thresholds
}

// Curves returns a copy of the plain-value curve list.
func (r *Registry) Curves() []engine.Curve {
	src := r.slots[StageCurves].curves
	if src == nil {
		return nil
	}
	out := make([]engine.Curve, len(src))
	copy(out, src)
	return out
}

// Ready reports whether stage i is populated.
func (r *Registry) Ready(i StageIndex) bool {
	return r.slots[i].Populated()
}

// FirstMissing returns the earliest slot before limit that is not populated,
// or limit when all of them are.
func (r *Registry) FirstMissing(limit StageIndex) StageIndex {
	for i := StageSource; i < limit; i++ {
		if !r.Ready(i) {
			return i
		}
	}
	return limit
}

// Snapshots returns every image stage's snapshot when all of them are ready,
// and nil otherwise.
func (r *Registry) Snapshots() []StageView {
	views := make([]StageView, 0, len(ImageStages))
	for _, i := range ImageStages {
		snap, ok := r.slots[i].Snapshot()
		if !ok || !r.Ready(i) {
			return nil
		}
		views = append(views, StageView{Stage: i, Name: i.String(), Pixels: snap})
	}
	return views
}

// Invalidate releases every slot at or after from.
func (r *Registry) Invalidate(from StageIndex) error {
	if from < 0 {
		from = 0
	}
	var errs []error
	for i := int(from); i < StageCount; i++ {
		if err := r.slots[i].clear(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", StageIndex(i), err))
		}
	}
	return errors.Join(errs...)
}

// Close releases every resident handle.
func (r *Registry) Close() error {
	return r.Invalidate(StageSource)
}
