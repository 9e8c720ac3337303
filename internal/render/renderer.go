// Package render streams curve lists into a view in bounded batches.
package render

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vektor/internal/core"
	"vektor/internal/engine"
)

// DefaultBatchSize is the number of curves emitted per scheduler tick.
const DefaultBatchSize = 20

// State of a render cycle.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}

// Progress is reported to the progress callback. Value is in [0,1].
type Progress struct {
	Value  float64
	Active bool
}

// View receives the streamed curves. View calls are serialised and are made
// without the renderer's state lock, but a View must not call back into the
// Renderer.
type View interface {
	Reset(style Style)
	AddBatch(curves []engine.Curve, style Style)
}

// Scheduler defers a task to a later cooperative tick.
type Scheduler interface {
	Schedule(task func())
}

// SchedulerFunc adapts a function to Scheduler.
type SchedulerFunc func(task func())

func (f SchedulerFunc) Schedule(task func()) { f(task) }

type cycle struct {
	id        string
	curves    []engine.Curve
	style     Style
	cursor    int
	cancelled bool
	state     State
}

// Renderer owns at most one streaming cycle at a time. Starting a new cycle
// cancels the previous one.
type Renderer struct {
	mu sync.Mutex

	// emitMu serialises view calls. It is taken before mu, never after.
	emitMu     sync.Mutex
	view       View
	sched      Scheduler
	batchSize  int
	onProgress func(Progress)
	logger     logrus.FieldLogger
	current    *cycle
}

type Option func(*Renderer)

func WithBatchSize(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithProgress sets the progress callback. It runs without any renderer lock
// held, so it may query the renderer or start a new cycle.
func WithProgress(fn func(Progress)) Option {
	return func(r *Renderer) { r.onProgress = fn }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewRenderer(view View, sched Scheduler, opts ...Option) *Renderer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	r := &Renderer{
		view:      view,
		sched:     sched,
		batchSize: DefaultBatchSize,
		logger:    discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins streaming curves and returns the new cycle's id.
func (r *Renderer) Start(curves []engine.Curve, style Style) string {
	r.mu.Lock()
	r.cancelLocked()
	c := &cycle{
		id:     uuid.NewString(),
		curves: append([]engine.Curve(nil), curves...),
		style:  style,
		state:  StateStreaming,
	}
	r.current = c
	empty := len(c.curves) == 0
	if empty {
		c.state = StateCompleted
	}
	r.mu.Unlock()

	r.emit(c, func() { r.view.Reset(style) })
	r.logger.WithFields(logrus.Fields{"cycle": c.id, "curves": len(c.curves)}).Debug("render: cycle started")

	if empty {
		r.complete(c)
		return c.id
	}
	r.report(c, Progress{Value: 0, Active: true})
	r.sched.Schedule(func() { r.step(c) })
	return c.id
}

// Restyle restarts the current curve list with a new style.
func (r *Renderer) Restyle(style Style) string {
	r.mu.Lock()
	var curves []engine.Curve
	if r.current != nil {
		curves = r.current.curves
	}
	r.mu.Unlock()
	return r.Start(curves, style)
}

// Stop cancels the streaming cycle, if any.
func (r *Renderer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelLocked()
}

// State returns the state of the most recent cycle.
func (r *Renderer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return StateIdle
	}
	return r.current.state
}

// CycleID returns the id of the most recent cycle, or "".
func (r *Renderer) CycleID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.id
}

func (r *Renderer) cancelLocked() {
	c := r.current
	if c == nil || c.state != StateStreaming {
		return
	}
	c.cancelled = true
	c.state = StateCancelled
	r.logger.WithFields(logrus.Fields{"cycle": c.id, "cursor": c.cursor}).Debug("render: cycle cancelled")
}

func (r *Renderer) step(c *cycle) {
	r.mu.Lock()
	if c.cancelled {
		r.mu.Unlock()
		return
	}
	total := len(c.curves)
	batch := c.curves[c.cursor:min(c.cursor+r.batchSize, total)]
	c.cursor += len(batch)
	value := float64(c.cursor) / float64(total)
	r.mu.Unlock()

	if !r.emit(c, func() { r.view.AddBatch(batch, c.style) }) {
		return
	}
	r.report(c, Progress{Value: value, Active: true})

	r.mu.Lock()
	if c.cancelled {
		r.mu.Unlock()
		return
	}
	done := c.cursor >= total
	if done {
		c.state = StateCompleted
	}
	r.mu.Unlock()

	if done {
		r.complete(c)
		return
	}
	r.sched.Schedule(func() { r.step(c) })
}

func (r *Renderer) complete(c *cycle) {
	r.report(c, Progress{Value: 1, Active: false})
	r.logger.WithField("cycle", c.id).Debug("render: cycle completed")
}

// live reports whether c is still the cycle the view belongs to.
func (r *Renderer) live(c *cycle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current == c && !c.cancelled
}

// emit runs fn against the view unless c was superseded. The check and the
// call happen under emitMu, so a newer cycle's Reset cannot slip in between.
func (r *Renderer) emit(c *cycle, fn func()) bool {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if !r.live(c) {
		return false
	}
	fn()
	return true
}

func (r *Renderer) report(c *cycle, p Progress) {
	if r.onProgress != nil && r.live(c) {
		r.onProgress(p)
	}
}

// Style is the display-time appearance carried with each cycle.
type Style struct {
	ColorMode  core.ColorMode
	Background core.Background
}

// StyleOf extracts the display fields from a parameter snapshot.
func StyleOf(p core.Parameters) Style {
	return Style{ColorMode: p.ColorMode, Background: p.Background}
}

var solidStroke = engine.RGB{R: 0.78, G: 0.18, B: 0.18}

// Stroke returns the colour a curve is drawn with, after inversion.
func (s Style) Stroke(c engine.Curve) engine.RGB {
	stroke := c.Color
	if s.ColorMode == core.ColorModeSolid {
		stroke = solidStroke
	}
	if s.Inverted() {
		return engine.RGB{R: 1 - stroke.R, G: 1 - stroke.G, B: 1 - stroke.B}
	}
	return stroke
}

// Inverted reports whether the whole view is shown with inverted colours.
func (s Style) Inverted() bool {
	return s.Background == core.BackgroundBlack
}

// Paper is the canvas colour behind the curves.
func (s Style) Paper() engine.RGB {
	if s.Inverted() {
		return engine.RGB{}
	}
	return engine.RGB{R: 1, G: 1, B: 1}
}
