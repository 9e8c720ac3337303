// Package core owns the stage registry and drives incremental recomputation
// of the vectorisation pipeline.
package core

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"vektor/internal/engine"
)

// Update is delivered to subscribers whenever the final view must redraw.
type Update struct {
	Curves     []engine.Curve
	Parameters Parameters
	// Recolor is set when only the colour mode changed.
	Recolor bool
}

// Pipeline is the controller between the parameter panel and the registry.
// It is meant to be driven from a single goroutine; the mutex only keeps
// readers on other goroutines consistent.
type Pipeline struct {
	mu       sync.Mutex
	rc       *Recomputer
	tracer   *Tracer
	logger   logrus.FieldLogger
	params   Parameters
	source   engine.PixelBuffer
	registry *Registry
	curves   []engine.Curve
	lastGood []StageView

	// pending is the earliest stage left stale by a failed recompute.
	pending StageIndex

	nextSub   int
	listeners map[int]func(Update)
	closed    bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParameters sets the initial parameters.
func WithParameters(p Parameters) Option {
	return func(pl *Pipeline) { pl.params = p }
}

// WithTracer records every recompute on t.
func WithTracer(t *Tracer) Option {
	return func(pl *Pipeline) { pl.tracer = t }
}

func NewPipeline(eng engine.Engine, logger logrus.FieldLogger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = discardLogger()
	}
	p := &Pipeline{
		logger:    logger,
		params:    DefaultParameters(),
		registry:  NewRegistry(),
		pending:   NoStage,
		listeners: make(map[int]func(Update)),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.rc = NewRecomputer(eng, logger, p.tracer)
	return p
}

// Parameters returns the current snapshot.
func (p *Pipeline) Parameters() Parameters {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// HasSource reports whether an image has been loaded.
func (p *Pipeline) HasSource() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.source.Empty()
}

// Curves returns the most recent committed curve list.
func (p *Pipeline) Curves() []engine.Curve {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.Curve(nil), p.curves...)
}

// ReadyStages returns every image stage when all of them are ready, or the
// last set for which that held. It is nil until the first full recompute of
// the current source.
func (p *Pipeline) ReadyStages() []StageView {
	p.mu.Lock()
	defer p.mu.Unlock()
	if views := p.registry.Snapshots(); views != nil {
		p.lastGood = views
	}
	return append([]StageView(nil), p.lastGood...)
}

// Tracer returns the run tracer, if one was configured.
func (p *Pipeline) Tracer() *Tracer {
	return p.tracer
}

// Subscribe registers fn for curve and colour-mode updates. The returned
// function removes it.
func (p *Pipeline) Subscribe(fn func(Update)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// SetParameters replaces the snapshot and recomputes the stages it
// invalidates. With no source loaded the snapshot is only stored.
func (p *Pipeline) SetParameters(next Parameters) error {
	if err := next.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	prev := p.params
	changed := ChangedFields(prev, next)
	if len(changed) == 0 {
		p.mu.Unlock()
		return nil
	}
	p.params = next
	p.logger.WithField("changed", changed).Debug("pipeline: parameters updated")

	if p.source.Empty() {
		p.mu.Unlock()
		return nil
	}

	start, ok := EarliestInvalidated(prev, next)
	if !ok {
		update := Update{Curves: append([]engine.Curve(nil), p.curves...), Parameters: next, Recolor: true}
		listeners := p.snapshotListeners()
		p.mu.Unlock()
		notify(listeners, update)
		return nil
	}

	update, err := p.recomputeLocked(start)
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify(listeners, update)
	return nil
}

// SetSourceImage installs a new source and recomputes every stage. The
// previous source's stages are released first and the last good view set is
// cleared.
func (p *Pipeline) SetSourceImage(buf engine.PixelBuffer) error {
	if _, err := engine.NewPixelBuffer(buf.Width, buf.Height, buf.Pix); err != nil {
		return fmt.Errorf("source image: %w", err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	releaseErr := p.registry.Close()
	if releaseErr != nil {
		p.logger.WithError(releaseErr).Warn("pipeline: releasing previous source")
	}
	p.registry = NewRegistry()
	p.source = engine.PixelBuffer{Width: buf.Width, Height: buf.Height, Pix: append([]byte(nil), buf.Pix...)}
	p.curves = nil
	p.lastGood = nil
	p.pending = NoStage
	p.logger.WithFields(logrus.Fields{"width": buf.Width, "height": buf.Height}).Info("pipeline: source image set")

	update, err := p.recomputeLocked(StageSource)
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify(listeners, update)
	return nil
}

// Reset restores the default parameters.
func (p *Pipeline) Reset() error {
	return p.SetParameters(DefaultParameters())
}

// Refresh re-runs the pipeline from start with the current parameters.
func (p *Pipeline) Refresh(start StageIndex) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.source.Empty() {
		p.mu.Unlock()
		return ErrNoSource
	}
	update, err := p.recomputeLocked(start)
	listeners := p.snapshotListeners()
	p.mu.Unlock()
	if err != nil {
		return err
	}
	notify(listeners, update)
	return nil
}

// Close releases every resident resource. Further mutations fail.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.listeners = map[int]func(Update){}
	p.curves = nil
	p.lastGood = nil
	err := p.registry.Close()
	if err != nil {
		p.logger.WithError(err).Error("pipeline: teardown")
		return fmt.Errorf("close pipeline: %w", err)
	}
	p.logger.Debug("pipeline: closed")
	return nil
}

func (p *Pipeline) recomputeLocked(start StageIndex) (Update, error) {
	if p.pending != NoStage && p.pending < start {
		start = p.pending
	}
	res, err := p.rc.Recompute(p.registry, p.params, p.source, start)
	if err != nil {
		p.pending = start
		return Update{}, err
	}
	p.pending = NoStage
	p.registry = res.Registry
	p.curves = res.Curves
	if views := p.registry.Snapshots(); views != nil {
		p.lastGood = views
	}
	return Update{Curves: append([]engine.Curve(nil), res.Curves...), Parameters: p.params}, nil
}

func (p *Pipeline) snapshotListeners() []func(Update) {
	out := make([]func(Update), 0, len(p.listeners))
	for i := 0; i < p.nextSub; i++ {
		if fn, ok := p.listeners[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(listeners []func(Update), u Update) {
	for _, fn := range listeners {
		fn(u)
	}
}
