package core

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vektor/internal/engine"
	"vektor/internal/resource"
)

// Recomputer rebuilds a registry suffix through the engine.
type Recomputer struct {
	eng    engine.Engine
	logger logrus.FieldLogger
	tracer *Tracer
}

func NewRecomputer(eng engine.Engine, logger logrus.FieldLogger, tracer *Tracer) *Recomputer {
	if logger == nil {
		logger = discardLogger()
	}
	return &Recomputer{eng: eng, logger: logger, tracer: tracer}
}

// Result is a committed recompute.
type Result struct {
	RunID    string
	Start    StageIndex
	Registry *Registry
	Curves   []engine.Curve
}

// run carries the state of one recompute. Stages before start are read from
// prev, the rest are written to next.
type run struct {
	id     string
	start  StageIndex
	params Parameters
	source engine.PixelBuffer
	prev   *Registry
	next   *Registry
	arena  *resource.Arena
	logger logrus.FieldLogger
	trace  *RunTrace
}

func (r *run) registryFor(i StageIndex) *Registry {
	if i < r.start {
		return r.prev
	}
	return r.next
}

func (r *run) image(i StageIndex) (engine.Image, error) {
	img, ok := r.registryFor(i).Image(i)
	if !ok {
		return nil, fmt.Errorf("%s is not resident", i)
	}
	return img, nil
}

func (r *run) curveList() (engine.CurveList, error) {
	cl, ok := r.registryFor(StageCurves).CurveList()
	if !ok {
		return nil, fmt.Errorf("%s is not resident", StageCurves)
	}
	return cl, nil
}

// Recompute rebuilds every stage from start onwards into a fresh registry.
//
// On success the stages of prev before start are moved into the result
// unchanged and the rest of prev is released, so prev must not be used
// again. On failure every resource allocated by the call is released and prev
// is returned to the caller untouched.
func (rc *Recomputer) Recompute(prev *Registry, params Parameters, source engine.PixelBuffer, start StageIndex) (res *Result, err error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !start.Valid() {
		return nil, fmt.Errorf("recompute: invalid start stage %d", int(start))
	}
	if prev == nil {
		prev = NewRegistry()
	}
	if start > StageCurves {
		// Both plots derive from the same curve list and are rebuilt together.
		start = StageGreyscalePlot
	}
	if missing := prev.FirstMissing(start); missing < start {
		rc.logger.WithFields(logrus.Fields{
			"requested": start.String(),
			"missing":   missing.String(),
		}).Debug("recompute: upstream stage absent, starting earlier")
		start = missing
	}
	if start == StageSource && source.Empty() {
		return nil, ErrNoSource
	}

	r := &run{
		id:     uuid.NewString(),
		start:  start,
		params: params,
		source: source,
		prev:   prev,
		next:   NewRegistry(),
		arena:  resource.NewArena(),
	}
	r.logger = rc.logger.WithFields(logrus.Fields{"run": r.id, "start": start.String()})
	r.trace = rc.tracer.Begin(r.id, start, params)

	defer func() {
		if closeErr := r.arena.Close(); closeErr != nil {
			r.logger.WithError(closeErr).Warn("recompute: releasing partial results")
		}
		rc.tracer.End(r.trace, err)
	}()

	began := time.Now()
	for stage := start; int(stage) < StageCount; stage++ {
		if err := rc.runStage(r, stage); err != nil {
			r.logger.WithError(err).WithField("stage", stage.String()).Error("recompute: stage failed")
			return nil, err
		}
	}

	for i := StageSource; i < start; i++ {
		r.next.slots[i] = prev.slots[i].take()
	}
	if releaseErr := prev.Invalidate(start); releaseErr != nil {
		r.logger.WithError(releaseErr).Warn("recompute: releasing superseded stages")
	}
	r.arena.Commit()

	r.logger.WithFields(logrus.Fields{
		"curves":  len(r.next.slots[StageCurves].curves),
		"elapsed": time.Since(began),
	}).Debug("recompute: committed")

	return &Result{RunID: r.id, Start: start, Registry: r.next, Curves: r.next.Curves()}, nil
}

func (rc *Recomputer) runStage(r *run, stage StageIndex) error {
	began := time.Now()
	err := rc.call(stage, func() error { return rc.compute(r, stage) })
	r.trace.Stage(stage, time.Since(began), err)
	if err == nil {
		r.logger.WithFields(logrus.Fields{
			"stage":    stage.String(),
			"duration": time.Since(began),
		}).Debug("recompute: stage done")
	}
	return err
}

// call runs fn and reports any error or panic as a StageError.
func (rc *Recomputer) call(stage StageIndex, fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &StageError{Stage: stage, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := fn(); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return err
		}
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (rc *Recomputer) compute(r *run, stage StageIndex) error {
	switch stage {
	case StageSource:
		img, err := rc.eng.BuildSource(r.source)
		return rc.installImage(r, stage, img, err)

	case StageBlur:
		src, err := r.image(StageSource)
		if err != nil {
			return err
		}
		img, err := rc.eng.Blur(src, BlurFactor, r.params.KernelSize, r.params.Iterations)
		return rc.installImage(r, stage, img, err)

	case StageGradient:
		blurred, err := r.image(StageBlur)
		if err != nil {
			return err
		}
		img, err := rc.eng.Gradient(blurred)
		return rc.installImage(r, stage, img, err)

	case StageThinned:
		gradient, err := r.image(StageGradient)
		if err != nil {
			return err
		}
		img, err := rc.eng.Thin(gradient)
		if err := rc.installImage(r, stage, img, err); err != nil {
			return err
		}
		t, err := rc.eng.Threshold(img, HistogramBuckets)
		if err != nil {
			return err
		}
		r.next.slots[stage].thresholds = t
		return nil

	case StageEdgeMap:
		thinned, err := r.image(StageThinned)
		if err != nil {
			return err
		}
		t := r.registryFor(StageThinned).Thresholds()
		img, err := rc.eng.Hysteresis(thinned, t, r.params.TakePercentile)
		return rc.installImage(r, stage, img, err)

	case StageCurves:
		return rc.traceCurves(r)

	case StageGreyscalePlot:
		src, err := r.image(StageSource)
		if err != nil {
			return err
		}
		cl, err := r.curveList()
		if err != nil {
			return err
		}
		w, h := r.params.PlotSize(src.Width(), src.Height())
		img, err := rc.eng.RenderGreyscale(w, h, cl, r.params.Background.Luminance())
		return rc.installImage(r, stage, img, err)

	case StageColorPlot:
		src, err := r.image(StageSource)
		if err != nil {
			return err
		}
		cl, err := r.curveList()
		if err != nil {
			return err
		}
		w, h := r.params.PlotSize(src.Width(), src.Height())
		bg := r.params.Background.Luminance()
		img, err := rc.eng.RenderColor(w, h, cl, src, engine.RGB{R: bg, G: bg, B: bg})
		return rc.installImage(r, stage, img, err)
	}
	return fmt.Errorf("unknown stage %d", int(stage))
}

func (rc *Recomputer) traceCurves(r *run) error {
	edges, err := r.image(StageEdgeMap)
	if err != nil {
		return err
	}
	src, err := r.image(StageSource)
	if err != nil {
		return err
	}
	cl, err := rc.eng.Trace(edges)
	if err != nil {
		return err
	}
	if cl == nil {
		return errors.New("engine returned no curve list")
	}
	h := r.arena.Track(StageCurves.String(), cl)

	curves := make([]engine.Curve, 0, cl.Len())
	for i := 0; i < cl.Len(); i++ {
		b := cl.At(i)
		c, err := rc.eng.CurveColor(b, src)
		if err != nil {
			return fmt.Errorf("colour of curve %d: %w", i, err)
		}
		curves = append(curves, engine.Curve{Bezier: b, Color: c})
	}

	slot := &r.next.slots[StageCurves]
	if err := slot.replace(h, nil); err != nil {
		return err
	}
	slot.curves = curves
	return nil
}

// installImage tracks img in the arena, snapshots it and places it in the
// stage's slot of the new registry.
func (rc *Recomputer) installImage(r *run, stage StageIndex, img engine.Image, err error) error {
	if err != nil {
		return err
	}
	if img == nil {
		return errors.New("engine returned no image")
	}
	h := r.arena.Track(stage.String(), img)
	snap, err := rc.eng.Pixels(img)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	return r.next.slots[stage].replace(h, &snap)
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
