package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// StageTiming is one engine stage of a recompute run.
type StageTiming struct {
	Stage    StageIndex
	Duration time.Duration
	Err      string
}

// RunTrace records a single recompute.
type RunTrace struct {
	ID         string
	Start      StageIndex
	Parameters Parameters
	Began      time.Time
	Duration   time.Duration
	Stages     []StageTiming
	Success    bool
	Err        string
}

// Stage appends a timing. It is a no-op on a nil trace.
func (rt *RunTrace) Stage(stage StageIndex, d time.Duration, err error) {
	if rt == nil {
		return
	}
	st := StageTiming{Stage: stage, Duration: d}
	if err != nil {
		st.Err = err.Error()
	}
	rt.Stages = append(rt.Stages, st)
}

// Tracer keeps the most recent recompute runs. A nil Tracer records nothing.
type Tracer struct {
	mu     sync.Mutex
	logger logrus.FieldLogger
	limit  int
	runs   []RunTrace
}

func NewTracer(logger logrus.FieldLogger, limit int) *Tracer {
	if logger == nil {
		logger = discardLogger()
	}
	if limit <= 0 {
		limit = 32
	}
	return &Tracer{logger: logger, limit: limit}
}

func (t *Tracer) Begin(id string, start StageIndex, params Parameters) *RunTrace {
	if t == nil {
		return nil
	}
	return &RunTrace{ID: id, Start: start, Parameters: params, Began: time.Now()}
}

func (t *Tracer) End(rt *RunTrace, err error) {
	if t == nil || rt == nil {
		return
	}
	rt.Duration = time.Since(rt.Began)
	rt.Success = err == nil
	if err != nil {
		rt.Err = err.Error()
	}

	t.mu.Lock()
	t.runs = append(t.runs, *rt)
	if over := len(t.runs) - t.limit; over > 0 {
		t.runs = append([]RunTrace(nil), t.runs[over:]...)
	}
	t.mu.Unlock()

	entry := t.logger.WithFields(logrus.Fields{
		"run":         rt.ID,
		"start":       rt.Start.String(),
		"stages":      len(rt.Stages),
		"duration_ms": rt.Duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Info("trace: recompute failed")
		return
	}
	entry.Info("trace: recompute finished")
}

// Runs returns the retained runs, oldest first.
func (t *Tracer) Runs() []RunTrace {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]RunTrace(nil), t.runs...)
}

// Last returns the most recent run.
func (t *Tracer) Last() (RunTrace, bool) {
	runs := t.Runs()
	if len(runs) == 0 {
		return RunTrace{}, false
	}
	return runs[len(runs)-1], true
}

// StageTotals sums the time spent per stage over all retained runs.
func (t *Tracer) StageTotals() map[StageIndex]time.Duration {
	totals := make(map[StageIndex]time.Duration)
	for _, run := range t.Runs() {
		for _, st := range run.Stages {
			totals[st.Stage] += st.Duration
		}
	}
	return totals
}
