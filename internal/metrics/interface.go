// Quality metrics over stage snapshots
package metrics

import (
	"fmt"
	"sort"

	"vektor/internal/core"
	"vektor/internal/engine"
)

// Metric compares two snapshots of the same size.
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed engine.PixelBuffer) (float64, error)

	GetName() string
	GetDescription() string

	// GetRange returns the practical value range (min, max)
	GetRange() (float64, float64)

	// IsHigherBetter returns true if higher values indicate better quality
	IsHigherBetter() bool
}

// stagePair selects the snapshots a metric is evaluated on.
type stagePair struct {
	metric   string
	before   core.StageIndex
	after    core.StageIndex
	resultAs string
}

// defaultPairs are the stage comparisons reported by EvaluateStages.
var defaultPairs = []stagePair{
	{"psnr", core.StageSource, core.StageBlur, "blur_psnr"},
	{"sharpness", core.StageSource, core.StageBlur, "blur_sharpness"},
	{"edge_density", core.StageThinned, core.StageEdgeMap, "edge_density"},
	{"psnr", core.StageSource, core.StageColorPlot, "plot_psnr"},
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

func NewEvaluator() *Evaluator {
	e := &Evaluator{metrics: make(map[string]Metric)}
	e.RegisterDefaultMetrics()
	return e
}

// RegisterDefaultMetrics registers all default metrics
func (e *Evaluator) RegisterDefaultMetrics() {
	e.Register("psnr", NewPSNR())
	e.Register("mse", NewMSE())
	e.Register("sharpness", NewSharpness())
	e.Register("edge_density", NewEdgeDensity())
}

func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names lists the registered metrics in sorted order.
func (e *Evaluator) Names() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Calculate calculates a specific metric
func (e *Evaluator) Calculate(name string, original, processed engine.PixelBuffer) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}
	return metric.Calculate(original, processed)
}

// CalculateAll calculates all registered metrics, skipping the ones that
// fail.
func (e *Evaluator) CalculateAll(original, processed engine.PixelBuffer) map[string]float64 {
	results := make(map[string]float64)
	for name, metric := range e.metrics {
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}
	return results
}

// MetricFor returns the metric behind a result name reported by
// EvaluateStages.
func (e *Evaluator) MetricFor(result string) (Metric, bool) {
	for _, p := range defaultPairs {
		if p.resultAs == result {
			m, ok := e.metrics[p.metric]
			return m, ok
		}
	}
	return nil, false
}

// Describe formats what a metric measures, its direction and its range.
func Describe(m Metric) string {
	direction := "lower is better"
	if m.IsHigherBetter() {
		direction = "higher is better"
	}
	lo, hi := m.GetRange()
	return fmt.Sprintf("%s: %s, %s, range %g to %g", m.GetName(), m.GetDescription(), direction, lo, hi)
}

// EvaluateStages computes the stage comparisons that apply to the given
// snapshots. Pairs with a missing stage or mismatched sizes are skipped; the
// colour plot only matches the source at plot scale 1.
func (e *Evaluator) EvaluateStages(views []core.StageView) map[string]float64 {
	byStage := make(map[core.StageIndex]engine.PixelBuffer, len(views))
	for _, v := range views {
		byStage[v.Stage] = v.Pixels
	}

	results := make(map[string]float64)
	for _, p := range defaultPairs {
		before, ok1 := byStage[p.before]
		after, ok2 := byStage[p.after]
		if !ok1 || !ok2 {
			continue
		}
		if value, err := e.Calculate(p.metric, before, after); err == nil {
			results[p.resultAs] = value
		}
	}
	return results
}
