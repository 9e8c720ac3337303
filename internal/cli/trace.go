package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"vektor/internal/core"
	"vektor/internal/engine"
	vio "vektor/internal/io"
	"vektor/internal/metrics"
	"vektor/internal/plotview"
	"vektor/internal/render"
)

// plotDPI converts plot pixels to vg lengths at the png encoder's default.
const plotDPI = 96

type traceOptions struct {
	out    string
	svg    bool
	params paramFlags
}

// paramFlags overrides configuration values when the flag is set.
type paramFlags struct {
	kernelSize     int
	iterations     int
	takePercentile float64
	plotScale      float64
	background     string
	colorMode      string
}

func (f *paramFlags) register(cmd *cobra.Command) {
	d := core.DefaultParameters()
	cmd.Flags().IntVar(&f.kernelSize, "kernel-size", d.KernelSize, "blur kernel size")
	cmd.Flags().IntVar(&f.iterations, "iterations", d.Iterations, "blur iterations")
	cmd.Flags().Float64Var(&f.takePercentile, "take-percentile", d.TakePercentile, "fraction of orphan edge components kept")
	cmd.Flags().Float64Var(&f.plotScale, "plot-scale", d.PlotScale, "plot size relative to the source")
	cmd.Flags().StringVar(&f.background, "background", string(d.Background), "plot background: black, white")
	cmd.Flags().StringVar(&f.colorMode, "color-mode", string(d.ColorMode), "final view colours: colorful, solid")
}

func (f *paramFlags) apply(cmd *cobra.Command, p core.Parameters) core.Parameters {
	changed := cmd.Flags().Changed
	if changed("kernel-size") {
		p.KernelSize = f.kernelSize
	}
	if changed("iterations") {
		p.Iterations = f.iterations
	}
	if changed("take-percentile") {
		p.TakePercentile = f.takePercentile
	}
	if changed("plot-scale") {
		p.PlotScale = f.plotScale
	}
	if changed("background") {
		p.Background = core.Background(f.background)
	}
	if changed("color-mode") {
		p.ColorMode = core.ColorMode(f.colorMode)
	}
	return p
}

func (c *CLI) traceCommand() *cobra.Command {
	var opts traceOptions
	cmd := &cobra.Command{
		Use:   "trace IMAGE",
		Short: "Run the pipeline headless and write every stage to disk",
		Long: `Run every stage on IMAGE and write the stage snapshots as PNG files to the
output directory, followed by the streamed curve plot (curves.png, and curves.svg with --svg).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := opts.params.apply(cmd, c.cfg.Pipeline)
			return c.runTrace(cmd, args[0], params, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.out, "out", "o", ".", "output directory")
	cmd.Flags().BoolVar(&opts.svg, "svg", false, "also write curves.svg")
	opts.params.register(cmd)
	return cmd
}

func (c *CLI) runTrace(cmd *cobra.Command, path string, params core.Parameters, opts traceOptions) error {
	ctx := cmd.Context()
	logger := c.Logger.WithField("command", "trace")
	if err := params.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	loader := vio.NewImageLoader(logger, c.cfg.Input.MaxSide)
	src, err := loader.LoadImage(path)
	if err != nil {
		return err
	}

	tracer := core.NewTracer(logger, 0)
	p := core.NewPipeline(c.NewEngine(logger), logger, core.WithParameters(params), core.WithTracer(tracer))
	defer func() {
		if err := p.Close(); err != nil {
			logger.WithError(err).Warn("Pipeline teardown failed")
		}
	}()
	if err := p.SetSourceImage(src); err != nil {
		return fmt.Errorf("trace %s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	views := p.ReadyStages()
	var written []string
	for _, sv := range views {
		name := filepath.Join(opts.out, sv.FileName())
		if err := loader.SaveImage(sv.Pixels, name); err != nil {
			return err
		}
		written = append(written, name)
	}

	curves := p.Curves()
	w, h := params.PlotSize(src.Width, src.Height)
	files, err := c.exportCurves(logger, curves, params, w, h, opts)
	if err != nil {
		return err
	}
	written = append(written, files...)

	evaluator := metrics.NewEvaluator()
	return writeSummary(cmd.OutOrStdout(), tracer, len(curves), evaluator, evaluator.EvaluateStages(views), written)
}

func (c *CLI) exportCurves(logger logrus.FieldLogger, curves []engine.Curve, params core.Parameters, w, h int, opts traceOptions) ([]string, error) {
	view := plotview.New("")
	var queue render.Queue
	r := render.NewRenderer(view, &queue,
		render.WithBatchSize(c.cfg.Render.BatchSize),
		render.WithLogger(logger),
		render.WithProgress(func(p render.Progress) {
			logger.WithFields(logrus.Fields{"progress": p.Value, "active": p.Active}).Debug("Render progress")
		}),
	)
	r.Start(curves, render.StyleOf(params))
	queue.Drain()

	width := vg.Length(w) * vg.Inch / plotDPI
	height := vg.Length(h) * vg.Inch / plotDPI
	names := []string{"curves.png"}
	if opts.svg {
		names = append(names, "curves.svg")
	}
	var written []string
	for _, n := range names {
		path := filepath.Join(opts.out, n)
		if err := view.Save(width, height, path); err != nil {
			return nil, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeSummary(w io.Writer, tracer *core.Tracer, curves int, evaluator *metrics.Evaluator, scores map[string]float64, files []string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "curves\t%d\n", curves)
	if run, ok := tracer.Last(); ok {
		for _, st := range run.Stages {
			fmt.Fprintf(tw, "%s\t%s\n", st.Stage, st.Duration)
		}
		fmt.Fprintf(tw, "total\t%s\n", run.Duration)
	}
	names := make([]string, 0, len(scores))
	for name := range scores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		about := ""
		if m, ok := evaluator.MetricFor(name); ok {
			about = metrics.Describe(m)
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%s\n", name, scores[name], about)
	}
	for _, f := range files {
		fmt.Fprintf(tw, "wrote\t%s\n", f)
	}
	return tw.Flush()
}
