// Package gui is the fyne desktop surface: a stage carousel, the parameter
// panel and the progressive final view.
package gui

import (
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"vektor/internal/config"
	"vektor/internal/core"
	"vektor/internal/engine"
	vio "vektor/internal/io"
	"vektor/internal/metrics"
	"vektor/internal/render"
)

// Application is the main window and everything it drives.
type Application struct {
	app    fyne.App
	window fyne.Window
	logger logrus.FieldLogger

	pipeline    *core.Pipeline
	loader      *vio.ImageLoader
	evaluator   *metrics.Evaluator
	renderer    *render.Renderer
	sched       *render.IdleScheduler
	unsubscribe func()

	stages    *StageViewer
	controls  *ConfigPanel
	final     *CurveView
	progress  *widget.ProgressBar
	showFinal *widget.Check
	status    *widget.Label
	center    *fyne.Container
}

func NewApplication(app fyne.App, eng engine.Engine, cfg config.Config, logger logrus.FieldLogger) *Application {
	window := app.NewWindow("vektor")
	window.Resize(fyne.NewSize(1280, 860))
	window.CenterOnScreen()

	a := &Application{
		app:    app,
		window: window,
		logger: logger,
	}
	a.initializeCore(eng, cfg)
	a.initializeGUI(cfg)
	a.setupLayout()
	a.setupCallbacks(cfg)
	return a
}

func (a *Application) initializeCore(eng engine.Engine, cfg config.Config) {
	tracer := core.NewTracer(a.logger, 0)
	a.pipeline = core.NewPipeline(eng, a.logger, core.WithParameters(cfg.Pipeline), core.WithTracer(tracer))
	a.loader = vio.NewImageLoader(a.logger, cfg.Input.MaxSide)
	a.evaluator = metrics.NewEvaluator()
	// fyne reports no idle time, so batches run on the fallback timer and
	// are posted back to the main goroutine.
	a.sched = render.NewIdleScheduler(nil, cfg.Render.IdleFallback.Duration, fyne.Do)
}

func (a *Application) initializeGUI(cfg config.Config) {
	a.stages = NewStageViewer()
	a.controls = NewConfigPanel(cfg.Pipeline)
	a.final = NewCurveView()
	a.progress = widget.NewProgressBar()
	a.progress.Hide()
	a.status = widget.NewLabel("Open an image to start")
	a.showFinal = widget.NewCheck("Show final", a.setShowFinal)

	a.renderer = render.NewRenderer(a.final, a.sched,
		render.WithBatchSize(cfg.Render.BatchSize),
		render.WithLogger(a.logger),
		render.WithProgress(a.onProgress),
	)
}

func (a *Application) setupLayout() {
	open := widget.NewButton("Open Image...", a.openImage)
	toolbar := container.NewHBox(open, a.showFinal)

	a.center = container.NewStack(a.stages.GetContainer(), a.final.GetContainer())
	a.final.GetContainer().Hide()

	centerPanel := container.NewBorder(toolbar, container.NewVBox(a.progress, a.status), nil, nil, a.center)
	split := container.NewHSplit(container.NewScroll(a.controls.GetContainer()), centerPanel)
	split.SetOffset(0.25)

	a.window.SetMainMenu(a.mainMenu())
	a.window.SetContent(split)
}

func (a *Application) setupCallbacks(cfg config.Config) {
	a.controls.OnChanged = func(p core.Parameters) {
		if err := a.pipeline.SetParameters(p); err != nil {
			a.showError("Recompute failed", err)
		}
		a.refreshStages()
	}
	a.controls.OnReset = func() {
		if err := a.pipeline.SetParameters(cfg.Pipeline); err != nil {
			a.showError("Reset failed", err)
		}
		a.controls.SetParameters(a.pipeline.Parameters())
		a.refreshStages()
	}
	a.unsubscribe = a.pipeline.Subscribe(a.onUpdate)
}

func (a *Application) mainMenu() *fyne.MainMenu {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", a.openImage),
		fyne.NewMenuItem("Save Stage...", a.saveStage),
	)
	return fyne.NewMainMenu(fileMenu)
}

// onUpdate restarts the final view. It runs on the goroutine that changed
// the pipeline, which is always the main one.
func (a *Application) onUpdate(u core.Update) {
	style := render.StyleOf(u.Parameters)
	if u.Recolor {
		a.renderer.Restyle(style)
		return
	}
	a.final.Frame(u.Curves)
	a.renderer.Start(u.Curves, style)
	a.updateStatus(fmt.Sprintf("%d curves", len(u.Curves)))
}

func (a *Application) onProgress(p render.Progress) {
	if !p.Active {
		a.progress.Hide()
		return
	}
	a.progress.Show()
	a.progress.SetValue(p.Value)
}

func (a *Application) setShowFinal(on bool) {
	if on {
		a.stages.GetContainer().Hide()
		a.final.GetContainer().Show()
	} else {
		a.final.GetContainer().Hide()
		a.stages.GetContainer().Show()
	}
	a.center.Refresh()
}

func (a *Application) refreshStages() {
	a.stages.SetStages(a.pipeline.ReadyStages())
}

func (a *Application) openImage() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			a.showError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		path := reader.URI().Path()
		buf, err := a.loader.Decode(reader, path)
		if err != nil {
			a.showError("Failed to Load Image", err)
			return
		}
		a.setSource(buf, path)
	}, a.window)
	fileDialog.SetFilter(storage.NewExtensionFileFilter(vio.SupportedExtensions()))
	fileDialog.Show()
}

// LoadImageFromPath loads a source before the window is shown.
func (a *Application) LoadImageFromPath(path string) error {
	buf, err := a.loader.LoadImage(path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	a.setSource(buf, path)
	return nil
}

func (a *Application) setSource(buf engine.PixelBuffer, path string) {
	if err := a.pipeline.SetSourceImage(buf); err != nil {
		a.showError("Processing Error", err)
	} else {
		a.updateStatus(fmt.Sprintf("Loaded: %s%s", path, a.qualitySummary()))
	}
	a.refreshStages()
}

// qualitySummary formats the blur and hysteresis scores of the current run.
func (a *Application) qualitySummary() string {
	scores := a.evaluator.EvaluateStages(a.pipeline.ReadyStages())
	a.logger.WithFields(logrus.Fields{"scores": scores}).Debug("Stage metrics")
	edges, ok := scores["edge_density"]
	if !ok {
		return ""
	}
	return fmt.Sprintf("  (blur PSNR %.1f dB, %.0f%% of edge candidates kept)", scores["blur_psnr"], 100*edges)
}

func (a *Application) saveStage() {
	sv, ok := a.stages.Current()
	if !ok {
		a.showError("No Image", errors.New("no stage to save"))
		return
	}
	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			a.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		// The loader writes the file itself.
		writer.Close()
		if err := a.loader.SaveImage(sv.Pixels, path); err != nil {
			a.showError("Failed to Save Image", err)
			return
		}
		a.updateStatus(fmt.Sprintf("Saved: %s", path))
	}, a.window)
	fileDialog.SetFileName(sv.FileName())
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".png"}))
	fileDialog.Show()
}

func (a *Application) updateStatus(message string) {
	a.status.SetText(message)
}

func (a *Application) showError(title string, err error) {
	a.logger.WithError(err).Error(title)
	var perr *core.ParameterError
	if errors.As(err, &perr) {
		a.controls.SetParameters(a.pipeline.Parameters())
	}
	dialog.ShowError(err, a.window)
	a.updateStatus(fmt.Sprintf("Error: %s", err))
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing main application window")
	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})
	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.unsubscribe()
	a.renderer.Stop()
	a.sched.Close()
	if err := a.pipeline.Close(); err != nil {
		a.logger.WithError(err).Warn("Pipeline teardown failed")
	}
}
