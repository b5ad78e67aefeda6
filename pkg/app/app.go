// Package app wires the command line, the audio engine and the render
// pipeline together.
package app

import (
	"fmt"
	"log/slog"

	"github.com/soundglass/waveview/pkg/audio/wavengine"
	"github.com/soundglass/waveview/pkg/cli"
	"github.com/soundglass/waveview/pkg/logger"
	"github.com/soundglass/waveview/pkg/render"
	"github.com/soundglass/waveview/pkg/session"
	"github.com/soundglass/waveview/pkg/viewer"
	"github.com/soundglass/waveview/pkg/viewport"
	"github.com/soundglass/waveview/pkg/waveform"
)

// Application manages the main application flow.
type Application struct {
	config *cli.Config
	log    *slog.Logger
}

// New creates an Application.
func New() *Application {
	return &Application{}
}

// Run parses args, builds the pipeline and blocks until the viewer
// exits.
func (app *Application) Run(args []string) error {
	config, err := cli.ParseArgs(args)
	if err != nil {
		return fmt.Errorf("failed to parse args: %w", err)
	}
	app.config = config

	if app.config.ShowHelp {
		cli.PrintHelp()
		return nil
	}

	if err := logger.InitLogger(app.config.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.log = logger.GetLogger()
	app.log.Info("Application started")

	engine := wavengine.NewEngine()
	sess := session.NewSession(engine, app.config.PollInterval)
	defer sess.Shutdown()

	ctrl := viewport.NewController(viewer.DefaultWindowWidth, viewer.DefaultWindowHeight)
	cache := waveform.NewCache(int64(app.config.CacheBudgetMB) << 20)
	renderer := waveform.NewRenderer(engine, cache, 0, app.config.PrefetchSeconds)
	composer := render.NewComposer(sess, ctrl, renderer)
	scheduler := render.NewScheduler(app.config.RenderTimeout)

	if app.config.AudioPath != "" {
		if err := sess.Load(app.config.AudioPath); err != nil {
			// The session is in its error state; the viewer shows it.
			app.log.Error("failed to load audio", "path", app.config.AudioPath, "error", err)
		}
	}

	defer app.log.Info("cache summary", "stats", cache.StatsLine())

	if app.config.Headless {
		return viewer.RunHeadless(sess, composer, scheduler, app.config.Timeout)
	}
	v := viewer.New(sess, ctrl, composer, scheduler, app.config.Timeout)
	return v.Run()
}
