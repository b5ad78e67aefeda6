// Package viewer drives the interactive waveform window and the
// headless render loop.
package viewer

import (
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/soundglass/waveview/pkg/logger"
	"github.com/soundglass/waveview/pkg/render"
	"github.com/soundglass/waveview/pkg/session"
	"github.com/soundglass/waveview/pkg/viewport"
)

const (
	// DefaultWindowWidth and DefaultWindowHeight size the window at
	// startup; resizing adjusts the viewport live.
	DefaultWindowWidth  = 1024
	DefaultWindowHeight = 320

	seekStep = time.Second
)

var playheadColor = color.RGBA{220, 30, 30, 255}

// Viewer is the ebiten game loop around the session and the render
// pipeline. Update handles input, Draw never blocks on rendering.
type Viewer struct {
	sess      *session.Session
	ctrl      *viewport.Controller
	composer  *render.Composer
	scheduler *render.Scheduler

	deadline time.Time

	frame    *ebiten.Image
	frameGen uint64
}

// New creates a viewer. A positive timeout terminates the loop after
// that long.
func New(sess *session.Session, ctrl *viewport.Controller, composer *render.Composer, scheduler *render.Scheduler, timeout time.Duration) *Viewer {
	v := &Viewer{
		sess:      sess,
		ctrl:      ctrl,
		composer:  composer,
		scheduler: scheduler,
	}
	if timeout > 0 {
		v.deadline = time.Now().Add(timeout)
	}
	return v
}

// Run opens the window and blocks until the viewer exits.
func (v *Viewer) Run() error {
	ebiten.SetWindowSize(DefaultWindowWidth, DefaultWindowHeight)
	ebiten.SetWindowTitle("waveview")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	if err := ebiten.RunGame(v); err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("viewer: %w", err)
	}
	return nil
}

func (v *Viewer) Update() error {
	if !v.deadline.IsZero() && time.Now().After(v.deadline) {
		return ebiten.Termination
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		v.togglePlayback()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowLeft) {
		if err := v.sess.SeekBy(-seekStep); err != nil {
			logger.GetLogger().Debug("seek rejected", "error", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowRight) {
		if err := v.sess.SeekBy(seekStep); err != nil {
			logger.GetLogger().Debug("seek rejected", "error", err)
		}
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowUp) {
		v.ctrl.ZoomIn()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyArrowDown) {
		v.ctrl.ZoomOut()
	}
	return nil
}

func (v *Viewer) togglePlayback() {
	var err error
	switch v.sess.Snapshot().State {
	case session.StateReady:
		err = v.sess.Play()
	case session.StatePlaying:
		err = v.sess.Pause()
	case session.StatePaused:
		err = v.sess.Resume()
	default:
		return
	}
	if err != nil {
		logger.GetLogger().Warn("playback toggle failed", "error", err)
	}
}

func (v *Viewer) Draw(screen *ebiten.Image) {
	bounds := screen.Bounds()
	v.ctrl.Resize(bounds.Dx(), bounds.Dy())

	spec := v.composer.RenderSpec()
	switch spec.Mode {
	case render.ModeEmpty:
		ebitenutil.DebugPrint(screen, "no audio loaded")
		return
	case render.ModeLoading:
		ebitenutil.DebugPrint(screen, "loading...")
		return
	case render.ModeError:
		ebitenutil.DebugPrint(screen, "error: "+spec.Message)
		return
	}

	img, fresh := v.scheduler.Frame(spec)
	if fresh && img != nil && spec.Generation != v.frameGen {
		v.frame = ebiten.NewImageFromImage(img)
		v.frameGen = spec.Generation
	} else if v.frame == nil && img != nil {
		// First frame: a held-over image beats an empty screen.
		v.frame = ebiten.NewImageFromImage(img)
	}
	if v.frame != nil {
		screen.DrawImage(v.frame, nil)
	}

	// The playhead is always the horizontal center.
	cx := float32(bounds.Dx()) / 2
	vector.StrokeLine(screen, cx, 0, cx, float32(bounds.Dy()), 1, playheadColor, false)
}

func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// RunHeadless drives the render pipeline without a window. With audio
// loaded it starts playback and runs until completion or the timeout;
// otherwise it idles until the timeout.
func RunHeadless(sess *session.Session, composer *render.Composer, scheduler *render.Scheduler, timeout time.Duration) error {
	log := logger.GetLogger()
	log.Info("headless mode", "timeout", timeout)

	playing := false
	if sess.Snapshot().State == session.StateReady {
		if err := sess.Play(); err != nil {
			return fmt.Errorf("headless playback: %w", err)
		}
		playing = true
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		spec := composer.RenderSpec()
		scheduler.Frame(spec)

		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Info("headless timeout reached")
			return nil
		}
		if playing && sess.Snapshot().State == session.StateReady {
			log.Info("headless playback finished")
			return nil
		}
		if !playing && deadline.IsZero() {
			// Nothing to wait for.
			return nil
		}
	}
	return nil
}
