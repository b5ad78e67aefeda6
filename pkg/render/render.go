// Package render composes frame specifications for the viewer. A spec
// says what the current frame should show; producing one never blocks
// on rendering.
package render

import (
	"sync"

	"github.com/soundglass/waveview/pkg/session"
	"github.com/soundglass/waveview/pkg/viewport"
	"github.com/soundglass/waveview/pkg/waveform"
)

// Mode says what kind of frame to draw.
type Mode int

const (
	// ModeEmpty draws the no-audio placeholder.
	ModeEmpty Mode = iota
	// ModeLoading draws the loading placeholder.
	ModeLoading
	// ModeError draws the failure message.
	ModeError
	// ModeContent draws the waveform frame.
	ModeContent
)

func (m Mode) String() string {
	switch m {
	case ModeEmpty:
		return "Empty"
	case ModeLoading:
		return "Loading"
	case ModeError:
		return "Error"
	case ModeContent:
		return "Content"
	default:
		return "Unknown"
	}
}

// Spec describes one frame. For ModeContent the Frame future resolves
// to the composed waveform image; the other modes carry no image.
type Spec struct {
	Mode       Mode
	Message    string
	Frame      *waveform.Future
	Generation uint64
	Window     viewport.WaveformWindow
}

// Composer turns the session snapshot and the viewport state into frame
// specs. It owns the cache invalidation policy: a zoom or height change
// clears the segment cache, a width change does not, and a session
// falling back to Loading or NoAudio clears everything.
type Composer struct {
	sess     *session.Session
	ctrl     *viewport.Controller
	renderer *waveform.Renderer

	mu     sync.Mutex
	lastUI viewport.UIState
	hasUI  bool
}

// NewComposer wires the composer between session and renderer. It
// registers itself as a session listener to drop stale waveforms when
// the audio goes away.
func NewComposer(sess *session.Session, ctrl *viewport.Controller, renderer *waveform.Renderer) *Composer {
	c := &Composer{sess: sess, ctrl: ctrl, renderer: renderer}
	sess.AddListener(&cacheInvalidator{renderer: renderer})
	return c
}

// RenderSpec produces the spec for the next frame. Non-blocking: cached
// content resolves immediately, missing content starts rendering in the
// background and the future resolves later.
func (c *Composer) RenderSpec() Spec {
	snap := c.sess.Snapshot()
	switch snap.State {
	case session.StateNoAudio:
		return Spec{Mode: ModeEmpty}
	case session.StateLoading:
		return Spec{Mode: ModeLoading}
	case session.StateError:
		return Spec{Mode: ModeError, Message: snap.Err}
	}

	ui := c.ctrl.State()
	c.mu.Lock()
	if c.hasUI && viewport.ClassifyChange(c.lastUI, ui) == viewport.ChangeInvalidating {
		c.renderer.Invalidate()
	}
	c.lastUI = ui
	c.hasUI = true
	c.mu.Unlock()

	c.renderer.SetSource(c.sess.Handle(), c.sess.Metadata())

	tw := viewport.Project(snap, ui)
	ww := viewport.ToWaveformWindow(tw, ui, snap.SampleRate)
	return Spec{
		Mode:       ModeContent,
		Frame:      c.renderer.RenderWindow(ww),
		Generation: tw.Generation,
		Window:     ww,
	}
}

// cacheInvalidator clears the waveform state when the session leaves
// its loaded states.
type cacheInvalidator struct {
	renderer *waveform.Renderer
}

func (i *cacheInvalidator) OnProgress(float64, float64) {}

func (i *cacheInvalidator) OnStateChanged(oldState, newState session.State) {
	if newState == session.StateLoading || newState == session.StateNoAudio {
		i.renderer.ClearSource()
	}
}

func (i *cacheInvalidator) OnPlaybackComplete() {}
