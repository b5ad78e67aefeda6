// Package viewport projects the session playhead into a drawable window.
// The projector is pure: the same snapshot and UI state always produce
// the same window and the same generation tag.
package viewport

import (
	"hash/fnv"
	"math"

	"github.com/soundglass/waveview/pkg/session"
)

// UIState is the user-controlled part of the viewport: zoom level and
// widget size. FramesPerPixel is the zoom unit; larger values show more
// audio per pixel.
type UIState struct {
	FramesPerPixel float64
	WidthPx        int
	HeightPx       int
}

// TimelineWindow is the visible frame range, playhead centered. Frames
// are the only unit here; seconds appear first in WaveformWindow.
type TimelineWindow struct {
	StartFrame int64
	EndFrame   int64
	Generation uint64
}

// VisibleFrames returns the window span in frames.
func (w TimelineWindow) VisibleFrames() int64 {
	return w.EndFrame - w.StartFrame
}

// WaveformWindow is the time-domain request handed to the waveform
// renderer.
type WaveformWindow struct {
	StartSeconds    float64
	EndSeconds      float64
	WidthPx         int
	HeightPx        int
	PixelsPerSecond float64
}

// DurationSeconds returns the window span in seconds.
func (w WaveformWindow) DurationSeconds() float64 {
	return w.EndSeconds - w.StartSeconds
}

// Project computes the visible frame window for a snapshot. The playhead
// sits at the horizontal center; the start may be negative near the
// beginning of the file and the end may exceed the file near its end.
// The caller renders silence for the out-of-file part.
func Project(snap session.Snapshot, ui UIState) TimelineWindow {
	visible := int64(math.Round(float64(ui.WidthPx) * ui.FramesPerPixel))
	if visible < 0 {
		visible = 0
	}
	start := snap.PlayheadFrame - visible/2
	return TimelineWindow{
		StartFrame: start,
		EndFrame:   start + visible,
		Generation: generation(snap.PlayheadFrame, ui),
	}
}

// ToWaveformWindow converts a frame window to the time domain. This is
// the single place frames become seconds on the render path.
func ToWaveformWindow(w TimelineWindow, ui UIState, sampleRate int) WaveformWindow {
	rate := float64(sampleRate)
	return WaveformWindow{
		StartSeconds:    float64(w.StartFrame) / rate,
		EndSeconds:      float64(w.EndFrame) / rate,
		WidthPx:         ui.WidthPx,
		HeightPx:        ui.HeightPx,
		PixelsPerSecond: rate / ui.FramesPerPixel,
	}
}

// generation hashes the four inputs that make a frame distinct. Equal
// inputs always hash equal, so a stale async render can be recognized
// and discarded by tag comparison alone.
func generation(playheadFrame int64, ui UIState) uint64 {
	h := fnv.New64a()
	var buf [32]byte
	putUint64(buf[0:], uint64(playheadFrame))
	putUint64(buf[8:], math.Float64bits(ui.FramesPerPixel))
	putUint64(buf[16:], uint64(ui.WidthPx))
	putUint64(buf[24:], uint64(ui.HeightPx))
	h.Write(buf[:])
	return h.Sum64()
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}
