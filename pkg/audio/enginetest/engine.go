// Package enginetest provides a deterministic in-memory audio.Engine for
// tests. The clock is advanced manually, so timing-sensitive behavior can
// be tested without sleeping.
package enginetest

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/soundglass/waveview/pkg/audio"
)

// Engine is an in-memory audio.Engine. One file is loaded at a time; the
// hardware clock only moves when AdvanceClock or AdvanceSeconds is called.
type Engine struct {
	mu sync.Mutex

	mixRate int
	meta    audio.Metadata
	samples []float64

	handle   *audio.Handle
	playback *audio.Playback
	paused   bool
	clock    int64

	// LoadErr, when set, is returned by the next Load call.
	LoadErr error
	// PlayErr, when set, is returned by the next Play or PlayRange call.
	PlayErr error
	// ReadErr, when set, is returned by every ReadSamples call.
	ReadErr error

	closes int
}

// New creates an engine serving the given mono samples with the given
// metadata. The mix rate equals the source sample rate.
func New(meta audio.Metadata, samples []float64) *Engine {
	return &Engine{mixRate: meta.SampleRate, meta: meta, samples: samples}
}

// NewSine creates an engine serving a sine tone of the given duration.
func NewSine(sampleRate int, seconds float64, freq float64) *Engine {
	n := int(seconds * float64(sampleRate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(sampleRate))
	}
	meta := audio.Metadata{
		SampleRate:    sampleRate,
		ChannelCount:  1,
		BitsPerSample: 16,
		FrameCount:    int64(n),
	}
	return New(meta, samples)
}

// AdvanceClock moves the hardware clock forward by n samples at the mix
// rate. Paused playbacks do not advance.
func (e *Engine) AdvanceClock(n int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.paused {
		e.clock += n
	}
}

// AdvanceSeconds moves the hardware clock forward by the given duration.
func (e *Engine) AdvanceSeconds(s float64) {
	e.AdvanceClock(int64(s * float64(e.mixRate)))
}

// SetClock sets the raw clock value, regardless of pause state. Used to
// simulate clock wraparound.
func (e *Engine) SetClock(v int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = v
}

// CurrentPlayback returns the active playback handle, or nil.
func (e *Engine) CurrentPlayback() *audio.Playback {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playback
}

func (e *Engine) Load(path string) (*audio.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.LoadErr != nil {
		err := e.LoadErr
		e.LoadErr = nil
		return nil, err
	}
	e.handle = audio.NewHandle(path)
	return e.handle, nil
}

func (e *Engine) Metadata(h *audio.Handle) (audio.Metadata, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil || h != e.handle {
		return audio.Metadata{}, audio.ErrInvalidHandle
	}
	return e.meta, nil
}

func (e *Engine) Play(h *audio.Handle) (*audio.Playback, error) {
	return e.PlayRange(h, 0, audio.UnboundedEndFrame)
}

func (e *Engine) PlayRange(h *audio.Handle, startFrame, endFrame int64) (*audio.Playback, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PlayErr != nil {
		err := e.PlayErr
		e.PlayErr = nil
		return nil, err
	}
	if h == nil || h != e.handle {
		return nil, audio.ErrInvalidHandle
	}
	if e.playback != nil {
		e.playback.Deactivate()
	}
	e.playback = audio.NewPlayback(startFrame, endFrame)
	e.paused = false
	return e.playback, nil
}

func (e *Engine) Pause(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkPlaybackLocked(p); err != nil {
		return err
	}
	e.paused = true
	return nil
}

func (e *Engine) Resume(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkPlaybackLocked(p); err != nil {
		return err
	}
	e.paused = false
	return nil
}

func (e *Engine) Stop(p *audio.Playback) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkPlaybackLocked(p); err != nil {
		return err
	}
	p.Deactivate()
	e.playback = nil
	e.paused = false
	return nil
}

func (e *Engine) Seek(p *audio.Playback, frame int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkPlaybackLocked(p)
}

func (e *Engine) IsPaused(p *audio.Playback) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkPlaybackLocked(p); err != nil {
		return false, err
	}
	return e.paused, nil
}

func (e *Engine) Clock(p *audio.Playback) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkPlaybackLocked(p); err != nil {
		return 0, err
	}
	return e.clock, nil
}

func (e *Engine) MixRate() int { return e.mixRate }

func (e *Engine) ReadSamples(ctx context.Context, h *audio.Handle, startFrame, frameCount int64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ReadErr != nil {
		return nil, e.ReadErr
	}
	if h == nil || h != e.handle {
		return nil, audio.ErrInvalidHandle
	}
	out := make([]float64, frameCount)
	for i := int64(0); i < frameCount; i++ {
		idx := startFrame + i
		if idx >= 0 && idx < int64(len(e.samples)) {
			out[i] = e.samples[idx]
		}
	}
	return out, nil
}

func (e *Engine) Close(h *audio.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if h == nil || h != e.handle {
		return audio.ErrInvalidHandle
	}
	if e.playback != nil {
		e.playback.Deactivate()
		e.playback = nil
	}
	e.handle = nil
	e.closes++
	return nil
}

// CloseCount reports how many handles have been closed.
func (e *Engine) CloseCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closes
}

func (e *Engine) checkPlaybackLocked(p *audio.Playback) error {
	if p == nil || p != e.playback {
		return fmt.Errorf("%w: unknown playback", audio.ErrInvalidHandle)
	}
	return nil
}
