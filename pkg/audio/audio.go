// Package audio defines the playback engine contract consumed by the
// session and waveform layers. Implementations wrap a concrete backend
// (see the wavengine subpackage); tests use the deterministic engine in
// the enginetest subpackage.
package audio

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/google/uuid"
)

// Engine load errors. Load reports exactly one of these (possibly wrapped
// with detail) so callers can map failures to user-facing messages.
var (
	// ErrNotFound is returned when the audio file cannot be found.
	ErrNotFound = errors.New("audio file not found")

	// ErrUnsupportedFormat is returned when the file exists but the engine
	// cannot decode its format.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrCorrupted is returned when decoding fails partway through a file
	// the engine claims to support.
	ErrCorrupted = errors.New("corrupted audio file")

	// ErrInvalidHandle is returned when a handle does not belong to this
	// engine or has already been closed.
	ErrInvalidHandle = errors.New("invalid audio handle")
)

// UnboundedEndFrame marks a playback with no explicit end frame: the
// playback runs to the end of the file.
const UnboundedEndFrame int64 = math.MaxInt64

// Metadata describes a loaded audio file.
type Metadata struct {
	SampleRate    int
	ChannelCount  int
	BitsPerSample int
	FrameCount    int64
}

// DurationSeconds returns the total duration of the file in seconds.
func (m Metadata) DurationSeconds() float64 {
	if m.SampleRate <= 0 {
		return 0
	}
	return float64(m.FrameCount) / float64(m.SampleRate)
}

// Handle identifies a loaded audio file within an engine. Handles are
// opaque to callers; the id is used to correlate log lines across
// goroutines.
type Handle struct {
	id   uuid.UUID
	path string
}

// NewHandle creates a handle for the given path. Engine implementations
// call this from Load.
func NewHandle(path string) *Handle {
	return &Handle{id: uuid.New(), path: path}
}

// ID returns the unique id of this handle.
func (h *Handle) ID() uuid.UUID { return h.id }

// Path returns the file path the handle was loaded from.
func (h *Handle) Path() string { return h.path }

// Playback identifies one active playback of a loaded file. The active
// flag is the "handle reports inactive" signal consumed by the progress
// monitor: engines flip it on stop, callers only read it.
type Playback struct {
	id         uuid.UUID
	startFrame int64
	endFrame   int64
	active     atomic.Bool
}

// NewPlayback creates a playback handle covering [startFrame, endFrame).
// Use UnboundedEndFrame for playback to the end of the file.
func NewPlayback(startFrame, endFrame int64) *Playback {
	p := &Playback{id: uuid.New(), startFrame: startFrame, endFrame: endFrame}
	p.active.Store(true)
	return p
}

// ID returns the unique id of this playback.
func (p *Playback) ID() uuid.UUID { return p.id }

// StartFrame returns the first frame of the playback range.
func (p *Playback) StartFrame() int64 { return p.startFrame }

// EndFrame returns the exclusive end frame of the playback range, or
// UnboundedEndFrame when the playback runs to the end of the file.
func (p *Playback) EndFrame() int64 { return p.endFrame }

// IsActive reports whether the playback is still live. Once false it
// never becomes true again.
func (p *Playback) IsActive() bool { return p.active.Load() }

// Deactivate marks the playback as finished. Engine implementations and
// the progress monitor call this; it is idempotent.
func (p *Playback) Deactivate() { p.active.Store(false) }

// Engine is the native playback backend. All methods are safe for
// concurrent use. Sample read-back may block on I/O and therefore takes
// a context; everything else returns promptly.
type Engine interface {
	// Load opens an audio file and returns a handle for it. Errors wrap
	// ErrNotFound, ErrUnsupportedFormat or ErrCorrupted.
	Load(path string) (*Handle, error)

	// Metadata returns format information for a loaded file.
	Metadata(h *Handle) (Metadata, error)

	// Play starts playback of the whole file.
	Play(h *Handle) (*Playback, error)

	// PlayRange starts playback of [startFrame, endFrame).
	PlayRange(h *Handle, startFrame, endFrame int64) (*Playback, error)

	// Pause suspends a playback; the hardware clock stops advancing.
	Pause(p *Playback) error

	// Resume continues a paused playback.
	Resume(p *Playback) error

	// Stop ends a playback and deactivates its handle.
	Stop(p *Playback) error

	// Seek moves a playback to an absolute frame position.
	Seek(p *Playback, frame int64) error

	// IsPaused reports whether the playback is currently paused.
	IsPaused(p *Playback) (bool, error)

	// Clock returns the hardware/DSP clock reading for a playback, in
	// samples at MixRate. The reading is monotonic while the playback is
	// running and unrelated to the source sample rate.
	Clock(p *Playback) (int64, error)

	// MixRate returns the engine's output mix rate in samples per second.
	MixRate() int

	// ReadSamples reads frameCount mono frames starting at startFrame,
	// normalized to [-1, 1]. Frames outside the file are returned as
	// silence so callers can render regions before the recording start.
	ReadSamples(ctx context.Context, h *Handle, startFrame, frameCount int64) ([]float64, error)

	// Close releases a loaded file and invalidates its handle.
	Close(h *Handle) error
}
