package render

import (
	"image"
	"sync"
	"time"

	"github.com/soundglass/waveview/pkg/logger"
)

// DefaultRenderTimeout is how long a frame may stay pending before the
// scheduler reports a soft failure.
const DefaultRenderTimeout = 750 * time.Millisecond

// Scheduler resolves frame specs into drawable images without ever
// blocking the draw loop. While the latest generation is pending it
// hands back the last good image; a pending frame older than the
// timeout is a soft failure, logged but still drawn from the last good
// image. Futures of superseded generations are simply never consulted
// again, which discards stale completions by construction.
type Scheduler struct {
	timeout time.Duration

	mu           sync.Mutex
	lastImg      *image.RGBA
	lastGen      uint64
	pendingGen   uint64
	pendingSince time.Time
	timedOut     bool
}

// NewScheduler creates a scheduler. A non-positive timeout selects
// DefaultRenderTimeout.
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &Scheduler{timeout: timeout}
}

// Frame returns the image to draw for spec. fresh reports whether the
// image belongs to the spec's own generation rather than a held-over
// previous frame. Non-content specs return nil and drop the held
// frame.
func (s *Scheduler) Frame(spec Spec) (img *image.RGBA, fresh bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.Mode != ModeContent {
		s.lastImg = nil
		s.lastGen = 0
		s.pendingGen = 0
		s.timedOut = false
		return nil, false
	}

	if spec.Generation == s.lastGen && s.lastImg != nil {
		return s.lastImg, true
	}

	if resolved, ok := spec.Frame.TryImage(); ok {
		if resolved != nil {
			s.lastImg = resolved
			s.lastGen = spec.Generation
			s.pendingGen = 0
			s.timedOut = false
			return resolved, true
		}
		// Resolved with an error; keep showing the previous frame.
		if !s.timedOut {
			logger.GetLogger().Warn("frame render failed", "error", spec.Frame.Err())
			s.timedOut = true
		}
		return s.lastImg, false
	}

	if spec.Generation != s.pendingGen {
		s.pendingGen = spec.Generation
		s.pendingSince = time.Now()
		s.timedOut = false
	} else if !s.timedOut && time.Since(s.pendingSince) > s.timeout {
		logger.GetLogger().Warn("frame render timed out",
			"generation", spec.Generation, "timeout", s.timeout)
		s.timedOut = true
	}
	return s.lastImg, false
}

// LastImage returns the most recent good frame, or nil.
func (s *Scheduler) LastImage() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastImg
}
