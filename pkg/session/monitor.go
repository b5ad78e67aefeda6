package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/soundglass/waveview/pkg/audio"
	"github.com/soundglass/waveview/pkg/logger"
)

// DefaultProgressInterval is how often the monitor polls the engine
// clock.
const DefaultProgressInterval = 15 * time.Millisecond

// Monitor polls the engine clock on a fixed interval and translates it
// into hearing time. The engine clock is the single source of truth for
// position; wall-clock time is never used.
//
// Hearing time is derived as
//
//	offsetSeconds + max(0, clock-clockStart)/mixRate
//
// where clockStart is the clock value captured when monitoring (or the
// latest seek) began and offsetSeconds is the start frame converted to
// seconds. The result is clamped to [offsetSeconds, endSeconds].
type Monitor struct {
	engine   audio.Engine
	registry *ListenerRegistry
	interval time.Duration

	mu            sync.Mutex
	playback      *audio.Playback
	clockStart    int64
	offsetSeconds float64
	endSeconds    float64
	totalSeconds  float64
	sampleRate    int
	lastHearing   float64
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// NewMonitor creates a monitor polling every interval. A non-positive
// interval selects DefaultProgressInterval.
func NewMonitor(engine audio.Engine, registry *ListenerRegistry, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultProgressInterval
	}
	return &Monitor{
		engine:   engine,
		registry: registry,
		interval: interval,
	}
}

// StartMonitoring begins polling for p. Any previous monitoring loop is
// stopped first. totalFrames and sampleRate describe the loaded file,
// not the played range.
func (m *Monitor) StartMonitoring(p *audio.Playback, totalFrames int64, sampleRate int) error {
	if p == nil {
		return fmt.Errorf("start monitoring: nil playback")
	}
	if sampleRate <= 0 {
		return fmt.Errorf("start monitoring: invalid sample rate %d", sampleRate)
	}
	m.StopMonitoring()

	clockStart, err := m.engine.Clock(p)
	if err != nil {
		return fmt.Errorf("start monitoring: %w", err)
	}

	m.mu.Lock()
	m.playback = p
	m.clockStart = clockStart
	m.sampleRate = sampleRate
	m.offsetSeconds = float64(p.StartFrame()) / float64(sampleRate)
	m.totalSeconds = float64(totalFrames) / float64(sampleRate)
	m.endSeconds = m.totalSeconds
	if end := p.EndFrame(); end != audio.UnboundedEndFrame {
		if s := float64(end) / float64(sampleRate); s < m.endSeconds {
			m.endSeconds = s
		}
	}
	m.lastHearing = m.offsetSeconds
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	stopCh, doneCh := m.stopCh, m.doneCh
	m.mu.Unlock()

	go m.loop(stopCh, doneCh)
	return nil
}

// StopMonitoring stops the polling loop and waits for it to exit. Safe
// to call when nothing is being monitored. Must not be called from a
// listener callback.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	stopCh, doneCh := m.stopCh, m.doneCh
	m.stopCh = nil
	m.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-doneCh
	m.mu.Lock()
	m.playback = nil
	m.doneCh = nil
	m.mu.Unlock()
}

// OnSeek re-baselines the monitor after the engine position moved. The
// polling loop keeps running; only the clock baseline and the offset
// change.
func (m *Monitor) OnSeek(p *audio.Playback, frame int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playback == nil || p == nil || m.playback.ID() != p.ID() {
		return
	}
	clock, err := m.engine.Clock(p)
	if err != nil {
		logger.GetLogger().Warn("monitor seek rebaseline failed", "error", err)
		return
	}
	offset := float64(frame) / float64(m.sampleRate)
	if offset < 0 {
		offset = 0
	}
	if offset > m.endSeconds {
		offset = m.endSeconds
	}
	m.clockStart = clock
	m.offsetSeconds = offset
	m.lastHearing = offset
}

func (m *Monitor) loop(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if done := m.tick(); done {
				return
			}
		}
	}
}

// tick performs one poll. It reports true when playback completed and
// the loop should exit.
func (m *Monitor) tick() bool {
	m.mu.Lock()
	p := m.playback
	clockStart := m.clockStart
	offset := m.offsetSeconds
	end := m.endSeconds
	total := m.totalSeconds
	m.mu.Unlock()

	if p == nil {
		return true
	}
	if !p.IsActive() {
		return m.complete(p)
	}

	paused, err := m.engine.IsPaused(p)
	if err != nil {
		return m.complete(p)
	}
	if paused {
		// Position is frozen while paused; skip the update entirely so
		// stale clock reads cannot move the playhead.
		return false
	}

	clock, err := m.engine.Clock(p)
	if err != nil {
		logger.GetLogger().Warn("monitor clock read failed", "error", err)
		return m.complete(p)
	}

	elapsed := float64(clock-clockStart) / float64(m.engine.MixRate())
	if elapsed < 0 {
		elapsed = 0
	}
	hearing := offset + elapsed
	if hearing >= end {
		m.mu.Lock()
		m.lastHearing = end
		m.mu.Unlock()
		return m.complete(p)
	}

	m.mu.Lock()
	m.lastHearing = hearing
	m.mu.Unlock()
	m.registry.NotifyProgress(hearing, total)
	return false
}

// complete fires the terminal progress event followed by the completion
// event, then tells the loop to exit.
func (m *Monitor) complete(p *audio.Playback) bool {
	m.mu.Lock()
	if m.playback == nil || m.playback.ID() != p.ID() {
		m.mu.Unlock()
		return true
	}
	hearing := m.lastHearing
	total := m.totalSeconds
	m.playback = nil
	m.stopCh = nil
	m.mu.Unlock()

	p.Deactivate()
	m.registry.NotifyProgress(hearing, total)
	m.registry.NotifyComplete()
	return true
}
