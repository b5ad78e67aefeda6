package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/soundglass/waveview/pkg/audio"
	"github.com/soundglass/waveview/pkg/logger"
)

// Session owns one loaded audio file and its playback lifecycle. All
// operations are serialized behind a single mutex; Snapshot is the only
// read path downstream components use.
type Session struct {
	engine   audio.Engine
	machine  *StateMachine
	monitor  *Monitor
	registry *ListenerRegistry

	mu           sync.Mutex
	handle       *audio.Handle
	playback     *audio.Playback
	meta         audio.Metadata
	pendingStart int64
	errMsg       string

	playheadFrame atomic.Int64
	sampleRate    atomic.Int64
}

// NewSession creates a session around engine. progressInterval controls
// the monitor poll rate; zero selects the default.
func NewSession(engine audio.Engine, progressInterval time.Duration) *Session {
	s := &Session{
		engine:       engine,
		machine:      NewStateMachine(),
		registry:     NewListenerRegistry(),
		pendingStart: -1,
	}
	s.monitor = NewMonitor(engine, s.registry, progressInterval)
	s.registry.Add(&sessionHook{s: s})
	return s
}

// AddListener registers l for session events.
func (s *Session) AddListener(l Listener) {
	s.registry.Add(l)
}

// RemoveListener unregisters l.
func (s *Session) RemoveListener(l Listener) {
	s.registry.Remove(l)
}

// Handle returns the engine handle of the loaded file, or nil. The
// handle identifies the file for sample reads; its lifetime ends at the
// next Load or CloseAudio.
func (s *Session) Handle() *audio.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// Metadata returns the metadata of the loaded file. The zero value
// means nothing is loaded.
func (s *Session) Metadata() audio.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Snapshot produces the current read-model. The returned value is a
// copy; it never changes after return.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	meta := s.meta
	errMsg := s.errMsg
	s.mu.Unlock()
	return Snapshot{
		State:         s.machine.Current(),
		TotalFrames:   meta.FrameCount,
		PlayheadFrame: s.playheadFrame.Load(),
		SampleRate:    meta.SampleRate,
		Err:           errMsg,
	}
}

// Load opens path and moves the session to Ready. On failure the session
// lands in Error and the file stays unloaded. Loading from Error retries
// after a previous failure.
func (s *Session) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Loading over an already loaded file first walks back to NoAudio so
	// every move stays inside the transition table.
	if state := s.machine.Current(); state == StatePlaying || state == StatePaused {
		s.stopPlaybackLocked()
		if err := s.transitionLocked(StateReady); err != nil {
			return err
		}
	}
	if s.machine.Current() == StateReady {
		s.closeHandleLocked()
		if err := s.transitionLocked(StateNoAudio); err != nil {
			return err
		}
	}
	// A playback failure leaves Error with the file still loaded, so the
	// retry path closes it too.
	s.closeHandleLocked()
	if err := s.transitionLocked(StateLoading); err != nil {
		return err
	}
	s.playheadFrame.Store(0)
	s.pendingStart = -1

	h, err := s.engine.Load(path)
	if err != nil {
		return s.failLocked(fmt.Errorf("load %s: %w", path, err))
	}
	meta, err := s.engine.Metadata(h)
	if err != nil {
		_ = s.engine.Close(h)
		return s.failLocked(fmt.Errorf("load %s: %w", path, err))
	}

	s.handle = h
	s.meta = meta
	s.sampleRate.Store(int64(meta.SampleRate))
	s.errMsg = ""
	if err := s.transitionLocked(StateReady); err != nil {
		return err
	}
	logger.GetLogger().Info("audio loaded",
		"path", h.Path(),
		"frames", meta.FrameCount,
		"sampleRate", meta.SampleRate)
	return nil
}

// Play starts playback from the pending seek target when one is set,
// otherwise from the beginning of the file.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.machine.Current(); state != StateReady {
		return &TransitionError{From: state, To: StatePlaying}
	}
	start := int64(0)
	if s.pendingStart >= 0 {
		start = s.pendingStart
	}
	return s.playRangeLocked(start, audio.UnboundedEndFrame)
}

// PlayRange plays [startFrame, endFrame). Playback completes when the
// hearing position reaches the end frame.
func (s *Session) PlayRange(startFrame, endFrame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.machine.Current(); state != StateReady {
		return &TransitionError{From: state, To: StatePlaying}
	}
	return s.playRangeLocked(startFrame, endFrame)
}

func (s *Session) playRangeLocked(startFrame, endFrame int64) error {
	if err := s.transitionLocked(StatePlaying); err != nil {
		return err
	}
	p, err := s.engine.PlayRange(s.handle, startFrame, endFrame)
	if err != nil {
		return s.failLocked(fmt.Errorf("play: %w", err))
	}
	s.playback = p
	s.pendingStart = -1
	s.playheadFrame.Store(startFrame)
	if err := s.monitor.StartMonitoring(p, s.meta.FrameCount, s.meta.SampleRate); err != nil {
		logger.GetLogger().Warn("progress monitoring unavailable", "error", err)
	}
	return nil
}

// Pause suspends playback. The monitor keeps polling but skips position
// updates until Resume.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.machine.Current(); state != StatePlaying {
		return &TransitionError{From: state, To: StatePaused}
	}
	if err := s.engine.Pause(s.playback); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	return s.transitionLocked(StatePaused)
}

// Resume continues paused playback.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.machine.Current(); state != StatePaused {
		return &TransitionError{From: state, To: StatePlaying}
	}
	if err := s.engine.Resume(s.playback); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	return s.transitionLocked(StatePlaying)
}

// Stop ends playback and returns to Ready. The playhead keeps its last
// position.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state := s.machine.Current(); state != StatePlaying && state != StatePaused {
		return &TransitionError{From: state, To: StateReady}
	}
	s.stopPlaybackLocked()
	return s.transitionLocked(StateReady)
}

// SeekTo moves the playhead to frame, clamped to the file. During playback
// the engine position moves immediately and the monitor re-baselines.
// When stopped the target is remembered and the next Play starts there.
func (s *Session) SeekTo(frame int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.machine.IsAudioLoaded() {
		return audio.ErrInvalidHandle
	}
	if frame < 0 {
		frame = 0
	}
	if max := s.meta.FrameCount - 1; frame > max {
		frame = max
	}

	if s.playback != nil && s.playback.IsActive() {
		if err := s.engine.Seek(s.playback, frame); err != nil {
			return fmt.Errorf("seek: %w", err)
		}
		s.monitor.OnSeek(s.playback, frame)
	} else {
		s.pendingStart = frame
	}
	s.playheadFrame.Store(frame)
	return nil
}

// SeekBy moves the playhead by delta relative to its current position.
func (s *Session) SeekBy(delta time.Duration) error {
	s.mu.Lock()
	rate := s.meta.SampleRate
	s.mu.Unlock()
	if rate <= 0 {
		return audio.ErrInvalidHandle
	}
	shift := int64(delta.Seconds() * float64(rate))
	return s.SeekTo(s.playheadFrame.Load() + shift)
}

// CloseAudio unloads the current file and returns to NoAudio. From Error
// it discards the failed session.
func (s *Session) CloseAudio() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.Current()
	if state == StatePlaying || state == StatePaused {
		s.stopPlaybackLocked()
		if err := s.transitionLocked(StateReady); err != nil {
			return err
		}
	}
	if err := s.transitionLocked(StateNoAudio); err != nil {
		return err
	}
	if s.handle != nil {
		if err := s.engine.Close(s.handle); err != nil {
			logger.GetLogger().Warn("closing audio failed", "error", err)
		}
	}
	s.handle = nil
	s.playback = nil
	s.meta = audio.Metadata{}
	s.errMsg = ""
	s.pendingStart = -1
	s.playheadFrame.Store(0)
	return nil
}

// Shutdown stops monitoring and releases the engine resources held by
// this session.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopPlaybackLocked()
	if s.handle != nil {
		_ = s.engine.Close(s.handle)
		s.handle = nil
	}
}

// stopPlaybackLocked stops the engine playback and the monitor loop.
// Callers hold s.mu; the monitor loop never takes s.mu, so waiting for
// it here cannot deadlock.
func (s *Session) closeHandleLocked() {
	if s.handle == nil {
		return
	}
	if err := s.engine.Close(s.handle); err != nil {
		logger.GetLogger().Warn("closing previous audio failed", "error", err)
	}
	s.handle = nil
	s.meta = audio.Metadata{}
}

func (s *Session) stopPlaybackLocked() {
	if s.playback == nil {
		return
	}
	s.monitor.StopMonitoring()
	if err := s.engine.Stop(s.playback); err != nil {
		logger.GetLogger().Warn("stopping playback failed", "error", err)
	}
	s.playback = nil
}

func (s *Session) transitionLocked(next State) error {
	prev, err := s.machine.Transition(next)
	if err != nil {
		return err
	}
	s.registry.NotifyStateChanged(prev, next)
	return nil
}

// failLocked records err, moves to Error and returns err.
func (s *Session) failLocked(err error) error {
	s.errMsg = err.Error()
	if terr := s.transitionLocked(StateError); terr != nil {
		logger.GetLogger().Error("error transition rejected", "error", terr)
	}
	logger.GetLogger().Error("session error", "error", err)
	return err
}

// sessionHook feeds monitor events back into the session: progress moves
// the playhead, completion lands the session in Ready.
type sessionHook struct {
	s *Session
}

func (h *sessionHook) OnProgress(hearingSeconds, totalSeconds float64) {
	rate := h.s.sampleRate.Load()
	if rate <= 0 {
		return
	}
	h.s.playheadFrame.Store(int64(hearingSeconds * float64(rate)))
}

func (h *sessionHook) OnStateChanged(oldState, newState State) {}

// OnPlaybackComplete runs on the monitor goroutine. The session mutex is
// taken on a fresh goroutine so a concurrent Stop waiting for the
// monitor loop cannot deadlock against it.
func (h *sessionHook) OnPlaybackComplete() {
	s := h.s
	go func() {
		s.mu.Lock()
		if s.playback != nil {
			if err := s.engine.Stop(s.playback); err != nil {
				logger.GetLogger().Warn("stopping completed playback failed", "error", err)
			}
			s.playback = nil
		}
		s.mu.Unlock()

		// The monitor loop already exited; only the state needs to move.
		if s.machine.CompareAndSetState(StatePlaying, StateReady) {
			s.registry.NotifyStateChanged(StatePlaying, StateReady)
		} else if s.machine.CompareAndSetState(StatePaused, StateReady) {
			s.registry.NotifyStateChanged(StatePaused, StateReady)
		}
	}()
}
