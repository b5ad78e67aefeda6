package session

import (
	"errors"
	"testing"
	"time"

	"github.com/soundglass/waveview/pkg/audio"
	"github.com/soundglass/waveview/pkg/audio/enginetest"
)

func newTestSession(t *testing.T) (*Session, *enginetest.Engine) {
	t.Helper()
	eng := enginetest.NewSine(44100, 10, 440)
	s := NewSession(eng, time.Millisecond)
	t.Cleanup(s.Shutdown)
	return s, eng
}

func TestSessionLifecycle(t *testing.T) {
	s, _ := newTestSession(t)

	if got := s.Snapshot().State; got != StateNoAudio {
		t.Fatalf("initial state = %s, want NoAudio", got)
	}
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateReady {
		t.Fatalf("state after load = %s, want Ready", snap.State)
	}
	if snap.TotalFrames != 441000 || snap.SampleRate != 44100 {
		t.Errorf("metadata = %d frames @ %d Hz", snap.TotalFrames, snap.SampleRate)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if got := s.Snapshot().State; got != StatePlaying {
		t.Fatalf("state after play = %s, want Playing", got)
	}

	if err := s.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := s.Snapshot().State; got != StatePaused {
		t.Fatalf("state after pause = %s, want Paused", got)
	}

	if err := s.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if got := s.Snapshot().State; got != StatePlaying {
		t.Fatalf("state after resume = %s, want Playing", got)
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := s.Snapshot().State; got != StateReady {
		t.Fatalf("state after stop = %s, want Ready", got)
	}

	if err := s.CloseAudio(); err != nil {
		t.Fatalf("CloseAudio: %v", err)
	}
	snap = s.Snapshot()
	if snap.State != StateNoAudio || snap.TotalFrames != 0 {
		t.Errorf("state after close = %s, frames %d", snap.State, snap.TotalFrames)
	}
}

func TestSessionRejectsInvalidOperations(t *testing.T) {
	s, _ := newTestSession(t)

	var terr *TransitionError
	if err := s.Play(); !errors.As(err, &terr) {
		t.Errorf("Play in NoAudio: %v", err)
	}
	if err := s.Pause(); !errors.As(err, &terr) {
		t.Errorf("Pause in NoAudio: %v", err)
	}
	if err := s.Stop(); !errors.As(err, &terr) {
		t.Errorf("Stop in NoAudio: %v", err)
	}
	if err := s.SeekTo(100); !errors.Is(err, audio.ErrInvalidHandle) {
		t.Errorf("Seek in NoAudio: %v", err)
	}

	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Pause(); !errors.As(err, &terr) {
		t.Errorf("Pause in Ready: %v", err)
	}
	if err := s.Resume(); !errors.As(err, &terr) {
		t.Errorf("Resume in Ready: %v", err)
	}
}

func TestSessionLoadFailureThenRetry(t *testing.T) {
	s, eng := newTestSession(t)

	eng.LoadErr = audio.ErrNotFound
	if err := s.Load("missing.wav"); !errors.Is(err, audio.ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
	snap := s.Snapshot()
	if snap.State != StateError {
		t.Fatalf("state after failed load = %s, want Error", snap.State)
	}
	if snap.Err == "" {
		t.Error("snapshot carries no error message")
	}

	// Error -> Loading retries directly.
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("retry Load: %v", err)
	}
	snap = s.Snapshot()
	if snap.State != StateReady || snap.Err != "" {
		t.Errorf("after retry: state=%s err=%q", snap.State, snap.Err)
	}
}

func TestSessionPendingSeek(t *testing.T) {
	s, eng := newTestSession(t)
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.SeekTo(22050); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := s.Snapshot().PlayheadFrame; got != 22050 {
		t.Errorf("playhead after stopped seek = %d, want 22050", got)
	}

	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	p := eng.CurrentPlayback()
	if p == nil || p.StartFrame() != 22050 {
		t.Fatalf("playback start = %v, want 22050", p)
	}

	// The pending target is consumed; the next play starts from zero.
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("second Play: %v", err)
	}
	if p := eng.CurrentPlayback(); p == nil || p.StartFrame() != 0 {
		t.Fatalf("second playback start = %v, want 0", p)
	}
}

func TestSessionSeekClamps(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := s.SeekTo(-500); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := s.Snapshot().PlayheadFrame; got != 0 {
		t.Errorf("negative seek landed at %d, want 0", got)
	}
	if err := s.SeekTo(1 << 40); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got := s.Snapshot().PlayheadFrame; got != 440999 {
		t.Errorf("overlong seek landed at %d, want 440999", got)
	}
}

func TestSessionSeekByDuration(t *testing.T) {
	s, _ := newTestSession(t)
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.SeekTo(44100); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if err := s.SeekBy(500 * time.Millisecond); err != nil {
		t.Fatalf("SeekBy: %v", err)
	}
	if got := s.Snapshot().PlayheadFrame; got != 66150 {
		t.Errorf("playhead = %d, want 66150", got)
	}
	if err := s.SeekBy(-2 * time.Second); err != nil {
		t.Fatalf("SeekBy back: %v", err)
	}
	if got := s.Snapshot().PlayheadFrame; got != 0 {
		t.Errorf("playhead = %d, want clamped to 0", got)
	}
}

func TestSessionPlayheadFollowsProgress(t *testing.T) {
	s, eng := newTestSession(t)
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}

	eng.AdvanceSeconds(2.0)
	waitFor(t, func() bool {
		return s.Snapshot().PlayheadFrame > 85000
	}, "playhead to follow the clock")

	got := s.Snapshot().PlayheadFrame
	if got < 85000 || got > 91000 {
		t.Errorf("playhead = %d, want near 88200", got)
	}
}

func TestSessionRangeCompletionReturnsReady(t *testing.T) {
	s, eng := newTestSession(t)
	rec := &recorder{}
	s.AddListener(rec)
	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.PlayRange(0, 44100); err != nil {
		t.Fatalf("PlayRange: %v", err)
	}

	eng.AdvanceSeconds(1.5)
	waitFor(t, func() bool {
		return s.Snapshot().State == StateReady
	}, "session to return to Ready")
	waitFor(t, rec.isCompleted, "completion event")

	rec.mu.Lock()
	var sawPlayingToReady bool
	for _, tr := range rec.transitions {
		if tr[0] == StatePlaying && tr[1] == StateReady {
			sawPlayingToReady = true
		}
	}
	rec.mu.Unlock()
	if !sawPlayingToReady {
		t.Error("no Playing -> Ready transition was announced")
	}
}

func TestSessionReloadReplacesAudio(t *testing.T) {
	s, _ := newTestSession(t)
	rec := &recorder{}
	s.AddListener(rec)

	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := s.Load("other.wav"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := s.Snapshot().State; got != StateReady {
		t.Fatalf("state after reload = %s, want Ready", got)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var sawLoading bool
	for _, tr := range rec.transitions {
		if tr[1] == StateLoading {
			sawLoading = true
		}
	}
	if !sawLoading {
		t.Error("reload never announced a Loading transition")
	}
}

func TestSessionReloadAfterPlayFailureClosesHandle(t *testing.T) {
	s, eng := newTestSession(t)

	if err := s.Load("tone.wav"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	eng.PlayErr = audio.ErrInvalidHandle
	if err := s.Play(); err == nil {
		t.Fatal("Play succeeded despite engine failure")
	}
	if got := s.Snapshot().State; got != StateError {
		t.Fatalf("state after play failure = %s, want Error", got)
	}

	// Retrying the load must release the file left over from the failed
	// playback before opening the new one.
	if err := s.Load("other.wav"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := eng.CloseCount(); got != 1 {
		t.Errorf("closed handles = %d, want the stale one closed", got)
	}
	if got := s.Snapshot().State; got != StateReady {
		t.Errorf("state after reload = %s, want Ready", got)
	}
}
