package session

import (
	"sync"

	"github.com/soundglass/waveview/pkg/logger"
)

// Listener receives session events. Callbacks run on the goroutine that
// produced the event; progress callbacks arrive on the monitor goroutine
// every poll interval, so they must return quickly and must not call
// session operations synchronously.
type Listener interface {
	// OnProgress reports the current hearing position and the file
	// duration, both in seconds.
	OnProgress(hearingSeconds, totalSeconds float64)
	// OnStateChanged reports a completed state transition.
	OnStateChanged(oldState, newState State)
	// OnPlaybackComplete fires once when playback reaches its end frame
	// or the engine reports the playback gone.
	OnPlaybackComplete()
}

// ListenerRegistry fans session events out to registered listeners. A
// panicking listener is logged and skipped; it never takes down the
// monitor goroutine or blocks delivery to the other listeners.
type ListenerRegistry struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewListenerRegistry() *ListenerRegistry {
	return &ListenerRegistry{}
}

// Add registers l. Registering the same listener twice delivers events
// twice.
func (r *ListenerRegistry) Add(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, l)
}

// Remove unregisters the first registration of l.
func (r *ListenerRegistry) Remove(l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, registered := range r.listeners {
		if registered == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

func (r *ListenerRegistry) snapshot() []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listener, len(r.listeners))
	copy(out, r.listeners)
	return out
}

// NotifyProgress delivers a progress event to all listeners.
func (r *ListenerRegistry) NotifyProgress(hearingSeconds, totalSeconds float64) {
	for _, l := range r.snapshot() {
		notify(func() { l.OnProgress(hearingSeconds, totalSeconds) })
	}
}

// NotifyStateChanged delivers a state transition to all listeners.
func (r *ListenerRegistry) NotifyStateChanged(oldState, newState State) {
	for _, l := range r.snapshot() {
		notify(func() { l.OnStateChanged(oldState, newState) })
	}
}

// NotifyComplete delivers a playback completion event to all listeners.
func (r *ListenerRegistry) NotifyComplete() {
	for _, l := range r.snapshot() {
		notify(func() { l.OnPlaybackComplete() })
	}
}

func notify(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.GetLogger().Warn("session listener panicked", "panic", rec)
		}
	}()
	fn()
}
