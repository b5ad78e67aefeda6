package session

import (
	"fmt"
	"sync"
)

// TransitionError reports a state transition that the machine does not
// allow.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// allowed holds the legal transition pairs. Every pair not listed here is
// rejected, including self transitions.
var allowed = map[State][]State{
	StateNoAudio: {StateLoading},
	StateLoading: {StateReady, StateError},
	StateReady:   {StatePlaying, StateNoAudio},
	StatePlaying: {StatePaused, StateReady, StateError},
	StatePaused:  {StatePlaying, StateReady},
	StateError:   {StateNoAudio, StateLoading},
}

func canTransition(from, to State) bool {
	for _, next := range allowed[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StateMachine guards the session state behind a single mutex. All
// transitions are validated against the transition table.
type StateMachine struct {
	mu    sync.Mutex
	state State
}

// NewStateMachine returns a machine in StateNoAudio.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateNoAudio}
}

// Current returns the current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CompareAndSetState moves to next only when the current state equals
// expected and the transition is legal. It reports whether the move
// happened.
func (m *StateMachine) CompareAndSetState(expected, next State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != expected || !canTransition(expected, next) {
		return false
	}
	m.state = next
	return true
}

// Transition moves to next from whatever the current state is, failing
// with a TransitionError when the table forbids it. It returns the state
// the machine was in before the move.
func (m *StateMachine) Transition(next State) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	if !canTransition(prev, next) {
		return prev, &TransitionError{From: prev, To: next}
	}
	m.state = next
	return prev, nil
}

// IsAudioLoaded reports whether a file is loaded (Ready, Playing or
// Paused).
func (m *StateMachine) IsAudioLoaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateReady || m.state == StatePlaying || m.state == StatePaused
}

// IsPlaybackActive reports whether playback is running or suspended.
func (m *StateMachine) IsPlaybackActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StatePlaying || m.state == StatePaused
}

// ExecuteInState runs fn under the state lock only when the current state
// equals expected. fn must not call back into the machine.
func (m *StateMachine) ExecuteInState(expected State, fn func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != expected {
		return &TransitionError{From: m.state, To: expected}
	}
	return fn()
}
