// Package session tracks the lifecycle of one audio session: the playback
// state machine, the immutable snapshot read-model, and the progress
// monitor that derives hearing time from the engine's hardware clock.
package session

// State is the lifecycle state of an audio session.
type State int

const (
	// StateNoAudio means no file is loaded.
	StateNoAudio State = iota
	// StateLoading means the engine is opening a file.
	StateLoading
	// StateReady means a file is loaded and playback is stopped.
	StateReady
	// StatePlaying means playback is running.
	StatePlaying
	// StatePaused means playback is suspended and can resume.
	StatePaused
	// StateError means loading or playback failed; recover via retry or
	// reset.
	StateError
)

func (s State) String() string {
	switch s {
	case StateNoAudio:
		return "NoAudio"
	case StateLoading:
		return "Loading"
	case StateReady:
		return "Ready"
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Snapshot is the immutable read-model of a session, produced on demand
// and never mutated. Downstream components (projector, render composer)
// consume snapshots only.
type Snapshot struct {
	State         State
	TotalFrames   int64
	PlayheadFrame int64
	SampleRate    int
	Err           string
}

// IsAudioLoaded reports whether the snapshot was taken with audio loaded.
func (s Snapshot) IsAudioLoaded() bool {
	return s.State == StateReady || s.State == StatePlaying || s.State == StatePaused
}
