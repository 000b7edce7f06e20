// Package playback provides the per-space playback controller and its
// link contract to the audio backend.
package playback

// State represents the controller state.
type State int

const (
	StateIdle    State = iota // No current track, waiting on the queue
	StatePlaying              // Track handed to the link, awaiting the finish signal
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}
