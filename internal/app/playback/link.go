package playback

import (
	"context"
	"time"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Outcome reports how the backend finished with a track.
type Outcome int

const (
	OutcomeFinished Outcome = iota // Track played to the end
	OutcomeErrored                 // Backend failed mid-track
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFinished:
		return "finished"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventFunc is invoked by a link when the current track ends or errors.
// It may be called from any goroutine.
type EventFunc func(spaceID string, outcome Outcome)

// Link is the capability interface to the external audio backend. The
// controller owns exactly one link and never assumes anything about its
// transport beyond this contract.
type Link interface {
	// Connect attaches the link to an audio channel in the space.
	Connect(ctx context.Context, channelRef string) error
	// Disconnect detaches the link and releases backend resources.
	Disconnect() error

	// Play starts playback of the given track from the beginning.
	Play(ctx context.Context, t track.Track) error
	// Stop aborts the current track. The backend must still deliver a
	// finish or error event for the aborted track.
	Stop() error
	// SetPause toggles pause without leaving the playing state.
	SetPause(paused bool) error
	// Seek jumps to the given offset in the current track.
	Seek(offset time.Duration) error
	// SetVolume applies a volume in [0,200].
	SetVolume(level int) error

	IsConnected() bool
	IsPlaying() bool
	// Position returns the elapsed time of the current track.
	Position() time.Duration

	// OnEvent registers the asynchronous end-of-track callback.
	// Must be called before the first Play.
	OnEvent(fn EventFunc)
}
