package playback

import "context"

// Signal is a single-slot wakeable condition: set by the link callback when
// a track ends, waited on by the controller loop, cleared at the start of
// every loop iteration. Multiple sets before a wait collapse into one wakeup.
type Signal struct {
	ch chan struct{}
}

// NewSignal creates an unset signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Set marks the signal. Non-blocking; redundant sets are absorbed.
func (s *Signal) Set() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Clear discards a pending set, if any.
func (s *Signal) Clear() {
	select {
	case <-s.ch:
	default:
	}
}

// Wait blocks until the signal is set or ctx is cancelled.
func (s *Signal) Wait(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
