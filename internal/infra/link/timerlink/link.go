// Package timerlink provides a playback link that simulates a backend by
// scheduling the finish event on a wall-clock timer. It is the default
// backend for spaces without a real audio transport and the workhorse of
// the test suite.
package timerlink

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrNotConnected = errors.Mark(errors.New("link not connected"), playback.ErrNotConnected)
	ErrNotPlaying   = errors.New("no track loaded")
)

// Link simulates playback by counting down the track duration. Pause stops
// the countdown, seek rewrites it, stop aborts it; every aborted or
// completed track delivers exactly one event.
type Link struct {
	mu sync.Mutex

	spaceID    string
	channelRef string
	connected  bool
	playing    bool
	paused     bool
	volume     int

	current   track.Track
	remaining time.Duration // Time left when the timer was (re)armed
	armedAt   time.Time

	gen         int // Invalidates stale timers
	cancelTimer func()

	fn playback.EventFunc
}

// New creates a disconnected link for the space.
func New(spaceID string) *Link {
	return &Link{spaceID: spaceID}
}

// OnEvent registers the end-of-track callback.
func (l *Link) OnEvent(fn playback.EventFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fn = fn
}

// Connect attaches the link to a channel.
func (l *Link) Connect(ctx context.Context, channelRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	l.channelRef = channelRef
	return nil
}

// Disconnect detaches the link. No event is delivered for a track cut off
// by a disconnect.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopTimerLocked()
	l.connected = false
	l.playing = false
	l.paused = false
	return nil
}

// Play starts the countdown for the given track.
func (l *Link) Play(ctx context.Context, t track.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.connected {
		return ErrNotConnected
	}

	l.stopTimerLocked()
	l.current = t
	l.playing = true
	l.paused = false
	l.remaining = t.Duration
	l.armLocked(l.remaining)
	return nil
}

// Stop aborts the current track and delivers its finish event.
func (l *Link) Stop() error {
	l.mu.Lock()
	if !l.playing {
		l.mu.Unlock()
		return nil
	}
	l.stopTimerLocked()
	l.playing = false
	l.paused = false
	fn := l.fn
	space := l.spaceID
	l.mu.Unlock()

	if fn != nil {
		fn(space, playback.OutcomeFinished)
	}
	return nil
}

// SetPause suspends or resumes the countdown.
func (l *Link) SetPause(paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.playing {
		return ErrNotPlaying
	}
	if paused == l.paused {
		return nil
	}

	if paused {
		l.remaining -= time.Since(l.armedAt)
		if l.remaining < 0 {
			l.remaining = 0
		}
		l.stopTimerLocked()
	} else {
		l.armLocked(l.remaining)
	}
	l.paused = paused
	return nil
}

// Seek moves the countdown to the given offset in the current track.
func (l *Link) Seek(offset time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.playing {
		return ErrNotPlaying
	}
	if offset < 0 {
		offset = 0
	}

	l.remaining = l.current.Duration - offset
	if l.remaining < 0 {
		l.remaining = 0
	}
	if !l.paused {
		l.stopTimerLocked()
		l.armLocked(l.remaining)
	}
	return nil
}

// SetVolume records the requested volume.
func (l *Link) SetVolume(level int) error {
	if level < 0 || level > 200 {
		return errors.Newf("volume %d out of range [0,200]", level)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.volume = level
	return nil
}

// Volume returns the last applied volume.
func (l *Link) Volume() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.volume
}

// IsConnected reports whether Connect has been called.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// IsPlaying reports whether a countdown is live (paused counts as playing).
func (l *Link) IsPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Position returns the elapsed time of the current track.
func (l *Link) Position() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.playing {
		return 0
	}
	pos := l.current.Duration - l.remaining
	if !l.paused {
		pos += time.Since(l.armedAt)
	}
	if pos > l.current.Duration {
		pos = l.current.Duration
	}
	return pos
}

// armLocked schedules the finish event after d. Must hold the lock.
func (l *Link) armLocked(d time.Duration) {
	l.gen++
	g := l.gen
	l.armedAt = time.Now()
	timer := time.AfterFunc(d, func() { l.fire(g) })
	l.cancelTimer = func() { timer.Stop() }
}

// stopTimerLocked disarms any pending timer. Must hold the lock.
func (l *Link) stopTimerLocked() {
	l.gen++
	if l.cancelTimer != nil {
		l.cancelTimer()
		l.cancelTimer = nil
	}
}

// fire delivers the finish event if the timer generation is still live.
func (l *Link) fire(gen int) {
	l.mu.Lock()
	if gen != l.gen || !l.playing {
		l.mu.Unlock()
		return
	}
	l.playing = false
	l.paused = false
	fn := l.fn
	space := l.spaceID
	l.mu.Unlock()

	if fn != nil {
		fn(space, playback.OutcomeFinished)
	}
}

var _ playback.Link = (*Link)(nil)
