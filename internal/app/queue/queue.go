// Package queue provides the ordered track queue shared between the
// playback controller and command handlers.
package queue

import (
	"context"
	"math/rand"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrIndexOutOfRange = errors.New("index out of range")
)

// Queue is an ordered FIFO container of tracks. Mutators may be called from
// any goroutine; DequeueHead supports exactly one logical consumer (the
// playback controller) and blocks while the queue is empty.
type Queue struct {
	mu    sync.Mutex
	items []track.Track

	// Single-slot wakeup for the blocked consumer.
	wake chan struct{}
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{
		items: make([]track.Track, 0),
		wake:  make(chan struct{}, 1),
	}
}

// Enqueue appends a track to the tail and wakes a blocked consumer.
func (q *Queue) Enqueue(t track.Track) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()

	q.signal()
}

// DequeueHead removes and returns the head track, blocking while the queue
// is empty. Returns the context error if ctx is cancelled while waiting.
func (q *Queue) DequeueHead(ctx context.Context) (track.Track, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			head := q.items[0]
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()
			// Keep the wakeup live for the next iteration if more items remain.
			if remaining > 0 {
				q.signal()
			}
			return head, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return track.Track{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Size returns the number of queued tracks.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty returns true if nothing is queued.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Snapshot returns a defensive copy of the current contents, in play order.
func (q *Queue) Snapshot() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]track.Track, len(q.items))
	copy(out, q.items)
	return out
}

// RemoveAt removes the track at the given 1-based index and returns it.
// The queue is unchanged when the index is invalid.
func (q *Queue) RemoveAt(index int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 1 || index > len(q.items) {
		return track.Track{}, errors.Wrapf(ErrIndexOutOfRange, "remove %d of %d", index, len(q.items))
	}

	i := index - 1
	removed := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	return removed, nil
}

// MoveTo removes the track at src (1-based) and reinserts it at dst, where
// dst is interpreted against the queue as it stands before removal but
// applied to the shortened list, matching "insert at position N of the
// remaining tracks". The queue is unchanged when either index is invalid.
func (q *Queue) MoveTo(src, dst int) (track.Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	if src < 1 || src > n || dst < 1 || dst > n {
		return track.Track{}, errors.Wrapf(ErrIndexOutOfRange, "move %d to %d of %d", src, dst, n)
	}

	i := src - 1
	moved := q.items[i]
	rest := append(q.items[:i:i], q.items[i+1:]...)

	j := dst - 1
	if j > len(rest) {
		j = len(rest)
	}
	q.items = append(rest[:j:j], append([]track.Track{moved}, rest[j:]...)...)
	return moved, nil
}

// Shuffle permutes the queued tracks in place. Calling it on an empty queue
// is harmless here; callers reject that case as a usage error.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// Drain removes and returns all queued tracks.
func (q *Queue) Drain() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	drained := q.items
	q.items = make([]track.Track, 0)
	return drained
}

// signal performs a non-blocking send on the single-slot wakeup channel.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
