package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/queue"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrNoTrack      = errors.New("no track playing")
	ErrNotPlaying   = errors.New("not playing")
	ErrNotPaused    = errors.New("not paused")
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrNotConnected = errors.New("not connected")
)

// DefaultVolume is applied to a freshly created controller.
const DefaultVolume = 50

// defaultStatusFormat renders the loop's now-playing line. The single
// argument is the track label.
const defaultStatusFormat = "Now playing: %s"

// StatusSink receives textual status updates emitted by the controller loop.
type StatusSink interface {
	SendStatus(spaceID string, text string)
}

// Controller is the per-space playback state machine. It owns one queue and
// one link and runs a single perpetual loop goroutine that serializes
// "take next track, play, wait for the finish signal, repeat".
type Controller struct {
	mu sync.Mutex

	spaceID string
	queue   *queue.Queue
	link    Link
	sink    StatusSink

	current    *track.Track
	state      State
	paused     bool
	singleLoop bool
	queueLoop  bool
	volume     int

	statusFormat string

	// Surface hooks, set by the owner once a control surface exists.
	refreshSurface  func()
	teardownSurface func()

	finish *Signal

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a controller for the space and starts its loop.
// The sink may be nil.
func NewController(spaceID string, link Link, sink StatusSink) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		spaceID: spaceID,
		queue:   queue.New(),
		link:    link,
		sink:    sink,
		state:   StateIdle,
		volume:  DefaultVolume,
		finish:  NewSignal(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	link.OnEvent(c.onLinkEvent)
	go c.run()
	return c
}

// onLinkEvent bridges the backend callback into the finish signal. A track
// error is absorbed as a completion so the loop keeps serving the space.
func (c *Controller) onLinkEvent(spaceID string, outcome Outcome) {
	if outcome == OutcomeErrored {
		zlog.Warn().Msgf("playback: track errored, advancing queue: space=%s", spaceID)
	}
	c.finish.Set()
}

// run is the controller loop. One goroutine per space, started at creation,
// never restarted: every failure path advances or blocks, none returns
// except on shutdown.
func (c *Controller) run() {
	defer close(c.done)

	if err := c.link.SetVolume(c.Volume()); err != nil {
		zlog.Debug().Msgf("playback: initial volume: space=%s err=%v", c.spaceID, err)
	}

	for {
		c.finish.Clear()

		cur, ok := c.Current()
		if !c.SingleLoop() || !ok {
			next, err := c.queue.DequeueHead(c.ctx)
			if err != nil {
				return
			}
			cur = next
		}
		c.startTrack(cur)

		if err := c.link.Play(c.ctx, cur); err != nil {
			// Not connected or backend refused the track; skip it.
			zlog.Warn().Msgf("playback: play failed: space=%s track=%s err=%v", c.spaceID, cur.ID, err)
			c.finish.Set()
		} else {
			if c.sink != nil {
				c.sink.SendStatus(c.spaceID, c.statusLine(cur))
			}
			c.notifySurface()
		}

		if err := c.finish.Wait(c.ctx); err != nil {
			return
		}
		c.endTrack()
	}
}

// startTrack records the new current track under the lock.
func (c *Controller) startTrack(t track.Track) {
	c.mu.Lock()
	c.current = &t
	c.state = StatePlaying
	c.paused = false
	c.mu.Unlock()
}

// endTrack runs after the finish signal: the queue-loop re-enqueue uses the
// flag value at wake time and always re-appends the track that just played.
func (c *Controller) endTrack() {
	c.mu.Lock()
	ended := c.current
	requeue := c.queueLoop && ended != nil
	c.state = StateIdle
	c.mu.Unlock()

	if requeue {
		c.queue.Enqueue(*ended)
	}
}

// SetStatusFormat replaces the template for the loop's now-playing line.
// The template receives the track label as its single argument.
func (c *Controller) SetStatusFormat(format string) {
	c.mu.Lock()
	c.statusFormat = format
	c.mu.Unlock()
}

func (c *Controller) statusLine(t track.Track) string {
	c.mu.Lock()
	format := c.statusFormat
	c.mu.Unlock()
	if format == "" {
		format = defaultStatusFormat
	}
	return fmt.Sprintf(format, "`"+t.String()+"`")
}

// Queue returns the controller's queue for direct mutation by commands.
func (c *Controller) Queue() *queue.Queue {
	return c.queue
}

// Current returns the track presently handed to the link.
func (c *Controller) Current() (track.Track, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return track.Track{}, false
	}
	return *c.current, true
}

// State returns the controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SingleLoop reports whether single-track looping is on.
func (c *Controller) SingleLoop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.singleLoop
}

// QueueLoop reports whether queue looping is on.
func (c *Controller) QueueLoop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queueLoop
}

// Paused reports whether the link is pause-toggled.
func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Volume returns the current volume.
func (c *Controller) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// Connect attaches the link to an audio channel.
func (c *Controller) Connect(ctx context.Context, channelRef string) error {
	return c.link.Connect(ctx, channelRef)
}

// IsConnected reports whether the link is attached.
func (c *Controller) IsConnected() bool {
	return c.link.IsConnected()
}

// Position returns the elapsed time of the current track.
func (c *Controller) Position() time.Duration {
	return c.link.Position()
}

// TogglePause flips the link-level pause toggle and returns the new value.
func (c *Controller) TogglePause() (bool, error) {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return false, ErrNotPlaying
	}
	c.paused = !c.paused
	paused := c.paused
	c.mu.Unlock()

	if err := c.link.SetPause(paused); err != nil {
		return paused, errors.Wrap(err, "set pause")
	}
	c.notifySurface()
	return paused, nil
}

// Resume clears the pause toggle. Fails if the link is not paused.
func (c *Controller) Resume() error {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	if !c.paused {
		c.mu.Unlock()
		return ErrNotPaused
	}
	c.paused = false
	c.mu.Unlock()

	if err := c.link.SetPause(false); err != nil {
		return errors.Wrap(err, "set pause")
	}
	c.notifySurface()
	return nil
}

// Skip aborts the current track; the link's finish event advances the loop.
// With single loop enabled the same track plays again.
func (c *Controller) Skip() error {
	if _, ok := c.Current(); !ok || c.State() != StatePlaying {
		return ErrNoTrack
	}
	return c.link.Stop()
}

// Stop halts playback: both loop flags off, queue drained, current track
// cleared and the surface torn down. Volume is retained.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if c.state != StatePlaying {
		c.mu.Unlock()
		return ErrNotPlaying
	}
	c.singleLoop = false
	c.queueLoop = false
	c.current = nil
	teardown := c.teardownSurface
	c.mu.Unlock()

	c.queue.Drain()
	if err := c.link.Stop(); err != nil {
		zlog.Debug().Msgf("playback: stop: space=%s err=%v", c.spaceID, err)
	}
	if teardown != nil {
		teardown()
	}
	return nil
}

// ToggleSingleLoop flips single-track looping and returns the new value.
// Enabling it with no current track is rejected.
func (c *Controller) ToggleSingleLoop() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.singleLoop && c.current == nil {
		return false, ErrNoTrack
	}
	c.singleLoop = !c.singleLoop
	return c.singleLoop, nil
}

// ToggleQueueLoop flips queue looping and returns the new value. Enabling
// it while single loop is active disables single loop.
func (c *Controller) ToggleQueueLoop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queueLoop = !c.queueLoop
	if c.queueLoop && c.singleLoop {
		c.singleLoop = false
	}
	return c.queueLoop
}

// SetVolume clamps the level to [0,200], applies it to the link immediately
// and returns the applied value.
func (c *Controller) SetVolume(level int) (int, error) {
	if level < 0 {
		level = 0
	}
	if level > 200 {
		level = 200
	}

	c.mu.Lock()
	c.volume = level
	c.mu.Unlock()

	if err := c.link.SetVolume(level); err != nil {
		return level, errors.Wrap(err, "set volume")
	}
	c.notifySurface()
	return level, nil
}

// Seek jumps to the given offset in the current track.
func (c *Controller) Seek(offset time.Duration) error {
	if c.State() != StatePlaying {
		return ErrNoTrack
	}
	return c.link.Seek(offset)
}

// Shuffle permutes the queue. Rejected on an empty queue.
func (c *Controller) Shuffle() error {
	if c.queue.IsEmpty() {
		return ErrQueueEmpty
	}
	c.queue.Shuffle()
	c.notifySurface()
	return nil
}

// SetSurfaceHooks registers the control surface callbacks. Both may be nil
// to detach a torn-down surface.
func (c *Controller) SetSurfaceHooks(refresh, teardown func()) {
	c.mu.Lock()
	c.refreshSurface = refresh
	c.teardownSurface = teardown
	c.mu.Unlock()
}

func (c *Controller) notifySurface() {
	c.mu.Lock()
	refresh := c.refreshSurface
	c.mu.Unlock()
	if refresh != nil {
		refresh()
	}
}

// Status is a point-in-time view of the controller for rendering.
type Status struct {
	SpaceID    string
	State      State
	Paused     bool
	SingleLoop bool
	QueueLoop  bool
	Volume     int
	Current    *track.Track
	Position   time.Duration
	QueueSize  int
	NextUp     *track.Track
}

// GetStatus builds a status snapshot.
func (c *Controller) GetStatus() Status {
	c.mu.Lock()
	st := Status{
		SpaceID:    c.spaceID,
		State:      c.state,
		Paused:     c.paused,
		SingleLoop: c.singleLoop,
		QueueLoop:  c.queueLoop,
		Volume:     c.volume,
	}
	if c.current != nil {
		cur := *c.current
		st.Current = &cur
	}
	c.mu.Unlock()

	st.Position = c.link.Position()
	snap := c.queue.Snapshot()
	st.QueueSize = len(snap)
	if len(snap) > 0 {
		st.NextUp = &snap[0]
	}
	return st
}

// Shutdown terminates the loop and releases the link. The registry removes
// the controller entry before calling this, so no new operations reach it.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	teardown := c.teardownSurface
	c.teardownSurface = nil
	c.refreshSurface = nil
	c.mu.Unlock()

	if teardown != nil {
		teardown()
	}

	c.cancel()
	if err := c.link.Stop(); err != nil {
		zlog.Debug().Msgf("playback: shutdown stop: space=%s err=%v", c.spaceID, err)
	}
	c.queue.Drain()
	if err := c.link.Disconnect(); err != nil {
		zlog.Debug().Msgf("playback: shutdown disconnect: space=%s err=%v", c.spaceID, err)
	}

	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		zlog.Warn().Msgf("playback: loop did not exit in time: space=%s", c.spaceID)
	}
}

// Done returns a channel closed when the loop has exited.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
