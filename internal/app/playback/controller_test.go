package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// fakeLink is an in-memory Link that records calls and lets tests deliver
// finish events deterministically.
type fakeLink struct {
	mu        sync.Mutex
	connected bool
	playing   bool
	paused    bool
	volume    int
	position  time.Duration
	fn        EventFunc
	playErr   error

	played []track.Track
	playCh chan track.Track
}

func newFakeLink() *fakeLink {
	return &fakeLink{connected: true, playCh: make(chan track.Track, 16)}
}

func (l *fakeLink) Connect(ctx context.Context, channelRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = true
	return nil
}

func (l *fakeLink) Disconnect() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	l.playing = false
	return nil
}

func (l *fakeLink) Play(ctx context.Context, t track.Track) error {
	l.mu.Lock()
	if l.playErr != nil {
		err := l.playErr
		l.mu.Unlock()
		return err
	}
	l.playing = true
	l.paused = false
	l.played = append(l.played, t)
	l.mu.Unlock()
	l.playCh <- t
	return nil
}

func (l *fakeLink) Stop() error {
	l.mu.Lock()
	wasPlaying := l.playing
	l.playing = false
	fn := l.fn
	l.mu.Unlock()
	if wasPlaying && fn != nil {
		fn("", OutcomeFinished)
	}
	return nil
}

func (l *fakeLink) SetPause(paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paused = paused
	return nil
}

func (l *fakeLink) Seek(offset time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.position = offset
	return nil
}

func (l *fakeLink) SetVolume(level int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.volume = level
	return nil
}

func (l *fakeLink) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *fakeLink) IsPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

func (l *fakeLink) Position() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.position
}

func (l *fakeLink) OnEvent(fn EventFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fn = fn
}

// finish delivers an asynchronous end-of-track event.
func (l *fakeLink) finish(outcome Outcome) {
	l.mu.Lock()
	l.playing = false
	fn := l.fn
	l.mu.Unlock()
	fn("", outcome)
}

func (l *fakeLink) playedIDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.played))
	for i, t := range l.played {
		out[i] = t.ID
	}
	return out
}

func waitPlay(t *testing.T, l *fakeLink) track.Track {
	t.Helper()
	select {
	case tr := <-l.playCh:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for play")
		return track.Track{}
	}
}

func testTrack(id string) track.Track {
	return track.Track{
		ID:       id,
		Title:    "track " + id,
		URI:      "https://example.com/" + id,
		Duration: 3 * time.Minute,
		Requester: track.Requester{
			ID:   "user-1",
			Name: "Tester",
			Kind: track.RequesterKindUser,
		},
	}
}

func TestController_PlaysQueueInOrder(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))

	assert.Equal(t, "A", waitPlay(t, link).ID)
	cur, ok := c.Current()
	require.True(t, ok)
	assert.Equal(t, "A", cur.ID)
	assert.Equal(t, StatePlaying, c.State())

	link.finish(OutcomeFinished)
	assert.Equal(t, "B", waitPlay(t, link).ID)

	assert.Equal(t, []string{"A", "B"}, link.playedIDs())
}

func TestController_AppliesDefaultVolumeAtStart(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	waitPlay(t, link)

	assert.Equal(t, DefaultVolume, c.Volume())
	link.mu.Lock()
	defer link.mu.Unlock()
	assert.Equal(t, DefaultVolume, link.volume)
}

func TestController_SingleLoopReplaysCurrent(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	waitPlay(t, link)

	on, err := c.ToggleSingleLoop()
	require.NoError(t, err)
	require.True(t, on)

	link.finish(OutcomeFinished)
	assert.Equal(t, "A", waitPlay(t, link).ID, "single loop must replay the current track")
	assert.Equal(t, 1, c.Queue().Size(), "queue must not be consumed while single looping")
}

func TestController_QueueLoopReappendsOnce(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	waitPlay(t, link)

	require.True(t, c.ToggleQueueLoop())

	link.finish(OutcomeFinished)
	assert.Equal(t, "B", waitPlay(t, link).ID)

	snap := c.Queue().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "A", snap[0].ID, "finished track re-appended at the tail exactly once")
}

func TestController_QueueLoopDisablesSingleLoop(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	waitPlay(t, link)

	_, err := c.ToggleSingleLoop()
	require.NoError(t, err)
	require.True(t, c.SingleLoop())

	require.True(t, c.ToggleQueueLoop())
	assert.False(t, c.SingleLoop(), "enabling queue loop must disable single loop")
	assert.True(t, c.QueueLoop())
}

func TestController_ToggleSingleLoopWithoutTrack(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	_, err := c.ToggleSingleLoop()
	assert.ErrorIs(t, err, ErrNoTrack)
}

func TestController_ErrorOutcomeAdvancesQueue(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	waitPlay(t, link)

	link.finish(OutcomeErrored)
	assert.Equal(t, "B", waitPlay(t, link).ID, "an errored track is treated as finished")
}

func TestController_SkipAdvances(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	waitPlay(t, link)

	require.NoError(t, c.Skip())
	assert.Equal(t, "B", waitPlay(t, link).ID)
}

func TestController_SkipWithoutTrack(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	assert.ErrorIs(t, c.Skip(), ErrNoTrack)
}

func TestController_StopClearsLoopsAndQueue(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	c.Queue().Enqueue(testTrack("C"))
	waitPlay(t, link)

	c.ToggleQueueLoop()
	_, err := c.SetVolume(120)
	require.NoError(t, err)

	require.NoError(t, c.Stop())

	assert.False(t, c.SingleLoop())
	assert.False(t, c.QueueLoop())
	assert.True(t, c.Queue().IsEmpty())
	_, ok := c.Current()
	assert.False(t, ok)
	assert.Equal(t, 120, c.Volume(), "stop retains the volume")
}

func TestController_StopWhenIdle(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	assert.ErrorIs(t, c.Stop(), ErrNotPlaying)
}

func TestController_TogglePause(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	_, err := c.TogglePause()
	assert.ErrorIs(t, err, ErrNotPlaying)

	c.Queue().Enqueue(testTrack("A"))
	waitPlay(t, link)

	paused, err := c.TogglePause()
	require.NoError(t, err)
	assert.True(t, paused)
	assert.True(t, c.Paused())

	require.NoError(t, c.Resume())
	assert.False(t, c.Paused())

	assert.ErrorIs(t, c.Resume(), ErrNotPaused)
}

func TestController_SetVolumeClamps(t *testing.T) {
	tests := []struct {
		name     string
		level    int
		expected int
	}{
		{name: "below range", level: -10, expected: 0},
		{name: "in range", level: 125, expected: 125},
		{name: "above range", level: 500, expected: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := newFakeLink()
			c := NewController("space-1", link, nil)
			defer c.Shutdown()

			applied, err := c.SetVolume(tt.level)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, applied)
			assert.Equal(t, tt.expected, c.Volume())
		})
	}
}

func TestController_ShuffleEmptyQueue(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	assert.ErrorIs(t, c.Shuffle(), ErrQueueEmpty)
}

func TestController_ShutdownUnblocksLoop(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)

	// Loop is blocked on an empty queue; shutdown must unblock it.
	c.Shutdown()

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after shutdown")
	}
	assert.False(t, link.IsConnected())
}

// recordSink captures status lines emitted by the loop.
type recordSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *recordSink) SendStatus(_ string, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, text)
}

func (s *recordSink) last() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) == 0 {
		return "", false
	}
	return s.lines[len(s.lines)-1], true
}

func TestController_StatusLineUsesConfiguredFormat(t *testing.T) {
	link := newFakeLink()
	sink := &recordSink{}
	c := NewController("space-1", link, sink)
	defer c.Shutdown()

	c.SetStatusFormat("🎶 Spinning %s")
	c.Queue().Enqueue(testTrack("A"))
	waitPlay(t, link)

	require.Eventually(t, func() bool {
		_, ok := sink.last()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	line, _ := sink.last()
	assert.Equal(t, "🎶 Spinning `track A (3:00)`", line)
}

func TestController_GetStatus(t *testing.T) {
	link := newFakeLink()
	c := NewController("space-1", link, nil)
	defer c.Shutdown()

	c.Queue().Enqueue(testTrack("A"))
	c.Queue().Enqueue(testTrack("B"))
	waitPlay(t, link)

	st := c.GetStatus()
	assert.Equal(t, "space-1", st.SpaceID)
	assert.Equal(t, StatePlaying, st.State)
	require.NotNil(t, st.Current)
	assert.Equal(t, "A", st.Current.ID)
	assert.Equal(t, 1, st.QueueSize)
	require.NotNil(t, st.NextUp)
	assert.Equal(t, "B", st.NextUp.ID)
	assert.Equal(t, DefaultVolume, st.Volume)
}
