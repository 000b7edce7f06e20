package timerlink

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

func connectedLink(t *testing.T) (*Link, chan playback.Outcome) {
	t.Helper()
	l := New("space-1")
	events := make(chan playback.Outcome, 4)
	l.OnEvent(func(spaceID string, outcome playback.Outcome) {
		events <- outcome
	})
	require.NoError(t, l.Connect(context.Background(), "channel-1"))
	return l, events
}

func shortTrack(d time.Duration) track.Track {
	return track.Track{ID: "trk", Title: "t", Duration: d}
}

func TestLink_PlayRequiresConnection(t *testing.T) {
	l := New("space-1")
	l.OnEvent(func(string, playback.Outcome) {})

	err := l.Play(context.Background(), shortTrack(time.Second))
	assert.True(t, errors.Is(err, ErrNotConnected))
	assert.True(t, errors.Is(err, playback.ErrNotConnected), "sentinel must carry the shared connection error")
}

func TestLink_FinishEventAfterDuration(t *testing.T) {
	l, events := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(30*time.Millisecond)))
	assert.True(t, l.IsPlaying())

	select {
	case outcome := <-events:
		assert.Equal(t, playback.OutcomeFinished, outcome)
	case <-time.After(time.Second):
		t.Fatal("no finish event delivered")
	}
	assert.False(t, l.IsPlaying())
}

func TestLink_StopDeliversEventForAbortedTrack(t *testing.T) {
	l, events := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(time.Hour)))
	require.NoError(t, l.Stop())

	select {
	case outcome := <-events:
		assert.Equal(t, playback.OutcomeFinished, outcome)
	case <-time.After(time.Second):
		t.Fatal("no event for aborted track")
	}

	// A second stop on an idle link is a no-op.
	require.NoError(t, l.Stop())
	select {
	case <-events:
		t.Fatal("idle stop must not deliver an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLink_PauseSuspendsCountdown(t *testing.T) {
	l, events := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(60*time.Millisecond)))
	require.NoError(t, l.SetPause(true))

	select {
	case <-events:
		t.Fatal("finish event delivered while paused")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, l.SetPause(false))
	select {
	case outcome := <-events:
		assert.Equal(t, playback.OutcomeFinished, outcome)
	case <-time.After(time.Second):
		t.Fatal("no finish event after resume")
	}
}

func TestLink_SeekRewritesCountdown(t *testing.T) {
	l, events := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(time.Hour)))
	require.NoError(t, l.Seek(time.Hour-20*time.Millisecond))

	select {
	case outcome := <-events:
		assert.Equal(t, playback.OutcomeFinished, outcome)
	case <-time.After(time.Second):
		t.Fatal("seek near end did not finish the track")
	}
}

func TestLink_SeekAndPauseRequireTrack(t *testing.T) {
	l, _ := connectedLink(t)

	assert.ErrorIs(t, l.Seek(time.Second), ErrNotPlaying)
	assert.ErrorIs(t, l.SetPause(true), ErrNotPlaying)
}

func TestLink_DisconnectIsSilent(t *testing.T) {
	l, events := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(time.Hour)))
	require.NoError(t, l.Disconnect())

	assert.False(t, l.IsConnected())
	assert.False(t, l.IsPlaying())
	select {
	case <-events:
		t.Fatal("disconnect must not deliver a track event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLink_SetVolumeValidatesRange(t *testing.T) {
	l, _ := connectedLink(t)

	require.NoError(t, l.SetVolume(200))
	assert.Equal(t, 200, l.Volume())
	assert.Error(t, l.SetVolume(201))
	assert.Error(t, l.SetVolume(-1))
}

func TestLink_PositionAdvances(t *testing.T) {
	l, _ := connectedLink(t)

	require.NoError(t, l.Play(context.Background(), shortTrack(time.Hour)))
	time.Sleep(20 * time.Millisecond)
	pos := l.Position()
	assert.Greater(t, pos, time.Duration(0))

	require.NoError(t, l.SetPause(true))
	frozen := l.Position()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frozen, l.Position(), "position must not advance while paused")
}
