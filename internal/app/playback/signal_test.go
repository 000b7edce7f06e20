package playback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignal_SetThenWait(t *testing.T) {
	s := NewSignal()
	s.Set()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}

func TestSignal_RedundantSetsCollapse(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Set()
	s.Set()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))

	// Only one wakeup was pending.
	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	assert.ErrorIs(t, s.Wait(shortCtx), context.DeadlineExceeded)
}

func TestSignal_ClearDiscardsPendingSet(t *testing.T) {
	s := NewSignal()
	s.Set()
	s.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
}

func TestSignal_WaitCancellable(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Wait(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestSignal_SetAfterClearWakes(t *testing.T) {
	s := NewSignal()
	s.Clear()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Set()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
}
