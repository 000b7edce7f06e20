// Package mpdlink provides a playback link backed by an MPD server.
// One MPD instance serves one space; the link drives the MPD queue with a
// single track at a time so the controller keeps full ownership of ordering.
package mpdlink

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fhs/gompd/v2/mpd"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrNotConnected = errors.Mark(errors.New("mpd link not connected"), playback.ErrNotConnected)
)

// Config holds MPD connection settings.
type Config struct {
	Host     string `mapstructure:"host" default:"localhost" validate:"required"`
	Port     int    `mapstructure:"port" default:"6600" validate:"gt=0,lte=65535"`
	Password string `mapstructure:"password"`
}

// Link implements playback.Link over an MPD server.
type Link struct {
	mu sync.Mutex

	spaceID string
	cfg     Config

	client  *mpd.Client
	watcher *mpd.Watcher

	playing bool
	current track.Track

	fn playback.EventFunc

	watchDone chan struct{}
}

// New creates a disconnected MPD link for the space.
func New(spaceID string, cfg Config) *Link {
	return &Link{spaceID: spaceID, cfg: cfg}
}

// OnEvent registers the end-of-track callback.
func (l *Link) OnEvent(fn playback.EventFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fn = fn
}

func (l *Link) addr() string {
	return fmt.Sprintf("%s:%d", l.cfg.Host, l.cfg.Port)
}

// Connect dials MPD and starts the player-subsystem watcher that delivers
// end-of-track events. The channelRef is informational for MPD.
func (l *Link) Connect(ctx context.Context, channelRef string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return nil
	}

	zlog.Info().Msgf("mpdlink: connecting: space=%s addr=%s channel=%s", l.spaceID, l.addr(), channelRef)

	client, err := mpd.Dial("tcp", l.addr())
	if err != nil {
		return errors.Wrap(err, "dial mpd")
	}
	if l.cfg.Password != "" {
		if err := client.Command("password %s", l.cfg.Password).OK(); err != nil {
			_ = client.Close()
			return errors.Wrap(err, "mpd authentication")
		}
	}

	watcher, err := mpd.NewWatcher("tcp", l.addr(), l.cfg.Password, "player")
	if err != nil {
		_ = client.Close()
		return errors.Wrap(err, "mpd watcher")
	}

	l.client = client
	l.watcher = watcher
	l.watchDone = make(chan struct{})
	go l.watch(watcher, l.watchDone)
	return nil
}

// Disconnect tears the MPD connection down. No event is delivered for a
// track cut off by a disconnect.
func (l *Link) Disconnect() error {
	l.mu.Lock()
	l.playing = false
	watcher := l.watcher
	l.watcher = nil
	done := l.watchDone
	l.watchDone = nil
	client := l.client
	l.client = nil
	l.mu.Unlock()

	// Close the watcher first so its goroutine drains out before the
	// client connection goes away.
	if watcher != nil {
		_ = watcher.Close()
	}
	if done != nil {
		<-done
	}
	if client != nil {
		return client.Close()
	}
	return nil
}

// watch turns MPD player-subsystem changes into finish events. MPD goes to
// state "stop" when the single queued track ends or is stopped explicitly.
func (l *Link) watch(w *mpd.Watcher, done chan struct{}) {
	defer close(done)
	for range w.Event {
		l.mu.Lock()
		if l.client == nil || !l.playing {
			l.mu.Unlock()
			continue
		}
		status, err := l.client.Status()
		if err != nil {
			l.mu.Unlock()
			zlog.Warn().Msgf("mpdlink: status after player event: space=%s err=%v", l.spaceID, err)
			continue
		}
		if status["state"] != "stop" {
			l.mu.Unlock()
			continue
		}
		l.playing = false
		fn := l.fn
		l.mu.Unlock()

		if fn != nil {
			fn(l.spaceID, playback.OutcomeFinished)
		}
	}
}

// Play replaces the MPD queue with the track and starts it.
func (l *Link) Play(ctx context.Context, t track.Track) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return ErrNotConnected
	}

	if err := l.client.Clear(); err != nil {
		return errors.Wrap(err, "clear mpd queue")
	}
	if err := l.client.Add(t.URI); err != nil {
		return errors.Wrapf(err, "add %s", t.URI)
	}
	if err := l.client.Play(-1); err != nil {
		return errors.Wrap(err, "play")
	}
	l.current = t
	l.playing = true
	return nil
}

// Stop aborts the current track. The watcher observes the resulting state
// change and delivers the finish event.
func (l *Link) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil || !l.playing {
		return nil
	}
	return l.client.Stop()
}

// SetPause toggles the MPD pause state.
func (l *Link) SetPause(paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return ErrNotConnected
	}
	return l.client.Pause(paused)
}

// Seek jumps to the offset in the current track.
func (l *Link) Seek(offset time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return ErrNotConnected
	}

	status, err := l.client.Status()
	if err != nil {
		return errors.Wrap(err, "status")
	}
	pos, err := strconv.Atoi(status["song"])
	if err != nil {
		return errors.New("no song loaded")
	}
	return l.client.Seek(pos, int(offset.Seconds()))
}

// SetVolume maps the controller's [0,200] range onto MPD's [0,100].
func (l *Link) SetVolume(level int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil {
		return ErrNotConnected
	}
	if level < 0 {
		level = 0
	}
	if level > 200 {
		level = 200
	}
	return l.client.SetVolume(level / 2)
}

// IsConnected reports whether the MPD connection is up.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.client == nil {
		return false
	}
	return l.client.Ping() == nil
}

// IsPlaying reports whether a track has been handed to MPD.
func (l *Link) IsPlaying() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playing
}

// Position reads the elapsed time from MPD status.
func (l *Link) Position() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client == nil || !l.playing {
		return 0
	}
	status, err := l.client.Status()
	if err != nil {
		return 0
	}
	elapsed, err := strconv.ParseFloat(status["elapsed"], 64)
	if err != nil {
		return 0
	}
	return time.Duration(elapsed * float64(time.Second))
}

var _ playback.Link = (*Link)(nil)
