package httpapi

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/notification"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsStream adapts a websocket connection to the notification stream
// interface. Sends are decoupled through a buffered channel so a slow
// reader backs up its own stream, not the broadcaster.
type wsStream struct {
	out    chan *notification.Notification
	closed chan struct{}
}

func newWSStream() *wsStream {
	return &wsStream{
		out:    make(chan *notification.Notification, 32),
		closed: make(chan struct{}),
	}
}

func (s *wsStream) Send(n *notification.Notification) error {
	select {
	case s.out <- n:
		return nil
	case <-s.closed:
		return errors.New("stream closed")
	default:
		return errors.New("stream backlog full")
	}
}

func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Debug().Msgf("websocket upgrade failed: err=%v", err)
		return
	}
	defer conn.Close()

	stream := newWSStream()
	subID := h.notifier.Subscribe(stream)
	defer func() {
		h.notifier.Unsubscribe(subID)
		close(stream.closed)
	}()
	zlog.Info().Msgf("notification subscriber connected: id=%v", subID)

	// Drain incoming frames so pings and close frames are processed.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-readerDone:
			zlog.Info().Msgf("notification subscriber disconnected: id=%v", subID)
			return
		case n := <-stream.out:
			if err := conn.WriteJSON(n); err != nil {
				zlog.Debug().Msgf("notification write failed: id=%v err=%v", subID, err)
				return
			}
		}
	}
}
