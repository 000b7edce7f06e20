// Package httpapi exposes the session manager over a JSON HTTP API plus
// a websocket notification stream.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/command"
	"github.com/tkmsd/groovebox/internal/app/notification"
	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/app/queue"
	"github.com/tkmsd/groovebox/internal/app/session"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Handler serves the HTTP API.
type Handler struct {
	mgr      *session.Manager
	notifier *notification.Manager
}

// New creates the API handler.
func New(mgr *session.Manager, notifier *notification.Manager) *Handler {
	return &Handler{mgr: mgr, notifier: notifier}
}

// Routes builds the HTTP mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /api/v1/spaces", h.handleSpaces)
	mux.HandleFunc("POST /api/v1/spaces/{space}/actions", h.handleAction)
	mux.HandleFunc("POST /api/v1/spaces/{space}/panel", h.handlePress)
	mux.HandleFunc("GET /api/v1/spaces/{space}/status", h.handleStatus)
	mux.HandleFunc("GET /api/v1/spaces/{space}/queue", h.handleQueue)
	mux.HandleFunc("GET /api/v1/notifications", h.handleNotifications)
	return mux
}

type actorPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type actionRequest struct {
	Action string         `json:"action"`
	Actor  actorPayload   `json:"actor"`
	Args   map[string]any `json:"args"`
}

type pressRequest struct {
	Glyph string       `json:"glyph"`
	Actor actorPayload `json:"actor"`
}

type trackPayload struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	URI          string `json:"uri"`
	DurationMs   int64  `json:"durationMs"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Requester    string `json:"requester,omitempty"`
}

type statusPayload struct {
	SpaceID    string        `json:"spaceId"`
	State      string        `json:"state"`
	Paused     bool          `json:"paused"`
	SingleLoop bool          `json:"singleLoop"`
	QueueLoop  bool          `json:"queueLoop"`
	Volume     int           `json:"volume"`
	PositionMs int64         `json:"positionMs"`
	QueueSize  int           `json:"queueSize"`
	Current    *trackPayload `json:"current,omitempty"`
	NextUp     *trackPayload `json:"nextUp,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleSpaces(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"spaces": h.mgr.Registry().SpaceIDs(),
	})
}

func (h *Handler) handleAction(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("space")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.Action == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("action is required"))
		return
	}

	actor := command.Actor{ID: req.Actor.ID, Name: req.Actor.Name, Kind: track.RequesterKindUser}
	if actor.ID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("actor id is required"))
		return
	}

	reply, err := h.mgr.Invoke(r.Context(), req.Action, actor, spaceID, req.Args)
	if err != nil {
		h.writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (h *Handler) handlePress(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("space")

	var req pressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if req.Glyph == "" || req.Actor.ID == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("glyph and actor id are required"))
		return
	}

	actor := command.Actor{ID: req.Actor.ID, Name: req.Actor.Name, Kind: track.RequesterKindPanel}
	if err := h.mgr.Press(r.Context(), spaceID, req.Glyph, actor); err != nil {
		h.writeError(w, statusForError(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("space")

	st, ok := h.mgr.Status(spaceID)
	if !ok {
		h.writeError(w, http.StatusNotFound, errors.Newf("no session: space=%v", spaceID))
		return
	}
	writeJSON(w, http.StatusOK, convertStatus(st))
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	spaceID := r.PathValue("space")

	items, ok := h.mgr.QueueSnapshot(spaceID)
	if !ok {
		h.writeError(w, http.StatusNotFound, errors.Newf("no session: space=%v", spaceID))
		return
	}

	tracks := make([]trackPayload, 0, len(items))
	for i := range items {
		tracks = append(tracks, convertTrack(&items[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tracks": tracks})
}

func convertStatus(st playback.Status) statusPayload {
	out := statusPayload{
		SpaceID:    st.SpaceID,
		State:      st.State.String(),
		Paused:     st.Paused,
		SingleLoop: st.SingleLoop,
		QueueLoop:  st.QueueLoop,
		Volume:     st.Volume,
		PositionMs: st.Position.Milliseconds(),
		QueueSize:  st.QueueSize,
	}
	if st.Current != nil {
		t := convertTrack(st.Current)
		out.Current = &t
	}
	if st.NextUp != nil {
		t := convertTrack(st.NextUp)
		out.NextUp = &t
	}
	return out
}

func convertTrack(t *track.Track) trackPayload {
	return trackPayload{
		ID:           t.ID,
		Title:        t.Title,
		URI:          t.URI,
		DurationMs:   t.Duration.Milliseconds(),
		ThumbnailURL: t.ThumbnailURL,
		Requester:    t.Requester.Name,
	}
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, command.ErrUnknownAction):
		return http.StatusNotFound
	case errors.Is(err, command.ErrOnCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, queue.ErrIndexOutOfRange):
		return http.StatusBadRequest
	case errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, playback.ErrNotPlaying),
		errors.Is(err, playback.ErrNotPaused),
		errors.Is(err, playback.ErrQueueEmpty),
		errors.Is(err, playback.ErrNotConnected):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("write response: err=%v", err)
	}
}

// writeError renders a domain error. Internal failures are logged and
// replaced by the configured generic message so backend detail stays out
// of client responses.
func (h *Handler) writeError(w http.ResponseWriter, code int, err error) {
	msg := err.Error()
	if code >= http.StatusInternalServerError {
		zlog.Error().Msgf("api: request failed: err=%v", err)
		msg = h.mgr.Messages().DefaultError
	}
	writeJSON(w, code, map[string]string{"error": msg})
}
