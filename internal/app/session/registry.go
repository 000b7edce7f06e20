// Package session owns the per-space playback sessions and the operation
// set that drives them.
package session

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/app/surface"
)

// Session bundles everything one space owns.
type Session struct {
	SpaceID    string
	Controller *playback.Controller
	Surface    *surface.Surface
	Link       playback.Link
}

// Factory constructs a fresh session for a space.
type Factory func(spaceID string) (*Session, error)

// Registry maps space ids to their sessions with lazy construction.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	factory  Factory
}

// NewRegistry creates an empty registry backed by the factory.
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  factory,
	}
}

// GetOrCreate returns the space's session, constructing it on first use.
// The new session's playback loop is already running when this returns.
func (r *Registry) GetOrCreate(spaceID string) (*Session, error) {
	if spaceID == "" {
		return nil, errors.New("space id is required")
	}

	r.mu.RLock()
	sess, ok := r.sessions[spaceID]
	r.mu.RUnlock()
	if ok {
		return sess, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Re-check under the write lock; another caller may have won the race.
	if sess, ok := r.sessions[spaceID]; ok {
		return sess, nil
	}

	sess, err := r.factory(spaceID)
	if err != nil {
		return nil, errors.Wrapf(err, "create session: space=%v", spaceID)
	}
	r.sessions[spaceID] = sess
	zlog.Info().Msgf("session created: space=%v", spaceID)
	return sess, nil
}

// Get returns the space's session without creating one.
func (r *Registry) Get(spaceID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[spaceID]
	return sess, ok
}

// Remove evicts the space's session, then shuts it down. Eviction comes
// first so a concurrent GetOrCreate builds a fresh session instead of
// returning the dying one.
func (r *Registry) Remove(spaceID string) {
	r.mu.Lock()
	sess, ok := r.sessions[spaceID]
	delete(r.sessions, spaceID)
	r.mu.Unlock()

	if !ok {
		return
	}
	sess.Controller.Shutdown()
	zlog.Info().Msgf("session removed: space=%v", spaceID)
}

// ClearAll evicts and shuts down every session.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.Controller.Shutdown()
	}
	if len(sessions) > 0 {
		zlog.Info().Msgf("all sessions cleared: count=%v", len(sessions))
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SpaceIDs returns the ids of all live sessions.
func (r *Registry) SpaceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
