// Package surface renders the per-space control panel and routes its
// button presses into the shared guarded operation table.
package surface

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/tkmsd/groovebox/internal/app/command"
	"github.com/tkmsd/groovebox/internal/app/playback"
)

// Errors
var (
	ErrInactive      = errors.New("control surface is not active")
	ErrUnknownButton = errors.New("unknown button")
)

// Button binds a glyph to a dispatch operation. Terminal buttons tear the
// surface down after a successful press.
type Button struct {
	Glyph    string
	Action   string
	Terminal bool
}

// DefaultButtons is the fixed ordered button set of the panel.
var DefaultButtons = []Button{
	{Glyph: "⏸", Action: "pause"},
	{Glyph: "⏩", Action: "skip"},
	{Glyph: "🔀", Action: "shuffle"},
	{Glyph: "🔁", Action: "queue-loop"},
	{Glyph: "🔂", Action: "repeat"},
	{Glyph: "⏹", Action: "stop", Terminal: true},
	{Glyph: "❌", Action: "disconnect", Terminal: true},
}

// PanelSink publishes the rendered panel to wherever the space displays it.
type PanelSink interface {
	SendPanel(spaceID string, text string)
	RemovePanel(spaceID string)
}

// Surface is the one control panel of a space. It stays dormant until the
// first refresh and rejects presses once torn down.
type Surface struct {
	spaceID    string
	controller *playback.Controller
	dispatch   *command.Registry
	sink       PanelSink
	buttons    []Button

	mu     sync.Mutex
	active bool
	done   bool
}

// New creates the surface and hooks it into the controller so that track
// changes refresh the panel and a stop tears it down.
func New(spaceID string, controller *playback.Controller, dispatch *command.Registry, sink PanelSink) *Surface {
	s := &Surface{
		spaceID:    spaceID,
		controller: controller,
		dispatch:   dispatch,
		sink:       sink,
		buttons:    DefaultButtons,
	}
	controller.SetSurfaceHooks(s.Refresh, s.Teardown)
	return s
}

// Buttons returns the ordered button set.
func (s *Surface) Buttons() []Button {
	out := make([]Button, len(s.buttons))
	copy(out, s.buttons)
	return out
}

// Refresh re-renders the panel from the controller's status. The first
// refresh activates the surface.
func (s *Surface) Refresh() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.mu.Unlock()

	s.sink.SendPanel(s.spaceID, RenderPanel(s.controller.GetStatus()))
}

// Trigger handles one button press by the given user. The press is
// attributed to the pressing user and routed through the same guarded
// operation the text command uses, then the cooldown it consumed is
// handed back so panel presses are never throttled.
func (s *Surface) Trigger(ctx context.Context, glyph string, user command.Actor) error {
	s.mu.Lock()
	if s.done || !s.active {
		s.mu.Unlock()
		return errors.Wrapf(ErrInactive, "space=%v", s.spaceID)
	}
	s.mu.Unlock()

	button, ok := s.lookup(glyph)
	if !ok {
		return errors.Wrapf(ErrUnknownButton, "%q", glyph)
	}

	_, err := s.dispatch.Invoke(ctx, button.Action, user, s.spaceID, nil)
	s.dispatch.ResetCooldown(button.Action, user)
	if err != nil {
		zlog.Debug().Msgf("surface press rejected: space=%v action=%v err=%v", s.spaceID, button.Action, err)
		return err
	}

	if button.Terminal {
		s.Teardown()
		return nil
	}
	s.Refresh()
	return nil
}

// Teardown removes the panel and deactivates the surface permanently.
func (s *Surface) Teardown() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.active = false
	s.mu.Unlock()

	s.sink.RemovePanel(s.spaceID)
}

func (s *Surface) lookup(glyph string) (Button, bool) {
	for _, b := range s.buttons {
		if b.Glyph == glyph {
			return b, true
		}
	}
	return Button{}, false
}
