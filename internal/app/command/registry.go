// Package command provides the guarded operation dispatch table shared by
// the text-command path and the control surface.
package command

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/tkmsd/groovebox/internal/domain/track"
)

// Errors
var (
	ErrUnknownAction = errors.New("unknown action")
	ErrOnCooldown    = errors.New("action is on cooldown")
)

// Actor is the identity an invocation is attributed to. The control
// surface synthesizes one from the pressing user.
type Actor struct {
	ID   string
	Name string
	Kind track.RequesterKind // Origin of the invocation; empty means a plain user command
}

// Invocation carries the resolved context of one guarded call.
type Invocation struct {
	SpaceID string
	Actor   Actor
	Args    map[string]any
}

// HandlerFunc executes an operation and returns the user-facing reply.
type HandlerFunc func(ctx context.Context, inv Invocation) (string, error)

// Operation is one named guarded operation.
type Operation struct {
	Name     string
	Aliases  []string
	Cooldown time.Duration // Per-actor; zero disables rate limiting
	Run      HandlerFunc
}

// Registry resolves action names to operations and applies per-actor
// cooldowns around every invocation.
type Registry struct {
	mu        sync.RWMutex
	ops       map[string]*Operation // Keyed by name and every alias
	cooldowns *CooldownTracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:       make(map[string]*Operation),
		cooldowns: NewCooldownTracker(),
	}
}

// Register adds an operation under its name and aliases.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" || op.Run == nil {
		return errors.New("operation needs a name and a handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, key := range append([]string{op.Name}, op.Aliases...) {
		if _, exists := r.ops[key]; exists {
			return errors.Newf("action %q already registered", key)
		}
	}
	registered := op
	for _, key := range append([]string{op.Name}, op.Aliases...) {
		r.ops[key] = &registered
	}
	return nil
}

// Resolve looks an action up by name or alias.
func (r *Registry) Resolve(name string) (*Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.ops[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownAction, "%q", name)
	}
	return op, nil
}

// Names returns the registered primary operation names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(r.ops))
	names := make([]string, 0, len(r.ops))
	for _, op := range r.ops {
		if !seen[op.Name] {
			seen[op.Name] = true
			names = append(names, op.Name)
		}
	}
	return names
}

// Invoke resolves the action and runs it for the actor, enforcing the
// operation's per-actor cooldown. The cooldown is consumed at invocation
// time, matching command frameworks that charge before parsing succeeds.
func (r *Registry) Invoke(ctx context.Context, name string, actor Actor, spaceID string, args map[string]any) (string, error) {
	op, err := r.Resolve(name)
	if err != nil {
		return "", err
	}

	if remaining := r.cooldowns.Remaining(op.Name, actor.ID, op.Cooldown); remaining > 0 {
		return "", errors.Wrapf(ErrOnCooldown, "retry in %s", remaining.Round(time.Millisecond))
	}
	r.cooldowns.Record(op.Name, actor.ID)

	return op.Run(ctx, Invocation{
		SpaceID: spaceID,
		Actor:   actor,
		Args:    args,
	})
}

// ResetCooldown clears the actor's rate limit for the action. Used by the
// control surface after each synthesized invocation.
func (r *Registry) ResetCooldown(name string, actor Actor) {
	op, err := r.Resolve(name)
	if err != nil {
		return
	}
	r.cooldowns.Reset(op.Name, actor.ID)
}

// DecodeArgs decodes an invocation's raw args into a typed struct,
// applying defaults and validating the result.
func DecodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  out,
		TagName: "mapstructure",
	})
	if err != nil {
		return errors.Wrap(err, "create decoder")
	}
	if err := decoder.Decode(args); err != nil {
		return errors.Wrap(err, "decode args")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validate args")
	}
	return nil
}
