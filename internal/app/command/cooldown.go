package command

import (
	"sync"
	"time"
)

// CooldownTracker tracks the last use of each (operation, actor) pair.
// Control surface presses reset their synthesized actor's entry so rapid
// presses by different users are each limited on their own identity.
type CooldownTracker struct {
	mu   sync.Mutex
	last map[string]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		last: make(map[string]time.Time),
		now:  time.Now,
	}
}

func cooldownKey(opName, actorID string) string {
	return opName + "|" + actorID
}

// Remaining returns how long the pair must still wait, zero if ready.
func (t *CooldownTracker) Remaining(opName, actorID string, cooldown time.Duration) time.Duration {
	if cooldown <= 0 {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.last[cooldownKey(opName, actorID)]
	if !ok {
		return 0
	}
	remaining := cooldown - t.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Record marks the pair as used now.
func (t *CooldownTracker) Record(opName, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[cooldownKey(opName, actorID)] = t.now()
}

// Reset clears the pair so the next invocation is not rate-limited.
func (t *CooldownTracker) Reset(opName, actorID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, cooldownKey(opName, actorID))
}
