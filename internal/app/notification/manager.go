// Package notification broadcasts player events to subscribed streams.
package notification

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a notification.
type Kind string

const (
	KindStatus Kind = "status" // One-line status text such as "Now playing"
	KindPanel  Kind = "panel"  // Full rendered control panel
	KindClear  Kind = "clear"  // Panel removal
)

// Notification is one player event published to a space's subscribers.
type Notification struct {
	SequenceNo uint64    `json:"sequenceNo"`
	SpaceID    string    `json:"spaceId"`
	Kind       Kind      `json:"kind"`
	Text       string    `json:"text,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
type Manager struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{
		subscriptions: make(map[string]*subscription),
	}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions[id] = &subscription{
		id:     id,
		stream: stream,
	}
	return id
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, subscriptionID)
}

// Broadcast stamps the notification with the next sequence number and
// sends it to all subscribers. Each stream send runs in a goroutine with
// a timeout so one stuck subscriber cannot block the player.
func (m *Manager) Broadcast(notification *Notification) {
	m.sequenceNoMu.Lock()
	m.sequenceNo++
	notification.SequenceNo = m.sequenceNo
	m.sequenceNoMu.Unlock()

	if notification.Timestamp.IsZero() {
		notification.Timestamp = time.Now()
	}

	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(s *subscription) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()

			done := make(chan error, 1)
			go func() {
				done <- s.stream.Send(notification)
			}()

			select {
			case <-done:
				// Send errors are ignored; a broken subscriber is expected
				// to unsubscribe itself.
			case <-ctx.Done():
			}
		}(sub)
	}
	wg.Wait()
}

// SendStatus publishes a one-line status text for a space. It satisfies
// the playback controller's status sink.
func (m *Manager) SendStatus(spaceID string, text string) {
	m.Broadcast(&Notification{SpaceID: spaceID, Kind: KindStatus, Text: text})
}

// SendPanel publishes the rendered control panel for a space.
func (m *Manager) SendPanel(spaceID string, text string) {
	m.Broadcast(&Notification{SpaceID: spaceID, Kind: KindPanel, Text: text})
}

// RemovePanel tells subscribers to drop the space's panel.
func (m *Manager) RemovePanel(spaceID string) {
	m.Broadcast(&Notification{SpaceID: spaceID, Kind: KindClear})
}

// SubscriberCount returns the number of active subscribers.
func (m *Manager) SubscriberCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subscriptions)
}

// Close removes all subscriptions.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = make(map[string]*subscription)
}
