// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"time"
)

// RequesterKind represents the origin of a track request.
type RequesterKind string

const (
	RequesterKindUser   RequesterKind = "USER"   // Text command path
	RequesterKindPanel  RequesterKind = "PANEL"  // Synthesized from a control surface press
	RequesterKindSystem RequesterKind = "SYSTEM" // Internal invocations with no actor identity
)

// Requester represents the identity a track (or action) is attributed to.
type Requester struct {
	ID   string        // Identity in the space (user id or synthesized UUID)
	Name string        // Display name
	Kind RequesterKind // Origin of the request
}

// Track represents a playable media item.
// Immutable once constructed; copied by value into queues.
type Track struct {
	ID           string        // Backend track identifier
	Title        string        // Track title
	URI          string        // Source URI (stream/page URL)
	Duration     time.Duration // Total track duration
	ThumbnailURL string        // Thumbnail reference (optional)
	Requester    Requester     // Who requested the track
}

// String returns the display form used in status messages.
func (t Track) String() string {
	return fmt.Sprintf("%s (%s)", t.Title, FormatDuration(t.Duration))
}

// FormatDuration renders a duration as h:mm:ss or m:ss for display.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
