package surface

import (
	"fmt"
	"strings"
	"time"

	"github.com/tkmsd/groovebox/internal/app/playback"
	"github.com/tkmsd/groovebox/internal/domain/track"
)

const progressSlots = 30

// ProgressBar renders a fixed-width bar with a marker at the elapsed
// position. A zero or unknown total pins the marker to the start.
func ProgressBar(position, total time.Duration) string {
	slots := []rune(strings.Repeat("-", progressSlots))
	idx := 0
	if total > 0 {
		ratio := float64(position) / float64(total)
		idx = int(ratio * progressSlots)
		if idx >= progressSlots {
			idx = progressSlots - 1
		}
		if idx < 0 {
			idx = 0
		}
	}
	return string(slots[:idx]) + "🔘" + string(slots[idx+1:])
}

// RenderPanel builds the textual control panel for a space's status.
func RenderPanel(st playback.Status) string {
	var b strings.Builder

	b.WriteString("**Player Menu**\n")
	if st.Current == nil {
		b.WriteString("Nothing is playing.\n")
	} else {
		cur := st.Current
		fmt.Fprintf(&b, "[%s](%s)\n", cur.Title, cur.URI)
		fmt.Fprintf(&b, "`%s`\n", ProgressBar(st.Position, cur.Duration))
		fmt.Fprintf(&b, "`%s` / `%s`\n", track.FormatDuration(st.Position), track.FormatDuration(cur.Duration))
		fmt.Fprintf(&b, "**Requested by:** `%s`\n", cur.Requester.Name)
	}

	if st.Paused {
		b.WriteString("⏸ Paused\n")
	}
	fmt.Fprintf(&b, "**Queue:** %d track(s)", st.QueueSize)
	if st.NextUp != nil {
		fmt.Fprintf(&b, ", next up `%s`", st.NextUp.Title)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "**Volume:** %d%%\n", st.Volume)
	fmt.Fprintf(&b, "- 🔂: %s\n- 🔁: %s", flagMark(st.SingleLoop), flagMark(st.QueueLoop))

	return b.String()
}

func flagMark(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}
