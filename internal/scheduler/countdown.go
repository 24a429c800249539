package scheduler

import (
	"fmt"
	"time"

	"github.com/capsulevault/capsule-server/internal/model"
)

const (
	msPerSecond = 1000
	msPerMinute = 60 * msPerSecond
	msPerHour   = 60 * msPerMinute
	msPerDay    = 24 * msPerHour
)

// FormatCountdown decomposes a remaining duration into whole days, hours,
// minutes and seconds by integer floor division on milliseconds.
func FormatCountdown(remaining time.Duration) string {
	ms := remaining.Milliseconds()
	if ms < 0 {
		ms = 0
	}

	days := ms / msPerDay
	hours := ms % msPerDay / msPerHour
	minutes := ms % msPerHour / msPerMinute
	seconds := ms % msPerMinute / msPerSecond

	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// ViewState is the derived display state of a capsule. "ready" is computed
// from the persisted state and the clock, never stored.
type ViewState string

const (
	ViewStateLocked ViewState = "locked"
	ViewStateReady  ViewState = "ready"
	ViewStateOpened ViewState = "opened"
)

// CapsuleView is one capsule's display state delivered to the presentation layer.
type CapsuleView struct {
	ID     int64     `json:"id"`
	Number int       `json:"number"`
	State  ViewState `json:"state"`
	// Countdown is the display string for locked capsules.
	Countdown string `json:"countdown,omitempty"`
	// Message and HasImage are only populated once the capsule is opened.
	Message  string `json:"message,omitempty"`
	HasImage bool   `json:"has_image,omitempty"`
	UnlockAt string `json:"unlock_at"`
}

// Snapshot is the full refreshed display mapping for one account, delivered
// once per tick.
type Snapshot struct {
	Username string        `json:"username"`
	Capsules []CapsuleView `json:"capsules"`
}

// BuildView computes a capsule's display state at the given instant.
func BuildView(capsule model.Capsule, number int, now time.Time) CapsuleView {
	view := CapsuleView{
		ID:       capsule.ID,
		Number:   number,
		UnlockAt: capsule.UnlockAt.Format(time.RFC3339),
	}

	switch {
	case capsule.State == model.CapsuleStateOpened:
		view.State = ViewStateOpened
		view.Message = capsule.Message
		view.HasImage = capsule.ImageKey != ""
	case capsule.Unlockable(now):
		view.State = ViewStateReady
		view.Countdown = "Ready to open!"
	default:
		view.State = ViewStateLocked
		view.Countdown = "Unlocks in: " + FormatCountdown(capsule.UnlockAt.Sub(now))
	}

	return view
}
