package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/capsulevault/capsule-server/internal/model"
)

func TestFormatCountdown(t *testing.T) {
	tests := []struct {
		name      string
		remaining time.Duration
		want      string
	}{
		{
			name:      "one of each unit",
			remaining: 90061000 * time.Millisecond,
			want:      "1d 1h 1m 1s",
		},
		{
			name:      "seconds only",
			remaining: 59 * time.Second,
			want:      "0d 0h 0m 59s",
		},
		{
			name:      "sub-second floors to zero",
			remaining: 999 * time.Millisecond,
			want:      "0d 0h 0m 0s",
		},
		{
			name:      "zero",
			remaining: 0,
			want:      "0d 0h 0m 0s",
		},
		{
			name:      "negative clamps to zero",
			remaining: -time.Minute,
			want:      "0d 0h 0m 0s",
		},
		{
			name:      "many days",
			remaining: 10*24*time.Hour + 23*time.Hour + 59*time.Minute + 59*time.Second,
			want:      "10d 23h 59m 59s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCountdown(tt.remaining))
		})
	}
}

func TestBuildView(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	openedAt := now.Add(-time.Second)

	t.Run("locked shows countdown", func(t *testing.T) {
		capsule := model.Capsule{ID: 1, Message: "secret", UnlockAt: now.Add(90061000 * time.Millisecond), State: model.CapsuleStateLocked}

		view := BuildView(capsule, 1, now)

		assert.Equal(t, ViewStateLocked, view.State)
		assert.Equal(t, "Unlocks in: 1d 1h 1m 1s", view.Countdown)
		assert.Empty(t, view.Message, "message stays sealed while locked")
	})

	t.Run("due capsule is ready, not opened", func(t *testing.T) {
		capsule := model.Capsule{ID: 1, Message: "secret", UnlockAt: now, State: model.CapsuleStateLocked}

		view := BuildView(capsule, 1, now)

		assert.Equal(t, ViewStateReady, view.State)
		assert.Equal(t, "Ready to open!", view.Countdown)
		assert.Empty(t, view.Message, "ready is display-only, content needs an explicit open")
	})

	t.Run("opened exposes content", func(t *testing.T) {
		capsule := model.Capsule{
			ID:       3,
			Message:  "secret",
			ImageKey: "user-a/capsule-3/image-x",
			UnlockAt: now.Add(-time.Hour),
			State:    model.CapsuleStateOpened,
			OpenedAt: &openedAt,
		}

		view := BuildView(capsule, 2, now)

		assert.Equal(t, ViewStateOpened, view.State)
		assert.Equal(t, "secret", view.Message)
		assert.True(t, view.HasImage)
		assert.Equal(t, 2, view.Number)
		assert.Empty(t, view.Countdown)
	})
}
