package model

import (
	"io"
	"time"
)

// OpenedRetention is how long an opened capsule stays readable before it is pruned.
// Fixed retention policy, not configurable.
const OpenedRetention = 120 * time.Second

// CapsuleState enumerates persisted capsule states.
type CapsuleState string

const (
	// CapsuleStateLocked is the initial state of every capsule.
	CapsuleStateLocked CapsuleState = "locked"
	// CapsuleStateOpened is the transient state after a user opens a capsule.
	CapsuleStateOpened CapsuleState = "opened"
)

// Capsule represents a stored message with a scheduled unlock instant and
// bounded post-open retention. Capsules are persisted inside their owning
// account record, so the struct carries JSON tags.
type Capsule struct {
	ID        int64        `json:"id"`
	Message   string       `json:"message"`
	ImageKey  string       `json:"image_key,omitempty"`
	UnlockAt  time.Time    `json:"unlock_at"`
	State     CapsuleState `json:"state"`
	OpenedAt  *time.Time   `json:"opened_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// Unlockable reports whether the capsule may transition Locked -> Opened at now.
func (c Capsule) Unlockable(now time.Time) bool {
	return !now.Before(c.UnlockAt)
}

// Expired reports whether an opened capsule's retention window has elapsed at now.
// A locked capsule never expires.
func (c Capsule) Expired(now time.Time) bool {
	if c.State != CapsuleStateOpened || c.OpenedAt == nil {
		return false
	}
	return !now.Before(c.OpenedAt.Add(OpenedRetention))
}

// LockCapsuleParams contains parameters to lock a new capsule.
type LockCapsuleParams struct {
	Username string
	Message  string
	UnlockAt time.Time
	// Image is an optional opaque blob; nil means no image.
	Image io.Reader
}
