package model

import (
	"context"
	"time"
)

// AccountStore defines persistence operations for accounts. An account record
// is read and written whole: every mutation replaces the full capsule
// collection so durable state never diverges from what the caller observed.
type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (Account, error)
	// CreateIfAbsent inserts the account unless the username is taken.
	// It returns the stored record and whether this call created it.
	CreateIfAbsent(ctx context.Context, account Account) (Account, bool, error)
	// Save writes the full account record back to durable storage.
	Save(ctx context.Context, account Account) (Account, error)
}

// Account represents a stored account owning an ordered capsule collection.
type Account struct {
	Username   string
	Credential string
	// NextCapsuleID is the id assigned to the next locked capsule.
	// Ids are per-account and strictly increasing, preserving creation order.
	NextCapsuleID int64
	Capsules      []Capsule
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AuthOutcome tags the result of an authenticate call so callers can
// distinguish new-account flows from returning-user flows.
type AuthOutcome string

const (
	// AuthOutcomeCreated means the username was unknown and the account was auto-registered.
	AuthOutcomeCreated AuthOutcome = "created"
	// AuthOutcomeExisting means the username was known and the credential matched.
	AuthOutcomeExisting AuthOutcome = "existing"
)
