package model

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredential is returned on login with a wrong credential for an existing username.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrInvalidInput is returned when a lock request has an empty message or a non-future unlock instant.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotYetUnlockable is returned when a capsule is opened before its unlock instant.
	ErrNotYetUnlockable = errors.New("capsule is not yet unlockable")
	// ErrAlreadyOpened is returned when an already-opened capsule is opened again.
	ErrAlreadyOpened = errors.New("capsule is already opened")
)
