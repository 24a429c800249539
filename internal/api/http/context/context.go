package context

import (
	"context"

	"github.com/capsulevault/capsule-server/internal/model"
)

type contextKey string

// usernameKey is the context key under which the authenticated username is stored.
const usernameKey contextKey = "username"

var _ model.ContextManager = (*Manager)(nil)

// Manager stores and retrieves the authenticated username in request contexts.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetUsernameToContext returns a child context carrying the username.
func (m *Manager) SetUsernameToContext(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameKey, username)
}

// GetUsernameFromContext retrieves the username set by the auth middleware.
// The boolean reports whether a non-empty username was present.
func (m *Manager) GetUsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameKey).(string)
	if !ok || username == "" {
		return "", false
	}
	return username, true
}
