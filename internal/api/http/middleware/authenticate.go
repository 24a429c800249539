package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// TokenParser resolves the username from bearer tokens.
type TokenParser interface {
	ParseSessionToken(token string) (string, error)
}

// Authenticate validates bearer tokens and injects the username into the
// request context.
type Authenticate struct {
	tokens         TokenParser
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokens TokenParser, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokens: tokens, contextManager: contextManager, logger: logger}
}

// Handle parses the Authorization header, validates the token and passes the
// request on with the username in context. Missing or invalid tokens get 401.
func (m *Authenticate) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tokenString == "" || tokenString == r.Header.Get("Authorization") {
			unauthorized(w, "missing authorization token")
			return
		}

		username, err := m.tokens.ParseSessionToken(tokenString)
		if err != nil {
			m.logger.Debug("Authenticate middleware: token rejected",
				"error", err.Error())
			unauthorized(w, "invalid authorization token")
			return
		}

		ctx := m.contextManager.SetUsernameToContext(r.Context(), username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
