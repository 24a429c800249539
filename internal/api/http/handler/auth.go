package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// AccountService defines the authenticate operation.
type AccountService interface {
	Authenticate(ctx context.Context, username, credential string) (model.Account, model.AuthOutcome, error)
}

// Auth handles the login/auto-register endpoint.
type Auth struct {
	accountService AccountService
	tokenManager   model.TokenManager
	logger         *logger.Logger
}

// NewAuth creates a new Auth handler.
func NewAuth(accountService AccountService, tokenManager model.TokenManager, logger *logger.Logger) *Auth {
	return &Auth{
		accountService: accountService,
		tokenManager:   tokenManager,
		logger:         logger,
	}
}

type authRequest struct {
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

type authResponse struct {
	Username string `json:"username"`
	Outcome  string `json:"outcome"`
	Token    string `json:"token"`
}

// Authenticate logs a user in, registering the account if the username is
// unknown, and returns a session token plus the created/existing outcome tag.
func (h *Auth) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	account, outcome, err := h.accountService.Authenticate(r.Context(), req.Username, req.Credential)
	if err != nil {
		h.logger.Info("Auth handler: authentication failed",
			"username", req.Username,
			"error", err.Error())
		handleError(w, err)
		return
	}

	token, err := h.tokenManager.GenerateSessionToken(account.Username)
	if err != nil {
		h.logger.Error("Auth handler: failed to generate session token",
			"username", account.Username,
			"error", err.Error())
		handleError(w, err)
		return
	}

	status := http.StatusOK
	if outcome == model.AuthOutcomeCreated {
		status = http.StatusCreated
	}

	respondJSON(w, status, authResponse{
		Username: account.Username,
		Outcome:  string(outcome),
		Token:    token,
	})
}
