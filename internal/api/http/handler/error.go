package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capsulevault/capsule-server/internal/model"
)

type errorResponse struct {
	Error string `json:"error"`
}

// handleError maps model errors to HTTP statuses with a JSON body. Unknown
// errors are masked as internal server errors.
func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: model.ErrInvalidInput.Error()})
	case errors.Is(err, model.ErrInvalidCredential):
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: model.ErrInvalidCredential.Error()})
	case errors.Is(err, model.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorResponse{Error: model.ErrNotFound.Error()})
	case errors.Is(err, model.ErrNotYetUnlockable):
		respondJSON(w, http.StatusConflict, errorResponse{Error: model.ErrNotYetUnlockable.Error()})
	case errors.Is(err, model.ErrAlreadyOpened):
		respondJSON(w, http.StatusConflict, errorResponse{Error: model.ErrAlreadyOpened.Error()})
	default:
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
