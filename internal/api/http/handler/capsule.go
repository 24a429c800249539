package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
	"github.com/capsulevault/capsule-server/internal/scheduler"
)

// maxImageMemory bounds in-memory buffering of multipart lock requests.
const maxImageMemory = 32 << 20

// CapsuleService defines business operations for capsule management.
type CapsuleService interface {
	ListCapsules(ctx context.Context, username string) ([]model.Capsule, error)
	LockCapsule(ctx context.Context, params model.LockCapsuleParams) (model.Capsule, error)
	OpenCapsule(ctx context.Context, username string, capsuleID int64) (model.Capsule, error)
	PruneExpired(ctx context.Context, username string) (int, error)
	GetImage(ctx context.Context, username string, capsuleID int64) (io.ReadCloser, error)
}

// LifecycleScheduler starts per-account tick sessions for live display updates.
type LifecycleScheduler interface {
	Start(ctx context.Context, username string, notify scheduler.NotifyFunc) *scheduler.Session
}

// Capsule handles HTTP endpoints for capsules.
type Capsule struct {
	capsuleService CapsuleService
	scheduler      LifecycleScheduler
	contextManager model.ContextManager
	logger         *logger.Logger
	now            func() time.Time
}

// NewCapsule creates a new Capsule handler.
func NewCapsule(
	capsuleService CapsuleService,
	lifecycleScheduler LifecycleScheduler,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Capsule {
	return &Capsule{
		capsuleService: capsuleService,
		scheduler:      lifecycleScheduler,
		contextManager: contextManager,
		logger:         logger,
		now:            time.Now,
	}
}

type lockResponse struct {
	ID       int64  `json:"id"`
	UnlockAt string `json:"unlock_at"`
}

type openResponse struct {
	ID       int64  `json:"id"`
	State    string `json:"state"`
	Message  string `json:"message"`
	HasImage bool   `json:"has_image"`
	OpenedAt string `json:"opened_at"`
}

// List returns the account's capsules with their derived display state.
func (h *Capsule) List(w http.ResponseWriter, r *http.Request) {
	username, ok := h.contextManager.GetUsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	capsules, err := h.capsuleService.ListCapsules(r.Context(), username)
	if err != nil {
		h.logger.Error("Capsule handler: list failed",
			"username", username,
			"error", err.Error())
		handleError(w, err)
		return
	}

	now := h.now()
	views := make([]scheduler.CapsuleView, 0, len(capsules))
	for i, capsule := range capsules {
		views = append(views, scheduler.BuildView(capsule, i+1, now))
	}

	respondJSON(w, http.StatusOK, views)
}

// Lock creates a new locked capsule from a multipart form with fields
// "message", "unlock_at" (RFC3339) and an optional "image" file.
func (h *Capsule) Lock(w http.ResponseWriter, r *http.Request) {
	username, ok := h.contextManager.GetUsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	if err := r.ParseMultipartForm(maxImageMemory); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart form"})
		return
	}

	unlockAt, err := time.Parse(time.RFC3339, r.FormValue("unlock_at"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid unlock_at, expected RFC3339"})
		return
	}

	params := model.LockCapsuleParams{
		Username: username,
		Message:  r.FormValue("message"),
		UnlockAt: unlockAt,
	}

	if file, _, err := r.FormFile("image"); err == nil {
		defer file.Close()
		params.Image = file
	}

	capsule, err := h.capsuleService.LockCapsule(r.Context(), params)
	if err != nil {
		h.logger.Error("Capsule handler: lock failed",
			"username", username,
			"error", err.Error())
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, lockResponse{
		ID:       capsule.ID,
		UnlockAt: capsule.UnlockAt.Format(time.RFC3339),
	})
}

// Open transitions a capsule from locked to opened and returns its content.
func (h *Capsule) Open(w http.ResponseWriter, r *http.Request) {
	username, ok := h.contextManager.GetUsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	capsuleID, err := capsuleIDFromRequest(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid capsule id"})
		return
	}

	capsule, err := h.capsuleService.OpenCapsule(r.Context(), username, capsuleID)
	if err != nil {
		h.logger.Info("Capsule handler: open rejected",
			"username", username,
			"capsule_id", capsuleID,
			"error", err.Error())
		handleError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, openResponse{
		ID:       capsule.ID,
		State:    string(capsule.State),
		Message:  capsule.Message,
		HasImage: capsule.ImageKey != "",
		OpenedAt: capsule.OpenedAt.Format(time.RFC3339),
	})
}

// Image streams the opened capsule's image blob.
func (h *Capsule) Image(w http.ResponseWriter, r *http.Request) {
	username, ok := h.contextManager.GetUsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	capsuleID, err := capsuleIDFromRequest(r)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid capsule id"})
		return
	}

	reader, err := h.capsuleService.GetImage(r.Context(), username, capsuleID)
	if err != nil {
		handleError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		h.logger.Error("Capsule handler: image stream interrupted",
			"username", username,
			"capsule_id", capsuleID,
			"error", err.Error())
	}
}

// Watch streams one display snapshot per scheduler tick as server-sent
// events. Closing the request cancels the underlying session, so no further
// ticks fire for it.
func (h *Capsule) Watch(w http.ResponseWriter, r *http.Request) {
	username, ok := h.contextManager.GetUsernameFromContext(r.Context())
	if !ok {
		respondJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snapshots := make(chan scheduler.Snapshot, 8)
	session := h.scheduler.Start(r.Context(), username, func(snapshot scheduler.Snapshot) {
		// A slow client skips ticks; the next snapshot supersedes anyway.
		select {
		case snapshots <- snapshot:
		default:
		}
	})
	defer session.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case snapshot := <-snapshots:
			payload, err := json.Marshal(snapshot)
			if err != nil {
				h.logger.Error("Capsule handler: failed to marshal snapshot",
					"username", username,
					"error", err.Error())
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func capsuleIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}
