package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// Capsule implements the capsule store: create, list and the two time-guarded
// transitions (open, prune). Every mutation writes the owning account record
// back whole before returning.
type Capsule struct {
	accountStore model.AccountStore
	storage      model.Storage
	logger       *logger.Logger
	now          func() time.Time
}

func NewCapsule(
	accountStore model.AccountStore,
	storage model.Storage,
	logger *logger.Logger,
) *Capsule {
	return &Capsule{
		accountStore: accountStore,
		storage:      storage,
		logger:       logger,
		now:          time.Now,
	}
}

// ListCapsules returns the account's capsules in creation order.
func (s *Capsule) ListCapsules(ctx context.Context, username string) ([]model.Capsule, error) {
	account, err := s.accountStore.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account.Capsules, nil
}

// LockCapsule validates and appends a new locked capsule. The unlock instant
// must be strictly in the future and the message must be non-empty.
func (s *Capsule) LockCapsule(ctx context.Context, params model.LockCapsuleParams) (model.Capsule, error) {
	if params.Message == "" {
		return model.Capsule{}, fmt.Errorf("message is required: %w", model.ErrInvalidInput)
	}

	now := s.now()
	if !params.UnlockAt.After(now) {
		return model.Capsule{}, fmt.Errorf("unlock instant must be in the future: %w", model.ErrInvalidInput)
	}

	account, err := s.accountStore.GetByUsername(ctx, params.Username)
	if err != nil {
		return model.Capsule{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	capsule := model.Capsule{
		ID:        account.NextCapsuleID,
		Message:   params.Message,
		UnlockAt:  params.UnlockAt,
		State:     model.CapsuleStateLocked,
		CreatedAt: now,
	}

	if params.Image != nil {
		key := s.generateImageKey(params.Username, capsule.ID)
		if err := s.storage.Upload(ctx, key, params.Image); err != nil {
			return model.Capsule{}, fmt.Errorf("failed to upload image: %w", err)
		}
		capsule.ImageKey = key
	}

	account.NextCapsuleID++
	account.Capsules = append(account.Capsules, capsule)

	if _, err := s.accountStore.Save(ctx, account); err != nil {
		if capsule.ImageKey != "" {
			if delErr := s.storage.Delete(ctx, capsule.ImageKey); delErr != nil {
				s.logger.Error("Capsule service: failed to delete orphaned image",
					"key", capsule.ImageKey,
					"error", delErr.Error())
			}
		}
		return model.Capsule{}, fmt.Errorf("failed to save account: %w", err)
	}

	s.logger.Info("Capsule service: capsule locked",
		"username", params.Username,
		"capsule_id", capsule.ID,
		"unlock_at", capsule.UnlockAt)

	return capsule, nil
}

// OpenCapsule performs the Locked -> Opened transition. Opening is rejected
// before the unlock instant and on a capsule that is already opened, so a
// repeated open can never reset the retention clock.
func (s *Capsule) OpenCapsule(ctx context.Context, username string, capsuleID int64) (model.Capsule, error) {
	account, err := s.accountStore.GetByUsername(ctx, username)
	if err != nil {
		return model.Capsule{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	idx := findCapsule(account.Capsules, capsuleID)
	if idx < 0 {
		return model.Capsule{}, model.ErrNotFound
	}

	capsule := account.Capsules[idx]
	now := s.now()

	if !capsule.Unlockable(now) {
		return model.Capsule{}, model.ErrNotYetUnlockable
	}
	if capsule.State == model.CapsuleStateOpened {
		return model.Capsule{}, model.ErrAlreadyOpened
	}

	openedAt := now
	capsule.State = model.CapsuleStateOpened
	capsule.OpenedAt = &openedAt
	account.Capsules[idx] = capsule

	if _, err := s.accountStore.Save(ctx, account); err != nil {
		return model.Capsule{}, fmt.Errorf("failed to save account: %w", err)
	}

	s.logger.Info("Capsule service: capsule opened",
		"username", username,
		"capsule_id", capsule.ID)

	return capsule, nil
}

// PruneExpired removes every opened capsule whose retention window has
// elapsed and returns how many were removed. A call with nothing due writes
// nothing, so repeated calls are safe.
func (s *Capsule) PruneExpired(ctx context.Context, username string) (int, error) {
	account, err := s.accountStore.GetByUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("failed to get account by username: %w", err)
	}

	now := s.now()
	kept := account.Capsules[:0:0]
	var removed []model.Capsule
	for _, capsule := range account.Capsules {
		if capsule.Expired(now) {
			removed = append(removed, capsule)
			continue
		}
		kept = append(kept, capsule)
	}

	if len(removed) == 0 {
		return 0, nil
	}

	account.Capsules = kept
	if _, err := s.accountStore.Save(ctx, account); err != nil {
		return 0, fmt.Errorf("failed to save account: %w", err)
	}

	// Image blobs are deleted only after the durable write; failures are
	// logged and never undo the prune.
	for _, capsule := range removed {
		if capsule.ImageKey == "" {
			continue
		}
		if err := s.storage.Delete(ctx, capsule.ImageKey); err != nil {
			s.logger.Error("Capsule service: failed to delete image of pruned capsule",
				"username", username,
				"capsule_id", capsule.ID,
				"key", capsule.ImageKey,
				"error", err.Error())
		}
	}

	s.logger.Info("Capsule service: pruned expired capsules",
		"username", username,
		"count", len(removed))

	return len(removed), nil
}

// GetImage streams the image blob of an opened capsule. Content stays sealed
// until the capsule is opened.
func (s *Capsule) GetImage(ctx context.Context, username string, capsuleID int64) (io.ReadCloser, error) {
	account, err := s.accountStore.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by username: %w", err)
	}

	idx := findCapsule(account.Capsules, capsuleID)
	if idx < 0 {
		return nil, model.ErrNotFound
	}

	capsule := account.Capsules[idx]
	if capsule.State != model.CapsuleStateOpened {
		return nil, model.ErrNotYetUnlockable
	}
	if capsule.ImageKey == "" {
		return nil, model.ErrNotFound
	}

	reader, err := s.storage.Download(ctx, capsule.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}

	return reader, nil
}

func (s *Capsule) generateImageKey(username string, capsuleID int64) string {
	return fmt.Sprintf("user-%s/capsule-%d/image-%s", username, capsuleID, uuid.NewString())
}

func findCapsule(capsules []model.Capsule, capsuleID int64) int {
	for i, capsule := range capsules {
		if capsule.ID == capsuleID {
			return i
		}
	}
	return -1
}
