package service

import (
	"context"
	"fmt"

	"github.com/capsulevault/capsule-server/internal/logger"
	"github.com/capsulevault/capsule-server/internal/model"
)

// Account implements authentication with auto-registration: the first
// successful login for an unknown username creates the account.
type Account struct {
	accountStore model.AccountStore
	logger       *logger.Logger
}

func NewAccount(accountStore model.AccountStore, logger *logger.Logger) *Account {
	return &Account{
		accountStore: accountStore,
		logger:       logger,
	}
}

// Authenticate resolves username+credential to an account. Unknown usernames
// are registered with the given credential; known usernames must present the
// stored credential verbatim. The outcome tag tells the two flows apart.
func (s *Account) Authenticate(ctx context.Context, username, credential string) (model.Account, model.AuthOutcome, error) {
	if username == "" || credential == "" {
		return model.Account{}, "", fmt.Errorf("username and credential are required: %w", model.ErrInvalidInput)
	}

	account := model.Account{
		Username:      username,
		Credential:    credential,
		NextCapsuleID: 1,
		Capsules:      []model.Capsule{},
	}

	stored, created, err := s.accountStore.CreateIfAbsent(ctx, account)
	if err != nil {
		s.logger.Error("Account service: failed to create or fetch account",
			"username", username,
			"error", err.Error())
		return model.Account{}, "", fmt.Errorf("failed to create or fetch account: %w", err)
	}

	if created {
		s.logger.Info("Account service: account registered",
			"username", username)
		return stored, model.AuthOutcomeCreated, nil
	}

	if stored.Credential != credential {
		s.logger.Info("Account service: credential mismatch",
			"username", username)
		return model.Account{}, "", model.ErrInvalidCredential
	}

	return stored, model.AuthOutcomeExisting, nil
}
