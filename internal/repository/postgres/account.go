package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/capsulevault/capsule-server/internal/model"
)

var _ model.AccountStore = (*AccountRepository)(nil)

// AccountRepository persists accounts as single rows with the capsule
// collection serialized to JSONB, so a record is always read and written whole.
type AccountRepository struct {
	db *Connection
}

func NewAccountRepository(db *Connection) *AccountRepository {
	return &AccountRepository{
		db: db,
	}
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (model.Account, error) {
	query := `SELECT username, credential, next_capsule_id, capsules, created_at, updated_at
			  FROM accounts WHERE username = $1`

	account, err := r.scanAccount(r.db.QueryRow(ctx, query, username))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to get account by username: %w", err)
	}

	return account, nil
}

func (r *AccountRepository) CreateIfAbsent(ctx context.Context, account model.Account) (model.Account, bool, error) {
	capsules, err := marshalCapsules(account.Capsules)
	if err != nil {
		return model.Account{}, false, err
	}

	// Insert-or-skip in a single statement so two concurrent calls for the same
	// username cannot both create the record.
	query := `INSERT INTO accounts (username, credential, next_capsule_id, capsules)
			  VALUES ($1, $2, $3, $4)
			  ON CONFLICT (username) DO NOTHING
			  RETURNING username, credential, next_capsule_id, capsules, created_at, updated_at`

	saved, err := r.scanAccount(r.db.QueryRow(ctx, query, account.Username, account.Credential, account.NextCapsuleID, capsules))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			existing, getErr := r.GetByUsername(ctx, account.Username)
			if getErr != nil {
				return model.Account{}, false, getErr
			}
			return existing, false, nil
		}
		return model.Account{}, false, fmt.Errorf("failed to create account: %w", err)
	}

	return saved, true, nil
}

func (r *AccountRepository) Save(ctx context.Context, account model.Account) (model.Account, error) {
	capsules, err := marshalCapsules(account.Capsules)
	if err != nil {
		return model.Account{}, err
	}

	query := `UPDATE accounts
			  SET next_capsule_id = $2, capsules = $3, updated_at = NOW()
			  WHERE username = $1
			  RETURNING username, credential, next_capsule_id, capsules, created_at, updated_at`

	saved, err := r.scanAccount(r.db.QueryRow(ctx, query, account.Username, account.NextCapsuleID, capsules))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, model.ErrNotFound
		}
		return model.Account{}, fmt.Errorf("failed to save account: %w", err)
	}

	return saved, nil
}

func (r *AccountRepository) scanAccount(row pgx.Row) (model.Account, error) {
	var account model.Account
	var capsules []byte

	err := row.Scan(
		&account.Username, &account.Credential, &account.NextCapsuleID, &capsules,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return model.Account{}, err
	}

	if err := json.Unmarshal(capsules, &account.Capsules); err != nil {
		return model.Account{}, fmt.Errorf("failed to unmarshal capsules: %w", err)
	}

	return account, nil
}

func marshalCapsules(capsules []model.Capsule) ([]byte, error) {
	if capsules == nil {
		capsules = []model.Capsule{}
	}
	data, err := json.Marshal(capsules)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal capsules: %w", err)
	}
	return data, nil
}
