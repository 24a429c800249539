package postgres

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capsulevault/capsule-server/internal/model"
)

func TestNewAccountRepository(t *testing.T) {
	db := &Connection{}
	repo := NewAccountRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestMarshalCapsules_NilBecomesEmptyArray(t *testing.T) {
	data, err := marshalCapsules(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestMarshalCapsules_RoundTrip(t *testing.T) {
	openedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	capsules := []model.Capsule{
		{
			ID:       1,
			Message:  "sealed until spring",
			UnlockAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			State:    model.CapsuleStateLocked,
		},
		{
			ID:       2,
			Message:  "already read",
			ImageKey: "user-alice/capsule-2/image-x",
			UnlockAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			State:    model.CapsuleStateOpened,
			OpenedAt: &openedAt,
		},
	}

	data, err := marshalCapsules(capsules)
	require.NoError(t, err)

	var decoded []model.Capsule
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, capsules[0].ID, decoded[0].ID)
	assert.True(t, capsules[0].UnlockAt.Equal(decoded[0].UnlockAt))
	assert.Nil(t, decoded[0].OpenedAt)
	assert.Equal(t, model.CapsuleStateOpened, decoded[1].State)
	require.NotNil(t, decoded[1].OpenedAt)
	assert.True(t, openedAt.Equal(*decoded[1].OpenedAt))
}
