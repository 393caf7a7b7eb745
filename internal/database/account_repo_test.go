package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAccountDuplicateEmail(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	testAccount(t, db)

	dup := testAccountModel()
	err := db.CreateAccount(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestUpdateAccountLastSynced(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	account := testAccount(t, db)
	require.Nil(t, account.LastSyncedAt)

	at := time.Now()
	require.NoError(t, db.UpdateAccountLastSynced(ctx, account.ID, at))

	reloaded, err := db.GetAccountByID(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastSyncedAt)
	assert.WithinDuration(t, at, *reloaded.LastSyncedAt, time.Second)
}

func TestClearPrimaryAccount(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first := testAccountModel()
	first.IsPrimary = true
	require.NoError(t, db.CreateAccount(ctx, first))

	second := testAccountModel()
	second.Email = "second@acme.it"
	require.NoError(t, db.CreateAccount(ctx, second))

	require.NoError(t, db.ClearPrimaryAccount(ctx, first.OwnerID))

	reloaded, err := db.GetAccountByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsPrimary)
}
