package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/message/domain"
	"github.com/allisson/courier/internal/testutil"
)

func TestNewPostgreSQLMessageRepository(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLMessageRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestPostgreSQLMessageRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLMessageRepository(db)
	ctx := context.Background()

	message := domain.NewMessage(42, 7, 9, "encrypted-body")
	err := repo.Create(ctx, message)
	assert.NoError(t, err)

	got, err := repo.Get(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got.MessageID)
	assert.Equal(t, int64(7), got.ChatID)
	assert.Equal(t, int64(9), got.SenderID)
	assert.Equal(t, "encrypted-body", got.Body)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPostgreSQLMessageRepository_Get_NotFound(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLMessageRepository(db)

	_, err := repo.Get(context.Background(), 999)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgreSQLMessageRepository_ListByChat(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLMessageRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, domain.NewMessage(1, 7, 9, "first")))
	require.NoError(t, repo.Create(ctx, domain.NewMessage(2, 7, 9, "second")))
	require.NoError(t, repo.Create(ctx, domain.NewMessage(3, 8, 9, "other chat")))

	messages, err := repo.ListByChat(ctx, 7, 10)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	for _, message := range messages {
		assert.Equal(t, int64(7), message.ChatID)
	}

	limited, err := repo.ListByChat(ctx, 7, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
