package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/courier/internal/errors"
	"github.com/allisson/courier/internal/operation/domain"
	"github.com/allisson/courier/internal/testutil"
)

func newTestOperation(userID int64, chatID *int64) *domain.Operation {
	return domain.NewOperation(uuid.Must(uuid.NewV7()), "message_delivery", userID, chatID)
}

func TestNewPostgreSQLOperationRepository(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}

func TestPostgreSQLOperationRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)
	ctx := context.Background()

	chatID := int64(7)
	op := newTestOperation(9, &chatID)
	op.OperationData = json.RawMessage(`{"message_id":42}`)

	err := repo.Create(ctx, op)
	assert.NoError(t, err)

	got, err := repo.Get(ctx, op.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, op.CorrelationID, got.CorrelationID)
	assert.Equal(t, "message_delivery", got.OperationType)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.Equal(t, 0, got.Progress)
	require.NotNil(t, got.ChatID)
	assert.Equal(t, int64(7), *got.ChatID)
	assert.JSONEq(t, `{"message_id":42}`, string(got.OperationData))
	assert.Nil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
}

func TestPostgreSQLOperationRepository_Get_NotFound(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)

	_, err := repo.Get(context.Background(), uuid.Must(uuid.NewV7()))
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgreSQLOperationRepository_Update(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)
	ctx := context.Background()

	op := newTestOperation(9, nil)
	require.NoError(t, repo.Create(ctx, op))

	op.MarkInProgress(time.Now().UTC())
	require.NoError(t, op.SetProgress(50, "publishing message"))
	require.NoError(t, repo.Update(ctx, op))

	got, err := repo.Get(ctx, op.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, got.Status)
	assert.Equal(t, 50, got.Progress)
	require.NotNil(t, got.StatusMessage)
	assert.Equal(t, "publishing message", *got.StatusMessage)
	assert.NotNil(t, got.StartedAt)

	op.Complete(json.RawMessage(`{"delivered_to_ids":[1,2]}`), false, time.Now().UTC())
	require.NoError(t, repo.Update(ctx, op))

	got, err = repo.Get(ctx, op.CorrelationID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)
	assert.JSONEq(t, `{"delivered_to_ids":[1,2]}`, string(got.Result))
	assert.NotNil(t, got.CompletedAt)
}

func TestPostgreSQLOperationRepository_Update_NotFound(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)

	op := newTestOperation(9, nil)
	err := repo.Update(context.Background(), op)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestPostgreSQLOperationRepository_ListByChat(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)
	ctx := context.Background()

	chatID := int64(7)
	otherChatID := int64(8)
	require.NoError(t, repo.Create(ctx, newTestOperation(9, &chatID)))
	require.NoError(t, repo.Create(ctx, newTestOperation(9, &chatID)))
	require.NoError(t, repo.Create(ctx, newTestOperation(9, &otherChatID)))
	require.NoError(t, repo.Create(ctx, newTestOperation(9, nil)))

	operations, err := repo.ListByChat(ctx, chatID)
	require.NoError(t, err)
	require.Len(t, operations, 2)
	for _, op := range operations {
		require.NotNil(t, op.ChatID)
		assert.Equal(t, chatID, *op.ChatID)
	}
}

func TestPostgreSQLOperationRepository_ListByUser(t *testing.T) {
	db := testutil.SetupPostgresDB(t)
	defer testutil.TeardownDB(t, db)
	defer testutil.CleanupPostgresDB(t, db)

	repo := NewPostgreSQLOperationRepository(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newTestOperation(9, nil)))
	}
	require.NoError(t, repo.Create(ctx, newTestOperation(10, nil)))

	page, err := repo.ListByUser(ctx, 9, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.ListByUser(ctx, 9, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)

	count, err := repo.CountByUser(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
