package database

import (
	"context"
	"testing"
	"time"

	"campspots/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncQueueCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:      "upsert",
		ReservationID: 100,
		Payload:       `{"id": 100}`,
		Status:        models.SyncStatusPending,
	}
	require.NoError(t, db.CreateSyncTask(ctx, task))

	tasks, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, int64(100), tasks[0].ReservationID)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, tasks[0].ID, models.SyncStatusCompleted, "", nil))

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	errMsg := "sheet quota exceeded"
	require.NoError(t, db.CreateSyncTask(ctx, &models.SyncTask{
		TaskType: "upsert", ReservationID: 101, Status: models.SyncStatusFailed, LastError: &errMsg,
	}))
	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, errMsg, *failed[0].LastError)

	retry := &models.SyncTask{TaskType: "update_status", ReservationID: 102, Status: models.SyncStatusPending}
	require.NoError(t, db.CreateSyncTask(ctx, retry))

	future := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, retry.ID, models.SyncStatusRetry, "temporary error", &future))

	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	for _, task := range tasks {
		assert.NotEqual(t, retry.ID, task.ID, "task with future retry should not be pending")
	}

	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, retry.ID, models.SyncStatusRetry, "temporary error", &past))
	tasks, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, retry.ID, tasks[0].ID)
	assert.Equal(t, 2, tasks[0].RetryCount)
}
