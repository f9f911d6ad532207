package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"campspots/internal/database"
	"campspots/internal/models"
	"campspots/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetails(id int64) *models.ReservationDetails {
	return &models.ReservationDetails{
		Reservation: models.Reservation{
			ID:            id,
			SiteID:        1,
			CustomerName:  "Ada Lovelace",
			CustomerEmail: "ada@example.com",
			ArrivalDate:   time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC),
			DepartureDate: time.Date(2024, 7, 12, 0, 0, 0, 0, time.UTC),
			Nights:        2,
			TotalAmount:   5000,
			Currency:      models.DefaultCurrency,
			Status:        models.StatusPending,
			PaymentStatus: models.PaymentPending,
		},
		CampgroundName: "Pine Hollow",
		SiteNumber:     "1",
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, 1, testDetails(1)))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Zero(t, retryCount)
	assert.False(t, nextRetry.Valid)
	assert.Equal(t, 1, sheets.upsertCalls)
	assert.Equal(t, "Pine Hollow", sheets.lastUpsert.CampgroundName)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("quota exceeded")}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, 2, testDetails(2)))

	task, ok := worker.tryLocalQueue()
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()))

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "task must wait for its retry time")
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sheets := &fakeSheets{err: errors.New("fatal")}
	worker := NewSheetsWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)

	ctx := context.Background()
	require.NoError(t, worker.EnqueueTask(ctx, TaskUpsert, 3, testDetails(3)))
	task, ok := worker.tryRedis(ctx)
	require.True(t, ok)
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	dead, err := mr.List(worker.deadLetterKey)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	var deadTask models.SyncTask
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &deadTask))
	assert.Equal(t, int64(3), deadTask.ReservationID)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, failed, 1)
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: TaskUpsert, ReservationID: 9, Payload: "{", Status: models.SyncStatusPending}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	worker.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestSheetsWorkerHandleSheetTask(t *testing.T) {
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(nil, sheets, nil, RetryPolicy{MaxRetries: 3}, nil)
	ctx := context.Background()

	t.Run("Upsert", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{Reservation: testDetails(1)})
		require.NoError(t, err)
		assert.Equal(t, 1, sheets.upsertCalls)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		err := worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{
			ReservationID: 123, Status: models.StatusConfirmed, PaymentStatus: models.PaymentPaid,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, sheets.statusCalls)
		assert.Equal(t, models.PaymentPaid, sheets.lastPaymentStatus)
	})

	t.Run("Missing", func(t *testing.T) {
		assert.Error(t, worker.handleSheetTask(ctx, TaskUpsert, sheetTaskPayload{}))
		assert.Error(t, worker.handleSheetTask(ctx, TaskUpdateStatus, sheetTaskPayload{ReservationID: 1}))
		assert.Error(t, worker.handleSheetTask(ctx, "delete", sheetTaskPayload{ReservationID: 1}))
	})
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5))
	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(0))
}

func TestSheetsWorkerEnqueueTask(t *testing.T) {
	db := newTestDB(t)
	worker := NewSheetsWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	t.Run("StatusPayload", func(t *testing.T) {
		d := testDetails(5)
		d.Status = models.StatusCancelled
		d.PaymentStatus = models.PaymentCancelled
		require.NoError(t, worker.EnqueueTask(ctx, TaskUpdateStatus, 5, d))

		task, ok := worker.tryLocalQueue()
		require.True(t, ok)
		payload, err := worker.decodePayload(task.Payload)
		require.NoError(t, err)
		assert.Nil(t, payload.Reservation)
		assert.Equal(t, models.StatusCancelled, payload.Status)
		assert.Equal(t, models.PaymentCancelled, payload.PaymentStatus)
	})

	t.Run("Invalid", func(t *testing.T) {
		assert.Error(t, worker.EnqueueTask(ctx, "", 1, testDetails(1)))
		assert.Error(t, worker.EnqueueTask(ctx, TaskUpsert, 0, testDetails(1)))
		assert.Error(t, worker.EnqueueTask(ctx, TaskUpsert, 1, nil))
		assert.Error(t, worker.EnqueueTask(ctx, "delete", 1, testDetails(1)))
	})
}

func TestSheetsWorkerStartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	worker := NewSheetsWorker(db, sheets, nil, RetryPolicy{}, nil)
	worker.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persisted but never queued in memory, so only polling finds it.
	task := models.SyncTask{TaskType: TaskUpsert, ReservationID: 8, Status: models.SyncStatusPending}
	raw, err := json.Marshal(sheetTaskPayload{ReservationID: 8, Reservation: testDetails(8)})
	require.NoError(t, err)
	task.Payload = string(raw)
	require.NoError(t, db.CreateSyncTask(ctx, &task))

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return sheets.upserts() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
}

type fakeExpirer struct {
	calls  int
	report *service.ExpiryReport
	err    error
}

func (f *fakeExpirer) ExpireStalePending(ctx context.Context, now time.Time) (*service.ExpiryReport, error) {
	f.calls++
	return f.report, f.err
}

func TestExpirySweeper(t *testing.T) {
	logger := zerolog.New(io.Discard)
	ctx := context.Background()

	ok := &fakeExpirer{report: &service.ExpiryReport{Examined: 3, Expired: 2, Skipped: 1}}
	sweeper := NewExpirySweeper(ok, time.Minute, &logger)
	report := sweeper.Sweep(ctx)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, ok.calls)

	failing := &fakeExpirer{err: errors.New("database is locked")}
	assert.Nil(t, NewExpirySweeper(failing, 0, &logger).Sweep(ctx))
}

// Helpers

type fakeSheets struct {
	mu                sync.Mutex
	err               error
	upsertCalls       int
	statusCalls       int
	lastUpsert        *models.ReservationDetails
	lastPaymentStatus string
}

func (f *fakeSheets) UpsertReservation(ctx context.Context, r *models.ReservationDetails) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastUpsert = r
	return f.err
}

func (f *fakeSheets) UpdateReservationStatus(ctx context.Context, id int64, status, paymentStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastPaymentStatus = paymentStatus
	return f.err
}

func (f *fakeSheets) upserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "worker.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	row := db.QueryRowContext(context.Background(), `SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id)
	require.NoError(t, row.Scan(&status, &retryCount, &nextRetry))
	return status, retryCount, nextRetry
}
