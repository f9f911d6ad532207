package models

import "time"

// SyncTask represents a queued synchronization job for the reservations sheet.
type SyncTask struct {
	ID            int64      `json:"id"`
	TaskType      string     `json:"task_type"`
	ReservationID int64      `json:"reservation_id"`
	Payload       string     `json:"payload"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	LastError     *string    `json:"last_error"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	NextRetryAt   *time.Time `json:"next_retry_at"`
}

// IdempotencyRecord is the stored outcome of a booking request keyed by the
// client supplied Idempotency-Key header. Fingerprint identifies the request
// the key was first used with.
type IdempotencyRecord struct {
	Key           string    `json:"key"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	ReservationID int64     `json:"reservation_id"`
	RedirectURL   string    `json:"redirect_url"`
	CreatedAt     time.Time `json:"created_at"`
}
