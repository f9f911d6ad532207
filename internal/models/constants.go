package models

// Reservation status values.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Reservation payment status values.
const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentRefunded  = "refunded"
	PaymentFailed    = "failed"
	PaymentCancelled = "cancelled"
)

const (
	CreatedByCustomer = "customer"
	CreatedByAdmin    = "admin"
	CreatedByPhone    = "phone"
)

const (
	// ConfirmationCodePrefix is prepended to the zero padded reservation id.
	ConfirmationCodePrefix = "BS"

	DefaultMaxOccupancy = 6
	DefaultMaxVehicles  = 2

	// DefaultPricePerNight is used for seeded sites without an explicit price.
	DefaultPricePerNight Cents = 3500

	DefaultCurrency = "usd"

	// PaymentIDNoCharge is recorded for bookings confirmed without a payment session.
	PaymentIDNoCharge = "no-charge"

	// RecentReservationsLimit is the size of the dashboard "recent" list.
	RecentReservationsLimit = 10

	// SyncQueueBatchSize is how many sync tasks a worker pulls per poll.
	SyncQueueBatchSize = 20
)

// Sync task status values stored in sync_queue.status.
const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// IsValidStatus reports whether s is a known reservation status.
func IsValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}
