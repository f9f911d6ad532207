package domain

import (
	"context"
	"time"

	"campspots/internal/availability"
	"campspots/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type CatalogRepository interface {
	CreateCampground(ctx context.Context, cg *models.Campground) error
	UpdateCampground(ctx context.Context, cg *models.Campground) error
	GetCampground(ctx context.Context, id int64) (*models.Campground, error)
	ListCampgrounds(ctx context.Context, activeOnly bool) ([]*models.Campground, error)
	CountCampgrounds(ctx context.Context) (int, error)
	CreateSite(ctx context.Context, site *models.Site) error
	UpdateSite(ctx context.Context, site *models.Site) error
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	ListSites(ctx context.Context, campgroundID int64, activeOnly bool) ([]*models.Site, error)
	CreateBlockedDate(ctx context.Context, b *models.BlockedDate) error
	ListBlockedDates(ctx context.Context, from time.Time) ([]*models.BlockedDate, error)
	DeleteBlockedDate(ctx context.Context, id int64) error
}

type ReservationRepository interface {
	GetSite(ctx context.Context, id int64) (*models.Site, error)
	GetCampground(ctx context.Context, id int64) (*models.Campground, error)
	OccupiedRanges(ctx context.Context, siteID int64, window availability.DateRange) ([]availability.DateRange, error)
	CreateReservationWithLock(ctx context.Context, r *models.Reservation) error
	GetReservation(ctx context.Context, id int64) (*models.Reservation, error)
	GetReservationDetails(ctx context.Context, id int64) (*models.ReservationDetails, error)
	ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.ReservationDetails, error)
	RecentReservations(ctx context.Context, limit int) ([]*models.ReservationDetails, error)
	CountReservationsByStatus(ctx context.Context) (map[string]int, error)
	ListStalePending(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.Reservation, error)
	AttachGatewaySession(ctx context.Context, id, fromVersion int64, sessionID string) error
	ConfirmReservation(ctx context.Context, id, fromVersion int64, paymentID string) error
	CancelReservation(ctx context.Context, id, fromVersion int64) error
}

// CheckoutRequest asks the processor for a hosted payment page.
type CheckoutRequest struct {
	Amount        models.Cents
	Currency      string
	Name          string
	Description   string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
	// Reference ties the session back to a reservation id.
	Reference string
	// ExpiresAfter bounds how long the session can be paid. Zero keeps the processor default.
	ExpiresAfter time.Duration
}

type CheckoutSession struct {
	ID          string
	RedirectURL string
}

const (
	SettlementUnpaid = "unpaid"
	SettlementPaid   = "paid"
	SettlementFailed = "failed"
)

type Settlement struct {
	Status    string
	PaymentID string
	Amount    models.Cents
	Currency  string
	Reference string
}

// PaymentGateway is a hosted-checkout payment processor.
type PaymentGateway interface {
	CreatePayableSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	GetSessionSettlement(ctx context.Context, sessionID string) (*Settlement, error)
	// ExpireSession closes an open session so it can no longer be paid.
	// Expiring a session that already expired is not an error.
	ExpireSession(ctx context.Context, sessionID string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, reservationID int64, details *models.ReservationDetails) error
}

type SheetsWriter interface {
	UpsertReservation(ctx context.Context, r *models.ReservationDetails) error
	UpdateReservationStatus(ctx context.Context, reservationID int64, status, paymentStatus string) error
}

// IdempotencyStore keeps the first outcome of a keyed booking request.
// Get returns nil, nil when the key is unknown. Save never overwrites.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	Save(ctx context.Context, rec *models.IdempotencyRecord, ttl time.Duration) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}
