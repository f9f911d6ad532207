package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"campspots/internal/database"
	"campspots/internal/domain"
	"campspots/internal/gateway"
	"campspots/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lifecycle struct {
	db      *database.DB
	sandbox *gateway.Sandbox
	catalog *CatalogService
	booking *BookingService
	sites   []*models.Site
}

func newLifecycle(t *testing.T) *lifecycle {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "campspots.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	catalog := NewCatalogService(db, &logger)
	n, err := catalog.SeedCatalog(ctx, []models.CampgroundSeed{{
		Campground: models.Campground{Name: "Pine Hollow", Location: "North ridge"},
		Sites:      []models.SiteRangeSeed{{From: 1, To: 2, SiteType: "tent", PricePerNight: 2500}},
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cgs, err := catalog.ListCampgrounds(ctx, true)
	require.NoError(t, err)
	sites, err := catalog.ListSites(ctx, cgs[0].ID, true)
	require.NoError(t, err)
	require.Len(t, sites, 2)

	sandbox := gateway.NewSandbox(false)
	booking := NewBookingService(db, sandbox, nil, nil, BookingOptions{
		PendingTTL:    time.Hour,
		PublicBaseURL: "http://localhost:8080",
	}, &logger)
	booking.SetClock(func() time.Time { return testNow })

	return &lifecycle{db: db, sandbox: sandbox, catalog: catalog, booking: booking, sites: sites}
}

func (l *lifecycle) request(siteID int64, arrival, departure string) BookingRequest {
	return BookingRequest{
		SiteID:        siteID,
		Customer:      CustomerInfo{Name: "Ada Lovelace", Email: "ada@example.com", Phone: "555-0100"},
		ArrivalDate:   day(arrival),
		DepartureDate: day(departure),
		Occupancy:     Occupancy{Occupants: 2, Vehicles: 1},
	}
}

func TestLifecycleBookPayCancel(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	site := l.sites[0]

	res, err := l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	r := res.Reservation
	assert.Equal(t, models.Cents(5000), r.TotalAmount)
	assert.Equal(t, 2, r.Nights)
	assert.True(t, r.AwaitingPayment())
	assert.True(t, strings.HasPrefix(res.RedirectURL, "https://sandbox.invalid/checkout/"))
	sessionID := r.GatewaySessionID
	require.NotEmpty(t, sessionID)

	_, err = l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-11", "2024-07-13"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	// Departure day is free for the next arrival.
	next, err := l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-12", "2024-07-14"))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, next.Reservation.ID)

	_, err = l.booking.ReconcilePayment(ctx, r.ID, sessionID)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
	stored, err := l.db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, stored.AwaitingPayment())

	require.NoError(t, l.sandbox.MarkPaid(sessionID))
	confirmed, err := l.booking.ReconcilePayment(ctx, r.ID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, models.PaymentPaid, confirmed.PaymentStatus)
	paymentID := confirmed.GatewayPaymentID
	require.NotEmpty(t, paymentID)

	again, err := l.booking.ReconcilePayment(ctx, r.ID, sessionID)
	require.NoError(t, err)
	assert.Equal(t, paymentID, again.GatewayPaymentID)
	assert.Equal(t, confirmed.Version, again.Version)

	// Abandoning checkout after payment keeps the reservation.
	kept, err := l.booking.AbandonCheckout(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsConfirmed())

	avail, err := l.booking.RequestAvailability(ctx, site.ID, day("2024-07-10"), day("2024-07-12"))
	require.NoError(t, err)
	assert.False(t, avail.Available)

	cancelled, err := l.booking.CancelBooking(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	avail, err = l.booking.RequestAvailability(ctx, site.ID, day("2024-07-10"), day("2024-07-12"))
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = l.booking.ReconcilePayment(ctx, r.ID, sessionID)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
	stored, err = l.db.GetReservation(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, stored.Status)

	stats, err := l.booking.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Cancelled)
}

func TestLifecycleConcurrentBookings(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	site := l.sites[1]

	const n = 8
	req := l.request(site.ID, "2024-08-01", "2024-08-04")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.booking.CreateBooking(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, domain.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, n-1, conflicts)

	list, err := l.booking.ListReservations(ctx, models.ReservationFilter{SiteID: site.ID})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLifecycleGatewayDown(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	site := l.sites[0]

	l.sandbox.SetUnavailable(true)
	res, err := l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-20", "2024-07-22"))
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	require.NotNil(t, res)
	assert.True(t, res.Reservation.AwaitingPayment())
	assert.Empty(t, res.Reservation.GatewaySessionID)

	// The pending reservation still holds the site.
	_, err = l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-21", "2024-07-23"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	l.sandbox.SetUnavailable(false)
	resumed, err := l.booking.ResumeCheckout(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, resumed.Reservation.GatewaySessionID)
	assert.NotEmpty(t, resumed.RedirectURL)
}

func TestLifecycleExpiry(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)

	unpaid, err := l.booking.CreateBooking(ctx, l.request(l.sites[0].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	paid, err := l.booking.CreateBooking(ctx, l.request(l.sites[1].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	require.NoError(t, l.sandbox.MarkPaid(paid.Reservation.GatewaySessionID))

	report, err := l.booking.ExpireStalePending(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Examined)

	report, err = l.booking.ExpireStalePending(ctx, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Examined)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Confirmed)

	r, err := l.db.GetReservation(ctx, unpaid.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, r.Status)
	assert.Equal(t, models.PaymentCancelled, r.PaymentStatus)

	r, err = l.db.GetReservation(ctx, paid.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, r.IsConfirmed())

	// The released dates can no longer be paid for through the old session.
	assert.Error(t, l.sandbox.MarkPaid(unpaid.Reservation.GatewaySessionID))
	_, err = l.booking.ReconcilePayment(ctx, unpaid.Reservation.ID, unpaid.Reservation.GatewaySessionID)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
}

// skewedGateway reports one session as settled for a different amount.
type skewedGateway struct {
	*gateway.Sandbox
	session string
}

func (g *skewedGateway) GetSessionSettlement(ctx context.Context, sessionID string) (*domain.Settlement, error) {
	st, err := g.Sandbox.GetSessionSettlement(ctx, sessionID)
	if err == nil && sessionID == g.session {
		st.Amount++
	}
	return st, err
}

func TestLifecycleExpirySweepsPastSkippedReservation(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	logger := zerolog.New(io.Discard)

	skewed := &skewedGateway{Sandbox: l.sandbox}
	booking := NewBookingService(l.db, skewed, nil, nil, BookingOptions{
		PendingTTL:     time.Hour,
		SweepBatchSize: 1,
		PublicBaseURL:  "http://localhost:8080",
	}, &logger)
	booking.SetClock(func() time.Time { return testNow })

	head, err := booking.CreateBooking(ctx, l.request(l.sites[0].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	skewed.session = head.Reservation.GatewaySessionID
	require.NoError(t, l.sandbox.MarkPaid(skewed.session))

	newer, err := booking.CreateBooking(ctx, l.request(l.sites[1].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)

	later := time.Now().Add(2 * time.Hour)
	report, err := booking.ExpireStalePending(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, &ExpiryReport{Examined: 1, Skipped: 1}, report)

	report, err = booking.ExpireStalePending(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, &ExpiryReport{Examined: 1, Expired: 1}, report)

	r, err := l.db.GetReservation(ctx, newer.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, r.Status)

	// The mismatched payment stays pending for review.
	r, err = l.db.GetReservation(ctx, head.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, r.AwaitingPayment())
}

func TestLifecycleAbandonClosesCheckout(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	site := l.sites[0]

	res, err := l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	sessionID := res.Reservation.GatewaySessionID

	cancelled, err := l.booking.AbandonCheckout(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	assert.Error(t, l.sandbox.MarkPaid(sessionID))
	avail, err := l.booking.RequestAvailability(ctx, site.ID, day("2024-07-10"), day("2024-07-12"))
	require.NoError(t, err)
	assert.True(t, avail.Available)
}

func TestLifecycleCancelWaitsForGateway(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)

	res, err := l.booking.CreateBooking(ctx, l.request(l.sites[0].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)

	l.sandbox.SetUnavailable(true)
	_, err = l.booking.CancelBooking(ctx, res.Reservation.ID)
	assert.ErrorIs(t, err, domain.ErrGatewayUnavailable)
	stored, err := l.db.GetReservation(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, stored.AwaitingPayment())

	l.sandbox.SetUnavailable(false)
	cancelled, err := l.booking.CancelBooking(ctx, res.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Error(t, l.sandbox.MarkPaid(res.Reservation.GatewaySessionID))
}

func TestLifecycleResumeReplacesSession(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)

	res, err := l.booking.CreateBooking(ctx, l.request(l.sites[0].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	first := res.Reservation.GatewaySessionID

	resumed, err := l.booking.ResumeCheckout(ctx, res.Reservation.ID)
	require.NoError(t, err)
	second := resumed.Reservation.GatewaySessionID
	require.NotEqual(t, first, second)

	assert.Error(t, l.sandbox.MarkPaid(first))
	require.NoError(t, l.sandbox.MarkPaid(second))

	_, err = l.booking.ReconcilePayment(ctx, res.Reservation.ID, first)
	assert.ErrorIs(t, err, domain.ErrPaymentVerification)
	confirmed, err := l.booking.ReconcilePayment(ctx, res.Reservation.ID, second)
	require.NoError(t, err)
	assert.True(t, confirmed.IsConfirmed())

	// A paid session is confirmed rather than replaced.
	other, err := l.booking.CreateBooking(ctx, l.request(l.sites[1].ID, "2024-07-10", "2024-07-12"))
	require.NoError(t, err)
	require.NoError(t, l.sandbox.MarkPaid(other.Reservation.GatewaySessionID))
	_, err = l.booking.ResumeCheckout(ctx, other.Reservation.ID)
	assert.ErrorIs(t, err, domain.ErrConflict)
	stored, err := l.db.GetReservation(ctx, other.Reservation.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsConfirmed())
	assert.Equal(t, other.Reservation.GatewaySessionID, stored.GatewaySessionID)
}

func TestLifecycleBlockedDates(t *testing.T) {
	ctx := context.Background()
	l := newLifecycle(t)
	site := l.sites[0]

	cgID := site.CampgroundID
	require.NoError(t, l.catalog.CreateBlockedDate(ctx, &models.BlockedDate{
		CampgroundID: &cgID,
		StartDate:    day("2024-07-20"),
		EndDate:      day("2024-07-21"),
		Reason:       "trail work",
	}))

	_, err := l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-21", "2024-07-23"))
	assert.ErrorIs(t, err, domain.ErrConflict)

	avail, err := l.booking.RequestAvailability(ctx, site.ID, day("2024-07-18"), day("2024-07-20"))
	require.NoError(t, err)
	assert.True(t, avail.Available)

	_, err = l.booking.CreateBooking(ctx, l.request(site.ID, "2024-07-22", "2024-07-24"))
	require.NoError(t, err)
}
