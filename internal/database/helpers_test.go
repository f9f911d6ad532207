package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"campspots/internal/models"

	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupFileDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "campspots.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedSite(t *testing.T, db *DB) (*models.Campground, *models.Site) {
	t.Helper()
	ctx := context.Background()

	cg := &models.Campground{Name: "Pine Hollow", Location: "North ridge", Active: true}
	require.NoError(t, db.CreateCampground(ctx, cg))

	site := &models.Site{
		CampgroundID:  cg.ID,
		SiteNumber:    "1",
		SiteType:      "tent",
		MaxOccupancy:  models.DefaultMaxOccupancy,
		MaxVehicles:   models.DefaultMaxVehicles,
		PricePerNight: 2500,
		Active:        true,
	}
	require.NoError(t, db.CreateSite(ctx, site))
	return cg, site
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDate(s)
	require.NoError(t, err)
	return d
}

func newReservation(t *testing.T, siteID int64, arrival, departure string) *models.Reservation {
	t.Helper()
	return &models.Reservation{
		SiteID:        siteID,
		CustomerName:  "Ada Lovelace",
		CustomerEmail: "ada@example.com",
		CustomerPhone: "555-0100",
		ArrivalDate:   date(t, arrival),
		DepartureDate: date(t, departure),
		Nights:        2,
		Occupants:     2,
		TotalAmount:   5000,
		Currency:      models.DefaultCurrency,
		PaymentStatus: models.PaymentPending,
		Status:        models.StatusPending,
		CreatedBy:     models.CreatedByCustomer,
	}
}
