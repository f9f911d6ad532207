package database

import (
	"context"
	"testing"

	"campspots/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampgroundCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	cg := &models.Campground{Name: "Lakeside", Active: true}
	require.NoError(t, db.CreateCampground(ctx, cg))
	assert.NotZero(t, cg.ID)

	err := db.CreateCampground(ctx, &models.Campground{Name: "Lakeside"})
	assert.ErrorIs(t, err, ErrDuplicate)

	require.NoError(t, db.CreateCampground(ctx, &models.Campground{Name: "Archived", Active: false}))

	all, err := db.ListCampgrounds(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := db.ListCampgrounds(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Lakeside", active[0].Name)

	got, err := db.GetCampground(ctx, cg.ID)
	require.NoError(t, err)
	assert.True(t, got.Active)

	_, err = db.GetCampground(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := db.CountCampgrounds(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got.Location = "South shore"
	got.Active = false
	require.NoError(t, db.UpdateCampground(ctx, got))
	got, err = db.GetCampground(ctx, cg.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "South shore", got.Location)

	assert.ErrorIs(t, db.UpdateCampground(ctx, &models.Campground{ID: 999, Name: "Ghost"}), ErrNotFound)
	assert.ErrorIs(t, db.UpdateCampground(ctx, &models.Campground{ID: cg.ID, Name: "Archived"}), ErrDuplicate)
}

func TestSiteCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cg, site := seedSite(t, db)

	dup := &models.Site{CampgroundID: cg.ID, SiteNumber: "1", PricePerNight: 100, Active: true}
	assert.ErrorIs(t, db.CreateSite(ctx, dup), ErrDuplicate)

	orphan := &models.Site{CampgroundID: 42, SiteNumber: "9", PricePerNight: 100}
	assert.ErrorIs(t, db.CreateSite(ctx, orphan), ErrNotFound)

	for _, n := range []string{"10", "2"} {
		require.NoError(t, db.CreateSite(ctx, &models.Site{CampgroundID: cg.ID, SiteNumber: n, PricePerNight: 100, Active: true}))
	}
	sites, err := db.ListSites(ctx, cg.ID, true)
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, []string{"1", "2", "10"}, []string{sites[0].SiteNumber, sites[1].SiteNumber, sites[2].SiteNumber})

	site.PricePerNight = 4000
	site.Active = false
	require.NoError(t, db.UpdateSite(ctx, site))

	got, err := db.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Cents(4000), got.PricePerNight)
	assert.False(t, got.Active)

	active, err := db.ListSites(ctx, cg.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	missing := &models.Site{ID: 999, SiteNumber: "x"}
	assert.ErrorIs(t, db.UpdateSite(ctx, missing), ErrNotFound)
}

func TestDeleteCampground(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	cg, site := seedSite(t, db)

	require.NoError(t, db.CreateReservationWithLock(ctx, newReservation(t, site.ID, "2030-07-10", "2030-07-12")))
	assert.ErrorIs(t, db.DeleteCampground(ctx, cg.ID), ErrInUse)

	empty := &models.Campground{Name: "Empty", Active: true}
	require.NoError(t, db.CreateCampground(ctx, empty))
	require.NoError(t, db.CreateSite(ctx, &models.Site{CampgroundID: empty.ID, SiteNumber: "1", PricePerNight: 100}))
	require.NoError(t, db.DeleteCampground(ctx, empty.ID))

	sites, err := db.ListSites(ctx, empty.ID, false)
	require.NoError(t, err)
	assert.Empty(t, sites)

	assert.ErrorIs(t, db.DeleteCampground(ctx, empty.ID), ErrNotFound)
}
