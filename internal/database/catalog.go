package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"campspots/internal/models"
)

func (db *DB) CreateCampground(ctx context.Context, cg *models.Campground) error {
	query := `INSERT INTO campgrounds (name, description, location, active, created_at) VALUES (?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query, cg.Name, cg.Description, cg.Location, cg.Active, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("campground %q: %w", cg.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to create campground: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	cg.ID = id
	cg.CreatedAt = now
	return nil
}

func (db *DB) GetCampground(ctx context.Context, id int64) (*models.Campground, error) {
	var cg models.Campground
	query := `SELECT id, name, description, location, active, created_at FROM campgrounds WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&cg.ID, &cg.Name, &cg.Description, &cg.Location, &cg.Active, &cg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("campground %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campground: %w", err)
	}
	return &cg, nil
}

func (db *DB) ListCampgrounds(ctx context.Context, activeOnly bool) ([]*models.Campground, error) {
	query := `SELECT id, name, description, location, active, created_at FROM campgrounds`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list campgrounds: %w", err)
	}
	defer rows.Close()

	var campgrounds []*models.Campground
	for rows.Next() {
		cg := &models.Campground{}
		if err := rows.Scan(&cg.ID, &cg.Name, &cg.Description, &cg.Location, &cg.Active, &cg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan campground: %w", err)
		}
		campgrounds = append(campgrounds, cg)
	}
	return campgrounds, rows.Err()
}

func (db *DB) CountCampgrounds(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campgrounds`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count campgrounds: %w", err)
	}
	return count, nil
}

func (db *DB) UpdateCampground(ctx context.Context, cg *models.Campground) error {
	query := `UPDATE campgrounds SET name = ?, description = ?, location = ?, active = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, cg.Name, cg.Description, cg.Location, cg.Active, cg.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("campground %q: %w", cg.Name, ErrDuplicate)
		}
		return fmt.Errorf("failed to update campground: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("campground %d: %w", cg.ID, ErrNotFound)
	}
	return nil
}

// DeleteCampground removes a campground and, by cascade, its sites. It fails
// with ErrInUse while any of those sites still has reservations.
func (db *DB) DeleteCampground(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM campgrounds WHERE id = ?`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("campground %d: %w", id, ErrInUse)
		}
		return fmt.Errorf("failed to delete campground: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("campground %d: %w", id, ErrNotFound)
	}
	return nil
}

const siteColumns = `id, campground_id, site_number, site_type, max_occupancy, max_vehicles,
                     hookups, price_per_night_cents, active, notes, created_at`

func scanSite(s scanner) (*models.Site, error) {
	site := &models.Site{}
	err := s.Scan(
		&site.ID, &site.CampgroundID, &site.SiteNumber, &site.SiteType, &site.MaxOccupancy,
		&site.MaxVehicles, &site.Hookups, &site.PricePerNight, &site.Active, &site.Notes, &site.CreatedAt,
	)
	return site, err
}

func (db *DB) CreateSite(ctx context.Context, site *models.Site) error {
	query := `INSERT INTO sites (
                campground_id, site_number, site_type, max_occupancy, max_vehicles,
                hookups, price_per_night_cents, active, notes, created_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		site.CampgroundID,
		site.SiteNumber,
		site.SiteType,
		site.MaxOccupancy,
		site.MaxVehicles,
		site.Hookups,
		site.PricePerNight,
		site.Active,
		site.Notes,
		now,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return fmt.Errorf("site %s: %w", site.SiteNumber, ErrDuplicate)
		case isForeignKeyViolation(err):
			return fmt.Errorf("campground %d: %w", site.CampgroundID, ErrNotFound)
		}
		return fmt.Errorf("failed to create site: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	site.ID = id
	site.CreatedAt = now
	return nil
}

// UpdateSite changes a site's descriptive fields and rate. Existing
// reservations keep the amount frozen at their creation.
func (db *DB) UpdateSite(ctx context.Context, site *models.Site) error {
	query := `UPDATE sites SET site_number = ?, site_type = ?, max_occupancy = ?, max_vehicles = ?,
                hookups = ?, price_per_night_cents = ?, active = ?, notes = ?
              WHERE id = ?`
	result, err := db.ExecContext(ctx, query,
		site.SiteNumber, site.SiteType, site.MaxOccupancy, site.MaxVehicles,
		site.Hookups, site.PricePerNight, site.Active, site.Notes, site.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("site %s: %w", site.SiteNumber, ErrDuplicate)
		}
		return fmt.Errorf("failed to update site: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("site %d: %w", site.ID, ErrNotFound)
	}
	return nil
}

func (db *DB) GetSite(ctx context.Context, id int64) (*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE id = ?`
	site, err := scanSite(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	return site, nil
}

func (db *DB) ListSites(ctx context.Context, campgroundID int64, activeOnly bool) ([]*models.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE campground_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY CAST(site_number AS INTEGER), site_number`

	rows, err := db.QueryContext(ctx, query, campgroundID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*models.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	return sites, rows.Err()
}
