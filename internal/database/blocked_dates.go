package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"campspots/internal/models"
)

func (db *DB) CreateBlockedDate(ctx context.Context, b *models.BlockedDate) error {
	query := `INSERT INTO blocked_dates (site_id, campground_id, start_date, end_date, reason, created_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		b.SiteID,
		b.CampgroundID,
		models.FormatDate(b.StartDate),
		models.FormatDate(b.EndDate),
		b.Reason,
		now,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("blocked date scope: %w", ErrNotFound)
		}
		return fmt.Errorf("failed to create blocked date: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

// ListBlockedDates returns blocked ranges ending on or after from, ordered by start.
// A zero from returns all of them.
func (db *DB) ListBlockedDates(ctx context.Context, from time.Time) ([]*models.BlockedDate, error) {
	query := `SELECT id, site_id, campground_id, start_date, end_date, reason, created_at FROM blocked_dates`
	var args []any
	if !from.IsZero() {
		query += ` WHERE end_date >= ?`
		args = append(args, models.FormatDate(from))
	}
	query += ` ORDER BY start_date ASC, id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked dates: %w", err)
	}
	defer rows.Close()

	var out []*models.BlockedDate
	for rows.Next() {
		var (
			b            models.BlockedDate
			siteID       sql.NullInt64
			campgroundID sql.NullInt64
			start, end   string
		)
		if err := rows.Scan(&b.ID, &siteID, &campgroundID, &start, &end, &b.Reason, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blocked date: %w", err)
		}
		if siteID.Valid {
			b.SiteID = &siteID.Int64
		}
		if campgroundID.Valid {
			b.CampgroundID = &campgroundID.Int64
		}
		if b.StartDate, err = models.ParseDate(start); err != nil {
			return nil, fmt.Errorf("failed to parse blocked start date: %w", err)
		}
		if b.EndDate, err = models.ParseDate(end); err != nil {
			return nil, fmt.Errorf("failed to parse blocked end date: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

func (db *DB) DeleteBlockedDate(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM blocked_dates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete blocked date: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("blocked date %d: %w", id, ErrNotFound)
	}
	return nil
}
