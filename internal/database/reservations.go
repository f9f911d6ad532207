package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"campspots/internal/availability"
	"campspots/internal/models"
)

type scanner interface {
	Scan(dest ...any) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const reservationColumns = `r.id, r.site_id, r.customer_name, r.customer_email, r.customer_phone,
                            r.arrival_date, r.departure_date, r.num_nights, r.num_occupants, r.num_vehicles,
                            r.vehicle_info, r.special_requests, r.notes, r.total_amount_cents, r.currency,
                            r.gateway_session_id, r.gateway_payment_id, r.payment_status, r.status,
                            r.created_by, r.created_at, r.updated_at, r.version`

func scanReservationInto(s scanner, r *models.Reservation, extra ...any) error {
	var arrival, departure string
	dest := []any{
		&r.ID, &r.SiteID, &r.CustomerName, &r.CustomerEmail, &r.CustomerPhone,
		&arrival, &departure, &r.Nights, &r.Occupants, &r.Vehicles,
		&r.VehicleInfo, &r.SpecialRequests, &r.Notes, &r.TotalAmount, &r.Currency,
		&r.GatewaySessionID, &r.GatewayPaymentID, &r.PaymentStatus, &r.Status,
		&r.CreatedBy, &r.CreatedAt, &r.UpdatedAt, &r.Version,
	}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return err
	}

	var err error
	if r.ArrivalDate, err = models.ParseDate(arrival); err != nil {
		return fmt.Errorf("failed to parse arrival date %s: %w", arrival, err)
	}
	if r.DepartureDate, err = models.ParseDate(departure); err != nil {
		return fmt.Errorf("failed to parse departure date %s: %w", departure, err)
	}
	return nil
}

// OccupiedRanges returns every interval on the site that overlaps window:
// holding reservations plus blocked dates scoped to the site, its
// campground, or globally.
func (db *DB) OccupiedRanges(ctx context.Context, siteID int64, window availability.DateRange) ([]availability.DateRange, error) {
	var campgroundID int64
	err := db.QueryRowContext(ctx, `SELECT campground_id FROM sites WHERE id = ?`, siteID).Scan(&campgroundID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("site %d: %w", siteID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get site campground: %w", err)
	}
	return occupiedRanges(ctx, db, siteID, campgroundID, window)
}

func occupiedRanges(ctx context.Context, q querier, siteID, campgroundID int64, window availability.DateRange) ([]availability.DateRange, error) {
	start, end := models.FormatDate(window.Start), models.FormatDate(window.End)

	var ranges []availability.DateRange
	collect := func(query string, inclusive bool, args ...any) error {
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var from, to string
			if err := rows.Scan(&from, &to); err != nil {
				return err
			}
			first, err := models.ParseDate(from)
			if err != nil {
				return err
			}
			last, err := models.ParseDate(to)
			if err != nil {
				return err
			}
			if inclusive {
				ranges = append(ranges, availability.FromInclusive(first, last))
			} else {
				ranges = append(ranges, availability.NewDateRange(first, last))
			}
		}
		return rows.Err()
	}

	reservationsQuery := `SELECT arrival_date, departure_date FROM reservations
                          WHERE site_id = ? AND status IN (?, ?)
                            AND arrival_date < ? AND departure_date > ?`
	if err := collect(reservationsQuery, false,
		siteID, models.StatusPending, models.StatusConfirmed, end, start); err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}

	blockedQuery := `SELECT start_date, end_date FROM blocked_dates
                     WHERE (site_id = ?
                            OR (site_id IS NULL AND campground_id = ?)
                            OR (site_id IS NULL AND campground_id IS NULL))
                       AND start_date < ? AND end_date >= ?`
	if err := collect(blockedQuery, true, siteID, campgroundID, end, start); err != nil {
		return nil, fmt.Errorf("failed to query blocked dates: %w", err)
	}

	return ranges, nil
}

// CreateReservationWithLock checks availability and inserts the reservation
// in one IMMEDIATE transaction. It returns ErrNotAvailable when the stay
// overlaps a holding reservation or a blocked date.
func (db *DB) CreateReservationWithLock(ctx context.Context, r *models.Reservation) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var campgroundID int64
	err = tx.QueryRowContext(ctx, `SELECT campground_id FROM sites WHERE id = ?`, r.SiteID).Scan(&campgroundID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("site %d: %w", r.SiteID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to get site in tx: %w", err)
	}

	stay := availability.NewDateRange(r.ArrivalDate, r.DepartureDate)
	occupied, err := occupiedRanges(ctx, tx, r.SiteID, campgroundID, stay)
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if !availability.IsAvailable(occupied, stay) {
		return ErrNotAvailable
	}

	queryInsert := `INSERT INTO reservations (
                site_id, customer_name, customer_email, customer_phone,
                arrival_date, departure_date, num_nights, num_occupants, num_vehicles,
                vehicle_info, special_requests, notes, total_amount_cents, currency,
                payment_status, status, created_by, created_at, updated_at, version
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, queryInsert,
		r.SiteID,
		r.CustomerName,
		r.CustomerEmail,
		r.CustomerPhone,
		models.FormatDate(r.ArrivalDate),
		models.FormatDate(r.DepartureDate),
		r.Nights,
		r.Occupants,
		r.Vehicles,
		r.VehicleInfo,
		r.SpecialRequests,
		r.Notes,
		r.TotalAmount,
		r.Currency,
		r.PaymentStatus,
		r.Status,
		r.CreatedBy,
		now,
		now,
		1,
	)
	if err != nil {
		if isOverlapViolation(err) {
			return ErrNotAvailable
		}
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	r.Version = 1
	return nil
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations r WHERE r.id = ?`
	var r models.Reservation
	err := scanReservationInto(db.QueryRowContext(ctx, query, id), &r)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return &r, nil
}

const detailsFrom = ` FROM reservations r
                      JOIN sites s ON s.id = r.site_id
                      JOIN campgrounds c ON c.id = s.campground_id`

func scanDetails(s scanner) (*models.ReservationDetails, error) {
	d := &models.ReservationDetails{}
	err := scanReservationInto(s, &d.Reservation, &d.CampgroundID, &d.CampgroundName, &d.SiteNumber, &d.SiteType)
	return d, err
}

func (db *DB) GetReservationDetails(ctx context.Context, id int64) (*models.ReservationDetails, error) {
	query := `SELECT ` + reservationColumns + `, c.id, c.name, s.site_number, s.site_type` + detailsFrom + ` WHERE r.id = ?`
	d, err := scanDetails(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation details: %w", err)
	}
	return d, nil
}

// ListReservations returns reservations matching the filter, latest arrival first.
func (db *DB) ListReservations(ctx context.Context, f models.ReservationFilter) ([]*models.ReservationDetails, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + reservationColumns + `, c.id, c.name, s.site_number, s.site_type` + detailsFrom + ` WHERE 1 = 1`)

	var args []any
	if f.CampgroundID != 0 {
		sb.WriteString(` AND c.id = ?`)
		args = append(args, f.CampgroundID)
	}
	if f.SiteID != 0 {
		sb.WriteString(` AND r.site_id = ?`)
		args = append(args, f.SiteID)
	}
	if f.Status != "" {
		sb.WriteString(` AND r.status = ?`)
		args = append(args, f.Status)
	}
	if !f.ArrivalFrom.IsZero() {
		sb.WriteString(` AND r.arrival_date >= ?`)
		args = append(args, models.FormatDate(f.ArrivalFrom))
	}
	if !f.ArrivalTo.IsZero() {
		sb.WriteString(` AND r.arrival_date <= ?`)
		args = append(args, models.FormatDate(f.ArrivalTo))
	}
	sb.WriteString(` ORDER BY r.arrival_date DESC, r.id DESC`)
	if f.Limit > 0 {
		sb.WriteString(` LIMIT ?`)
		args = append(args, f.Limit)
	}

	return db.queryDetails(ctx, sb.String(), args...)
}

// RecentReservations returns the most recently created reservations.
func (db *DB) RecentReservations(ctx context.Context, limit int) ([]*models.ReservationDetails, error) {
	query := `SELECT ` + reservationColumns + `, c.id, c.name, s.site_number, s.site_type` + detailsFrom +
		` ORDER BY r.created_at DESC, r.id DESC LIMIT ?`
	return db.queryDetails(ctx, query, limit)
}

func (db *DB) queryDetails(ctx context.Context, query string, args ...any) ([]*models.ReservationDetails, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.ReservationDetails
	for rows.Next() {
		d, err := scanDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) CountReservationsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM reservations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan reservation count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListStalePending returns (pending, pending) reservations created before
// cutoff with an id above afterID, in id order.
func (db *DB) ListStalePending(ctx context.Context, cutoff time.Time, afterID int64, limit int) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations r
              WHERE r.status = ? AND r.payment_status = ? AND r.created_at < ? AND r.id > ?
              ORDER BY r.id ASC LIMIT ?`
	rows, err := db.QueryContext(ctx, query, models.StatusPending, models.PaymentPending, cutoff.UTC(), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale reservations: %w", err)
	}
	defer rows.Close()

	var out []*models.Reservation
	for rows.Next() {
		r := &models.Reservation{}
		if err := scanReservationInto(rows, r); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AttachGatewaySession stores the checkout session on a reservation that is
// still awaiting payment.
func (db *DB) AttachGatewaySession(ctx context.Context, id, fromVersion int64, sessionID string) error {
	query := `UPDATE reservations SET gateway_session_id = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ? AND payment_status = ?`
	return db.transition(ctx, "attach gateway session", query,
		sessionID, time.Now().UTC(), id, fromVersion, models.StatusPending, models.PaymentPending)
}

// ConfirmReservation moves a pending reservation to (confirmed, paid).
func (db *DB) ConfirmReservation(ctx context.Context, id, fromVersion int64, paymentID string) error {
	query := `UPDATE reservations
              SET status = ?, payment_status = ?, gateway_payment_id = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	return db.transition(ctx, "confirm reservation", query,
		models.StatusConfirmed, models.PaymentPaid, paymentID, time.Now().UTC(), id, fromVersion, models.StatusPending)
}

// CancelReservation moves a holding reservation to (cancelled, cancelled).
func (db *DB) CancelReservation(ctx context.Context, id, fromVersion int64) error {
	query := `UPDATE reservations SET status = ?, payment_status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status IN (?, ?)`
	return db.transition(ctx, "cancel reservation", query,
		models.StatusCancelled, models.PaymentCancelled, time.Now().UTC(), id, fromVersion,
		models.StatusPending, models.StatusConfirmed)
}

func (db *DB) transition(ctx context.Context, op, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}
