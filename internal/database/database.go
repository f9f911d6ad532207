package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite handle. Check-and-insert of reservations runs in an
// IMMEDIATE transaction so concurrent writers are serialized by sqlite.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string {
	return db.path
}

func dsn(path string) string {
	params := "_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	return path + "?" + params
}

func (db *DB) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS campgrounds (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL UNIQUE,
            description TEXT NOT NULL DEFAULT '',
            location TEXT NOT NULL DEFAULT '',
            active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS sites (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            campground_id INTEGER NOT NULL REFERENCES campgrounds(id) ON DELETE CASCADE,
            site_number TEXT NOT NULL,
            site_type TEXT NOT NULL DEFAULT '',
            max_occupancy INTEGER NOT NULL DEFAULT 6,
            max_vehicles INTEGER NOT NULL DEFAULT 2,
            hookups TEXT NOT NULL DEFAULT '',
            price_per_night_cents INTEGER NOT NULL CHECK (price_per_night_cents >= 0),
            active BOOLEAN NOT NULL DEFAULT 1,
            notes TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            UNIQUE (campground_id, site_number)
        )`,
		`CREATE TABLE IF NOT EXISTS reservations (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            site_id INTEGER NOT NULL REFERENCES sites(id) ON DELETE RESTRICT,
            customer_name TEXT NOT NULL,
            customer_email TEXT NOT NULL,
            customer_phone TEXT NOT NULL,
            arrival_date TEXT NOT NULL,
            departure_date TEXT NOT NULL,
            num_nights INTEGER NOT NULL,
            num_occupants INTEGER NOT NULL,
            num_vehicles INTEGER NOT NULL,
            vehicle_info TEXT NOT NULL DEFAULT '',
            special_requests TEXT NOT NULL DEFAULT '',
            notes TEXT NOT NULL DEFAULT '',
            total_amount_cents INTEGER NOT NULL,
            currency TEXT NOT NULL,
            gateway_session_id TEXT NOT NULL DEFAULT '',
            gateway_payment_id TEXT NOT NULL DEFAULT '',
            payment_status TEXT NOT NULL DEFAULT 'pending',
            status TEXT NOT NULL DEFAULT 'pending',
            created_by TEXT NOT NULL DEFAULT 'customer',
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            version INTEGER NOT NULL DEFAULT 1,
            CHECK (departure_date > arrival_date),
            CHECK (status <> 'confirmed' OR payment_status = 'paid')
        )`,
		// Holding reservations on one site never overlap, whatever the writer.
		`CREATE TRIGGER IF NOT EXISTS reservations_no_overlap
            BEFORE INSERT ON reservations
            WHEN NEW.status IN ('pending', 'confirmed')
        BEGIN
            SELECT RAISE(ABORT, 'reservation overlaps an existing reservation')
            WHERE EXISTS (
                SELECT 1 FROM reservations r
                WHERE r.site_id = NEW.site_id
                  AND r.status IN ('pending', 'confirmed')
                  AND r.arrival_date < NEW.departure_date
                  AND NEW.arrival_date < r.departure_date
            );
        END`,
		`CREATE TABLE IF NOT EXISTS blocked_dates (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            site_id INTEGER REFERENCES sites(id) ON DELETE CASCADE,
            campground_id INTEGER REFERENCES campgrounds(id) ON DELETE CASCADE,
            start_date TEXT NOT NULL,
            end_date TEXT NOT NULL,
            reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            CHECK (end_date >= start_date)
        )`,
		`CREATE TABLE IF NOT EXISTS sync_queue (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            task_type TEXT NOT NULL,
            reservation_id INTEGER NOT NULL,
            payload TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'pending',
            retry_count INTEGER NOT NULL DEFAULT 0,
            last_error TEXT,
            created_at DATETIME NOT NULL,
            processed_at DATETIME,
            next_retry_at DATETIME
        )`,

		`CREATE INDEX IF NOT EXISTS idx_sites_campground ON sites(campground_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_site_dates ON reservations(site_id, arrival_date, departure_date)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_status_created ON reservations(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_session ON reservations(gateway_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_blocked_dates_range ON blocked_dates(start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_queue_status ON sync_queue(status, next_retry_at)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}
