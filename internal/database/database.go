package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection used by every store of the service.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

// NewDB opens the database at path and creates the schema if needed.
func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// _txlock=immediate makes every BeginTx a BEGIN IMMEDIATE, so the
	// availability check and the write that follows it are serialized.
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := New(sqlDB, logger)
	db.path = path

	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return db, nil
}

// New wraps an already opened connection without touching the schema.
func New(sqlDB *sql.DB, logger *zerolog.Logger) *DB {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DB{DB: sqlDB, logger: logger}
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS rooms (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT UNIQUE NOT NULL,
			room_type TEXT NOT NULL,
			villa_code TEXT,
			description TEXT,
			price_per_night TEXT NOT NULL,
			discount_percent INTEGER NOT NULL DEFAULT 0,
			max_guests INTEGER NOT NULL,
			bedrooms INTEGER NOT NULL DEFAULT 1,
			bed_type TEXT,
			amenities TEXT,
			is_available BOOLEAN NOT NULL DEFAULT 1,
			is_featured BOOLEAN NOT NULL DEFAULT 0,
			rating TEXT NOT NULL DEFAULT '5.0',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS room_images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id INTEGER NOT NULL,
			url TEXT NOT NULL,
			caption TEXT,
			is_primary BOOLEAN NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			reference TEXT UNIQUE NOT NULL,
			room_id INTEGER NOT NULL,
			room_name TEXT NOT NULL,
			guest_name TEXT NOT NULL,
			guest_email TEXT NOT NULL,
			guest_phone TEXT NOT NULL,
			guest_address TEXT,
			check_in TEXT NOT NULL,
			check_out TEXT NOT NULL,
			adults INTEGER NOT NULL,
			children INTEGER NOT NULL DEFAULT 0,
			special_requests TEXT,
			price_per_night TEXT NOT NULL,
			nights INTEGER NOT NULL,
			subtotal TEXT NOT NULL,
			tax_amount TEXT NOT NULL,
			discount_amount TEXT NOT NULL DEFAULT '0',
			total_amount TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT,
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			checked_in_at DATETIME,
			checked_out_at DATETIME,
			version INTEGER NOT NULL DEFAULT 1,
			CHECK (check_out > check_in),
			FOREIGN KEY (room_id) REFERENCES rooms(id)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL,
			status_from TEXT NOT NULL,
			status_to TEXT NOT NULL,
			changed_by TEXT NOT NULL,
			notes TEXT,
			changed_at DATETIME NOT NULL,
			FOREIGN KEY (booking_id) REFERENCES bookings(id)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			booking_id INTEGER NOT NULL,
			amount TEXT NOT NULL,
			payment_method TEXT NOT NULL,
			transaction_id TEXT,
			notes TEXT,
			paid_at DATETIME NOT NULL,
			FOREIGN KEY (booking_id) REFERENCES bookings(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rooms_listing ON rooms(is_available, is_featured, name)`,
		`CREATE INDEX IF NOT EXISTS idx_room_images_room ON room_images(room_id, sort_order)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_dates ON bookings(room_id, check_in, check_out, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status, payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_guest_email ON bookings(guest_email)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_reminder ON bookings(reminder_sent, check_in)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_history_booking ON booking_history(booking_id, changed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_payments_booking ON booking_payments(booking_id)`,

		// Last line of defence against double booking: no two bookings in a
		// blocking status may share a night of the same room.
		`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_insert
		BEFORE INSERT ON bookings
		WHEN NEW.status IN ('confirmed', 'checked_in')
		BEGIN
			SELECT RAISE(ABORT, 'room_unavailable')
			WHERE EXISTS (
				SELECT 1 FROM bookings b
				WHERE b.room_id = NEW.room_id
				  AND b.status IN ('confirmed', 'checked_in')
				  AND b.check_in < NEW.check_out
				  AND b.check_out > NEW.check_in
			);
		END`,
		`CREATE TRIGGER IF NOT EXISTS bookings_no_overlap_update
		BEFORE UPDATE OF status, room_id, check_in, check_out ON bookings
		WHEN NEW.status IN ('confirmed', 'checked_in')
		BEGIN
			SELECT RAISE(ABORT, 'room_unavailable')
			WHERE EXISTS (
				SELECT 1 FROM bookings b
				WHERE b.id != NEW.id
				  AND b.room_id = NEW.room_id
				  AND b.status IN ('confirmed', 'checked_in')
				  AND b.check_in < NEW.check_out
				  AND b.check_out > NEW.check_in
			);
		END`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	db.ensureNewColumns()
	return nil
}

// ensureNewColumns upgrades databases created by earlier releases.
func (db *DB) ensureNewColumns() {
	migrations := []string{
		`ALTER TABLE bookings ADD COLUMN reminder_sent BOOLEAN NOT NULL DEFAULT 0`,
		`ALTER TABLE bookings ADD COLUMN guest_address TEXT`,
		`ALTER TABLE rooms ADD COLUMN villa_code TEXT`,
	}

	for _, m := range migrations {
		_, err := db.Exec(m)
		if err != nil && !strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
			db.logger.Debug().Err(err).Str("migration", m).Msg("migration skipped")
		}
	}
}

// Path returns the database file path, empty for wrapped connections.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.DB.Close()
}
