// Package database persists the scheduling store in SQLite.
package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// DB wraps sqlx.DB for the scheduler.
type DB struct {
	*sqlx.DB
	path string
}

// NewDB opens database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single connection keeps transactions serialised.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{DB: db, path: path}, nil
}

// Path is the database file.
func (db *DB) Path() string {
	return db.path
}

// Ping reports whether the database answers, for readiness checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.DB.PingContext(ctx)
}

func createTables(db *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS store_meta (
			key TEXT PRIMARY KEY,
			value INTEGER NOT NULL
		)`,

		// Schedule templates; patterns live in the payload
		`CREATE TABLE IF NOT EXISTS schedule_templates (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL,
			state TEXT NOT NULL,
			version INTEGER NOT NULL,
			payload TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Generated, ad hoc and override slots
		`CREATE TABLE IF NOT EXISTS service_slots (
			id TEXT PRIMARY KEY,
			template_id TEXT NOT NULL DEFAULT '',
			slot_date TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS time_off (
			id TEXT PRIMARY KEY,
			staff_id TEXT NOT NULL,
			approved BOOLEAN NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS reservations (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			branch_id TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS commission_policies (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS business_hours (
			branch_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS staff_shifts (
			staff_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		)`,

		// Calendar events
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			staff_id TEXT NOT NULL DEFAULT '',
			room_id TEXT NOT NULL DEFAULT '',
			slot_id TEXT NOT NULL DEFAULT '',
			service_id TEXT NOT NULL,
			customer_name TEXT NOT NULL DEFAULT '',
			service_name TEXT NOT NULL DEFAULT '',
			staff_name TEXT NOT NULL DEFAULT '',
			room_name TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			payment_status TEXT NOT NULL,
			price TEXT NOT NULL DEFAULT '0',
			party_size INTEGER NOT NULL DEFAULT 1,
			version INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_slots_template_date ON service_slots(template_id, slot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_time_off_staff ON time_off(staff_id)`,
		`CREATE INDEX IF NOT EXISTS idx_resources_branch ON resources(branch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_staff_times ON bookings(staff_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_room_times ON bookings(room_id, start_time, end_time)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}
