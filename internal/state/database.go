package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Database manages the SQLite database holding the overwatch history
type Database struct {
	db     *sql.DB
	dbPath string
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (*Database, error) {
	dir := filepath.Dir(dbPath)
	if err := ensureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=1&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writers anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	database := &Database{
		db:     db,
		dbPath: dbPath,
	}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// GetDB returns the underlying database connection
func (d *Database) GetDB() *sql.DB {
	return d.db
}

// Path returns the database file path
func (d *Database) Path() string {
	return d.dbPath
}

func (d *Database) initSchema() error {
	schema := `
	-- Overwatch runs
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		cameras INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		deadline TIMESTAMP,
		finished_at TIMESTAMP,
		finish_reason TEXT
	);

	-- Alerts that passed the throttle. throttled_before counts the confirmed
	-- ticks held back since the previous alert of the camera.
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		camera_id TEXT NOT NULL,
		class_name TEXT,
		confidence REAL,
		detections_in_a_row INTEGER NOT NULL,
		frame_path TEXT,
		sent BOOLEAN DEFAULT 0,
		throttled_before INTEGER DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	-- Failure notices raised for cameras
	CREATE TABLE IF NOT EXISTS camera_failures (
		id TEXT PRIMARY KEY,
		camera_id TEXT NOT NULL,
		consecutive_failures INTEGER NOT NULL,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_camera_created ON alerts(camera_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_camera_failures_camera ON camera_failures(camera_id, created_at);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// ensureDir ensures a directory exists
func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
