package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Orlik-B/NVR-surveillance/internal/logger"
)

// ErrRunNotFound is returned by GetRun for an unknown ID
var ErrRunNotFound = errors.New("run not found")

// AlertRecord is one confirmed detection that passed the throttle
type AlertRecord struct {
	ID               string    `json:"id"`
	CameraID         string    `json:"camera_id"`
	ClassName        string    `json:"class_name"`
	Confidence       float64   `json:"confidence"`
	DetectionsInARow int       `json:"detections_in_a_row"`
	FramePath        string    `json:"frame_path,omitempty"`
	Sent             bool      `json:"sent"`
	ThrottledBefore  int       `json:"throttled_before"`
	CreatedAt        time.Time `json:"created_at"`
}

// CameraFailure is one failure notice of a camera
type CameraFailure struct {
	ID                  string    `json:"id"`
	CameraID            string    `json:"camera_id"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Error               string    `json:"error,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// Run is one overwatch run
type Run struct {
	ID           string     `json:"id"`
	Cameras      int        `json:"cameras"`
	StartedAt    time.Time  `json:"started_at"`
	Deadline     time.Time  `json:"deadline"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
}

// Manager manages persistence of the overwatch history
type Manager struct {
	db     *Database
	logger *logger.Logger
	mu     sync.RWMutex
}

// NewManager opens the database at dbPath
func NewManager(dbPath string, log *logger.Logger) (*Manager, error) {
	db, err := NewDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	return &Manager{
		db:     db,
		logger: log,
	}, nil
}

// Close closes the state manager and database
func (m *Manager) Close() error {
	return m.db.Close()
}

// GetDB returns the database connection
func (m *Manager) GetDB() *sql.DB {
	return m.db.GetDB()
}

// Ping checks the database connection
func (m *Manager) Ping(ctx context.Context) error {
	return m.db.GetDB().PingContext(ctx)
}

// SaveAlert stores an alert. An empty ID gets a new UUID.
func (m *Manager) SaveAlert(ctx context.Context, alert AlertRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO alerts (id, camera_id, class_name, confidence, detections_in_a_row, frame_path, sent, throttled_before, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := m.db.GetDB().ExecContext(ctx, query,
		alert.ID, alert.CameraID, alert.ClassName, alert.Confidence, alert.DetectionsInARow,
		alert.FramePath, alert.Sent, alert.ThrottledBefore, alert.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save alert: %w", err)
	}

	return alert.ID, nil
}

// ListAlerts returns the newest alerts first. An empty cameraID lists every camera.
func (m *Manager) ListAlerts(ctx context.Context, cameraID string, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, camera_id, class_name, confidence, detections_in_a_row, frame_path, sent, throttled_before, created_at
		FROM alerts
		WHERE (? = '' OR camera_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := m.db.GetDB().QueryContext(ctx, query, cameraID, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0)
	for rows.Next() {
		var a AlertRecord
		var className, framePath sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(
			&a.ID, &a.CameraID, &className, &confidence, &a.DetectionsInARow,
			&framePath, &a.Sent, &a.ThrottledBefore, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.ClassName = className.String
		a.FramePath = framePath.String
		a.Confidence = confidence.Float64
		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// CountAlerts counts stored alerts. An empty cameraID counts every camera.
func (m *Manager) CountAlerts(ctx context.Context, cameraID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int
	query := `SELECT COUNT(*) FROM alerts WHERE (? = '' OR camera_id = ?)`
	if err := m.db.GetDB().QueryRowContext(ctx, query, cameraID, cameraID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}
	return count, nil
}

// SaveCameraFailure stores a camera failure notice
func (m *Manager) SaveCameraFailure(ctx context.Context, failure CameraFailure) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	if failure.CreatedAt.IsZero() {
		failure.CreatedAt = time.Now()
	}

	_, err := m.db.GetDB().ExecContext(ctx,
		`INSERT INTO camera_failures (id, camera_id, consecutive_failures, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		failure.ID, failure.CameraID, failure.ConsecutiveFailures, failure.Error, failure.CreatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save camera failure: %w", err)
	}

	return failure.ID, nil
}

// ListCameraFailures returns the newest failure notices first
func (m *Manager) ListCameraFailures(ctx context.Context, cameraID string, limit int) ([]CameraFailure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := m.db.GetDB().QueryContext(ctx, `
		SELECT id, camera_id, consecutive_failures, error, created_at
		FROM camera_failures
		WHERE (? = '' OR camera_id = ?)
		ORDER BY created_at DESC
		LIMIT ?
	`, cameraID, cameraID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list camera failures: %w", err)
	}
	defer rows.Close()

	failures := make([]CameraFailure, 0)
	for rows.Next() {
		var f CameraFailure
		var errText sql.NullString
		if err := rows.Scan(&f.ID, &f.CameraID, &f.ConsecutiveFailures, &errText, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan camera failure: %w", err)
		}
		f.Error = errText.String
		failures = append(failures, f)
	}

	return failures, rows.Err()
}

// StartRun records the start of an overwatch run and returns its ID
func (m *Manager) StartRun(ctx context.Context, cameras int, startedAt, deadline time.Time) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	_, err := m.db.GetDB().ExecContext(ctx,
		`INSERT INTO runs (id, cameras, started_at, deadline) VALUES (?, ?, ?, ?)`,
		id, cameras, startedAt.UTC(), deadline.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return id, nil
}

// FinishRun records the end of a run
func (m *Manager) FinishRun(ctx context.Context, id, reason string, finishedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.GetDB().ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, finish_reason = ? WHERE id = ?`,
		finishedAt.UTC(), reason, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun loads a run by ID
func (m *Manager) GetRun(ctx context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var run Run
	var deadline, finishedAt sql.NullTime
	var reason sql.NullString
	err := m.db.GetDB().QueryRowContext(ctx,
		`SELECT id, cameras, started_at, deadline, finished_at, finish_reason FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Cameras, &run.StartedAt, &deadline, &finishedAt, &reason)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.Deadline = deadline.Time
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	run.FinishReason = reason.String
	return &run, nil
}

// ListRuns lists runs, newest first
func (m *Manager) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := m.db.GetDB().QueryContext(ctx,
		`SELECT id, cameras, started_at, deadline, finished_at, finish_reason FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var deadline, finishedAt sql.NullTime
		var reason sql.NullString
		if err := rows.Scan(&run.ID, &run.Cameras, &run.StartedAt, &deadline, &finishedAt, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Deadline = deadline.Time
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}
		run.FinishReason = reason.String
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CleanupOldAlerts removes alerts and failure notices older than olderThan
func (m *Manager) CleanupOldAlerts(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).UTC()

	res, err := m.db.GetDB().ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup alerts: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := m.db.GetDB().ExecContext(ctx, `DELETE FROM camera_failures WHERE created_at < ?`, cutoff); err != nil {
		return deleted, fmt.Errorf("failed to cleanup camera failures: %w", err)
	}

	if deleted > 0 {
		m.logger.Info("Removed old alerts", "count", deleted)
	}
	return deleted, nil
}
