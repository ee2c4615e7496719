package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"media-render/internal/logging"
	"media-render/internal/metrics"
)

// Default timeout for database operations
const defaultTimeout = 5 * time.Second

// FileName is the database file created inside the database directory.
const FileName = "jobs.db"

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("job not found")

// Status is the state of a job record.
type Status string

// Job statuses. Finished jobs use the same names as the job metrics.
const (
	StatusRunning  Status = "running"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusCanceled Status = "canceled"
)

// StatusFor maps the error a render returned to its final status.
func StatusFor(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusError
	}
}

// Record is one row of the job history.
type Record struct {
	ID            string
	ProfileID     string
	ProfileDigest string
	Output        string
	Status        Status
	Mode          string
	Frames        int64
	AudioChunks   int64
	Discarded     int
	Error         string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Duration is the wall time of a finished job, zero while it runs.
func (r *Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome is what Finish records about a job.
type Outcome struct {
	Frames      int64
	AudioChunks int64
	Discarded   int
	Mode        string
	Err         error
}

// Store manages the job history database.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
	now    func() time.Time
}

// Open opens or creates the database at dbPath. The parent directory must
// already exist and be writable.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Job database path: %s", dbPath)

	if err := checkDirectory(filepath.Dir(dbPath)); err != nil {
		return nil, err
	}

	// busy_timeout helps prevent "database is locked" errors when a history
	// query runs next to a render.
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close database after initialization failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	return s, nil
}

func checkDirectory(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("database directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("database directory %s is not a directory", dir)
	}
	return nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		profile_digest TEXT NOT NULL,
		output TEXT NOT NULL,
		status TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		frames INTEGER NOT NULL DEFAULT 0,
		audio_chunks INTEGER NOT NULL DEFAULT 0,
		discarded INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_started ON jobs(started_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// A process that died mid-render leaves its row running.
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error = ?, finished_at = started_at WHERE status = ?",
		StatusError, "interrupted", StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to close interrupted jobs: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logging.Warn("Marked %d interrupted jobs as failed", n)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a running job and returns its id.
func (s *Store) Begin(ctx context.Context, profileID, digest, output string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, profile_id, profile_digest, output, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, profileID, digest, output, StatusRunning, s.now().UnixMilli())
	recordQuery("begin_job", start, err)
	if err != nil {
		return "", fmt.Errorf("record job start: %w", err)
	}
	return id, nil
}

// Finish completes the record of job id.
func (s *Store) Finish(ctx context.Context, id string, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var msg string
	if o.Err != nil {
		msg = o.Err.Error()
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, mode = ?, frames = ?, audio_chunks = ?, discarded = ?,
			error = ?, finished_at = ?
		WHERE id = ?
	`, StatusFor(o.Err), o.Mode, o.Frames, o.AudioChunks, o.Discarded, msg, s.now().UnixMilli(), id)
	recordQuery("finish_job", start, err)
	if err != nil {
		return fmt.Errorf("record job end: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectJob = `
	SELECT id, profile_id, profile_digest, output, status, mode, frames, audio_chunks,
		discarded, error, started_at, finished_at
	FROM jobs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var r Record
	var started, finished int64
	err := row.Scan(&r.ID, &r.ProfileID, &r.ProfileDigest, &r.Output, &r.Status, &r.Mode,
		&r.Frames, &r.AudioChunks, &r.Discarded, &r.Error, &started, &finished)
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.UnixMilli(started)
	if finished > 0 {
		r.FinishedAt = time.UnixMilli(finished)
	}
	return &r, nil
}

// Get returns the record of job id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	start := time.Now()
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectJob+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		recordQuery("get_job", start, nil)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	recordQuery("get_job", start, err)
	return r, err
}

// List returns up to limit records, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 20
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, selectJob+" ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		recordQuery("list_jobs", start, err)
		return nil, err
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("Closing job rows: %v", closeErr)
		}
	}()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			recordQuery("list_jobs", start, err)
			return nil, err
		}
		out = append(out, *r)
	}
	err = rows.Err()
	recordQuery("list_jobs", start, err)
	return out, err
}

// GetStats counts jobs by status for the metrics collector.
func (s *Store) GetStats() metrics.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var stats metrics.Stats
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		recordQuery("job_stats", start, err)
		logging.Warn("Counting jobs: %v", err)
		return stats
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Warn("Closing job stats rows: %v", closeErr)
		}
	}()

	for rows.Next() {
		var status Status
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			recordQuery("job_stats", start, err)
			return stats
		}
		stats.TotalJobs += n
		switch status {
		case StatusSuccess:
			stats.SucceededJobs = n
		case StatusError:
			stats.FailedJobs = n
		case StatusCanceled:
			stats.CanceledJobs = n
		}
	}
	recordQuery("job_stats", start, rows.Err())
	stats.OpenConns = s.db.Stats().OpenConnections
	return stats
}

// recordQuery records metrics for a database query
func recordQuery(operation string, start time.Time, err error) {
	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
	metrics.DBQueryDuration.WithLabelValues(operation).Observe(duration)
}
