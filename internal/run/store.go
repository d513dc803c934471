package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"storybook/internal/config"
	"storybook/internal/logging"
)

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// InterruptedReason is the error message recorded for runs that were still in
// flight when the daemon stopped.
const InterruptedReason = "daemon stopped before run finished"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id      TEXT PRIMARY KEY,
    era         TEXT NOT NULL,
    place       TEXT NOT NULL,
    characters  TEXT NOT NULL,
    topic       TEXT NOT NULL,
    tts_enabled INTEGER NOT NULL,
    status      TEXT NOT NULL,
    error       TEXT,
    created_at  TEXT NOT NULL,
    finished_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
`

// Record is the persisted metadata row for a run, used for listing and for
// eviction ordering that survives restarts.
type Record struct {
	RunID      string
	Inputs     Inputs
	Status     Status
	Error      string
	CreatedAt  time.Time
	FinishedAt time.Time
}

// Store owns live run state, the SQLite run index, and per-run artifact
// directories. Creation and eviction are serialized under one mutex; live runs
// synchronize their own fields.
type Store struct {
	db        *sql.DB
	outputDir string
	maxRuns   int
	logger    *slog.Logger

	mu        sync.Mutex
	runs      map[string]*Run
	evictHook func(runID string)
	protected func() string
}

// Open initializes the run index database and artifact directory tree.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.LogDir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run index: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		outputDir: cfg.Paths.OutputDir,
		maxRuns:   cfg.Retention.MaxRuns,
		logger:    logging.NewComponentLogger(logger, "runstore"),
		runs:      make(map[string]*Run),
	}
	if err := s.sweepOrphans(context.Background()); err != nil {
		s.logger.Warn("orphan sweep failed", logging.Error(err))
	}
	return s, nil
}

// sweepOrphans reconciles the index with the artifact tree: run directories
// without an index row are removed, and rows whose directory vanished are
// dropped from the index. Runs once during Open, before any run is live.
func (s *Store) sweepOrphans(ctx context.Context) error {
	records, err := s.List(ctx)
	if err != nil {
		return err
	}
	indexed := make(map[string]bool, len(records))
	for _, rec := range records {
		indexed[rec.RunID] = true
		if _, statErr := os.Stat(s.runDir(rec.RunID)); os.IsNotExist(statErr) {
			s.logger.Info("dropping run row without directory", logging.String(logging.FieldRunID, rec.RunID))
			if _, execErr := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, rec.RunID); execErr != nil {
				s.logger.Warn("delete orphan row", logging.String(logging.FieldRunID, rec.RunID), logging.Error(execErr))
			}
		}
	}

	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || !IsID(entry.Name()) || indexed[entry.Name()] {
			continue
		}
		s.logger.Info("removing run directory without row", logging.String(logging.FieldRunID, entry.Name()))
		if rmErr := os.RemoveAll(filepath.Join(s.outputDir, entry.Name())); rmErr != nil {
			s.logger.Warn("remove orphan directory", logging.String(logging.FieldRunID, entry.Name()), logging.Error(rmErr))
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SetEvictHook registers a callback invoked with the id of every evicted run
// so collaborating components can drop per-run state of their own.
func (s *Store) SetEvictHook(hook func(runID string)) {
	s.mu.Lock()
	s.evictHook = hook
	s.mu.Unlock()
}

// SetProtectedRun registers a callback naming a run id that retention must
// never evict, regardless of its recorded status. The orchestrator wires the
// session gate here: an admitted run holds the gate before its status reaches
// RUNNING, and that window must not lose the run's state or artifacts.
func (s *Store) SetProtectedRun(fn func() string) {
	s.mu.Lock()
	s.protected = fn
	s.mu.Unlock()
}

// ReclaimInterrupted marks runs left QUEUED or RUNNING by a previous daemon
// process as FAILED. Called once during startup, before new runs are admitted.
func (s *Store) ReclaimInterrupted(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status IN (?, ?)`,
		StatusFailed,
		InterruptedReason,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusQueued,
		StatusRunning,
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim interrupted runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim rows affected: %w", err)
	}
	return int(affected), nil
}

// Create allocates a new run with a fresh identifier and artifact directory,
// inserts its index row, then applies the retention policy.
func (s *Store) Create(ctx context.Context, inputs Inputs) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var r *Run
	for attempt := 0; attempt < 3; attempt++ {
		candidate := newRun(NewID(now), inputs, now)
		if err := s.insertLocked(ctx, candidate); err != nil {
			if isUniqueViolation(err) {
				continue
			}
			return nil, err
		}
		r = candidate
		break
	}
	if r == nil {
		return nil, errors.New("allocate run id: exhausted retries")
	}

	if err := os.MkdirAll(s.runDir(r.ID), 0o755); err != nil {
		s.removeLocked(ctx, r.ID)
		return nil, fmt.Errorf("create run directory: %w", err)
	}
	s.runs[r.ID] = r

	if err := s.evictOldestLocked(ctx, r.ID); err != nil {
		s.logger.Warn("retention sweep failed", logging.Error(err))
	}
	return r, nil
}

func (s *Store) insertLocked(ctx context.Context, r *Run) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (run_id, era, place, characters, topic, tts_enabled, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.Inputs.Era,
		r.Inputs.Place,
		r.Inputs.Characters,
		r.Inputs.Topic,
		boolToInt(r.Inputs.TTSEnabled),
		StatusQueued,
		r.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get returns the live run state, or nil when the id is unknown or evicted.
func (s *Store) Get(runID string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[runID]
}

// Remove deletes a run's state, index row, and artifact directory. Used when
// admission is refused after the run was already reserved.
func (s *Store) Remove(ctx context.Context, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(ctx, runID)
}

func (s *Store) removeLocked(ctx context.Context, runID string) {
	delete(s.runs, runID)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, runID); err != nil {
		s.logger.Warn("delete run row", logging.String(logging.FieldRunID, runID), logging.Error(err))
	}
	if err := os.RemoveAll(s.runDir(runID)); err != nil {
		s.logger.Warn("delete run directory", logging.String(logging.FieldRunID, runID), logging.Error(err))
	}
	if s.evictHook != nil {
		s.evictHook(runID)
	}
}

// MarkRunning persists the RUNNING transition to the index.
func (s *Store) MarkRunning(ctx context.Context, r *Run) error {
	r.SetStatus(StatusRunning)
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE run_id = ?`, StatusRunning, r.ID)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// Finish records the terminal state for a run. An empty message completes the
// run; a non-empty message fails it.
func (s *Store) Finish(ctx context.Context, r *Run, message string) {
	if message == "" {
		r.Complete()
	} else {
		r.Fail(message)
	}
	snap := r.Snapshot()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE run_id = ?`,
		snap.Status,
		nullableString(snap.Error),
		time.Now().UTC().Format(time.RFC3339Nano),
		r.ID,
	)
	if err != nil {
		s.logger.Warn("persist terminal status", logging.String(logging.FieldRunID, r.ID), logging.Error(err))
	}
}

// List returns index rows ordered newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, era, place, characters, topic, tts_enabled, status, COALESCE(error, ''), created_at, COALESCE(finished_at, '')
         FROM runs ORDER BY created_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var tts int
		var created, finished string
		if err := rows.Scan(
			&rec.RunID, &rec.Inputs.Era, &rec.Inputs.Place, &rec.Inputs.Characters,
			&rec.Inputs.Topic, &tts, &rec.Status, &rec.Error, &created, &finished,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		rec.Inputs.TTSEnabled = tts != 0
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		if finished != "" {
			rec.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of retained runs.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

// Has reports whether the run id is known, either live or in the index.
func (s *Store) Has(ctx context.Context, runID string) (bool, error) {
	if s.Get(runID) != nil {
		return true, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE run_id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup run: %w", err)
	}
	return true, nil
}

// evictOldestLocked deletes the oldest runs beyond the retention cap. The
// in-flight run and the run just created are never candidates; state, index
// row, and artifact directory go together.
func (s *Store) evictOldestLocked(ctx context.Context, keepID string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id FROM runs ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return fmt.Errorf("list eviction candidates: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan eviction candidate: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	var protectedID string
	if s.protected != nil {
		protectedID = s.protected()
	}

	excess := len(ids) - s.maxRuns
	for _, id := range ids {
		if excess <= 0 {
			break
		}
		if id == keepID || (protectedID != "" && id == protectedID) {
			continue
		}
		if live := s.runs[id]; live != nil && live.Status() == StatusRunning {
			continue
		}
		s.logger.Info("evicting oldest run", logging.String(logging.FieldRunID, id))
		s.removeLocked(ctx, id)
		excess--
	}
	return nil
}

func (s *Store) runDir(runID string) string {
	return filepath.Join(s.outputDir, runID)
}

// RunDir returns the artifact directory for a run.
func (s *Store) RunDir(runID string) string {
	return s.runDir(runID)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
