// Package state persists a history of analysis runs.
//
// The store keeps one row per run with its scores and finding counts so
// that operators can follow a rule set over time. It is backed by SQLite
// through modernc.org/sqlite (pure Go, no CGO).
//
// Use ":memory:" as the path for a throwaway store.
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"grimm.is/ruleaudit/internal/analyzer"
	"grimm.is/ruleaudit/internal/clock"
)

// Common errors
var (
	ErrNotFound    = errors.New("run not found")
	ErrStoreClosed = errors.New("store is closed")
)

// DefaultListLimit is used by List when limit <= 0.
const DefaultListLimit = 20

// Run summarizes one analysis.
type Run struct {
	ID              string         `json:"id" yaml:"id"`
	Timestamp       time.Time      `json:"timestamp" yaml:"timestamp"`
	Source          string         `json:"source,omitempty" yaml:"source,omitempty"`
	Fingerprint     string         `json:"fingerprint" yaml:"fingerprint"`
	RuleCount       int            `json:"rule_count" yaml:"rule_count"`
	FindingCount    int            `json:"finding_count" yaml:"finding_count"`
	Diagnostics     int            `json:"diagnostics" yaml:"diagnostics"`
	SecurityScore   int            `json:"security_score" yaml:"security_score"`
	EfficiencyScore int            `json:"efficiency_score" yaml:"efficiency_score"`
	ByKind          map[string]int `json:"by_kind,omitempty" yaml:"by_kind,omitempty"`
}

// NewRun builds a run record from a result. ID and Timestamp are assigned by
// Record when left empty.
func NewRun(res *analyzer.Result, source string) Run {
	return Run{
		Source:          source,
		Fingerprint:     res.Fingerprint,
		RuleCount:       res.RuleCount,
		FindingCount:    res.Summary.Total,
		Diagnostics:     len(res.Diagnostics),
		SecurityScore:   res.SecurityScore,
		EfficiencyScore: res.EfficiencyScore,
		ByKind:          res.Summary.ByKind,
	}
}

// Options configures the SQLite store.
type Options struct {
	Path    string      // Database file path (":memory:" for in-memory)
	WALMode bool        // Enable WAL mode for better concurrency
	Clock   clock.Clock // Optional: time source (defaults to RealClock if nil)
}

// DefaultOptions returns sensible defaults.
func DefaultOptions(path string) Options {
	return Options{
		Path:    path,
		WALMode: true,
	}
}

// SQLiteStore records runs in SQLite. It is safe for concurrent use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	clock  clock.Clock
}

// NewSQLiteStore opens (creating if needed) the history database.
func NewSQLiteStore(opts Options) (*SQLiteStore, error) {
	memory := opts.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	dsn := opts.Path
	if opts.WALMode && !memory {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	clk := opts.Clock
	if clk == nil {
		clk = &clock.RealClock{}
	}

	s := &SQLiteStore{db: db, clock: clk}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ts INTEGER NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL,
			rule_count INTEGER NOT NULL,
			finding_count INTEGER NOT NULL,
			diagnostics INTEGER NOT NULL,
			security_score INTEGER NOT NULL,
			efficiency_score INTEGER NOT NULL,
			by_kind TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_runs_ts ON runs(ts);
		CREATE INDEX IF NOT EXISTS idx_runs_fingerprint ON runs(fingerprint);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record stores run and returns it with ID and Timestamp filled in.
func (s *SQLiteStore) Record(ctx context.Context, run Run) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Run{}, ErrStoreClosed
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = s.clock.Now()
	}
	run.Timestamp = run.Timestamp.UTC()

	var byKind []byte
	if run.ByKind != nil {
		b, err := json.Marshal(run.ByKind)
		if err != nil {
			return Run{}, fmt.Errorf("failed to marshal kind counts: %w", err)
		}
		byKind = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, ts, source, fingerprint, rule_count, finding_count,
			diagnostics, security_score, efficiency_score, by_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Timestamp.UnixNano(), run.Source, run.Fingerprint, run.RuleCount,
		run.FindingCount, run.Diagnostics, run.SecurityScore, run.EfficiencyScore, byKind)
	if err != nil {
		return Run{}, fmt.Errorf("failed to record run: %w", err)
	}
	return run, nil
}

const selectRuns = `
	SELECT id, ts, source, fingerprint, rule_count, finding_count,
		diagnostics, security_score, efficiency_score, by_kind
	FROM runs`

// List returns up to limit runs, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY ts DESC, seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns the run with the given ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Run{}, ErrStoreClosed
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// Prune deletes all but the newest keep runs and returns how many were
// removed.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM runs WHERE seq NOT IN (
			SELECT seq FROM runs ORDER BY ts DESC, seq DESC LIMIT ?
		)`, max(keep, 0))
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks that the database answers.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run    Run
		ts     int64
		byKind sql.NullString
	)
	err := row.Scan(&run.ID, &ts, &run.Source, &run.Fingerprint, &run.RuleCount,
		&run.FindingCount, &run.Diagnostics, &run.SecurityScore, &run.EfficiencyScore, &byKind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.Timestamp = time.Unix(0, ts).UTC()
	if byKind.Valid && byKind.String != "" {
		if err := json.Unmarshal([]byte(byKind.String), &run.ByKind); err != nil {
			return Run{}, fmt.Errorf("failed to decode kind counts: %w", err)
		}
	}
	return run, nil
}
