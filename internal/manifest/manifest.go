// Run ledger persisted to SQLite
package manifest

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
	_ "modernc.org/sqlite" // pure go sqlite driver
)

// ImageRecord describes one generated file.
type ImageRecord struct {
	RunID     string
	Label     string
	Site      string
	SiteSeq   int
	Variant   int
	Angle     float64
	Zoom      float64
	Flip      bool
	Source    string
	Dest      string
	CreatedAt time.Time
}

// Recorder receives every generated file. Implementations must be safe for
// concurrent use.
type Recorder interface {
	RecordImage(ctx context.Context, rec ImageRecord) error
}

// Nop discards records.
type Nop struct{}

func (Nop) RecordImage(context.Context, ImageRecord) error { return nil }

// Run is one balancing pass.
type Run struct {
	ID                string
	StartedAt         time.Time
	FinishedAt        time.Time
	InDir             string
	DestDir           string
	Engine            string
	Seed              uint64
	DeficientCategory string
	Deficit           int
	Outcome           string
}

// Store writes runs and images to a single SQLite file.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	in_dir TEXT NOT NULL,
	dest_dir TEXT NOT NULL,
	engine TEXT NOT NULL,
	seed INTEGER NOT NULL,
	deficient_category TEXT,
	deficit INTEGER NOT NULL DEFAULT 0,
	outcome TEXT
);
CREATE TABLE IF NOT EXISTS augmented_images (
	run_id TEXT NOT NULL REFERENCES runs(id),
	label TEXT NOT NULL,
	site TEXT NOT NULL,
	site_seq INTEGER NOT NULL,
	variant INTEGER NOT NULL,
	angle REAL NOT NULL,
	zoom REAL NOT NULL,
	flip INTEGER NOT NULL,
	source TEXT NOT NULL,
	dest TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, dest)
);`

// Open creates the file and schema when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("manifest path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers from concurrent label tasks
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts run and returns its id, generating one when empty.
func (s *Store) StartRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, in_dir, dest_dir, engine, seed, deficient_category, deficit)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(time.RFC3339Nano), run.InDir, run.DestDir,
		run.Engine, int64(run.Seed), run.DeficientCategory, run.Deficit)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return run.ID, nil
}

// FinishRun stores the terminal outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id, deficientCategory string, deficit int, outcome string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, deficient_category = ?, deficit = ?, outcome = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339Nano), deficientCategory, deficit, outcome, id)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// RecordImage implements Recorder. A rerun into the same destination
// replaces the earlier row for that file.
func (s *Store) RecordImage(ctx context.Context, rec ImageRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	flip := 0
	if rec.Flip {
		flip = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO augmented_images
		 (run_id, label, site, site_seq, variant, angle, zoom, flip, source, dest, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Label, rec.Site, rec.SiteSeq, rec.Variant, rec.Angle, rec.Zoom, flip,
		rec.Source, rec.Dest, rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		run                          Run
		started                      string
		finished, deficient, outcome sql.NullString
		seed                         int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, started_at, finished_at, in_dir, dest_dir, engine, seed, deficient_category, deficit, outcome
		 FROM runs WHERE id = ?`, id).
		Scan(&run.ID, &started, &finished, &run.InDir, &run.DestDir, &run.Engine, &seed, &deficient, &run.Deficit, &outcome)
	if err != nil {
		return Run{}, fmt.Errorf("select run %s: %w", id, err)
	}
	run.Seed = uint64(seed)
	run.DeficientCategory = deficient.String
	run.Outcome = outcome.String
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, fmt.Errorf("parse started_at: %w", err)
	}
	if finished.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339Nano, finished.String); err != nil {
			return Run{}, fmt.Errorf("parse finished_at: %w", err)
		}
	}
	return run, nil
}

// Images lists a run's records ordered by label, site, site sequence and variant.
func (s *Store) Images(ctx context.Context, runID string) ([]ImageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, label, site, site_seq, variant, angle, zoom, flip, source, dest, created_at
		 FROM augmented_images WHERE run_id = ?
		 ORDER BY label, site, site_seq, variant`, runID)
	if err != nil {
		return nil, fmt.Errorf("select images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []ImageRecord
	for rows.Next() {
		var (
			rec     ImageRecord
			flip    int
			created string
		)
		if err := rows.Scan(&rec.RunID, &rec.Label, &rec.Site, &rec.SiteSeq, &rec.Variant,
			&rec.Angle, &rec.Zoom, &flip, &rec.Source, &rec.Dest, &created); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		rec.Flip = flip == 1
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountImages returns how many records a run has per label.
func (s *Store) CountImages(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT label, COUNT(*) FROM augmented_images WHERE run_id = ? GROUP BY label`, runID)
	if err != nil {
		return nil, fmt.Errorf("count images: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
