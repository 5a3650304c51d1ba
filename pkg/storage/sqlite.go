package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "runs: one row per training run",
		SQL: `
CREATE TABLE runs (
    id                        INTEGER PRIMARY KEY,
    experiment                TEXT NOT NULL,
    run_id                    TEXT NOT NULL UNIQUE,
    run_index                 INTEGER NOT NULL,
    started_at                TEXT NOT NULL,
    finished_at               TEXT NOT NULL,
    epochs                    INTEGER NOT NULL,
    best_validation_accuracy  REAL NOT NULL,
    saves                     INTEGER NOT NULL DEFAULT 0,
    decays                    INTEGER NOT NULL DEFAULT 0,
    final_learning_rate       REAL NOT NULL,
    checkpoint_dir            TEXT NOT NULL
);

CREATE INDEX idx_runs_experiment ON runs(experiment, id);
`,
	},
	{
		Version:     2,
		Description: "run_history: per-epoch metrics",
		SQL: `
ALTER TABLE runs ADD COLUMN history_json TEXT;
`,
	},
	{
		Version:     3,
		Description: "runs: learning rate reductions",
		SQL: `
ALTER TABLE runs ADD COLUMN rate_reductions INTEGER NOT NULL DEFAULT 0;
`,
	},
}

// SQLiteStore keeps run records in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and runs migrations.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_version (version) VALUES (?)`, m.Version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks that the database file is still usable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Put inserts a run record.
func (s *SQLiteStore) Put(ctx context.Context, run RunRecord) error {
	if run.Experiment == "" {
		return errors.New("run experiment cannot be empty")
	}
	if !ValidExperiment(run.Experiment) {
		return fmt.Errorf("%w: %q", ErrInvalidExperiment, run.Experiment)
	}
	if run.RunID == "" {
		return errors.New("run id cannot be empty")
	}

	history, err := json.Marshal(run.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (experiment, run_id, run_index, started_at, finished_at, epochs,
		                   best_validation_accuracy, saves, decays, final_learning_rate,
		                   rate_reductions, checkpoint_dir, history_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Experiment, run.RunID, run.Index,
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano),
		run.Epochs, run.BestValidationAccuracy, run.Saves, run.Decays, run.FinalLearningRate,
		run.RateReductions, run.CheckpointDir, string(history),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

const selectRun = `SELECT experiment, run_id, run_index, started_at, finished_at, epochs,
       best_validation_accuracy, saves, decays, final_learning_rate, rate_reductions,
       checkpoint_dir, history_json
FROM runs`

// GetLatest returns the most recently inserted run of an experiment.
func (s *SQLiteStore) GetLatest(ctx context.Context, experiment string) (RunRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, selectRun+` WHERE experiment = ? ORDER BY id DESC LIMIT 1`, experiment)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, false, nil
	}
	if err != nil {
		return RunRecord{}, false, fmt.Errorf("get latest run: %w", err)
	}
	return run, true, nil
}

// List returns the runs of an experiment in insertion order.
func (s *SQLiteStore) List(ctx context.Context, experiment string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectRun+` WHERE experiment = ? ORDER BY id`, experiment)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (RunRecord, error) {
	var run RunRecord
	var started, finished string
	var history sql.NullString

	err := sc.Scan(&run.Experiment, &run.RunID, &run.Index, &started, &finished, &run.Epochs,
		&run.BestValidationAccuracy, &run.Saves, &run.Decays, &run.FinalLearningRate,
		&run.RateReductions, &run.CheckpointDir, &history)
	if err != nil {
		return RunRecord{}, err
	}

	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	if history.Valid && history.String != "" && history.String != "null" {
		if err := json.Unmarshal([]byte(history.String), &run.History); err != nil {
			return RunRecord{}, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	return run, nil
}
