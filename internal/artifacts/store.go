// Package artifacts persists the outputs of one analysis run: retrieval
// coefficients, validation records, and sensitivity rankings. Artifacts are
// run-scoped and append-only; a re-run writes a new run rather than mutating
// an old one. SQLite keeps the store a single portable file with no server.
package artifacts

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mjsandells/snowschool2024/internal/retrieval"
	"github.com/mjsandells/snowschool2024/internal/validation"
)

// Store writes analysis artifacts to a SQLite database.
type Store struct {
	db    *sql.DB
	runID string
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	label TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS coefficients (
	run_id TEXT NOT NULL REFERENCES runs(id),
	label TEXT NOT NULL,
	slope REAL NOT NULL,
	intercept REAL NOT NULL,
	r_squared REAL NOT NULL,
	x_min REAL NOT NULL,
	x_max REAL NOT NULL,
	range_start INTEGER NOT NULL,
	range_end INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS validation_records (
	run_id TEXT NOT NULL REFERENCES runs(id),
	label TEXT NOT NULL,
	time TIMESTAMP NOT NULL,
	observed REAL NOT NULL,
	simulated REAL NOT NULL,
	retrieved REAL NOT NULL,
	residual_sim REAL NOT NULL,
	residual_ret REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS sensitivity (
	run_id TEXT NOT NULL REFERENCES runs(id),
	rank INTEGER NOT NULL,
	parameter TEXT NOT NULL,
	explained_variance REAL NOT NULL,
	baseline_rmse REAL NOT NULL,
	perturbed_rmse REAL NOT NULL
);
`

// Open creates or opens the artifact database and starts a new run scope
// with the given label.
func Open(path, runLabel string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open artifact store %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create artifact schema: %w", err)
	}

	runID := uuid.New().String()
	_, err = db.Exec(`INSERT INTO runs (id, label, created_at) VALUES (?, ?, ?)`,
		runID, runLabel, time.Now().UTC())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register run: %w", err)
	}
	return &Store{db: db, runID: runID}, nil
}

// RunID returns the identifier of the current run scope.
func (s *Store) RunID() string { return s.runID }

// SaveCoefficient records one fitted retrieval law under a label such as
// "swe-mm" or "depth-cm".
func (s *Store) SaveCoefficient(label string, c retrieval.Coefficient) error {
	_, err := s.db.Exec(`INSERT INTO coefficients
		(run_id, label, slope, intercept, r_squared, x_min, x_max, range_start, range_end)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, label, c.Slope, c.Intercept, c.R2, c.XMin, c.XMax, c.Range.Start, c.Range.End)
	if err != nil {
		return fmt.Errorf("save coefficient %q: %w", label, err)
	}
	return nil
}

// SaveValidation records a comparison series under a label such as "swe".
func (s *Store) SaveValidation(label string, records []validation.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO validation_records
		(run_id, label, time, observed, simulated, retrieved, residual_sim, residual_ret)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, r := range records {
		if _, err := stmt.Exec(s.runID, label, r.Time.UTC(), r.Observed, r.Simulated,
			r.Retrieved, r.ResidualSim, r.ResidualRet); err != nil {
			tx.Rollback()
			return fmt.Errorf("save validation record: %w", err)
		}
	}
	return tx.Commit()
}

// SaveSensitivity records a ranked sensitivity sweep.
func (s *Store) SaveSensitivity(ranked []validation.Sensitivity) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for rank, sv := range ranked {
		_, err := tx.Exec(`INSERT INTO sensitivity
			(run_id, rank, parameter, explained_variance, baseline_rmse, perturbed_rmse)
			VALUES (?, ?, ?, ?, ?, ?)`,
			s.runID, rank+1, sv.Parameter, sv.ExplainedVariance, sv.BaselineRMSE, sv.PerturbedRMSE)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("save sensitivity %q: %w", sv.Parameter, err)
		}
	}
	return tx.Commit()
}

// Coefficients reads back the coefficients stored for a run (the current run
// when runID is empty).
func (s *Store) Coefficients(runID string) (map[string]retrieval.Coefficient, error) {
	if runID == "" {
		runID = s.runID
	}
	rows, err := s.db.Query(`SELECT label, slope, intercept, r_squared, x_min, x_max, range_start, range_end
		FROM coefficients WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]retrieval.Coefficient)
	for rows.Next() {
		var label string
		var c retrieval.Coefficient
		if err := rows.Scan(&label, &c.Slope, &c.Intercept, &c.R2, &c.XMin, &c.XMax,
			&c.Range.Start, &c.Range.End); err != nil {
			return nil, err
		}
		out[label] = c
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
