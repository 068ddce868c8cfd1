// Package ledger persists the audit trail of a run in SQLite: lifecycle
// events, agent residues, governor history and replay exports.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/lifecycle"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

var ErrNoRun = errors.New("no run started")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	scenario    TEXT,
	config_json TEXT,
	started_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lifecycle_events (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id          TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	cycle           INTEGER NOT NULL,
	kind            TEXT NOT NULL,
	agent           INTEGER,
	constraint_name TEXT,
	detail          TEXT,
	created_at      TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS residues (
	residue_id        TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	agent             INTEGER NOT NULL,
	depth             INTEGER NOT NULL,
	born              INTEGER NOT NULL,
	dissolved_at      INTEGER NOT NULL,
	age               INTEGER NOT NULL,
	final_coherence   REAL NOT NULL,
	final_uncertainty REAL NOT NULL,
	anchor_mean       REAL NOT NULL,
	anchor_norm       REAL NOT NULL,
	reason            TEXT,
	created_at        TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS governor_history (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id     TEXT NOT NULL,
	cycle      INTEGER NOT NULL,
	weights    BLOB NOT NULL,
	dominant   TEXT NOT NULL,
	loss       REAL NOT NULL,
	action     BLOB,
	decision   TEXT NOT NULL,
	update_op  TEXT NOT NULL,
	reason     TEXT,
	created_at TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS transitions (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id  TEXT NOT NULL,
	state   BLOB NOT NULL,
	action  BLOB NOT NULL,
	reward  REAL NOT NULL,
	next    BLOB NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
`

// #endregion schema

// #region store
// Store is the SQLite ledger. One Store records one run at a time.
type Store struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Open opens (or creates) the ledger at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RunID returns the id of the run being recorded.
func (s *Store) RunID() string {
	return s.runID
}

// #endregion store

// #region begin-run
// BeginRun registers a new run and makes it the target of every write.
func (s *Store) BeginRun(scenario string, cfg config.Config) (string, error) {
	id := uuid.New().String()
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO runs (run_id, scenario, config_json, started_at) VALUES (?, ?, ?, ?)`,
		id, nullIfEmpty(scenario), string(cfgJSON), s.now().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	s.runID = id
	return id, nil
}

// #endregion begin-run

// #region record-event
// Record implements events.Sink.
func (s *Store) Record(e events.Event) error {
	if s.runID == "" {
		return ErrNoRun
	}
	at := e.At
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.Exec(
		`INSERT INTO lifecycle_events (run_id, seq, cycle, kind, agent, constraint_name, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, e.Seq, e.Cycle, string(e.Kind), nullIfZero(e.Agent),
		nullIfEmpty(e.Constraint), nullIfEmpty(e.Detail), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// #endregion record-event

// #region observe-cycle
// ObserveCycle implements engine.Observer: it writes the governor event and
// every residue finalised in the cycle in one transaction.
func (s *Store) ObserveCycle(ctx context.Context, r engine.Report) error {
	if s.runID == "" {
		return ErrNoRun
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now().Format(time.RFC3339Nano)
	var action []byte
	if r.Governor.CommittedAction != nil {
		action = state.EncodeVector(r.Governor.CommittedAction)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO governor_history (run_id, cycle, weights, dominant, loss, action, decision, update_op, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.runID, r.Cycle, state.EncodeVector(r.Weights.Slice()), r.Governor.DominantField.String(),
		r.Governor.GovernanceLoss, action, r.Outcome, r.Update.Decision.Action,
		nullIfEmpty(r.Update.Decision.Reason), now,
	)
	if err != nil {
		return fmt.Errorf("insert governor: %w", err)
	}

	for _, res := range r.Lifecycle.Dissolved {
		if err := insertResidue(ctx, tx, s.runID, res); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertResidue(ctx context.Context, tx *sql.Tx, runID string, r lifecycle.Residue) error {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO residues (residue_id, run_id, agent, depth, born, dissolved_at, age,
		   final_coherence, final_uncertainty, anchor_mean, anchor_norm, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, runID, uint64(r.Agent), r.Depth, r.Born, r.DissolvedAt, r.Age,
		r.FinalCoherence, r.FinalUncertainty, r.AnchorMean, r.AnchorNorm,
		nullIfEmpty(r.Reason), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert residue %s: %w", r.ID, err)
	}
	return nil
}

// #endregion observe-cycle

// #region export
// ExportTransitions writes a replay buffer snapshot for the current run.
func (s *Store) ExportTransitions(ts []state.Transition) (int, error) {
	if s.runID == "" {
		return 0, ErrNoRun
	}
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO transitions (run_id, state, action, reward, next) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, t := range ts {
		if _, err := stmt.Exec(s.runID, state.EncodeVector(t.State), state.EncodeVector(t.Action),
			t.Reward, state.EncodeVector(t.Next)); err != nil {
			return 0, fmt.Errorf("insert transition: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ts), nil
}

// #endregion export

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(v uint64) interface{} {
	if v == 0 {
		return nil
	}
	return int64(v)
}

// dominantID parses a stored field name, falling back to the first field.
func dominantID(name string) field.ID {
	id, err := field.ParseID(name)
	if err != nil {
		return field.HumanCognitive
	}
	return id
}

// #endregion helpers
