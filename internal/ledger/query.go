package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region runs
// ListRuns returns every run, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`SELECT run_id, COALESCE(scenario, ''), COALESCE(config_json, ''), started_at
		FROM runs ORDER BY started_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var started string
		if err := rows.Scan(&r.RunID, &r.Scenario, &r.Config, &started); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (Run, error) {
	runs, err := s.ListRuns()
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("latest run: %w", sql.ErrNoRows)
	}
	return runs[0], nil
}

// #endregion runs

// #region events
func (s *Store) ListEvents(runID string) ([]EventRow, error) {
	rows, err := s.db.Query(`SELECT run_id, seq, cycle, kind, COALESCE(agent, 0),
		COALESCE(constraint_name, ''), COALESCE(detail, ''), created_at
		FROM lifecycle_events WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []EventRow
	for rows.Next() {
		var e EventRow
		var agent int64
		var created string
		if err := rows.Scan(&e.RunID, &e.Seq, &e.Cycle, &e.Kind, &agent, &e.Constraint, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Agent = uint64(agent)
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion events

// #region residues
func (s *Store) ListResidues(runID string) ([]ResidueRow, error) {
	rows, err := s.db.Query(`SELECT residue_id, run_id, agent, depth, born, dissolved_at, age,
		final_coherence, final_uncertainty, anchor_mean, anchor_norm, COALESCE(reason, ''), created_at
		FROM residues WHERE run_id = ? ORDER BY dissolved_at, agent`, runID)
	if err != nil {
		return nil, fmt.Errorf("query residues: %w", err)
	}
	defer rows.Close()

	var out []ResidueRow
	for rows.Next() {
		var r ResidueRow
		var agent int64
		var created string
		if err := rows.Scan(&r.ResidueID, &r.RunID, &agent, &r.Depth, &r.Born, &r.DissolvedAt, &r.Age,
			&r.FinalCoherence, &r.FinalUncertainty, &r.AnchorMean, &r.AnchorNorm, &r.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan residue: %w", err)
		}
		r.Agent = uint64(agent)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion residues

// #region governor
// ListGovernor returns the governor history of a run, oldest cycle first.
// limit <= 0 returns everything.
func (s *Store) ListGovernor(runID string, limit int) ([]GovernorRow, error) {
	q := `SELECT run_id, cycle, weights, dominant, loss, action, decision, update_op, COALESCE(reason, ''), created_at
		FROM governor_history WHERE run_id = ? ORDER BY cycle`
	args := []interface{}{runID}
	if limit > 0 {
		q = `SELECT * FROM (SELECT run_id, cycle, weights, dominant, loss, action, decision, update_op, COALESCE(reason, ''), created_at
			FROM governor_history WHERE run_id = ? ORDER BY cycle DESC LIMIT ?) ORDER BY cycle`
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query governor: %w", err)
	}
	defer rows.Close()

	var out []GovernorRow
	for rows.Next() {
		var g GovernorRow
		var weights, action []byte
		var dominant, created string
		if err := rows.Scan(&g.RunID, &g.Cycle, &weights, &dominant, &g.Loss, &action,
			&g.Decision, &g.Update, &g.Reason, &created); err != nil {
			return nil, fmt.Errorf("scan governor: %w", err)
		}
		g.Dominant = dominantID(dominant)
		g.Weights = state.DecodeVector(weights)
		if len(action) > 0 {
			g.Action = state.DecodeVector(action)
		}
		g.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, g)
	}
	return out, rows.Err()
}

// #endregion governor

// #region transitions
// LoadTransitions reads a run's exported replay snapshot in insertion order.
func (s *Store) LoadTransitions(runID string) ([]state.Transition, error) {
	rows, err := s.db.Query(`SELECT state, action, reward, next FROM transitions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []state.Transition
	for rows.Next() {
		var st, act, next []byte
		var t state.Transition
		if err := rows.Scan(&st, &act, &t.Reward, &next); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.State, t.Action, t.Next = state.DecodeVector(st), state.DecodeVector(act), state.DecodeVector(next)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return out, nil
}

// #endregion transitions
