package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/ledger"
)

// #region inspect-cmd
type inspectOptions struct {
	dbPath  string
	runID   string
	last    int
	runs    bool
	jsonOut bool
}

func newInspectCmd() *cobra.Command {
	opts := &inspectOptions{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print governor history, lifecycle events and residues from a ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd.OutOrStdout(), opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.dbPath, "db", envOr("NINEFIELD_DB", ""), "SQLite ledger path")
	f.StringVar(&opts.runID, "run", "", "run id (default: latest)")
	f.IntVar(&opts.last, "last", 20, "governor rows to show")
	f.BoolVar(&opts.runs, "runs", false, "list runs only")
	f.BoolVar(&opts.jsonOut, "json", false, "output as JSON instead of tables")
	return cmd
}

type inspectView struct {
	Run      ledger.Run           `json:"run"`
	Governor []ledger.GovernorRow `json:"governor"`
	Events   []ledger.EventRow    `json:"events"`
	Residues []ledger.ResidueRow  `json:"residues"`
}

func runInspect(w io.Writer, opts *inspectOptions) error {
	if opts.dbPath == "" {
		return fmt.Errorf("--db is required")
	}
	store, err := ledger.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.runs {
		runs, err := store.ListRuns()
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(w, runs)
		}
		fmt.Fprintf(w, "%-36s  %-20s  %s\n", "Run", "Scenario", "Started")
		for _, r := range runs {
			fmt.Fprintf(w, "%-36s  %-20s  %s\n", r.RunID, r.Scenario, r.StartedAt.Format("2006-01-02T15:04:05Z"))
		}
		return nil
	}

	var view inspectView
	if opts.runID == "" {
		view.Run, err = store.LatestRun()
	} else {
		view.Run, err = findRun(store, opts.runID)
	}
	if err != nil {
		return err
	}
	if view.Governor, err = store.ListGovernor(view.Run.RunID, opts.last); err != nil {
		return err
	}
	if view.Events, err = store.ListEvents(view.Run.RunID); err != nil {
		return err
	}
	if view.Residues, err = store.ListResidues(view.Run.RunID); err != nil {
		return err
	}
	if opts.jsonOut {
		return printJSON(w, view)
	}
	printView(w, view)
	return nil
}

// #endregion inspect-cmd

// #region inspect-output
func findRun(store *ledger.Store, id string) (ledger.Run, error) {
	runs, err := store.ListRuns()
	if err != nil {
		return ledger.Run{}, err
	}
	for _, r := range runs {
		if r.RunID == id {
			return r, nil
		}
	}
	return ledger.Run{}, fmt.Errorf("run %s: %w", id, ledger.ErrNoRun)
}

func printView(w io.Writer, v inspectView) {
	fmt.Fprintf(w, "run %s (%s) started %s\n\n", v.Run.RunID, v.Run.Scenario, v.Run.StartedAt.Format("2006-01-02T15:04:05Z"))

	fmt.Fprintf(w, "%6s  %-8s  %-8s  %-26s  %10s  %s\n", "Cycle", "Decision", "Update", "Dominant", "Loss", "Reason")
	for _, g := range v.Governor {
		fmt.Fprintf(w, "%6d  %-8s  %-8s  %-26s  %10.5f  %s\n", g.Cycle, g.Decision, g.Update, g.Dominant, g.Loss, g.Reason)
	}

	fmt.Fprintf(w, "\n%6s  %6s  %-10s  %6s  %-20s  %s\n", "Seq", "Cycle", "Kind", "Agent", "Constraint", "Detail")
	for _, e := range v.Events {
		fmt.Fprintf(w, "%6d  %6d  %-10s  %6d  %-20s  %s\n", e.Seq, e.Cycle, e.Kind, e.Agent, e.Constraint, e.Detail)
	}

	fmt.Fprintf(w, "\n%6s  %6s  %6s  %6s  %8s  %8s  %s\n", "Agent", "Born", "Died", "Age", "Coher", "Uncert", "Reason")
	for _, r := range v.Residues {
		fmt.Fprintf(w, "%6d  %6d  %6d  %6d  %8.4f  %8.4f  %s\n",
			r.Agent, r.Born, r.DissolvedAt, r.Age, r.FinalCoherence, r.FinalUncertainty, r.Reason)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// #endregion inspect-output
