package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/audit"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/ledger"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/remote"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/scenario"
)

// #region run-cmd
// defaultSteps leaves room for the ensemble to warm up under the default
// replay batch size before the run ends.
const defaultSteps = 1000

type runOptions struct {
	scenario    string
	fixture     string
	steps       int
	seed        int64
	noise       float64
	dbPath      string
	metricsAddr string
	remotes     []string
	window      int
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the engine with a scenario preset or a recorded fixture",
		Long: "Run feeds observations through the engine and prints a summary.\n" +
			"Scenarios: " + strings.Join(scenario.Names(), ", "),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, cmd, root, opts)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.scenario, "scenario", "s", "balanced", "scenario preset")
	f.StringVar(&opts.fixture, "fixture", "", "replay a JSON observation fixture instead of a preset")
	f.IntVarP(&opts.steps, "steps", "n", defaultSteps,
		"cycles to run (0 runs a fixture to the end); the ensemble only trains once replay.batch_size committed transitions are buffered")
	f.Int64Var(&opts.seed, "seed", 0, "override the configured seed")
	f.Float64Var(&opts.noise, "noise", scenario.DefaultNoise, "scenario noise level")
	f.StringVar(&opts.dbPath, "db", envOr("NINEFIELD_DB", ""), "SQLite ledger path; empty disables persistence")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.StringArrayVar(&opts.remotes, "remote", nil, "route a field to a policy server, as field=host:port (repeatable)")
	f.IntVar(&opts.window, "continuity-window", 120, "cycles kept for the continuity audit")
	return cmd
}

func runScenario(ctx context.Context, cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("seed") {
		cfg.Runtime.Seed = opts.seed
	}
	log, err := root.logger()
	if err != nil {
		return err
	}
	defer log.Sync()

	src, name, err := openSource(opts, cfg.Model.InputDim, cfg.Runtime.Seed)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if opts.metricsAddr != "" {
		srv := &http.Server{Addr: opts.metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	engineOpts := []engine.Option{engine.WithLogger(log), engine.WithMetrics(m)}

	var store *ledger.Store
	if opts.dbPath != "" {
		store, err = ledger.Open(opts.dbPath)
		if err != nil {
			return err
		}
		defer store.Close()
		runID, err := store.BeginRun(name, cfg)
		if err != nil {
			return err
		}
		log.Info("ledger run started", zap.String("run_id", runID), zap.String("db", opts.dbPath))
		engineOpts = append(engineOpts,
			engine.WithEventLog(events.NewLog(store)),
			engine.WithObserver(store))
	}

	for _, arg := range opts.remotes {
		id, addr, err := parseRemote(arg)
		if err != nil {
			return err
		}
		client, err := remote.NewClient(addr)
		if err != nil {
			return err
		}
		defer client.Close()
		engineOpts = append(engineOpts, engine.WithProvider(id, client.Policy(id)))
		log.Info("remote field", zap.Stringer("field", id), zap.String("addr", addr))
	}

	e, err := engine.New(cfg, engineOpts...)
	if err != nil {
		return err
	}
	suite := audit.NewSuite(e.Enforcer(), opts.window)
	e.AddObserver(suite)

	summary, runErr := scenario.Run(ctx, e, src, opts.steps)
	if store != nil {
		n, err := store.ExportTransitions(e.Transitions(0))
		if err != nil {
			log.Warn("export transitions failed", zap.Error(err))
		} else {
			log.Info("transitions exported", zap.Int("count", n))
		}
	}
	printSummary(cmd.OutOrStdout(), name, summary, suite.Report())
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// #endregion run-cmd

// #region run-helpers
func openSource(opts *runOptions, inputDim int, seed int64) (scenario.Source, string, error) {
	if opts.fixture != "" {
		fx, err := scenario.LoadFixture(opts.fixture)
		if err != nil {
			return nil, "", err
		}
		return fx.Source(inputDim), "fixture:" + opts.fixture, nil
	}
	p, err := scenario.Lookup(opts.scenario)
	if err != nil {
		return nil, "", err
	}
	return scenario.NewGenerator(p, inputDim, opts.noise, seed), p.Name, nil
}

func parseRemote(arg string) (field.ID, string, error) {
	name, addr, ok := strings.Cut(arg, "=")
	if !ok || addr == "" {
		return 0, "", fmt.Errorf("remote %q: want field=host:port", arg)
	}
	id, err := field.ParseID(name)
	if err != nil {
		return 0, "", fmt.Errorf("remote %q: %w", arg, err)
	}
	return id, addr, nil
}

func printSummary(w io.Writer, name string, s scenario.Summary, a audit.Report) {
	fmt.Fprintf(w, "scenario %s: %d cycles\n", name, s.Cycles)
	fmt.Fprintf(w, "  actions   commit=%d reject=%d empty=%d\n", s.Commits, s.Rejects, s.Empty)
	fmt.Fprintf(w, "  governor  updates=%d no_op=%d mean_loss=%.4f\n", s.UpdatesApplied, s.NoOps, s.MeanLoss)
	fmt.Fprintf(w, "  lifecycle spawn=%d mature=%d dissolve=%d violation=%d population=%d\n",
		s.Spawns, s.Matures, s.Dissolves, s.Violations, s.FinalPopulation)
	fmt.Fprintf(w, "  missing   %d field proposals\n", s.MissingFields)
	fmt.Fprintln(w, "  dominant:")
	for _, id := range field.All() {
		if s.Dominant[id] > 0 {
			fmt.Fprintf(w, "    %-26s %d\n", id, s.Dominant[id])
		}
	}
	fmt.Fprintf(w, "  audit     alignment=%.3f action_required=%d fragile=%d/%d trend=%s continuous=%t findings=%d\n",
		a.Evaluation.AverageAlignment, a.Evaluation.ActionRequired, a.Fragile, a.Explored,
		a.Continuity.Trend, a.Continuity.Continuous, a.FindingsTotal)
}

// #endregion run-helpers
