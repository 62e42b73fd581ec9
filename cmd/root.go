package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fleet-sim/fleet-sim/sim"
	"github.com/fleet-sim/fleet-sim/sim/plan"
	"github.com/fleet-sim/fleet-sim/sim/sink"
	"github.com/fleet-sim/fleet-sim/sim/trace"
	"github.com/fleet-sim/fleet-sim/sim/validate"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "fleetsim",
	Short:        "Day-by-day lifecycle simulator for fleets of airframes and their aggregates",
	SilenceUsage: true,
}

// runCmd simulates a scenario from its snapshot to the horizon
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a fleet scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()
		return runScenario(ctx, cfg, cmd.OutOrStdout())
	},
}

// runScenario loads, simulates and reports one scenario. Output sinks are
// closed before it returns, also on error.
func runScenario(ctx context.Context, cfg *Settings, w io.Writer) error {
	in, err := buildInputs(cfg)
	if err != nil {
		return err
	}

	checker := validate.NewChecker(in)
	sinks := []sim.Sink{checker}
	var store *sink.SQLiteSink
	if cfg.Out != "" {
		out, db, err := openOutput(cfg.Out, in)
		if err != nil {
			return err
		}
		store = db
		if cfg.ChangeOnly {
			out = sim.ChangeOnly(out)
		}
		sinks = append(sinks, out)
	}
	var metrics *sink.MetricsSink
	if cfg.MetricsAddr != "" {
		metrics = sink.NewMetricsSink()
		sinks = append(sinks, metrics)
	}
	all := sink.Multi(sinks...)

	sm, err := in.NewSimulator(all)
	if err != nil {
		all.Close()
		return err
	}

	startTime := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	if metrics != nil {
		g.Go(func() error { return metrics.Serve(serveCtx, cfg.MetricsAddr) })
	}
	g.Go(func() error {
		defer stopServing()
		return sm.Run(gctx)
	})
	runErr := g.Wait()
	stopServing()

	if store != nil && runErr == nil {
		runErr = store.SaveSummary(sm.Metrics)
	}
	if err := all.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("closing output: %w", err)
	}
	if runErr != nil {
		return runErr
	}
	logrus.Infof("Simulated %d days in %v", sm.Day, time.Since(startTime).Round(time.Millisecond))

	report := checker.Report()
	report.Add(validate.CheckLedger(in, sm.Ledger())...)

	sm.Metrics.Fprint(w)
	if sm.Trace != nil {
		printTraceSummary(w, trace.Summarize(sm.Trace))
	}
	report.Fprint(w)
	if store != nil {
		fmt.Fprintf(w, "Run ID               : %s\n", store.RunID())
	}
	if !report.OK() {
		return fmt.Errorf("validation failed: %d violations", len(report.Violations))
	}
	return nil
}

// openOutput creates the output sink for path. The SQLite store is also
// returned so the caller can attach the run summary.
func openOutput(path string, in *plan.Inputs) (sim.Sink, *sink.SQLiteSink, error) {
	kind, err := outputKind(path)
	if err != nil {
		return nil, nil, err
	}
	switch kind {
	case outSQLite:
		db, err := sink.OpenSQLite(path, in.Name, in.Plan.Horizon)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		csvSink, err := sink.CreateCSV(path)
		if err != nil {
			return nil, nil, err
		}
		return csvSink, nil, nil
	}
}

// printTraceSummary writes the decision trace summary; nothing when no
// decision was recorded.
func printTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	if ts.Promotions+ts.Demotions+ts.RepairsAdmitted+ts.RepairsDenied+ts.ClaimsCommitted+ts.Skips+ts.UnmetDays+ts.Spawned == 0 {
		return
	}
	fmt.Fprintln(w, "=== Decision Trace ===")
	tiers := make([]string, 0, len(ts.PromotionsByTier))
	for tier := range ts.PromotionsByTier {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	fmt.Fprintf(w, "Promotions           : %d", ts.Promotions)
	for _, tier := range tiers {
		fmt.Fprintf(w, " %s=%d", tier, ts.PromotionsByTier[tier])
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Demotions            : %d\n", ts.Demotions)
	fmt.Fprintf(w, "Repairs              : %d admitted, %d denied, %d backdated\n",
		ts.RepairsAdmitted, ts.RepairsDenied, ts.RepairsBackdated)
	if ts.ClaimsCommitted+ts.ClaimsReverted > 0 {
		fmt.Fprintf(w, "Claims               : %d committed, %d reverted\n", ts.ClaimsCommitted, ts.ClaimsReverted)
	}
	fmt.Fprintf(w, "Skipped transitions  : %d\n", ts.Skips)
	fmt.Fprintf(w, "Unmet demand         : %d units over %d days\n", ts.UnmetTotal, ts.UnmetDays)
	fmt.Fprintf(w, "Spawned              : %d\n", ts.Spawned)
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// addEngineFlags registers the flags shared by commands that build a simulator.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().String("scenario", "", "Scenario YAML file")
	cmd.Flags().String("log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().String("log-format", "text", "Log format (text or json)")
	cmd.Flags().Int("workers", 0, "Parallel lanes per phase (0 = GOMAXPROCS); overrides the scenario")
	cmd.Flags().Bool("adaptive", false, "Step over days on which nothing can change; overrides the scenario")
	cmd.Flags().Int("assembly-passes", sim.DefaultAssemblyPasses, "Matcher passes per tick; overrides the scenario")
	cmd.Flags().String("trace", "", "Decision trace level (none, decisions, claims); overrides the scenario")
}

// init sets up CLI flags and subcommands
func init() {
	addEngineFlags(runCmd)
	runCmd.Flags().String("out", "", "Output file: .csv or .db/.sqlite")
	runCmd.Flags().Bool("change-only", false, "Write only rows on which a transition fired (plus day 0)")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")

	rootCmd.AddCommand(runCmd)
}
