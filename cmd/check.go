package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fleet-sim/fleet-sim/sim"
	"github.com/fleet-sim/fleet-sim/sim/plan"
	"github.com/fleet-sim/fleet-sim/sim/sink"
	"github.com/fleet-sim/fleet-sim/sim/validate"
)

// checkCmd loads a scenario and reports what the engine would start from
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a scenario and print its snapshot counts and spawn ceilings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(cfg.Log)
		return checkScenario(cfg, cmd.OutOrStdout())
	},
}

// validateCmd re-checks rows stored by an earlier run
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the rows of an earlier run (.csv or .db) against the lifecycle invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSettings(cmd.Flags())
		if err != nil {
			return err
		}
		setupLogging(cfg.Log)
		runID, _ := cmd.Flags().GetString("run-id")
		return validateRows(cfg, runID, cmd.OutOrStdout())
	},
}

// checkScenario builds a simulator without running it.
func checkScenario(cfg *Settings, w io.Writer) error {
	in, err := buildInputs(cfg)
	if err != nil {
		return err
	}
	sm, err := in.NewSimulator(nil)
	if err != nil {
		return err
	}

	name := in.Name
	if name == "" {
		name = cfg.Scenario
	}
	fmt.Fprintf(w, "=== Scenario %s ===\n", name)
	fmt.Fprintf(w, "Horizon              : %d days\n", in.Plan.Horizon)
	fmt.Fprintf(w, "Units                : %d\n", len(in.Units))
	for _, c := range in.Classes.All() {
		fmt.Fprintf(w, "%-20s : %s", c.Name, c.Kind)
		for st := sim.StateInactive; st <= sim.StateUnserviceable; st++ {
			if n := sm.Fleet().Count(c, st); n > 0 {
				fmt.Fprintf(w, " %s=%d", st, n)
			}
		}
		if c.Kind == sim.KindAirframe && in.Plan.HasTarget(c.Name) {
			fmt.Fprintf(w, " target(day 1)=%d", in.Plan.Target(c.Name, 1))
		}
		fmt.Fprintln(w)
	}

	ceilings := sm.Ceilings()
	if len(ceilings) == 0 {
		fmt.Fprintln(w, "Spawning             : off")
		return nil
	}
	classes := make([]string, 0, len(ceilings))
	for c := range ceilings {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		fmt.Fprintf(w, "Spawn ceiling        : %s %d\n", c, ceilings[c])
	}
	return nil
}

// validateRows loads stored rows and checks them against the scenario.
func validateRows(cfg *Settings, runID string, w io.Writer) error {
	if cfg.Out == "" {
		return fmt.Errorf("--out is required: the .csv or .db file to validate")
	}
	in, err := buildInputs(cfg)
	if err != nil {
		return err
	}

	var rows []sim.DayRecord
	kind, _ := outputKind(cfg.Out)
	switch kind {
	case outSQLite:
		rows, runID, err = sink.LoadRunRows(cfg.Out, runID)
		if err == nil {
			fmt.Fprintf(w, "Run ID               : %s\n", runID)
		}
	default:
		rows, err = sink.ReadCSVFile(cfg.Out)
	}
	if err != nil {
		return err
	}

	report := validate.Check(in, rows)
	report.Fprint(w)
	if !report.OK() {
		return fmt.Errorf("validation failed: %d violations", len(report.Violations))
	}
	return nil
}

func buildInputs(cfg *Settings) (*plan.Inputs, error) {
	s, err := plan.LoadScenario(cfg.Scenario)
	if err != nil {
		return nil, err
	}
	cfg.apply(s)
	in, err := s.Build()
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", cfg.Scenario, err)
	}
	return in, nil
}

func init() {
	addEngineFlags(checkCmd)
	rootCmd.AddCommand(checkCmd)

	addEngineFlags(validateCmd)
	validateCmd.Flags().String("out", "", "Rows to validate: a .csv written with full output, or a .db")
	validateCmd.Flags().String("run-id", "", "Run to validate in a .db (default: the latest)")
	rootCmd.AddCommand(validateCmd)
}
