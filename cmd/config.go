package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fleet-sim/fleet-sim/sim/plan"
	"github.com/fleet-sim/fleet-sim/sim/trace"
)

// Settings are the run options resolved from, in increasing precedence,
// built-in defaults, an optional fleetsim.yaml, FLEETSIM_* environment
// variables and command-line flags. Engine fields are nil unless set
// somewhere, in which case they override the scenario's engine section.
type Settings struct {
	Scenario    string
	Out         string
	ChangeOnly  bool
	MetricsAddr string
	Trace       string
	Log         LogConfig

	Workers        *int
	Adaptive       *bool
	AssemblyPasses *int
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// flagKeys maps flag names to their viper keys.
var flagKeys = map[string]string{
	"scenario":        "scenario",
	"out":             "out",
	"change-only":     "change_only",
	"metrics-addr":    "metrics_addr",
	"trace":           "trace",
	"log":             "log.level",
	"log-format":      "log.format",
	"workers":         "engine.workers",
	"adaptive":        "engine.adaptive",
	"assembly-passes": "engine.assembly_passes",
}

// loadSettings resolves Settings for a command whose flags are fs.
func loadSettings(fs *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigName("fleetsim")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, "fleetsim"))
	}
	if configPath := os.Getenv("FLEETSIM_CONFIG_PATH"); configPath != "" {
		v.SetConfigFile(configPath)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FLEETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("binding --%s: %w", name, err)
			}
		}
	}

	cfg := &Settings{
		Scenario:    v.GetString("scenario"),
		Out:         v.GetString("out"),
		ChangeOnly:  v.GetBool("change_only"),
		MetricsAddr: v.GetString("metrics_addr"),
		Trace:       v.GetString("trace"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}
	if v.IsSet("engine.workers") {
		n := v.GetInt("engine.workers")
		cfg.Workers = &n
	}
	if v.IsSet("engine.adaptive") {
		b := v.GetBool("engine.adaptive")
		cfg.Adaptive = &b
	}
	if v.IsSet("engine.assembly_passes") {
		n := v.GetInt("engine.assembly_passes")
		cfg.AssemblyPasses = &n
	}

	if err := validateSettings(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// validateSettings validates the configuration values.
func validateSettings(cfg *Settings) error {
	if cfg.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}

	if _, err := logrus.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", cfg.Log.Level)
	}
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[strings.ToLower(cfg.Log.Format)] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", cfg.Log.Format)
	}

	if cfg.Workers != nil && *cfg.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", *cfg.Workers)
	}
	if cfg.AssemblyPasses != nil && *cfg.AssemblyPasses < 1 {
		return fmt.Errorf("assembly_passes must be >= 1, got %d", *cfg.AssemblyPasses)
	}
	if !trace.IsValidTraceLevel(cfg.Trace) {
		return fmt.Errorf("unknown trace level %q", cfg.Trace)
	}
	if cfg.Out != "" {
		if _, err := outputKind(cfg.Out); err != nil {
			return err
		}
	}
	return nil
}

// setupLogging applies the log level and format.
func setupLogging(cfg LogConfig) {
	level, _ := logrus.ParseLevel(cfg.Level)
	logrus.SetLevel(level)
	if strings.ToLower(cfg.Format) == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// apply overlays the engine and trace settings onto a loaded scenario.
func (cfg *Settings) apply(s *plan.Scenario) {
	if cfg.Workers != nil {
		s.Engine.Workers = *cfg.Workers
	}
	if cfg.Adaptive != nil {
		s.Engine.Adaptive = *cfg.Adaptive
	}
	if cfg.AssemblyPasses != nil {
		s.Engine.AssemblyPasses = *cfg.AssemblyPasses
	}
	if cfg.Trace != "" {
		s.Trace = cfg.Trace
	}
}

type outKind int

const (
	outCSV outKind = iota + 1
	outSQLite
)

// outputKind picks the sink from the output file extension.
func outputKind(path string) (outKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return outCSV, nil
	case ".db", ".sqlite", ".sqlite3":
		return outSQLite, nil
	}
	return 0, fmt.Errorf("unsupported output %q (use .csv, .db or .sqlite)", path)
}
