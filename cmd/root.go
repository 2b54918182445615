package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"visualdupfinder/internal/config"
)

var (
	configPath string

	// Resolved in PersistentPreRunE for every subcommand.
	settings config.Config
	logger   = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile  *os.File
)

var rootCmd = &cobra.Command{
	Use:   "visualdupfinder",
	Short: "Find and dispose of visually duplicate images",
	Long: `visualdupfinder finds images that look the same even when their bytes differ.

Each image is reduced to a 64-bit perceptual fingerprint. Images whose
fingerprints are within the threshold of one another, directly or through a
chain of similar images, form a duplicate group. A strategy then decides
which member of each group to keep, or you decide group by group.

Example usage:
  visualdupfinder scan ./photos                        # Scan and auto-select
  visualdupfinder scan ./photos --mode manual          # Scan, decide later
  visualdupfinder review                               # Decide group by group
  visualdupfinder list                                 # Show groups and decisions
  visualdupfinder clean --dry-run                      # Preview file actions
  visualdupfinder history                              # Show past runs`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	def := config.Default()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", config.DefaultPath(), "Path to JSON config file")
	pf.String("db", def.DB, "Path to SQLite database")
	pf.Int("threshold", def.Threshold, "Hamming distance threshold (0-64, lower = stricter)")
	pf.Int("workers", def.Workers, "Number of parallel workers for fingerprinting")
	pf.String("timeout", def.Timeout.String(), "Per-file decode timeout (0 disables)")
	pf.String("min-size", "0", "Skip images smaller than this (e.g. 100KB)")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
}

// setup resolves settings (flag > config file > default) and the logger.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	o, err := flagOverrides(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Apply(o); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	settings = cfg

	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		if dir := filepath.Dir(cfg.LogFile); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
		}
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		w = f
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel}))
	logger.Debug("configuration loaded",
		slog.String("config", configPath),
		slog.String("db", cfg.DB),
		slog.Int("threshold", cfg.Threshold),
		slog.Int("workers", cfg.Workers),
	)
	return nil
}

// flagOverrides collects only the flags given on the command line. Flags a
// subcommand does not define report unchanged.
func flagOverrides(cmd *cobra.Command) (config.Overrides, error) {
	f := cmd.Flags()
	var o config.Overrides

	str := func(name string) *string {
		if !f.Changed(name) {
			return nil
		}
		v := f.Lookup(name).Value.String()
		return &v
	}
	boolean := func(name string) (*bool, error) {
		s := str(name)
		if s == nil {
			return nil, nil
		}
		v, err := strconv.ParseBool(*s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		return &v, nil
	}
	integer := func(name string) (*int, error) {
		s := str(name)
		if s == nil {
			return nil, nil
		}
		v, err := strconv.Atoi(*s)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		return &v, nil
	}

	var err error
	o.DB = str("db")
	o.Timeout = str("timeout")
	o.MinSize = str("min-size")
	o.LogLevel = str("log-level")
	o.LogFile = str("log-file")
	o.Mode = str("mode")
	o.Strategy = str("strategy")
	o.Remains = str("remains")
	o.MoveTo = str("move-to")
	o.GenerationTolerance = str("generation-tolerance")
	if o.Threshold, err = integer("threshold"); err != nil {
		return o, err
	}
	if o.Workers, err = integer("workers"); err != nil {
		return o, err
	}
	if o.Sort, err = boolean("sort"); err != nil {
		return o, err
	}
	if o.Exact, err = boolean("exact"); err != nil {
		return o, err
	}
	if o.KeepIntermediate, err = boolean("keep-intermediate"); err != nil {
		return o, err
	}
	return o, nil
}
