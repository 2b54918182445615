// Package config merges built-in defaults, the JSON config file and
// command-line flags into the settings for one invocation.
//
// Precedence: explicit flag > config file > default.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"visualdupfinder/internal/models"
	"visualdupfinder/internal/pipeline"
	"visualdupfinder/internal/selection"
)

// ErrInvalid marks a configuration that cannot be used.
var ErrInvalid = errors.New("invalid configuration")

// Built-in defaults.
const (
	DefaultThreshold = 5
	DefaultWorkers   = 4
	DefaultTimeout   = 30 * time.Second
	DefaultMode      = pipeline.ModeAuto
	DefaultStrategy  = models.KeepBestQuality
	DefaultRemains   = models.RemainsRecycle
)

// Error is a configuration failure tied to the file it came from.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%v: %v", ErrInvalid, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrInvalid, e.Path, e.Err)
}

func (e *Error) Unwrap() []error { return []error{ErrInvalid, e.Err} }

// File mirrors config.json. Pointer fields distinguish "absent" from zero.
type File struct {
	DB                  string `json:"db"`
	Threshold           *int   `json:"threshold"`
	Workers             *int   `json:"workers"`
	Timeout             string `json:"timeout"`  // Go duration, e.g. "30s"
	MinSize             string `json:"min_size"` // e.g. "100KB"
	Mode                string `json:"mode"`
	Strategy            string `json:"strategy"`
	Remains             string `json:"remains"`
	Sort                *bool  `json:"sort"`
	Exact               *bool  `json:"exact"`
	MoveTo              string `json:"move_to"`
	GenerationTolerance string `json:"generation_tolerance"`
	KeepIntermediate    *bool  `json:"keep_intermediate"`
	LogLevel            string `json:"log_level"`
	LogFile             string `json:"log_file"`
}

// Config is the effective configuration.
type Config struct {
	DB        string
	Threshold int
	Workers   int
	Timeout   time.Duration
	MinSize   int64

	Mode      pipeline.Mode
	Strategy  models.Strategy
	Remains   models.RemainsAction
	Sort      bool
	Exact     bool
	MoveTo    string
	Selection selection.Options

	LogLevel slog.Level
	LogFile  string
}

// Dir is the per-user settings directory, ~/.visualdupfinder.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".visualdupfinder"
	}
	return filepath.Join(home, ".visualdupfinder")
}

// DefaultPath is where the config file is looked for when none is named.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.json")
}

// Default returns the built-in configuration.
func Default() Config {
	opts := selection.DefaultOptions()
	opts.RemainsAction = DefaultRemains
	return Config{
		DB:        filepath.Join(Dir(), "images.db"),
		Threshold: DefaultThreshold,
		Workers:   DefaultWorkers,
		Timeout:   DefaultTimeout,
		Mode:      DefaultMode,
		Strategy:  DefaultStrategy,
		Remains:   DefaultRemains,
		Selection: opts,
		LogLevel:  slog.LevelInfo,
	}
}

// Load reads path over the defaults. A missing file is fine unless
// required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return cfg, nil
		}
		return Config{}, &Error{Path: path, Err: err}
	}

	var f File
	if err := json.Unmarshal(b, &f); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	if err := cfg.merge(f); err != nil {
		return Config{}, &Error{Path: path, Err: err}
	}
	return cfg, nil
}

func (c *Config) merge(f File) error {
	if f.DB != "" {
		c.DB = f.DB
	}
	if f.Threshold != nil {
		c.Threshold = *f.Threshold
	}
	if f.Workers != nil {
		c.Workers = *f.Workers
	}
	if f.Sort != nil {
		c.Sort = *f.Sort
	}
	if f.Exact != nil {
		c.Exact = *f.Exact
	}
	if f.KeepIntermediate != nil {
		c.Selection.KeepIntermediate = *f.KeepIntermediate
	}
	if f.MoveTo != "" {
		c.MoveTo = f.MoveTo
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}

	o := Overrides{
		Timeout:             optional(f.Timeout),
		MinSize:             optional(f.MinSize),
		Mode:                optional(f.Mode),
		Strategy:            optional(f.Strategy),
		Remains:             optional(f.Remains),
		GenerationTolerance: optional(f.GenerationTolerance),
		LogLevel:            optional(f.LogLevel),
	}
	return c.Apply(o)
}

// Overrides holds command-line values; nil means the flag was not given.
type Overrides struct {
	DB                  *string
	Threshold           *int
	Workers             *int
	Timeout             *string
	MinSize             *string
	Mode                *string
	Strategy            *string
	Remains             *string
	Sort                *bool
	Exact               *bool
	MoveTo              *string
	GenerationTolerance *string
	KeepIntermediate    *bool
	LogLevel            *string
	LogFile             *string
}

// Apply lays o over c. String values are parsed here.
func (c *Config) Apply(o Overrides) error {
	if o.DB != nil {
		c.DB = *o.DB
	}
	if o.Threshold != nil {
		c.Threshold = *o.Threshold
	}
	if o.Workers != nil {
		c.Workers = *o.Workers
	}
	if o.Sort != nil {
		c.Sort = *o.Sort
	}
	if o.Exact != nil {
		c.Exact = *o.Exact
	}
	if o.MoveTo != nil {
		c.MoveTo = *o.MoveTo
	}
	if o.KeepIntermediate != nil {
		c.Selection.KeepIntermediate = *o.KeepIntermediate
	}
	if o.LogFile != nil {
		c.LogFile = *o.LogFile
	}

	if o.Timeout != nil {
		d, err := time.ParseDuration(*o.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if o.MinSize != nil {
		n, err := ParseSize(*o.MinSize)
		if err != nil {
			return fmt.Errorf("min size: %w", err)
		}
		c.MinSize = n
	}
	if o.Mode != nil {
		m, err := pipeline.ParseMode(*o.Mode)
		if err != nil {
			return err
		}
		c.Mode = m
	}
	if o.Strategy != nil {
		s, err := models.ParseStrategy(*o.Strategy)
		if err != nil {
			return err
		}
		c.Strategy = s
	}
	if o.Remains != nil {
		r, err := models.ParseRemainsAction(*o.Remains)
		if err != nil {
			return err
		}
		c.Remains = r
	}
	if o.GenerationTolerance != nil {
		d, err := time.ParseDuration(*o.GenerationTolerance)
		if err != nil {
			return fmt.Errorf("generation tolerance: %w", err)
		}
		c.Selection.GenerationTolerance = d
	}
	if o.LogLevel != nil {
		l, err := ParseLevel(*o.LogLevel)
		if err != nil {
			return err
		}
		c.LogLevel = l
	}

	c.Selection.RemainsAction = c.Remains
	c.Selection.SortIntoFolders = c.Sort
	return nil
}

// Validate checks ranges that parsing alone does not.
func (c *Config) Validate() error {
	var errs []error
	if err := models.ValidateThreshold(c.Threshold); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	if c.MinSize < 0 {
		errs = append(errs, fmt.Errorf("min size must not be negative, got %d", c.MinSize))
	}
	if c.Selection.GenerationTolerance < 0 {
		errs = append(errs, fmt.Errorf("generation tolerance must not be negative, got %v", c.Selection.GenerationTolerance))
	}
	if c.DB == "" {
		errs = append(errs, errors.New("database path is empty"))
	}
	if len(errs) > 0 {
		return &Error{Err: errors.Join(errs...)}
	}
	return nil
}

// PipelineConfig derives the run configuration for folder.
func (c *Config) PipelineConfig(folder string) pipeline.Config {
	return pipeline.Config{
		Folder:    folder,
		Threshold: c.Threshold,
		Mode:      c.Mode,
		Strategy:  c.Strategy,
		Selection: c.Selection,
		Exact:     c.Exact,
		MinSize:   c.MinSize,
		Workers:   c.Workers,
		Timeout:   c.Timeout,
	}
}

// ParseSize accepts byte counts with optional units ("0", "512", "100KB", "2 MiB").
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// ParseLevel maps debug|info|warn|error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log level %q: want debug, info, warn or error", s)
	}
	return l, nil
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
