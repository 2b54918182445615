// Package pipeline runs one duplicate search: walk, fingerprint, group and,
// in automatic mode, select.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"visualdupfinder/internal/match"
	"visualdupfinder/internal/models"
	"visualdupfinder/internal/scan"
	"visualdupfinder/internal/selection"
)

// ErrFolderUnavailable aborts a run whose folder is missing or disappears.
var ErrFolderUnavailable = errors.New("folder unavailable")

// Progress phase labels.
const (
	PhaseScanning   = "Scanning folder"
	PhaseValidating = scan.PhaseValidating
	PhaseGrouping   = "Grouping"
	PhaseSelecting  = "Selecting"
)

// Mode chooses how groups are decided.
type Mode string

const (
	// ModeAuto applies a selection strategy to every group.
	ModeAuto Mode = "auto"
	// ModeManual stops after grouping; a reviewer decides.
	ModeManual Mode = "manual"
)

// ParseMode validates a mode name.
func ParseMode(name string) (Mode, error) {
	switch m := Mode(name); m {
	case ModeAuto, ModeManual:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (want auto or manual)", name)
}

// Config describes one run.
type Config struct {
	Folder    string
	Threshold int
	Mode      Mode
	Strategy  models.Strategy
	Selection selection.Options

	// Exact groups byte-identical files instead of similar ones.
	Exact bool
	// FileHash computes SHA-256 for every file; implied by Exact.
	FileHash bool
	MinSize  int64
	Workers  int
	Timeout  time.Duration

	Cache scan.Cache
	// Progress receives phase and per-file events. The caller must keep
	// draining it until Run returns.
	Progress chan<- models.Progress
	Logger   *slog.Logger
}

// Outcome is what a completed run produced. Disposition is nil in manual mode.
type Outcome struct {
	Stats   models.RunStats
	Summary *models.ScanSummary
	// Images holds the valid files in walk order; Files indexes them by path.
	Images      []*models.ImageInfo
	Files       map[string]*models.ImageInfo
	Invalid     []models.ValidationOutcome
	Groups      []*models.DuplicateGroup
	Disposition *models.Disposition
}

// Run executes the pipeline. Per-file failures are counted in the outcome;
// an error means the run did not complete and no outcome is returned.
func Run(ctx context.Context, cfg Config) (out *Outcome, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	defer func() {
		if err != nil {
			logger.Error("run failed", slog.String("folder", cfg.Folder), slog.String("error", err.Error()))
		}
	}()

	if err := models.ValidateThreshold(cfg.Threshold); err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}

	start := time.Now()
	r := &runner{cfg: cfg, ctx: ctx}
	out = &Outcome{Files: make(map[string]*models.ImageInfo)}

	if err := checkFolder(cfg.Folder); err != nil {
		return nil, err
	}

	// Walk
	r.emit(PhaseScanning, 0, 1)
	summary, err := scan.Walk(ctx, cfg.Folder, cfg.MinSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("scan cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrFolderUnavailable, err)
	}
	out.Summary = summary
	out.Stats.FilesTotal = summary.TotalFiles
	out.Stats.Candidates = len(summary.CandidatePaths)
	out.Stats.ScanTime = summary.Duration
	r.emit(PhaseScanning, 1, 1)
	logger.Info("folder scanned",
		slog.String("folder", cfg.Folder),
		slog.Int("files", summary.TotalFiles),
		slog.Int("candidates", len(summary.CandidatePaths)),
		slog.Int("skipped_small", summary.SkippedSmall),
	)

	// Fingerprint. Unique versions needs file hashes to drop byte-identical
	// copies of the kept versions.
	uniqueVersions := cfg.Mode == ModeAuto && cfg.Strategy == models.KeepUniqueVersions
	scanner := scan.NewScanner(
		scan.WithWorkers(cfg.Workers),
		scan.WithTimeout(cfg.Timeout),
		scan.WithProgress(cfg.Progress),
		scan.WithLogger(logger),
		scan.WithCache(cfg.Cache),
		scan.WithFileHash(cfg.FileHash || cfg.Exact || uniqueVersions),
	)
	batch, err := scanner.Fingerprint(ctx, summary.CandidatePaths)
	if err != nil {
		return nil, err
	}
	// The folder may have vanished while files were decoded.
	if err := checkFolder(cfg.Folder); err != nil {
		return nil, err
	}

	out.Images = batch.Valid
	out.Invalid = batch.Invalid
	for _, img := range batch.Valid {
		out.Files[img.Path] = img
	}
	out.Stats.FilesValidated = len(batch.Valid)
	out.Stats.FilesInvalid = len(batch.Invalid)
	out.Stats.InvalidByReason = batch.InvalidByReason
	out.Stats.CacheHits = batch.CacheHits
	out.Stats.HashTime = batch.Duration

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled: %w", err)
	}

	// Group
	groupStart := time.Now()
	r.emit(PhaseGrouping, 0, 1)
	perceptual := match.NewPerceptualMatcher(cfg.Threshold)
	var matcher match.Matcher = perceptual
	if cfg.Exact {
		matcher = match.NewExactMatcher()
	}
	out.Groups = matcher.FindGroups(batch.Valid)
	for _, g := range out.Groups {
		for _, img := range g.Images {
			img.GroupID = g.ID
		}
		out.Stats.GroupedFiles += len(g.Images)
	}
	out.Stats.GroupsFound = len(out.Groups)
	out.Stats.GroupTime = time.Since(groupStart)
	r.emit(PhaseGrouping, 1, 1)
	logger.Info("grouping completed",
		slog.Int("threshold", perceptual.GetThreshold()),
		slog.Bool("exact", cfg.Exact),
		slog.Int("groups", out.Stats.GroupsFound),
		slog.Int("grouped_files", out.Stats.GroupedFiles),
		slog.Duration("latency", out.Stats.GroupTime),
	)

	// Select
	if cfg.Mode == ModeAuto {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("run cancelled: %w", err)
		}
		selectStart := time.Now()
		r.emit(PhaseSelecting, 0, 1)
		d, err := selection.Select(out.Groups, cfg.Strategy, out.Files, cfg.Selection)
		if err != nil {
			return nil, fmt.Errorf("selection failed: %w", err)
		}
		if err := selection.Verify(out.Groups, d); err != nil {
			return nil, fmt.Errorf("selection failed: %w", err)
		}
		out.Disposition = d
		out.Stats.MarkedForRemove = len(d.Remove)
		out.Stats.SelectTime = time.Since(selectStart)
		r.emit(PhaseSelecting, 1, 1)
		logger.Info("selection completed",
			slog.String("strategy", cfg.Strategy.String()),
			slog.Int("remove", len(d.Remove)),
			slog.Int("keep", d.KeptCount()),
		)
	}

	out.Stats.TotalTime = time.Since(start)
	return out, nil
}

type runner struct {
	cfg Config
	ctx context.Context
}

// emit sends a phase event, giving up only if the run is cancelled.
func (r *runner) emit(phase string, completed, total int) {
	if r.cfg.Progress == nil {
		return
	}
	select {
	case r.cfg.Progress <- models.NewProgress(phase, completed, total):
	case <-r.ctx.Done():
	}
}

func checkFolder(folder string) error {
	info, err := os.Stat(folder)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFolderUnavailable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrFolderUnavailable, folder)
	}
	return nil
}
