package fileutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"visualdupfinder/internal/models"
)

// ErrNoMoveTarget is returned when removed files should be moved but no
// destination folder was configured.
var ErrNoMoveTarget = errors.New("no destination folder for moved files")

// ActionStats counts what Apply did.
type ActionStats struct {
	Recycled int
	Moved    int
	Deleted  int
	Sorted   int
	Failed   int
	Failures []Failure
	Duration time.Duration
}

// Failure records one file that could not be handled.
type Failure struct {
	Path string
	Err  error
}

// Handled is the number of files successfully acted upon.
func (s *ActionStats) Handled() int {
	return s.Recycled + s.Moved + s.Deleted + s.Sorted
}

// Executor applies a disposition to the file system.
type Executor struct {
	dryRun   bool
	moveTo   string
	sortRoot string
	logger   *slog.Logger
	onDone   func(path string)
}

// ExecOption configures an Executor.
type ExecOption func(*Executor)

// WithDryRun reports what would happen without touching any file.
func WithDryRun(on bool) ExecOption {
	return func(e *Executor) {
		e.dryRun = on
	}
}

// WithMoveTo sets the folder removed files go to under RemainsMove.
func WithMoveTo(dir string) ExecOption {
	return func(e *Executor) {
		e.moveTo = dir
	}
}

// WithSortRoot sets the folder category subfolders are created in. Without
// it each kept file is sorted next to where it already is.
func WithSortRoot(dir string) ExecOption {
	return func(e *Executor) {
		e.sortRoot = dir
	}
}

// WithExecLogger sets the logger.
func WithExecLogger(l *slog.Logger) ExecOption {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithOnDone is called with the original path of every file that was
// removed, moved or sorted.
func WithOnDone(fn func(path string)) ExecOption {
	return func(e *Executor) {
		e.onDone = fn
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...ExecOption) *Executor {
	e := &Executor{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply handles d.Remove according to d.RemainsAction and, when
// d.SortIntoFolders is set, moves categorized keepers into
// <root>/<Category>/. Files that are missing or fail count as Failed; Apply
// carries on with the rest. Only cancellation stops it early.
func (e *Executor) Apply(ctx context.Context, d *models.Disposition) (*ActionStats, error) {
	start := time.Now()
	stats := &ActionStats{}

	action := d.RemainsAction
	if action == "" {
		action = models.RemainsRecycle
	}
	if action == models.RemainsMove && e.moveTo == "" && len(d.Remove) > 0 {
		return nil, ErrNoMoveTarget
	}

	for _, path := range d.Remove {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}
		e.remove(stats, path, action)
	}

	if d.SortIntoFolders {
		categorized := d.Categorized()
		for _, cat := range d.Categories() {
			for _, path := range categorized[cat] {
				if err := ctx.Err(); err != nil {
					stats.Duration = time.Since(start)
					return stats, err
				}
				e.sort(stats, path, cat)
			}
		}
	}

	stats.Duration = time.Since(start)
	e.logger.Info("file actions completed",
		slog.Bool("dry_run", e.dryRun),
		slog.Int("recycled", stats.Recycled),
		slog.Int("moved", stats.Moved),
		slog.Int("deleted", stats.Deleted),
		slog.Int("sorted", stats.Sorted),
		slog.Int("failed", stats.Failed),
		slog.Duration("latency", stats.Duration),
	)
	return stats, nil
}

func (e *Executor) remove(stats *ActionStats, path string, action models.RemainsAction) {
	if err := checkExists(path); err != nil {
		e.fail(stats, path, err)
		return
	}

	if e.dryRun {
		e.logger.Info("dry run", slog.String("action", string(action)), slog.String("path", path))
	} else {
		var (
			dest string
			err  error
		)
		switch action {
		case models.RemainsRecycle:
			dest, err = MoveToTrash(path)
		case models.RemainsMove:
			dest, err = MoveFile(path, e.moveTo)
		case models.RemainsDelete:
			err = os.Remove(path)
		default:
			err = fmt.Errorf("unknown remains action %q", action)
		}
		if err != nil {
			e.fail(stats, path, err)
			return
		}
		e.logger.Debug("file handled",
			slog.String("action", string(action)),
			slog.String("path", path),
			slog.String("dest", dest),
		)
		e.done(path)
	}

	switch action {
	case models.RemainsRecycle:
		stats.Recycled++
	case models.RemainsMove:
		stats.Moved++
	case models.RemainsDelete:
		stats.Deleted++
	}
}

func (e *Executor) sort(stats *ActionStats, path string, cat models.Category) {
	if err := checkExists(path); err != nil {
		e.fail(stats, path, err)
		return
	}

	root := e.sortRoot
	if root == "" {
		root = filepath.Dir(path)
	}
	destDir := filepath.Join(root, string(cat))

	if e.dryRun {
		e.logger.Info("dry run", slog.String("action", "sort"), slog.String("path", path), slog.String("dest", destDir))
	} else {
		if _, err := MoveFile(path, destDir); err != nil {
			e.fail(stats, path, err)
			return
		}
		e.done(path)
	}
	stats.Sorted++
}

func (e *Executor) fail(stats *ActionStats, path string, err error) {
	e.logger.Warn("file action failed", slog.String("path", path), slog.String("error", err.Error()))
	stats.Failed++
	stats.Failures = append(stats.Failures, Failure{Path: path, Err: err})
}

func (e *Executor) done(path string) {
	if e.onDone != nil {
		e.onDone(path)
	}
}

func checkExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file not found: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
