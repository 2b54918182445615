// Package scan finds candidate images and fingerprints them with a bounded
// worker pool.
package scan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"visualdupfinder/internal/hash"
	"visualdupfinder/internal/models"
)

// PhaseValidating is the progress label for fingerprinting.
const PhaseValidating = "Validating images"

const (
	defaultWorkers = 4
	defaultTimeout = 30 * time.Second
)

// Cache returns a previously computed fingerprint for a file that has not
// changed since. A nil info with a nil error is a miss.
type Cache interface {
	Lookup(path string, size int64, modTime time.Time) (*models.ImageInfo, error)
}

// Scanner fingerprints candidate files.
type Scanner struct {
	hasher   *hash.Hasher
	workers  int
	timeout  time.Duration
	progress chan<- models.Progress
	logger   *slog.Logger
	cache    Cache
	fileHash bool
}

// Option configures a Scanner
type Option func(*Scanner)

// WithWorkers sets the number of parallel workers
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the timeout for hashing each image
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) {
		s.timeout = d
	}
}

// WithProgress sets the channel progress events are sent to. Intermediate
// events are dropped when the receiver is not ready; the final event of a
// batch is always delivered unless the context is cancelled.
func WithProgress(ch chan<- models.Progress) Option {
	return func(s *Scanner) {
		s.progress = ch
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCache consults c before decoding a file.
func WithCache(c Cache) Option {
	return func(s *Scanner) {
		s.cache = c
	}
}

// WithFileHash also computes the SHA-256 of every valid file.
func WithFileHash(on bool) Option {
	return func(s *Scanner) {
		s.fileHash = on
	}
}

// NewScanner creates a new Scanner
func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{
		workers: defaultWorkers,
		timeout: defaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hasher = hash.NewHasher(s.timeout).LimitDecodes(2 * s.workers)
	return s
}

// Batch is the result of fingerprinting a list of candidates.
type Batch struct {
	// Valid holds one entry per valid file, in input order.
	Valid []*models.ImageInfo
	// Invalid holds one entry per rejected file, in input order.
	Invalid         []models.ValidationOutcome
	InvalidByReason map[models.InvalidReason]int
	CacheHits       int
	Duration        time.Duration
}

// Fingerprint validates and hashes every path. Per-file failures end up in
// Batch.Invalid; the only error is cancellation of ctx, in which case no
// batch is returned.
func (s *Scanner) Fingerprint(ctx context.Context, paths []string) (*Batch, error) {
	start := time.Now()
	total := len(paths)

	outcomes := make([]models.ValidationOutcome, total)
	hits := make([]bool, total)

	// Workers report their completion count here; one collector throttles
	// it onto the caller's progress channel.
	ticks := make(chan int, s.workers*2)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		s.collect(ctx, ticks, total)
	}()

	var completed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i], hits[i] = s.process(path)
			ticks <- int(completed.Add(1))
			return nil
		})
	}

	waitErr := g.Wait()
	close(ticks)
	<-collected

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fingerprinting cancelled: %w", err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	batch := &Batch{InvalidByReason: make(map[models.InvalidReason]int)}
	for i, out := range outcomes {
		if out.Valid() {
			batch.Valid = append(batch.Valid, out.Info)
			if hits[i] {
				batch.CacheHits++
			}
			continue
		}
		batch.Invalid = append(batch.Invalid, out)
		batch.InvalidByReason[out.Reason]++
	}
	batch.Duration = time.Since(start)

	s.logger.Info("fingerprinting completed",
		slog.Int("total", total),
		slog.Int("valid", len(batch.Valid)),
		slog.Int("invalid", len(batch.Invalid)),
		slog.Int("cache_hits", batch.CacheHits),
		slog.Duration("latency", batch.Duration),
	)
	return batch, nil
}

// process fingerprints one file, consulting the cache first.
func (s *Scanner) process(path string) (models.ValidationOutcome, bool) {
	if s.cache != nil {
		if info := s.cached(path); info != nil {
			return models.ValidationOutcome{Path: path, Info: info}, true
		}
	}

	out := s.hasher.Validate(path)
	if !out.Valid() {
		s.logger.Debug("file rejected",
			slog.String("path", path),
			slog.String("reason", string(out.Reason)),
			slog.String("error", out.Err.Error()),
		)
		return out, false
	}

	if s.fileHash {
		s.addFileHash(out.Info)
	}
	return out, false
}

func (s *Scanner) cached(path string) *models.ImageInfo {
	stat, err := os.Stat(path)
	if err != nil {
		return nil
	}
	info, err := s.cache.Lookup(path, stat.Size(), stat.ModTime())
	if err != nil {
		s.logger.Warn("cache lookup failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	if info == nil {
		return nil
	}
	if s.fileHash && info.FileHash == "" {
		s.addFileHash(info)
	}
	return info
}

func (s *Scanner) addFileHash(info *models.ImageInfo) {
	fh, err := hash.ComputeFileHash(info.Path)
	if err != nil {
		s.logger.Warn("file hash failed", slog.String("path", info.Path), slog.String("error", err.Error()))
		return
	}
	info.FileHash = fh
}

// collect forwards completion counts as progress events, about one per
// percent plus the final one.
func (s *Scanner) collect(ctx context.Context, ticks <-chan int, total int) {
	step := total / 100
	if step < 1 {
		step = 1
	}
	highest, lastBucket := 0, 0

	for n := range ticks {
		if s.progress == nil || n <= highest {
			continue
		}
		highest = n

		if n == total {
			select {
			case s.progress <- models.NewProgress(PhaseValidating, n, total):
			case <-ctx.Done():
			}
			continue
		}
		if bucket := n / step; bucket > lastBucket {
			lastBucket = bucket
			select {
			case s.progress <- models.NewProgress(PhaseValidating, n, total):
			default:
			}
		}
	}
}
