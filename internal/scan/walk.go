package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"visualdupfinder/internal/hash"
	"visualdupfinder/internal/models"
)

// NoExtension is the summary key for files without an extension.
const NoExtension = ".NO_EXT"

// Walk collects the candidate image paths under folder, in lexical walk
// order, and counts everything else it sees. Image files smaller than
// minSize bytes are skipped; minSize <= 0 disables the filter.
//
// Unreadable entries below the root are skipped. A root that is missing or
// not a directory is an error.
func Walk(ctx context.Context, folder string, minSize int64) (*models.ScanSummary, error) {
	start := time.Now()

	info, err := os.Stat(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", folder)
	}

	summary := &models.ScanSummary{
		Folder:     folder,
		ImageFiles: make(map[string]int),
		OtherFiles: make(map[string]int),
	}

	err = filepath.WalkDir(folder, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == folder {
				return err
			}
			return nil // Skip errors
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		summary.TotalFiles++
		ext := strings.ToLower(filepath.Ext(path))
		if ext == "" {
			ext = NoExtension
		}

		if !hash.IsSupportedImage(path) {
			summary.OtherFiles[ext]++
			return nil
		}
		summary.ImageFiles[ext]++

		if minSize > 0 {
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			if fi.Size() < minSize {
				summary.SkippedSmall++
				return nil
			}
		}
		summary.CandidatePaths = append(summary.CandidatePaths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk folder: %w", err)
	}

	summary.Duration = time.Since(start)
	return summary, nil
}
