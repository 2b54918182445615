package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visualdupfinder/internal/config"
	"visualdupfinder/internal/models"
	"visualdupfinder/internal/pipeline"
	"visualdupfinder/internal/storage"
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Scan a folder for visually duplicate images",
	Long: `Scan a folder recursively and group images that look alike.

The scan will:
1. Find all supported images (jpg, png, gif, webp, bmp, tiff)
2. Decode each one and compute its perceptual fingerprint
3. Group images whose fingerprints are within the threshold
4. In auto mode, pick what to keep with the chosen strategy
5. Store groups, decisions and a run record in the database

Strategies:
  best-quality      keep the largest image (pixel area)
  most-recent       keep the most recently modified image
  unique-versions   keep the original and the last edit, filed by category

Example:
  visualdupfinder scan ./photos
  visualdupfinder scan ./photos --threshold 3 --strategy most-recent
  visualdupfinder scan ./photos --strategy unique-versions --sort
  visualdupfinder scan ./photos --mode manual
  visualdupfinder scan ./photos --exact`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	def := config.Default()
	scanCmd.Flags().String("mode", string(def.Mode), "Decision mode: auto or manual")
	scanCmd.Flags().String("strategy", def.Strategy.String(), "Selection strategy: best-quality, most-recent, unique-versions")
	scanCmd.Flags().Bool("sort", false, "Sort kept files into category folders when cleaning")
	scanCmd.Flags().String("remains", string(def.Remains), "What clean does with removed files: recycle, move, delete")
	scanCmd.Flags().Bool("exact", false, "Group byte-identical files only")
	scanCmd.Flags().Bool("keep-intermediate", false, "unique-versions: also keep one file per intermediate generation")
	scanCmd.Flags().String("generation-tolerance", def.Selection.GenerationTolerance.String(), "unique-versions: widest gap within one edit generation")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	absFolder, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	fmt.Printf("Scanning:  %s\n", absFolder)
	fmt.Printf("Threshold: %d (Hamming distance)\n", settings.Threshold)
	fmt.Printf("Workers:   %d\n", settings.Workers)
	if settings.Mode == pipeline.ModeAuto {
		fmt.Printf("Strategy:  %s\n", settings.Strategy)
	} else {
		fmt.Println("Mode:      manual")
	}
	fmt.Println()

	store, err := storage.NewStorage(settings.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	progress := make(chan models.Progress, 16)
	printed := make(chan struct{})
	go printProgress(progress, printed)

	pcfg := settings.PipelineConfig(absFolder)
	pcfg.Cache = store
	pcfg.Progress = progress
	pcfg.Logger = logger

	started := time.Now()
	out, err := pipeline.Run(ctx, pcfg)
	close(progress)
	<-printed
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("scan interrupted: %w", err)
		}
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := store.SaveImages(out.Images); err != nil {
		return fmt.Errorf("failed to save images: %w", err)
	}
	if err := store.UpdateGroups(out.Groups); err != nil {
		return fmt.Errorf("failed to update groups: %w", err)
	}
	if out.Disposition != nil {
		if err := store.SaveDisposition(out.Disposition); err != nil {
			return fmt.Errorf("failed to save decisions: %w", err)
		}
	}

	if _, err := store.RecordRun(runRecord(absFolder, started, out)); err != nil {
		return err
	}

	printScanSummary(out)
	return nil
}

// runRecord describes a finished run. The sort flag comes from the
// disposition, so it is only set when the strategy actually sorts.
func runRecord(folder string, started time.Time, out *pipeline.Outcome) storage.Run {
	run := storage.Run{
		Folder:        folder,
		Mode:          string(settings.Mode),
		Strategy:      settings.Strategy.String(),
		Threshold:     settings.Threshold,
		StartedAt:     started,
		Stats:         out.Stats,
		RemainsAction: settings.Remains,
	}
	if out.Disposition != nil {
		run.SortIntoFolders = out.Disposition.SortIntoFolders
		run.RemainsAction = out.Disposition.RemainsAction
	}
	return run
}

// printProgress redraws a single status line until ch is closed.
func printProgress(ch <-chan models.Progress, done chan<- struct{}) {
	defer close(done)
	lastLine := ""
	for p := range ch {
		line := fmt.Sprintf("%-16s %3d%%", p.Phase, p.Percent)
		if p.Total > 1 {
			line += fmt.Sprintf("  %s/%s", humanize.Comma(int64(p.Completed)), humanize.Comma(int64(p.Total)))
		}
		if lastLine != "" {
			fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
		}
		fmt.Print(line)
		lastLine = line
	}
	if lastLine != "" {
		fmt.Print("\r" + strings.Repeat(" ", len(lastLine)) + "\r")
	}
}

func printScanSummary(out *pipeline.Outcome) {
	st := out.Stats

	fmt.Println("=== Scan Complete ===")
	fmt.Printf("Files in folder:  %s\n", humanize.Comma(int64(st.FilesTotal)))
	if out.Summary != nil {
		fmt.Printf("Images found:     %s%s\n", humanize.Comma(int64(out.Summary.TotalImages())), formatCounts(out.Summary.ImageFiles))
		if out.Summary.SkippedSmall > 0 {
			fmt.Printf("Skipped (small):  %d\n", out.Summary.SkippedSmall)
		}
	}
	fmt.Printf("Fingerprinted:    %s (%d from cache)\n", humanize.Comma(int64(st.FilesValidated)), st.CacheHits)
	if st.FilesInvalid > 0 {
		fmt.Printf("Unusable:         %d%s\n", st.FilesInvalid, formatReasons(st.InvalidByReason))
	}
	fmt.Printf("Duplicate groups: %d (%d files)\n", st.GroupsFound, st.GroupedFiles)

	if out.Disposition != nil {
		var reclaimable int64
		for _, p := range out.Disposition.Remove {
			if img := out.Files[p]; img != nil {
				reclaimable += img.FileSize
			}
		}
		fmt.Printf("Marked to remove: %d (%s)\n", len(out.Disposition.Remove), humanize.Bytes(uint64(reclaimable)))
		for _, cat := range out.Disposition.Categories() {
			if cat == models.CategoryNone {
				continue
			}
			fmt.Printf("Kept as %-10s %d\n", string(cat)+":", len(out.Disposition.Keep[cat]))
		}
	}
	fmt.Printf("Took:             %s\n", st.TotalTime.Round(time.Millisecond))

	if st.GroupsFound == 0 {
		return
	}
	fmt.Println()
	if out.Disposition == nil {
		fmt.Println("Run 'visualdupfinder review' to decide group by group")
	} else {
		fmt.Println("Run 'visualdupfinder list' to see duplicate groups")
		fmt.Println("Run 'visualdupfinder clean --dry-run' to preview file actions")
	}
}

// formatCounts renders " (.jpg 3, .png 2)" sorted by extension.
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return ""
	}
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	parts := make([]string, len(exts))
	for i, ext := range exts {
		parts[i] = fmt.Sprintf("%s %d", ext, counts[ext])
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func formatReasons(reasons map[models.InvalidReason]int) string {
	counts := make(map[string]int, len(reasons))
	for r, n := range reasons {
		counts[string(r)] = n
	}
	return formatCounts(counts)
}
