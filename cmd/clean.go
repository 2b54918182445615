package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visualdupfinder/internal/fileutil"
	"visualdupfinder/internal/models"
	"visualdupfinder/internal/storage"
)

var (
	dryRun    bool
	permanent bool
	noConfirm bool
	groupIDs  []int
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Apply stored decisions to the files",
	Long: `Apply the stored keep/remove decisions.

Files marked for removal are handled by the remains action recorded with the
last scan (recycle by default). When the scan asked for sorting, kept files
with a category are moved into <folder>/<Category>/.

Options:
  --dry-run     Preview what would happen without touching any file
  --permanent   Delete removed files permanently
  --move-to     Move removed files to a specific folder
  --yes         Skip confirmation prompt
  --group       Only apply the decisions of these group IDs

Example:
  visualdupfinder clean                     # Move to trash (default)
  visualdupfinder clean --permanent         # Delete permanently
  visualdupfinder clean --move-to=./backup  # Move to specific folder
  visualdupfinder clean --dry-run           # Preview only
  visualdupfinder clean --group=1 --group=3 # Only groups 1 and 3`,
	RunE: runClean,
}

func init() {
	cleanCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Preview without touching files")
	cleanCmd.Flags().BoolVar(&permanent, "permanent", false, "Delete permanently instead of moving to trash")
	cleanCmd.Flags().String("move-to", "", "Move removed files to this folder")
	cleanCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
	cleanCmd.Flags().IntSliceVarP(&groupIDs, "group", "g", nil, "Group IDs to clean (can be specified multiple times)")
	rootCmd.AddCommand(cleanCmd)
}

func runClean(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(settings.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}
	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		return nil
	}

	if len(groupIDs) > 0 {
		groups = filterGroups(groups, groupIDs)
		if len(groups) == 0 {
			fmt.Printf("No matching groups found for IDs: %v\n", groupIDs)
			fmt.Println("Run 'visualdupfinder list' to see available group IDs.")
			return nil
		}
		fmt.Printf("Processing %d selected group(s): %v\n\n", len(groups), groupIDs)
	}

	stored, err := store.GetDisposition()
	if err != nil {
		return fmt.Errorf("failed to get decisions: %w", err)
	}
	d := restrictDisposition(stored, groups)

	switch {
	case cmd.Flags().Changed("move-to"):
		d.RemainsAction = models.RemainsMove
	case permanent:
		d.RemainsAction = models.RemainsDelete
	}

	if len(d.Remove) == 0 && !(d.SortIntoFolders && len(d.Categorized()) > 0) {
		fmt.Println("Nothing to do: no files are marked for removal.")
		fmt.Println("Run 'visualdupfinder review' or 'visualdupfinder scan' to make decisions.")
		return nil
	}

	var totalSize int64
	sizes := make(map[string]int64)
	for _, g := range groups {
		for _, img := range g.Images {
			sizes[img.Path] = img.FileSize
		}
	}
	for _, p := range d.Remove {
		totalSize += sizes[p]
	}

	action := describeAction(d.RemainsAction, settings.MoveTo)
	fmt.Printf("Will %s %d files (%s)\n", action, len(d.Remove), humanize.Bytes(uint64(totalSize)))
	if d.SortIntoFolders {
		fmt.Println("Will sort kept files into category folders")
	}
	fmt.Println()

	if dryRun {
		fmt.Println("Files to be removed:")
		for _, path := range d.Remove {
			fmt.Printf("  %s\n", path)
		}
		if d.SortIntoFolders {
			cat := d.Categorized()
			for _, c := range d.Categories() {
				for _, path := range cat[c] {
					fmt.Printf("  %s -> %s/\n", path, c)
				}
			}
		}
		fmt.Println()
	}

	if !dryRun && !noConfirm {
		fmt.Printf("Are you sure you want to %s %d files? [y/N]: ", action, len(d.Remove))
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var handled []string
	executor := fileutil.NewExecutor(
		fileutil.WithDryRun(dryRun),
		fileutil.WithMoveTo(settings.MoveTo),
		fileutil.WithExecLogger(logger),
		fileutil.WithOnDone(func(path string) {
			handled = append(handled, path)
		}),
	)
	stats, err := executor.Apply(ctx, d)
	if errors.Is(err, fileutil.ErrNoMoveTarget) {
		return fmt.Errorf("%w: pass --move-to or set move_to in the config file", err)
	}

	// Files that moved no longer match their rows; forget them so the next
	// scan picks them up fresh.
	for _, path := range handled {
		if derr := store.DeleteImage(path); derr != nil {
			logger.Warn("failed to forget image", slog.String("path", path), slog.String("error", derr.Error()))
		}
	}
	if !dryRun && stats != nil {
		var kept []string
		for _, paths := range d.Keep {
			kept = append(kept, paths...)
		}
		if cerr := store.ClearDecisions(kept); cerr != nil {
			return fmt.Errorf("failed to clear decisions: %w", cerr)
		}
	}
	if err != nil {
		return fmt.Errorf("clean interrupted: %w", err)
	}

	printActionStats(stats, d.RemainsAction, totalSize)
	return nil
}

func filterGroups(groups []*models.DuplicateGroup, ids []int) []*models.DuplicateGroup {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var filtered []*models.DuplicateGroup
	for _, g := range groups {
		if want[g.ID] {
			filtered = append(filtered, g)
		}
	}
	return filtered
}

// restrictDisposition keeps only the decisions about members of groups.
func restrictDisposition(d *models.Disposition, groups []*models.DuplicateGroup) *models.Disposition {
	member := make(map[string]bool)
	for _, g := range groups {
		for _, img := range g.Images {
			member[img.Path] = true
		}
	}

	out := models.NewDisposition()
	out.SortIntoFolders = d.SortIntoFolders
	out.RemainsAction = d.RemainsAction
	for _, p := range d.Remove {
		if member[p] {
			out.Remove = append(out.Remove, p)
		}
	}
	for cat, paths := range d.Keep {
		for _, p := range paths {
			if member[p] {
				out.Keep[cat] = append(out.Keep[cat], p)
			}
		}
	}
	return out
}

func describeAction(action models.RemainsAction, moveTo string) string {
	switch action {
	case models.RemainsMove:
		if moveTo == "" {
			return "move"
		}
		return fmt.Sprintf("move to %s", moveTo)
	case models.RemainsDelete:
		return "permanently delete"
	default:
		return "move to trash"
	}
}

func printActionStats(stats *fileutil.ActionStats, action models.RemainsAction, totalSize int64) {
	if dryRun {
		fmt.Printf("Would %s %d files, sort %d files, %d missing\n",
			describeAction(action, settings.MoveTo), stats.Recycled+stats.Moved+stats.Deleted, stats.Sorted, stats.Failed)
		fmt.Println("(Dry run - no files were modified)")
		fmt.Println("Run without --dry-run to apply.")
		return
	}

	switch action {
	case models.RemainsMove:
		fmt.Printf("Moved %d files to %s\n", stats.Moved, settings.MoveTo)
	case models.RemainsDelete:
		fmt.Printf("Permanently deleted %d files\n", stats.Deleted)
	default:
		fmt.Printf("Moved %d files to trash\n", stats.Recycled)
	}
	if stats.Sorted > 0 {
		fmt.Printf("Sorted %d kept files into category folders\n", stats.Sorted)
	}
	if stats.Failed > 0 {
		fmt.Printf("Failed: %d files\n", stats.Failed)
		for _, f := range stats.Failures {
			fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
		}
	}
	fmt.Printf("Space reclaimed: up to %s\n", humanize.Bytes(uint64(totalSize)))
}
