package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visualdupfinder/internal/pipeline"
	"visualdupfinder/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded scan runs",
	Long: `List past scan runs, newest first, with their settings and counts.

Example:
  visualdupfinder history          # Last 10 runs
  visualdupfinder history -n 0     # All runs`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(settings.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	summary, err := databaseSummary(store)
	if err != nil {
		return err
	}

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		fmt.Println(summary)
		return nil
	}

	fmt.Printf("%-19s  %-6s  %-15s  %3s  %8s  %6s  %6s  %8s  %s\n",
		"Started", "Mode", "Strategy", "Thr", "Images", "Groups", "Remove", "Took", "Folder")
	fmt.Println(strings.Repeat("-", 100))
	for _, r := range runs {
		strategy := r.Strategy
		if r.Mode == string(pipeline.ModeManual) {
			strategy = "-"
		}
		fmt.Printf("%-19s  %-6s  %-15s  %3d  %8s  %6d  %6d  %8s  %s\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Mode, strategy, r.Threshold,
			humanize.Comma(int64(r.Stats.FilesValidated)), r.Stats.GroupsFound, r.Stats.MarkedForRemove,
			r.Stats.TotalTime.Round(time.Millisecond), r.Folder)
	}
	fmt.Printf("\nLast run %s (id %s)\n", humanize.Time(runs[0].StartedAt), runs[0].ID)
	fmt.Println(summary)
	return nil
}

// databaseSummary describes what the database currently holds.
func databaseSummary(store *storage.Storage) (string, error) {
	images, err := store.GetAllImages()
	if err != nil {
		return "", fmt.Errorf("failed to read images: %w", err)
	}
	groups, err := store.GetGroupCount()
	if err != nil {
		return "", fmt.Errorf("failed to count groups: %w", err)
	}
	var total int64
	for _, img := range images {
		total += img.FileSize
	}
	return fmt.Sprintf("Database %s: %s images (%s), %d duplicate groups",
		store.Path(), humanize.Comma(int64(len(images))), humanize.Bytes(uint64(total)), groups), nil
}
