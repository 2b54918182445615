package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visualdupfinder/internal/models"
	"visualdupfinder/internal/storage"
)

var (
	listJSON    bool
	listVerbose bool
	listSummary bool
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored duplicate groups and decisions",
	Long: `Display the stored duplicate groups with their images.

Each image is marked with its stored decision:
  ✓  keep (with its category, if any)
  ✗  remove
  ?  undecided (manual mode, not yet reviewed)

Example:
  visualdupfinder list              # Show first 10 groups (default)
  visualdupfinder list -n 0         # Show all groups
  visualdupfinder list -s           # Summary view (compact)
  visualdupfinder list --offset 10  # Groups 11-20
  visualdupfinder list --json       # Machine-readable output`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	listCmd.Flags().BoolVarP(&listVerbose, "verbose", "v", false, "Show detailed image info")
	listCmd.Flags().BoolVarP(&listSummary, "summary", "s", false, "Show summary only (group counts and sizes)")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 10, "Limit number of groups to display (0 = all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Skip first N groups (for pagination)")
	rootCmd.AddCommand(listCmd)
}

// decisionIndex maps a path to its stored decision.
type decisionIndex struct {
	remove map[string]bool
	keep   map[string]models.Category
}

func newDecisionIndex(d *models.Disposition) decisionIndex {
	idx := decisionIndex{remove: make(map[string]bool), keep: make(map[string]models.Category)}
	for _, p := range d.Remove {
		idx.remove[p] = true
	}
	for cat, paths := range d.Keep {
		for _, p := range paths {
			idx.keep[p] = cat
		}
	}
	return idx
}

func (idx decisionIndex) marker(path string) string {
	if idx.remove[path] {
		return "✗"
	}
	if _, ok := idx.keep[path]; ok {
		return "✓"
	}
	return "?"
}

func (idx decisionIndex) label(path string) string {
	if cat, ok := idx.keep[path]; ok && cat != models.CategoryNone {
		return string(cat)
	}
	return ""
}

func (idx decisionIndex) reclaimable(g *models.DuplicateGroup) int64 {
	var n int64
	for _, img := range g.Images {
		if idx.remove[img.Path] {
			n += img.FileSize
		}
	}
	return n
}

func runList(cmd *cobra.Command, args []string) error {
	store, err := storage.NewStorage(settings.DB)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	groups, err := store.GetDuplicateGroups()
	if err != nil {
		return fmt.Errorf("failed to get groups: %w", err)
	}
	d, err := store.GetDisposition()
	if err != nil {
		return fmt.Errorf("failed to get decisions: %w", err)
	}

	if listJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Groups      []*models.DuplicateGroup `json:"groups"`
			Disposition *models.Disposition      `json:"disposition"`
		}{groups, d})
	}

	if len(groups) == 0 {
		fmt.Println("No duplicate groups found.")
		fmt.Println("Run 'visualdupfinder scan <folder>' to scan for duplicates.")
		return nil
	}

	idx := newDecisionIndex(d)
	var totalSavings int64
	for _, group := range groups {
		totalSavings += idx.reclaimable(group)
	}

	fmt.Printf("Found %d duplicate groups (%d marked for removal, %s reclaimable)\n\n",
		len(groups), len(d.Remove), humanize.Bytes(uint64(totalSavings)))

	// Apply pagination
	totalGroups := len(groups)
	startIdx := listOffset
	if startIdx > len(groups) {
		startIdx = len(groups)
	}
	groups = groups[startIdx:]

	if listLimit > 0 && listLimit < len(groups) {
		groups = groups[:listLimit]
	}

	if len(groups) == 0 {
		fmt.Printf("No groups in range (offset %d exceeds total %d)\n", listOffset, totalGroups)
	} else if listSummary {
		printSummaryTable(groups, idx)
	} else {
		for _, group := range groups {
			printGroup(group, idx, listVerbose)
		}
	}

	endIdx := startIdx + len(groups)
	if len(groups) > 0 {
		fmt.Printf("Showing groups %d-%d of %d\n", startIdx+1, endIdx, totalGroups)
		if endIdx < totalGroups {
			limitArg := ""
			if listLimit > 0 {
				limitArg = fmt.Sprintf(" -n %d", listLimit)
			}
			fmt.Printf("Next page: visualdupfinder list%s --offset %d\n", limitArg, endIdx)
		}
	}

	fmt.Println()
	if len(d.Remove) == 0 {
		fmt.Println("Run 'visualdupfinder review' to decide group by group")
	} else {
		fmt.Println("Run 'visualdupfinder clean --dry-run' to preview file actions")
	}
	return nil
}

func printSummaryTable(groups []*models.DuplicateGroup, idx decisionIndex) {
	fmt.Printf("%-8s  %-8s  %-12s  %s\n", "Group", "Images", "Reclaimable", "Keep")
	fmt.Println(strings.Repeat("-", 70))

	for _, group := range groups {
		var kept []string
		for _, img := range group.Images {
			if idx.marker(img.Path) == "✓" {
				kept = append(kept, filepath.Base(img.Path))
			}
		}
		keepNames := "(undecided)"
		if len(kept) > 0 {
			keepNames = strings.Join(kept, ", ")
		}
		if len(keepNames) > 35 {
			keepNames = keepNames[:32] + "..."
		}

		fmt.Printf("#%-7d  %-8d  %-12s  %s\n",
			group.ID, len(group.Images), humanize.Bytes(uint64(idx.reclaimable(group))), keepNames)
	}
	fmt.Println()
}

func printGroup(group *models.DuplicateGroup, idx decisionIndex, verbose bool) {
	fmt.Printf("Group #%d (%d images)\n", group.ID, len(group.Images))
	fmt.Println(strings.Repeat("-", 60))

	for _, img := range group.Images {
		marker := idx.marker(img.Path)
		label := idx.label(img.Path)
		if label != "" {
			label = "[" + label + "]"
		}

		if verbose {
			fmt.Printf("  %s %s %s\n", marker, img.Path, label)
			fmt.Printf("      Resolution: %dx%d  Format: %s  Size: %s\n",
				img.Width, img.Height, strings.ToUpper(img.Format), humanize.Bytes(uint64(img.FileSize)))
			fmt.Printf("      Modified: %s  Fingerprint: %016x\n",
				img.ModTime.Format("2006-01-02 15:04:05"), uint64(img.Hash))
			if !img.CaptureTime.IsZero() {
				fmt.Printf("      Captured: %s\n", img.CaptureTime.Format("2006-01-02 15:04:05"))
			}
		} else {
			fmt.Printf("  %s %-40s  %dx%d  %-4s  %8s  %s\n",
				marker, shortenPath(img.Path, 40), img.Width, img.Height,
				strings.ToUpper(img.Format), humanize.Bytes(uint64(img.FileSize)), label)
		}
	}
	fmt.Println()
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Keep the file name and as much of its directory as fits
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}
