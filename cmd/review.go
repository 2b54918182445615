package cmd

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"visualdupfinder/internal/models"
	"visualdupfinder/internal/review"
	"visualdupfinder/internal/storage"
)

var reviewStart int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Decide stored duplicate groups one at a time",
	Long: `Walk through the stored duplicate groups and choose the image to keep
in each. Every other member of the group is marked for removal.

Commands at the prompt:
  <n>   keep image n and mark the rest for removal
  s     skip this group: nothing is saved for it, and a choice made
        for it earlier in this review is withdrawn
  b     go back to the previous group
  q     stop and save what was decided so far

Example:
  visualdupfinder review
  visualdupfinder review --group 4`,
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().IntVarP(&reviewStart, "group", "g", 0, "Start at this group ID")
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
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
		fmt.Println("Run 'visualdupfinder scan <folder>' to scan for duplicates.")
		return nil
	}

	s := review.NewSession(groups)
	if reviewStart > 0 {
		idx := -1
		for i, g := range groups {
			if g.ID == reviewStart {
				idx = i
				break
			}
		}
		if err := s.Jump(idx); err != nil {
			return fmt.Errorf("group %d: %w", reviewStart, err)
		}
	}

	if err := reviewLoop(cmd.InOrStdin(), cmd.OutOrStdout(), s); err != nil {
		return err
	}

	d := reviewDisposition(s, groups)
	if len(d.Remove) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No decisions made.")
		return nil
	}
	if err := store.SaveDisposition(d); err != nil {
		return fmt.Errorf("failed to save decisions: %w", err)
	}
	logger.Info("review saved", slog.Int("groups", d.KeptCount()), slog.Int("remove", len(d.Remove)))

	fmt.Fprintf(cmd.OutOrStdout(), "\nSaved decisions for %d group(s): %d file(s) marked for removal\n", d.KeptCount(), len(d.Remove))
	fmt.Fprintln(cmd.OutOrStdout(), "Run 'visualdupfinder clean --dry-run' to preview file actions")
	return nil
}

// reviewLoop prompts until every group is decided, the input ends or the
// reviewer quits.
func reviewLoop(in io.Reader, out io.Writer, s *review.Session) error {
	sc := bufio.NewScanner(in)
	for s.State() == review.AwaitingDecision {
		g, idx, err := s.Current()
		if err != nil {
			return err
		}
		printReviewGroup(out, g, idx, s.Total())
		if kept, ok := s.Kept(idx); ok {
			fmt.Fprintf(out, "  (currently keeping %s)\n", filepath.Base(kept))
		}
		fmt.Fprintf(out, "Keep which? [1-%d, s, b, q]: ", len(g.Images))

		if !sc.Scan() {
			fmt.Fprintln(out)
			return sc.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(sc.Text()))
		switch answer {
		case "q", "quit":
			return nil
		case "s", "skip", "":
			err = s.Skip()
		case "b", "back":
			if idx == 0 {
				fmt.Fprintln(out, "Already at the first group.")
				continue
			}
			err = s.Back()
		default:
			n, convErr := strconv.Atoi(answer)
			if convErr != nil || n < 1 || n > len(g.Images) {
				fmt.Fprintf(out, "Unknown answer %q.\n", answer)
				continue
			}
			err = s.Approve(g.Images[n-1].Path)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// reviewDisposition turns the session's decisions into a disposition and
// ends the session.
func reviewDisposition(s *review.Session, groups []*models.DuplicateGroup) *models.Disposition {
	d := models.NewDisposition()
	for i := range groups {
		if kept, ok := s.Kept(i); ok {
			d.Keep[models.CategoryNone] = append(d.Keep[models.CategoryNone], kept)
		}
	}
	d.Remove = s.Consume()
	d.RemainsAction = settings.Remains
	return d
}

func printReviewGroup(out io.Writer, g *models.DuplicateGroup, idx, total int) {
	fmt.Fprintf(out, "\nGroup #%d (%d of %d, %d images)\n", g.ID, idx+1, total, len(g.Images))
	fmt.Fprintln(out, strings.Repeat("-", 60))
	for i, img := range g.Images {
		fmt.Fprintf(out, "  %d) %-40s  %dx%d  %-4s  %8s  %s\n",
			i+1, shortenPath(img.Path, 40), img.Width, img.Height,
			strings.ToUpper(img.Format), humanize.Bytes(uint64(img.FileSize)), humanize.Time(img.ModTime))
	}
}
