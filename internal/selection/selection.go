// Package selection decides, for each duplicate group, which files are
// removed and which are kept.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"visualdupfinder/internal/models"
)

var (
	// ErrUnknownStrategy is returned for a Strategy value outside the closed set.
	ErrUnknownStrategy = errors.New("unknown selection strategy")
	// ErrOverlappingGroups is returned when a path is a member of more than one group.
	ErrOverlappingGroups = errors.New("path appears in more than one group")
	// ErrIncomplete is returned by Verify when a disposition drops or repeats a member.
	ErrIncomplete = errors.New("disposition does not cover group membership exactly")
)

// DefaultGenerationTolerance is the widest gap between modification times
// that still counts as the same edit generation.
const DefaultGenerationTolerance = 2 * time.Second

// Options tunes the automatic selection.
type Options struct {
	// GenerationTolerance groups timestamps into generations for
	// KeepUniqueVersions. Zero means exact timestamps.
	GenerationTolerance time.Duration
	// KeepIntermediate also keeps one file per generation between the
	// original and the last edit, filed under Last Edited.
	KeepIntermediate bool

	// Passed through to the disposition for the file-action collaborator.
	SortIntoFolders bool
	RemainsAction   models.RemainsAction
}

// DefaultOptions returns the options used when the caller sets nothing.
func DefaultOptions() Options {
	return Options{
		GenerationTolerance: DefaultGenerationTolerance,
		RemainsAction:       models.RemainsRecycle,
	}
}

// Select applies strategy to every group. files supplies metadata by path;
// when a path is missing from it the group member's own metadata is used.
// Select is pure: it never touches the file system.
func Select(groups []*models.DuplicateGroup, strategy models.Strategy, files map[string]*models.ImageInfo, opts Options) (*models.Disposition, error) {
	if err := checkDisjoint(groups); err != nil {
		return nil, err
	}

	d := models.NewDisposition()
	d.RemainsAction = opts.RemainsAction
	if d.RemainsAction == "" {
		d.RemainsAction = models.RemainsRecycle
	}

	for _, g := range groups {
		members := resolve(g, files)

		switch strategy {
		case models.KeepBestQuality:
			keepOne(d, members, byQuality)
		case models.KeepMostRecent:
			keepOne(d, members, byRecency)
		case models.KeepUniqueVersions:
			keepVersions(d, members, opts)
		default:
			return nil, fmt.Errorf("%w: %v", ErrUnknownStrategy, strategy)
		}
	}

	d.SortIntoFolders = opts.SortIntoFolders && strategy == models.KeepUniqueVersions
	return d, nil
}

// Verify checks that the removal list and keep mapping together hold every
// group member exactly once and nothing else.
func Verify(groups []*models.DuplicateGroup, d *models.Disposition) error {
	want := make(map[string]bool)
	for _, g := range groups {
		for _, img := range g.Images {
			want[img.Path] = true
		}
	}

	seen := make(map[string]bool, len(want))
	check := func(path string) error {
		if !want[path] {
			return fmt.Errorf("%w: %s is not a group member", ErrIncomplete, path)
		}
		if seen[path] {
			return fmt.Errorf("%w: %s listed twice", ErrIncomplete, path)
		}
		seen[path] = true
		return nil
	}

	for _, p := range d.Remove {
		if err := check(p); err != nil {
			return err
		}
	}
	for _, cat := range d.Categories() {
		for _, p := range d.Keep[cat] {
			if err := check(p); err != nil {
				return err
			}
		}
	}
	if len(seen) != len(want) {
		return fmt.Errorf("%w: %d of %d members accounted for", ErrIncomplete, len(seen), len(want))
	}
	return nil
}

func checkDisjoint(groups []*models.DuplicateGroup) error {
	owner := make(map[string]int)
	for _, g := range groups {
		for _, img := range g.Images {
			if prev, ok := owner[img.Path]; ok {
				return fmt.Errorf("%w: %s in groups %d and %d", ErrOverlappingGroups, img.Path, prev, g.ID)
			}
			owner[img.Path] = g.ID
		}
	}
	return nil
}

// member is a group entry with its position, so output can follow group order.
type member struct {
	pos  int
	info *models.ImageInfo
}

func resolve(g *models.DuplicateGroup, files map[string]*models.ImageInfo) []member {
	out := make([]member, len(g.Images))
	for i, img := range g.Images {
		info := img
		if f, ok := files[img.Path]; ok && f != nil {
			info = f
		}
		if info == nil {
			info = &models.ImageInfo{}
		}
		out[i] = member{pos: i, info: info}
	}
	return out
}

// lessFunc reports whether a should be preferred over b.
type lessFunc func(a, b *models.ImageInfo) bool

// byQuality prefers the larger pixel area, then the newer file, then the
// lexically smaller path.
func byQuality(a, b *models.ImageInfo) bool {
	if aa, ba := a.PixelArea(), b.PixelArea(); aa != ba {
		return aa > ba
	}
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	return a.Path < b.Path
}

// byRecency prefers the newer file, then the larger pixel area, then the
// lexically smaller path.
func byRecency(a, b *models.ImageInfo) bool {
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	if aa, ba := a.PixelArea(), b.PixelArea(); aa != ba {
		return aa > ba
	}
	return a.Path < b.Path
}

// byArea is the tie-break inside one generation.
func byArea(a, b *models.ImageInfo) bool {
	if aa, ba := a.PixelArea(), b.PixelArea(); aa != ba {
		return aa > ba
	}
	return a.Path < b.Path
}

func best(members []member, less lessFunc) member {
	top := members[0]
	for _, m := range members[1:] {
		if less(m.info, top.info) {
			top = m
		}
	}
	return top
}

func keepOne(d *models.Disposition, members []member, less lessFunc) {
	keeper := best(members, less)
	for _, m := range members {
		if m.pos == keeper.pos {
			d.Keep[models.CategoryNone] = append(d.Keep[models.CategoryNone], m.info.Path)
			continue
		}
		d.Remove = append(d.Remove, m.info.Path)
	}
}

// sortedByTime returns members ordered by modification time, oldest first.
func sortedByTime(members []member) []member {
	out := make([]member, len(members))
	copy(out, members)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].info.ModTime.Before(out[j].info.ModTime)
	})
	return out
}
