package models

import (
	"fmt"
	"sort"
)

// Strategy selects how the automatic selector disposes of a group.
type Strategy int

const (
	KeepBestQuality Strategy = iota + 1
	KeepMostRecent
	KeepUniqueVersions
)

var strategyNames = map[Strategy]string{
	KeepBestQuality:    "best-quality",
	KeepMostRecent:     "most-recent",
	KeepUniqueVersions: "unique-versions",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy converts a CLI/config name into a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	for s, n := range strategyNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy %q (want best-quality, most-recent or unique-versions)", name)
}

// Category labels a retained file in the keep mapping.
type Category string

const (
	// CategoryNone holds keepers of strategies that do not distinguish roles.
	CategoryNone       Category = ""
	CategoryOriginals  Category = "Originals"
	CategoryLastEdited Category = "Last Edited"
)

// RemainsAction tells the file-action collaborator what to do with removed files.
type RemainsAction string

const (
	RemainsRecycle RemainsAction = "recycle"
	RemainsMove    RemainsAction = "move"
	RemainsDelete  RemainsAction = "delete"
)

// ParseRemainsAction validates a remains action name.
func ParseRemainsAction(name string) (RemainsAction, error) {
	switch a := RemainsAction(name); a {
	case RemainsRecycle, RemainsMove, RemainsDelete:
		return a, nil
	}
	return "", fmt.Errorf("unknown remains action %q (want recycle, move or delete)", name)
}

// Disposition is the decision for a set of groups: what to remove and how
// to categorize what stays.
type Disposition struct {
	Remove []string              `json:"remove"`
	Keep   map[Category][]string `json:"keep"`

	// Flags for the file-action collaborator; the selector never acts on them.
	SortIntoFolders bool          `json:"sort_into_folders"`
	RemainsAction   RemainsAction `json:"remains_action"`
}

// NewDisposition returns an empty disposition.
func NewDisposition() *Disposition {
	return &Disposition{Keep: make(map[Category][]string)}
}

// Categorized returns the keep mapping without the uncategorized bucket.
func (d *Disposition) Categorized() map[Category][]string {
	out := make(map[Category][]string)
	for c, paths := range d.Keep {
		if c == CategoryNone || len(paths) == 0 {
			continue
		}
		out[c] = paths
	}
	return out
}

// Categories returns the non-empty categories in a stable order.
func (d *Disposition) Categories() []Category {
	var cats []Category
	for c, paths := range d.Keep {
		if len(paths) > 0 {
			cats = append(cats, c)
		}
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// KeptCount is the number of retained paths across all categories.
func (d *Disposition) KeptCount() int {
	n := 0
	for _, paths := range d.Keep {
		n += len(paths)
	}
	return n
}
