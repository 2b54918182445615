package selection

import (
	"time"

	"visualdupfinder/internal/models"
)

// generations splits members into edit generations. Members are walked in
// time order; a member starts a new generation when it is more than
// tolerance newer than the first member of the current one.
func generations(members []member, tolerance time.Duration) [][]member {
	var gens [][]member
	for _, m := range sortedByTime(members) {
		if n := len(gens); n > 0 {
			start := gens[n-1][0].info.ModTime
			if m.info.ModTime.Sub(start) <= tolerance {
				gens[n-1] = append(gens[n-1], m)
				continue
			}
		}
		gens = append(gens, []member{m})
	}
	return gens
}

// keepVersions keeps the best file of the earliest generation as the
// original and the best file of the latest generation as the last edit.
// A kept version that is byte-identical to the original or the last edit
// is removed, as is everything else in the group.
func keepVersions(d *models.Disposition, members []member, opts Options) {
	gens := generations(members, opts.GenerationTolerance)

	kept := make(map[int]models.Category)
	original := best(gens[0], byArea)
	kept[original.pos] = models.CategoryOriginals

	if len(gens) > 1 {
		last := best(gens[len(gens)-1], byArea)
		if !sameBytes(original.info, last.info) {
			kept[last.pos] = models.CategoryLastEdited
		}
		if opts.KeepIntermediate {
			for _, gen := range gens[1 : len(gens)-1] {
				mid := best(gen, byArea)
				if sameBytes(mid.info, original.info) || sameBytes(mid.info, last.info) {
					continue
				}
				kept[mid.pos] = models.CategoryLastEdited
			}
		}
	}

	// Keep lists follow generation order; removals follow group order.
	for _, gen := range gens {
		for _, m := range gen {
			if cat, ok := kept[m.pos]; ok {
				d.Keep[cat] = append(d.Keep[cat], m.info.Path)
			}
		}
	}
	for _, m := range members {
		if _, ok := kept[m.pos]; !ok {
			d.Remove = append(d.Remove, m.info.Path)
		}
	}
}

func sameBytes(a, b *models.ImageInfo) bool {
	return a.FileHash != "" && a.FileHash == b.FileHash
}
