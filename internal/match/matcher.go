package match

import "visualdupfinder/internal/models"

// Matcher is the interface for duplicate detection strategies
type Matcher interface {
	FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup
}

// buildGroups turns a root assignment (rootOf[i] is the component of
// images[i]) into groups of two or more. Groups come out in the order their
// first member was discovered; members keep input order.
func buildGroups(images []*models.ImageInfo, rootOf func(i int) int) []*models.DuplicateGroup {
	slot := make(map[int]int)
	var members [][]*models.ImageInfo
	for i, img := range images {
		root := rootOf(i)
		idx, ok := slot[root]
		if !ok {
			idx = len(members)
			slot[root] = idx
			members = append(members, nil)
		}
		members[idx] = append(members[idx], img)
	}

	var groups []*models.DuplicateGroup
	for _, imgs := range members {
		if len(imgs) < 2 {
			continue
		}
		groups = append(groups, &models.DuplicateGroup{
			ID:     len(groups) + 1,
			Images: imgs,
		})
	}
	return groups
}
