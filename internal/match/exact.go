package match

import "visualdupfinder/internal/models"

// ExactMatcher finds groups of images with identical file hashes
type ExactMatcher struct{}

// NewExactMatcher creates a new ExactMatcher
func NewExactMatcher() *ExactMatcher {
	return &ExactMatcher{}
}

// FindGroups finds groups of images with identical file hashes.
// Images without a file hash are never grouped.
func (m *ExactMatcher) FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup {
	if len(images) < 2 {
		return nil
	}

	first := make(map[string]int)
	return buildGroups(images, func(i int) int {
		fh := images[i].FileHash
		if fh == "" {
			return -1 - i
		}
		if j, ok := first[fh]; ok {
			return j
		}
		first[fh] = i
		return i
	})
}
