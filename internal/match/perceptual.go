package match

import "visualdupfinder/internal/models"

// DefaultThreshold is used when a negative threshold is supplied.
const DefaultThreshold = 5

// PerceptualMatcher finds groups of similar images using perceptual hashing.
//
// Similarity at a threshold is not transitive, so groups are the connected
// components of the threshold graph: two images share a group when any chain
// of pairwise matches (each at distance <= threshold) links them. This catches
// gradual drift across many small edits, at the cost of occasionally chaining
// visually different images together at high thresholds.
type PerceptualMatcher struct {
	threshold int
}

// NewPerceptualMatcher creates a new PerceptualMatcher. Thresholds above the
// fingerprint width are clamped to it.
func NewPerceptualMatcher(threshold int) *PerceptualMatcher {
	if threshold < 0 {
		threshold = DefaultThreshold
	}
	if threshold > models.FingerprintBits {
		threshold = models.FingerprintBits
	}
	return &PerceptualMatcher{threshold: threshold}
}

// FindGroups finds groups of similar images based on Hamming distance.
// Uses BK-Tree for O(n log n) average-case performance instead of O(n²);
// the result is identical to full pairwise comparison.
func (m *PerceptualMatcher) FindGroups(images []*models.ImageInfo) []*models.DuplicateGroup {
	n := len(images)
	if n < 2 {
		return nil
	}

	// Ids are indices into images; paths are only used at output time.
	uf := newUnionFind(n)
	tree := newBKTree()

	for i, img := range images {
		for _, j := range tree.findWithinDistance(img.Hash, m.threshold) {
			uf.union(i, j)
		}
		tree.insert(img.Hash, i)
	}

	return buildGroups(images, uf.find)
}

// GetThreshold returns the current threshold
func (m *PerceptualMatcher) GetThreshold() int {
	return m.threshold
}

// Union-Find data structure for efficient grouping
type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	rank := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: rank}
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]] // path halving
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(x, y int) {
	px, py := uf.find(x), uf.find(y)
	if px == py {
		return
	}
	// Union by rank
	if uf.rank[px] < uf.rank[py] {
		px, py = py, px
	}
	uf.parent[py] = px
	if uf.rank[px] == uf.rank[py] {
		uf.rank[px]++
	}
}
