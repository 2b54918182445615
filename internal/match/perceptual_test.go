package match

import (
	"fmt"
	"reflect"
	"testing"

	"visualdupfinder/internal/models"
)

func imagesFromHashes(hashes ...models.Fingerprint) []*models.ImageInfo {
	images := make([]*models.ImageInfo, len(hashes))
	for i, h := range hashes {
		images[i] = &models.ImageInfo{Path: fmt.Sprintf("img%03d.jpg", i), Hash: h}
	}
	return images
}

func groupPaths(groups []*models.DuplicateGroup) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.Paths()
	}
	return out
}

func TestNewPerceptualMatcher_Threshold(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, DefaultThreshold},
		{0, 0},
		{10, 10},
		{64, 64},
		{100, 64},
	}
	for _, tt := range tests {
		if got := NewPerceptualMatcher(tt.in).GetThreshold(); got != tt.want {
			t.Errorf("NewPerceptualMatcher(%d).GetThreshold() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPerceptualMatcher_Empty(t *testing.T) {
	matcher := NewPerceptualMatcher(10)
	if groups := matcher.FindGroups(nil); groups != nil {
		t.Errorf("expected nil for empty input, got %v", groups)
	}
}

func TestPerceptualMatcher_SingleImage(t *testing.T) {
	matcher := NewPerceptualMatcher(10)
	if groups := matcher.FindGroups(imagesFromHashes(0b1111)); groups != nil {
		t.Errorf("expected nil for single image, got %v", groups)
	}
}

func TestPerceptualMatcher_NoDuplicates(t *testing.T) {
	matcher := NewPerceptualMatcher(2)
	images := imagesFromHashes(0b0000000000, 0b1111111111)
	if groups := matcher.FindGroups(images); len(groups) != 0 {
		t.Errorf("expected no groups for distant images, got %d", len(groups))
	}
}

func TestPerceptualMatcher_ExactDuplicates(t *testing.T) {
	matcher := NewPerceptualMatcher(0)
	images := []*models.ImageInfo{
		{Path: "a.jpg", Hash: 0b1111},
		{Path: "b.jpg", Hash: 0b1111},
		{Path: "c.jpg", Hash: 0b0000},
	}
	groups := matcher.FindGroups(images)
	want := [][]string{{"a.jpg", "b.jpg"}}
	if got := groupPaths(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

// A chain of small edits stays one group even though the ends are far apart.
func TestPerceptualMatcher_TransitiveChain(t *testing.T) {
	matcher := NewPerceptualMatcher(3)
	a := models.Fingerprint(0)
	// d(a,b)=3, d(b,c)=3, d(a,c)=6
	b := a ^ 0b111
	c := b ^ 0b111000
	d := models.Fingerprint(^uint64(0))
	images := []*models.ImageInfo{
		{Path: "A.jpg", Hash: a},
		{Path: "B.jpg", Hash: b},
		{Path: "C.jpg", Hash: c},
		{Path: "D.jpg", Hash: d},
	}
	groups := matcher.FindGroups(images)
	want := [][]string{{"A.jpg", "B.jpg", "C.jpg"}}
	if got := groupPaths(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

// A bridge discovered late merges two groups that were separate so far.
func TestPerceptualMatcher_LateBridge(t *testing.T) {
	matcher := NewPerceptualMatcher(2)
	images := []*models.ImageInfo{
		{Path: "x1.jpg", Hash: 0b0000_0000},
		{Path: "y1.jpg", Hash: 0b1111_0000},
		{Path: "x2.jpg", Hash: 0b0000_0001},
		{Path: "y2.jpg", Hash: 0b1111_0001},
		{Path: "bridge.jpg", Hash: 0b0011_0000}, // 2 from x1, 2 from y1
	}
	groups := matcher.FindGroups(images)
	want := [][]string{{"x1.jpg", "y1.jpg", "x2.jpg", "y2.jpg", "bridge.jpg"}}
	if got := groupPaths(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
}

func TestPerceptualMatcher_MultipleGroups_Order(t *testing.T) {
	matcher := NewPerceptualMatcher(1)
	images := []*models.ImageInfo{
		{Path: "solo.jpg", Hash: 0x00FF00FF00FF00FF},
		{Path: "c.jpg", Hash: 0xFFFFFFFFFFFFFFFF},
		{Path: "a.jpg", Hash: 0x0000000000000000},
		{Path: "d.jpg", Hash: 0xFFFFFFFFFFFFFFFE},
		{Path: "b.jpg", Hash: 0x0000000000000001},
	}
	groups := matcher.FindGroups(images)
	want := [][]string{{"c.jpg", "d.jpg"}, {"a.jpg", "b.jpg"}}
	if got := groupPaths(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("groups = %v, want %v", got, want)
	}
	for i, g := range groups {
		if g.ID != i+1 {
			t.Errorf("group %d has ID %d", i, g.ID)
		}
	}
}

func TestPerceptualMatcher_FullWidthThreshold(t *testing.T) {
	images := imagesFromHashes(0, ^models.Fingerprint(0), 0xAAAA, 0x5555)
	groups := NewPerceptualMatcher(models.FingerprintBits).FindGroups(images)
	if len(groups) != 1 || len(groups[0].Images) != len(images) {
		t.Fatalf("threshold 64 should put every image in one group, got %v", groupPaths(groups))
	}
}

// Raising the threshold only ever merges groups.
func TestPerceptualMatcher_Monotonic(t *testing.T) {
	images := imagesFromHashes(pseudoRandomHashes(200, 3)...)

	prev := componentOf(images, NewPerceptualMatcher(0).FindGroups(images))
	for threshold := 1; threshold <= 24; threshold++ {
		cur := componentOf(images, NewPerceptualMatcher(threshold).FindGroups(images))
		for i := range images {
			for j := i + 1; j < len(images); j++ {
				if prev[i] >= 0 && prev[i] == prev[j] && cur[i] != cur[j] {
					t.Fatalf("threshold %d split %s and %s", threshold, images[i].Path, images[j].Path)
				}
			}
		}
		prev = cur
	}
}

// BK-tree grouping must match full pairwise comparison exactly.
func TestPerceptualMatcher_EquivalenceWithBruteForce(t *testing.T) {
	images := imagesFromHashes(pseudoRandomHashes(300, 11)...)

	for _, threshold := range []int{0, 2, 5, 12} {
		t.Run(fmt.Sprintf("threshold=%d", threshold), func(t *testing.T) {
			got := groupPaths(NewPerceptualMatcher(threshold).FindGroups(images))

			uf := newUnionFind(len(images))
			for i := range images {
				for j := i + 1; j < len(images); j++ {
					if images[i].Hash.Distance(images[j].Hash) <= threshold {
						uf.union(i, j)
					}
				}
			}
			want := groupPaths(buildGroups(images, uf.find))

			if !reflect.DeepEqual(got, want) {
				t.Errorf("BK-tree groups differ from brute force:\n got %v\nwant %v", got, want)
			}
		})
	}
}

func TestPerceptualMatcher_Disjoint(t *testing.T) {
	images := imagesFromHashes(pseudoRandomHashes(300, 5)...)
	groups := NewPerceptualMatcher(8).FindGroups(images)

	seen := make(map[string]int)
	for _, g := range groups {
		if len(g.Images) < 2 {
			t.Errorf("group %d has %d members", g.ID, len(g.Images))
		}
		for _, img := range g.Images {
			if prev, dup := seen[img.Path]; dup {
				t.Errorf("%s is in groups %d and %d", img.Path, prev, g.ID)
			}
			seen[img.Path] = g.ID
		}
	}
}

func TestUnionFind(t *testing.T) {
	uf := newUnionFind(5)

	for i := 0; i < 5; i++ {
		if uf.find(i) != i {
			t.Errorf("expected %d to be its own root", i)
		}
	}

	uf.union(0, 1)
	if uf.find(0) != uf.find(1) {
		t.Error("expected 0 and 1 to be in same group")
	}

	uf.union(2, 3)
	if uf.find(2) != uf.find(3) {
		t.Error("expected 2 and 3 to be in same group")
	}

	if uf.find(4) == uf.find(0) || uf.find(4) == uf.find(2) {
		t.Error("expected 4 to be separate")
	}

	uf.union(1, 3)
	if uf.find(0) != uf.find(2) {
		t.Error("expected all of 0,1,2,3 to be in same group")
	}
}

// componentOf maps each image index to its group ID, or -1 when ungrouped.
func componentOf(images []*models.ImageInfo, groups []*models.DuplicateGroup) []int {
	byPath := make(map[string]int)
	for _, g := range groups {
		for _, img := range g.Images {
			byPath[img.Path] = g.ID
		}
	}
	out := make([]int, len(images))
	for i, img := range images {
		id, ok := byPath[img.Path]
		if !ok {
			id = -1 - i
		}
		out[i] = id
	}
	return out
}

func BenchmarkPerceptualMatcher_1000(b *testing.B) {
	images := imagesFromHashes(pseudoRandomHashes(1000, 1)...)
	matcher := NewPerceptualMatcher(10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		matcher.FindGroups(images)
	}
}

func BenchmarkPerceptualMatcher_5000(b *testing.B) {
	images := imagesFromHashes(pseudoRandomHashes(5000, 1)...)
	matcher := NewPerceptualMatcher(10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		matcher.FindGroups(images)
	}
}
