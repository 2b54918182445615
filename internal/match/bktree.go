package match

import "visualdupfinder/internal/models"

// bkTree is a BK-tree for efficient similarity search using metric distances.
// It supports O(log n) average-case lookup for finding all elements within
// a given distance threshold.
type bkTree struct {
	root *bkNode
}

type bkNode struct {
	hash     models.Fingerprint
	index    int
	children map[int]*bkNode // distance -> child node
}

func newBKTree() *bkTree {
	return &bkTree{}
}

// insert adds a new hash with its associated index to the tree.
func (t *bkTree) insert(hash models.Fingerprint, index int) {
	node := &bkNode{
		hash:     hash,
		index:    index,
		children: make(map[int]*bkNode),
	}

	if t.root == nil {
		t.root = node
		return
	}

	current := t.root
	for {
		dist := hash.Distance(current.hash)
		child, exists := current.children[dist]
		if !exists {
			current.children[dist] = node
			return
		}
		current = child
	}
}

// findWithinDistance returns all indices of elements within the given
// distance threshold from the query hash.
func (t *bkTree) findWithinDistance(hash models.Fingerprint, threshold int) []int {
	if t.root == nil {
		return nil
	}

	var results []int
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		dist := hash.Distance(node.hash)
		if dist <= threshold {
			results = append(results, node.index)
		}

		// Triangle inequality: only children at distance
		// [dist - threshold, dist + threshold] can hold matches.
		for childDist, child := range node.children {
			if childDist >= dist-threshold && childDist <= dist+threshold {
				stack = append(stack, child)
			}
		}
	}
	return results
}
