// Package review accumulates the decisions of a human walking through
// duplicate groups one at a time.
package review

// Ledger is the pending removal set. The zero value is an empty ledger.
type Ledger struct {
	order []string
	seen  map[string]struct{}
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Clear drops every accumulated decision.
func (l *Ledger) Clear() {
	l.order = nil
	l.seen = nil
}

// MarkForRemoval adds path to the removal set. Marking the same path again
// is a no-op.
func (l *Ledger) MarkForRemoval(path string) {
	if _, ok := l.seen[path]; ok {
		return
	}
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	l.seen[path] = struct{}{}
	l.order = append(l.order, path)
}

// Unmark removes path from the removal set, if present.
func (l *Ledger) Unmark(path string) {
	if _, ok := l.seen[path]; !ok {
		return
	}
	delete(l.seen, path)
	for i, p := range l.order {
		if p == path {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// RemovalList returns the accumulated paths in the order they were first
// marked. The returned slice is a copy.
func (l *Ledger) RemovalList() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Contains reports whether path is marked.
func (l *Ledger) Contains(path string) bool {
	_, ok := l.seen[path]
	return ok
}

// Len is the number of marked paths.
func (l *Ledger) Len() int {
	return len(l.order)
}
