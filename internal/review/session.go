package review

import (
	"errors"
	"fmt"

	"visualdupfinder/internal/models"
)

var (
	// ErrNoActiveGroup is returned when a decision arrives with no group presented.
	ErrNoActiveGroup = errors.New("no group awaiting a decision")
	// ErrNotInGroup is returned when the chosen keeper is not a member of the active group.
	ErrNotInGroup = errors.New("path is not in the active group")
	// ErrGroupIndex is returned for a jump outside the group list.
	ErrGroupIndex = errors.New("group index out of range")
)

// State is where a Session stands.
type State int

const (
	Idle State = iota
	AwaitingDecision
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingDecision:
		return "awaiting-decision"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Session walks a fixed list of groups and records a keeper (or a skip) for
// each. Every session starts with an empty ledger.
type Session struct {
	groups  []*models.DuplicateGroup
	index   int
	ledger  *Ledger
	decided map[int]string // group index -> kept path
}

// NewSession starts a review over groups, presenting the first one.
// A session over no groups is immediately Idle.
func NewSession(groups []*models.DuplicateGroup) *Session {
	return &Session{
		groups:  groups,
		ledger:  NewLedger(),
		decided: make(map[int]string),
	}
}

// State reports whether a group is waiting for a decision.
func (s *Session) State() State {
	if s.index < len(s.groups) {
		return AwaitingDecision
	}
	return Idle
}

// Current returns the active group and its index.
func (s *Session) Current() (*models.DuplicateGroup, int, error) {
	if s.State() != AwaitingDecision {
		return nil, 0, ErrNoActiveGroup
	}
	return s.groups[s.index], s.index, nil
}

// Total is the number of groups in the session.
func (s *Session) Total() int {
	return len(s.groups)
}

// Approve keeps keep and marks every other member of the active group for
// removal, then advances.
func (s *Session) Approve(keep string) error {
	g, idx, err := s.Current()
	if err != nil {
		return err
	}
	if !g.Contains(keep) {
		return fmt.Errorf("%w: %s (group %d)", ErrNotInGroup, keep, g.ID)
	}

	s.undo(idx)
	for _, img := range g.Images {
		if img.Path != keep {
			s.ledger.MarkForRemoval(img.Path)
		}
	}
	s.decided[idx] = keep
	s.index++
	return nil
}

// Skip advances without a decision for the active group, withdrawing any
// keeper chosen for it earlier in the session.
func (s *Session) Skip() error {
	_, idx, err := s.Current()
	if err != nil {
		return err
	}
	s.undo(idx)
	s.index++
	return nil
}

// Jump presents group i, which may already have been decided. Deciding it
// again replaces the earlier decision.
func (s *Session) Jump(i int) error {
	if i < 0 || i >= len(s.groups) {
		return fmt.Errorf("%w: %d (have %d)", ErrGroupIndex, i, len(s.groups))
	}
	s.index = i
	return nil
}

// Back presents the previous group.
func (s *Session) Back() error {
	return s.Jump(s.index - 1)
}

// Kept returns the keeper chosen for group i, if any.
func (s *Session) Kept(i int) (string, bool) {
	p, ok := s.decided[i]
	return p, ok
}

// RemovalList returns the paths marked so far without clearing them.
func (s *Session) RemovalList() []string {
	return s.ledger.RemovalList()
}

// Consume hands the removal list to a downstream action and clears the
// ledger, ending the session.
func (s *Session) Consume() []string {
	out := s.ledger.RemovalList()
	s.ledger.Clear()
	s.decided = make(map[int]string)
	s.index = len(s.groups)
	return out
}

// undo withdraws an earlier decision for group idx.
func (s *Session) undo(idx int) {
	keep, ok := s.decided[idx]
	if !ok {
		return
	}
	for _, img := range s.groups[idx].Images {
		if img.Path != keep {
			s.ledger.Unmark(img.Path)
		}
	}
	delete(s.decided, idx)
}
