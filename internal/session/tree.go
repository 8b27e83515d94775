// Package session manages conversation branches and per-session token
// accounting.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"loom/internal/conversation"
	"loom/internal/facts"
)

// BranchTree holds the branches of one session. The main branch always
// exists and is the initial active branch.
type BranchTree struct {
	mu        sync.RWMutex
	sessionID string
	branches  map[string]*conversation.BranchState
	active    string
	heuristic *facts.HeuristicExtractor
}

// NewBranchTree creates a tree with an empty main branch.
func NewBranchTree(sessionID string) *BranchTree {
	t := &BranchTree{
		sessionID: sessionID,
		branches:  make(map[string]*conversation.BranchState),
		active:    conversation.MainBranch,
		heuristic: facts.NewHeuristicExtractor(),
	}
	t.branches[conversation.MainBranch] = t.newState(conversation.MainBranch)
	return t
}

func (t *BranchTree) newState(branch string) *conversation.BranchState {
	return &conversation.BranchState{
		Key:       conversation.BranchKey(t.sessionID, branch),
		SessionID: t.sessionID,
		Branch:    branch,
		Facts:     facts.NewGroups(),
		CreatedAt: time.Now(),
	}
}

// SessionID returns the owning session id.
func (t *BranchTree) SessionID() string { return t.sessionID }

// Active returns the active branch state.
func (t *BranchTree) Active() *conversation.BranchState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.branches[t.active]
}

// ActiveName returns the active branch name.
func (t *BranchTree) ActiveName() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.active
}

// Get returns a branch state by name.
func (t *BranchTree) Get(branch string) (*conversation.BranchState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.branches[branch]
	return s, ok
}

// List returns branch names, main first, forks in numeric order.
func (t *BranchTree) List() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.branches))
	for name := range t.branches {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if names[i] == conversation.MainBranch {
			return true
		}
		if names[j] == conversation.MainBranch {
			return false
		}
		return names[i] < names[j]
	})
	return names
}

// SetActive switches the active branch. Unknown names are ignored.
func (t *BranchTree) SetActive(branch string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.branches[branch]; ok {
		t.active = branch
	}
}

// Fork creates a new branch from the first checkpointSize messages of the
// parent. Facts are recomputed by replaying the heuristic extractor over
// the copied user messages; summary blocks are not inherited. The new
// branch takes the lowest unused branch-N name.
func (t *BranchTree) Fork(parent string, checkpointSize int) (*conversation.BranchState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.branches[parent]
	if !ok {
		return nil, fmt.Errorf("session: unknown branch %q", parent)
	}

	if checkpointSize < 0 {
		checkpointSize = 0
	}
	if checkpointSize > len(src.Messages) {
		checkpointSize = len(src.Messages)
	}

	state := t.newState(t.nextBranchNameLocked())
	state.Messages = append([]conversation.Message(nil), src.Messages[:checkpointSize]...)
	for _, m := range state.Messages {
		if m.Role == conversation.RoleUser {
			t.heuristic.Apply(m.Content, state.Facts)
		}
	}

	t.branches[state.Branch] = state
	return state, nil
}

// nextBranchNameLocked returns the lowest unused branch-N name.
func (t *BranchTree) nextBranchNameLocked() string {
	for n := 1; ; n++ {
		name := fmt.Sprintf("branch-%d", n)
		if _, taken := t.branches[name]; !taken {
			return name
		}
	}
}

// Delete removes a branch. The main branch and the active branch cannot
// be deleted.
func (t *BranchTree) Delete(branch string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if branch == conversation.MainBranch {
		return fmt.Errorf("session: cannot delete the main branch")
	}
	if branch == t.active {
		return fmt.Errorf("session: cannot delete the active branch %q", branch)
	}
	if _, ok := t.branches[branch]; !ok {
		return fmt.Errorf("session: unknown branch %q", branch)
	}
	delete(t.branches, branch)
	return nil
}

// Restore registers a branch loaded from storage, replacing any branch
// with the same name.
func (t *BranchTree) Restore(state *conversation.BranchState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if state.Facts == nil {
		state.Facts = facts.NewGroups()
	}
	t.branches[state.Branch] = state
}
