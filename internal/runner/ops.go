package runner

import (
	"context"
	"fmt"

	"loom/internal/compaction"
	"loom/internal/conversation"
	"loom/internal/facts"
	"loom/internal/provider"
	"loom/internal/session"
	"loom/pkg/logger"
)

// History returns a copy of the active branch history.
func (e *SessionEngine) History() []conversation.Message {
	state := e.tree.Active()
	lk := e.branchLock(state.Key)
	lk.Lock()
	defer lk.Unlock()
	return append([]conversation.Message(nil), state.Messages...)
}

// Facts returns a snapshot of the active branch facts grouped by category.
func (e *SessionEngine) Facts() map[string]map[string]string {
	return e.tree.Active().Facts.Snapshot()
}

// SummaryBlocks returns the summary blocks of the active branch.
func (e *SessionEngine) SummaryBlocks() []conversation.SummaryBlock {
	return e.compactor.Store().Blocks(e.tree.Active().Key)
}

// Reset clears the active branch: history, facts, summary blocks and the
// token counters.
func (e *SessionEngine) Reset() {
	state := e.tree.Active()
	lk := e.branchLock(state.Key)
	lk.Lock()
	state.Messages = nil
	state.Facts = facts.NewGroups()
	lk.Unlock()

	e.compactor.Store().Clear(state.Key)
	e.accum.Reset()
	e.persistAsync(state)
}

// TruncateHistory drops everything outside the verbatim window of the
// active branch and scales the token counters by the surviving share.
// Returns the number of removed messages.
func (e *SessionEngine) TruncateHistory() int {
	keep := e.Config().KeepLastN
	state := e.tree.Active()
	lk := e.branchLock(state.Key)

	lk.Lock()
	original := len(state.Messages)
	if original <= keep {
		lk.Unlock()
		return 0
	}
	state.Messages = append([]conversation.Message(nil), state.Messages[original-keep:]...)
	lk.Unlock()

	e.accum.ReduceProportionally(float64(keep) / float64(original))
	e.persistAsync(state)
	return original - keep
}

// RemoveOldestMessages drops up to n messages from the front of the
// active branch history and scales the token counters by the surviving
// share. Returns the number of removed messages.
func (e *SessionEngine) RemoveOldestMessages(n int) int {
	if n <= 0 {
		return 0
	}
	state := e.tree.Active()
	lk := e.branchLock(state.Key)

	lk.Lock()
	original := len(state.Messages)
	if n > original {
		n = original
	}
	if n == 0 {
		lk.Unlock()
		return 0
	}
	state.Messages = append([]conversation.Message(nil), state.Messages[n:]...)
	remaining := len(state.Messages)
	lk.Unlock()

	if original > 0 {
		e.accum.ReduceProportionally(float64(remaining) / float64(original))
	}
	e.persistAsync(state)
	return n
}

// Compact forces one compression attempt on the active branch,
// regardless of the threshold. Returns ran=false when another
// compression already holds the branch.
func (e *SessionEngine) Compact(ctx context.Context) (compaction.Result, bool) {
	cfg := e.Config()
	state := e.tree.Active()
	res, ran := e.compressBranch(ctx, cfg, state, e.branchLock(state.Key))
	if ran && res.Succeeded() {
		e.persistAsync(state)
	}
	return res, ran
}

// Branches lists the session's branch names, main first.
func (e *SessionEngine) Branches() []string {
	return e.tree.List()
}

// ActiveBranch returns the active branch name.
func (e *SessionEngine) ActiveBranch() string {
	return e.tree.ActiveName()
}

// Fork creates a new branch from the first checkpointSize messages of
// parent, makes it active and returns its name.
func (e *SessionEngine) Fork(parent string, checkpointSize int) (string, error) {
	state, err := e.tree.Fork(parent, checkpointSize)
	if err != nil {
		return "", err
	}
	e.tree.SetActive(state.Branch)
	e.events.publish(Event{
		Kind:      EventBranch,
		SessionID: state.SessionID,
		Branch:    state.Branch,
		Detail:    "forked",
		Data:      map[string]any{"parent": parent, "checkpoint": len(state.Messages)},
	})
	e.persistAsync(state)
	return state.Branch, nil
}

// Switch makes the named branch active.
func (e *SessionEngine) Switch(branch string) error {
	if _, ok := e.tree.Get(branch); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBranch, branch)
	}
	e.tree.SetActive(branch)
	return nil
}

// DeleteBranch removes a branch along with its summary blocks and
// persisted rows. The main and active branches cannot be deleted.
func (e *SessionEngine) DeleteBranch(branch string) error {
	state, ok := e.tree.Get(branch)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBranch, branch)
	}
	if err := e.tree.Delete(branch); err != nil {
		return err
	}
	e.compactor.Store().DropBranch(state.Key)
	if e.db != nil {
		if err := e.db.DeleteBranch(state.SessionID, branch); err != nil {
			logger.Warn().Err(err).Str("branch", state.Key).Msg("branch row cleanup failed")
		}
	}
	e.events.publish(Event{
		Kind:      EventBranch,
		SessionID: state.SessionID,
		Branch:    branch,
		Detail:    "deleted",
	})
	return nil
}

// TokenStatistics is the session-level usage view.
type TokenStatistics struct {
	session.TokenSnapshot
	Model           string  `json:"model"`
	ContextLimit    int     `json:"context_limit"`
	EstimatedTokens int     `json:"estimated_context_tokens"`
	UsagePercent    float64 `json:"usage_percent"`
	EstimatedCost   float64 `json:"estimated_cost_usd"`
	CostKnown       bool    `json:"cost_known"`
	SummaryBlocks   int     `json:"summary_blocks"`
	HistorySize     int     `json:"history_size"`
	FactsCount      int     `json:"facts_count"`
}

// TokenStatistics reports cumulative usage together with the current
// composed-context estimate against the model's window.
func (e *SessionEngine) TokenStatistics() TokenStatistics {
	cfg := e.Config()
	state := e.tree.Active()
	lk := e.branchLock(state.Key)

	lk.Lock()
	composed := e.composer.Compose(cfg, state, e.compactor.Store().Blocks(state.Key), "")
	historySize := len(state.Messages)
	lk.Unlock()

	snap := e.accum.Snapshot()
	limit := provider.ContextLimit(cfg.Model)
	cost, known := provider.EstimateCost(cfg.Model, snap.PromptTokens, snap.CompletionTokens)

	return TokenStatistics{
		TokenSnapshot:   snap,
		Model:           cfg.Model,
		ContextLimit:    limit,
		EstimatedTokens: composed.EstimatedTokens,
		UsagePercent:    float64(composed.EstimatedTokens) / float64(limit) * 100,
		EstimatedCost:   cost,
		CostKnown:       known,
		SummaryBlocks:   e.compactor.Store().Count(state.Key),
		HistorySize:     historySize,
		FactsCount:      state.Facts.Len(),
	}
}
