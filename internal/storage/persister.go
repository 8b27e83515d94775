package storage

import (
	"fmt"
	"time"

	"loom/internal/conversation"
	"loom/pkg/logger"
)

const (
	saveAttempts = 3
	saveBackoff  = 200 * time.Millisecond
)

// SaveTurn persists a branch snapshot with its summary blocks, retrying
// transient failures with backoff. Callers usually run it from a
// goroutine; a final failure is returned for event reporting and logged,
// it never aborts a turn.
func (db *DB) SaveTurn(state *conversation.BranchState, blocks []conversation.SummaryBlock) error {
	var lastErr error
	for attempt := 1; attempt <= saveAttempts; attempt++ {
		lastErr = db.saveTurnOnce(state, blocks)
		if lastErr == nil {
			return nil
		}
		logger.Warn().
			Err(lastErr).
			Str("branch", state.Key).
			Int("attempt", attempt).
			Msg("turn persistence failed")
		if attempt < saveAttempts {
			time.Sleep(saveBackoff * time.Duration(attempt))
		}
	}
	return fmt.Errorf("save turn for %s: %w", state.Key, lastErr)
}

func (db *DB) saveTurnOnce(state *conversation.BranchState, blocks []conversation.SummaryBlock) error {
	if err := db.SaveBranch(state); err != nil {
		return err
	}
	if err := db.SaveBlocks(state.SessionID, state.Branch, blocks); err != nil {
		return err
	}
	return db.TouchSession(state.SessionID)
}

// LoadedBranch pairs a branch snapshot with its summary blocks.
type LoadedBranch struct {
	State  *conversation.BranchState
	Blocks []conversation.SummaryBlock
}

// LoadSession reads every branch of a session. A missing session is
// created with an empty main branch so a fresh id is always usable.
func (db *DB) LoadSession(sessionID, model string) ([]LoadedBranch, error) {
	if _, err := db.CreateSession(sessionID, model, nil); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}

	names, err := db.ListBranches(sessionID)
	if err != nil {
		return nil, err
	}

	var loaded []LoadedBranch
	for _, name := range names {
		state, err := db.LoadBranch(sessionID, name)
		if err != nil {
			return nil, fmt.Errorf("load branch %s: %w", name, err)
		}
		blocks, err := db.LoadBlocks(sessionID, name)
		if err != nil {
			return nil, fmt.Errorf("load blocks %s: %w", name, err)
		}
		loaded = append(loaded, LoadedBranch{State: state, Blocks: blocks})
	}
	return loaded, nil
}
