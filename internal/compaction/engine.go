// Package compaction implements history compression: summary generation,
// block storage with FIFO eviction, and the per-branch compression engine.
package compaction

import (
	"context"
	"fmt"
	"sync"

	"loom/internal/conversation"
	"loom/pkg/logger"
)

// State is the compression status of a branch.
type State int

const (
	// StateIdle means no compression is running for the branch.
	StateIdle State = iota
	// StateCompressing means a compression holds the branch.
	StateCompressing
)

// String names the state.
func (s State) String() string {
	if s == StateCompressing {
		return "compressing"
	}
	return "idle"
}

// Engine coordinates compression per branch key. Acquisition is
// non-blocking: a branch already compressing rejects further attempts
// until released.
type Engine struct {
	store *SummaryStore
	gen   *SummaryGenerator

	mu     sync.Mutex
	states map[string]State
}

// NewEngine builds a compression engine over a store and generator.
func NewEngine(store *SummaryStore, gen *SummaryGenerator) *Engine {
	return &Engine{
		store:  store,
		gen:    gen,
		states: make(map[string]State),
	}
}

// Store exposes the engine's summary store.
func (e *Engine) Store() *SummaryStore { return e.store }

// Generator exposes the summary generator, mainly to retarget its model.
func (e *Engine) Generator() *SummaryGenerator { return e.gen }

// State returns the compression state of a branch.
func (e *Engine) State(key string) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[key]
}

// TryAcquire attempts to mark a branch as compressing. It returns false
// without blocking when the branch is already held.
func (e *Engine) TryAcquire(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.states[key] == StateCompressing {
		return false
	}
	e.states[key] = StateCompressing
	return true
}

// Release marks a branch idle again.
func (e *Engine) Release(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.states, key)
}

// Compress summarizes the oldest block of a history that has outgrown
// its verbatim window. The caller must hold the branch via TryAcquire and
// is responsible for removing the covered messages from history.
func (e *Engine) Compress(ctx context.Context, key string, cfg conversation.ContextConfig, history []conversation.Message) Result {
	if !cfg.ShouldCompress(len(history)) {
		return notNeededResult(fmt.Sprintf("history size %d within window", len(history)))
	}

	n := cfg.CompressionBlockSize
	if n > len(history) {
		n = len(history)
	}
	oldest := append([]conversation.Message(nil), history[:n]...)

	summary, tokens, err := e.gen.Generate(ctx, oldest, cfg.SummaryMaxTokens)
	if err != nil {
		logger.Warn().Err(err).Str("branch", key).Msg("summary generation failed")
		return failedResult(err, oldest)
	}

	block := conversation.NewSummaryBlock(key, summary, tokens, oldest)
	stored, evicted := e.store.Append(key, block, cfg.MaxSummaryBlocks)

	logger.Debug().
		Str("branch", key).
		Int("messages", len(oldest)).
		Int("tokens", stored.EstimatedTokens).
		Int("evicted", len(evicted)).
		Msg("summary block committed")

	return successResult(&stored, evicted)
}

// Run wraps a full attempt: acquire, compress, release. A held branch
// yields NotNeeded with an in-progress reason. Release is deferred so a
// panic in the generator path cannot leak the held state.
func (e *Engine) Run(ctx context.Context, key string, cfg conversation.ContextConfig, history []conversation.Message) Result {
	if !e.TryAcquire(key) {
		return notNeededResult("compression already in progress")
	}
	defer e.Release(key)
	return e.Compress(ctx, key, cfg, history)
}
