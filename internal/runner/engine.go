// Package runner orchestrates conversation turns: history mutation,
// facts extraction, compression, context composition and the provider
// round trip.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"loom/internal/compaction"
	internalContext "loom/internal/context"
	"loom/internal/conversation"
	"loom/internal/facts"
	"loom/internal/provider"
	"loom/internal/session"
	"loom/internal/storage"
	"loom/pkg/logger"
)

var (
	// ErrNoProvider indicates the engine was built without a chat provider.
	ErrNoProvider = errors.New("runner: no provider configured")
	// ErrEmptyMessage indicates a blank user message.
	ErrEmptyMessage = errors.New("runner: empty message")
	// ErrUnknownBranch indicates the named branch does not exist.
	ErrUnknownBranch = errors.New("runner: unknown branch")
)

// Options configures a SessionEngine.
type Options struct {
	SessionID string
	Provider  provider.Provider
	Config    conversation.ContextConfig
	// DB enables persistence when set. A nil DB keeps everything in memory.
	DB *storage.DB
}

// SessionEngine drives one session: a branch tree, a compression engine,
// a facts pipeline and cumulative token accounting. History mutation is
// serialized per branch; provider calls never happen under a branch lock.
type SessionEngine struct {
	tree      *session.BranchTree
	accum     *session.TokenAccumulator
	compactor *compaction.Engine
	composer  *internalContext.Composer
	extractor *facts.Extractor
	provider  provider.Provider
	db        *storage.DB
	events    eventBus

	cfgMu sync.RWMutex
	cfg   conversation.ContextConfig

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewSessionEngine builds an engine for one session.
func NewSessionEngine(opts Options) *SessionEngine {
	cfg := opts.Config
	cfg.Normalize()

	var llm *facts.LLMExtractor
	if cfg.EnableLLMFactsExtraction && opts.Provider != nil {
		llm = facts.NewLLMExtractor(opts.Provider, cfg.Model)
	}

	gen := compaction.NewSummaryGenerator(opts.Provider, cfg.Model)
	return &SessionEngine{
		tree:      session.NewBranchTree(opts.SessionID),
		accum:     session.NewTokenAccumulator(),
		compactor: compaction.NewEngine(compaction.NewSummaryStore(), gen),
		composer:  internalContext.NewComposer(),
		extractor: facts.NewExtractor(llm),
		provider:  opts.Provider,
		db:        opts.DB,
		cfg:       cfg,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Subscribe registers a listener for engine events. Listeners are called
// synchronously and must not block.
func (e *SessionEngine) Subscribe(fn func(Event)) {
	e.events.subscribe(fn)
}

// SessionID returns the session this engine drives.
func (e *SessionEngine) SessionID() string { return e.tree.SessionID() }

// Config returns the current configuration.
func (e *SessionEngine) Config() conversation.ContextConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// UpdateConfig normalizes and installs a new configuration. A model
// change retargets the summary generator as well.
func (e *SessionEngine) UpdateConfig(cfg conversation.ContextConfig) conversation.ContextConfig {
	cfg.Normalize()
	e.cfgMu.Lock()
	e.cfg = cfg
	e.cfgMu.Unlock()
	e.compactor.Generator().SetModel(cfg.Model)
	return cfg
}

func (e *SessionEngine) branchLock(key string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lk, ok := e.locks[key]
	if !ok {
		lk = &sync.Mutex{}
		e.locks[key] = lk
	}
	return lk
}

// TurnResult reports what one Send did beyond the reply itself.
type TurnResult struct {
	Reply           conversation.Message
	FactsWritten    int
	Compression     *compaction.Result
	EstimatedTokens int
	Retried         bool
}

// Send runs one conversation turn on the active branch: update facts,
// compress when the boundary is reached, compose the context with the
// pending user message and call the provider. The user message and the
// reply are committed together only after a successful call; a failed
// turn leaves history untouched. A context-window error from the
// provider triggers one forced compression and one retry.
func (e *SessionEngine) Send(ctx context.Context, text string) (*TurnResult, error) {
	if e.provider == nil {
		return nil, ErrNoProvider
	}
	if text == "" {
		return nil, ErrEmptyMessage
	}

	cfg := e.Config()
	state := e.tree.Active()
	key := state.Key
	lk := e.branchLock(key)

	lk.Lock()
	historySize := len(state.Messages)
	lk.Unlock()

	result := &TurnResult{}

	if cfg.EnableFactsExtraction {
		result.FactsWritten = e.extractor.Update(ctx, text, state.Facts)
		if result.FactsWritten > 0 {
			e.events.publish(Event{
				Kind:      EventFacts,
				SessionID: state.SessionID,
				Branch:    state.Branch,
				Detail:    fmt.Sprintf("%d facts written", result.FactsWritten),
				Data:      map[string]any{"written": result.FactsWritten, "total": state.Facts.Len()},
			})
		}
	}

	if cfg.ShouldCompress(historySize) {
		if res, ran := e.compressBranch(ctx, cfg, state, lk); ran {
			result.Compression = &res
		}
	}

	reply, retried, err := e.chatWithRecovery(ctx, cfg, state, lk, text, result)
	if err != nil {
		return nil, err
	}
	result.Reply = reply
	result.Retried = retried

	lk.Lock()
	state.Messages = append(state.Messages,
		conversation.NewMessage(conversation.RoleUser, text), reply)
	if cfg.Strategy == conversation.StrategySlidingWindow && len(state.Messages) > cfg.KeepLastN {
		state.Messages = append([]conversation.Message(nil),
			state.Messages[len(state.Messages)-cfg.KeepLastN:]...)
	}
	lk.Unlock()

	state.Facts.Trim(cfg.MaxFacts)
	e.persistAsync(state)
	return result, nil
}

// chatWithRecovery composes the context and calls the provider. On a
// context-window error it forces one compression and retries once.
func (e *SessionEngine) chatWithRecovery(ctx context.Context, cfg conversation.ContextConfig, state *conversation.BranchState, lk *sync.Mutex, userText string, result *TurnResult) (conversation.Message, bool, error) {
	reply, estimated, err := e.chatOnce(ctx, cfg, state, lk, userText)
	result.EstimatedTokens = estimated
	if err == nil {
		return reply, false, nil
	}
	if !provider.IsContextWindowExceeded(err) {
		return conversation.Message{}, false, err
	}

	logger.Warn().
		Str("branch", state.Key).
		Str("model", cfg.Model).
		Msg("context window exceeded, forcing compression")

	res, ran := e.compressBranch(ctx, cfg, state, lk)
	if ran {
		result.Compression = &res
	}
	if !ran || !res.Succeeded() {
		return conversation.Message{}, false, err
	}

	reply, estimated, retryErr := e.chatOnce(ctx, cfg, state, lk, userText)
	result.EstimatedTokens = estimated
	if retryErr != nil {
		return conversation.Message{}, true, retryErr
	}
	return reply, true, nil
}

// chatOnce composes the current context and performs a single provider
// call. The branch lock is held only for the history snapshot.
func (e *SessionEngine) chatOnce(ctx context.Context, cfg conversation.ContextConfig, state *conversation.BranchState, lk *sync.Mutex, userText string) (conversation.Message, int, error) {
	lk.Lock()
	composed := e.composer.Compose(cfg, state, e.compactor.Store().Blocks(state.Key), userText)
	lk.Unlock()

	start := time.Now()
	resp, err := e.provider.Chat(ctx, provider.ChatRequest{
		Model:    cfg.Model,
		Messages: composed.ProviderMessages(),
	})
	if err != nil {
		return conversation.Message{}, composed.EstimatedTokens, err
	}

	reply := conversation.NewMessage(conversation.RoleAssistant, resp.Content)
	metrics := &conversation.RequestMetrics{
		DurationMillis: time.Since(start).Milliseconds(),
		Model:          cfg.Model,
	}
	if resp.Usage != nil {
		metrics.PromptTokens = resp.Usage.PromptTokens
		metrics.CompletionTokens = resp.Usage.CompletionTokens
		metrics.TotalTokens = resp.Usage.TotalTokens
		e.accum.Update(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	}
	reply.Metrics = metrics
	return reply, composed.EstimatedTokens, nil
}

// compressBranch runs one exclusive compression attempt and, on success,
// removes the summarized prefix from history under the branch lock. The
// generator call happens with no lock held. Returns ran=false when
// another compression already holds the branch.
func (e *SessionEngine) compressBranch(ctx context.Context, cfg conversation.ContextConfig, state *conversation.BranchState, lk *sync.Mutex) (compaction.Result, bool) {
	key := state.Key
	if !e.compactor.TryAcquire(key) {
		return compaction.Result{}, false
	}
	defer e.compactor.Release(key)

	lk.Lock()
	history := append([]conversation.Message(nil), state.Messages...)
	lk.Unlock()

	res := e.compactor.Compress(ctx, key, cfg, history)
	if res.Succeeded() {
		lk.Lock()
		removed := 0
		for removed < res.Block.MessageCount && removed < len(state.Messages) {
			if state.Messages[removed].Timestamp.After(res.Block.CoveredTo) {
				break
			}
			removed++
		}
		state.Messages = append([]conversation.Message(nil), state.Messages[removed:]...)
		lk.Unlock()

		if removed < res.Block.MessageCount {
			res = res.WithShortRemoval(fmt.Sprintf(
				"removed %d of %d summarized messages", removed, res.Block.MessageCount))
		}
	}

	e.publishCompression(state, res)
	return res, true
}

func (e *SessionEngine) publishCompression(state *conversation.BranchState, res compaction.Result) {
	ev := Event{
		Kind:      EventCompression,
		SessionID: state.SessionID,
		Branch:    state.Branch,
		Detail:    res.Kind().String(),
		Data:      map[string]any{},
	}
	switch res.Kind() {
	case compaction.ResultSuccess, compaction.ResultPartial:
		ev.Data["messages"] = res.Block.MessageCount
		ev.Data["tokens"] = res.Block.EstimatedTokens
		ev.Data["evicted"] = len(res.Evicted)
		if res.Warning != "" {
			ev.Data["warning"] = res.Warning
		}
	case compaction.ResultFailed:
		ev.Data["error"] = res.Err.Error()
	case compaction.ResultNotNeeded:
		ev.Data["reason"] = res.Reason
	}
	e.events.publish(ev)
}

// snapshotBranch clones a branch state under its lock.
func (e *SessionEngine) snapshotBranch(state *conversation.BranchState) *conversation.BranchState {
	lk := e.branchLock(state.Key)
	lk.Lock()
	defer lk.Unlock()
	return &conversation.BranchState{
		Key:       state.Key,
		SessionID: state.SessionID,
		Branch:    state.Branch,
		Messages:  append([]conversation.Message(nil), state.Messages...),
		Facts:     state.Facts.Clone(),
		CreatedAt: state.CreatedAt,
	}
}

// persistAsync saves the branch snapshot in the background. Failures are
// reported as events, never surfaced to the turn.
func (e *SessionEngine) persistAsync(state *conversation.BranchState) {
	if e.db == nil {
		return
	}
	snapshot := e.snapshotBranch(state)
	blocks := e.compactor.Store().Blocks(state.Key)

	go func() {
		if err := e.db.SaveTurn(snapshot, blocks); err != nil {
			logger.Error().Err(err).Str("branch", snapshot.Key).Msg("background save failed")
			e.events.publish(Event{
				Kind:      EventPersistence,
				SessionID: snapshot.SessionID,
				Branch:    snapshot.Branch,
				Detail:    "save failed",
				Data:      map[string]any{"error": err.Error()},
			})
		}
	}()
}

// Flush synchronously persists every branch of the session. A no-op
// without a DB.
func (e *SessionEngine) Flush() error {
	if e.db == nil {
		return nil
	}
	var firstErr error
	for _, name := range e.tree.List() {
		state, ok := e.tree.Get(name)
		if !ok {
			continue
		}
		snapshot := e.snapshotBranch(state)
		blocks := e.compactor.Store().Blocks(state.Key)
		if err := e.db.SaveTurn(snapshot, blocks); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// LoadFromStorage restores every persisted branch of the session,
// creating the session row when missing. A no-op without a DB.
func (e *SessionEngine) LoadFromStorage() error {
	if e.db == nil {
		return nil
	}
	loaded, err := e.db.LoadSession(e.tree.SessionID(), e.Config().Model)
	if err != nil {
		return err
	}
	for _, lb := range loaded {
		e.tree.Restore(lb.State)
		for _, b := range lb.Blocks {
			e.compactor.Store().Restore(lb.State.Key, b)
		}
	}
	return nil
}
