package session

import "sync/atomic"

// TokenAccumulator tracks cumulative token usage for one session with
// atomic counters. Proportional reduction keeps the statistics roughly
// aligned with history after truncation.
type TokenAccumulator struct {
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	totalTokens      atomic.Int64
	requestCount     atomic.Int64
	lastPrompt       atomic.Int64
	lastCompletion   atomic.Int64
}

// TokenSnapshot is a point-in-time view of an accumulator.
type TokenSnapshot struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	RequestCount     int `json:"request_count"`
	LastPrompt       int `json:"last_prompt_tokens"`
	LastCompletion   int `json:"last_completion_tokens"`
}

// NewTokenAccumulator creates an empty accumulator.
func NewTokenAccumulator() *TokenAccumulator {
	return &TokenAccumulator{}
}

// Update records one request's usage.
func (a *TokenAccumulator) Update(prompt, completion, total int) {
	a.promptTokens.Add(int64(prompt))
	a.completionTokens.Add(int64(completion))
	a.totalTokens.Add(int64(total))
	a.requestCount.Add(1)
	a.lastPrompt.Store(int64(prompt))
	a.lastCompletion.Store(int64(completion))
}

// ReduceProportionally scales the cumulative counters by factor, used
// after truncation removed part of the history the counters cover.
func (a *TokenAccumulator) ReduceProportionally(factor float64) {
	if factor < 0 {
		factor = 0
	}
	if factor > 1 {
		factor = 1
	}
	a.promptTokens.Store(int64(float64(a.promptTokens.Load()) * factor))
	a.completionTokens.Store(int64(float64(a.completionTokens.Load()) * factor))
	a.totalTokens.Store(int64(float64(a.totalTokens.Load()) * factor))
	a.requestCount.Store(int64(float64(a.requestCount.Load()) * factor))
}

// Snapshot returns the current counter values.
func (a *TokenAccumulator) Snapshot() TokenSnapshot {
	return TokenSnapshot{
		PromptTokens:     int(a.promptTokens.Load()),
		CompletionTokens: int(a.completionTokens.Load()),
		TotalTokens:      int(a.totalTokens.Load()),
		RequestCount:     int(a.requestCount.Load()),
		LastPrompt:       int(a.lastPrompt.Load()),
		LastCompletion:   int(a.lastCompletion.Load()),
	}
}

// Reset zeroes every counter.
func (a *TokenAccumulator) Reset() {
	a.promptTokens.Store(0)
	a.completionTokens.Store(0)
	a.totalTokens.Store(0)
	a.requestCount.Store(0)
	a.lastPrompt.Store(0)
	a.lastCompletion.Store(0)
}
