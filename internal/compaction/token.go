package compaction

import "loom/internal/conversation"

// charsPerToken is the approximation ratio used across the engine.
const charsPerToken = 4

// TokenEstimator provides rough token count estimation for text and
// messages without a tokenizer dependency.
type TokenEstimator struct{}

// NewTokenEstimator creates a token estimator.
func NewTokenEstimator() *TokenEstimator {
	return &TokenEstimator{}
}

// EstimateText estimates the token count of a text string.
func (e *TokenEstimator) EstimateText(text string) int {
	return len(text) / charsPerToken
}

// EstimateMessage estimates the token count of a single message,
// including a small per-message framing overhead.
func (e *TokenEstimator) EstimateMessage(msg conversation.Message) int {
	return e.EstimateText(msg.Content) + len(msg.Role)/charsPerToken + 1
}

// EstimateMessages estimates the total token count of a message list.
func (e *TokenEstimator) EstimateMessages(messages []conversation.Message) int {
	total := 0
	for _, m := range messages {
		total += e.EstimateMessage(m)
	}
	return total
}
