package compaction

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"loom/internal/conversation"
	"loom/internal/provider"
)

// summaryTemperature keeps summaries stable across retries.
const summaryTemperature = 0.3

const summarySystemPrompt = "You write short summaries of dialogues. " +
	"Reply with the summary only, no preamble."

// SummaryGenerator produces block summaries through an LLM provider.
type SummaryGenerator struct {
	provider  provider.Provider
	mu        sync.RWMutex
	model     string
	estimator *TokenEstimator
}

// NewSummaryGenerator builds a generator using the given provider and
// summarization model.
func NewSummaryGenerator(p provider.Provider, model string) *SummaryGenerator {
	return &SummaryGenerator{
		provider:  p,
		model:     model,
		estimator: NewTokenEstimator(),
	}
}

// SetModel switches the summarization model for subsequent calls.
func (g *SummaryGenerator) SetModel(model string) {
	g.mu.Lock()
	g.model = model
	g.mu.Unlock()
}

func (g *SummaryGenerator) modelName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.model
}

// Prompt renders the summarization instruction for a message span.
func (g *SummaryGenerator) Prompt(messages []conversation.Message, maxTokens int) string {
	var b strings.Builder
	b.WriteString("Compress this dialogue into a short summary that preserves context.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("1. Keep key decisions, conclusions and agreements\n")
	b.WriteString("2. Mention important names, dates and numbers\n")
	b.WriteString("3. Keep the order of events\n")
	b.WriteString("4. Ignore greetings and filler phrases\n")
	fmt.Fprintf(&b, "5. At most %d tokens\n", maxTokens)
	b.WriteString("6. Plain connected text, no bullet lists\n\n")
	b.WriteString("Messages:\n")
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s]: %s\n", m.Role, m.Content)
	}
	b.WriteString("\nSummary:")
	return b.String()
}

// Generate summarizes the messages and returns the summary text with its
// estimated token count. The estimate prefers provider-reported usage.
func (g *SummaryGenerator) Generate(ctx context.Context, messages []conversation.Message, maxTokens int) (string, int, error) {
	if len(messages) == 0 {
		return "", 0, ErrNoMessages
	}

	resp, err := g.provider.Chat(ctx, provider.ChatRequest{
		Model: g.modelName(),
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: summarySystemPrompt},
			{Role: provider.RoleUser, Content: g.Prompt(messages, maxTokens)},
		},
		Temperature: summaryTemperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", 0, ErrEmptySummary
	}

	tokens := g.estimator.EstimateText(summary)
	if resp.Usage != nil && resp.Usage.TotalTokens > 0 {
		tokens = resp.Usage.TotalTokens
	}
	return summary, tokens, nil
}
