package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"loom/internal/provider"
)

// LLM extraction parameters.
const (
	llmMinConfidence = 0.6
	llmMaxFacts      = 10
	llmTimeout       = 5 * time.Second
	llmTemperature   = 0.1
	llmMaxTokens     = 600
)

// LLMExtractor asks a model to pull structured facts out of a user
// message. Responses that fail to parse or arrive late are treated as
// errors; the caller falls back to heuristics.
type LLMExtractor struct {
	provider provider.Provider
	model    string
}

// NewLLMExtractor builds an extractor over the given provider and model.
func NewLLMExtractor(p provider.Provider, model string) *LLMExtractor {
	return &LLMExtractor{provider: p, model: model}
}

// llmFact is a single fact in the model's JSON response.
type llmFact struct {
	Category   string  `json:"category"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type llmResponse struct {
	Facts []llmFact `json:"facts"`
}

const extractionSystemPrompt = `You extract durable facts from a user message in a business conversation.
Respond with a single JSON object only, no prose:
{"facts": [{"category": "...", "key": "...", "value": "...", "confidence": 0.0}]}
Categories: identity, project, requirements, constraints, preferences, technical, business, timeline, other.
Keys are short snake_case identifiers. Confidence is 0.0 to 1.0.
Only include facts stated or strongly implied by the message. At most 10 facts.`

// Extract returns facts with confidence at or above the acceptance
// threshold, capped at the per-call maximum.
func (e *LLMExtractor) Extract(ctx context.Context, userMessage string, existing map[string]map[string]string) ([]Fact, error) {
	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := e.provider.Chat(ctx, provider.ChatRequest{
		Model: e.model,
		Messages: []provider.Message{
			{Role: provider.RoleSystem, Content: extractionSystemPrompt},
			{Role: provider.RoleUser, Content: buildExtractionPrompt(userMessage, existing)},
		},
		Temperature:    llmTemperature,
		MaxTokens:      llmMaxTokens,
		ResponseFormat: &provider.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("facts extraction chat: %w", err)
	}

	parsed, err := parseExtractionResponse(resp.Content)
	if err != nil {
		return nil, err
	}

	out := make([]Fact, 0, len(parsed.Facts))
	for _, f := range parsed.Facts {
		if f.Confidence < llmMinConfidence {
			continue
		}
		cat := strings.TrimSpace(f.Category)
		if cat == "" {
			cat = CategoryOther
		}
		key := strings.TrimSpace(f.Key)
		value := strings.TrimSpace(f.Value)
		if key == "" || value == "" {
			continue
		}
		out = append(out, Fact{Category: cat, Key: key, Value: value})
		if len(out) == llmMaxFacts {
			break
		}
	}
	return out, nil
}

// buildExtractionPrompt includes existing facts so the model can update
// rather than duplicate them.
func buildExtractionPrompt(userMessage string, existing map[string]map[string]string) string {
	var b strings.Builder
	b.WriteString("Message:\n")
	b.WriteString(userMessage)
	if len(existing) > 0 {
		b.WriteString("\n\nKnown facts:\n")
		cats := make([]string, 0, len(existing))
		for c := range existing {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			keys := make([]string, 0, len(existing[c]))
			for k := range existing[c] {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(&b, "- %s.%s: %s\n", c, k, existing[c][k])
			}
		}
	}
	return b.String()
}

// parseExtractionResponse recovers the JSON object from model output that
// may carry stray text around it.
func parseExtractionResponse(content string) (*llmResponse, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in extraction response")
	}
	var resp llmResponse
	if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("parse extraction response: %w", err)
	}
	return &resp, nil
}
