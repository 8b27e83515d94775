package provider

import "fmt"

// DefaultContextLimit is assumed for models missing from the table.
const DefaultContextLimit = 128000

// contextLimits maps model names to their context window in tokens.
var contextLimits = map[string]int{
	"gpt-5.2":                   400000,
	"gpt-5":                     400000,
	"gpt-5-pro":                 400000,
	"gpt-5.1":                   400000,
	"gpt-4":                     1048576,
	"gpt-4-turbo":               128000,
	"gpt-4o":                    128000,
	"gpt-4o-mini":               128000,
	"claude-3-5-sonnet":         200000,
	"claude-sonnet-4":           200000,
	"gemini-2.5-pro":            1048576,
	"gemini-2.5-flash":          1048576,
	"gemini-2.0-flash":          1048576,
	"gemini-2.0-flash-lite-001": 1048576,
	"gpt-3.5-turbo":             16385,
	"deepseek-chat":             64000,
	"deepseek-reasoner":         64000,
	"llama-3.3-70b":             128000,
	"llama-3-70b-instruct":      8192,
	"llama-4-scout":             128000,
	"grok-4.1-fast":             128000,
	"grok-3":                    128000,
	"o3":                        200000,
	"o3-mini":                   200000,
	"o4-mini":                   200000,
}

// ContextLimit returns the context window size for a model.
func ContextLimit(model string) int {
	if limit, ok := contextLimits[model]; ok {
		return limit
	}
	return DefaultContextLimit
}

// RemainingTokens returns the tokens left before a model's window fills.
func RemainingTokens(currentTokens int, model string) int {
	return ContextLimit(model) - currentTokens
}

// IsApproachingLimit reports whether current usage crossed the given
// fraction of the model's window.
func IsApproachingLimit(currentTokens int, model string, threshold float64) bool {
	limit := ContextLimit(model)
	if limit <= 0 {
		return false
	}
	return float64(currentTokens)/float64(limit) > threshold
}

// ModelPrice holds per-million-token prices in USD.
type ModelPrice struct {
	InputPer1M  float64
	OutputPer1M float64
}

var pricing = map[string]ModelPrice{
	"gpt-5.2":                   {1.75, 14.0},
	"gpt-4.1":                   {2.0, 8.0},
	"gpt-4.1-mini":              {0.4, 1.6},
	"gpt-4o":                    {2.5, 10.0},
	"gpt-4o-mini":               {0.15, 0.6},
	"o3":                        {10.0, 40.0},
	"o3-mini":                   {1.1, 4.4},
	"o4-mini":                   {1.1, 4.4},
	"claude-sonnet-4":           {3.0, 15.0},
	"claude-3-5-sonnet":         {3.0, 15.0},
	"gemini-2.5-pro":            {1.25, 10.0},
	"gemini-2.5-flash":          {0.075, 0.3},
	"gemini-2.0-flash":          {0.1, 0.4},
	"gemini-2.0-flash-lite-001": {0.075, 0.3},
	"deepseek-chat":             {0.14, 0.28},
	"deepseek-reasoner":         {0.55, 2.19},
	"llama-3.3-70b":             {0.6, 0.6},
	"llama-4-scout":             {0.6, 0.6},
	"grok-4.1-fast":             {2.0, 10.0},
	"grok-3":                    {3.0, 15.0},
}

// Price returns the USD pricing entry for a model, if known.
func Price(model string) (ModelPrice, bool) {
	p, ok := pricing[model]
	return p, ok
}

// EstimateCost returns the USD cost of a request, or false when the
// model has no pricing entry.
func EstimateCost(model string, promptTokens, completionTokens int) (float64, bool) {
	p, ok := pricing[model]
	if !ok {
		return 0, false
	}
	in := float64(promptTokens) / 1_000_000 * p.InputPer1M
	out := float64(completionTokens) / 1_000_000 * p.OutputPer1M
	return in + out, true
}

// FormatCost renders a USD cost with precision scaled to its magnitude.
func FormatCost(cost float64) string {
	switch {
	case cost < 0.01:
		return fmt.Sprintf("$%.6f", cost)
	case cost < 1.0:
		return fmt.Sprintf("$%.4f", cost)
	default:
		return fmt.Sprintf("$%.2f", cost)
	}
}
