// Package context composes the prompt sent to the provider: system
// prompt, agent primer, pinned facts, summary blocks and the recent
// message window.
package context

import (
	"fmt"
	"sort"
	"strings"

	"loom/internal/compaction"
	"loom/internal/conversation"
	"loom/internal/provider"
)

// Section markers in the rendered system prompt.
const (
	factsHeader    = "[FACTS]"
	factsFooter    = "[END FACTS]"
	summaryHeader  = "[PRIOR CONVERSATION CONTEXT]"
	summaryFooter  = "[END CONTEXT]"
	blockLineShape = "[Block %d]: %s\n"
)

// ComposedContext is an immutable snapshot of everything that goes into
// one provider call.
type ComposedContext struct {
	SystemPrompt    string
	AgentPrimer     string
	Facts           map[string]map[string]string
	SummaryBlocks   []conversation.SummaryBlock
	RecentMessages  []conversation.Message
	UserMessage     string
	EstimatedTokens int
}

// Composer assembles composed contexts from branch state.
type Composer struct {
	estimator *compaction.TokenEstimator
}

// NewComposer creates a composer.
func NewComposer() *Composer {
	return &Composer{estimator: compaction.NewTokenEstimator()}
}

// Compose builds the context for a provider call from the branch state,
// its summary blocks and the not-yet-committed user message of the
// current turn. The recent window is the last KeepLastN messages; facts
// are pinned only when extraction is enabled and the strategy carries a
// facts memory (sticky facts or branching).
func (c *Composer) Compose(cfg conversation.ContextConfig, state *conversation.BranchState, blocks []conversation.SummaryBlock, userMessage string) ComposedContext {
	recent := state.Messages
	if cfg.KeepLastN > 0 && len(recent) > cfg.KeepLastN {
		recent = recent[len(recent)-cfg.KeepLastN:]
	}
	recent = append([]conversation.Message(nil), recent...)

	var factsSnap map[string]map[string]string
	if cfg.EnableFactsExtraction && strategyPinsFacts(cfg.Strategy) && state.Facts != nil && state.Facts.Len() > 0 {
		factsSnap = state.Facts.Snapshot()
	}

	ctx := ComposedContext{
		SystemPrompt:   cfg.SystemPrompt,
		AgentPrimer:    cfg.AgentPrimer,
		Facts:          factsSnap,
		SummaryBlocks:  blocks,
		RecentMessages: recent,
		UserMessage:    userMessage,
	}
	ctx.EstimatedTokens = c.estimate(ctx)
	return ctx
}

func strategyPinsFacts(s conversation.Strategy) bool {
	return s == conversation.StrategyStickyFacts || s == conversation.StrategyBranching
}

// estimate sums the char/4 estimates of every part; summary blocks
// contribute their stored estimates.
func (c *Composer) estimate(ctx ComposedContext) int {
	total := c.estimator.EstimateText(ctx.SystemPrompt)
	total += c.estimator.EstimateText(ctx.AgentPrimer)
	total += c.estimator.EstimateText(ctx.FactsText())
	for _, b := range ctx.SummaryBlocks {
		total += b.EstimatedTokens
	}
	for _, m := range ctx.RecentMessages {
		total += c.estimator.EstimateText(m.Content)
	}
	total += c.estimator.EstimateText(ctx.UserMessage)
	return total
}

// FitsInLimit reports whether the context fits the model's window.
func (c *Composer) FitsInLimit(ctx ComposedContext, model string) bool {
	return ctx.EstimatedTokens < provider.ContextLimit(model)
}

// FactsText renders the facts section with categories and keys sorted.
func (ctx ComposedContext) FactsText() string {
	if len(ctx.Facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(factsHeader + "\n")

	cats := make([]string, 0, len(ctx.Facts))
	for c := range ctx.Facts {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	for _, cat := range cats {
		group := ctx.Facts[cat]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "[%s]\n", cat)
		keys := make([]string, 0, len(group))
		for k := range group {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, group[k])
		}
	}
	b.WriteString(factsFooter + "\n")
	return b.String()
}

// SummaryText renders the summary section with blocks in order.
func (ctx ComposedContext) SummaryText() string {
	if len(ctx.SummaryBlocks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(summaryHeader + "\n")
	for i, block := range ctx.SummaryBlocks {
		fmt.Fprintf(&b, blockLineShape, i+1, block.Content)
	}
	b.WriteString(summaryFooter + "\n")
	return b.String()
}

// RenderedSystemPrompt joins the system prompt, agent primer, facts and
// summary sections with blank lines, skipping empty parts.
func (ctx ComposedContext) RenderedSystemPrompt() string {
	var b strings.Builder
	b.WriteString(ctx.SystemPrompt)
	for _, part := range []string{ctx.AgentPrimer, ctx.FactsText(), ctx.SummaryText()} {
		if strings.TrimSpace(part) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(part)
	}
	return b.String()
}

// ProviderMessages converts the composed context into the message list
// for a chat request, the pending user message last.
func (ctx ComposedContext) ProviderMessages() []provider.Message {
	msgs := make([]provider.Message, 0, len(ctx.RecentMessages)+2)
	if rendered := ctx.RenderedSystemPrompt(); strings.TrimSpace(rendered) != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleSystem, Content: rendered})
	}
	for _, m := range ctx.RecentMessages {
		role := string(m.Role)
		if m.Role == conversation.RoleError {
			continue
		}
		msgs = append(msgs, provider.Message{Role: role, Content: m.Content})
	}
	if ctx.UserMessage != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: ctx.UserMessage})
	}
	return msgs
}
