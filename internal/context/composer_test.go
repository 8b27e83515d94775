package context

import (
	"fmt"
	"strings"
	"testing"

	"loom/internal/conversation"
	"loom/internal/facts"
)

func makeState(n int) *conversation.BranchState {
	msgs := make([]conversation.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, conversation.NewMessage(conversation.RoleUser, fmt.Sprintf("message %d", i)))
	}
	return &conversation.BranchState{
		Key:      conversation.BranchKey("s", conversation.MainBranch),
		Messages: msgs,
		Facts:    facts.NewGroups(),
	}
}

func TestComposeRecentWindow(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig() // keep 10

	tests := []struct {
		name       string
		historyLen int
		wantRecent int
		wantFirst  string
	}{
		{"short history kept whole", 4, 4, "message 0"},
		{"exact window", 10, 10, "message 0"},
		{"window trims front", 25, 10, "message 15"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := c.Compose(cfg, makeState(tt.historyLen), nil, "")
			if len(ctx.RecentMessages) != tt.wantRecent {
				t.Fatalf("recent = %d, want %d", len(ctx.RecentMessages), tt.wantRecent)
			}
			if ctx.RecentMessages[0].Content != tt.wantFirst {
				t.Errorf("first recent = %q, want %q", ctx.RecentMessages[0].Content, tt.wantFirst)
			}
		})
	}
}

func TestFactsTextSorted(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig()
	cfg.Strategy = conversation.StrategyStickyFacts
	cfg.EnableFactsExtraction = true

	state := makeState(1)
	state.Facts.Put(facts.CategoryProject, "goal", "booking system")
	state.Facts.Put(facts.CategoryIdentity, "user_name", "Anna")
	state.Facts.Put(facts.CategoryIdentity, "company", "Acme")

	ctx := c.Compose(cfg, state, nil, "")
	text := ctx.FactsText()

	want := "[FACTS]\n[identity]\ncompany: Acme\nuser_name: Anna\n[project]\ngoal: booking system\n[END FACTS]\n"
	if text != want {
		t.Errorf("FactsText() = %q, want %q", text, want)
	}
}

func TestFactsOmittedWhenDisabled(t *testing.T) {
	c := NewComposer()

	tests := []struct {
		name     string
		strategy conversation.Strategy
		enabled  bool
	}{
		{"extraction disabled", conversation.StrategyStickyFacts, false},
		{"sliding window never pins facts", conversation.StrategySlidingWindow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := conversation.DefaultConfig()
			cfg.Strategy = tt.strategy
			cfg.EnableFactsExtraction = tt.enabled

			state := makeState(1)
			state.Facts.Put(facts.CategoryIdentity, "user_name", "Anna")

			ctx := c.Compose(cfg, state, nil, "")
			if len(ctx.Facts) != 0 {
				t.Errorf("facts populated: %v", ctx.Facts)
			}
			if ctx.FactsText() != "" {
				t.Error("facts rendered")
			}
		})
	}
}

func TestSummaryText(t *testing.T) {
	blocks := []conversation.SummaryBlock{
		{Content: "first span summary", EstimatedTokens: 10},
		{Content: "second span summary", EstimatedTokens: 12},
	}

	ctx := ComposedContext{SummaryBlocks: blocks}
	text := ctx.SummaryText()

	if !strings.HasPrefix(text, "[PRIOR CONVERSATION CONTEXT]\n") {
		t.Errorf("missing header: %q", text)
	}
	if !strings.Contains(text, "[Block 1]: first span summary\n") ||
		!strings.Contains(text, "[Block 2]: second span summary\n") {
		t.Errorf("blocks not numbered in order: %q", text)
	}
	if !strings.HasSuffix(text, "[END CONTEXT]\n") {
		t.Errorf("missing footer: %q", text)
	}
}

func TestRenderedSystemPromptSections(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig()
	cfg.Strategy = conversation.StrategyStickyFacts
	cfg.SystemPrompt = "You are a helpful assistant."
	cfg.AgentPrimer = "[AGENT MODE]\nResearch, reason, execute.\n[END AGENT MODE]"

	state := makeState(2)
	state.Facts.Put(facts.CategoryIdentity, "user_name", "Anna")

	blocks := []conversation.SummaryBlock{{Content: "earlier discussion", EstimatedTokens: 5}}
	ctx := c.Compose(cfg, state, blocks, "")

	rendered := ctx.RenderedSystemPrompt()
	parts := []string{
		"You are a helpful assistant.",
		"[AGENT MODE]",
		"[FACTS]",
		"[PRIOR CONVERSATION CONTEXT]",
	}
	last := -1
	for _, p := range parts {
		i := strings.Index(rendered, p)
		if i < 0 {
			t.Fatalf("rendered prompt missing %q:\n%s", p, rendered)
		}
		if i < last {
			t.Errorf("section %q out of order", p)
		}
		last = i
	}
	if !strings.Contains(rendered, "\n\n[AGENT MODE]") {
		t.Error("sections not separated by blank lines")
	}
}

func TestRenderedSystemPromptSkipsEmptyParts(t *testing.T) {
	ctx := ComposedContext{SystemPrompt: "base"}
	if got := ctx.RenderedSystemPrompt(); got != "base" {
		t.Errorf("RenderedSystemPrompt() = %q, want %q", got, "base")
	}
}

func TestEstimatedTokens(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig()
	cfg.SystemPrompt = strings.Repeat("s", 40) // 10 tokens

	state := makeState(0)
	state.Messages = []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, strings.Repeat("u", 80)), // 20 tokens
	}

	blocks := []conversation.SummaryBlock{{Content: "irrelevant length", EstimatedTokens: 33}}
	userMessage := strings.Repeat("q", 40) // 10 tokens
	ctx := c.Compose(cfg, state, blocks, userMessage)

	if ctx.EstimatedTokens != 10+20+33+10 {
		t.Errorf("EstimatedTokens = %d, want 73", ctx.EstimatedTokens)
	}
}

func TestFitsInLimit(t *testing.T) {
	c := NewComposer()
	if !c.FitsInLimit(ComposedContext{EstimatedTokens: 16000}, "gpt-3.5-turbo") {
		t.Error("16000 tokens should fit a 16385 token window")
	}
	if c.FitsInLimit(ComposedContext{EstimatedTokens: 17000}, "gpt-3.5-turbo") {
		t.Error("17000 tokens should not fit a 16385 token window")
	}
}

func TestProviderMessages(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig()
	cfg.SystemPrompt = "base prompt"

	state := makeState(0)
	state.Messages = []conversation.Message{
		conversation.NewMessage(conversation.RoleUser, "hello"),
		conversation.NewMessage(conversation.RoleError, "transport failure"),
		conversation.NewMessage(conversation.RoleAssistant, "hi"),
	}

	msgs := c.Compose(cfg, state, nil, "next question").ProviderMessages()
	if len(msgs) != 4 {
		t.Fatalf("got %d provider messages, want 4 (system + user + assistant + pending)", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Content != "hello" || msgs[2].Content != "hi" {
		t.Errorf("provider messages malformed: %+v", msgs)
	}
	last := msgs[len(msgs)-1]
	if last.Role != "user" || last.Content != "next question" {
		t.Errorf("pending user message not last: %+v", last)
	}
}

func TestComposeDeterministic(t *testing.T) {
	c := NewComposer()
	cfg := conversation.DefaultConfig()
	cfg.Strategy = conversation.StrategyStickyFacts
	cfg.SystemPrompt = "base"

	state := makeState(12)
	state.Facts.Put(facts.CategoryIdentity, "user_name", "Anna")
	state.Facts.Put(facts.CategoryBusiness, "sla", "99.9%")
	blocks := []conversation.SummaryBlock{{Content: "summary", EstimatedTokens: 8}}

	first := c.Compose(cfg, state, blocks, "").RenderedSystemPrompt()
	for i := 0; i < 10; i++ {
		if got := c.Compose(cfg, state, blocks, "").RenderedSystemPrompt(); got != first {
			t.Fatalf("render %d differs from first", i)
		}
	}
}
