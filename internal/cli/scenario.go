package cli

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"loom/internal/conversation"
	"loom/internal/provider"
	"loom/internal/runner"
)

// NewScenarioCmd creates the scenario command.
func NewScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario [name]",
		Short: "Replay a canned transcript through the engine",
		Long: `Run a demonstration scenario against an in-memory engine with a
scripted provider. No network calls are made.

Scenarios:
  compression  long conversation with block eviction
  facts        facts surviving compression
  branching    fork, switch and continue
  recovery     context-window error forcing compression and a retry

Without a name every scenario runs in order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scenarios := []struct {
				name string
				run  func(ctx context.Context) error
			}{
				{"compression", runCompressionScenario},
				{"facts", runFactsScenario},
				{"branching", runBranchingScenario},
				{"recovery", runRecoveryScenario},
			}

			if len(args) == 1 {
				for _, s := range scenarios {
					if s.name == args[0] {
						return s.run(cmd.Context())
					}
				}
				return fmt.Errorf("unknown scenario %q", args[0])
			}

			for _, s := range scenarios {
				fmt.Printf("=== %s ===\n", s.name)
				if err := s.run(cmd.Context()); err != nil {
					return err
				}
				fmt.Println()
			}
			return nil
		},
	}

	return cmd
}

func scenarioConfig() conversation.ContextConfig {
	cfg := conversation.DefaultConfig()
	cfg.Strategy = conversation.StrategyStickyFacts
	cfg.KeepLastN = 2
	cfg.CompressionBlockSize = 2
	cfg.MaxSummaryBlocks = 2
	cfg.Model = "gpt-4o-mini"
	return cfg
}

func scenarioEngine(cfg conversation.ContextConfig, p provider.Provider) *runner.SessionEngine {
	engine := runner.NewSessionEngine(runner.Options{
		SessionID: "scenario",
		Provider:  p,
		Config:    cfg,
	})
	engine.Subscribe(func(ev runner.Event) {
		fmt.Printf("  [event] %s: %s\n", ev.Kind, ev.Detail)
	})
	return engine
}

func scriptedOK() *provider.ScriptedProvider {
	return provider.NewScriptedProvider("scripted", []provider.ChatResponse{
		{Content: "Understood.", Usage: &provider.Usage{PromptTokens: 40, CompletionTokens: 10, TotalTokens: 50}},
	}, nil)
}

func runCompressionScenario(ctx context.Context) error {
	cfg := scenarioConfig()
	cfg.EnableFactsExtraction = false
	engine := scenarioEngine(cfg, scriptedOK())

	for i := 1; i <= 10; i++ {
		if _, err := engine.Send(ctx, fmt.Sprintf("Tell me more, part %d.", i)); err != nil {
			return err
		}
	}

	fmt.Printf("  history: %d messages, blocks: %d (cap %d)\n",
		len(engine.History()), len(engine.SummaryBlocks()), cfg.MaxSummaryBlocks)
	return nil
}

func runFactsScenario(ctx context.Context) error {
	engine := scenarioEngine(scenarioConfig(), scriptedOK())

	turns := []string{
		"My name is Anna and I live in Lisbon.",
		"I want to plan a cycling trip.",
		"The trip should take two weeks.",
		"Budget is around 2000 euros.",
		"What route do you suggest?",
	}
	for _, msg := range turns {
		if _, err := engine.Send(ctx, msg); err != nil {
			return err
		}
	}

	fmt.Printf("  history shrank to %d messages, facts survive:\n", len(engine.History()))
	printFacts(engine.Facts())
	return nil
}

func runBranchingScenario(ctx context.Context) error {
	cfg := scenarioConfig()
	cfg.Strategy = conversation.StrategyBranching
	engine := scenarioEngine(cfg, scriptedOK())

	for i := 1; i <= 3; i++ {
		if _, err := engine.Send(ctx, fmt.Sprintf("Message %d on main.", i)); err != nil {
			return err
		}
	}

	name, err := engine.Fork("main", 2)
	if err != nil {
		return err
	}
	if _, err := engine.Send(ctx, "Continuing on the fork."); err != nil {
		return err
	}

	fmt.Printf("  active branch %s with %d messages; branches: %v\n",
		name, len(engine.History()), engine.Branches())
	return nil
}

func runRecoveryScenario(ctx context.Context) error {
	p := &scenarioProvider{inner: scriptedOK(), summariesFail: true}
	cfg := scenarioConfig()
	cfg.EnableFactsExtraction = false
	engine := scenarioEngine(cfg, p)

	// Summaries fail at first, so history keeps growing.
	for i := 1; i <= 4; i++ {
		if _, err := engine.Send(ctx, fmt.Sprintf("Long message %d.", i)); err != nil {
			return err
		}
	}

	p.setSummariesFail(false)
	p.setChatFailNext(true)

	result, err := engine.Send(ctx, "One more, over the window.")
	if err != nil {
		return err
	}
	fmt.Printf("  retried=%v, reply=%q, history=%d\n",
		result.Retried, result.Reply.Content, len(engine.History()))
	return nil
}

// scenarioProvider wraps a scripted provider with switchable failures:
// summary calls can be refused, and one chat call can fail with a
// context-window error.
type scenarioProvider struct {
	inner provider.Provider

	mu            sync.Mutex
	summariesFail bool
	chatFailNext  bool
}

func (p *scenarioProvider) Name() string     { return p.inner.Name() }
func (p *scenarioProvider) Models() []string { return p.inner.Models() }

func (p *scenarioProvider) setSummariesFail(v bool) {
	p.mu.Lock()
	p.summariesFail = v
	p.mu.Unlock()
}

func (p *scenarioProvider) setChatFailNext(v bool) {
	p.mu.Lock()
	p.chatFailNext = v
	p.mu.Unlock()
}

func (p *scenarioProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	summary := len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, "short summaries")

	p.mu.Lock()
	if summary && p.summariesFail {
		p.mu.Unlock()
		return nil, provider.NewProviderError(provider.ErrCodeServiceUnavailable, "summary backend offline", "scenario", false)
	}
	if !summary && p.chatFailNext {
		p.chatFailNext = false
		p.mu.Unlock()
		return nil, provider.NewProviderError(provider.ErrCodeContextWindowExceeded, "maximum context length exceeded", "scenario", false)
	}
	p.mu.Unlock()

	return p.inner.Chat(ctx, req)
}
