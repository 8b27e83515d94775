package compaction

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"loom/internal/conversation"
	"loom/internal/provider"
)

func makeHistory(n int) []conversation.Message {
	msgs := make([]conversation.Message, 0, n)
	for i := 0; i < n; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		msgs = append(msgs, conversation.NewMessage(role, fmt.Sprintf("message %d", i)))
	}
	return msgs
}

func newTestEngine(responses []provider.ChatResponse, errs []error) *Engine {
	p := provider.NewScriptedProvider("scripted", responses, errs)
	return NewEngine(NewSummaryStore(), NewSummaryGenerator(p, "gpt-4o-mini"))
}

func TestEngineNotNeededBelowBoundary(t *testing.T) {
	e := newTestEngine(nil, nil)
	cfg := conversation.DefaultConfig() // keep 10, block 5

	res := e.Run(context.Background(), "k", cfg, makeHistory(14))
	if res.Kind() != ResultNotNeeded {
		t.Fatalf("kind = %v, want not_needed", res.Kind())
	}
	if e.Store().Count("k") != 0 {
		t.Error("block created below boundary")
	}
}

func TestEngineCompressesAtBoundary(t *testing.T) {
	e := newTestEngine([]provider.ChatResponse{
		{Content: "They discussed the project scope.", Usage: &provider.Usage{TotalTokens: 42}},
	}, nil)
	cfg := conversation.DefaultConfig()

	res := e.Run(context.Background(), "k", cfg, makeHistory(15))
	if res.Kind() != ResultSuccess {
		t.Fatalf("kind = %v, want success (err=%v)", res.Kind(), res.Err)
	}
	if res.Block == nil {
		t.Fatal("success result has no block")
	}
	if res.Block.MessageCount != cfg.CompressionBlockSize {
		t.Errorf("block covers %d messages, want %d", res.Block.MessageCount, cfg.CompressionBlockSize)
	}
	if res.Block.EstimatedTokens != 42 {
		t.Errorf("estimated tokens = %d, want usage-reported 42", res.Block.EstimatedTokens)
	}
	if res.Block.Status != conversation.BlockCompleted {
		t.Errorf("status = %q, want completed", res.Block.Status)
	}
	if len(res.Block.OriginalMessages) != cfg.CompressionBlockSize {
		t.Errorf("block retains %d originals, want %d", len(res.Block.OriginalMessages), cfg.CompressionBlockSize)
	}
	if res.Block.OriginalMessages[0].Content != "message 0" {
		t.Errorf("first retained message = %q, want the oldest", res.Block.OriginalMessages[0].Content)
	}
	if e.Store().Count("k") != 1 {
		t.Errorf("store count = %d, want 1", e.Store().Count("k"))
	}
}

func TestEngineFailureReturnsMessagesToRecover(t *testing.T) {
	e := newTestEngine(nil, []error{errors.New("connection reset")})
	cfg := conversation.DefaultConfig()
	history := makeHistory(20)

	res := e.Run(context.Background(), "k", cfg, history)
	if res.Kind() != ResultFailed {
		t.Fatalf("kind = %v, want failed", res.Kind())
	}
	if !errors.Is(res.Err, ErrGenerationFailed) {
		t.Errorf("err = %v, want ErrGenerationFailed", res.Err)
	}
	if len(res.MessagesToRecover) != cfg.CompressionBlockSize {
		t.Errorf("recover %d messages, want %d", len(res.MessagesToRecover), cfg.CompressionBlockSize)
	}
	if res.MessagesToRecover[0].Content != history[0].Content {
		t.Error("recovered messages are not the oldest span")
	}
	if e.Store().Count("k") != 0 {
		t.Error("failed compression committed a block")
	}
	if e.State("k") != StateIdle {
		t.Error("branch not released after failure")
	}
}

func TestEngineFIFOEvictionAtCap(t *testing.T) {
	e := newTestEngine([]provider.ChatResponse{{Content: "summary"}}, nil)
	cfg := conversation.DefaultConfig()
	cfg.MaxSummaryBlocks = 2

	var lastRes Result
	for i := 0; i < 4; i++ {
		lastRes = e.Run(context.Background(), "k", cfg, makeHistory(20))
		if !lastRes.Succeeded() {
			t.Fatalf("run %d failed: %v", i, lastRes.Err)
		}
	}

	if e.Store().Count("k") != 2 {
		t.Errorf("store count = %d, want cap 2", e.Store().Count("k"))
	}
	if len(lastRes.Evicted) != 1 {
		t.Errorf("last run evicted %d blocks, want 1", len(lastRes.Evicted))
	}
}

func TestEngineTryAcquireExclusive(t *testing.T) {
	e := newTestEngine(nil, nil)

	if !e.TryAcquire("k") {
		t.Fatal("first acquire failed")
	}
	if e.TryAcquire("k") {
		t.Fatal("second acquire succeeded while held")
	}
	if e.State("k") != StateCompressing {
		t.Error("state not compressing while held")
	}
	if !e.TryAcquire("other") {
		t.Error("unrelated branch blocked")
	}

	e.Release("k")
	if !e.TryAcquire("k") {
		t.Error("acquire failed after release")
	}
}

func TestEngineConcurrentAcquireSingleWinner(t *testing.T) {
	e := newTestEngine(nil, nil)

	const goroutines = 32
	var wg sync.WaitGroup
	var winners int32
	var mu sync.Mutex

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e.TryAcquire("k") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("%d goroutines acquired the branch, want exactly 1", winners)
	}
}

func TestEngineRunWhileHeld(t *testing.T) {
	e := newTestEngine([]provider.ChatResponse{{Content: "summary"}}, nil)
	cfg := conversation.DefaultConfig()

	if !e.TryAcquire("k") {
		t.Fatal("acquire failed")
	}
	defer e.Release("k")

	res := e.Run(context.Background(), "k", cfg, makeHistory(20))
	if res.Kind() != ResultNotNeeded {
		t.Fatalf("kind = %v, want not_needed while held", res.Kind())
	}
	if res.Reason == "" {
		t.Error("in-progress result has no reason")
	}
}

func TestResultWithShortRemoval(t *testing.T) {
	block := conversation.NewSummaryBlock("k", "s", 1, nil)
	res := successResult(&block, nil)

	partial := res.WithShortRemoval("removed 3 of 5")
	if partial.Kind() != ResultPartial {
		t.Errorf("kind = %v, want partial", partial.Kind())
	}
	if partial.Warning == "" {
		t.Error("partial result has no warning")
	}

	failed := failedResult(errors.New("x"), nil)
	if failed.WithShortRemoval("w").Kind() != ResultFailed {
		t.Error("WithShortRemoval changed a non-success result")
	}
}

func TestEmptySummaryFails(t *testing.T) {
	e := newTestEngine([]provider.ChatResponse{{Content: "   "}}, nil)
	res := e.Run(context.Background(), "k", conversation.DefaultConfig(), makeHistory(20))
	if res.Kind() != ResultFailed {
		t.Fatalf("kind = %v, want failed", res.Kind())
	}
	if !errors.Is(res.Err, ErrEmptySummary) {
		t.Errorf("err = %v, want ErrEmptySummary", res.Err)
	}
}
