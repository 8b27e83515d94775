package facts

import (
	"context"
	"errors"
	"testing"

	"loom/internal/provider"
)

func TestLLMExtractorParsesAndFilters(t *testing.T) {
	p := provider.NewScriptedProvider("scripted", []provider.ChatResponse{
		{Content: `Here you go: {"facts": [
			{"category": "identity", "key": "user_name", "value": "Anna", "confidence": 0.95},
			{"category": "constraints", "key": "team_size", "value": "120", "confidence": 0.8},
			{"category": "other", "key": "maybe", "value": "guess", "confidence": 0.3},
			{"category": "", "key": "goal", "value": "crm", "confidence": 0.9},
			{"category": "project", "key": "", "value": "missing key", "confidence": 0.9}
		]}`},
	}, nil)

	e := NewLLMExtractor(p, "gpt-4o-mini")
	got, err := e.Extract(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("got %d facts, want 3 (low confidence and blank key dropped)", len(got))
	}
	if got[0].Key != "user_name" || got[0].Value != "Anna" {
		t.Errorf("first fact = %+v", got[0])
	}
	if got[2].Category != CategoryOther {
		t.Errorf("blank category not defaulted to other: %+v", got[2])
	}
}

func TestLLMExtractorBadJSON(t *testing.T) {
	p := provider.NewScriptedProvider("scripted", []provider.ChatResponse{
		{Content: "sorry, I cannot do that"},
	}, nil)

	e := NewLLMExtractor(p, "gpt-4o-mini")
	if _, err := e.Extract(context.Background(), "hello", nil); err == nil {
		t.Fatal("expected error for non-JSON response")
	}
}

func TestExtractorSilentFallback(t *testing.T) {
	p := provider.NewScriptedProvider("scripted", nil, []error{
		errors.New("connection refused"),
	})
	e := NewExtractor(NewLLMExtractor(p, "gpt-4o-mini"))

	g := NewGroups()
	n := e.Update(context.Background(), "Меня зовут Анна, нужен SSO", g)
	if n == 0 {
		t.Fatal("fallback produced no facts")
	}
	if _, ok := g.Get(CategoryIdentity, "user_name"); !ok {
		t.Error("heuristic fallback did not extract user_name")
	}
	if _, ok := g.Get(CategoryRequirements, "sso"); !ok {
		t.Error("heuristic fallback did not extract sso")
	}
}

func TestExtractorEmptyLLMResultKeepsGroups(t *testing.T) {
	p := provider.NewScriptedProvider("scripted", []provider.ChatResponse{
		{Content: `{"facts": []}`},
	}, nil)
	e := NewExtractor(NewLLMExtractor(p, "gpt-4o-mini"))

	g := NewGroups()
	g.Put(CategoryIdentity, "user_name", "Anna")

	if n := e.Update(context.Background(), "ok thanks", g); n != 0 {
		t.Errorf("empty LLM result wrote %d facts", n)
	}
	if g.Len() != 1 {
		t.Errorf("existing facts disturbed, Len() = %d", g.Len())
	}
}

func TestExtractorHeuristicOnly(t *testing.T) {
	e := NewExtractor(nil)
	g := NewGroups()
	e.Update(context.Background(), "my name is Kate", g)
	if v, _ := g.Get(CategoryIdentity, "user_name"); v != "Kate" {
		t.Errorf("user_name = %q, want Kate", v)
	}
}
