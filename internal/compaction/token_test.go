package compaction

import (
	"testing"

	"loom/internal/conversation"
)

func TestEstimateText(t *testing.T) {
	e := NewTokenEstimator()

	tests := []struct {
		name     string
		text     string
		expected int
	}{
		{"empty text", "", 0},
		{"short word", "hey", 0},
		{"four chars", "four", 1},
		{"sentence", "Hello, how are you today?", 6},
		{"longer text", "This is a longer piece of text that should map to more tokens.", 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.EstimateText(tt.text)
			if got != tt.expected {
				t.Errorf("EstimateText(%q) = %d, want %d", tt.text, got, tt.expected)
			}
		})
	}
}

func TestEstimateMessages(t *testing.T) {
	e := NewTokenEstimator()

	msgs := []conversation.Message{
		{Role: conversation.RoleUser, Content: "What is the plan for today?"},
		{Role: conversation.RoleAssistant, Content: "We review the quarterly numbers first."},
	}

	total := e.EstimateMessages(msgs)
	sum := e.EstimateMessage(msgs[0]) + e.EstimateMessage(msgs[1])
	if total != sum {
		t.Errorf("EstimateMessages() = %d, want sum of parts %d", total, sum)
	}
	if total == 0 {
		t.Error("EstimateMessages() returned 0 for non-empty messages")
	}

	if e.EstimateMessages(nil) != 0 {
		t.Error("EstimateMessages(nil) should be 0")
	}
}
