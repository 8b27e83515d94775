package conversation

import (
	"time"

	"github.com/google/uuid"
)

// BlockStatus is the lifecycle state of a summary block.
type BlockStatus string

const (
	// BlockPending marks a block whose summary is still being generated.
	BlockPending BlockStatus = "pending"
	// BlockCompleted marks a block with a committed summary.
	BlockCompleted BlockStatus = "completed"
	// BlockFailed marks a block whose summary generation failed.
	BlockFailed BlockStatus = "failed"
)

// SummaryBlock is a compressed span of older history on one branch. The
// covered messages are retained on the block for audit and rollback.
type SummaryBlock struct {
	ID               string      `json:"id"`
	BranchKey        string      `json:"branch_key"`
	Seq              int         `json:"seq"`
	Content          string      `json:"content"`
	Status           BlockStatus `json:"status"`
	MessageCount     int         `json:"message_count"`
	EstimatedTokens  int         `json:"estimated_tokens"`
	OriginalMessages []Message   `json:"original_messages,omitempty"`
	CoveredFrom      time.Time   `json:"covered_from"`
	CoveredTo        time.Time   `json:"covered_to"`
	CreatedAt        time.Time   `json:"created_at"`
}

// NewSummaryBlock builds a completed block over the given messages.
func NewSummaryBlock(branchKey, content string, estimatedTokens int, covered []Message) SummaryBlock {
	b := SummaryBlock{
		ID:               uuid.New().String(),
		BranchKey:        branchKey,
		Content:          content,
		Status:           BlockCompleted,
		MessageCount:     len(covered),
		EstimatedTokens:  estimatedTokens,
		OriginalMessages: append([]Message(nil), covered...),
		CreatedAt:        time.Now(),
	}
	if len(covered) > 0 {
		b.CoveredFrom = covered[0].Timestamp
		b.CoveredTo = covered[len(covered)-1].Timestamp
	}
	return b
}
