package compaction

import (
	"sync"

	"loom/internal/conversation"
)

// SummaryStore holds the ordered summary blocks of each branch. It is the
// in-session source of truth; persistence mirrors it asynchronously.
type SummaryStore struct {
	mu      sync.RWMutex
	blocks  map[string][]conversation.SummaryBlock
	nextSeq map[string]int
}

// NewSummaryStore creates an empty store.
func NewSummaryStore() *SummaryStore {
	return &SummaryStore{
		blocks:  make(map[string][]conversation.SummaryBlock),
		nextSeq: make(map[string]int),
	}
}

// Append adds a block to a branch, assigning its sequence number, and
// evicts oldest blocks while the count exceeds maxBlocks. It returns the
// stored block and the evicted blocks in eviction order.
func (s *SummaryStore) Append(key string, block conversation.SummaryBlock, maxBlocks int) (conversation.SummaryBlock, []conversation.SummaryBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block.BranchKey = key
	block.Seq = s.nextSeq[key]
	s.nextSeq[key]++
	s.blocks[key] = append(s.blocks[key], block)

	var evicted []conversation.SummaryBlock
	if maxBlocks > 0 {
		for len(s.blocks[key]) > maxBlocks {
			evicted = append(evicted, s.blocks[key][0])
			s.blocks[key] = s.blocks[key][1:]
		}
	}
	return block, evicted
}

// Restore inserts an already-sequenced block, used when loading persisted
// state. Sequence counters advance past the restored block.
func (s *SummaryStore) Restore(key string, block conversation.SummaryBlock) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[key] = append(s.blocks[key], block)
	if block.Seq >= s.nextSeq[key] {
		s.nextSeq[key] = block.Seq + 1
	}
}

// Blocks returns a copy of a branch's blocks in order.
func (s *SummaryStore) Blocks(key string) []conversation.SummaryBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]conversation.SummaryBlock(nil), s.blocks[key]...)
}

// Count returns the number of blocks on a branch.
func (s *SummaryStore) Count(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blocks[key])
}

// TotalTokens sums the estimated tokens of a branch's blocks.
func (s *SummaryStore) TotalTokens(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, b := range s.blocks[key] {
		total += b.EstimatedTokens
	}
	return total
}

// EvictOldest removes and returns the oldest block of a branch.
func (s *SummaryStore) EvictOldest(key string) (conversation.SummaryBlock, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := s.blocks[key]
	if len(blocks) == 0 {
		return conversation.SummaryBlock{}, false
	}
	oldest := blocks[0]
	s.blocks[key] = blocks[1:]
	return oldest, true
}

// Clear removes all blocks of a branch but keeps its sequence counter.
func (s *SummaryStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
}

// DropBranch removes every trace of a branch.
func (s *SummaryStore) DropBranch(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	delete(s.nextSeq, key)
}
