package facts

import (
	"context"

	"loom/pkg/logger"
)

// Extractor runs the heuristic extractor and, when configured, the LLM
// extractor. LLM failures are logged and absorbed; the heuristic result
// is used instead, so extraction never fails from the caller's view.
type Extractor struct {
	heuristic *HeuristicExtractor
	llm       *LLMExtractor
}

// NewExtractor builds an extractor. llm may be nil to run heuristics only.
func NewExtractor(llm *LLMExtractor) *Extractor {
	return &Extractor{heuristic: NewHeuristicExtractor(), llm: llm}
}

// Heuristic exposes the deterministic extractor, used when replaying
// history during a branch fork.
func (e *Extractor) Heuristic() *HeuristicExtractor {
	return e.heuristic
}

// Update extracts facts from a user message into groups. It returns how
// many facts were written.
func (e *Extractor) Update(ctx context.Context, userMessage string, groups *Groups) int {
	if e.llm == nil {
		return e.heuristic.Apply(userMessage, groups)
	}

	extracted, err := e.llm.Extract(ctx, userMessage, groups.Snapshot())
	if err != nil {
		logger.Warn().Err(err).Msg("LLM facts extraction failed, using heuristics fallback")
		return e.heuristic.Apply(userMessage, groups)
	}
	if len(extracted) == 0 {
		return 0
	}
	groups.PutAll(extracted)
	return len(extracted)
}
