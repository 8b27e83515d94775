package compaction

import "loom/internal/conversation"

// ResultKind discriminates compression outcomes.
type ResultKind int

const (
	// ResultNotNeeded means no compression was required or possible.
	ResultNotNeeded ResultKind = iota
	// ResultSuccess means a block was generated and committed.
	ResultSuccess
	// ResultPartial means a block was committed but history removal fell
	// short of the block's coverage.
	ResultPartial
	// ResultFailed means summary generation failed; the covered messages
	// are returned for recovery.
	ResultFailed
)

// String names the result kind.
func (k ResultKind) String() string {
	switch k {
	case ResultNotNeeded:
		return "not_needed"
	case ResultSuccess:
		return "success"
	case ResultPartial:
		return "partial"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one compression attempt. Exactly the
// fields relevant to its kind are populated.
type Result struct {
	kind ResultKind

	// Block is set for Success and Partial.
	Block *conversation.SummaryBlock
	// Evicted lists blocks dropped to honor the block cap.
	Evicted []conversation.SummaryBlock
	// Warning is set for Partial.
	Warning string
	// Err is set for Failed.
	Err error
	// MessagesToRecover is set for Failed: the messages that were taken
	// for summarization and must stay in history.
	MessagesToRecover []conversation.Message
	// Reason is set for NotNeeded.
	Reason string
}

// Kind returns the result discriminant.
func (r Result) Kind() ResultKind { return r.kind }

// Succeeded reports whether a block was committed (fully or partially).
func (r Result) Succeeded() bool {
	return r.kind == ResultSuccess || r.kind == ResultPartial
}

// WithShortRemoval downgrades a Success result to Partial after history
// removal fell short of the block's coverage.
func (r Result) WithShortRemoval(warning string) Result {
	if r.kind == ResultSuccess {
		r.kind = ResultPartial
		r.Warning = warning
	}
	return r
}

func successResult(block *conversation.SummaryBlock, evicted []conversation.SummaryBlock) Result {
	return Result{kind: ResultSuccess, Block: block, Evicted: evicted}
}

func failedResult(err error, toRecover []conversation.Message) Result {
	return Result{kind: ResultFailed, Err: err, MessagesToRecover: toRecover}
}

func notNeededResult(reason string) Result {
	return Result{kind: ResultNotNeeded, Reason: reason}
}
