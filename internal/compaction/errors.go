package compaction

import "errors"

var (
	// ErrNoMessages indicates there are no messages to summarize.
	ErrNoMessages = errors.New("compaction: no messages to summarize")

	// ErrCompressionInProgress indicates another compression already holds
	// the branch.
	ErrCompressionInProgress = errors.New("compaction: compression already in progress")

	// ErrGenerationFailed indicates the summary generation call failed.
	ErrGenerationFailed = errors.New("compaction: summary generation failed")

	// ErrEmptySummary indicates the model returned an empty summary.
	ErrEmptySummary = errors.New("compaction: empty summary returned")

	// ErrShortRemoval indicates fewer messages were removed from history
	// than the summarized block covers.
	ErrShortRemoval = errors.New("compaction: fewer messages removed than summarized")
)
