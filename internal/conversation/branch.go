package conversation

import (
	"strings"
	"time"

	"loom/internal/facts"
)

// MainBranch is the branch every session starts on.
const MainBranch = "main"

// branchKeySep joins session id and branch name into a branch key.
const branchKeySep = "::"

// BranchKey builds the storage key for a session branch.
func BranchKey(sessionID, branch string) string {
	return sessionID + branchKeySep + branch
}

// SplitBranchKey breaks a branch key back into session id and branch name.
// The second return is false when the key has no separator.
func SplitBranchKey(key string) (sessionID, branch string, ok bool) {
	i := strings.Index(key, branchKeySep)
	if i < 0 {
		return "", "", false
	}
	return key[:i], key[i+len(branchKeySep):], true
}

// BranchState is the mutable per-branch conversation state.
type BranchState struct {
	Key       string        `json:"key"`
	SessionID string        `json:"session_id"`
	Branch    string        `json:"branch"`
	Messages  []Message     `json:"messages"`
	Facts     *facts.Groups `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// HistorySize returns the number of messages on the branch.
func (b *BranchState) HistorySize() int {
	return len(b.Messages)
}
