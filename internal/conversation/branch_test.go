package conversation

import "testing"

func TestBranchKeyRoundTrip(t *testing.T) {
	key := BranchKey("sess-1", "branch-2")
	if key != "sess-1::branch-2" {
		t.Errorf("BranchKey = %q", key)
	}

	sid, branch, ok := SplitBranchKey(key)
	if !ok || sid != "sess-1" || branch != "branch-2" {
		t.Errorf("SplitBranchKey(%q) = %q, %q, %v", key, sid, branch, ok)
	}
}

func TestSplitBranchKeyInvalid(t *testing.T) {
	if _, _, ok := SplitBranchKey("no-separator"); ok {
		t.Error("SplitBranchKey accepted a key without separator")
	}
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "hello")
	if m.ID == "" {
		t.Error("message id not assigned")
	}
	if m.Role != RoleUser || m.Content != "hello" {
		t.Errorf("message = %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}
