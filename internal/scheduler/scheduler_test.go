package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom/internal/config"
	"loom/internal/conversation"
	"loom/internal/provider"
	"loom/internal/runner"
	"loom/internal/storage"
)

func testScheduler(t *testing.T) (*Scheduler, *runner.Manager, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "loom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	p := provider.NewScriptedProvider("scripted", nil, nil)
	m := runner.NewManager(p, conversation.DefaultConfig(), db)
	s := New(m, db, config.SchedulerConfig{
		Enabled:        true,
		AutosaveSpec:   "@every 1h",
		JanitorSpec:    "@every 1h",
		StaleBranchTTL: "1h",
	})
	return s, m, db
}

func TestStartTwiceFails(t *testing.T) {
	s, _, _ := testScheduler(t)
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Error(t, s.Start())
}

func TestStartRejectsBadSpec(t *testing.T) {
	_, m, db := testScheduler(t)
	bad := New(m, db, config.SchedulerConfig{AutosaveSpec: "not a spec"})
	assert.Error(t, bad.Start())
}

func TestAutosavePersistsLoadedSessions(t *testing.T) {
	s, m, db := testScheduler(t)

	e, err := m.Get("s1")
	require.NoError(t, err)
	_, err = e.Send(context.Background(), "hello there")
	require.NoError(t, err)

	s.autosave()

	// Eventually is unnecessary here: autosave is synchronous.
	state, err := db.LoadBranch("s1", conversation.MainBranch)
	require.NoError(t, err)
	assert.Equal(t, "hello there", state.Messages[0].Content)
}

func TestJanitorRemovesStaleSessions(t *testing.T) {
	s, m, db := testScheduler(t)

	_, err := db.CreateSession("stale", "", nil)
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Add(-48*time.Hour), "stale")
	require.NoError(t, err)

	// A live session, however old its row, is never touched.
	_, err = m.Get("live")
	require.NoError(t, err)
	_, err = db.Exec(`UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().Add(-48*time.Hour), "live")
	require.NoError(t, err)

	s.janitor()

	_, err = db.GetSession("stale")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.GetSession("live")
	assert.NoError(t, err)
}

func TestRunExclusiveSkipsOverlap(t *testing.T) {
	s, _, _ := testScheduler(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go s.runExclusive("job", func() {
		close(started)
		<-release
	})
	<-started

	ran := false
	s.runExclusive("job", func() { ran = true })
	assert.False(t, ran)

	close(release)
}
