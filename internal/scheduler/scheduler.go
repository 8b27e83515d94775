// Package scheduler runs background maintenance jobs: periodic session
// autosave and cleanup of sessions that have gone stale.
package scheduler

import (
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"loom/internal/config"
	"loom/internal/runner"
	"loom/internal/storage"
	"loom/pkg/logger"
)

// Scheduler owns the cron instance and its registered jobs.
type Scheduler struct {
	cron    *cron.Cron
	manager *runner.Manager
	db      *storage.DB
	cfg     config.SchedulerConfig

	mu      sync.Mutex
	running bool

	// Guards against overlapping runs of the same job.
	executing sync.Map
}

// New creates a scheduler over the session manager and storage.
func New(manager *runner.Manager, db *storage.DB, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		manager: manager,
		db:      db,
		cfg:     cfg,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler: already running")
	}

	if _, err := s.cron.AddFunc(s.cfg.AutosaveSpec, func() {
		s.runExclusive("autosave", s.autosave)
	}); err != nil {
		return err
	}
	if s.db != nil {
		if _, err := s.cron.AddFunc(s.cfg.JanitorSpec, func() {
			s.runExclusive("janitor", s.janitor)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	logger.Info().
		Str("autosave", s.cfg.AutosaveSpec).
		Str("janitor", s.cfg.JanitorSpec).
		Msg("scheduler started")
	return nil
}

// Stop stops the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	logger.Info().Msg("scheduler stopped")
}

// runExclusive skips the job when its previous run is still going.
func (s *Scheduler) runExclusive(name string, fn func()) {
	if _, loaded := s.executing.LoadOrStore(name, time.Now()); loaded {
		logger.Warn().Str("job", name).Msg("previous run still active, skipping")
		return
	}
	defer s.executing.Delete(name)
	fn()
}

func (s *Scheduler) autosave() {
	if err := s.manager.FlushAll(); err != nil {
		logger.Error().Err(err).Msg("autosave failed")
		return
	}
	logger.Debug().Msg("autosave complete")
}

// janitor deletes sessions whose last update is older than the TTL.
// Sessions with a live engine are never touched.
func (s *Scheduler) janitor() {
	sessions, err := s.db.ListSessions()
	if err != nil {
		logger.Error().Err(err).Msg("janitor list failed")
		return
	}

	loaded := make(map[string]bool)
	for _, id := range s.manager.Loaded() {
		loaded[id] = true
	}

	cutoff := time.Now().Add(-s.cfg.GetStaleBranchTTL())
	removed := 0
	for _, sess := range sessions {
		if loaded[sess.ID] || !sess.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := s.db.DeleteSession(sess.ID); err != nil {
			logger.Warn().Err(err).Str("session", sess.ID).Msg("janitor delete failed")
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info().Int("removed", removed).Msg("stale sessions cleaned up")
	}
}
