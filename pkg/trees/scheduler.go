package trees

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// SnapshotScheduler periodically saves the manager's state to a Store on a
// cron schedule, so a crash loses at most one interval of conversation
// bookkeeping.
type SnapshotScheduler struct {
	manager *Manager
	store   Store
	cron    *cron.Cron
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewSnapshotScheduler builds a scheduler; Start arms it.
func NewSnapshotScheduler(manager *Manager, store Store, logger *slog.Logger) *SnapshotScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotScheduler{
		manager: manager,
		store:   store,
		cron:    cron.New(),
		logger:  logger.With("component", "trees.scheduler"),
	}
}

// Start begins scheduled saving. An empty schedule disables the scheduler.
//
// Common expressions:
//   - "@every 5m"  - every five minutes
//   - "0 * * * *"  - on the hour
func (s *SnapshotScheduler) Start(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if schedule == "" {
		s.logger.Info("snapshot schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return nil
	}

	if _, err := s.cron.AddFunc(schedule, s.saveOnce); err != nil {
		return fmt.Errorf("invalid snapshot schedule %q: %w", schedule, err)
	}
	s.cron.Start()
	s.running = true
	s.logger.Info("snapshot scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the schedule and writes one final snapshot.
func (s *SnapshotScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.saveOnce()
}

func (s *SnapshotScheduler) saveOnce() {
	if err := s.store.Save(s.manager.Snapshot()); err != nil {
		s.logger.Error("snapshot save failed", "error", err)
		return
	}
	s.logger.Debug("conversation snapshot saved")
}
