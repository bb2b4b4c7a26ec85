package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/torrnarr/internal/controllers"
)

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron                  *cron.Cron
	manager               *controllers.Manager
	snapshotIntervalMin   int
	stalledTimeoutMinutes int
	logger                *logrus.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(manager *controllers.Manager, snapshotIntervalMinutes, stalledTimeoutMinutes int, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		cron:                  cron.New(),
		manager:               manager,
		snapshotIntervalMin:   snapshotIntervalMinutes,
		stalledTimeoutMinutes: stalledTimeoutMinutes,
		logger:                logger,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	s.logger.Info("Starting scheduler")

	// Periodically persist resume snapshots for live downloads so a hard
	// kill costs at most one interval of fast-resume data.
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %dm", s.snapshotIntervalMin), func() {
		s.runSnapshot()
	})
	if err != nil {
		return fmt.Errorf("failed to add snapshot job: %w", err)
	}

	// Every 10 minutes: check for stalled downloads
	_, err = s.cron.AddFunc("@every 10m", func() {
		s.runStalledCheck()
	})
	if err != nil {
		return fmt.Errorf("failed to add stalled download check job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping scheduler")
	s.cron.Stop()
}

// runSnapshot executes the resume snapshot job
func (s *Scheduler) runSnapshot() {
	s.logger.Debug("Running scheduled resume snapshot")
	s.manager.SnapshotActive()
}

// runStalledCheck executes the stalled download check job
func (s *Scheduler) runStalledCheck() {
	s.logger.Debug("Running stalled download check")

	timeout := time.Duration(s.stalledTimeoutMinutes) * time.Minute
	s.manager.SweepStalled(timeout)
}
