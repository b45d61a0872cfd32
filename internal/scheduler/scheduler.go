package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"skimeister/internal/config"
)

// Trigger names recorded on scrape runs
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Scheduler handles scheduled scraping tasks
type Scheduler struct {
	cron      *cron.Cron
	runner    *Runner
	config    config.ScraperConfig
	logger    *logrus.Entry
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
}

// NewScheduler creates a new scheduler
func NewScheduler(runner *Runner, cfg config.ScraperConfig, logger *logrus.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		config: cfg,
		logger: logger.WithField("component", "scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() error {
	if !s.config.DailyRunEnabled {
		s.logger.Info("daily run is disabled in configuration")
		return nil
	}

	cronSpec := s.config.Cron
	if cronSpec == "" {
		// Parse daily run time (HH:MM format in config)
		cronSpec = s.parseDailyRunTime(s.config.DailyRunTime)
	}

	_, err := s.cron.AddFunc(cronSpec, func() {
		s.logger.Info("starting scheduled scrape run")
		if _, err := s.runner.Run(s.ctx, TriggerSchedule); err != nil {
			s.logger.WithError(err).Warn("scheduled scrape run did not complete")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cronSpec, err)
	}

	s.cron.Start()
	s.isRunning = true
	s.logger.WithField("cron", cronSpec).Info("scheduler started")
	return nil
}

// Stop stops the scheduler, cancels an active run and waits for it,
// including manual runs started with RunNow
func (s *Scheduler) Stop() {
	s.cancel()
	if s.isRunning {
		<-s.cron.Stop().Done()
		s.isRunning = false
		s.logger.Info("scheduler stopped")
	}
	if s.runner != nil {
		s.runner.Wait()
	}
}

// RunNow starts a manual run in the background. It fails with
// ErrRunInProgress while another run is active.
func (s *Scheduler) RunNow() error {
	s.logger.Info("manual trigger, starting scrape run")
	return s.runner.Start(s.ctx, TriggerManual)
}

// IsRunning reports whether a scrape run is active
func (s *Scheduler) IsRunning() bool {
	return s.runner.IsRunning()
}

// parseDailyRunTime converts HH:MM format to cron specification
// Example: "02:00" -> "0 2 * * *" (run at 2:00 AM every day)
func (s *Scheduler) parseDailyRunTime(timeStr string) string {
	var hour, minute int
	n, _ := fmt.Sscanf(timeStr, "%d:%d", &hour, &minute)
	if n == 2 && hour >= 0 && hour < 24 && minute >= 0 && minute < 60 {
		return fmt.Sprintf("%d %d * * *", minute, hour)
	}

	// Default to 2:00 AM if parsing fails
	s.logger.Warnf("failed to parse time %q, using default 02:00", timeStr)
	return "0 2 * * *"
}
