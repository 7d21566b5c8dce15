package backup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/mathom/internal/model"
)

// Wall-clock schedules, all UTC. Backups run off-peak, cleanup after the
// backup windows, health checks hourly.
const (
	dailyBackupSpec  = "0 3 * * *"
	weeklyBackupSpec = "0 4 * * 0"
	cleanupSpec      = "0 5 * * *"
	healthCheckSpec  = "0 * * * *"
)

const (
	dailyRetentionDays  = 7
	weeklyRetentionDays = 30
)

// Scheduler drives the orchestrator on fixed calendar schedules. Each job
// catches and logs its own failures; no job can keep another (or a later run
// of itself) from firing.
type Scheduler struct {
	cron    *cron.Cron
	manager *Manager
	health  *HealthReporter
	logger  *slog.Logger
}

func NewScheduler(m *Manager, h *HealthReporter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		manager: m,
		health:  h,
		logger:  logger,
	}
}

// Start registers the four scheduled jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	jobs := []struct {
		spec string
		name string
		run  func()
	}{
		{dailyBackupSpec, "daily_backup", func() { s.runScheduledBackup("daily", dailyRetentionDays) }},
		{weeklyBackupSpec, "weekly_backup", func() { s.runScheduledBackup("weekly", weeklyRetentionDays) }},
		{cleanupSpec, "cleanup", s.runCleanup},
		{healthCheckSpec, "health_check", s.runHealthCheck},
	}

	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, job.run); err != nil {
			return fmt.Errorf("schedule %s: %w", job.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(jobs))
	return nil
}

// Stop halts the cron loop and waits for any running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runScheduledBackup(cadence string, retentionDays int) {
	b, err := s.manager.CreateBackup(context.Background(), CreateRequest{
		Type:          model.BackupTypeFull,
		RetentionDays: retentionDays,
		Compress:      true,
		CrossRegion:   true,
	})
	if err != nil {
		s.logger.Error("scheduled backup failed", "cadence", cadence, "error", err)
		return
	}
	if b.Status == model.BackupStatusFailed {
		s.logger.Error("scheduled backup failed", "cadence", cadence, "id", b.ID, "error", b.ErrorMessage)
		return
	}
	s.logger.Info("scheduled backup finished", "cadence", cadence, "id", b.ID, "status", b.Status)
}

func (s *Scheduler) runCleanup() {
	deleted, err := s.manager.CleanupExpired(context.Background())
	if err != nil {
		s.logger.Error("scheduled cleanup failed", "error", err)
		return
	}
	s.logger.Info("scheduled cleanup finished", "deleted", deleted)
}

func (s *Scheduler) runHealthCheck() {
	report, err := s.health.Report()
	if err != nil {
		s.logger.Error("health check failed", "error", err)
		return
	}
	if report.Status != HealthStatusHealthy {
		s.logger.Warn("backup health degraded",
			"status", report.Status,
			"total", report.TotalBackups,
			"failed", report.FailedBackups,
		)
		return
	}
	s.logger.Debug("backup health ok", "total", report.TotalBackups)
}
