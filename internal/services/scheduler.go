package services

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/pkg/logger"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	jobRotateOTP   = "rotate_checkin_otp"
	jobCleanupLogs = "cleanup_system_logs"
)

// Scheduler runs the engine's background jobs. Every run is claimed through
// a scheduler_locks row so that only one replica executes it.
type Scheduler struct {
	db            *gorm.DB
	engine        *Engine
	cron          *cron.Cron
	rotateSpec    string
	retentionDays int
	holder        string
	now           func() time.Time
}

func NewScheduler(db *gorm.DB, engine *Engine, rotateSpec string, retentionDays int) *Scheduler {
	host, _ := os.Hostname()
	return &Scheduler{
		db:            db,
		engine:        engine,
		rotateSpec:    rotateSpec,
		retentionDays: retentionDays,
		holder:        fmt.Sprintf("%s:%d", host, os.Getpid()),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if s.rotateSpec != "" {
		if _, err := s.cron.AddFunc(s.rotateSpec, s.rotateCheckInOTPs); err != nil {
			return fmt.Errorf("invalid otp rotation schedule %q: %w", s.rotateSpec, err)
		}
		logger.Infof("[Scheduler] Check-in code rotation scheduled (cron: %s)", s.rotateSpec)
	}
	if _, err := s.cron.AddFunc("30 3 * * *", s.cleanupLogs); err != nil {
		return err
	}

	s.cron.Start()
	logger.Infof("[Scheduler] Started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// tryLock claims (job, runKey) for this replica until ttl elapses
func (s *Scheduler) tryLock(job, runKey string, ttl time.Duration) bool {
	now := s.now()
	lock := &models.SchedulerLock{
		Job:       job,
		RunKey:    runKey,
		Holder:    s.holder,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(lock)
	if result.Error != nil {
		logger.Warn().Err(result.Error).Str("job", job).Msg("[Scheduler] failed to claim run")
		return false
	}
	return result.RowsAffected == 1
}

func (s *Scheduler) rotateCheckInOTPs() {
	runKey := s.now().Truncate(time.Minute).Format(time.RFC3339)
	if !s.tryLock(jobRotateOTP, runKey, time.Hour) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rotated, err := s.engine.Assemblies.RotateCheckInOTPs(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("[Scheduler] check-in code rotation failed")
		return
	}
	if rotated > 0 {
		logger.Info().Int("assemblies", rotated).Msg("[Scheduler] check-in codes rotated")
	}
}

func (s *Scheduler) cleanupLogs() {
	now := s.now()
	if !s.tryLock(jobCleanupLogs, now.Format("2006-01-02"), 24*time.Hour) {
		return
	}

	if s.retentionDays <= 0 {
		logger.Infof("[Scheduler] Log cleanup disabled (retention_days <= 0)")
	} else {
		deleted, err := s.engine.Audit.CleanupOldLogs(now, s.retentionDays)
		if err != nil {
			logger.Errorf("[Scheduler] Failed to cleanup old logs: %v", err)
		} else if deleted > 0 {
			logger.Infof("[Scheduler] Cleaned up %d logs older than %d days", deleted, s.retentionDays)
		}
	}

	if err := s.db.Where("expires_at < ?", now).Delete(&models.SchedulerLock{}).Error; err != nil {
		logger.Warnf("[Scheduler] Failed to purge expired locks: %v", err)
	}
}
