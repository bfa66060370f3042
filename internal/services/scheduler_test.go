package services

import (
	"testing"
	"time"

	"github.com/huangang/condovote/internal/models"
)

func newTestScheduler(te *testEnv, holder string) *Scheduler {
	s := NewScheduler(te.db, te.engine, "@every 1m", 30)
	s.holder = holder
	s.now = te.clock.Now
	return s
}

func TestScheduler_TryLockOncePerRun(t *testing.T) {
	te := newTestEnv(t)
	a := newTestScheduler(te, "replica-a")
	b := newTestScheduler(te, "replica-b")

	if !a.tryLock(jobRotateOTP, "2026-03-14T19:00:00Z", time.Hour) {
		t.Fatal("first replica should claim the run")
	}
	if b.tryLock(jobRotateOTP, "2026-03-14T19:00:00Z", time.Hour) {
		t.Error("second replica claimed a run already taken")
	}
	if !b.tryLock(jobRotateOTP, "2026-03-14T19:01:00Z", time.Hour) {
		t.Error("next run should be claimable")
	}
	if !b.tryLock(jobCleanupLogs, "2026-03-14T19:00:00Z", time.Hour) {
		t.Error("other job with the same run key should be claimable")
	}

	var lock models.SchedulerLock
	te.db.Where("job = ? AND run_key = ?", jobRotateOTP, "2026-03-14T19:00:00Z").First(&lock)
	if lock.Holder != "replica-a" {
		t.Errorf("Holder = %q, expected %q", lock.Holder, "replica-a")
	}
}

func TestScheduler_RotateCheckInOTPs(t *testing.T) {
	te := newTestEnv(t)
	a, _ := te.liveAssembly()
	te.checkInCode(a.ID)
	s := newTestScheduler(te, "replica-a")

	te.clock.Advance(time.Minute)
	s.rotateCheckInOTPs()

	var got models.Assembly
	te.db.First(&got, a.ID)
	if !got.CheckInOTP.GeneratedAt.Equal(te.clock.Now()) {
		t.Errorf("GeneratedAt = %v, expected %v", got.CheckInOTP.GeneratedAt, te.clock.Now())
	}

	var claims int64
	te.db.Model(&models.SchedulerLock{}).Where("job = ?", jobRotateOTP).Count(&claims)
	if claims != 1 {
		t.Errorf("%d rotation claims, expected 1", claims)
	}
}

func TestScheduler_CleanupLogs(t *testing.T) {
	te := newTestEnv(t)
	finished, _ := te.liveAssembly()
	if _, err := te.engine.Assemblies.Finish(te.ctx, testTenant, finished.ID, "syndic"); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	live, _ := te.liveAssembly()

	old := te.clock.Now().AddDate(0, 0, -60)
	for _, row := range []models.SystemLog{
		{TenantID: testTenant, Level: models.LogLevelInfo, Module: "Attendance", Action: "CheckIn", AssemblyID: &finished.ID, CreatedAt: old},
		{TenantID: testTenant, Level: models.LogLevelInfo, Module: "Attendance", Action: "CheckIn", AssemblyID: &live.ID, CreatedAt: old},
		{TenantID: testTenant, Level: models.LogLevelInfo, Module: "System", Action: "Login", CreatedAt: old},
	} {
		row := row
		if err := te.db.Create(&row).Error; err != nil {
			t.Fatalf("seed log: %v", err)
		}
	}
	te.db.Create(&models.SchedulerLock{Job: "stale", RunKey: "x", Holder: "gone", LockedAt: old, ExpiresAt: old})

	s := newTestScheduler(te, "replica-a")
	s.cleanupLogs()

	var oldLeft int64
	te.db.Model(&models.SystemLog{}).Where("created_at <= ?", old).Count(&oldLeft)
	if oldLeft != 1 {
		t.Errorf("%d old logs left, expected only the finished assembly's", oldLeft)
	}
	var stale int64
	te.db.Model(&models.SchedulerLock{}).Where("job = ?", "stale").Count(&stale)
	if stale != 0 {
		t.Error("expired lock was not purged")
	}
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	te := newTestEnv(t)
	s := NewScheduler(te.db, te.engine, "not a cron spec", 30)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Start() with invalid spec should fail")
	}

	ok := NewScheduler(te.db, te.engine, "", 30)
	if err := ok.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ok.Stop()
}
