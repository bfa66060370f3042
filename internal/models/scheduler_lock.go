package models

import "time"

// SchedulerLock guards one run of a background job across server replicas.
// A row for (Job, RunKey) can only be inserted once; the replica that wins the
// insert executes that run.
type SchedulerLock struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Job       string    `gorm:"uniqueIndex:idx_scheduler_job_run;size:100;not null" json:"job"`
	RunKey    string    `gorm:"uniqueIndex:idx_scheduler_job_run;size:100;not null" json:"run_key"`
	Holder    string    `gorm:"size:100" json:"holder"`
	LockedAt  time.Time `json:"locked_at"`
	ExpiresAt time.Time `gorm:"index" json:"expires_at"`
}

func (SchedulerLock) TableName() string { return "scheduler_locks" }
