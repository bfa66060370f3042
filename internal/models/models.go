package models

import (
	"time"
)

// Assembly statuses
const (
	AssemblyScheduled  = "SCHEDULED"
	AssemblyInProgress = "IN_PROGRESS"
	AssemblyFinished   = "FINISHED"
	AssemblyCancelled  = "CANCELLED"
)

// Agenda item statuses
const (
	AgendaPending = "PENDING"
	AgendaVoting  = "VOTING"
	AgendaClosed  = "CLOSED"
)

// Quorum types, stored for reporting only
const (
	QuorumSimple    = "simple"
	QuorumQualified = "qualified"
	QuorumUnanimous = "unanimous"
)

// Assembly represents one meeting instance of a condominium
type Assembly struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	TenantID    string     `gorm:"size:64;index;not null" json:"tenant_id"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	ScheduledAt time.Time  `gorm:"index" json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at"`
	FinishedAt  *time.Time `json:"finished_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	Status      string     `gorm:"size:20;index;not null" json:"status"`
	AccessToken string     `gorm:"uniqueIndex;size:64;not null" json:"-"` // Pre-distributed check-in link token
	CheckInOTP  OTP        `gorm:"embedded;embeddedPrefix:checkin_otp_" json:"-"`
	CreatedBy   string     `gorm:"size:100" json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Assembly) TableName() string { return "assemblies" }

// IsTerminal reports whether no further lifecycle transition is possible
func (a *Assembly) IsTerminal() bool {
	return a.Status == AssemblyFinished || a.Status == AssemblyCancelled
}

// AgendaItem represents one deliberation topic of an assembly
type AgendaItem struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	TenantID        string     `gorm:"size:64;index;not null" json:"tenant_id"`
	AssemblyID      uint       `gorm:"uniqueIndex:idx_agenda_order;not null" json:"assembly_id"`
	OrderIndex      int        `gorm:"uniqueIndex:idx_agenda_order;not null" json:"order_index"`
	Title           string     `gorm:"size:255;not null" json:"title"`
	Description     string     `gorm:"type:text" json:"description"`
	Status          string     `gorm:"size:20;index;not null" json:"status"`
	RequiresQuorum  bool       `gorm:"not null" json:"requires_quorum"`
	QuorumType      string     `gorm:"size:20" json:"quorum_type"` // simple, qualified, unanimous
	Result          string     `gorm:"type:text" json:"result"`
	VotingOTP       OTP        `gorm:"embedded;embeddedPrefix:voting_otp_" json:"-"`
	VotingStartedAt *time.Time `json:"voting_started_at"`
	VotingEndedAt   *time.Time `json:"voting_ended_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (AgendaItem) TableName() string { return "agenda_items" }

// Unit represents an apartment of the condominium with its ownership share
type Unit struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	TenantID     string    `gorm:"uniqueIndex:idx_unit_identifier;size:64;not null" json:"tenant_id"`
	Identifier   string    `gorm:"uniqueIndex:idx_unit_identifier;size:50;not null" json:"identifier"` // e.g. "Block A - 101"
	OwnerName    string    `gorm:"size:200" json:"owner_name"`
	VotingWeight float64   `gorm:"not null" json:"voting_weight"`
	Active       bool      `gorm:"not null" json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Unit) TableName() string { return "units" }
