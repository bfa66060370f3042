package models

import "time"

// Approval statuses
const (
	ApprovalApproved = "APPROVED"
	ApprovalPending  = "PENDING"
	ApprovalRejected = "REJECTED"
)

// Participant represents one unit's representation in one assembly,
// either the resident themself or a proxy holder.
type Participant struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	TenantID         string     `gorm:"size:64;index;not null" json:"tenant_id"`
	AssemblyID       uint       `gorm:"uniqueIndex:idx_participant_unit;not null" json:"assembly_id"`
	UnitID           uint       `gorm:"uniqueIndex:idx_participant_unit;not null" json:"unit_id"`
	ResidentID       *string    `gorm:"size:100" json:"resident_id"`
	ProxyName        string     `gorm:"size:200" json:"proxy_name"`
	ProxyDocument    string     `gorm:"size:100" json:"proxy_document"`
	ProxyFileURL     string     `gorm:"size:500" json:"proxy_file_url"`
	ProxyFileName    string     `gorm:"size:255" json:"proxy_file_name"`
	ApprovalStatus   string     `gorm:"size:20;index;not null" json:"approval_status"`
	ApprovedBy       string     `gorm:"size:100" json:"approved_by"`
	ApprovedAt       *time.Time `json:"approved_at"`
	RejectedBy       string     `gorm:"size:100" json:"rejected_by"`
	RejectionReason  string     `gorm:"type:text" json:"rejection_reason"`
	SessionTokenHash *string    `gorm:"uniqueIndex;size:64" json:"-"`
	JoinedAt         *time.Time `json:"joined_at"`
	LeftAt           *time.Time `json:"left_at"`
	VotingWeight     float64    `gorm:"not null" json:"voting_weight"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Participant) TableName() string { return "participants" }

// IsProxy reports whether the unit is represented by a proxy holder
func (p *Participant) IsProxy() bool {
	return p.ProxyName != ""
}

// IsPresent reports whether the participant is currently in the meeting
func (p *Participant) IsPresent() bool {
	return p.JoinedAt != nil && p.LeftAt == nil
}

// CanVote reports whether the participant is approved and currently present
func (p *Participant) CanVote() bool {
	return p.ApprovalStatus == ApprovalApproved && p.IsPresent()
}
