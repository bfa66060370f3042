package models

import "time"

// Vote choices
const (
	ChoiceYes        = "YES"
	ChoiceNo         = "NO"
	ChoiceAbstention = "ABSTENTION"
)

// ValidChoice reports whether c is one of the accepted ballot choices
func ValidChoice(c string) bool {
	switch c {
	case ChoiceYes, ChoiceNo, ChoiceAbstention:
		return true
	}
	return false
}

// Vote represents one ballot. Rows are never updated or deleted once cast
// while the owning assembly is kept for audit.
type Vote struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TenantID      string    `gorm:"size:64;index;not null" json:"tenant_id"`
	AgendaItemID  uint      `gorm:"uniqueIndex:idx_vote_ballot;not null" json:"agenda_item_id"`
	ParticipantID uint      `gorm:"uniqueIndex:idx_vote_ballot;index;not null" json:"participant_id"`
	Choice        string    `gorm:"size:20;not null" json:"choice"`
	VotingWeight  float64   `gorm:"not null" json:"voting_weight"` // Snapshot at cast time
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

func (Vote) TableName() string { return "votes" }
