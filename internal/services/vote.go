package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

// VoteService accepts one ballot per participant per agenda item and
// aggregates the tally
type VoteService struct {
	*env
}

type CastRequest struct {
	AgendaItemID uint   `json:"-"`
	OTP          string `json:"otp" binding:"required"`
	Choice       string `json:"choice" binding:"required"`
	// SessionTokenHash is the stored form of the token the caller presented.
	// It is re-checked under the participant row lock, so a device whose
	// token was rotated by a re-check-in cannot vote.
	SessionTokenHash string `json:"-"`
}

// VoteSummary holds raw counts (informational) and weighted sums (legally
// significant) per choice
type VoteSummary struct {
	AgendaItemID       uint    `json:"agenda_item_id"`
	Yes                int64   `json:"yes"`
	No                 int64   `json:"no"`
	Abstention         int64   `json:"abstention"`
	Total              int64   `json:"total"`
	WeightedYes        float64 `json:"weighted_yes"`
	WeightedNo         float64 `json:"weighted_no"`
	WeightedAbstention float64 `json:"weighted_abstention"`
	WeightedTotal      float64 `json:"weighted_total"`
}

func tally(db *gorm.DB, agendaItemID uint) (*VoteSummary, error) {
	var rows []struct {
		Choice string
		Count  int64
		Weight float64
	}
	if err := db.Model(&models.Vote{}).
		Select("choice, COUNT(*) AS count, COALESCE(SUM(voting_weight), 0) AS weight").
		Where("agenda_item_id = ?", agendaItemID).
		Group("choice").
		Scan(&rows).Error; err != nil {
		return nil, storeErr("tally votes", err)
	}

	sum := &VoteSummary{AgendaItemID: agendaItemID}
	for _, r := range rows {
		switch r.Choice {
		case models.ChoiceYes:
			sum.Yes, sum.WeightedYes = r.Count, r.Weight
		case models.ChoiceNo:
			sum.No, sum.WeightedNo = r.Count, r.Weight
		case models.ChoiceAbstention:
			sum.Abstention, sum.WeightedAbstention = r.Count, r.Weight
		}
	}
	sum.Total = sum.Yes + sum.No + sum.Abstention
	sum.WeightedTotal = sum.WeightedYes + sum.WeightedNo + sum.WeightedAbstention
	return sum, nil
}

// Cast records a ballot for an authenticated participant. Preconditions are
// checked in order, each with its own failure: the item is VOTING, the
// voting code is valid, the participant is eligible, no ballot exists yet.
// A repeated call fails with ErrAlreadyVoted and leaves the first ballot
// untouched.
func (s *VoteService) Cast(ctx context.Context, participant *models.Participant, req *CastRequest) (*models.Vote, error) {
	choice := strings.ToUpper(strings.TrimSpace(req.Choice))

	var vote *models.Vote
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := loadAgendaItem(tx, participant.TenantID, req.AgendaItemID, lockShare)
		if err != nil {
			return err
		}
		if item.AssemblyID != participant.AssemblyID {
			return ErrAgendaItemNotFound
		}
		if item.Status != models.AgendaVoting {
			return ErrVotingClosed
		}
		if !models.ValidChoice(choice) {
			return ErrInvalidChoice
		}

		if err := s.otp.Validate(item.VotingOTP, req.OTP, s.now()); err != nil {
			s.metrics.otpFailure("voting", err)
			s.log.Warn().Uint("agenda_item_id", item.ID).Uint("participant_id", participant.ID).Str("reason", ReasonOf(err)).Msg("voting code rejected")
			return err
		}

		p, err := loadParticipant(tx, participant.TenantID, participant.ID, lockShare)
		if errors.Is(err, ErrParticipantNotFound) {
			return ErrSessionInvalid
		}
		if err != nil {
			return err
		}
		if req.SessionTokenHash == "" || p.SessionTokenHash == nil || *p.SessionTokenHash != req.SessionTokenHash {
			return ErrSessionInvalid
		}
		if !p.CanVote() {
			return ErrNotEligible
		}

		var existing int64
		if err := tx.Model(&models.Vote{}).
			Where("agenda_item_id = ? AND participant_id = ?", item.ID, p.ID).
			Count(&existing).Error; err != nil {
			return storeErr("check ballot", err)
		}
		if existing > 0 {
			return ErrAlreadyVoted
		}

		vote = &models.Vote{
			TenantID:      p.TenantID,
			AgendaItemID:  item.ID,
			ParticipantID: p.ID,
			Choice:        choice,
			VotingWeight:  p.VotingWeight,
		}
		if err := tx.Create(vote).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyVoted
			}
			return storeErr("store ballot", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ballot(choice)
	s.log.Info().
		Uint("assembly_id", participant.AssemblyID).
		Uint("agenda_item_id", vote.AgendaItemID).
		Uint("participant_id", vote.ParticipantID).
		Float64("voting_weight", vote.VotingWeight).
		Msg("ballot cast")
	if s.events != nil {
		if summary, err := tally(s.db.WithContext(ctx), vote.AgendaItemID); err == nil {
			s.events.Publish(AssemblyEvent{
				AssemblyID:   participant.AssemblyID,
				Type:         EventBallotCast,
				AgendaItemID: vote.AgendaItemID,
				Summary:      summary,
			})
		}
	}
	return vote, nil
}

// Summary returns the running or final tally of an agenda item
func (s *VoteService) Summary(ctx context.Context, tenantID string, agendaItemID uint) (*VoteSummary, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadAgendaItem(db, tenantID, agendaItemID, lockNone); err != nil {
		return nil, err
	}
	return tally(db, agendaItemID)
}

// Votes is the audit listing of the ballots of an agenda item
func (s *VoteService) Votes(ctx context.Context, tenantID string, agendaItemID uint) ([]models.Vote, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadAgendaItem(db, tenantID, agendaItemID, lockNone); err != nil {
		return nil, err
	}
	var votes []models.Vote
	if err := db.Where("agenda_item_id = ?", agendaItemID).Order("created_at, id").Find(&votes).Error; err != nil {
		return nil, storeErr("list votes", err)
	}
	return votes, nil
}

// MyVote returns the participant's own ballot on an agenda item
func (s *VoteService) MyVote(ctx context.Context, participant *models.Participant, agendaItemID uint) (*models.Vote, error) {
	var vote models.Vote
	err := s.db.WithContext(ctx).
		Where("agenda_item_id = ? AND participant_id = ?", agendaItemID, participant.ID).
		First(&vote).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrVoteNotFound
	}
	if err != nil {
		return nil, storeErr("load ballot", err)
	}
	return &vote, nil
}
