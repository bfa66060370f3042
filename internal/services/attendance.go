package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AttendanceService tracks who is present and derives the live quorum
type AttendanceService struct {
	*env
	sessions *SessionIssuer
}

// CheckInRequest is presented by a participant's device. A non-empty
// ProxyName means the unit is represented by a proxy holder.
type CheckInRequest struct {
	AccessToken   string `json:"-"`
	UnitID        uint   `json:"unit_id" binding:"required"`
	OTP           string `json:"otp" binding:"required"`
	ResidentID    string `json:"resident_id"`
	ProxyName     string `json:"proxy_name"`
	ProxyDocument string `json:"proxy_document"`
}

type CheckInResult struct {
	Participant  *models.Participant `json:"participant"`
	SessionToken string              `json:"session_token"`
	Rejoined     bool                `json:"rejoined"`
}

// QuorumReport is the weighted presence of eligible participants
type QuorumReport struct {
	AssemblyID    uint    `json:"assembly_id"`
	PresentCount  int64   `json:"present_count"`
	PresentWeight float64 `json:"present_weight"`
	TotalUnits    int64   `json:"total_units"`
	TotalWeight   float64 `json:"total_weight"`
	Percentage    float64 `json:"percentage"`
}

func sameRepresentation(p *models.Participant, residentID *string, proxyName string) bool {
	if p.ProxyName != proxyName {
		return false
	}
	if p.ResidentID == nil || residentID == nil {
		return p.ResidentID == nil && residentID == nil
	}
	return *p.ResidentID == *residentID
}

// CheckIn admits a unit to an IN_PROGRESS assembly. It is an upsert keyed by
// (assembly, unit): checking in again updates joinedAt, clears leftAt and
// rotates the session token instead of creating a second participant.
func (s *AttendanceService) CheckIn(ctx context.Context, req *CheckInRequest) (*CheckInResult, error) {
	proxyName := strings.TrimSpace(req.ProxyName)
	var residentID *string
	if r := strings.TrimSpace(req.ResidentID); r != "" {
		residentID = &r
	}
	status := models.ApprovalApproved
	if proxyName != "" {
		status = models.ApprovalPending
	}

	var (
		assembly *models.Assembly
		result   = &CheckInResult{}
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var a models.Assembly
		err := withLock(tx, lockShare).Where("access_token = ?", req.AccessToken).First(&a).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAssemblyNotFound
		}
		if err != nil {
			return storeErr("load assembly", err)
		}
		assembly = &a
		if a.Status != models.AssemblyInProgress {
			return ErrAssemblyNotInProgress
		}

		now := s.now()
		if err := s.otp.Validate(a.CheckInOTP, req.OTP, now); err != nil {
			s.metrics.otpFailure("checkin", err)
			s.log.Warn().Uint("assembly_id", a.ID).Uint("unit_id", req.UnitID).Str("reason", ReasonOf(err)).Msg("check-in code rejected")
			return err
		}

		var unit models.Unit
		err = tx.Where("id = ? AND tenant_id = ? AND active = ?", req.UnitID, a.TenantID, true).First(&unit).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnitNotFound
		}
		if err != nil {
			return storeErr("load unit", err)
		}

		p := &models.Participant{
			TenantID:       a.TenantID,
			AssemblyID:     a.ID,
			UnitID:         unit.ID,
			ResidentID:     residentID,
			ProxyName:      proxyName,
			ProxyDocument:  strings.TrimSpace(req.ProxyDocument),
			ApprovalStatus: status,
			JoinedAt:       &now,
			VotingWeight:   unit.VotingWeight,
		}
		created := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assembly_id"}, {Name: "unit_id"}},
			DoNothing: true,
		}).Create(p)
		if created.Error != nil {
			return storeErr("create participant", created.Error)
		}

		if created.RowsAffected == 0 {
			result.Rejoined = true
			existing := &models.Participant{}
			if err := withLock(tx, lockUpdate).
				Where("assembly_id = ? AND unit_id = ?", a.ID, unit.ID).
				First(existing).Error; err != nil {
				return storeErr("load participant", err)
			}

			updates := map[string]interface{}{
				"joined_at": now,
				"left_at":   nil,
			}
			if !sameRepresentation(existing, residentID, proxyName) {
				updates["resident_id"] = residentID
				updates["proxy_name"] = proxyName
				updates["proxy_document"] = strings.TrimSpace(req.ProxyDocument)
				updates["proxy_file_url"] = ""
				updates["proxy_file_name"] = ""
				updates["approval_status"] = status
				updates["approved_by"] = ""
				updates["approved_at"] = nil
				updates["rejected_by"] = ""
				updates["rejection_reason"] = ""
			}
			if err := tx.Model(&models.Participant{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
				return storeErr("rejoin participant", err)
			}
			p = existing
		}

		token, err := s.sessions.Issue(tx, p.ID)
		if err != nil {
			return err
		}
		result.SessionToken = token

		var fresh models.Participant
		if err := tx.First(&fresh, p.ID).Error; err != nil {
			return storeErr("reload participant", err)
		}
		result.Participant = &fresh
		return nil
	})
	if err != nil {
		return nil, err
	}

	p := result.Participant
	s.metrics.checkIn(p.IsProxy(), result.Rejoined)
	s.log.Info().
		Uint("assembly_id", p.AssemblyID).
		Uint("participant_id", p.ID).
		Uint("unit_id", p.UnitID).
		Bool("proxy", p.IsProxy()).
		Bool("rejoined", result.Rejoined).
		Msg("participant checked in")
	s.record(assembly.TenantID, assembly.ID, "Attendance", "CheckIn", ParticipantActor(p.ID),
		fmt.Sprintf("Unit %d checked in (%s)", p.UnitID, p.ApprovalStatus), nil)
	s.publishQuorum(ctx, assembly.TenantID, assembly.ID)
	return result, nil
}

// ParticipantActor names a participant acting on their own seat in the audit trail
func ParticipantActor(id uint) string {
	return fmt.Sprintf("participant:%d", id)
}

// MarkLeft records that a participant left. Leaving twice is a no-op.
func (s *AttendanceService) MarkLeft(ctx context.Context, tenantID string, participantID uint, actor string) (*models.Participant, error) {
	var p *models.Participant
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = loadParticipant(tx, tenantID, participantID, lockUpdate)
		if err != nil {
			return err
		}
		if _, err := requireInProgress(tx, tenantID, p.AssemblyID); err != nil {
			return err
		}
		if !p.IsPresent() {
			return nil
		}

		now := s.now()
		result := tx.Model(&models.Participant{}).
			Where("id = ? AND left_at IS NULL", p.ID).
			Update("left_at", now)
		if result.Error != nil {
			return storeErr("mark left", result.Error)
		}
		if result.RowsAffected > 0 {
			changed = true
			p.LeftAt = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.log.Info().Uint("assembly_id", p.AssemblyID).Uint("participant_id", p.ID).Str("actor", actor).Msg("participant left")
		s.record(tenantID, p.AssemblyID, "Attendance", "Leave", actor, fmt.Sprintf("Unit %d left", p.UnitID), nil)
		s.publishQuorum(ctx, tenantID, p.AssemblyID)
	}
	return p, nil
}

// SetVotingWeight corrects a participant's ownership share. Ballots already
// cast keep the weight they were cast with.
func (s *AttendanceService) SetVotingWeight(ctx context.Context, tenantID string, participantID uint, weight float64, actor string) (*models.Participant, error) {
	if !validWeight(weight) {
		return nil, ErrInvalidWeight
	}

	var p *models.Participant
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = loadParticipant(tx, tenantID, participantID, lockUpdate)
		if err != nil {
			return err
		}
		if _, err := requireInProgress(tx, tenantID, p.AssemblyID); err != nil {
			return err
		}
		if err := tx.Model(&models.Participant{}).Where("id = ?", p.ID).Update("voting_weight", weight).Error; err != nil {
			return storeErr("update voting weight", err)
		}
		p.VotingWeight = weight
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint("participant_id", p.ID).Float64("voting_weight", weight).Str("actor", actor).Msg("voting weight changed")
	s.record(tenantID, p.AssemblyID, "Attendance", "SetVotingWeight", actor,
		fmt.Sprintf("Voting weight of unit %d set to %.4f", p.UnitID, weight), nil)
	s.publishQuorum(ctx, tenantID, p.AssemblyID)
	return p, nil
}

// Quorum sums the weight of approved, present participants over the weight
// of all active units of the tenant. A unit represented in this assembly
// counts with its participant's weight on both sides, so a weight correction
// moves numerator and denominator together. Computed on every call.
func (s *AttendanceService) Quorum(ctx context.Context, tenantID string, assemblyID uint) (*QuorumReport, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadAssembly(db, tenantID, assemblyID, lockNone); err != nil {
		return nil, err
	}

	var present struct {
		Count  int64
		Weight float64
	}
	if err := db.Model(&models.Participant{}).
		Select("COUNT(*) AS count, COALESCE(SUM(participants.voting_weight), 0) AS weight").
		Joins("JOIN units ON units.id = participants.unit_id AND units.active = ?", true).
		Where("participants.assembly_id = ? AND participants.approval_status = ? AND participants.joined_at IS NOT NULL AND participants.left_at IS NULL",
			assemblyID, models.ApprovalApproved).
		Scan(&present).Error; err != nil {
		return nil, storeErr("sum present weight", err)
	}

	var total struct {
		Count  int64
		Weight float64
	}
	if err := db.Model(&models.Unit{}).
		Select("COUNT(*) AS count, COALESCE(SUM(COALESCE(participants.voting_weight, units.voting_weight)), 0) AS weight").
		Joins("LEFT JOIN participants ON participants.unit_id = units.id AND participants.assembly_id = ?", assemblyID).
		Where("units.tenant_id = ? AND units.active = ?", tenantID, true).
		Scan(&total).Error; err != nil {
		return nil, storeErr("sum unit weight", err)
	}

	report := &QuorumReport{
		AssemblyID:    assemblyID,
		PresentCount:  present.Count,
		PresentWeight: present.Weight,
		TotalUnits:    total.Count,
		TotalWeight:   total.Weight,
	}
	if total.Weight > 0 {
		report.Percentage = math.Round(present.Weight/total.Weight*10000) / 100
	}
	return report, nil
}

func (s *AttendanceService) publishQuorum(ctx context.Context, tenantID string, assemblyID uint) {
	if s.events == nil {
		return
	}
	q, err := s.Quorum(ctx, tenantID, assemblyID)
	if err != nil {
		s.log.Warn().Err(err).Uint("assembly_id", assemblyID).Msg("quorum unavailable for live update")
		return
	}
	s.events.Publish(AssemblyEvent{AssemblyID: assemblyID, Type: EventQuorumChanged, Quorum: q})
}

func (s *AttendanceService) Participant(ctx context.Context, tenantID string, id uint) (*models.Participant, error) {
	return loadParticipant(s.db.WithContext(ctx), tenantID, id, lockNone)
}

// Participants lists an assembly's participants, optionally filtered by
// approval status
func (s *AttendanceService) Participants(ctx context.Context, tenantID string, assemblyID uint, approvalStatus string) ([]models.Participant, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadAssembly(db, tenantID, assemblyID, lockNone); err != nil {
		return nil, err
	}
	query := db.Where("assembly_id = ?", assemblyID)
	if approvalStatus != "" {
		query = query.Where("approval_status = ?", approvalStatus)
	}
	var participants []models.Participant
	if err := query.Order("id").Find(&participants).Error; err != nil {
		return nil, storeErr("list participants", err)
	}
	return participants, nil
}

// PendingProxies is the approval queue of an assembly
func (s *AttendanceService) PendingProxies(ctx context.Context, tenantID string, assemblyID uint) ([]models.Participant, error) {
	return s.Participants(ctx, tenantID, assemblyID, models.ApprovalPending)
}
