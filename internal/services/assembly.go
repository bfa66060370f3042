package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

// AssemblyService owns the assembly lifecycle:
// SCHEDULED -> IN_PROGRESS -> FINISHED, and SCHEDULED -> CANCELLED.
type AssemblyService struct {
	*env
	attendance *AttendanceService
}

type AgendaItemInput struct {
	Title          string `json:"title" binding:"required"`
	Description    string `json:"description"`
	RequiresQuorum bool   `json:"requires_quorum"`
	QuorumType     string `json:"quorum_type"` // simple, qualified, unanimous
}

type ScheduleAssemblyRequest struct {
	Title       string            `json:"title" binding:"required"`
	Description string            `json:"description"`
	ScheduledAt time.Time         `json:"scheduled_at" binding:"required"`
	Agenda      []AgendaItemInput `json:"agenda"`
}

type AssemblyListRequest struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status"`
}

type AssemblyListResponse struct {
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Items    []models.Assembly `json:"items"`
}

func newAccessToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func normalizeAgendaInput(in *AgendaItemInput) error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return ErrTitleRequired
	}
	switch in.QuorumType {
	case "":
		in.QuorumType = models.QuorumSimple
	case models.QuorumSimple, models.QuorumQualified, models.QuorumUnanimous:
	default:
		return ErrInvalidQuorumType
	}
	return nil
}

// Schedule drafts a new assembly with its agenda in the given order
func (s *AssemblyService) Schedule(ctx context.Context, tenantID, creator string, req *ScheduleAssemblyRequest) (*models.Assembly, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}
	for i := range req.Agenda {
		if err := normalizeAgendaInput(&req.Agenda[i]); err != nil {
			return nil, err
		}
	}

	token, err := newAccessToken()
	if err != nil {
		return nil, storeErr("generate access token", err)
	}

	assembly := &models.Assembly{
		TenantID:    tenantID,
		Title:       title,
		Description: req.Description,
		ScheduledAt: req.ScheduledAt.UTC(),
		Status:      models.AssemblyScheduled,
		AccessToken: token,
		CreatedBy:   creator,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(assembly).Error; err != nil {
			return err
		}
		for i, in := range req.Agenda {
			item := &models.AgendaItem{
				TenantID:       tenantID,
				AssemblyID:     assembly.ID,
				OrderIndex:     i + 1,
				Title:          in.Title,
				Description:    in.Description,
				Status:         models.AgendaPending,
				RequiresQuorum: in.RequiresQuorum,
				QuorumType:     in.QuorumType,
			}
			if err := tx.Create(item).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeErr("schedule assembly", err)
	}

	s.log.Info().Uint("assembly_id", assembly.ID).Str("tenant_id", tenantID).Int("agenda_items", len(req.Agenda)).Msg("assembly scheduled")
	s.record(tenantID, assembly.ID, "Assembly", "Schedule", creator, fmt.Sprintf("Scheduled assembly %q", title), nil)
	return assembly, nil
}

func (s *AssemblyService) Get(ctx context.Context, tenantID string, id uint) (*models.Assembly, error) {
	return loadAssembly(s.db.WithContext(ctx), tenantID, id, lockNone)
}

// GetByAccessToken resolves the pre-distributed check-in link token
func (s *AssemblyService) GetByAccessToken(ctx context.Context, token string) (*models.Assembly, error) {
	if token == "" {
		return nil, ErrAssemblyNotFound
	}
	var a models.Assembly
	err := s.db.WithContext(ctx).Where("access_token = ?", token).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssemblyNotFound
	}
	if err != nil {
		return nil, storeErr("load assembly", err)
	}
	return &a, nil
}

// AccessToken returns the check-in link token for staff to distribute
func (s *AssemblyService) AccessToken(ctx context.Context, tenantID string, id uint) (string, error) {
	a, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return "", err
	}
	return a.AccessToken, nil
}

func (s *AssemblyService) List(ctx context.Context, tenantID string, req *AssemblyListRequest) (*AssemblyListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var assemblies []models.Assembly
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Assembly{}).Where("tenant_id = ?", tenantID)
	if req.Status != "" {
		query = query.Where("status = ?", req.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, storeErr("count assemblies", err)
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Order("scheduled_at DESC, id DESC").Offset(offset).Limit(req.PageSize).Find(&assemblies).Error; err != nil {
		return nil, storeErr("list assemblies", err)
	}

	return &AssemblyListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    assemblies,
	}, nil
}

// transition flips status with a compare-and-swap on the current status.
// When no row matches, the assembly is reloaded to tell a missing assembly
// apart from one in the wrong state.
func (s *AssemblyService) transition(ctx context.Context, tenantID string, id uint, from, to string, updates map[string]interface{}, wrongState error) (*models.Assembly, error) {
	updates["status"] = to
	result := s.db.WithContext(ctx).Model(&models.Assembly{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, from).
		Updates(updates)
	if result.Error != nil {
		return nil, storeErr("update assembly status", result.Error)
	}

	a, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return nil, wrongState
	}

	s.metrics.transition("assembly", to)
	s.events.Publish(AssemblyEvent{AssemblyID: id, Type: EventAssemblyStatus, Status: to})
	return a, nil
}

// Start opens the meeting. It does not issue a check-in code.
func (s *AssemblyService) Start(ctx context.Context, tenantID string, id uint, actor string) (*models.Assembly, error) {
	a, err := s.transition(ctx, tenantID, id, models.AssemblyScheduled, models.AssemblyInProgress,
		map[string]interface{}{"started_at": s.now()}, ErrAssemblyNotScheduled)
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("assembly_id", id).Str("actor", actor).Msg("assembly started")
	s.record(tenantID, id, "Assembly", "Start", actor, "Assembly started", nil)
	return a, nil
}

// Cancel is only possible before the meeting starts
func (s *AssemblyService) Cancel(ctx context.Context, tenantID string, id uint, actor string) (*models.Assembly, error) {
	a, err := s.transition(ctx, tenantID, id, models.AssemblyScheduled, models.AssemblyCancelled,
		map[string]interface{}{"cancelled_at": s.now()}, ErrAssemblyNotScheduled)
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("assembly_id", id).Str("actor", actor).Msg("assembly cancelled")
	s.record(tenantID, id, "Assembly", "Cancel", actor, "Assembly cancelled", nil)
	return a, nil
}

// Finish closes the meeting for good. Every agenda item must be out of
// VOTING first; afterwards participants and votes are frozen.
func (s *AssemblyService) Finish(ctx context.Context, tenantID string, id uint, actor string) (*models.Assembly, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAssembly(tx, tenantID, id, lockUpdate)
		if err != nil {
			return err
		}
		if a.Status != models.AssemblyInProgress {
			return ErrAssemblyNotInProgress
		}

		var voting int64
		if err := tx.Model(&models.AgendaItem{}).
			Where("assembly_id = ? AND status = ?", id, models.AgendaVoting).
			Count(&voting).Error; err != nil {
			return storeErr("count voting items", err)
		}
		if voting > 0 {
			return ErrVotingInProgress
		}

		updates := models.OTP{}.Columns(models.CheckInOTPPrefix)
		updates["status"] = models.AssemblyFinished
		updates["finished_at"] = now
		result := tx.Model(&models.Assembly{}).
			Where("id = ? AND status = ?", id, models.AssemblyInProgress).
			Updates(updates)
		if result.Error != nil {
			return storeErr("finish assembly", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAssemblyNotInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition("assembly", models.AssemblyFinished)
	s.events.Publish(AssemblyEvent{AssemblyID: id, Type: EventAssemblyStatus, Status: models.AssemblyFinished})
	s.log.Info().Uint("assembly_id", id).Str("actor", actor).Msg("assembly finished")
	s.record(tenantID, id, "Assembly", "Finish", actor, "Assembly finished", nil)
	return s.Get(ctx, tenantID, id)
}

// Delete removes an assembly with its agenda, participants and votes.
// FINISHED assemblies are kept for audit.
func (s *AssemblyService) Delete(ctx context.Context, tenantID string, id uint, actor string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAssembly(tx, tenantID, id, lockUpdate)
		if err != nil {
			return err
		}
		if a.Status == models.AssemblyFinished {
			return ErrAssemblyFinished
		}

		items := tx.Model(&models.AgendaItem{}).Select("id").Where("assembly_id = ?", id)
		if err := tx.Where("agenda_item_id IN (?)", items).Delete(&models.Vote{}).Error; err != nil {
			return storeErr("delete votes", err)
		}
		if err := tx.Where("assembly_id = ?", id).Delete(&models.Participant{}).Error; err != nil {
			return storeErr("delete participants", err)
		}
		if err := tx.Where("assembly_id = ?", id).Delete(&models.AgendaItem{}).Error; err != nil {
			return storeErr("delete agenda items", err)
		}
		if err := tx.Delete(&models.Assembly{}, id).Error; err != nil {
			return storeErr("delete assembly", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info().Uint("assembly_id", id).Str("actor", actor).Msg("assembly deleted")
	s.record(tenantID, id, "Assembly", "Delete", actor, "Assembly deleted", nil)
	return nil
}

// GenerateCheckInOTP issues a new check-in code, retiring the previous one
// in the same statement. Repeatable while the assembly is IN_PROGRESS.
func (s *AssemblyService) GenerateCheckInOTP(ctx context.Context, tenantID string, id uint) (*OTPView, error) {
	now := s.now()
	otp, err := s.otp.Generate(now)
	if err != nil {
		return nil, storeErr("generate check-in code", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Assembly{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, models.AssemblyInProgress).
		Updates(otp.Columns(models.CheckInOTPPrefix))
	if result.Error != nil {
		return nil, storeErr("store check-in code", result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.Get(ctx, tenantID, id); err != nil {
			return nil, err
		}
		return nil, ErrAssemblyNotInProgress
	}

	s.log.Info().Uint("assembly_id", id).Time("expires_at", *otp.ExpiresAt).Msg("check-in code issued")
	s.events.Publish(AssemblyEvent{AssemblyID: id, Type: EventOTPRotated, Scope: "checkin", OTPExpiresAt: expiryString(otp)})
	return newOTPView(otp, now, true), nil
}

// CurrentCheckInOTP returns the active check-in code, or nil when none is
// issued or it has expired
func (s *AssemblyService) CurrentCheckInOTP(ctx context.Context, tenantID string, id uint) (*OTPView, error) {
	a, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssemblyInProgress {
		return nil, ErrAssemblyNotInProgress
	}
	return newOTPView(a.CheckInOTP, s.now(), true), nil
}

// RotateCheckInOTPs regenerates the check-in code of every IN_PROGRESS
// assembly that currently has one issued, and returns how many rotated.
func (s *AssemblyService) RotateCheckInOTPs(ctx context.Context) (int, error) {
	var assemblies []models.Assembly
	if err := s.db.WithContext(ctx).
		Where("status = ? AND checkin_otp_code IS NOT NULL", models.AssemblyInProgress).
		Find(&assemblies).Error; err != nil {
		return 0, storeErr("list assemblies for rotation", err)
	}

	rotated := 0
	for _, a := range assemblies {
		if _, err := s.GenerateCheckInOTP(ctx, a.TenantID, a.ID); err != nil {
			if KindOf(err) == KindTransient {
				return rotated, err
			}
			continue
		}
		rotated++
	}
	return rotated, nil
}

// DisplaySnapshot is everything a projector or dashboard shows at once
type DisplaySnapshot struct {
	Assembly    *models.Assembly   `json:"assembly"`
	Quorum      *QuorumReport      `json:"quorum"`
	CurrentItem *models.AgendaItem `json:"current_item,omitempty"`
	Summary     *VoteSummary       `json:"summary,omitempty"`
	CheckInOTP  *OTPView           `json:"checkin_otp,omitempty"`
	VotingOTP   *OTPView           `json:"voting_otp,omitempty"`
}

// Display builds the live snapshot of an assembly. Codes are only included
// for staff screens; the public view carries expiry times alone.
func (s *AssemblyService) Display(ctx context.Context, tenantID string, id uint, withCodes bool) (*DisplaySnapshot, error) {
	a, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := s.now()

	quorum, err := s.attendance.Quorum(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	snap := &DisplaySnapshot{
		Assembly:   a,
		Quorum:     quorum,
		CheckInOTP: newOTPView(a.CheckInOTP, now, withCodes),
	}

	var item models.AgendaItem
	err = s.db.WithContext(ctx).
		Where("assembly_id = ? AND status = ?", id, models.AgendaVoting).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return snap, nil
	}
	if err != nil {
		return nil, storeErr("load voting item", err)
	}

	summary, err := tally(s.db.WithContext(ctx), item.ID)
	if err != nil {
		return nil, err
	}
	snap.CurrentItem = &item
	snap.Summary = summary
	snap.VotingOTP = newOTPView(item.VotingOTP, now, withCodes)
	return snap, nil
}
