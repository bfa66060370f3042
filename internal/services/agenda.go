package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

// AgendaService owns the agenda item lifecycle PENDING -> VOTING -> CLOSED
// and the voting code of the item being voted.
type AgendaService struct {
	*env
}

// AddItem appends an agenda item while the assembly is SCHEDULED or IN_PROGRESS
func (s *AgendaService) AddItem(ctx context.Context, tenantID string, assemblyID uint, in *AgendaItemInput) (*models.AgendaItem, error) {
	if err := normalizeAgendaInput(in); err != nil {
		return nil, err
	}

	var item *models.AgendaItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := loadAssembly(tx, tenantID, assemblyID, lockUpdate)
		if err != nil {
			return err
		}
		if a.IsTerminal() {
			return ErrAssemblyClosed
		}

		var maxOrder int
		if err := tx.Model(&models.AgendaItem{}).
			Where("assembly_id = ?", assemblyID).
			Select("COALESCE(MAX(order_index), 0)").
			Scan(&maxOrder).Error; err != nil {
			return storeErr("read agenda order", err)
		}

		item = &models.AgendaItem{
			TenantID:       tenantID,
			AssemblyID:     assemblyID,
			OrderIndex:     maxOrder + 1,
			Title:          in.Title,
			Description:    in.Description,
			Status:         models.AgendaPending,
			RequiresQuorum: in.RequiresQuorum,
			QuorumType:     in.QuorumType,
		}
		if err := tx.Create(item).Error; err != nil {
			return storeErr("create agenda item", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// List returns the agenda of an assembly in order
func (s *AgendaService) List(ctx context.Context, tenantID string, assemblyID uint) ([]models.AgendaItem, error) {
	db := s.db.WithContext(ctx)
	if _, err := loadAssembly(db, tenantID, assemblyID, lockNone); err != nil {
		return nil, err
	}
	var items []models.AgendaItem
	if err := db.Where("assembly_id = ?", assemblyID).Order("order_index").Find(&items).Error; err != nil {
		return nil, storeErr("list agenda items", err)
	}
	return items, nil
}

func (s *AgendaService) Get(ctx context.Context, tenantID string, id uint) (*models.AgendaItem, error) {
	return loadAgendaItem(s.db.WithContext(ctx), tenantID, id, lockNone)
}

// CurrentVoting returns the item of the assembly open for voting, or nil
func (s *AgendaService) CurrentVoting(ctx context.Context, tenantID string, assemblyID uint) (*models.AgendaItem, error) {
	var item models.AgendaItem
	err := s.db.WithContext(ctx).
		Where("assembly_id = ? AND tenant_id = ? AND status = ?", assemblyID, tenantID, models.AgendaVoting).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("load voting item", err)
	}
	return &item, nil
}

// StartVoting opens an item for voting with a fresh voting code. The parent
// assembly row is locked for the check-and-flip, so two items of the same
// assembly can never both reach VOTING.
func (s *AgendaService) StartVoting(ctx context.Context, tenantID string, id uint, actor string) (*models.AgendaItem, error) {
	now := s.now()
	otp, err := s.otp.Generate(now)
	if err != nil {
		return nil, storeErr("generate voting code", err)
	}

	var assemblyID uint
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := loadAgendaItem(tx, tenantID, id, lockNone)
		if err != nil {
			return err
		}
		assemblyID = item.AssemblyID

		a, err := loadAssembly(tx, tenantID, item.AssemblyID, lockUpdate)
		if err != nil {
			return err
		}
		if a.Status != models.AssemblyInProgress {
			return ErrAssemblyNotInProgress
		}

		var siblings int64
		if err := tx.Model(&models.AgendaItem{}).
			Where("assembly_id = ? AND status = ? AND id <> ?", item.AssemblyID, models.AgendaVoting, id).
			Count(&siblings).Error; err != nil {
			return storeErr("count voting items", err)
		}
		if siblings > 0 {
			return ErrAnotherItemVoting
		}

		updates := otp.Columns(models.VotingOTPPrefix)
		updates["status"] = models.AgendaVoting
		updates["voting_started_at"] = now
		result := tx.Model(&models.AgendaItem{}).
			Where("id = ? AND status = ?", id, models.AgendaPending).
			Updates(updates)
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrAnotherItemVoting
		}
		if result.Error != nil {
			return storeErr("open voting", result.Error)
		}
		if result.RowsAffected == 0 {
			if item.Status == models.AgendaVoting {
				return ErrAlreadyVoting
			}
			return ErrAgendaItemClosed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.transition("agenda_item", models.AgendaVoting)
	s.log.Info().Uint("assembly_id", assemblyID).Uint("agenda_item_id", id).Str("actor", actor).Msg("voting opened")
	s.record(tenantID, assemblyID, "Agenda", "StartVoting", actor, fmt.Sprintf("Voting opened on agenda item %d", id), nil)
	s.events.Publish(AssemblyEvent{
		AssemblyID:   assemblyID,
		Type:         EventVotingOpened,
		AgendaItemID: id,
		Scope:        "voting",
		OTPExpiresAt: expiryString(otp),
	})
	return s.Get(ctx, tenantID, id)
}

// CloseVoting freezes the tally. The flip is a conditional update that
// waits for in-flight ballots holding the item row, so no vote can commit
// after the close does.
func (s *AgendaService) CloseVoting(ctx context.Context, tenantID string, id uint, actor string) (*models.AgendaItem, error) {
	db := s.db.WithContext(ctx)
	item, err := loadAgendaItem(db, tenantID, id, lockNone)
	if err != nil {
		return nil, err
	}

	updates := models.OTP{}.Columns(models.VotingOTPPrefix)
	updates["status"] = models.AgendaClosed
	updates["voting_ended_at"] = s.now()
	result := db.Model(&models.AgendaItem{}).
		Where("id = ? AND status = ?", id, models.AgendaVoting).
		Updates(updates)
	if result.Error != nil {
		return nil, storeErr("close voting", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotVoting
	}

	s.metrics.transition("agenda_item", models.AgendaClosed)
	s.log.Info().Uint("assembly_id", item.AssemblyID).Uint("agenda_item_id", id).Str("actor", actor).Msg("voting closed")
	s.record(tenantID, item.AssemblyID, "Agenda", "CloseVoting", actor, fmt.Sprintf("Voting closed on agenda item %d", id), nil)

	task := &ResultTask{TenantID: tenantID, AssemblyID: item.AssemblyID, AgendaItemID: id}
	if s.queue != nil {
		if err := s.queue.Enqueue(task); err != nil {
			s.log.Error().Err(err).Uint("agenda_item_id", id).Msg("failed to enqueue result task, recording inline")
			if err := s.RecordResult(ctx, task); err != nil {
				s.log.Error().Err(err).Uint("agenda_item_id", id).Msg("failed to record result")
			}
		}
	} else if err := s.RecordResult(ctx, task); err != nil {
		s.log.Error().Err(err).Uint("agenda_item_id", id).Msg("failed to record result")
	}

	summary, err := tally(db, id)
	if err == nil {
		s.events.Publish(AssemblyEvent{AssemblyID: item.AssemblyID, Type: EventVotingClosed, AgendaItemID: id, Summary: summary})
	}
	return s.Get(ctx, tenantID, id)
}

// RegenerateVotingOTP replaces the voting code of an item being voted
func (s *AgendaService) RegenerateVotingOTP(ctx context.Context, tenantID string, id uint) (*OTPView, error) {
	now := s.now()
	otp, err := s.otp.Generate(now)
	if err != nil {
		return nil, storeErr("generate voting code", err)
	}

	db := s.db.WithContext(ctx)
	item, err := loadAgendaItem(db, tenantID, id, lockNone)
	if err != nil {
		return nil, err
	}
	result := db.Model(&models.AgendaItem{}).
		Where("id = ? AND status = ?", id, models.AgendaVoting).
		Updates(otp.Columns(models.VotingOTPPrefix))
	if result.Error != nil {
		return nil, storeErr("store voting code", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotVoting
	}

	s.log.Info().Uint("agenda_item_id", id).Time("expires_at", *otp.ExpiresAt).Msg("voting code regenerated")
	s.events.Publish(AssemblyEvent{
		AssemblyID:   item.AssemblyID,
		Type:         EventOTPRotated,
		AgendaItemID: id,
		Scope:        "voting",
		OTPExpiresAt: expiryString(otp),
	})
	return newOTPView(otp, now, true), nil
}

// CurrentVotingOTP returns the active voting code, or nil once it expired
func (s *AgendaService) CurrentVotingOTP(ctx context.Context, tenantID string, id uint) (*OTPView, error) {
	item, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.AgendaVoting {
		return nil, ErrNotVoting
	}
	return newOTPView(item.VotingOTP, s.now(), true), nil
}

// FormatResult renders the frozen tally as the agenda item result text
func FormatResult(sum *VoteSummary) string {
	return fmt.Sprintf("YES: %d (weight %.4f); NO: %d (weight %.4f); ABSTENTION: %d (weight %.4f); TOTAL: %d (weight %.4f)",
		sum.Yes, sum.WeightedYes,
		sum.No, sum.WeightedNo,
		sum.Abstention, sum.WeightedAbstention,
		sum.Total, sum.WeightedTotal)
}

// RecordResult writes the result text of a closed agenda item. It is the
// processor of TaskTypeRecordResult and safe to run more than once.
func (s *AgendaService) RecordResult(ctx context.Context, task *ResultTask) error {
	db := s.db.WithContext(ctx)
	item, err := loadAgendaItem(db, task.TenantID, task.AgendaItemID, lockNone)
	if err != nil {
		return err
	}
	if item.Status != models.AgendaClosed {
		return ErrResultNotReady
	}

	summary, err := tally(db, item.ID)
	if err != nil {
		return err
	}
	result := FormatResult(summary)
	if err := db.Model(&models.AgendaItem{}).Where("id = ?", item.ID).Update("result", result).Error; err != nil {
		return storeErr("store result", err)
	}

	s.log.Info().Uint("agenda_item_id", item.ID).Str("result", result).Msg("agenda result recorded")
	s.events.Publish(AssemblyEvent{AssemblyID: item.AssemblyID, Type: EventResultRecorded, AgendaItemID: item.ID, Summary: summary})
	return nil
}
