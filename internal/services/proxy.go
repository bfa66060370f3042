package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

// UploadPolicy bounds proxy document uploads
type UploadPolicy struct {
	MaxBytes     int64
	AllowedTypes []string
}

func (p UploadPolicy) withDefaults() UploadPolicy {
	if p.MaxBytes <= 0 {
		p.MaxBytes = 5 << 20
	}
	if len(p.AllowedTypes) == 0 {
		p.AllowedTypes = []string{"application/pdf", "image/jpeg", "image/png"}
	}
	return p
}

func (p UploadPolicy) allows(contentType string) bool {
	for _, t := range p.AllowedTypes {
		if strings.EqualFold(t, contentType) {
			return true
		}
	}
	return false
}

// UploadedFile is a proxy document as received from the participant
type UploadedFile struct {
	Name         string
	DeclaredType string
	Reader       io.Reader
}

// ProxyService is the approval workflow of proxy participants:
// PENDING -> APPROVED | REJECTED, and REJECTED -> PENDING on re-upload.
type ProxyService struct {
	*env
	attendance *AttendanceService
	storage    FileStorage
	policy     UploadPolicy
}

// Approve accepts a proxy credential. Allowed from PENDING and REJECTED.
func (s *ProxyService) Approve(ctx context.Context, tenantID string, participantID uint, approver string) (*models.Participant, error) {
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
		if !p.IsProxy() {
			return ErrNotAProxy
		}
		if p.ApprovalStatus == models.ApprovalApproved {
			return ErrAlreadyApproved
		}

		now := s.now()
		result := tx.Model(&models.Participant{}).
			Where("id = ? AND approval_status IN ?", p.ID, []string{models.ApprovalPending, models.ApprovalRejected}).
			Updates(map[string]interface{}{
				"approval_status":  models.ApprovalApproved,
				"approved_by":      approver,
				"approved_at":      now,
				"rejected_by":      "",
				"rejection_reason": "",
			})
		if result.Error != nil {
			return storeErr("approve proxy", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyApproved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.proxyDecision("approved")
	s.log.Info().Uint("assembly_id", p.AssemblyID).Uint("participant_id", p.ID).Str("approver", approver).Msg("proxy approved")
	s.record(tenantID, p.AssemblyID, "Proxy", "Approve", approver,
		fmt.Sprintf("Proxy %q for unit %d approved", p.ProxyName, p.UnitID), nil)
	s.attendance.publishQuorum(ctx, tenantID, p.AssemblyID)
	return s.attendance.Participant(ctx, tenantID, p.ID)
}

// Reject refuses a pending proxy credential; reason is mandatory
func (s *ProxyService) Reject(ctx context.Context, tenantID string, participantID uint, approver, reason string) (*models.Participant, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
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
		if !p.IsProxy() {
			return ErrNotAProxy
		}
		switch p.ApprovalStatus {
		case models.ApprovalApproved:
			return ErrAlreadyApproved
		case models.ApprovalRejected:
			return ErrAlreadyRejected
		}

		result := tx.Model(&models.Participant{}).
			Where("id = ? AND approval_status = ?", p.ID, models.ApprovalPending).
			Updates(map[string]interface{}{
				"approval_status":  models.ApprovalRejected,
				"rejected_by":      approver,
				"rejection_reason": reason,
			})
		if result.Error != nil {
			return storeErr("reject proxy", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyRejected
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.proxyDecision("rejected")
	s.log.Info().Uint("assembly_id", p.AssemblyID).Uint("participant_id", p.ID).Str("approver", approver).Msg("proxy rejected")
	s.record(tenantID, p.AssemblyID, "Proxy", "Reject", approver,
		fmt.Sprintf("Proxy %q for unit %d rejected", p.ProxyName, p.UnitID), map[string]string{"reason": reason})
	return s.attendance.Participant(ctx, tenantID, p.ID)
}

// readDocument reads at most max bytes and checks the declared type against
// the allow-list and against the sniffed content
func (s *ProxyService) readDocument(file *UploadedFile) ([]byte, string, error) {
	declared, _, err := mime.ParseMediaType(file.DeclaredType)
	if err != nil || !s.policy.allows(declared) {
		return nil, "", ErrFileTypeNotAllowed
	}

	data, err := io.ReadAll(io.LimitReader(file.Reader, s.policy.MaxBytes+1))
	if err != nil {
		return nil, "", storeErr("read proxy document", err)
	}
	if int64(len(data)) > s.policy.MaxBytes {
		return nil, "", ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, "", ErrFileEmpty
	}
	if !mimetype.Detect(data).Is(declared) {
		return nil, "", ErrFileTypeNotAllowed
	}
	return data, declared, nil
}

// AttachDocument stores the proxy's own credential document. Uploading
// after a rejection puts the participant back in the approval queue.
func (s *ProxyService) AttachDocument(ctx context.Context, participant *models.Participant, file *UploadedFile) (*models.Participant, error) {
	db := s.db.WithContext(ctx)
	p, err := loadParticipant(db, participant.TenantID, participant.ID, lockNone)
	if err != nil {
		return nil, err
	}
	if _, err := requireInProgress(db, p.TenantID, p.AssemblyID); err != nil {
		return nil, err
	}
	if !p.IsProxy() {
		return nil, ErrNotAProxy
	}
	if p.ApprovalStatus == models.ApprovalApproved {
		return nil, ErrAlreadyApproved
	}

	data, contentType, err := s.readDocument(file)
	if err != nil {
		return nil, err
	}
	if s.storage == nil {
		return nil, errors.New("proxy document storage is not configured")
	}
	url, err := s.storage.Save(ctx, file.Name, bytes.NewReader(data), contentType)
	if err != nil {
		return nil, storeErr("store proxy document", err)
	}

	wasRejected := p.ApprovalStatus == models.ApprovalRejected
	err = db.Transaction(func(tx *gorm.DB) error {
		if _, err := requireInProgress(tx, p.TenantID, p.AssemblyID); err != nil {
			return err
		}
		result := tx.Model(&models.Participant{}).
			Where("id = ? AND approval_status <> ?", p.ID, models.ApprovalApproved).
			Updates(map[string]interface{}{
				"proxy_file_url":   url,
				"proxy_file_name":  file.Name,
				"approval_status":  models.ApprovalPending,
				"rejected_by":      "",
				"rejection_reason": "",
			})
		if result.Error != nil {
			return storeErr("attach proxy document", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyApproved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.proxyUpload()
	s.log.Info().Uint("participant_id", p.ID).Str("file", file.Name).Bool("resubmitted", wasRejected).Msg("proxy document attached")
	s.record(p.TenantID, p.AssemblyID, "Proxy", "Upload", ParticipantActor(p.ID),
		fmt.Sprintf("Proxy document %q uploaded for unit %d", file.Name, p.UnitID), nil)
	return s.attendance.Participant(ctx, p.TenantID, p.ID)
}
