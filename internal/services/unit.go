package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/gorm"
)

// UnitService maintains the units whose ownership shares form the quorum
// denominator
type UnitService struct {
	*env
}

type CreateUnitRequest struct {
	Identifier   string  `json:"identifier" binding:"required"`
	OwnerName    string  `json:"owner_name"`
	VotingWeight float64 `json:"voting_weight"`
}

type UpdateUnitRequest struct {
	OwnerName    *string  `json:"owner_name"`
	VotingWeight *float64 `json:"voting_weight"`
	Active       *bool    `json:"active"`
}

func validWeight(w float64) bool {
	return w > 0 && !math.IsNaN(w) && !math.IsInf(w, 0)
}

func (s *UnitService) Create(ctx context.Context, tenantID string, req *CreateUnitRequest) (*models.Unit, error) {
	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		return nil, ErrIdentifierRequired
	}
	weight := req.VotingWeight
	if weight == 0 {
		weight = 1
	}
	if !validWeight(weight) {
		return nil, ErrInvalidWeight
	}

	unit := &models.Unit{
		TenantID:     tenantID,
		Identifier:   identifier,
		OwnerName:    req.OwnerName,
		VotingWeight: weight,
		Active:       true,
	}
	if err := s.db.WithContext(ctx).Create(unit).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUnitExists
		}
		return nil, storeErr("create unit", err)
	}
	return unit, nil
}

func (s *UnitService) Get(ctx context.Context, tenantID string, id uint) (*models.Unit, error) {
	var unit models.Unit
	err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&unit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnitNotFound
	}
	if err != nil {
		return nil, storeErr("load unit", err)
	}
	return &unit, nil
}

func (s *UnitService) List(ctx context.Context, tenantID string) ([]models.Unit, error) {
	var units []models.Unit
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("identifier").Find(&units).Error; err != nil {
		return nil, storeErr("list units", err)
	}
	return units, nil
}

// Update changes a unit. Participants already checked in keep the weight
// they were admitted with.
func (s *UnitService) Update(ctx context.Context, tenantID string, id uint, req *UpdateUnitRequest) (*models.Unit, error) {
	unit, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.OwnerName != nil {
		updates["owner_name"] = *req.OwnerName
	}
	if req.VotingWeight != nil {
		if !validWeight(*req.VotingWeight) {
			return nil, ErrInvalidWeight
		}
		updates["voting_weight"] = *req.VotingWeight
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return unit, nil
	}

	if err := s.db.WithContext(ctx).Model(&models.Unit{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return nil, storeErr("update unit", err)
	}
	return s.Get(ctx, tenantID, id)
}
