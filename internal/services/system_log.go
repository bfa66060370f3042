package services

import (
	"encoding/json"
	"time"

	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/pkg/logger"
	"gorm.io/gorm"
)

// AuditEntry is one row to append to the audit trail
type AuditEntry struct {
	TenantID   string
	Module     string
	Action     string
	Message    string
	Actor      string
	AssemblyID *uint
	IP         string
	UserAgent  string
	Extra      interface{}
}

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

// LogInfo appends an info entry through the global logger database
func LogInfo(entry AuditEntry) {
	writeLog(globalDB, models.LogLevelInfo, entry)
}

func LogWarning(entry AuditEntry) {
	writeLog(globalDB, models.LogLevelWarning, entry)
}

func LogError(entry AuditEntry) {
	writeLog(globalDB, models.LogLevelError, entry)
}

func writeLog(db *gorm.DB, level string, entry AuditEntry) {
	if db == nil {
		return
	}

	var extraStr string
	if entry.Extra != nil {
		if b, err := json.Marshal(entry.Extra); err == nil {
			extraStr = string(b)
		}
	}

	row := &models.SystemLog{
		TenantID:   entry.TenantID,
		Level:      level,
		Module:     entry.Module,
		Action:     entry.Action,
		Message:    entry.Message,
		Actor:      entry.Actor,
		AssemblyID: entry.AssemblyID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Extra:      extraStr,
		CreatedAt:  time.Now(),
	}
	if err := db.Create(row).Error; err != nil {
		logger.Warn().Err(err).Str("module", entry.Module).Str("action", entry.Action).Msg("failed to write audit log")
	}
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

// Record appends entry at info level using this service's database
func (s *SystemLogService) Record(entry AuditEntry) {
	writeLog(s.db, models.LogLevelInfo, entry)
}

type SystemLogListRequest struct {
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Level      string `form:"level"`
	Module     string `form:"module"`
	Action     string `form:"action"`
	AssemblyID uint   `form:"assembly_id"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

func (s *SystemLogService) List(tenantID string, req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	var logs []models.SystemLog
	var total int64

	query := s.db.Model(&models.SystemLog{}).Where("tenant_id = ?", tenantID)

	if req.Level != "" {
		query = query.Where("level = ?", req.Level)
	}
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.Action != "" {
		query = query.Where("action LIKE ?", "%"+req.Action+"%")
	}
	if req.AssemblyID != 0 {
		query = query.Where("assembly_id = ?", req.AssemblyID)
	}
	if req.StartDate != "" {
		query = query.Where("created_at >= ?", req.StartDate)
	}
	if req.EndDate != "" {
		query = query.Where("created_at <= ?", req.EndDate+" 23:59:59")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC, id DESC").Find(&logs).Error; err != nil {
		return nil, err
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// CleanupOldLogs deletes entries older than retentionDays before now and
// returns the number removed. Entries of FINISHED assemblies are kept.
func (s *SystemLogService) CleanupOldLogs(now time.Time, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	finished := s.db.Model(&models.Assembly{}).Select("id").Where("status = ?", models.AssemblyFinished)
	result := s.db.
		Where("created_at < ?", cutoff).
		Where("assembly_id IS NULL OR assembly_id NOT IN (?)", finished).
		Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
