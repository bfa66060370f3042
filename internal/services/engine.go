package services

import (
	"errors"
	"time"

	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/pkg/logger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Options configures the voting engine collaborators. Zero values are
// usable: wall clock, default OTP window, no events, no metrics, no queue.
type Options struct {
	Clock     func() time.Time
	OTPWindow time.Duration
	Events    *EventHub
	Metrics   *Metrics
	Queue     TaskQueue
	Storage   FileStorage
	Upload    UploadPolicy
}

// Engine groups the services of the live assembly voting engine
type Engine struct {
	Units      *UnitService
	Assemblies *AssemblyService
	Agenda     *AgendaService
	Attendance *AttendanceService
	Proxies    *ProxyService
	Votes      *VoteService
	Sessions   *SessionIssuer
	Audit      *SystemLogService
}

// env is the state shared by the engine services
type env struct {
	db      *gorm.DB
	now     func() time.Time
	otp     *OTPGenerator
	events  *EventHub
	metrics *Metrics
	queue   TaskQueue
	audit   *SystemLogService
	log     zerolog.Logger
}

func NewEngine(db *gorm.DB, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	e := &env{
		db:      db,
		now:     func() time.Time { return opts.Clock().UTC() },
		otp:     NewOTPGenerator(opts.OTPWindow),
		events:  opts.Events,
		metrics: opts.Metrics,
		queue:   opts.Queue,
		audit:   NewSystemLogService(db),
		log:     logger.With("engine"),
	}

	sessions := NewSessionIssuer(db)
	attendance := &AttendanceService{env: e, sessions: sessions}
	return &Engine{
		Units:      &UnitService{env: e},
		Assemblies: &AssemblyService{env: e, attendance: attendance},
		Agenda:     &AgendaService{env: e},
		Attendance: attendance,
		Proxies:    &ProxyService{env: e, attendance: attendance, storage: opts.Storage, policy: opts.Upload.withDefaults()},
		Votes:      &VoteService{env: e},
		Sessions:   sessions,
		Audit:      e.audit,
	}
}

// Row lock strengths
const (
	lockNone   = ""
	lockShare  = "SHARE"
	lockUpdate = "UPDATE"
)

func withLock(tx *gorm.DB, strength string) *gorm.DB {
	if strength == lockNone {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: strength})
}

// loadAssembly reads an assembly of tenantID. Assemblies of other tenants
// are reported as not found.
func loadAssembly(tx *gorm.DB, tenantID string, id uint, lock string) (*models.Assembly, error) {
	var a models.Assembly
	err := withLock(tx, lock).Where("id = ? AND tenant_id = ?", id, tenantID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAssemblyNotFound
	}
	if err != nil {
		return nil, storeErr("load assembly", err)
	}
	return &a, nil
}

func loadAgendaItem(tx *gorm.DB, tenantID string, id uint, lock string) (*models.AgendaItem, error) {
	var item models.AgendaItem
	err := withLock(tx, lock).Where("id = ? AND tenant_id = ?", id, tenantID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAgendaItemNotFound
	}
	if err != nil {
		return nil, storeErr("load agenda item", err)
	}
	return &item, nil
}

func loadParticipant(tx *gorm.DB, tenantID string, id uint, lock string) (*models.Participant, error) {
	var p models.Participant
	err := withLock(tx, lock).Where("id = ? AND tenant_id = ?", id, tenantID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrParticipantNotFound
	}
	if err != nil {
		return nil, storeErr("load participant", err)
	}
	return &p, nil
}

// requireInProgress loads the assembly under a shared lock so that a
// concurrent finish cannot commit until the caller's transaction ends
func requireInProgress(tx *gorm.DB, tenantID string, assemblyID uint) (*models.Assembly, error) {
	a, err := loadAssembly(tx, tenantID, assemblyID, lockShare)
	if err != nil {
		return nil, err
	}
	if a.Status != models.AssemblyInProgress {
		return nil, ErrAssemblyNotInProgress
	}
	return a, nil
}

func (e *env) record(tenantID string, assemblyID uint, module, action, actor, message string, extra interface{}) {
	id := assemblyID
	e.audit.Record(AuditEntry{
		TenantID:   tenantID,
		Module:     module,
		Action:     action,
		Message:    message,
		Actor:      actor,
		AssemblyID: &id,
		Extra:      extra,
	})
}

// OTPView is the display form of an active one-time code
type OTPView struct {
	Code        string    `json:"code,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	SecondsLeft int       `json:"seconds_left"`
}

func newOTPView(otp models.OTP, now time.Time, withCode bool) *OTPView {
	if !otp.Active() || now.After(*otp.ExpiresAt) {
		return nil
	}
	v := &OTPView{
		ExpiresAt:   *otp.ExpiresAt,
		SecondsLeft: int(otp.ExpiresAt.Sub(now) / time.Second),
	}
	if otp.GeneratedAt != nil {
		v.GeneratedAt = *otp.GeneratedAt
	}
	if withCode {
		v.Code = *otp.Code
	}
	return v
}

func expiryString(otp models.OTP) *string {
	if otp.ExpiresAt == nil {
		return nil
	}
	s := otp.ExpiresAt.Format(time.RFC3339)
	return &s
}
