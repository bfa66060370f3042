package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/huangang/condovote/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testTenant = "condo-a"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// setupTestDB opens a migrated sqlite database private to t. A single
// connection serializes transactions the way row locks do on a server.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "condovote.db")
	db, err := models.Open(sqlite.Open(path+"?_busy_timeout=5000"), gormlogger.Default.LogMode(gormlogger.Silent))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type testEnv struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	clock  *fakeClock
	events *EventHub
	store  *LocalStorage
	engine *Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := setupTestDB(t)
	store, err := NewLocalStorage(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	clock := &fakeClock{now: time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)}
	events := NewEventHub()
	return &testEnv{
		t:      t,
		ctx:    context.Background(),
		db:     db,
		clock:  clock,
		events: events,
		store:  store,
		engine: NewEngine(db, Options{
			Clock:     clock.Now,
			OTPWindow: 4 * time.Minute,
			Events:    events,
			Storage:   store,
		}),
	}
}

func (te *testEnv) unit(identifier string, weight float64) *models.Unit {
	te.t.Helper()
	u, err := te.engine.Units.Create(te.ctx, testTenant, &CreateUnitRequest{Identifier: identifier, VotingWeight: weight})
	if err != nil {
		te.t.Fatalf("create unit %s: %v", identifier, err)
	}
	return u
}

// liveAssembly schedules and starts an assembly with the given agenda
func (te *testEnv) liveAssembly(titles ...string) (*models.Assembly, []models.AgendaItem) {
	te.t.Helper()
	a := te.scheduledAssembly(titles...)
	if _, err := te.engine.Assemblies.Start(te.ctx, testTenant, a.ID, "syndic"); err != nil {
		te.t.Fatalf("start assembly: %v", err)
	}
	items, err := te.engine.Agenda.List(te.ctx, testTenant, a.ID)
	if err != nil {
		te.t.Fatalf("list agenda: %v", err)
	}
	return a, items
}

func (te *testEnv) scheduledAssembly(titles ...string) *models.Assembly {
	te.t.Helper()
	req := &ScheduleAssemblyRequest{
		Title:       "Ordinary General Assembly",
		ScheduledAt: te.clock.Now().Add(time.Hour),
	}
	for _, title := range titles {
		req.Agenda = append(req.Agenda, AgendaItemInput{Title: title})
	}
	a, err := te.engine.Assemblies.Schedule(te.ctx, testTenant, "syndic", req)
	if err != nil {
		te.t.Fatalf("schedule assembly: %v", err)
	}
	return a
}

func (te *testEnv) checkInCode(assemblyID uint) string {
	te.t.Helper()
	view, err := te.engine.Assemblies.GenerateCheckInOTP(te.ctx, testTenant, assemblyID)
	if err != nil {
		te.t.Fatalf("generate check-in code: %v", err)
	}
	return view.Code
}

// checkIn admits unitID as an owner, or as a proxy when proxyName is set
func (te *testEnv) checkIn(a *models.Assembly, unitID uint, proxyName string) *CheckInResult {
	te.t.Helper()
	res, err := te.engine.Attendance.CheckIn(te.ctx, &CheckInRequest{
		AccessToken: a.AccessToken,
		UnitID:      unitID,
		OTP:         te.checkInCode(a.ID),
		ProxyName:   proxyName,
	})
	if err != nil {
		te.t.Fatalf("check in unit %d: %v", unitID, err)
	}
	return res
}

// openVoting starts voting on itemID and returns the voting code
func (te *testEnv) openVoting(itemID uint) string {
	te.t.Helper()
	if _, err := te.engine.Agenda.StartVoting(te.ctx, testTenant, itemID, "syndic"); err != nil {
		te.t.Fatalf("start voting on %d: %v", itemID, err)
	}
	view, err := te.engine.Agenda.CurrentVotingOTP(te.ctx, testTenant, itemID)
	if err != nil || view == nil {
		te.t.Fatalf("current voting code: %v", err)
	}
	return view.Code
}

func (te *testEnv) cast(p *models.Participant, itemID uint, code, choice string) (*models.Vote, error) {
	return te.engine.Votes.Cast(te.ctx, p, &CastRequest{
		AgendaItemID:     itemID,
		OTP:              code,
		Choice:           choice,
		SessionTokenHash: sessionHash(p),
	})
}

// sessionHash is the token hash p was loaded with
func sessionHash(p *models.Participant) string {
	if p.SessionTokenHash == nil {
		return ""
	}
	return *p.SessionTokenHash
}

func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func assertErr(t *testing.T, err, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Fatalf("error = %v, expected %v", err, expected)
	}
}

func approxEqual(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestNewEngine_Defaults(t *testing.T) {
	db := setupTestDB(t)
	e := NewEngine(db, Options{})

	if e.Units == nil || e.Assemblies == nil || e.Agenda == nil || e.Attendance == nil ||
		e.Proxies == nil || e.Votes == nil || e.Sessions == nil || e.Audit == nil {
		t.Fatal("NewEngine() left a service unset")
	}
	if e.Votes.otp.Window() != DefaultOTPWindow {
		t.Errorf("otp window = %v, expected %v", e.Votes.otp.Window(), DefaultOTPWindow)
	}
	if e.Proxies.policy.MaxBytes != 5<<20 {
		t.Errorf("upload limit = %d, expected %d", e.Proxies.policy.MaxBytes, 5<<20)
	}
	if loc := e.Votes.now().Location(); loc != time.UTC {
		t.Errorf("clock location = %v, expected UTC", loc)
	}
}

func TestNewOTPView(t *testing.T) {
	now := time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC)
	otp, _ := NewOTPGenerator(time.Minute).Generate(now)

	view := newOTPView(otp, now.Add(15*time.Second), true)
	if view == nil {
		t.Fatal("newOTPView() = nil for an active code")
	}
	if view.Code != *otp.Code {
		t.Errorf("Code = %q, expected %q", view.Code, *otp.Code)
	}
	if view.SecondsLeft != 45 {
		t.Errorf("SecondsLeft = %d, expected 45", view.SecondsLeft)
	}

	if v := newOTPView(otp, now, false); v == nil || v.Code != "" {
		t.Errorf("public view should carry no code, got %+v", v)
	}
	if v := newOTPView(otp, now.Add(time.Minute+time.Second), true); v != nil {
		t.Errorf("expired code should have no view, got %+v", v)
	}
	if v := newOTPView(models.OTP{}, now, true); v != nil {
		t.Errorf("missing code should have no view, got %+v", v)
	}
}
