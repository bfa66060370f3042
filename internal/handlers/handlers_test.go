package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/internal/utils"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const testTenant = "condo-a"

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("handler-test-secret")
}

type apiEnv struct {
	t      *testing.T
	db     *gorm.DB
	hub    *services.EventHub
	engine *services.Engine
	router *gin.Engine
	staff  string
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
	Data    json.RawMessage `json:"data"`
}

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

func staffToken(t *testing.T, tenantID string) string {
	t.Helper()
	token, err := utils.GenerateToken(1, "syndic", middleware.RoleSyndic, tenantID, 1)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	db := setupTestDB(t)
	store, err := services.NewLocalStorage(t.TempDir(), "/uploads")
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	hub := services.NewEventHub()
	engine := services.NewEngine(db, services.Options{Events: hub, Storage: store})

	r := gin.New()
	assemblies := NewAssemblyHandler(engine)
	agenda := NewAgendaHandler(engine)
	participants := NewParticipantHandler(engine)
	units := NewUnitHandler(engine)
	public := NewPublicHandler(engine)
	sse := NewSSEHandler(engine, hub)

	r.GET("/health", NewHealthHandler(db, hub, nil).CheckHealth)

	pub := r.Group("/api/public/assemblies/:token")
	pub.GET("", public.Display)
	pub.POST("/check-in", public.CheckIn)
	pub.GET("/events", sse.StreamAssemblyEvents)

	me := r.Group("/api/participant", middleware.ParticipantRequired(engine.Sessions))
	me.GET("/me", public.Me)
	me.POST("/leave", public.Leave)
	me.POST("/proxy-document", public.UploadProxyDocument)
	me.POST("/agenda/:id/vote", public.Cast)
	me.GET("/agenda/:id/vote", public.MyVote)

	api := r.Group("/api", middleware.AuthRequired(), middleware.SyndicRequired())
	api.GET("/units", units.List)
	api.POST("/units", units.Create)
	api.GET("/units/:id", units.GetByID)
	api.PUT("/units/:id", units.Update)
	api.GET("/assemblies", assemblies.List)
	api.POST("/assemblies", assemblies.Schedule)
	api.GET("/assemblies/:id", assemblies.GetByID)
	api.DELETE("/assemblies/:id", assemblies.Delete)
	api.POST("/assemblies/:id/start", assemblies.Start)
	api.POST("/assemblies/:id/finish", assemblies.Finish)
	api.POST("/assemblies/:id/cancel", assemblies.Cancel)
	api.GET("/assemblies/:id/access-token", assemblies.AccessToken)
	api.GET("/assemblies/:id/checkin-otp", assemblies.CurrentCheckInOTP)
	api.POST("/assemblies/:id/checkin-otp", assemblies.GenerateCheckInOTP)
	api.GET("/assemblies/:id/display", assemblies.Display)
	api.GET("/assemblies/:id/quorum", assemblies.Quorum)
	api.GET("/assemblies/:id/agenda", agenda.List)
	api.POST("/assemblies/:id/agenda", agenda.AddItem)
	api.GET("/assemblies/:id/participants", participants.List)
	api.GET("/assemblies/:id/pending-proxies", participants.PendingProxies)
	api.GET("/agenda/:id", agenda.GetByID)
	api.POST("/agenda/:id/start-voting", agenda.StartVoting)
	api.POST("/agenda/:id/close-voting", agenda.CloseVoting)
	api.GET("/agenda/:id/voting-otp", agenda.CurrentVotingOTP)
	api.POST("/agenda/:id/voting-otp", agenda.RegenerateVotingOTP)
	api.GET("/agenda/:id/summary", agenda.Summary)
	api.GET("/agenda/:id/votes", agenda.Votes)
	api.GET("/participants/:id", participants.GetByID)
	api.POST("/participants/:id/approve", participants.Approve)
	api.POST("/participants/:id/reject", participants.Reject)
	api.POST("/participants/:id/leave", participants.MarkLeft)
	api.PATCH("/participants/:id/voting-weight", participants.SetVotingWeight)
	api.GET("/system-logs", NewSystemLogHandler(engine.Audit).List)

	return &apiEnv{t: t, db: db, hub: hub, engine: engine, router: r, staff: staffToken(t, testTenant)}
}

// call sends a JSON request. auth is a bearer token for staff routes or
// "session:<token>" for participant routes.
func (e *apiEnv) call(method, path, auth string, body interface{}) (int, envelope) {
	e.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	e.authorize(req, auth)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w.Code, decode(e.t, w)
}

func (e *apiEnv) authorize(req *http.Request, auth string) {
	const prefix = "session:"
	switch {
	case auth == "":
	case len(auth) > len(prefix) && auth[:len(prefix)] == prefix:
		req.Header.Set(middleware.SessionHeader, auth[len(prefix):])
	default:
		req.Header.Set("Authorization", "Bearer "+auth)
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if w.Body.Len() == 0 {
		return env
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return env
}

func into(t *testing.T, env envelope, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		t.Fatalf("decode data %s: %v", env.Data, err)
	}
}

func (e *apiEnv) mustCall(method, path, auth string, body interface{}, expected int, out interface{}) envelope {
	e.t.Helper()
	code, env := e.call(method, path, auth, body)
	if code != expected {
		e.t.Fatalf("%s %s = %d (%s: %s), expected %d", method, path, code, env.Reason, env.Message, expected)
	}
	if out != nil {
		into(e.t, env, out)
	}
	return env
}

// liveAssembly registers units, schedules an assembly with the given agenda
// and starts it.
func (e *apiEnv) liveAssembly(weights []float64, titles ...string) (models.Assembly, []models.AgendaItem, []models.Unit, string) {
	e.t.Helper()
	var units []models.Unit
	for i, w := range weights {
		var u models.Unit
		e.mustCall("POST", "/api/units", e.staff, gin.H{"identifier": fmt.Sprintf("A-%d", 101+i), "voting_weight": w}, http.StatusCreated, &u)
		units = append(units, u)
	}

	agenda := make([]gin.H, 0, len(titles))
	for _, title := range titles {
		agenda = append(agenda, gin.H{"title": title})
	}
	var a models.Assembly
	e.mustCall("POST", "/api/assemblies", e.staff, gin.H{
		"title":        "Ordinary assembly",
		"scheduled_at": "2026-03-14T19:00:00Z",
		"agenda":       agenda,
	}, http.StatusCreated, &a)
	e.mustCall("POST", fmt.Sprintf("/api/assemblies/%d/start", a.ID), e.staff, nil, http.StatusOK, &a)

	var detail struct {
		Agenda []models.AgendaItem `json:"agenda"`
	}
	e.mustCall("GET", fmt.Sprintf("/api/assemblies/%d", a.ID), e.staff, nil, http.StatusOK, &detail)

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	e.mustCall("GET", fmt.Sprintf("/api/assemblies/%d/access-token", a.ID), e.staff, nil, http.StatusOK, &tok)
	return a, detail.Agenda, units, tok.AccessToken
}

func (e *apiEnv) checkInCode(assemblyID uint) string {
	e.t.Helper()
	var otp services.OTPView
	e.mustCall("GET", fmt.Sprintf("/api/assemblies/%d/checkin-otp", assemblyID), e.staff, nil, http.StatusOK, &otp)
	return otp.Code
}

func (e *apiEnv) checkIn(assemblyID uint, accessToken string, unitID uint, proxyName string) services.CheckInResult {
	e.t.Helper()
	var result services.CheckInResult
	e.mustCall("POST", "/api/public/assemblies/"+accessToken+"/check-in", "", gin.H{
		"unit_id":    unitID,
		"otp":        e.checkInCode(assemblyID),
		"proxy_name": proxyName,
	}, http.StatusOK, &result)
	return result
}

func (e *apiEnv) openVoting(itemID uint) string {
	e.t.Helper()
	e.mustCall("POST", fmt.Sprintf("/api/agenda/%d/start-voting", itemID), e.staff, nil, http.StatusOK, nil)
	var otp services.OTPView
	e.mustCall("GET", fmt.Sprintf("/api/agenda/%d/voting-otp", itemID), e.staff, nil, http.StatusOK, &otp)
	return otp.Code
}

func multipartUpload(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write(content)
	mw.Close()
	return &buf, mw.FormDataContentType()
}
