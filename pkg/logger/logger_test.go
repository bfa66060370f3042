package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func captureLogs(t *testing.T, lvl zerolog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	InitWriter(&buf, lvl, "json")
	t.Cleanup(func() { Init("info", "") })
	return &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestGinLogger_LogsRouteNotToken(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	r := gin.New()
	r.Use(GinLogger())
	r.GET("/api/public/assemblies/:token", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/public/assemblies/s3cret-token?otp=123456", nil)
	r.ServeHTTP(w, req)

	if strings.Contains(buf.String(), "s3cret-token") || strings.Contains(buf.String(), "123456") {
		t.Errorf("log leaked the access token or query: %s", buf.String())
	}
	entry := lastEntry(t, buf)
	if entry["route"] != "/api/public/assemblies/:token" {
		t.Errorf("route = %v, expected %q", entry["route"], "/api/public/assemblies/:token")
	}
	if entry["service"] != "condovote" {
		t.Errorf("service = %v, expected %q", entry["service"], "condovote")
	}
	if id := w.Header().Get(RequestIDHeader); id == "" || entry["request_id"] != id {
		t.Errorf("request_id = %v, header %q", entry["request_id"], id)
	}
}

func TestGinLogger_KeepsIncomingRequestID(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	r := gin.New()
	r.Use(GinLogger())
	r.GET("/units", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/units", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("%s = %q, expected %q", RequestIDHeader, got, "abc-123")
	}
	entry := lastEntry(t, buf)
	if entry["level"] != "warn" {
		t.Errorf("level = %v, expected %q", entry["level"], "warn")
	}
}

func TestGinLogger_HealthAtDebug(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	r := gin.New()
	r.Use(GinLogger())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	if buf.Len() != 0 {
		t.Errorf("health probe logged at info level: %s", buf.String())
	}
}

func TestGinRecovery(t *testing.T) {
	buf := captureLogs(t, zerolog.InfoLevel)
	r := gin.New()
	r.Use(GinLogger(), GinRecovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/boom", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Status = %d, expected %d", w.Code, http.StatusInternalServerError)
	}
	if !strings.Contains(w.Body.String(), `"reason":"internal_error"`) {
		t.Errorf("Body = %s, expected internal_error reason", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("panic not logged: %s", buf.String())
	}
}
