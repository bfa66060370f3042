package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/services"
)

func TestRespondError_Mapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		reason string
	}{
		{services.ErrAssemblyNotFound, http.StatusNotFound, "assembly_not_found"},
		{services.ErrAnotherItemVoting, http.StatusConflict, "another_item_voting"},
		{services.ErrOtpExpired, http.StatusUnprocessableEntity, "otp_expired"},
		{services.ErrOtpInvalid, http.StatusUnprocessableEntity, "otp_invalid"},
		{services.ErrSessionInvalid, http.StatusUnauthorized, "session_invalid"},
		{services.ErrNotEligible, http.StatusForbidden, "not_eligible"},
		{services.ErrAlreadyVoted, http.StatusConflict, "already_voted"},
		{services.ErrAlreadyApproved, http.StatusConflict, "already_approved"},
		{services.ErrAlreadyRejected, http.StatusConflict, "already_rejected"},
		{services.ErrNotAProxy, http.StatusBadRequest, "not_a_proxy"},
		{services.ErrFileTooLarge, http.StatusBadRequest, "file_too_large"},
		{fmt.Errorf("wrapped: %w", services.ErrVotingClosed), http.StatusConflict, "voting_closed"},
		{errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "transient"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", nil)

		respondError(c, tt.err)

		if w.Code != tt.status {
			t.Errorf("respondError(%v) status = %d, expected %d", tt.err, w.Code, tt.status)
		}
		if !strings.Contains(w.Body.String(), `"reason":"`+tt.reason+`"`) {
			t.Errorf("respondError(%v) body = %s, expected reason %q", tt.err, w.Body.String(), tt.reason)
		}
	}
}

func TestRespondError_HidesInfrastructureCause(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/", nil)

	respondError(c, errors.New("pq: password authentication failed"))

	if strings.Contains(w.Body.String(), "password") {
		t.Errorf("body leaks cause: %s", w.Body.String())
	}
}

func TestParamID(t *testing.T) {
	tests := []struct {
		value string
		ok    bool
	}{
		{"42", true},
		{"0", false},
		{"-1", false},
		{"abc", false},
		{"99999999999", false},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Params = gin.Params{{Key: "id", Value: tt.value}}

		id, ok := paramID(c, "id", "assembly")
		if ok != tt.ok {
			t.Errorf("paramID(%q) ok = %v, expected %v", tt.value, ok, tt.ok)
		}
		if ok && id != 42 {
			t.Errorf("paramID(%q) = %d, expected 42", tt.value, id)
		}
		if !ok && w.Code != http.StatusBadRequest {
			t.Errorf("paramID(%q) status = %d, expected %d", tt.value, w.Code, http.StatusBadRequest)
		}
	}
}
