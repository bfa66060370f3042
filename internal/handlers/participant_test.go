package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
)

func TestParticipantHandler_ApproveReject(t *testing.T) {
	e := newAPIEnv(t)
	a, _, units, token := e.liveAssembly([]float64{1, 1})
	owner := e.checkIn(a.ID, token, units[0].ID, "")
	proxy := e.checkIn(a.ID, token, units[1].ID, "Maria Souza")

	code, env := e.call("POST", fmt.Sprintf("/api/participants/%d/approve", owner.Participant.ID), e.staff, nil)
	if code != http.StatusBadRequest || env.Reason != "not_a_proxy" {
		t.Errorf("approve owner = %d %q, expected 400 not_a_proxy", code, env.Reason)
	}

	rejectPath := fmt.Sprintf("/api/participants/%d/reject", proxy.Participant.ID)
	code, env = e.call("POST", rejectPath, e.staff, RejectProxyRequest{Reason: " "})
	if code != http.StatusBadRequest || env.Reason != "reason_required" {
		t.Errorf("reject without reason = %d %q, expected 400 reason_required", code, env.Reason)
	}

	var rejected models.Participant
	e.mustCall("POST", rejectPath, e.staff, RejectProxyRequest{Reason: "signature missing"}, http.StatusOK, &rejected)
	if rejected.ApprovalStatus != models.ApprovalRejected || rejected.RejectedBy != "syndic" {
		t.Errorf("rejected = %q by %q", rejected.ApprovalStatus, rejected.RejectedBy)
	}
	code, env = e.call("POST", rejectPath, e.staff, RejectProxyRequest{Reason: "again"})
	if code != http.StatusConflict || env.Reason != "already_rejected" {
		t.Errorf("reject twice = %d %q, expected 409 already_rejected", code, env.Reason)
	}

	approvePath := fmt.Sprintf("/api/participants/%d/approve", proxy.Participant.ID)
	var approved models.Participant
	e.mustCall("POST", approvePath, e.staff, nil, http.StatusOK, &approved)
	if approved.ApprovalStatus != models.ApprovalApproved || approved.ApprovedBy != "syndic" {
		t.Errorf("approved = %q by %q", approved.ApprovalStatus, approved.ApprovedBy)
	}
	code, env = e.call("POST", approvePath, e.staff, nil)
	if code != http.StatusConflict || env.Reason != "already_approved" {
		t.Errorf("approve twice = %d %q, expected 409 already_approved", code, env.Reason)
	}

	var all []models.Participant
	e.mustCall("GET", fmt.Sprintf("/api/assemblies/%d/participants?approval_status=APPROVED", a.ID), e.staff, nil, http.StatusOK, &all)
	if len(all) != 2 {
		t.Errorf("approved participants = %d, expected 2", len(all))
	}

	var logs services.SystemLogListResponse
	e.mustCall("GET", fmt.Sprintf("/api/system-logs?module=Proxy&assembly_id=%d", a.ID), e.staff, nil, http.StatusOK, &logs)
	if logs.Total != 2 {
		t.Errorf("proxy audit entries = %d, expected 2 (reject, approve)", logs.Total)
	}
}

func TestParticipantHandler_SetVotingWeight(t *testing.T) {
	e := newAPIEnv(t)
	a, _, units, token := e.liveAssembly([]float64{1})
	owner := e.checkIn(a.ID, token, units[0].ID, "")
	path := fmt.Sprintf("/api/participants/%d/voting-weight", owner.Participant.ID)

	code, env := e.call("PATCH", path, e.staff, gin.H{"voting_weight": -2})
	if code != http.StatusBadRequest || env.Reason != "invalid_weight" {
		t.Errorf("negative weight = %d %q, expected 400 invalid_weight", code, env.Reason)
	}

	var p models.Participant
	e.mustCall("PATCH", path, e.staff, gin.H{"voting_weight": 0.25}, http.StatusOK, &p)
	if p.VotingWeight != 0.25 {
		t.Errorf("VotingWeight = %v, expected 0.25", p.VotingWeight)
	}

	var got models.Participant
	e.mustCall("GET", fmt.Sprintf("/api/participants/%d", owner.Participant.ID), e.staff, nil, http.StatusOK, &got)
	if got.VotingWeight != 0.25 {
		t.Errorf("stored VotingWeight = %v, expected 0.25", got.VotingWeight)
	}
}

func TestParticipantHandler_MarkLeft(t *testing.T) {
	e := newAPIEnv(t)
	a, _, units, token := e.liveAssembly([]float64{1})
	owner := e.checkIn(a.ID, token, units[0].ID, "")

	var left models.Participant
	e.mustCall("POST", fmt.Sprintf("/api/participants/%d/leave", owner.Participant.ID), e.staff, nil, http.StatusOK, &left)
	if left.LeftAt == nil {
		t.Error("LeftAt not set")
	}

	var q services.QuorumReport
	e.mustCall("GET", fmt.Sprintf("/api/assemblies/%d/quorum", a.ID), e.staff, nil, http.StatusOK, &q)
	if q.Percentage != 0 {
		t.Errorf("quorum after leave = %v, expected 0", q.Percentage)
	}
}

func TestUnitHandler_CRUD(t *testing.T) {
	e := newAPIEnv(t)

	var u models.Unit
	e.mustCall("POST", "/api/units", e.staff, gin.H{"identifier": " B-202 ", "owner_name": "Ana"}, http.StatusCreated, &u)
	if u.Identifier != "B-202" || u.VotingWeight != 1 || !u.Active {
		t.Errorf("created unit = %+v, expected B-202 weight 1 active", u)
	}

	code, env := e.call("POST", "/api/units", e.staff, gin.H{"identifier": "B-202"})
	if code != http.StatusBadRequest || env.Reason != "unit_exists" {
		t.Errorf("duplicate unit = %d %q, expected 400 unit_exists", code, env.Reason)
	}

	var updated models.Unit
	e.mustCall("PUT", fmt.Sprintf("/api/units/%d", u.ID), e.staff, gin.H{"voting_weight": 0.5, "active": false}, http.StatusOK, &updated)
	if updated.VotingWeight != 0.5 || updated.Active {
		t.Errorf("updated unit = %+v, expected weight 0.5 inactive", updated)
	}

	var units []models.Unit
	e.mustCall("GET", "/api/units", e.staff, nil, http.StatusOK, &units)
	if len(units) != 1 {
		t.Errorf("listed %d units, expected 1", len(units))
	}

	code, _ = e.call("GET", fmt.Sprintf("/api/units/%d", u.ID), staffToken(t, "condo-b"), nil)
	if code != http.StatusNotFound {
		t.Errorf("unit of another tenant = %d, expected 404", code)
	}
}
