package handlers

import (
	"fmt"
	"math"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestVoting_WeightedQuorumAndTally(t *testing.T) {
	e := newAPIEnv(t)
	a, items, units, token := e.liveAssembly([]float64{0.6, 0.4}, "Budget", "Facade works")
	quorumPath := fmt.Sprintf("/api/assemblies/%d/quorum", a.ID)

	owner := e.checkIn(a.ID, token, units[0].ID, "")
	var q services.QuorumReport
	e.mustCall("GET", quorumPath, e.staff, nil, http.StatusOK, &q)
	if q.Percentage != 60 {
		t.Errorf("quorum after owner = %v, expected 60", q.Percentage)
	}

	proxy := e.checkIn(a.ID, token, units[1].ID, "Maria Souza")
	if proxy.Participant.ApprovalStatus != models.ApprovalPending {
		t.Fatalf("proxy ApprovalStatus = %q, expected %q", proxy.Participant.ApprovalStatus, models.ApprovalPending)
	}
	e.mustCall("GET", quorumPath, e.staff, nil, http.StatusOK, &q)
	if q.Percentage != 60 {
		t.Errorf("quorum with pending proxy = %v, expected 60", q.Percentage)
	}

	code := e.openVoting(items[0].ID)
	status, env := e.call("POST", fmt.Sprintf("/api/participant/agenda/%d/vote", items[0].ID), "session:"+proxy.SessionToken, gin.H{"otp": code, "choice": "NO"})
	if status != http.StatusForbidden || env.Reason != "not_eligible" {
		t.Errorf("pending proxy cast = %d %q, expected 403 not_eligible", status, env.Reason)
	}

	e.mustCall("POST", fmt.Sprintf("/api/participants/%d/approve", proxy.Participant.ID), e.staff, nil, http.StatusOK, nil)
	e.mustCall("GET", quorumPath, e.staff, nil, http.StatusOK, &q)
	if q.Percentage != 100 {
		t.Errorf("quorum after approval = %v, expected 100", q.Percentage)
	}

	castPath := fmt.Sprintf("/api/participant/agenda/%d/vote", items[0].ID)
	var yes models.Vote
	e.mustCall("POST", castPath, "session:"+owner.SessionToken, gin.H{"otp": code, "choice": "yes"}, http.StatusCreated, &yes)
	if yes.Choice != models.ChoiceYes || !approx(yes.VotingWeight, 0.6) {
		t.Errorf("ballot = %s weight %v, expected YES weight 0.6", yes.Choice, yes.VotingWeight)
	}
	e.mustCall("POST", castPath, "session:"+proxy.SessionToken, gin.H{"otp": code, "choice": "NO"}, http.StatusCreated, nil)

	status, env = e.call("POST", castPath, "session:"+owner.SessionToken, gin.H{"otp": code, "choice": "NO"})
	if status != http.StatusConflict || env.Reason != "already_voted" {
		t.Errorf("second ballot = %d %q, expected 409 already_voted", status, env.Reason)
	}

	var mine models.Vote
	e.mustCall("GET", castPath, "session:"+owner.SessionToken, nil, http.StatusOK, &mine)
	if mine.Choice != models.ChoiceYes {
		t.Errorf("my vote = %q, expected first ballot YES", mine.Choice)
	}

	var sum services.VoteSummary
	e.mustCall("GET", fmt.Sprintf("/api/agenda/%d/summary", items[0].ID), e.staff, nil, http.StatusOK, &sum)
	if sum.Yes != 1 || sum.No != 1 || sum.Abstention != 0 || sum.Total != 2 {
		t.Errorf("counts = %d/%d/%d total %d, expected 1/1/0 total 2", sum.Yes, sum.No, sum.Abstention, sum.Total)
	}
	if !approx(sum.WeightedYes, 0.6) || !approx(sum.WeightedNo, 0.4) || !approx(sum.WeightedTotal, 1.0) {
		t.Errorf("weights = %v/%v total %v, expected 0.6/0.4 total 1.0", sum.WeightedYes, sum.WeightedNo, sum.WeightedTotal)
	}

	var votes []models.Vote
	e.mustCall("GET", fmt.Sprintf("/api/agenda/%d/votes", items[0].ID), e.staff, nil, http.StatusOK, &votes)
	if len(votes) != 2 {
		t.Errorf("votes listed = %d, expected 2", len(votes))
	}

	status, env = e.call("POST", fmt.Sprintf("/api/agenda/%d/start-voting", items[1].ID), e.staff, nil)
	if status != http.StatusConflict || env.Reason != "another_item_voting" {
		t.Errorf("second item start = %d %q, expected 409 another_item_voting", status, env.Reason)
	}

	var closed models.AgendaItem
	e.mustCall("POST", fmt.Sprintf("/api/agenda/%d/close-voting", items[0].ID), e.staff, nil, http.StatusOK, &closed)
	if closed.Status != models.AgendaClosed {
		t.Errorf("Status = %q, expected %q", closed.Status, models.AgendaClosed)
	}
	status, env = e.call("POST", castPath, "session:"+owner.SessionToken, gin.H{"otp": code, "choice": "ABSTENTION"})
	if status != http.StatusConflict || env.Reason != "voting_closed" {
		t.Errorf("cast after close = %d %q, expected 409 voting_closed", status, env.Reason)
	}

	e.mustCall("POST", fmt.Sprintf("/api/agenda/%d/start-voting", items[1].ID), e.staff, nil, http.StatusOK, nil)
}

func TestVoting_WrongCode(t *testing.T) {
	e := newAPIEnv(t)
	a, items, units, token := e.liveAssembly([]float64{1}, "Budget")
	owner := e.checkIn(a.ID, token, units[0].ID, "")
	code := e.openVoting(items[0].ID)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, env := e.call("POST", fmt.Sprintf("/api/participant/agenda/%d/vote", items[0].ID), "session:"+owner.SessionToken, gin.H{"otp": wrong, "choice": "YES"})
	if status != http.StatusUnprocessableEntity || env.Reason != "otp_invalid" {
		t.Errorf("wrong code = %d %q, expected 422 otp_invalid", status, env.Reason)
	}

	status, env = e.call("POST", fmt.Sprintf("/api/participant/agenda/%d/vote", items[0].ID), "session:"+owner.SessionToken, gin.H{"otp": code, "choice": "MAYBE"})
	if status != http.StatusBadRequest || env.Reason != "invalid_choice" {
		t.Errorf("bad choice = %d %q, expected 400 invalid_choice", status, env.Reason)
	}
}

func TestVoting_RegenerateVotingOTP(t *testing.T) {
	e := newAPIEnv(t)
	a, items, units, token := e.liveAssembly([]float64{1}, "Budget")
	owner := e.checkIn(a.ID, token, units[0].ID, "")
	old := e.openVoting(items[0].ID)

	var fresh services.OTPView
	e.mustCall("POST", fmt.Sprintf("/api/agenda/%d/voting-otp", items[0].ID), e.staff, nil, http.StatusOK, &fresh)

	castPath := fmt.Sprintf("/api/participant/agenda/%d/vote", items[0].ID)
	if old != fresh.Code {
		status, env := e.call("POST", castPath, "session:"+owner.SessionToken, gin.H{"otp": old, "choice": "YES"})
		if status != http.StatusUnprocessableEntity {
			t.Errorf("superseded code = %d %q, expected 422", status, env.Reason)
		}
	}
	e.mustCall("POST", castPath, "session:"+owner.SessionToken, gin.H{"otp": fresh.Code, "choice": "YES"}, http.StatusCreated, nil)
}

func TestVoting_CheckInWrongCode(t *testing.T) {
	e := newAPIEnv(t)
	a, _, units, token := e.liveAssembly([]float64{1})

	wrong := "000000"
	if e.checkInCode(a.ID) == wrong {
		wrong = "111111"
	}
	status, env := e.call("POST", "/api/public/assemblies/"+token+"/check-in", "", gin.H{"unit_id": units[0].ID, "otp": wrong})
	if status != http.StatusUnprocessableEntity || env.Reason != "otp_invalid" {
		t.Errorf("check-in with wrong code = %d %q, expected 422 otp_invalid", status, env.Reason)
	}

	status, env = e.call("POST", "/api/public/assemblies/not-a-token/check-in", "", gin.H{"unit_id": units[0].ID, "otp": "123456"})
	if status != http.StatusNotFound {
		t.Errorf("check-in with unknown token = %d %q, expected 404", status, env.Reason)
	}
}
