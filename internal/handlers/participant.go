package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

// ParticipantHandler serves the syndic's attendance and proxy approval desk
type ParticipantHandler struct {
	engine *services.Engine
}

func NewParticipantHandler(engine *services.Engine) *ParticipantHandler {
	return &ParticipantHandler{engine: engine}
}

type RejectProxyRequest struct {
	Reason string `json:"reason"`
}

type VotingWeightRequest struct {
	VotingWeight float64 `json:"voting_weight" binding:"required"`
}

// List returns the participants of an assembly
// GET /api/assemblies/:id/participants?approval_status=PENDING
func (h *ParticipantHandler) List(c *gin.Context) {
	assemblyID, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	participants, err := h.engine.Attendance.Participants(c.Request.Context(), middleware.GetTenantID(c), assemblyID, c.Query("approval_status"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, participants)
}

// PendingProxies returns the approval queue
// GET /api/assemblies/:id/pending-proxies
func (h *ParticipantHandler) PendingProxies(c *gin.Context) {
	assemblyID, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	participants, err := h.engine.Attendance.PendingProxies(c.Request.Context(), middleware.GetTenantID(c), assemblyID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, participants)
}

// GetByID returns one participant
// GET /api/participants/:id
func (h *ParticipantHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "participant")
	if !ok {
		return
	}

	p, err := h.engine.Attendance.Participant(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, p)
}

// Approve accepts a proxy credential
// POST /api/participants/:id/approve
func (h *ParticipantHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id", "participant")
	if !ok {
		return
	}

	p, err := h.engine.Proxies.Approve(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, p)
}

// Reject refuses a proxy credential with a reason shown to the holder
// POST /api/participants/:id/reject
func (h *ParticipantHandler) Reject(c *gin.Context) {
	id, ok := paramID(c, "id", "participant")
	if !ok {
		return
	}

	var req RejectProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.engine.Proxies.Reject(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, p)
}

// MarkLeft records that a participant left the meeting
// POST /api/participants/:id/leave
func (h *ParticipantHandler) MarkLeft(c *gin.Context) {
	id, ok := paramID(c, "id", "participant")
	if !ok {
		return
	}

	p, err := h.engine.Attendance.MarkLeft(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, p)
}

// SetVotingWeight corrects a participant's ownership share
// PATCH /api/participants/:id/voting-weight
func (h *ParticipantHandler) SetVotingWeight(c *gin.Context) {
	id, ok := paramID(c, "id", "participant")
	if !ok {
		return
	}

	var req VotingWeightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	p, err := h.engine.Attendance.SetVotingWeight(c.Request.Context(), middleware.GetTenantID(c), id, req.VotingWeight, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, p)
}
