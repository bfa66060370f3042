package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

type AgendaHandler struct {
	engine *services.Engine
}

func NewAgendaHandler(engine *services.Engine) *AgendaHandler {
	return &AgendaHandler{engine: engine}
}

// List returns the agenda of an assembly in order
// GET /api/assemblies/:id/agenda
func (h *AgendaHandler) List(c *gin.Context) {
	assemblyID, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	items, err := h.engine.Agenda.List(c.Request.Context(), middleware.GetTenantID(c), assemblyID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, items)
}

// AddItem appends an item to the agenda
// POST /api/assemblies/:id/agenda
func (h *AgendaHandler) AddItem(c *gin.Context) {
	assemblyID, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	var req services.AgendaItemInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	item, err := h.engine.Agenda.AddItem(c.Request.Context(), middleware.GetTenantID(c), assemblyID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, item)
}

// GetByID returns one agenda item
// GET /api/agenda/:id
func (h *AgendaHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	item, err := h.engine.Agenda.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, item)
}

// StartVoting opens the item for ballots and issues its voting code
// POST /api/agenda/:id/start-voting
func (h *AgendaHandler) StartVoting(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	item, err := h.engine.Agenda.StartVoting(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, item)
}

// CloseVoting stops accepting ballots on the item
// POST /api/agenda/:id/close-voting
func (h *AgendaHandler) CloseVoting(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	item, err := h.engine.Agenda.CloseVoting(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, item)
}

// RegenerateVotingOTP replaces the voting code of the open item
// POST /api/agenda/:id/voting-otp
func (h *AgendaHandler) RegenerateVotingOTP(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	otp, err := h.engine.Agenda.RegenerateVotingOTP(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, otp)
}

// CurrentVotingOTP returns the active voting code for the projector
// GET /api/agenda/:id/voting-otp
func (h *AgendaHandler) CurrentVotingOTP(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	otp, err := h.engine.Agenda.CurrentVotingOTP(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, otp)
}

// Summary returns the running or final tally
// GET /api/agenda/:id/summary
func (h *AgendaHandler) Summary(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	summary, err := h.engine.Votes.Summary(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, summary)
}

// Votes lists the ballots with their weight snapshots
// GET /api/agenda/:id/votes
func (h *AgendaHandler) Votes(c *gin.Context) {
	id, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	votes, err := h.engine.Votes.Votes(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, votes)
}
