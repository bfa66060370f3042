package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

type AssemblyHandler struct {
	engine *services.Engine
}

func NewAssemblyHandler(engine *services.Engine) *AssemblyHandler {
	return &AssemblyHandler{engine: engine}
}

// List returns paginated assemblies of the caller's condominium
// GET /api/assemblies
func (h *AssemblyHandler) List(c *gin.Context) {
	var req services.AssemblyListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.engine.Assemblies.List(c.Request.Context(), middleware.GetTenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Schedule drafts an assembly with its agenda
// POST /api/assemblies
func (h *AssemblyHandler) Schedule(c *gin.Context) {
	var req services.ScheduleAssemblyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	assembly, err := h.engine.Assemblies.Schedule(c.Request.Context(), middleware.GetTenantID(c), middleware.GetUsername(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, assembly)
}

// GetByID returns an assembly with its agenda
// GET /api/assemblies/:id
func (h *AssemblyHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}
	ctx, tenantID := c.Request.Context(), middleware.GetTenantID(c)

	assembly, err := h.engine.Assemblies.Get(ctx, tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}
	items, err := h.engine.Agenda.List(ctx, tenantID, id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"assembly": assembly, "agenda": items})
}

// Delete removes an assembly that has not finished
// DELETE /api/assemblies/:id
func (h *AssemblyHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	if err := h.engine.Assemblies.Delete(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c)); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "assembly deleted successfully"})
}

// Start opens the meeting and issues its first check-in code
// POST /api/assemblies/:id/start
func (h *AssemblyHandler) Start(c *gin.Context) {
	h.transition(c, h.engine.Assemblies.Start)
}

// Finish closes the meeting; participants and ballots are frozen
// POST /api/assemblies/:id/finish
func (h *AssemblyHandler) Finish(c *gin.Context) {
	h.transition(c, h.engine.Assemblies.Finish)
}

// Cancel calls off a scheduled meeting
// POST /api/assemblies/:id/cancel
func (h *AssemblyHandler) Cancel(c *gin.Context) {
	h.transition(c, h.engine.Assemblies.Cancel)
}

type assemblyTransition func(ctx context.Context, tenantID string, id uint, actor string) (*models.Assembly, error)

func (h *AssemblyHandler) transition(c *gin.Context, fn assemblyTransition) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	assembly, err := fn(c.Request.Context(), middleware.GetTenantID(c), id, middleware.GetUsername(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, assembly)
}

// AccessToken returns the token embedded in the check-in link
// GET /api/assemblies/:id/access-token
func (h *AssemblyHandler) AccessToken(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	token, err := h.engine.Assemblies.AccessToken(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"access_token": token})
}

// GenerateCheckInOTP replaces the check-in code
// POST /api/assemblies/:id/checkin-otp
func (h *AssemblyHandler) GenerateCheckInOTP(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	otp, err := h.engine.Assemblies.GenerateCheckInOTP(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, otp)
}

// CurrentCheckInOTP returns the active check-in code for the projector
// GET /api/assemblies/:id/checkin-otp
func (h *AssemblyHandler) CurrentCheckInOTP(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	otp, err := h.engine.Assemblies.CurrentCheckInOTP(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, otp)
}

// Display returns the live snapshot for the syndic dashboard, codes included
// GET /api/assemblies/:id/display
func (h *AssemblyHandler) Display(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	snap, err := h.engine.Assemblies.Display(c.Request.Context(), middleware.GetTenantID(c), id, true)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, snap)
}

// Quorum returns the weighted presence of eligible participants
// GET /api/assemblies/:id/quorum
func (h *AssemblyHandler) Quorum(c *gin.Context) {
	id, ok := paramID(c, "id", "assembly")
	if !ok {
		return
	}

	report, err := h.engine.Attendance.Quorum(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, report)
}
