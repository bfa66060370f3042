package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

type UnitHandler struct {
	engine *services.Engine
}

func NewUnitHandler(engine *services.Engine) *UnitHandler {
	return &UnitHandler{engine: engine}
}

// List returns the units of the caller's condominium
// GET /api/units
func (h *UnitHandler) List(c *gin.Context) {
	units, err := h.engine.Units.List(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, units)
}

// GetByID returns a unit
// GET /api/units/:id
func (h *UnitHandler) GetByID(c *gin.Context) {
	id, ok := paramID(c, "id", "unit")
	if !ok {
		return
	}

	unit, err := h.engine.Units.Get(c.Request.Context(), middleware.GetTenantID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, unit)
}

// Create registers a unit
// POST /api/units
func (h *UnitHandler) Create(c *gin.Context) {
	var req services.CreateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	unit, err := h.engine.Units.Create(c.Request.Context(), middleware.GetTenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, unit)
}

// Update changes owner, weight or active flag of a unit
// PUT /api/units/:id
func (h *UnitHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id", "unit")
	if !ok {
		return
	}

	var req services.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	unit, err := h.engine.Units.Update(c.Request.Context(), middleware.GetTenantID(c), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, unit)
}
