package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

type SystemLogHandler struct {
	systemLogService *services.SystemLogService
}

func NewSystemLogHandler(systemLogService *services.SystemLogService) *SystemLogHandler {
	return &SystemLogHandler{
		systemLogService: systemLogService,
	}
}

// List returns the audit trail of the caller's condominium
// GET /api/system-logs
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.systemLogService.List(middleware.GetTenantID(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}
