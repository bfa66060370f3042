package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"gorm.io/gorm"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct {
	db    *gorm.DB
	hub   *services.EventHub
	queue services.TaskQueue
}

func NewHealthHandler(db *gorm.DB, hub *services.EventHub, queue services.TaskQueue) *HealthHandler {
	return &HealthHandler{db: db, hub: hub, queue: queue}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := 200

	// Database check
	dbStatus := "ok"
	sqlDB, err := h.db.DB()
	if err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	} else if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
	}
	if overall != "healthy" {
		status = 503
	}

	// Queue mode
	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	sseClients := 0
	if h.hub != nil {
		sseClients = h.hub.ClientCount()
	}

	// Assemblies currently being held
	var live int64
	if dbStatus == "ok" {
		h.db.WithContext(c.Request.Context()).Model(&models.Assembly{}).
			Where("status = ?", models.AssemblyInProgress).
			Count(&live)
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "condovote",
		"components": gin.H{
			"database":        dbStatus,
			"queue_mode":      queueMode,
			"sse_clients":     sseClients,
			"live_assemblies": live,
		},
	})
}
