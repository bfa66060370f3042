package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/logger"
)

const sseKeepAlive = 25 * time.Second

// SSEHandler pushes live assembly updates to participant phones and screens
type SSEHandler struct {
	engine *services.Engine
	hub    *services.EventHub
}

// NewSSEHandler creates a new SSE handler
func NewSSEHandler(engine *services.Engine, hub *services.EventHub) *SSEHandler {
	return &SSEHandler{
		engine: engine,
		hub:    hub,
	}
}

// StreamAssemblyEvents streams the events of the assembly identified by its
// access token. The first frame is the current quorum.
// GET /api/public/assemblies/:token/events
func (h *SSEHandler) StreamAssemblyEvents(c *gin.Context) {
	ctx := c.Request.Context()
	assembly, err := h.engine.Assemblies.GetByAccessToken(ctx, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}
	quorum, err := h.engine.Attendance.Quorum(ctx, assembly.TenantID, assembly.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	events := h.hub.Subscribe(clientID, assembly.ID)
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Uint("assembly_id", assembly.ID).Int("total", h.hub.ClientCount()).Msg("SSE client connected")

	writeEvent(c.Writer, services.AssemblyEvent{AssemblyID: assembly.ID, Type: services.EventQuorumChanged, Quorum: quorum})
	c.Writer.Flush()

	ticker := time.NewTicker(sseKeepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			writeEvent(w, event)
			c.Writer.Flush()
			return true
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			c.Writer.Flush()
			return true
		case <-ctx.Done():
			logger.Info().Str("client_id", clientID).Msg("SSE client disconnected")
			return false
		}
	})
}

func writeEvent(w io.Writer, event services.AssemblyEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error().Err(err).Msg("SSE marshal error")
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
}
