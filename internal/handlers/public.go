package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/middleware"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/response"
)

// PublicHandler serves participant devices and projector screens. Callers
// are identified by the assembly access token or a participant session,
// never by a staff JWT.
type PublicHandler struct {
	engine *services.Engine
}

func NewPublicHandler(engine *services.Engine) *PublicHandler {
	return &PublicHandler{engine: engine}
}

// Display returns the public live snapshot; codes are shown on the
// projector only, never over this endpoint
// GET /api/public/assemblies/:token
func (h *PublicHandler) Display(c *gin.Context) {
	ctx := c.Request.Context()
	assembly, err := h.engine.Assemblies.GetByAccessToken(ctx, c.Param("token"))
	if err != nil {
		respondError(c, err)
		return
	}

	snap, err := h.engine.Assemblies.Display(ctx, assembly.TenantID, assembly.ID, false)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, snap)
}

// CheckIn admits a unit with the check-in code and returns its session token
// POST /api/public/assemblies/:token/check-in
func (h *PublicHandler) CheckIn(c *gin.Context) {
	var req services.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.AccessToken = c.Param("token")

	result, err := h.engine.Attendance.CheckIn(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// Me returns the caller's participant row and whether it may vote
// GET /api/participant/me
func (h *PublicHandler) Me(c *gin.Context) {
	p := middleware.GetParticipant(c)

	item, err := h.engine.Agenda.CurrentVoting(c.Request.Context(), p.TenantID, p.AssemblyID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{
		"participant":  p,
		"can_vote":     p.CanVote(),
		"current_item": item,
	})
}

// Leave marks the caller as having left the meeting
// POST /api/participant/leave
func (h *PublicHandler) Leave(c *gin.Context) {
	p := middleware.GetParticipant(c)

	left, err := h.engine.Attendance.MarkLeft(c.Request.Context(), p.TenantID, p.ID, services.ParticipantActor(p.ID))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, left)
}

// UploadProxyDocument attaches the proxy holder's credential document
// POST /api/participant/proxy-document (multipart field "file")
func (h *PublicHandler) UploadProxyDocument(c *gin.Context) {
	p := middleware.GetParticipant(c)

	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	updated, err := h.engine.Proxies.AttachDocument(c.Request.Context(), p, &services.UploadedFile{
		Name:         fh.Filename,
		DeclaredType: fh.Header.Get("Content-Type"),
		Reader:       f,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, updated)
}

// Cast records the caller's ballot on an agenda item
// POST /api/participant/agenda/:id/vote
func (h *PublicHandler) Cast(c *gin.Context) {
	itemID, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	var req services.CastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.AgendaItemID = itemID
	req.SessionTokenHash = services.HashSessionToken(middleware.GetSessionToken(c))

	vote, err := h.engine.Votes.Cast(c.Request.Context(), middleware.GetParticipant(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, vote)
}

// MyVote returns the caller's own ballot on an agenda item
// GET /api/participant/agenda/:id/vote
func (h *PublicHandler) MyVote(c *gin.Context) {
	itemID, ok := paramID(c, "id", "agenda item")
	if !ok {
		return
	}

	vote, err := h.engine.Votes.MyVote(c.Request.Context(), middleware.GetParticipant(c), itemID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, vote)
}
