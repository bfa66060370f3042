package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/models"
	"github.com/huangang/condovote/internal/services"
	"github.com/huangang/condovote/pkg/logger"
	"github.com/huangang/condovote/pkg/response"
)

const (
	SessionHeader       = "X-Session-Token"
	ContextParticipant  = "participant"
	ContextSessionToken = "session_token"
)

// SessionResolver maps a participant session token to its participant
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*models.Participant, error)
}

// ParticipantRequired authenticates a participant device by its session
// token and stores the participant in the context
func ParticipantRequired(sessions SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(SessionHeader)
		if token == "" {
			response.Error(c, response.NewUnauthorized("session token required").WithReason("session_invalid"))
			c.Abort()
			return
		}

		p, err := sessions.Resolve(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrSessionInvalid) {
				response.Error(c, response.NewUnauthorized(err.Error()).WithReason(services.ReasonOf(err)))
			} else {
				logger.Error().Err(err).Msg("[Session] resolve failed")
				response.Error(c, response.NewUnavailable("service temporarily unavailable").WithReason("transient"))
			}
			c.Abort()
			return
		}

		c.Set(ContextParticipant, p)
		c.Set(ContextSessionToken, token)
		c.Next()
	}
}

// GetParticipant returns the participant resolved by ParticipantRequired
func GetParticipant(c *gin.Context) *models.Participant {
	if p, exists := c.Get(ContextParticipant); exists {
		return p.(*models.Participant)
	}
	return nil
}

// GetSessionToken returns the token the participant authenticated with
func GetSessionToken(c *gin.Context) string {
	return c.GetString(ContextSessionToken)
}
