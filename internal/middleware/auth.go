package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/utils"
	"github.com/huangang/condovote/pkg/response"
)

const (
	ContextUserID   = "user_id"
	ContextUsername = "username"
	ContextRole     = "role"
	ContextTenantID = "tenant_id"
)

// Staff roles allowed to run an assembly
const (
	RoleAdmin  = "admin"
	RoleSyndic = "syndic"
)

// AuthRequired is a middleware that checks for a valid staff JWT token
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Error(c, response.NewUnauthorized("authorization header required").WithReason("unauthorized"))
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Error(c, response.NewUnauthorized("invalid authorization header format").WithReason("unauthorized"))
			c.Abort()
			return
		}

		claims, err := utils.ParseToken(parts[1])
		if err != nil {
			response.Error(c, response.NewUnauthorized("invalid or expired token").WithReason("unauthorized"))
			c.Abort()
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextTenantID, claims.TenantID)

		c.Next()
	}
}

// SyndicRequired lets through the roles that manage assemblies
func SyndicRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		role := GetRole(c)
		if role != RoleAdmin && role != RoleSyndic {
			response.Error(c, response.NewForbidden("syndic access required").WithReason("forbidden"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// GetUserID gets the current user ID from context
func GetUserID(c *gin.Context) uint {
	if id, exists := c.Get(ContextUserID); exists {
		return id.(uint)
	}
	return 0
}

// GetUsername gets the current username from context
func GetUsername(c *gin.Context) string {
	if username, exists := c.Get(ContextUsername); exists {
		return username.(string)
	}
	return ""
}

// GetRole gets the current user role from context
func GetRole(c *gin.Context) string {
	if role, exists := c.Get(ContextRole); exists {
		return role.(string)
	}
	return ""
}

// GetTenantID gets the condominium the current user acts for
func GetTenantID(c *gin.Context) string {
	if tenant, exists := c.Get(ContextTenantID); exists {
		return tenant.(string)
	}
	return ""
}
