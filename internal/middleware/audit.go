package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/huangang/condovote/internal/services"
)

// AuditLog records staff write operations (POST/PUT/PATCH/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		// Only audit write operations
		if method != "POST" && method != "PUT" && method != "PATCH" && method != "DELETE" {
			c.Next()
			return
		}

		// Capture request body (up to 2000 chars for Extra); uploads are not kept
		var bodySnippet string
		if c.Request.Body != nil && !strings.HasPrefix(c.ContentType(), "multipart/") {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(string(bodyBytes))
			if len(bodySnippet) > 2000 {
				bodySnippet = bodySnippet[:2000] + "...[truncated]"
			}
		}

		c.Next()

		username := GetUsername(c)
		status := c.Writer.Status()
		module, action := parseRouteInfo(c.FullPath(), method)

		services.LogInfo(services.AuditEntry{
			TenantID:  GetTenantID(c),
			Module:    module,
			Action:    action,
			Message:   formatAuditMessage(username, method, c.Request.URL.Path, status),
			Actor:     username,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra: map[string]interface{}{
				"method": method,
				"path":   c.Request.URL.Path,
				"status": status,
				"body":   bodySnippet,
				"audit":  true,
			},
		})
	}
}

// parseRouteInfo extracts module and action from a Gin route pattern.
// e.g. "/api/assemblies/:id/finish" + "POST" → module="Assemblies", action="Finish"
func parseRouteInfo(fullPath, method string) (module, action string) {
	path := strings.TrimPrefix(fullPath, "/api/")

	parts := strings.Split(path, "/")
	module = capitalize(strings.ReplaceAll(parts[0], "-", " "))
	if module == "" {
		module = "Unknown"
	}

	// A trailing verb segment ("/start", "/close-voting") names the action
	if last := parts[len(parts)-1]; len(parts) > 1 && !strings.HasPrefix(last, ":") {
		return module, capitalize(strings.ReplaceAll(last, "-", " "))
	}

	switch method {
	case "POST":
		action = "Create"
	case "PUT", "PATCH":
		action = "Update"
	case "DELETE":
		action = "Delete"
	default:
		action = method
	}

	return module, action
}

func capitalize(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, "")
}

// formatAuditMessage creates a human-readable audit message.
func formatAuditMessage(username, method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" → ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

// maskSensitiveFields replaces sensitive values in JSON body
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "secret", "otp", "session_token", "access_token"}
	for _, key := range sensitiveKeys {
		body = maskJSONValue(body, key)
	}
	return body
}

// maskJSONValue does a best-effort mask of every JSON string value for key
func maskJSONValue(body, key string) string {
	quoted := "\"" + key + "\""
	from := 0
	for {
		idx := strings.Index(strings.ToLower(body[from:]), quoted)
		if idx == -1 {
			return body
		}
		idx += from + len(quoted)

		// Find the colon after the key
		rest := strings.TrimLeft(body[idx:], " \t")
		if !strings.HasPrefix(rest, ":") {
			from = idx
			continue
		}
		valueStart := len(body) - len(rest) + 1
		for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
			valueStart++
		}
		if valueStart >= len(body) || body[valueStart] != '"' {
			from = idx
			continue
		}

		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		body = body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
		from = valueStart + 4
	}
}
