package logger

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RequestIDHeader carries the correlation id echoed on every response
const RequestIDHeader = "X-Request-ID"

var log zerolog.Logger

// Init configures the process-wide logger. format is "json" or "console";
// an empty format picks console output at debug level and JSON otherwise.
func Init(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if format == "" && lvl <= zerolog.DebugLevel {
		format = "console"
	}
	InitWriter(os.Stdout, lvl, format)
}

// InitWriter points the logger at w. Tests use it to capture output.
func InitWriter(w io.Writer, lvl zerolog.Level, format string) {
	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	log = zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "condovote").
		Logger()
}

func init() {
	Init("info", "")
}

func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }

func Infof(format string, v ...interface{}) {
	log.Info().Msgf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	log.Warn().Msgf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	log.Error().Msgf(format, v...)
}

// Fatalf logs and exits the process.
func Fatalf(format string, v ...interface{}) {
	log.Fatal().Msgf(format, v...)
}

// With returns a child logger tagged with the given component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// GetRequestID returns the correlation id GinLogger assigned to the request.
func GetRequestID(c *gin.Context) string {
	return c.GetString("request_id")
}

// GinLogger logs one line per request. The matched route template is logged
// instead of the raw path because public paths embed assembly access tokens,
// and query strings are dropped for the same reason. Probe traffic on
// /health and /metrics is logged at debug level.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		case route == "/health" || route == "/metrics":
			event = log.Debug()
		default:
			event = log.Info()
		}

		if tenant := c.GetString("tenant_id"); tenant != "" {
			event = event.Str("tenant_id", tenant)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", strings.TrimSpace(c.Errors.String()))
		}
		event.
			Str("request_id", requestID).
			Int("status", status).
			Str("method", c.Request.Method).
			Str("route", route).
			Str("ip", c.ClientIP()).
			Dur("latency", time.Since(start)).
			Int("size", c.Writer.Size()).
			Msg("request")
	}
}

// GinRecovery turns a handler panic into a 500 response in the standard
// envelope and logs it with the request's correlation id.
func GinRecovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().
			Interface("panic", recovered).
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("ip", c.ClientIP()).
			Msg("panic recovered")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"code":    http.StatusInternalServerError,
			"message": "internal server error",
			"reason":  "internal_error",
		})
	})
}
