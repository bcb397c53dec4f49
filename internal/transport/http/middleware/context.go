package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// TraceIDHeader carries the trace id between the reader client and the API.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDKey is the gin context key the trace id is stored under.
	TraceIDKey = "trace_id"
	// UserIDKey is the gin context key the resolved reader id is stored under.
	UserIDKey = "user_id"

	requestContextKey = "request_context"
)

// RequestContext is the per-request metadata the downstream middleware and
// handlers log and publish with.
type RequestContext struct {
	TraceID   string
	UserID    string
	IP        string
	UserAgent string
}

// EnrichContext assigns every request a trace id, honouring one supplied by
// the caller, and stashes the request metadata for later middleware.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}

		c.Set(TraceIDKey, traceID)
		c.Header(TraceIDHeader, traceID)

		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})

		c.Next()
	}
}

// GetTraceID returns the request's trace id, or "" before EnrichContext ran.
func GetTraceID(c *gin.Context) string {
	if value, ok := c.Get(TraceIDKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestContext returns the stored request metadata. A zero value comes
// back when EnrichContext has not run, so callers need no nil check.
func GetRequestContext(c *gin.Context) *RequestContext {
	if value, ok := c.Get(requestContextKey); ok {
		if reqCtx, ok := value.(*RequestContext); ok {
			return reqCtx
		}
	}
	return &RequestContext{}
}
