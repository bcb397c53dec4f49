package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// Identity resolves the caller's anonymous user id from the identity cookie,
// with the X-User-ID header as a fallback for non-browser clients. The id is
// stored in the request context for handlers; requests without one proceed
// unauthenticated.
func Identity(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := c.Cookie(cookieName)
		if err != nil || userID == "" {
			userID = strings.TrimSpace(c.GetHeader("X-User-ID"))
		}

		if userID != "" {
			c.Set(UserIDKey, userID)
			if reqCtx := GetRequestContext(c); reqCtx != nil {
				reqCtx.UserID = userID
			}
		}

		c.Next()
	}
}

// RequireIdentity aborts requests that carry no resolved user id.
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetAuthenticatedUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "identity required"))
			return
		}
		c.Next()
	}
}

// GetAuthenticatedUserID retrieves the user id from the request context.
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
