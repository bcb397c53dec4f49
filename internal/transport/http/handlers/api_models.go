package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with the trace ID from context.
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// IdentityResponse is returned when an anonymous identity is ensured.
type IdentityResponse struct {
	UserID string `json:"user_id"`
	State  string `json:"state"`
}

// ValidateCodeRequest is the payload for the code validation endpoint.
type ValidateCodeRequest struct {
	Code     string `json:"code" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
}

// ValidateCodeResponse reports the decision-table outcome for a code.
type ValidateCodeResponse struct {
	Valid            bool   `json:"valid"`
	AlreadyActivated bool   `json:"already_activated"`
	RequiresBinding  bool   `json:"requires_binding"`
	Message          string `json:"message,omitempty"`
	DevicesBound     int    `json:"devices_bound,omitempty"`
	MaxDevices       int    `json:"max_devices,omitempty"`
}

// ActivateRequest is the payload for the binding-and-commit endpoint.
type ActivateRequest struct {
	Code     string `json:"code" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
	Platform string `json:"platform"`
}

// ActivateResponse describes a completed activation.
type ActivateResponse struct {
	UserID       string          `json:"user_id"`
	State        string          `json:"state"`
	Fallback     bool            `json:"fallback,omitempty"`
	BindFallback bool            `json:"bind_fallback,omitempty"`
	Session      SessionSummary  `json:"session"`
	Devices      []DeviceSummary `json:"devices"`
}

// SessionSummary is the API view of a reader session.
type SessionSummary struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	Platform  string    `json:"platform,omitempty"`
	IsMobile  bool      `json:"is_mobile"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// DeviceSummary is the API view of a device binding.
type DeviceSummary struct {
	DeviceID    string    `json:"device_id"`
	DeviceType  string    `json:"device_type"`
	ActivatedAt time.Time `json:"activated_at"`
}

// TokenResponse carries a capability token and its validity bounds.
type TokenResponse struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ProvisionCodesRequest is the payload for the admin code provisioning endpoint.
type ProvisionCodesRequest struct {
	Count      int `json:"count" binding:"required,min=1"`
	MaxDevices int `json:"max_devices"`
}

// ProvisionCodesResponse lists the provisioned codes.
type ProvisionCodesResponse struct {
	Codes []string `json:"codes"`
}

// CodeDetailResponse is the admin view of an activation code record.
type CodeDetailResponse struct {
	Code        string          `json:"code"`
	Status      string          `json:"status"`
	MaxDevices  int             `json:"max_devices"`
	Devices     []DeviceSummary `json:"devices"`
	LastUpdated time.Time       `json:"last_updated"`
}

// DeviceListResponse is the purchaser-facing view of a code's bound devices.
type DeviceListResponse struct {
	Devices    []DeviceSummary `json:"devices"`
	MaxDevices int             `json:"max_devices"`
}

// HealthResponse reports liveness state.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the outcome of each readiness check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func newSessionSummary(session *domain.ReaderSession) SessionSummary {
	return SessionSummary{
		UserID:    session.UserID,
		CreatedAt: session.CreatedAt,
		Platform:  session.DeviceInfo.Platform,
		IsMobile:  session.DeviceInfo.IsMobile,
		Degraded:  session.IsDegraded(),
	}
}

func newDeviceSummaries(devices []domain.DeviceBinding) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceSummary{
			DeviceID:    d.DeviceID,
			DeviceType:  string(d.DeviceType),
			ActivatedAt: d.ActivatedAt,
		})
	}
	return out
}
