package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/transport/http/middleware"
	"github.com/zvaradi/flipgate/internal/usecase"
)

// ActivationHandler exposes the activation flow over HTTP.
type ActivationHandler struct {
	activation    *usecase.ActivationService
	uidCookieName string
	cookieTTL     time.Duration
}

// NewActivationHandler builds an activation handler. The uid cookie mirrors
// the anonymous identity so browsers resume the same flow across visits.
func NewActivationHandler(activation *usecase.ActivationService, uidCookieName string, cookieTTL time.Duration) *ActivationHandler {
	return &ActivationHandler{
		activation:    activation,
		uidCookieName: uidCookieName,
		cookieTTL:     cookieTTL,
	}
}

// RegisterRoutes wires the activation endpoints onto the group.
func (h *ActivationHandler) RegisterRoutes(api *gin.RouterGroup, validateMiddlewares, activateMiddlewares []gin.HandlerFunc) {
	api.POST("/identity", h.EnsureIdentity)

	activationGroup := api.Group("/activation")
	validateHandlers := append([]gin.HandlerFunc{}, validateMiddlewares...)
	activationGroup.POST("/validate", append(validateHandlers, h.ValidateCode)...)

	activateHandlers := append([]gin.HandlerFunc{}, activateMiddlewares...)
	activationGroup.POST("/activate", append(activateHandlers, h.Activate)...)
}

// EnsureIdentity returns the caller's identity, minting an anonymous one when
// none exists. The resulting user id is mirrored into the uid cookie.
func (h *ActivationHandler) EnsureIdentity(c *gin.Context) {
	existing, _ := middleware.GetAuthenticatedUserID(c)

	identity, err := h.activation.EnsureIdentity(c.Request.Context(), existing)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrTimeout, Status: http.StatusGatewayTimeout, Message: "identity provider timed out"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "identity provider unavailable"},
		}, http.StatusInternalServerError, "could not establish identity")
		return
	}

	h.setUIDCookie(c, identity.UserID)

	state := h.activation.StateFor(c.Request.Context(), identity.UserID)
	c.JSON(http.StatusOK, IdentityResponse{UserID: identity.UserID, State: string(state)})
}

// ValidateCode evaluates an activation code without binding anything.
func (h *ActivationHandler) ValidateCode(c *gin.Context) {
	var req ValidateCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code and device_id are required"))
		return
	}

	result, err := h.activation.ValidateCode(c.Request.Context(), req.Code, req.DeviceID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid validation request"},
			{Err: usecase.ErrTimeout, Status: http.StatusGatewayTimeout, Message: "validation timed out"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "entitlement store unavailable"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "validation not permitted"},
		}, http.StatusInternalServerError, "validation failed")
		return
	}

	response := ValidateCodeResponse{
		Valid:            result.Valid,
		AlreadyActivated: result.AlreadyActivated,
		RequiresBinding:  result.RequiresBinding,
		Message:          result.Message,
	}
	if result.Record != nil {
		response.DevicesBound = len(result.Record.Devices)
		response.MaxDevices = result.Record.EffectiveMaxDevices()
	}

	c.JSON(http.StatusOK, response)
}

// Activate binds the device to the code and commits the durable session in
// one step. Binding failures leave the caller unactivated; a degraded session
// commit still succeeds.
func (h *ActivationHandler) Activate(c *gin.Context) {
	var req ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "code and device_id are required"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok {
		identity, err := h.activation.EnsureIdentity(c.Request.Context(), "")
		if err != nil {
			c.JSON(http.StatusBadGateway, NewErrorResponse(c, "could not establish identity"))
			return
		}
		userID = identity.UserID
		h.setUIDCookie(c, userID)
	}

	userAgent := c.Request.UserAgent()

	bind, err := h.activation.BindDevice(c.Request.Context(), req.Code, req.DeviceID, userAgent, req.Platform)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid activation request"},
			{Err: usecase.ErrCodeNotFound, Status: http.StatusNotFound, Message: "activation code not found"},
			{Err: usecase.ErrCapacityExceeded, Status: http.StatusConflict, Message: "maximum devices reached for this code"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "activation code is not usable"},
			{Err: usecase.ErrTimeout, Status: http.StatusGatewayTimeout, Message: "activation timed out"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "entitlement store unavailable"},
		}, http.StatusInternalServerError, "activation failed")
		return
	}

	session, err := h.activation.CommitSession(c.Request.Context(), userID, userAgent, req.Platform)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrStorageUnavailable, Status: http.StatusServiceUnavailable, Message: "session storage unavailable"},
			{Err: usecase.ErrTimeout, Status: http.StatusGatewayTimeout, Message: "session commit timed out"},
		}, http.StatusInternalServerError, "session commit failed")
		return
	}

	h.setUIDCookie(c, userID)

	c.JSON(http.StatusOK, ActivateResponse{
		UserID:       userID,
		State:        string(usecase.StateCommitted),
		Fallback:     session.IsDegraded(),
		BindFallback: bind.Fallback,
		Session:      newSessionSummary(session),
		Devices:      newDeviceSummaries(bind.Record.Devices),
	})
}

func (h *ActivationHandler) setUIDCookie(c *gin.Context, userID string) {
	maxAge := int(h.cookieTTL.Seconds())
	if maxAge <= 0 {
		maxAge = int((365 * 24 * time.Hour).Seconds())
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(h.uidCookieName, userID, maxAge, "/", "", false, true)
}
