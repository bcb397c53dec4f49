package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/transport/http/middleware"
	"github.com/zvaradi/flipgate/internal/usecase"
)

// SessionHandler exposes the session and capability token endpoints.
type SessionHandler struct {
	activation    *usecase.ActivationService
	issuer        *usecase.TokenIssuer
	uidCookieName string
}

// NewSessionHandler builds a session handler.
func NewSessionHandler(activation *usecase.ActivationService, issuer *usecase.TokenIssuer, uidCookieName string) *SessionHandler {
	return &SessionHandler{activation: activation, issuer: issuer, uidCookieName: uidCookieName}
}

// RegisterRoutes wires the session endpoints onto the group. Every route
// requires a resolved identity.
func (h *SessionHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/session", h.GetSession)
	api.DELETE("/session", h.SignOut)
	api.GET("/token", h.GetToken)
}

// GetSession returns the caller's committed session.
func (h *SessionHandler) GetSession(c *gin.Context) {
	userID, _ := middleware.GetAuthenticatedUserID(c)

	session, err := h.activation.Session(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNotActivated, Status: http.StatusNotFound, Message: "no session for this identity"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "session store unavailable"},
		}, http.StatusInternalServerError, "could not load session")
		return
	}

	c.JSON(http.StatusOK, newSessionSummary(session))
}

// SignOut removes the caller's session, revokes the stored token, and clears
// the uid cookie. An orphan token left behind by a revoke failure expires on
// its own.
func (h *SessionHandler) SignOut(c *gin.Context) {
	userID, _ := middleware.GetAuthenticatedUserID(c)

	if err := h.activation.SignOut(c.Request.Context(), userID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "identity required"},
		}, http.StatusInternalServerError, "sign out failed")
		return
	}

	_ = h.issuer.Revoke(c.Request.Context(), userID)

	if h.uidCookieName != "" {
		c.SetSameSite(http.SameSiteStrictMode)
		c.SetCookie(h.uidCookieName, "", -1, "/", "", false, true)
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "signed out"})
}

// GetToken returns a valid capability token, minting one when necessary.
// Only committed sessions may hold tokens.
func (h *SessionHandler) GetToken(c *gin.Context) {
	userID, _ := middleware.GetAuthenticatedUserID(c)

	if _, err := h.activation.Session(c.Request.Context(), userID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrNotActivated, Status: http.StatusUnauthorized, Message: "activation required"},
		}, http.StatusInternalServerError, "could not verify session")
		return
	}

	token, err := h.issuer.GetToken(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "identity required"},
		}, http.StatusInternalServerError, "could not issue token")
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token.Value,
		IssuedAt:  token.IssuedAt,
		ExpiresAt: token.ExpiresAt,
	})
}
