package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/transport/http/middleware"
	"github.com/zvaradi/flipgate/internal/usecase"
)

// PagesHandler serves flipbook page content through the content gate.
type PagesHandler struct {
	gate *usecase.ContentGate
}

// NewPagesHandler builds a pages handler.
func NewPagesHandler(gate *usecase.ContentGate) *PagesHandler {
	return &PagesHandler{gate: gate}
}

// RegisterRoutes wires the page endpoint onto the group.
func (h *PagesHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/read/pages/:page", h.GetPage)
}

// GetPage returns page HTML. The entry page is open to everyone; all other
// pages require a committed session.
func (h *PagesHandler) GetPage(c *gin.Context) {
	pageID := c.Param("page")
	userID, _ := middleware.GetAuthenticatedUserID(c)

	asset, err := h.gate.LoadPage(c.Request.Context(), userID, pageID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "page id is required"},
			{Err: usecase.ErrNotActivated, Status: http.StatusUnauthorized, Message: "activation required"},
			{Err: usecase.ErrPermissionDenied, Status: http.StatusForbidden, Message: "access denied for this page"},
			{Err: usecase.ErrTimeout, Status: http.StatusGatewayTimeout, Message: "content origin timed out"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "content origin unavailable"},
		}, http.StatusInternalServerError, "could not load page")
		return
	}

	contentType := asset.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	c.Data(asset.Status, contentType, asset.Body)
}
