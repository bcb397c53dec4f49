package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/usecase"
)

// AssetsHandler serves shell assets through the offline cache manager.
type AssetsHandler struct {
	manager *usecase.CacheManager
}

// NewAssetsHandler builds an assets handler.
func NewAssetsHandler(manager *usecase.CacheManager) *AssetsHandler {
	return &AssetsHandler{manager: manager}
}

// RegisterRoutes wires the asset endpoint onto the group.
func (h *AssetsHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/assets/*path", h.GetAsset)
}

// GetAsset resolves an asset request against the active cache generation
// using the strategy for its URL. Absolute URLs may be passed via the url
// query parameter; passthrough URLs are answered with a redirect so the
// client fetches them directly.
func (h *AssetsHandler) GetAsset(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		rawURL = c.Param("path")
		if !strings.HasPrefix(rawURL, "/") {
			rawURL = "/" + rawURL
		}
	}

	asset, strategy, err := h.manager.Resolve(c.Request.Context(), rawURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "could not resolve asset"))
		return
	}

	if strategy == usecase.StrategyPassthrough {
		c.Redirect(http.StatusTemporaryRedirect, rawURL)
		return
	}

	contentType := asset.ContentType
	if contentType == "" {
		if values, ok := asset.Header["Content-Type"]; ok && len(values) > 0 {
			contentType = values[0]
		} else {
			contentType = "application/octet-stream"
		}
	}

	c.Header("X-Cache-Strategy", string(strategy))
	c.Data(asset.Status, contentType, asset.Body)
}
