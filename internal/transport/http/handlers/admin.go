package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zvaradi/flipgate/internal/usecase"
)

// AdminHandler exposes code provisioning and inspection.
type AdminHandler struct {
	admin *usecase.AdminService
}

// NewAdminHandler builds an admin handler.
func NewAdminHandler(admin *usecase.AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// RegisterRoutes wires the admin endpoints onto the group.
func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/codes", h.ProvisionCodes)
	api.GET("/codes/:code", h.GetCode)
}

// RegisterSupportRoutes wires the purchaser-facing device listing onto the
// public API group.
func (h *AdminHandler) RegisterSupportRoutes(api *gin.RouterGroup) {
	api.GET("/activation/codes/:code/devices", h.ListDevices)
}

// ProvisionCodes generates a batch of fresh activation codes.
func (h *AdminHandler) ProvisionCodes(c *gin.Context) {
	var req ProvisionCodesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "count is required"))
		return
	}

	codes, err := h.admin.ProvisionCodes(c.Request.Context(), req.Count, req.MaxDevices)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid provisioning request"},
			{Err: usecase.ErrNetworkUnavailable, Status: http.StatusBadGateway, Message: "entitlement store unavailable"},
		}, http.StatusInternalServerError, "provisioning failed")
		return
	}

	c.JSON(http.StatusCreated, ProvisionCodesResponse{Codes: codes})
}

// GetCode returns the record for a code, including its device bindings.
func (h *AdminHandler) GetCode(c *gin.Context) {
	record, err := h.admin.InspectCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid code"},
			{Err: usecase.ErrCodeNotFound, Status: http.StatusNotFound, Message: "code not found"},
		}, http.StatusInternalServerError, "lookup failed")
		return
	}

	c.JSON(http.StatusOK, CodeDetailResponse{
		Code:        record.Code,
		Status:      string(record.Status),
		MaxDevices:  record.EffectiveMaxDevices(),
		Devices:     newDeviceSummaries(record.Devices),
		LastUpdated: record.LastUpdated,
	})
}

// ListDevices returns the devices bound to a code without the rest of the
// record, for purchaser support flows.
func (h *AdminHandler) ListDevices(c *gin.Context) {
	record, err := h.admin.InspectCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Message: "invalid code"},
			{Err: usecase.ErrCodeNotFound, Status: http.StatusNotFound, Message: "code not found"},
		}, http.StatusInternalServerError, "lookup failed")
		return
	}

	c.JSON(http.StatusOK, DeviceListResponse{
		Devices:    newDeviceSummaries(record.Devices),
		MaxDevices: record.EffectiveMaxDevices(),
	})
}
