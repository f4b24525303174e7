package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/hub"
)

// MonitorHandler handles monitoring API endpoints.
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
}

func NewMonitorHandler(monitorService *hub.MonitorService) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
	}
}

// GetHubStats returns current hub statistics.
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	stats := h.monitorService.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"HttpStatusCode": http.StatusOK,
		"ResponseBody":   stats,
		"IsSuccess":      true,
		"Message":        "Hub statistics retrieved successfully",
	})
}
