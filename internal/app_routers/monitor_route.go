package approuters

import (
	"github.com/gin-gonic/gin"

	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/configuration"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/handler"
	"github.com/Anonymuskerteer/Kejani-Homes-Kenya-sub000/internal/hub"
)

// MonitorRouters sets up monitoring API routes.
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	monitorService := hub.NewMonitorService(container.Hub)
	monitorHandler := handler.NewMonitorHandler(monitorService)

	monitorGroup := router.Group("/km/api/monitor")
	{
		monitorGroup.GET("/stats", monitorHandler.GetHubStats)
	}
}
