package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jimsantora/librarysync/internal/realtime"
)

// NewRouter assembles the gin engine: middleware chain, §6.1 REST
// surface, and the §6.2 websocket upgrade endpoint, grounded on the
// teacher's internal/web package layout.
func NewRouter(h *Handlers, hub *realtime.Hub, logger *logrus.Logger) *gin.Engine {
	router := gin.New()

	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggingMiddleware(logger))
	router.Use(CORSMiddleware())
	router.Use(SecurityHeadersMiddleware())

	router.GET("/health", h.HealthCheck)

	router.GET("/ws", func(c *gin.Context) {
		if err := realtime.ServeWS(hub, "", c.Writer, c.Request); err != nil {
			logger.WithError(err).Warn("websocket upgrade failed")
		}
	})

	api := router.Group("/api/v1")
	api.Use(RateLimitMiddleware())
	{
		api.GET("/platforms", h.GetPlatforms)

		api.GET("/libraries", h.GetLibraries)
		api.POST("/libraries", h.CreateLibrary)
		api.GET("/libraries/:id", h.GetLibrary)
		api.PATCH("/libraries/:id", h.UpdateLibrary)
		api.DELETE("/libraries/:id", h.DeleteLibrary)
		api.POST("/libraries/:id/sync", h.SyncLibrary)
		api.GET("/libraries/:id/sync/status", h.GetSyncStatus)
		api.POST("/libraries/:id/sync/cancel", h.CancelSync)

		api.GET("/games", h.GetGames)
		api.GET("/games/search", h.SearchGames)
		api.GET("/games/:id", h.GetGame)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody(c, "NotFound", "resource not found", nil))
	})

	return router
}
