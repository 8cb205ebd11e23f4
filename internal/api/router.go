package api

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/meterline/meterline/internal/api/v1"
	"github.com/meterline/meterline/internal/rest/middleware"
)

type Handlers struct {
	Usage  *v1.UsageHandler
	Health *v1.HealthHandler
}

func NewRouter(handlers Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Health)

	v1Group := router.Group("/v1")
	registerV1Routes(v1Group, handlers)

	return router
}

func registerV1Routes(router *gin.RouterGroup, handlers Handlers) {
	usage := router.Group("/usage")
	{
		usage.POST("", handlers.Usage.RegisterUsage)
		usage.GET("/current", handlers.Usage.GetCurrentUsage)
		usage.GET("/charges", handlers.Usage.GetCharges)
		usage.GET("/complete", handlers.Usage.GetCompleteness)
	}

	subscriptions := router.Group("/subscriptions")
	{
		subscriptions.POST("/:id/changed", handlers.Usage.NotifySubscriptionChange)
	}
}
