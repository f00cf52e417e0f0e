package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rupture_engine/middlewares"
	"github.com/mmdatafocus/rupture_engine/workflow"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts the HTTP surface. loaders runs before every availability route so the
// order reads of one request share batched queries.
func Register(r *gin.Engine, h *AvailabilityHandler, listener *workflow.StockEventListener, loaders gin.HandlerFunc) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if listener != nil {
		r.POST("/pubsub/stock-events", listener.PushHandler())
	}

	internal := r.Group("/internal", middlewares.SessionMiddleware(true))
	internal.POST("/projections/invalidate", h.Invalidate)

	scoped := r.Group("/", middlewares.SessionMiddleware(false))
	if loaders != nil {
		scoped.Use(loaders)
	}
	scoped.GET("/availability/orders/:ref", h.AnalyzeOrder)
	scoped.POST("/availability/orders", h.AnalyzeOrders)
	scoped.GET("/availability/active", h.AnalyzeAllActive)
	scoped.GET("/availability/active/last", h.LastSweep)
	scoped.GET("/projections/:product", h.Projection)
}
