package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rupture_engine/config"
	"github.com/mmdatafocus/rupture_engine/models"
	"github.com/mmdatafocus/rupture_engine/projection"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/mmdatafocus/rupture_engine/workflow"
	"github.com/sirupsen/logrus"
)

type AvailabilityHandler struct {
	orchestrator *projection.BatchOrchestrator
	sweeps       workflow.SweepStore
	logger       *logrus.Logger
}

func NewAvailabilityHandler(orchestrator *projection.BatchOrchestrator, sweeps workflow.SweepStore, logger *logrus.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{orchestrator: orchestrator, sweeps: sweeps, logger: logger}
}

type analyzeOrdersInput struct {
	OrderRefs []string `json:"order_refs" binding:"required,min=1,dive,required"`
}

type invalidateInput struct {
	Products []string `json:"products"`
	All      bool     `json:"all"`
}

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, projection.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, utils.ErrorInvalidProductKey):
		return http.StatusBadRequest
	case errors.Is(err, projection.ErrDataUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *AvailabilityHandler) fail(c *gin.Context, funcName string, data any, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		config.LogError(h.logger, "availabilityHandler.go", funcName, c.FullPath(), data, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GET /availability/orders/:ref
func (h *AvailabilityHandler) AnalyzeOrder(c *gin.Context) {
	ref := c.Param("ref")
	report, err := h.orchestrator.AnalyzeOrder(c.Request.Context(), ref)
	if err != nil {
		h.fail(c, "AnalyzeOrder", ref, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /availability/orders
func (h *AvailabilityHandler) AnalyzeOrders(c *gin.Context) {
	var input analyzeOrdersInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	report, err := h.orchestrator.AnalyzeOrders(c.Request.Context(), input.OrderRefs)
	if err != nil {
		h.fail(c, "AnalyzeOrders", input.OrderRefs, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /availability/active
func (h *AvailabilityHandler) AnalyzeAllActive(c *gin.Context) {
	report, err := h.orchestrator.AnalyzeAllActive(c.Request.Context())
	if err != nil {
		h.fail(c, "AnalyzeAllActive", nil, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GET /availability/active/last
func (h *AvailabilityHandler) LastSweep(c *gin.Context) {
	if h.sweeps == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "active sweep disabled"})
		return
	}
	businessId, _ := utils.GetBusinessIdFromContext(c.Request.Context())
	summary, ok, err := h.sweeps.Last(c.Request.Context(), businessId)
	if err != nil {
		config.LogError(h.logger, "availabilityHandler.go", "LastSweep", "Last", businessId, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sweep recorded yet"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GET /projections/:product?horizon=N
func (h *AvailabilityHandler) Projection(c *gin.Context) {
	product := projection.ProductKey(c.Param("product"))
	if _, _, err := models.ParseProductKey(product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	horizon := -1
	if raw := c.Query("horizon"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "horizon must be a non-negative integer"})
			return
		}
		horizon = n
	}

	p, err := h.orchestrator.Projection(c.Request.Context(), product, horizon)
	if err != nil {
		h.fail(c, "Projection", product, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /internal/projections/invalidate
func (h *AvailabilityHandler) Invalidate(c *gin.Context) {
	var input invalidateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !input.All && len(input.Products) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "products or all is required"})
		return
	}

	cache := h.orchestrator.Cache()
	ctx := c.Request.Context()
	if input.All {
		cache.InvalidateAll(ctx)
		c.JSON(http.StatusOK, gin.H{"invalidated": "all"})
		return
	}

	keys := make([]projection.ProductKey, 0, len(input.Products))
	for _, p := range input.Products {
		key := projection.ProductKey(p)
		if _, _, err := models.ParseProductKey(key); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		keys = append(keys, key)
	}
	for _, key := range keys {
		cache.Invalidate(ctx, key)
	}
	c.JSON(http.StatusOK, gin.H{"invalidated": keys})
}

// GET /healthz
func (h *AvailabilityHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"as_of":  h.orchestrator.AsOf().Format("2006-01-02"),
		"cache":  h.orchestrator.Cache().Stats(),
	})
}
