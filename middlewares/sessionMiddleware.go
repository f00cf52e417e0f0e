package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/rupture_engine/utils"
)

const (
	HeaderBusinessId    = "X-Business-Id"
	HeaderCorrelationId = "X-Correlation-Id"
)

// SessionMiddleware scopes the request to a business and tags it with a correlation id.
// Requests without a business header are rejected unless allowUnscoped is set.
func SessionMiddleware(allowUnscoped bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get(HeaderCorrelationId)
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		c.Header(HeaderCorrelationId, correlationId)
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)

		businessId := c.Request.Header.Get(HeaderBusinessId)
		if businessId == "" && !allowUnscoped {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + HeaderBusinessId})
			c.Abort()
			return
		}
		if businessId != "" {
			ctx = utils.SetBusinessIdInContext(ctx, businessId)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
