package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rupture_engine/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionRouter(allowUnscoped bool, seen *[2]string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionMiddleware(allowUnscoped))
	r.GET("/ping", func(c *gin.Context) {
		seen[0], _ = utils.GetBusinessIdFromContext(c.Request.Context())
		seen[1], _ = utils.GetCorrelationIdFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestSessionMiddleware_ScopesRequest(t *testing.T) {
	var seen [2]string
	r := newSessionRouter(false, &seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderBusinessId, "biz-1")
	req.Header.Set(HeaderCorrelationId, "corr-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "biz-1", seen[0])
	assert.Equal(t, "corr-1", seen[1])
	assert.Equal(t, "corr-1", rec.Header().Get(HeaderCorrelationId))
}

func TestSessionMiddleware_GeneratesCorrelationId(t *testing.T) {
	var seen [2]string
	r := newSessionRouter(false, &seen)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderBusinessId, "biz-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, seen[1])
	assert.Equal(t, seen[1], rec.Header().Get(HeaderCorrelationId))
}

func TestSessionMiddleware_MissingBusiness(t *testing.T) {
	var seen [2]string
	rec := httptest.NewRecorder()
	newSessionRouter(false, &seen).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	newSessionRouter(true, &seen).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, seen[0])
}
