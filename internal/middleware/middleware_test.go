package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func setupTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers...)
	router.POST("/pay", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func post(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/pay", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIPRateLimiter_BurstThenReject(t *testing.T) {
	rl := NewRateLimiter(0.001, 2)
	defer rl.Stop()
	router := setupTestRouter(rl.IPRateLimiterMiddleware())

	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234").Code)

	w := post(router, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestIPRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	defer rl.Stop()
	router := setupTestRouter(rl.IPRateLimiterMiddleware())

	assert.Equal(t, http.StatusOK, post(router, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, post(router, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, post(router, "10.0.0.2:1234").Code)
}

func TestIPRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestSecureHeaders(t *testing.T) {
	router := setupTestRouter(SecureHeadersMiddleware(SecureHeadersConfig{
		UseHSTS:               true,
		HSTSMaxAge:            time.Hour,
		HSTSIncludeSubdomains: true,
	}))

	w := post(router, "10.0.0.1:1234")
	assert.Equal(t, "max-age=3600; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestSecureHeaders_NoHSTSOutsideProduction(t *testing.T) {
	router := setupTestRouter(SecureHeadersMiddleware(DefaultSecureHeadersConfig(false)))

	w := post(router, "10.0.0.1:1234")
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
