package routes

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/seatpay/backend/internal/config"
	"github.com/seatpay/backend/internal/middleware"
	"github.com/seatpay/backend/internal/services/payment"
	"github.com/seatpay/backend/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func setupTestRouter(t *testing.T, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())

	cfg := &config.Config{Environment: "test"}
	cfg.Server.AllowedOrigins = []string{"*"}
	svc := payment.NewService(memstore.New(), nil, nil, nil, nil, payment.Options{}, zap.NewNop())
	rl := middleware.NewRateLimiter(0.001, burst)
	t.Cleanup(rl.Stop)

	RegisterRoutes(router, cfg, svc, rl, zap.NewNop())
	return router
}

func perform(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.10:5000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := setupTestRouter(t, 5)

	w := perform(router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","providers":[]}`, w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestMetrics(t *testing.T) {
	router := setupTestRouter(t, 5)
	perform(router, http.MethodPost, "/api/v1/webhooks/pawapay", `{}`)

	w := perform(router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `seatpay_callbacks_total{provider="pawapay",result="disabled"}`)
}

func TestWebhookRoutes(t *testing.T) {
	router := setupTestRouter(t, 5)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/v1/webhooks/mtn"},
		{http.MethodPut, "/api/v1/webhooks/mtn"},
		{http.MethodPost, "/api/v1/webhooks/orange"},
		{http.MethodPost, "/api/v1/webhooks/pawapay"},
	} {
		w := perform(router, tc.method, tc.path, `{}`)
		assert.Equal(t, http.StatusOK, w.Code, tc.path)
		assert.JSONEq(t, `{"status":"received"}`, w.Body.String())
	}
}

func TestReconcileRoute_NoProviders(t *testing.T) {
	router := setupTestRouter(t, 5)

	w := perform(router, http.MethodGet, "/api/v1/reconcile", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "no provider registered")
}

func TestInitiationIsRateLimited(t *testing.T) {
	router := setupTestRouter(t, 1)

	// An unsupported provider is rejected after the limiter let the request through
	w := perform(router, http.MethodPost, "/api/v1/payments", `{"booking_id":"bk-1","provider":"airtel","phone_number":"677000001"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(router, http.MethodPost, "/api/v1/payments", `{"booking_id":"bk-1","provider":"mtn","phone_number":"677000001"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not throttled
	w = perform(router, http.MethodGet, "/api/v1/transactions/payin/6f1c4c9e-4a55-4a8e-9a71-3f7c2b8c0d11", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
