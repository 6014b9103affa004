package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seatpay/backend/internal/config"
	"github.com/seatpay/backend/internal/handlers"
	"github.com/seatpay/backend/internal/middleware"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

// corsConfig builds the CORS policy from CORS_ALLOWED_ORIGINS
func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// RegisterRoutes configures all API routes
func RegisterRoutes(router *gin.Engine, cfg *config.Config, svc *payment.Service, rateLimiter *middleware.RateLimiter, logger *zap.Logger) {
	// Apply global middleware
	router.Use(middleware.SecureHeadersMiddleware(middleware.DefaultSecureHeadersConfig(cfg.IsProduction())))
	router.Use(cors.New(corsConfig(cfg.Server.AllowedOrigins)))

	paymentHandler := handlers.NewPaymentHandler(svc, logger)
	webhookHandler := handlers.NewWebhookHandler(svc, logger)
	reconcileHandler := handlers.NewReconcileHandler(svc, logger)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"providers": svc.Providers(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		// Provider callbacks carry no credentials we can check; the sweeper is the backstop
		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/mtn", webhookHandler.Callback(models.ProviderMTN))
			webhooks.PUT("/mtn", webhookHandler.Callback(models.ProviderMTN))
			webhooks.POST("/orange", webhookHandler.Callback(models.ProviderOrange))
			webhooks.POST("/pawapay", webhookHandler.Callback(models.ProviderPawaPay))
		}

		v1.GET("/reconcile", reconcileHandler.Reconcile)
		v1.GET("/transactions/:kind/:id", paymentHandler.GetTransaction)

		initiation := v1.Group("/")
		initiation.Use(rateLimiter.IPRateLimiterMiddleware())
		{
			initiation.POST("/payments", paymentHandler.InitiatePayin)
			initiation.POST("/payouts", paymentHandler.InitiatePayout)
			initiation.POST("/refunds", paymentHandler.InitiateRefund)
		}
	}
}
