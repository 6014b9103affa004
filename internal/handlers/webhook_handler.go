package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/seatpay/backend/internal/models"
	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

// CallbackProcessor applies provider callbacks
type CallbackProcessor interface {
	HandleCallback(ctx context.Context, provider models.Provider, body []byte) error
}

// WebhookHandler handles provider callbacks
type WebhookHandler struct {
	callbacks CallbackProcessor
	logger    *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(callbacks CallbackProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		callbacks: callbacks,
		logger:    logger.Named("webhooks"),
	}
}

// Callback returns the handler for one provider's callbacks. Providers only learn that the
// callback arrived: the response is always 200 so they do not retry against a row that could
// not be matched, and the sweeper settles anything a lost callback left behind.
func (h *WebhookHandler) Callback(provider models.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCallbackBody))
		if err != nil {
			h.logger.Warn("could not read callback body", zap.String("provider", string(provider)), zap.Error(err))
			c.JSON(http.StatusOK, gin.H{"status": "received"})
			return
		}

		if err := h.callbacks.HandleCallback(c.Request.Context(), provider, body); err != nil {
			h.logger.Error("callback not applied",
				zap.String("provider", string(provider)),
				zap.ByteString("body", body),
				zap.Error(err))
		}

		c.JSON(http.StatusOK, gin.H{"status": "received"})
	}
}
