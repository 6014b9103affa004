package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

// Reconciler runs a reconciliation sweep
type Reconciler interface {
	Reconcile(ctx context.Context) (*payment.ReconcileReport, error)
}

// ReconcileHandler exposes the sweep to an external scheduler
type ReconcileHandler struct {
	reconciler Reconciler
	logger     *zap.Logger
}

// NewReconcileHandler creates a new reconcile handler
func NewReconcileHandler(reconciler Reconciler, logger *zap.Logger) *ReconcileHandler {
	return &ReconcileHandler{
		reconciler: reconciler,
		logger:     logger.Named("http"),
	}
}

// Reconcile runs one sweep and returns its report
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	// The sweep outlives an impatient caller
	report, err := h.reconciler.Reconcile(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, payment.ErrMisconfigured) {
			h.logger.Error("reconciliation refused", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"report": report,
		"total":  report.Total(),
	})
}
