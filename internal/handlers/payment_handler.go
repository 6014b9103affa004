package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

// PaymentService is the part of the payment service the HTTP API drives
type PaymentService interface {
	InitiatePayin(ctx context.Context, req payment.PayinRequest) (*models.Transaction, error)
	InitiatePayout(ctx context.Context, req payment.PayoutRequest) (*models.Transaction, error)
	InitiateRefund(ctx context.Context, req payment.RefundRequest) (*models.Transaction, error)
	GetTransaction(ctx context.Context, kind models.Kind, id uuid.UUID) (*models.Transaction, error)
}

// PaymentHandler handles payment, payout and refund endpoints
type PaymentHandler struct {
	payments PaymentService
	logger   *zap.Logger
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{
		payments: payments,
		logger:   logger.Named("http"),
	}
}

// InitiatePayin handles seat payment requests
func (h *PaymentHandler) InitiatePayin(c *gin.Context) {
	var req payment.PayinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.payments.InitiatePayin(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// InitiatePayout handles driver payout requests
func (h *PaymentHandler) InitiatePayout(c *gin.Context) {
	var req payment.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.payments.InitiatePayout(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// InitiateRefund handles refund requests
func (h *PaymentHandler) InitiateRefund(c *gin.Context) {
	var req payment.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tx, err := h.payments.InitiateRefund(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, tx)
}

// GetTransaction returns one payment, payout or refund
func (h *PaymentHandler) GetTransaction(c *gin.Context) {
	kind, err := models.ParseKind(c.Param("kind"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, h.logger, fmt.Errorf("%w: invalid transaction id", models.ErrInvalidRequest))
		return
	}

	tx, err := h.payments.GetTransaction(c.Request.Context(), kind, id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, tx)
}
