package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/seatpay/backend/internal/collaborators"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/services/payment"
	"go.uber.org/zap"
)

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDuplicatePayment),
		errors.Is(err, models.ErrDuplicatePayout),
		errors.Is(err, models.ErrDuplicateReference),
		errors.Is(err, models.ErrAlreadyPaid),
		errors.Is(err, payment.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, providers.ErrProviderRejected),
		errors.Is(err, models.ErrRefundExceedsPayin),
		errors.Is(err, models.ErrPayoutNotAllowed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, providers.ErrProviderAuth),
		errors.Is(err, providers.ErrNotConfigured),
		errors.Is(err, payment.ErrProviderNotRegistered):
		return http.StatusBadGateway
	case errors.Is(err, providers.ErrProviderUnavailable),
		errors.Is(err, collaborators.ErrCollaboratorUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrTransactionNotFound),
		errors.Is(err, models.ErrBookingNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err in the {"error": ...} shape. Unclassified errors are logged
// and reported without detail.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(code, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
