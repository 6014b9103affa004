// Package status maps each provider's raw status vocabulary onto the canonical statuses.
package status

import (
	"strings"

	"github.com/seatpay/backend/internal/models"
)

var vocabularies = map[models.Provider]map[string]models.Status{
	models.ProviderMTN: {
		"PENDING":    models.StatusPending,
		"CREATED":    models.StatusPending,
		"ONGOING":    models.StatusProcessing,
		"SUCCESSFUL": models.StatusCompleted,
		// MTN sandboxes and some operator gateways misspell it
		"SUCCESSFULL": models.StatusCompleted,
		"SUCCESFUL":   models.StatusCompleted,
		"SUCCESS":     models.StatusCompleted,
		"FAILED":      models.StatusFailed,
		"REJECTED":    models.StatusFailed,
		"TIMEOUT":     models.StatusFailed,
		"EXPIRED":     models.StatusFailed,
		"CANCELLED":   models.StatusFailed,
	},
	models.ProviderOrange: {
		"PENDING":     models.StatusPending,
		"INITIATED":   models.StatusPending,
		"PROCESSING":  models.StatusProcessing,
		"SUCCESSFULL": models.StatusCompleted,
		"SUCCESSFUL":  models.StatusCompleted,
		"SUCCESS":     models.StatusCompleted,
		"FAILED":      models.StatusFailed,
		"FAILLED":     models.StatusFailed,
		"CANCELLED":   models.StatusFailed,
		"CANCELED":    models.StatusFailed,
		"EXPIRED":     models.StatusFailed,
		"REJECTED":    models.StatusFailed,
	},
	models.ProviderPawaPay: {
		"ACCEPTED":          models.StatusPending,
		"ENQUEUED":          models.StatusPending,
		"DUPLICATE_IGNORED": models.StatusPending,
		"SUBMITTED":         models.StatusProcessing,
		"IN_RECONCILIATION": models.StatusProcessing,
		"PROCESSING":        models.StatusProcessing,
		"COMPLETED":         models.StatusCompleted,
		"FAILED":            models.StatusFailed,
		"REJECTED":          models.StatusFailed,
	},
}

// Map returns the canonical status for a raw provider status, or models.StatusUnknown.
func Map(provider models.Provider, raw string) models.Status {
	table, ok := vocabularies[provider]
	if !ok {
		return models.StatusUnknown
	}
	if s, ok := table[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return models.StatusUnknown
}

// Vocabulary returns a copy of the known raw statuses for a provider.
func Vocabulary(provider models.Provider) map[string]models.Status {
	out := make(map[string]models.Status, len(vocabularies[provider]))
	for k, v := range vocabularies[provider] {
		out[k] = v
	}
	return out
}
