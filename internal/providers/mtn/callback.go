package mtn

import (
	"encoding/json"
	"fmt"

	"github.com/seatpay/backend/internal/providers"
)

// Notification represents a callback from MTN MoMo. The same shape is used for
// request-to-pay, transfer and refund callbacks.
type Notification struct {
	ReferenceID            string          `json:"referenceId"`
	ExternalID             string          `json:"externalId"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason,omitempty"`
}

// ParseCallback parses a MoMo callback body
func (c *Client) ParseCallback(body []byte) (*providers.Callback, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("mtn callback: %w", err)
	}

	// externalId carries our reference when the callback omits referenceId
	ref := n.ReferenceID
	if ref == "" {
		ref = n.ExternalID
	}
	if ref == "" && n.FinancialTransactionID == "" {
		return nil, fmt.Errorf("mtn callback: no correlation id")
	}

	return &providers.Callback{
		ReferenceID:   ref,
		TransactionID: n.FinancialTransactionID,
		RawStatus:     n.Status,
		Reason:        reasonText(n.Reason),
	}, nil
}
