package orange

import (
	"encoding/json"
	"fmt"

	"github.com/seatpay/backend/internal/providers"
)

// Notification represents an Orange Money payment notification
type Notification struct {
	PayToken   string `json:"payToken"`
	OrderID    string `json:"orderId"`
	ExternalID string `json:"externalId"`
	TxnID      string `json:"txnid"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// ParseCallback parses an Orange notification. Some gateways wrap it in a data block.
func (c *Client) ParseCallback(body []byte) (*providers.Callback, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("orange callback: %w", err)
	}
	if n.PayToken == "" && n.OrderID == "" && n.ExternalID == "" {
		var env struct {
			Data Notification `json:"data"`
		}
		if err := json.Unmarshal(body, &env); err == nil {
			n = env.Data
		}
	}

	ref := n.OrderID
	if ref == "" {
		ref = n.ExternalID
	}
	if ref == "" && n.PayToken == "" {
		return nil, fmt.Errorf("orange callback: no correlation id")
	}

	return &providers.Callback{
		ReferenceID:   ref,
		TransactionID: n.PayToken,
		RawStatus:     n.Status,
		Reason:        n.Message,
	}, nil
}
