package pawapay

import (
	"encoding/json"
	"fmt"

	"github.com/seatpay/backend/internal/providers"
)

// ParseCallback parses a deposit, payout or refund callback. The id field present tells the kind.
func (c *Client) ParseCallback(body []byte) (*providers.Callback, error) {
	var t Transaction
	if err := json.Unmarshal(body, &t); err != nil {
		return nil, fmt.Errorf("pawapay callback: %w", err)
	}
	id, kind := t.id()
	if id == "" {
		return nil, fmt.Errorf("pawapay callback: no depositId, payoutId or refundId")
	}
	return &providers.Callback{
		ReferenceID:   id,
		TransactionID: id,
		RawStatus:     t.Status,
		Reason:        t.reason(),
		Kind:          kind,
	}, nil
}
