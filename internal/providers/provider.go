package providers

import (
	"context"

	"github.com/seatpay/backend/internal/models"
	"github.com/shopspring/decimal"
)

// Adapter translates generic payin/payout/refund/status calls into one provider's HTTP protocol
type Adapter interface {
	Name() models.Provider
	// ValidateConfig reports missing credentials without touching the network.
	ValidateConfig() error
	Payin(ctx context.Context, req PayinRequest) (*Result, error)
	Payout(ctx context.Context, req PayoutRequest) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*Result, error)
	CheckStatus(ctx context.Context, query StatusQuery) (*StatusResult, error)
	// ParseCallback extracts the correlation ids and raw status from a webhook body.
	ParseCallback(body []byte) (*Callback, error)
}

// PayinRequest represents a collection from a passenger's wallet
type PayinRequest struct {
	ReferenceID string
	PhoneNumber string
	Amount      decimal.Decimal
	Currency    string
	Reason      string
}

// PayoutRequest represents a disbursement to a driver's wallet
type PayoutRequest struct {
	ReferenceID  string
	PhoneNumber  string
	Amount       decimal.Decimal
	Currency     string
	Reason       string
	CustomerName string
}

// RefundRequest represents a reversal of part or all of a completed payin
type RefundRequest struct {
	ReferenceID                   string
	OriginalReferenceID           string
	OriginalProviderTransactionID string
	PhoneNumber                   string
	Amount                        decimal.Decimal
	Currency                      string
	Reason                        string
}

// StatusQuery identifies the transaction to poll
type StatusQuery struct {
	Kind                  models.Kind
	ProviderReferenceID   string
	ProviderTransactionID string
}

// Result is the generic outcome of an accepted initiation call
type Result struct {
	ProviderReferenceID   string
	ProviderTransactionID string
	RawStatus             string
	RawResponse           []byte
	// RefundViaPayout is set when the provider has no native refund and the money was sent back as a payout.
	RefundViaPayout bool
}

// StatusResult is the generic outcome of a status poll.
// Found is false when the provider has not indexed the transaction (yet).
type StatusResult struct {
	Found                 bool
	ProviderTransactionID string
	RawStatus             string
	RawResponse           []byte
	Reason                string
}

// Callback is a parsed provider notification
type Callback struct {
	ReferenceID   string
	TransactionID string
	RawStatus     string
	Reason        string
	// Kind is set when the payload itself says which kind of transaction it is about.
	Kind models.Kind
}
