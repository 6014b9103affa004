// Package pawapay implements the pawaPay merchant API adapter.
package pawapay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gosimple/slug"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/utils"
	"go.uber.org/zap"
)

const (
	sandboxBaseURL = "https://api.sandbox.pawapay.cloud"

	depositsEndpoint = "/deposits"
	payoutsEndpoint  = "/payouts"
	refundsEndpoint  = "/refunds"

	correspondentMTN    = "MTN_MOMO_CMR"
	correspondentOrange = "ORANGE_CMR"
)

// Config holds the pawaPay credentials
type Config struct {
	BaseURL              string
	APIToken             string
	DefaultCorrespondent string
	HTTP                 providers.HTTPOptions
}

// Client is the pawaPay adapter
type Client struct {
	cfg    Config
	http   *resty.Client
	logger *zap.Logger
	now    func() time.Time
}

var _ providers.Adapter = (*Client)(nil)

// NewClient creates a new pawaPay adapter
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sandboxBaseURL
	}
	if cfg.DefaultCorrespondent == "" {
		cfg.DefaultCorrespondent = correspondentMTN
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   providers.NewHTTPClient(cfg.BaseURL, cfg.HTTP),
		logger: logger.Named("pawapay"),
		now:    time.Now,
	}
}

// Name returns the provider name
func (c *Client) Name() models.Provider {
	return models.ProviderPawaPay
}

// ValidateConfig checks that the API token is present
func (c *Client) ValidateConfig() error {
	if c.cfg.APIToken == "" {
		return fmt.Errorf("%w: pawapay: missing PAWAPAY_API_TOKEN", providers.ErrNotConfigured)
	}
	return nil
}

type address struct {
	Value string `json:"value"`
}

type account struct {
	Type    string  `json:"type"`
	Address address `json:"address"`
}

type depositRequest struct {
	DepositID            string  `json:"depositId"`
	Amount               string  `json:"amount"`
	Currency             string  `json:"currency"`
	Correspondent        string  `json:"correspondent"`
	Payer                account `json:"payer"`
	CustomerTimestamp    string  `json:"customerTimestamp"`
	StatementDescription string  `json:"statementDescription"`
}

type payoutRequest struct {
	PayoutID             string  `json:"payoutId"`
	Amount               string  `json:"amount"`
	Currency             string  `json:"currency"`
	Correspondent        string  `json:"correspondent"`
	Recipient            account `json:"recipient"`
	CustomerTimestamp    string  `json:"customerTimestamp"`
	StatementDescription string  `json:"statementDescription"`
}

type refundRequest struct {
	RefundID  string `json:"refundId"`
	DepositID string `json:"depositId"`
	Amount    string `json:"amount"`
}

// initiationResponse is returned by the deposit, payout and refund endpoints
type initiationResponse struct {
	DepositID       string           `json:"depositId"`
	PayoutID        string           `json:"payoutId"`
	RefundID        string           `json:"refundId"`
	Status          string           `json:"status"`
	RejectionReason *rejectionReason `json:"rejectionReason,omitempty"`
}

type rejectionReason struct {
	RejectionCode    string `json:"rejectionCode"`
	RejectionMessage string `json:"rejectionMessage"`
}

// Transaction is the shape of status lookups and callbacks
type Transaction struct {
	DepositID             string         `json:"depositId"`
	PayoutID              string         `json:"payoutId"`
	RefundID              string         `json:"refundId"`
	Status                string         `json:"status"`
	Amount                string         `json:"amount"`
	Currency              string         `json:"currency"`
	Correspondent         string         `json:"correspondent"`
	CorrespondentIDs      map[string]any `json:"correspondentIds,omitempty"`
	FailureReason         *failureReason `json:"failureReason,omitempty"`
	ProviderTransactionID string         `json:"providerTransactionId,omitempty"`
}

type failureReason struct {
	FailureCode    string `json:"failureCode"`
	FailureMessage string `json:"failureMessage"`
}

func (t Transaction) id() (string, models.Kind) {
	switch {
	case t.DepositID != "":
		return t.DepositID, models.KindPayin
	case t.PayoutID != "":
		return t.PayoutID, models.KindPayout
	case t.RefundID != "":
		return t.RefundID, models.KindRefund
	}
	return "", ""
}

func (t Transaction) reason() string {
	if t.FailureReason == nil {
		return ""
	}
	if t.FailureReason.FailureMessage != "" {
		return t.FailureReason.FailureCode + ": " + t.FailureReason.FailureMessage
	}
	return t.FailureReason.FailureCode
}

// Payin requests a deposit from the passenger's wallet
func (c *Client) Payin(ctx context.Context, req providers.PayinRequest) (*providers.Result, error) {
	body := depositRequest{
		DepositID:            req.ReferenceID,
		Amount:               providers.FormatAmount(req.Amount, req.Currency),
		Currency:             req.Currency,
		Correspondent:        c.correspondent(req.PhoneNumber),
		Payer:                account{Type: "MSISDN", Address: address{Value: req.PhoneNumber}},
		CustomerTimestamp:    c.now().UTC().Format(time.RFC3339),
		StatementDescription: StatementDescription(req.Reason),
	}
	return c.submit(ctx, depositsEndpoint, req.ReferenceID, body)
}

// Payout sends earnings to the driver's wallet
func (c *Client) Payout(ctx context.Context, req providers.PayoutRequest) (*providers.Result, error) {
	body := payoutRequest{
		PayoutID:             req.ReferenceID,
		Amount:               providers.FormatAmount(req.Amount, req.Currency),
		Currency:             req.Currency,
		Correspondent:        c.correspondent(req.PhoneNumber),
		Recipient:            account{Type: "MSISDN", Address: address{Value: req.PhoneNumber}},
		CustomerTimestamp:    c.now().UTC().Format(time.RFC3339),
		StatementDescription: StatementDescription(req.Reason),
	}
	return c.submit(ctx, payoutsEndpoint, req.ReferenceID, body)
}

// Refund reverses a completed deposit, identified by its depositId
func (c *Client) Refund(ctx context.Context, req providers.RefundRequest) (*providers.Result, error) {
	if req.OriginalReferenceID == "" {
		return nil, fmt.Errorf("%w: pawapay refund requires the original deposit id", providers.ErrProviderRejected)
	}
	body := refundRequest{
		RefundID:  req.ReferenceID,
		DepositID: req.OriginalReferenceID,
		Amount:    providers.FormatAmount(req.Amount, req.Currency),
	}
	return c.submit(ctx, refundsEndpoint, req.ReferenceID, body)
}

func (c *Client) submit(ctx context.Context, endpoint, referenceID string, body interface{}) (*providers.Result, error) {
	if c.cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: pawapay api token", providers.ErrNotConfigured)
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.cfg.APIToken).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(endpoint)
	if err := providers.CheckResponse("pawapay "+endpoint, resp, err); err != nil {
		return nil, err
	}

	var ir initiationResponse
	if err := json.Unmarshal(resp.Body(), &ir); err != nil {
		return nil, fmt.Errorf("%w: pawapay %s: malformed response: %v", providers.ErrProviderUnavailable, endpoint, err)
	}
	if strings.EqualFold(ir.Status, "REJECTED") {
		msg := "rejected"
		if ir.RejectionReason != nil {
			msg = ir.RejectionReason.RejectionCode + ": " + ir.RejectionReason.RejectionMessage
		}
		return nil, fmt.Errorf("%w: pawapay %s: %s", providers.ErrProviderRejected, endpoint, msg)
	}
	if ir.Status == "DUPLICATE_IGNORED" {
		c.logger.Info("duplicate submission ignored", zap.String("reference_id", referenceID))
	}

	return &providers.Result{
		ProviderReferenceID:   referenceID,
		ProviderTransactionID: referenceID,
		RawStatus:             ir.Status,
		RawResponse:           resp.Body(),
	}, nil
}

// CheckStatus looks the transaction up by our id. pawaPay answers with an array that is
// empty until the transaction is indexed.
func (c *Client) CheckStatus(ctx context.Context, query providers.StatusQuery) (*providers.StatusResult, error) {
	if c.cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: pawapay api token", providers.ErrNotConfigured)
	}
	endpoint := depositsEndpoint
	switch query.Kind {
	case models.KindPayout:
		endpoint = payoutsEndpoint
	case models.KindRefund:
		endpoint = refundsEndpoint
	}
	id := query.ProviderReferenceID
	if id == "" {
		id = query.ProviderTransactionID
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.cfg.APIToken).
		Get(endpoint + "/" + id)
	if err := providers.CheckResponse("pawapay status", resp, err); err != nil {
		return nil, err
	}

	var txs []Transaction
	if err := json.Unmarshal(resp.Body(), &txs); err != nil {
		return nil, fmt.Errorf("%w: pawapay status: malformed response: %v", providers.ErrProviderUnavailable, err)
	}
	if len(txs) == 0 {
		return &providers.StatusResult{Found: false, RawResponse: resp.Body()}, nil
	}
	return &providers.StatusResult{
		Found:       true,
		RawStatus:   txs[0].Status,
		RawResponse: resp.Body(),
		Reason:      txs[0].reason(),
	}, nil
}

// correspondent picks the mobile network operator for a Cameroonian number
func (c *Client) correspondent(msisdn string) string {
	switch utils.DetectNetwork(msisdn) {
	case utils.NetworkMTN:
		return correspondentMTN
	case utils.NetworkOrange:
		return correspondentOrange
	}
	return c.cfg.DefaultCorrespondent
}

// StatementDescription turns free text into the 4 to 22 alphanumeric characters pawaPay accepts
func StatementDescription(reason string) string {
	s := strings.ReplaceAll(slug.Make(reason), "-", " ")
	if len(s) > 22 {
		s = strings.TrimSpace(s[:22])
	}
	if len(s) < 4 {
		return "Seat payment"
	}
	return s
}
