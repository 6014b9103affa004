package mtn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/utils"
	"go.uber.org/zap"
)

// party represents the payer or payee of a MoMo transaction
type party struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

// requestToPayRequest represents the request to pay payload
type requestToPayRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payer        party  `json:"payer"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// transferRequest represents a disbursement transfer payload
type transferRequest struct {
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	ExternalID   string `json:"externalId"`
	Payee        party  `json:"payee"`
	PayerMessage string `json:"payerMessage"`
	PayeeNote    string `json:"payeeNote"`
}

// refundRequest represents a disbursement refund payload
type refundRequest struct {
	Amount              string `json:"amount"`
	Currency            string `json:"currency"`
	ExternalID          string `json:"externalId"`
	PayerMessage        string `json:"payerMessage"`
	PayeeNote           string `json:"payeeNote"`
	ReferenceIDToRefund string `json:"referenceIdToRefund"`
}

// transactionStatus represents the status of a collection, transfer or refund
type transactionStatus struct {
	Amount                 string          `json:"amount"`
	Currency               string          `json:"currency"`
	ExternalID             string          `json:"externalId"`
	FinancialTransactionID string          `json:"financialTransactionId"`
	Status                 string          `json:"status"`
	Reason                 json.RawMessage `json:"reason,omitempty"`
}

// accepted is recorded as the raw response of a 202, which has no body
type accepted struct {
	ReferenceID string `json:"referenceId"`
	ExternalID  string `json:"externalId"`
	Status      string `json:"status"`
	HTTPStatus  int    `json:"httpStatus"`
}

// Payin sends a request-to-pay to the passenger's wallet
func (c *Client) Payin(ctx context.Context, req providers.PayinRequest) (*providers.Result, error) {
	body := requestToPayRequest{
		Amount:       providers.FormatAmount(req.Amount, req.Currency),
		Currency:     req.Currency,
		ExternalID:   req.ReferenceID,
		Payer:        party{PartyIDType: "MSISDN", PartyID: req.PhoneNumber},
		PayerMessage: note(req.Reason),
		PayeeNote:    note(req.Reason),
	}
	return c.submit(ctx, productCollection, requestToPayEndpoint, req.ReferenceID, body)
}

// Payout transfers driver earnings from the disbursement account
func (c *Client) Payout(ctx context.Context, req providers.PayoutRequest) (*providers.Result, error) {
	body := transferRequest{
		Amount:       providers.FormatAmount(req.Amount, req.Currency),
		Currency:     req.Currency,
		ExternalID:   req.ReferenceID,
		Payee:        party{PartyIDType: "MSISDN", PartyID: req.PhoneNumber},
		PayerMessage: note(req.Reason),
		PayeeNote:    note(req.Reason),
	}
	return c.submit(ctx, productDisbursement, transferEndpoint, req.ReferenceID, body)
}

// Refund reverses a request-to-pay using the native refund endpoint
func (c *Client) Refund(ctx context.Context, req providers.RefundRequest) (*providers.Result, error) {
	if req.OriginalReferenceID == "" {
		return nil, fmt.Errorf("%w: mtn refund requires the original reference id", providers.ErrProviderRejected)
	}
	body := refundRequest{
		Amount:              providers.FormatAmount(req.Amount, req.Currency),
		Currency:            req.Currency,
		ExternalID:          req.ReferenceID,
		PayerMessage:        note(req.Reason),
		PayeeNote:           note(req.Reason),
		ReferenceIDToRefund: req.OriginalReferenceID,
	}
	return c.submit(ctx, productDisbursement, refundEndpoint, req.ReferenceID, body)
}

// submit posts an initiation request. MoMo answers 202 with an empty body; the outcome arrives
// by callback or status poll under our X-Reference-Id.
func (c *Client) submit(ctx context.Context, p product, endpoint, referenceID string, body interface{}) (*providers.Result, error) {
	r, err := c.request(ctx, p)
	if err != nil {
		return nil, err
	}
	r.SetHeader("X-Reference-Id", referenceID).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if c.cfg.CallbackURL != "" {
		r.SetHeader("X-Callback-Url", c.cfg.CallbackURL)
	}

	resp, err := r.Post(endpoint)
	if err == nil && resp.StatusCode() == http.StatusConflict {
		// A retried POST whose first attempt already landed
		c.logger.Info("reference already accepted", zap.String("reference_id", referenceID))
	} else if err := providers.CheckResponse("mtn "+endpoint, resp, err); err != nil {
		return nil, err
	}

	raw, _ := json.Marshal(accepted{
		ReferenceID: referenceID,
		ExternalID:  referenceID,
		Status:      "PENDING",
		HTTPStatus:  resp.StatusCode(),
	})
	return &providers.Result{
		ProviderReferenceID: referenceID,
		RawStatus:           "PENDING",
		RawResponse:         raw,
	}, nil
}

// CheckStatus polls the product endpoint matching the transaction kind
func (c *Client) CheckStatus(ctx context.Context, query providers.StatusQuery) (*providers.StatusResult, error) {
	p, endpoint := productCollection, requestToPayEndpoint
	switch query.Kind {
	case models.KindPayout:
		p, endpoint = productDisbursement, transferEndpoint
	case models.KindRefund:
		p, endpoint = productDisbursement, refundEndpoint
	}
	if query.ProviderReferenceID == "" {
		return nil, fmt.Errorf("%w: mtn status requires a reference id", providers.ErrProviderRejected)
	}

	r, err := c.request(ctx, p)
	if err != nil {
		return nil, err
	}
	resp, err := r.Get(endpoint + "/" + query.ProviderReferenceID)
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return &providers.StatusResult{Found: false, RawResponse: resp.Body()}, nil
	}
	if err := providers.CheckResponse("mtn status", resp, err); err != nil {
		return nil, err
	}

	return parseStatus(resp)
}

func parseStatus(resp *resty.Response) (*providers.StatusResult, error) {
	var st transactionStatus
	if err := json.Unmarshal(resp.Body(), &st); err != nil {
		return nil, fmt.Errorf("%w: mtn status: malformed response: %v", providers.ErrProviderUnavailable, err)
	}
	return &providers.StatusResult{
		Found:                 true,
		ProviderTransactionID: st.FinancialTransactionID,
		RawStatus:             st.Status,
		RawResponse:           resp.Body(),
		Reason:                reasonText(st.Reason),
	}, nil
}

// reasonText accepts both the string and the {code, message} forms MoMo uses
func reasonText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return strings.TrimSpace(obj.Code + ": " + obj.Message)
		}
		return obj.Code
	}
	return string(raw)
}

// note trims free text to the 160 characters MoMo accepts
func note(s string) string {
	if s == "" {
		return "Seat payment"
	}
	return utils.TruncateString(s, 160)
}
