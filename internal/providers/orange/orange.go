// Package orange implements the Orange Money Cameroon web payment adapter.
package orange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultBaseURL  = "https://api-s1.orange.cm/omcoreapis/1.0.2"
	defaultTokenURL = "https://api-s1.orange.cm/token"

	mpInitEndpoint       = "/mp/init"
	mpPayEndpoint        = "/mp/pay"
	mpStatusEndpoint     = "/mp/paymentstatus/"
	cashinInitEndpoint   = "/cashin/init"
	cashinPayEndpoint    = "/cashin/pay"
	cashinStatusEndpoint = "/cashin/paymentstatus/"
)

// Config holds the Orange Money API credentials
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// AuthToken is the merchant X-AUTH-TOKEN header value
	AuthToken         string
	ChannelUserMSISDN string
	PIN               string
	NotifyURL         string
	HTTP              providers.HTTPOptions
}

// Client is the Orange Money adapter
type Client struct {
	cfg    Config
	http   *resty.Client
	tokens oauth2.TokenSource
	logger *zap.Logger
}

var _ providers.Adapter = (*Client)(nil)

// NewClient creates a new Orange Money adapter. Access tokens are fetched with the
// client-credentials grant and reused until they expire.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := providers.NewHTTPClient(cfg.BaseURL, cfg.HTTP)
	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient.GetClient())

	return &Client{
		cfg:    cfg,
		http:   httpClient,
		tokens: cc.TokenSource(tokenCtx),
		logger: logger.Named("orange"),
	}
}

// Name returns the provider name
func (c *Client) Name() models.Provider {
	return models.ProviderOrange
}

// ValidateConfig checks that all credentials are present
func (c *Client) ValidateConfig() error {
	missing := []string{}
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		missing = append(missing, "ORANGE_CLIENT_ID/ORANGE_CLIENT_SECRET")
	}
	if c.cfg.AuthToken == "" {
		missing = append(missing, "ORANGE_AUTH_TOKEN")
	}
	if c.cfg.ChannelUserMSISDN == "" || c.cfg.PIN == "" {
		missing = append(missing, "ORANGE_CHANNEL_MSISDN/ORANGE_PIN")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: orange: missing %v", providers.ErrNotConfigured, missing)
	}
	return nil
}

// envelope is the wrapper Orange puts around every response
type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// paymentData represents the data block of pay and status responses
type paymentData struct {
	ID                int    `json:"id"`
	PayToken          string `json:"payToken"`
	TxnID             string `json:"txnid"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	SubscriberMSISDN  string `json:"subscriberMsisdn"`
	InitTxnMessage    string `json:"inittxnmessage"`
	ConfirmTxnMessage string `json:"confirmtxnmessage"`
	OrderID           string `json:"orderId"`
}

// payRequest represents the mp/pay and cashin/pay payload
type payRequest struct {
	NotifURL          string `json:"notifUrl,omitempty"`
	ChannelUserMSISDN string `json:"channelUserMsisdn"`
	Amount            string `json:"amount"`
	SubscriberMSISDN  string `json:"subscriberMsisdn"`
	PIN               string `json:"pin"`
	OrderID           string `json:"orderId"`
	Description       string `json:"description"`
	PayToken          string `json:"payToken"`
}

// request builds a request carrying the bearer token and the merchant auth header
func (c *Client) request(ctx context.Context) (*resty.Request, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("%w: orange client credentials", providers.ErrNotConfigured)
	}
	tok, err := c.tokens.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: orange token: %w", providers.ErrProviderUnavailable, err)
		}
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: orange token: %w", providers.ErrProviderAuth, err)
		}
		return nil, fmt.Errorf("%w: orange token: %w", providers.ErrProviderUnavailable, err)
	}
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(tok.AccessToken).
		SetHeader("X-AUTH-TOKEN", c.cfg.AuthToken).
		SetHeader("Content-Type", "application/json"), nil
}

// initiate obtains a payToken from an init endpoint
func (c *Client) initiate(ctx context.Context, endpoint string) (string, error) {
	r, err := c.request(ctx)
	if err != nil {
		return "", err
	}
	resp, err := r.Post(endpoint)
	if err := providers.CheckResponse("orange "+endpoint, resp, err); err != nil {
		return "", err
	}

	var env envelope
	var data struct {
		PayToken string `json:"payToken"`
	}
	if err := json.Unmarshal(resp.Body(), &env); err == nil {
		_ = json.Unmarshal(env.Data, &data)
	}
	if data.PayToken == "" {
		return "", fmt.Errorf("%w: orange %s: no payToken in response", providers.ErrProviderUnavailable, endpoint)
	}
	return data.PayToken, nil
}

// pay confirms a payToken. The call returns once the subscriber prompt is queued.
func (c *Client) pay(ctx context.Context, initEndpoint, payEndpoint string, body payRequest) (*providers.Result, error) {
	payToken, err := c.initiate(ctx, initEndpoint)
	if err != nil {
		return nil, err
	}
	body.PayToken = payToken
	body.ChannelUserMSISDN = c.cfg.ChannelUserMSISDN
	body.PIN = c.cfg.PIN
	body.NotifURL = c.cfg.NotifyURL

	r, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := r.SetBody(body).Post(payEndpoint)
	if err := providers.CheckResponse("orange "+payEndpoint, resp, err); err != nil {
		return nil, err
	}

	var env envelope
	var data paymentData
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: orange %s: malformed response: %v", providers.ErrProviderUnavailable, payEndpoint, err)
	}
	_ = json.Unmarshal(env.Data, &data)

	rawStatus := data.Status
	if rawStatus == "" {
		rawStatus = "PENDING"
	}
	c.logger.Debug("payment submitted",
		zap.String("reference_id", body.OrderID),
		zap.String("pay_token", payToken),
		zap.String("status", rawStatus),
	)
	return &providers.Result{
		ProviderReferenceID:   body.OrderID,
		ProviderTransactionID: payToken,
		RawStatus:             rawStatus,
		RawResponse:           resp.Body(),
	}, nil
}

// Payin collects a merchant payment from the passenger
func (c *Client) Payin(ctx context.Context, req providers.PayinRequest) (*providers.Result, error) {
	return c.pay(ctx, mpInitEndpoint, mpPayEndpoint, payRequest{
		Amount:           providers.FormatAmount(req.Amount, req.Currency),
		SubscriberMSISDN: utils.LocalNumber(req.PhoneNumber),
		OrderID:          req.ReferenceID,
		Description:      description(req.Reason),
	})
}

// Payout sends a cash-in to the driver
func (c *Client) Payout(ctx context.Context, req providers.PayoutRequest) (*providers.Result, error) {
	return c.pay(ctx, cashinInitEndpoint, cashinPayEndpoint, payRequest{
		Amount:           providers.FormatAmount(req.Amount, req.Currency),
		SubscriberMSISDN: utils.LocalNumber(req.PhoneNumber),
		OrderID:          req.ReferenceID,
		Description:      description(req.Reason),
	})
}

// Refund has no native endpoint; the money goes back to the payer as a cash-in
func (c *Client) Refund(ctx context.Context, req providers.RefundRequest) (*providers.Result, error) {
	res, err := c.Payout(ctx, providers.PayoutRequest{
		ReferenceID: req.ReferenceID,
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reason:      req.Reason,
	})
	if err != nil {
		return nil, err
	}
	res.RefundViaPayout = true
	return res, nil
}

// CheckStatus polls by payToken, which is stored as the provider transaction id
func (c *Client) CheckStatus(ctx context.Context, query providers.StatusQuery) (*providers.StatusResult, error) {
	if query.ProviderTransactionID == "" {
		// init never returned, so Orange has nothing under our reference
		return &providers.StatusResult{Found: false}, nil
	}
	endpoint := mpStatusEndpoint
	if query.Kind == models.KindPayout || query.Kind == models.KindRefund {
		endpoint = cashinStatusEndpoint
	}

	r, err := c.request(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := r.Get(endpoint + query.ProviderTransactionID)
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		return &providers.StatusResult{Found: false, RawResponse: resp.Body()}, nil
	}
	if err := providers.CheckResponse("orange status", resp, err); err != nil {
		return nil, err
	}

	var env envelope
	var data paymentData
	if err := json.Unmarshal(resp.Body(), &env); err != nil {
		return nil, fmt.Errorf("%w: orange status: malformed response: %v", providers.ErrProviderUnavailable, err)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &providers.StatusResult{Found: false, RawResponse: resp.Body()}, nil
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: orange status: malformed data: %v", providers.ErrProviderUnavailable, err)
	}

	reason := data.ConfirmTxnMessage
	if reason == "" {
		reason = data.InitTxnMessage
	}
	return &providers.StatusResult{
		Found:                 true,
		ProviderTransactionID: data.PayToken,
		RawStatus:             data.Status,
		RawResponse:           resp.Body(),
		Reason:                reason,
	}, nil
}

func description(reason string) string {
	if reason == "" {
		return "Seat payment"
	}
	return utils.TruncateString(reason, 125)
}
