// Package mtn implements the MTN Mobile Money (MoMo Open API) adapter.
package mtn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/seatpay/backend/internal/models"
	"github.com/seatpay/backend/internal/providers"
	"github.com/seatpay/backend/internal/tokencache"
	"go.uber.org/zap"
)

const (
	// API endpoints
	sandboxBaseURL = "https://sandbox.momodeveloper.mtn.com"

	// Collection API endpoints
	collectionTokenEndpoint = "/collection/token/"
	requestToPayEndpoint    = "/collection/v1_0/requesttopay"

	// Disbursement API endpoints
	disbursementTokenEndpoint = "/disbursement/token/"
	transferEndpoint          = "/disbursement/v1_0/transfer"
	refundEndpoint            = "/disbursement/v1_0/refund"

	tokenMargin = 60 * time.Second
)

type product string

const (
	productCollection   product = "collection"
	productDisbursement product = "disbursement"
)

// Config holds the MoMo Open API credentials. Each product has its own subscription key and API user.
type Config struct {
	BaseURL                     string
	TargetEnvironment           string
	CollectionSubscriptionKey   string
	CollectionAPIUser           string
	CollectionAPIKey            string
	DisbursementSubscriptionKey string
	DisbursementAPIUser         string
	DisbursementAPIKey          string
	CallbackURL                 string
	HTTP                        providers.HTTPOptions
}

// Client is the MTN MoMo adapter
type Client struct {
	cfg    Config
	http   *resty.Client
	tokens tokencache.Cache
	logger *zap.Logger
}

var _ providers.Adapter = (*Client)(nil)

// NewClient creates a new MTN Mobile Money adapter
func NewClient(cfg Config, tokens tokencache.Cache, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = sandboxBaseURL
	}
	if cfg.TargetEnvironment == "" {
		cfg.TargetEnvironment = "sandbox"
	}
	if tokens == nil {
		tokens = tokencache.NewMemoryCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:    cfg,
		http:   providers.NewHTTPClient(cfg.BaseURL, cfg.HTTP),
		tokens: tokens,
		logger: logger.Named("mtn"),
	}
}

// Name returns the provider name
func (c *Client) Name() models.Provider {
	return models.ProviderMTN
}

// ValidateConfig checks that both products have credentials
func (c *Client) ValidateConfig() error {
	missing := []string{}
	if c.cfg.CollectionSubscriptionKey == "" {
		missing = append(missing, "MTN_COLLECTION_SUBSCRIPTION_KEY")
	}
	if c.cfg.CollectionAPIUser == "" || c.cfg.CollectionAPIKey == "" {
		missing = append(missing, "MTN_COLLECTION_API_USER/MTN_COLLECTION_API_KEY")
	}
	if c.cfg.DisbursementSubscriptionKey == "" {
		missing = append(missing, "MTN_DISBURSEMENT_SUBSCRIPTION_KEY")
	}
	if c.cfg.DisbursementAPIUser == "" || c.cfg.DisbursementAPIKey == "" {
		missing = append(missing, "MTN_DISBURSEMENT_API_USER/MTN_DISBURSEMENT_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: mtn: missing %v", providers.ErrNotConfigured, missing)
	}
	return nil
}

// tokenResponse represents the OAuth token response
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) credentials(p product) (subscriptionKey, user, key, endpoint string) {
	if p == productDisbursement {
		return c.cfg.DisbursementSubscriptionKey, c.cfg.DisbursementAPIUser, c.cfg.DisbursementAPIKey, disbursementTokenEndpoint
	}
	return c.cfg.CollectionSubscriptionKey, c.cfg.CollectionAPIUser, c.cfg.CollectionAPIKey, collectionTokenEndpoint
}

// token returns a cached access token for the product or exchanges the API user credentials for one
func (c *Client) token(ctx context.Context, p product) (string, error) {
	subscriptionKey, user, key, endpoint := c.credentials(p)
	if user == "" || key == "" {
		return "", fmt.Errorf("%w: mtn %s credentials", providers.ErrNotConfigured, p)
	}

	cacheKey := fmt.Sprintf("mtn:%s:%s", p, user)
	if tok, ok, err := c.tokens.Get(ctx, cacheKey); err != nil {
		c.logger.Warn("token cache read failed", zap.Error(err))
	} else if ok {
		return tok, nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(user, key).
		SetHeader("Ocp-Apim-Subscription-Key", subscriptionKey).
		Post(endpoint)
	if err == nil && resp.StatusCode() >= 400 && resp.StatusCode() < 500 {
		// Token endpoint rejections are credential problems
		return "", fmt.Errorf("%w: mtn %s token: status %d", providers.ErrProviderAuth, p, resp.StatusCode())
	}
	if err := providers.CheckResponse("mtn token", resp, err); err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil || tr.AccessToken == "" {
		return "", fmt.Errorf("%w: mtn %s token: malformed response", providers.ErrProviderAuth, p)
	}

	if err := c.tokens.Set(ctx, cacheKey, tr.AccessToken, tokencache.TTL(tr.ExpiresIn, tokenMargin)); err != nil {
		c.logger.Warn("token cache write failed", zap.Error(err))
	}
	return tr.AccessToken, nil
}

// request builds an authenticated request for a product
func (c *Client) request(ctx context.Context, p product) (*resty.Request, error) {
	tok, err := c.token(ctx, p)
	if err != nil {
		return nil, err
	}
	subscriptionKey, _, _, _ := c.credentials(p)
	return c.http.R().
		SetContext(ctx).
		SetAuthToken(tok).
		SetHeader("X-Target-Environment", c.cfg.TargetEnvironment).
		SetHeader("Ocp-Apim-Subscription-Key", subscriptionKey), nil
}
