package providers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultRetryCount   = 3
	defaultRetryWait    = 500 * time.Millisecond
	defaultRetryMaxWait = 4 * time.Second
)

// HTTPOptions tunes the provider HTTP client. Zero values fall back to the defaults.
type HTTPOptions struct {
	Timeout      time.Duration
	RetryCount   int
	RetryWait    time.Duration
	RetryMaxWait time.Duration
}

// NewHTTPClient builds the resty client shared by the adapters.
// Transport errors and 5xx are retried with exponential backoff; 4xx never is.
func NewHTTPClient(baseURL string, opts HTTPOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RetryCount < 0 {
		opts.RetryCount = 0
	} else if opts.RetryCount == 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = defaultRetryWait
	}
	if opts.RetryMaxWait <= 0 {
		opts.RetryMaxWait = defaultRetryMaxWait
	}

	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(opts.RetryMaxWait).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
		})
}

// CheckResponse classifies a finished call into the provider error taxonomy.
// It returns nil for 2xx responses.
func CheckResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrProviderUnavailable, err)
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrProviderAuth, code, truncate(resp.String()))
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrProviderUnavailable, code, truncate(resp.String()))
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrProviderRejected, code, truncate(resp.String()))
	}
	return nil
}

// FormatAmount renders an amount the way mobile-money APIs expect it.
// XAF has no minor unit.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if currency == "" || currency == "XAF" || currency == "XOF" {
		return amount.Round(0).String()
	}
	return amount.StringFixed(2)
}

func truncate(s string) string {
	const max = 256
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
