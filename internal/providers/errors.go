package providers

import "errors"

var (
	// ErrProviderUnavailable covers network errors, timeouts and 5xx responses after retries
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrProviderRejected covers business declines (invalid phone, limits, synchronous rejection)
	ErrProviderRejected = errors.New("provider rejected the request")
	// ErrProviderAuth covers credential failures and token exchange errors
	ErrProviderAuth = errors.New("provider authentication failed")
	// ErrNotConfigured is returned when required credentials are missing
	ErrNotConfigured = errors.New("provider not configured")
)
