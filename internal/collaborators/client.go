// Package collaborators holds the HTTP clients for the booking and notification services.
package collaborators

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrCollaboratorUnavailable is returned for transport errors and 5xx answers
var ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

// Options configures a collaborator client
type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// RetryCount below zero disables retries
	RetryCount int
}

func newClient(opts Options) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	retries := opts.RetryCount
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 2
	}

	c := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		})
	if opts.APIKey != "" {
		c.SetHeader("X-API-Key", opts.APIKey)
	}
	return c
}

// check turns a failed call into an error. notFound is returned for 404 when set.
func check(op string, resp *resty.Response, err error, notFound error) error {
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrCollaboratorUnavailable, err)
	}
	code := resp.StatusCode()
	switch {
	case code == http.StatusNotFound && notFound != nil:
		return fmt.Errorf("%s: %w", op, notFound)
	case code >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: status %d", op, ErrCollaboratorUnavailable, code)
	case code >= http.StatusBadRequest:
		return fmt.Errorf("%s: status %d: %s", op, code, resp.String())
	}
	return nil
}
