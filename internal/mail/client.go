// Package mail sends email through an HTTP email API.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
)

// ErrMailDisabled is returned when no API endpoint or key is configured.
var ErrMailDisabled = errors.New("email delivery not configured")

const (
	RequestTimeout = 20 * time.Second
	MaxAttempts    = 4
)

// Config points the client at the provider's send endpoint.
type Config struct {
	APIURL string
	APIKey string
	From   string
}

// Message is one outgoing email.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

type sendRequest struct {
	From string `json:"from"`
	Message
}

type sendResponse struct {
	ID string `json:"id"`
}

// APIError is a non-2xx answer from the provider.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("email API returned %d: %s", e.Status, e.Body)
}

// Client posts messages as JSON with a bearer token, retrying transient
// failures with exponential backoff.
type Client struct {
	http       *resty.Client
	from       string
	enabled    bool
	newBackoff func() backoff.BackOff
}

func NewClient(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.APIURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "application/json").
		SetTimeout(RequestTimeout)

	return &Client{
		http:       c,
		from:       cfg.From,
		enabled:    cfg.APIURL != "" && cfg.APIKey != "",
		newBackoff: defaultBackoff,
	}
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = time.Minute
	return backoff.WithMaxRetries(b, MaxAttempts-1)
}

// Enabled reports whether Send can deliver anything.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Send delivers msg and returns the provider's message ID.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if !c.enabled {
		return "", ErrMailDisabled
	}
	if len(msg.To) == 0 {
		return "", errors.New("email has no recipients")
	}

	attempt := 0
	op := func() (string, error) {
		attempt++
		var out sendResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(sendRequest{From: c.from, Message: msg}).
			SetResult(&out).
			ForceContentType("application/json").
			Post("/emails")
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(ctx.Err())
			}
			return "", err
		}
		if resp.IsError() {
			apiErr := &APIError{Status: resp.StatusCode(), Body: strings.TrimSpace(resp.String())}
			if !retryable(resp.StatusCode()) {
				return "", backoff.Permanent(apiErr)
			}
			return "", apiErr
		}
		return out.ID, nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("email send failed, retrying", "attempt", attempt, "retry_in", wait, "error", err)
	}
	return backoff.RetryNotifyWithData(op, backoff.WithContext(c.newBackoff(), ctx), notify)
}

func retryable(status int) bool {
	switch status {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
