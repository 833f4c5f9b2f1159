package client

import (
	"net/http"
	"time"
)

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client (5 minute timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sends token as a bearer credential, for deployments behind an
// authenticating proxy.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithLogger(l Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithRetryMax bounds retries of 429 and 5xx replies. Zero disables them.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithRetryWait sets the backoff bounds. Ignored unless min is positive;
// max is kept only when max >= min.
func WithRetryWait(min, max time.Duration) Option {
	return func(c *Client) {
		if min <= 0 {
			return
		}
		c.retryWaitMin = min
		if max >= min {
			c.retryWaitMax = max
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}
