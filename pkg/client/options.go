package client

import (
	"net/http"
	"time"
)

// Option configures a Client in NewClient.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client, e.g. to install a custom
// transport.  A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each attempt, not the whole retried call.  The client
// given to WithHTTPClient is copied rather than modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			return
		}
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithAPIKey sends key as a bearer token, for servers behind an
// authenticating gateway.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHeader adds a header to every request.  It cannot override the
// headers the client sets itself.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = make(http.Header)
		}
		c.headers.Add(key, value)
	}
}

func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRetryMax caps retries after the first attempt.  Zero disables
// retrying; negative values are ignored.
func WithRetryMax(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retryMax = n
		}
	}
}

// WithRetryWait sets the first backoff interval and its ceiling.  A
// non-positive first interval is ignored, as is a ceiling below it.
func WithRetryWait(first, ceiling time.Duration) Option {
	return func(c *Client) {
		if first <= 0 {
			return
		}
		c.retryWaitMin = first
		if ceiling >= first {
			c.retryWaitMax = ceiling
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(c *Client) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

//Personal.AI order the ending
