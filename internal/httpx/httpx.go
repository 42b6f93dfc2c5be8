// Package httpx builds the shared resty HTTP client used by provider
// adapters and the download engine: connection pooling, retry on
// transient status codes, and the functional-options shape the teacher
// uses for its downloaders' *http.Client (figshare.WithTimeout,
// figshare.WithHTTPClient) generalized onto a resty.Client.
package httpx

import (
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// retryableStatus is the set spec.md §4.3 names: 429, 500, 502, 503, 504.
var retryableStatus = map[int]bool{
	429: true, 500: true, 502: true, 503: true, 504: true,
}

// Option configures a client the same way figshare.Option configures a
// Downloader: small functional mutators applied in New.
type Option func(*resty.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *resty.Client) { c.SetTimeout(d) }
}

func WithUserAgent(ua string) Option {
	return func(c *resty.Client) { c.SetHeader("User-Agent", ua) }
}

// New returns a resty client configured per spec.md §4.3's HTTP policy:
// at least 10 connection pools of at least 20 connections each, up to 3
// retries on the retryable status set with exponential backoff.
func New(opts ...Option) *resty.Client {
	transport := &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost:  20,
		MaxConnsPerHost:      20,
		IdleConnTimeout:      90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	c := resty.New().
		SetTransport(transport).
		SetTimeout(60 * time.Second).
		SetHeader("User-Agent", "geoextent-go/1.0").
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(30 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return retryableStatus[r.StatusCode()]
		})

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// IsRetryableStatus reports whether code is in the client's retry
// status set (429, 500, 502, 503, 504).
func IsRetryableStatus(code int) bool { return retryableStatus[code] }
