// Package httpclient builds the HTTP clients used to talk to the instance
// and to fetch rule documents.
package httpclient

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// LeveledSlog adapts slog to retryablehttp's leveled logger.
type LeveledSlog struct {
	inner *slog.Logger
}

// Error is logged at WARN because failures are retried.
func (l LeveledSlog) Error(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Warn(msg string, keysAndValues ...any) {
	l.inner.Warn(msg, keysAndValues...)
}

func (l LeveledSlog) Info(msg string, keysAndValues ...any) {
	l.inner.Info(msg, keysAndValues...)
}

func (l LeveledSlog) Debug(msg string, keysAndValues ...any) {
	l.inner.Debug(msg, keysAndValues...)
}

type Option func(*retryablehttp.Client)

// WithMaxRetries sets the maximum number of retries.
func WithMaxRetries(maxRetries int) Option {
	return func(client *retryablehttp.Client) {
		client.RetryMax = maxRetries
	}
}

// WithRetryWait sets the bounds of the backoff between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(client *retryablehttp.Client) {
		client.RetryWaitMin = waitMin
		client.RetryWaitMax = waitMax
	}
}

// WithTransport sets a custom transport.
func WithTransport(transport http.RoundTripper) Option {
	return func(client *retryablehttp.Client) {
		client.HTTPClient.Transport = transport
	}
}

// New returns a client that retries connection errors and 5xx responses
// (except 501) with backoff. 429 responses are handed back to the caller
// unretried so rate limits can end a pass instead of stalling it.
func New(timeout time.Duration, options ...Option) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient.Transport = cleanhttp.DefaultPooledTransport()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = retryablehttp.LeveledLogger(LeveledSlog{inner: slog.Default().With("subsystem", "http")})
	retryClient.CheckRetry = RetryPolicy
	// Hand the final response back instead of a generic "giving up" error.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	for _, option := range options {
		option(retryClient)
	}

	client := retryClient.StandardClient()
	client.Timeout = timeout
	return client
}

// NewStreaming returns a client for long-lived streaming responses: no
// overall timeout and no retries, since a retried stream would silently
// skip events.
func NewStreaming() *http.Client {
	return &http.Client{Transport: cleanhttp.DefaultPooledTransport()}
}

// RetryPolicy wraps retryablehttp.DefaultRetryPolicy, treating
// 429 Too Many Requests as non-retryable.
func RetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}
