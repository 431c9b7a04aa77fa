// Package mastodon is a small client for the Mastodon REST and streaming
// APIs used by the scanner: the public timeline, single statuses, admin
// account actions and the public stream.
package mastodon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdulachik/spamsweep/internal/httpclient"
	"github.com/abdulachik/spamsweep/internal/stream"
	"github.com/abdulachik/spamsweep/internal/toot"
)

// Client talks to one instance with one access token.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

// Config holds configuration for the client.
type Config struct {
	// Instance is a host name ("einbeck.social") or a base URL.
	Instance string
	Token    string

	HTTPClient   *http.Client
	StreamClient *http.Client
}

// New creates a new client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = httpclient.New(30 * time.Second)
	}
	streamClient := cfg.StreamClient
	if streamClient == nil {
		streamClient = httpclient.NewStreaming()
	}

	return &Client{
		baseURL:      BaseURL(cfg.Instance),
		token:        cfg.Token,
		httpClient:   httpClient,
		streamClient: streamClient,
	}
}

// BaseURL turns an instance host into an API base URL.
func BaseURL(instance string) string {
	instance = strings.TrimRight(instance, "/")
	if strings.HasPrefix(instance, "http://") || strings.HasPrefix(instance, "https://") {
		return instance
	}
	return "https://" + instance
}

// APIError is an error-shaped response: a non-2xx status or a body of the
// form {"error": "..."}.
type APIError struct {
	StatusCode         int
	Message            string
	RateLimitRemaining string
	RateLimitReset     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
	if e.RateLimitRemaining != "" || e.RateLimitReset != "" {
		msg += fmt.Sprintf(" (ratelimit remaining=%s reset=%s)", e.RateLimitRemaining, e.RateLimitReset)
	}
	return msg
}

// IsRateLimited reports whether the instance refused the request because
// the rate limit was exhausted.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.RateLimitRemaining == "0"
}

// IsRateLimited reports whether err is a rate-limit APIError.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsRateLimited()
}

// ActionResult is the raw outcome of an admin action.
type ActionResult struct {
	StatusCode int
	Body       string
}

// PublicTimeline returns up to limit posts newer than minID.
func (c *Client) PublicTimeline(ctx context.Context, minID string, limit int) ([]toot.Post, error) {
	q := url.Values{}
	if minID != "" {
		q.Set("min_id", minID)
	}
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v1/timelines/public", q)
	if err != nil {
		return nil, err
	}

	var posts []toot.Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, fmt.Errorf("decode timeline: %w", err)
	}
	return posts, nil
}

// Status returns a single post.
func (c *Client) Status(ctx context.Context, id string) (*toot.Post, error) {
	body, err := c.get(ctx, "/api/v1/statuses/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}

	var post toot.Post
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &post, nil
}

// SuspendAccount suspends an account through the admin API.
func (c *Client) SuspendAccount(ctx context.Context, accountID string) (*ActionResult, error) {
	form := url.Values{}
	form.Set("type", "suspend")
	return c.action(ctx, http.MethodPost, "/api/v1/admin/accounts/"+url.PathEscape(accountID)+"/action", form)
}

// DeleteAccount permanently deletes a suspended account's data.
func (c *Client) DeleteAccount(ctx context.Context, accountID string) (*ActionResult, error) {
	return c.action(ctx, http.MethodDelete, "/api/v1/admin/accounts/"+url.PathEscape(accountID), nil)
}

// PostStatus publishes a status with the given visibility.
func (c *Client) PostStatus(ctx context.Context, text, visibility string) (*toot.Post, error) {
	form := url.Values{}
	form.Set("status", text)
	form.Set("visibility", visibility)

	result, err := c.action(ctx, http.MethodPost, "/api/v1/statuses", form)
	if err != nil {
		return nil, err
	}

	var post toot.Post
	if err := json.Unmarshal([]byte(result.Body), &post); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	return &post, nil
}

// OpenStream connects to the public server-sent events stream.
func (c *Client) OpenStream(ctx context.Context) (stream.Source, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/v1/streaming/public", nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, newAPIError(resp, body)
	}

	slog.Debug("stream connected", "transport", "sse")
	return stream.NewReader(resp.Body), nil
}

// OpenWebSocket connects to the public stream over WebSocket.
func (c *Client) OpenWebSocket(ctx context.Context) (stream.Source, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/streaming")
	if err != nil {
		return nil, fmt.Errorf("parse stream url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"stream": []string{"public"}}.Encode()

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	ws, err := stream.DialWebSocket(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}

	slog.Debug("stream connected", "transport", "websocket")
	return ws, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// get performs a GET and returns the body of a successful, non
// error-shaped response.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || isErrorBody(body) {
		return nil, newAPIError(resp, body)
	}

	return body, nil
}

// action sends a form-encoded request. The result is returned even when
// the instance rejects the action, alongside an APIError.
func (c *Client) action(ctx context.Context, method, path string, form url.Values) (*ActionResult, error) {
	var body io.Reader
	if form != nil {
		body = bytes.NewReader([]byte(form.Encode()))
	}

	req, err := c.newRequest(ctx, method, path, nil, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &ActionResult{StatusCode: resp.StatusCode, Body: string(respBody)}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, newAPIError(resp, respBody)
	}
	return result, nil
}

func isErrorBody(body []byte) bool {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '{' {
		return false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	_, ok := payload["error"]
	return ok
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode:         resp.StatusCode,
		RateLimitRemaining: resp.Header.Get("X-RateLimit-Remaining"),
		RateLimitReset:     resp.Header.Get("X-RateLimit-Reset"),
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
