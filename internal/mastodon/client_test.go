package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/abdulachik/spamsweep/internal/httpclient"
	"github.com/abdulachik/spamsweep/internal/stream"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	return New(Config{
		Instance:   serverURL,
		Token:      "secret",
		HTTPClient: httpclient.New(5*time.Second, httpclient.WithMaxRetries(0)),
	})
}

func TestBaseURL(t *testing.T) {
	assert.Equal(t, "https://einbeck.social", BaseURL("einbeck.social"))
	assert.Equal(t, "https://einbeck.social", BaseURL("https://einbeck.social/"))
	assert.Equal(t, "http://127.0.0.1:8080", BaseURL("http://127.0.0.1:8080"))
}

func TestClient_PublicTimeline(t *testing.T) {
	t.Run("sends cursor and decodes posts", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/timelines/public", r.URL.Path)
			assert.Equal(t, "100", r.URL.Query().Get("min_id"))
			assert.Equal(t, "40", r.URL.Query().Get("limit"))
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

			fmt.Fprint(w, `[{"id":"102","content":"b","account":{"id":"1","acct":"x"}},{"id":"101","content":"a"}]`)
		}))
		defer server.Close()

		posts, err := newTestClient(server.URL).PublicTimeline(context.Background(), "100", 40)
		require.NoError(t, err)
		require.Len(t, posts, 2)
		assert.Equal(t, "102", posts[0].ID)
		assert.Equal(t, "x", posts[0].Account.Acct)
	})

	t.Run("empty page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))
		defer server.Close()

		posts, err := newTestClient(server.URL).PublicTimeline(context.Background(), "1", 40)
		require.NoError(t, err)
		assert.Empty(t, posts)
	})

	t.Run("error-shaped body with ok status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", "2024-02-18T10:20:00.000Z")
			fmt.Fprint(w, `{"error":"Too many requests"}`)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).PublicTimeline(context.Background(), "1", 40)
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Too many requests", apiErr.Message)
		assert.Equal(t, "0", apiErr.RateLimitRemaining)
		assert.True(t, IsRateLimited(err))
	})

	t.Run("429 is a rate limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":"Throttled"}`)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).PublicTimeline(context.Background(), "1", 40)
		assert.True(t, IsRateLimited(err))
	})

	t.Run("other api error is not a rate limit", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"The access token is invalid"}`)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).PublicTimeline(context.Background(), "1", 40)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
		assert.False(t, IsRateLimited(err))
		assert.Contains(t, err.Error(), "access token")
	})
}

func TestClient_Status(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/statuses/555", r.URL.Path)
		fmt.Fprint(w, `{"id":"555","content":"hello"}`)
	}))
	defer server.Close()

	post, err := newTestClient(server.URL).Status(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, "555", post.ID)
	assert.Equal(t, "hello", post.Content)
}

func TestClient_AdminActions(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		calls = append(calls, r.Method+" "+r.URL.Path+" "+r.PostForm.Get("type"))

		if r.URL.Path == "/api/v1/admin/accounts/13" && r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"error":"This action is not allowed"}`)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	result, err := client.SuspendAccount(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	result, err = client.DeleteAccount(ctx, "12")
	require.NoError(t, err)
	assert.Equal(t, "{}", result.Body)

	result, err = client.DeleteAccount(ctx, "13")
	require.Error(t, err)
	require.NotNil(t, result)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)

	assert.Equal(t, []string{
		"POST /api/v1/admin/accounts/12/action suspend",
		"DELETE /api/v1/admin/accounts/12 ",
		"DELETE /api/v1/admin/accounts/13 ",
	}, calls)
}

func TestClient_PostStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/api/v1/statuses", r.URL.Path)
		assert.Equal(t, "direct", r.PostForm.Get("visibility"))
		assert.Equal(t, "@admin hi", r.PostForm.Get("status"))
		json.NewEncoder(w).Encode(map[string]string{"id": "900", "content": "hi"})
	}))
	defer server.Close()

	post, err := newTestClient(server.URL).PostStatus(context.Background(), "@admin hi", "direct")
	require.NoError(t, err)
	assert.Equal(t, "900", post.ID)
}

func TestClient_OpenStream(t *testing.T) {
	t.Run("reads server-sent events", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/streaming/public", r.URL.Path)
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ":)\nevent: update\ndata: {\"id\":\"1\"}\n\n")
		}))
		defer server.Close()

		src, err := newTestClient(server.URL).OpenStream(context.Background())
		require.NoError(t, err)
		defer src.Close()

		ev, err := src.Next()
		require.NoError(t, err)
		assert.Equal(t, stream.Event{Name: "update", Payload: `{"id":"1"}`}, ev)
	})

	t.Run("rejected connection", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"nope"}`)
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).OpenStream(context.Background())
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "nope", apiErr.Message)
	})
}

func TestClient_OpenWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/streaming", r.URL.Path)
		assert.Equal(t, "public", r.URL.Query().Get("stream"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":["public"],"event":"update","payload":"{\"id\":\"3\"}"}`))
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer server.Close()

	src, err := newTestClient(server.URL).OpenWebSocket(context.Background())
	require.NoError(t, err)
	defer src.Close()

	ev, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, "update", ev.Name)
	assert.Equal(t, `{"id":"3"}`, ev.Payload)
}
