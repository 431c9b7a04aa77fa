package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocket reads events from the streaming API's WebSocket endpoint,
// where every message is a JSON envelope of event name and payload.
type WebSocket struct {
	conn *websocket.Conn
	stop func() bool
}

type wsMessage struct {
	Stream  []string        `json:"stream"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// DialWebSocket connects to url. The connection is closed when ctx ends,
// which unblocks a pending Next.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocket, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial stream (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial stream: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})

	return &WebSocket{conn: conn, stop: stop}, nil
}

// Next returns the next event.
func (w *WebSocket) Next() (Event, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return Event{}, io.EOF
		}
		return Event{}, fmt.Errorf("read message: %w", err)
	}

	return decodeMessage(data)
}

func decodeMessage(data []byte) (Event, error) {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Event{}, &ProtocolError{Reason: fmt.Sprintf("malformed message: %v", err)}
	}
	if msg.Event == "" {
		return Event{}, &ProtocolError{Reason: "message without event"}
	}

	// Payloads are JSON-encoded strings for most events; keep anything
	// else verbatim.
	var payload string
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		payload = string(msg.Payload)
	}

	return Event{Name: msg.Event, Payload: payload}, nil
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	w.stop()
	return w.conn.Close()
}
