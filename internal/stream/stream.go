// Package stream reads Mastodon streaming API events as a sequence of
// (event, payload) pairs, either from the server-sent events endpoint or
// from the WebSocket endpoint.
package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"
)

// Event kinds the streaming API emits for posts.
const (
	EventUpdate       = "update"
	EventStatusUpdate = "status.update"
	EventDelete       = "delete"
)

// Event is one streaming API message.
type Event struct {
	Name    string
	Payload string
}

// IsPost reports whether the event carries a created or edited post.
func (e Event) IsPost() bool {
	return e.Name == EventUpdate || e.Name == EventStatusUpdate
}

// Source yields events from one streaming connection. Next returns io.EOF
// once the connection ends cleanly.
type Source interface {
	Next() (Event, error)
	Close() error
}

// ProtocolError reports a broken event/data pairing. It is fatal for the
// connection it occurred on.
type ProtocolError struct {
	Line   int
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("stream protocol violation at line %d: %s", e.Line, e.Reason)
	}
	return "stream protocol violation: " + e.Reason
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// All iterates over the events of src until it ends or fails. A clean end
// of stream terminates the sequence without an error; any other error is
// yielded once as the final element.
func All(src Source) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := src.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				return
			}
		}
	}
}
