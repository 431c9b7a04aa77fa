package stream

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const maxLineSize = 4 << 20

// Reader parses the line-delimited server-sent events protocol. Each
// "event:" line must be followed by exactly one "data:" line before the
// next "event:" line. Blank lines and ":" comments (heartbeats) are
// skipped, as are other fields such as "id:".
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer

	pending    string
	hasPending bool
	line       int
}

// NewReader wraps r. If r is also an io.Closer, Close closes it.
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	reader := &Reader{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		reader.closer = c
	}
	return reader
}

// Next returns the next complete event.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "event":
			if r.hasPending {
				return Event{}, &ProtocolError{
					Line:   r.line,
					Reason: fmt.Sprintf("event %q while event %q awaits data", value, r.pending),
				}
			}
			r.pending = value
			r.hasPending = true

		case "data":
			if !r.hasPending {
				return Event{}, &ProtocolError{Line: r.line, Reason: "data without event"}
			}
			ev := Event{Name: r.pending, Payload: value}
			r.pending = ""
			r.hasPending = false
			return ev, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("read stream: %w", err)
	}
	return Event{}, io.EOF
}

// Close closes the underlying reader, if it can be closed.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
