// Package cursor tracks the resume position of a scan: the identifier of
// the last post processed, persisted so a restart continues right after it.
package cursor

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/abdulachik/spamsweep/internal/toot"
)

// Store persists the cursor between runs.
type Store interface {
	// Load returns the persisted cursor, or "" if none was saved.
	Load() (string, error)

	// Save overwrites the persisted cursor.
	Save(id string) error
}

// Origin describes where an initial cursor came from.
type Origin string

const (
	OriginExplicit  Origin = "explicit"
	OriginPersisted Origin = "persisted"
	OriginOffset    Origin = "offset"
)

// FromTime converts a point in time into a synthetic post identifier.
// Mastodon IDs carry the creation time in milliseconds above a 16-bit
// sequence number.
func FromTime(t time.Time) string {
	return strconv.FormatInt((t.Unix()<<16)*1000, 10)
}

// ToTime returns the creation time encoded in a post identifier.
func ToTime(id string) (time.Time, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(n >> 16).UTC(), true
}

// FromOffset returns the synthetic identifier for now minus offset.
func FromOffset(now time.Time, offset time.Duration) string {
	return FromTime(now.Add(-offset))
}

// Resolve picks the starting cursor: an explicit identifier wins, then the
// persisted value, then the time offset.
func Resolve(explicit string, store Store, now time.Time, offset time.Duration) (string, Origin, error) {
	if explicit != "" {
		if !toot.ValidID(explicit) {
			return "", "", fmt.Errorf("invalid explicit cursor %q", explicit)
		}
		return explicit, OriginExplicit, nil
	}

	if store != nil {
		saved, err := store.Load()
		if err != nil {
			return "", "", fmt.Errorf("load cursor: %w", err)
		}
		if saved != "" {
			return saved, OriginPersisted, nil
		}
	}

	return FromOffset(now, offset), OriginOffset, nil
}

// Tracker holds the cursor for one run. The value never decreases.
type Tracker struct {
	mu    sync.Mutex
	value string
	store Store

	persistOnce sync.Once
	persistErr  error
}

// NewTracker creates a tracker starting at initial.
func NewTracker(initial string, store Store) (*Tracker, error) {
	if !toot.ValidID(initial) {
		return nil, fmt.Errorf("invalid cursor %q", initial)
	}
	return &Tracker{value: initial, store: store}, nil
}

// Value returns the current cursor.
func (t *Tracker) Value() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value
}

// Advance records that the post with the given id was observed. The cursor
// moves to id unless it already sits at or beyond it. Malformed ids are
// ignored. It reports whether the cursor moved.
func (t *Tracker) Advance(id string) bool {
	if !toot.ValidID(id) {
		slog.Warn("ignoring malformed post id for cursor", "id", id)
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if toot.CompareIDs(id, t.value) <= 0 {
		return false
	}
	t.value = id
	return true
}

// Seen reports whether id is at or before the cursor.
func (t *Tracker) Seen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return toot.CompareIDs(id, t.value) <= 0
}

// Persist writes the cursor to the store. Only the first call writes;
// later calls return the first call's result.
func (t *Tracker) Persist() error {
	t.persistOnce.Do(func() {
		if t.store == nil {
			return
		}
		value := t.Value()
		if err := t.store.Save(value); err != nil {
			t.persistErr = fmt.Errorf("save cursor: %w", err)
			return
		}
		slog.Info("cursor persisted", "last_id", value)
	})
	return t.persistErr
}
