package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/abdulachik/spamsweep/internal/toot"
)

// maxStatusLength is the default character limit of a Mastodon status.
const maxStatusLength = 500

// StatusPoster publishes a status on the instance.
type StatusPoster interface {
	PostStatus(ctx context.Context, text, visibility string) (*toot.Post, error)
}

// MastodonNotifier sends notifications as direct messages to one account.
type MastodonNotifier struct {
	poster   StatusPoster
	toHandle string
}

// MastodonConfig holds configuration for Mastodon notifications.
type MastodonConfig struct {
	Poster   StatusPoster
	ToHandle string // e.g. "admin" or "admin@example.social"
}

// NewMastodonNotifier creates a new Mastodon notifier.
func NewMastodonNotifier(cfg MastodonConfig) *MastodonNotifier {
	return &MastodonNotifier{
		poster:   cfg.Poster,
		toHandle: strings.TrimPrefix(cfg.ToHandle, "@"),
	}
}

// Send posts the notification with direct visibility, mentioning the
// operator so only they receive it.
func (m *MastodonNotifier) Send(ctx context.Context, notification Notification) error {
	text := Format(m.toHandle, notification)

	post, err := m.poster.PostStatus(ctx, text, "direct")
	if err != nil {
		return fmt.Errorf("send notification to @%s: %w", m.toHandle, err)
	}

	slog.Debug("notification sent", "to", m.toHandle, "status_id", post.ID)
	return nil
}

// Format renders a notification as status text addressed to handle,
// truncated to the status length limit.
func Format(handle string, notification Notification) string {
	var b strings.Builder
	b.WriteString("@")
	b.WriteString(handle)
	b.WriteString(" ")
	b.WriteString(notification.Subject)
	if notification.Body != "" {
		b.WriteString("\n\n")
		b.WriteString(notification.Body)
	}

	text := b.String()
	if utf8.RuneCountInString(text) <= maxStatusLength {
		return text
	}

	runes := []rune(text)
	return string(runes[:maxStatusLength-1]) + "…"
}
