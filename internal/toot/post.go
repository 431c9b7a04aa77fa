// Package toot holds the post records read from a Mastodon instance and the
// feature accessors the rule matcher evaluates against them.
package toot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Account is the author of a post.
type Account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Mention is an account referenced by a post.
type Mention struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

// Attachment is a media attachment. Blurhash is empty when the instance did
// not compute one.
type Attachment struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Blurhash string `json:"blurhash"`
}

// Card is the link preview generated for a post.
type Card struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	URL          string `json:"url"`
	Description  string `json:"description"`
	ProviderName string `json:"provider_name"`
	Image        string `json:"image"`
	Blurhash     string `json:"blurhash"`
}

// Post is a single status. Posts are never mutated after decoding.
type Post struct {
	ID               string       `json:"id"`
	CreatedAt        time.Time    `json:"created_at"`
	Content          string       `json:"content"`
	Account          Account      `json:"account"`
	Mentions         []Mention    `json:"mentions"`
	MediaAttachments []Attachment `json:"media_attachments"`
	Card             *Card        `json:"card,omitempty"`
}

// UnmarshalJSON decodes a status leniently. Optional fields that are
// missing, null or of the wrong type decode as absent; only a missing or
// non-string id is an error.
func (p *Post) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID        json.RawMessage `json:"id"`
		CreatedAt json.RawMessage `json:"created_at"`
		Content   json.RawMessage `json:"content"`
		Account   json.RawMessage `json:"account"`
		Mentions  json.RawMessage `json:"mentions"`
		Media     json.RawMessage `json:"media_attachments"`
		Card      json.RawMessage `json:"card"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode post: %w", err)
	}

	id, ok := decodeString(raw.ID)
	if !ok || id == "" {
		return fmt.Errorf("decode post: missing id")
	}

	post := Post{ID: id}
	post.Content, _ = decodeString(raw.Content)

	if ts, ok := decodeString(raw.CreatedAt); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			post.CreatedAt = t
		}
	}

	if fields, ok := decodeObject(raw.Account); ok {
		post.Account.ID, _ = decodeString(fields["id"])
		post.Account.Acct, _ = decodeString(fields["acct"])
	}

	for _, item := range decodeList(raw.Mentions) {
		var m Mention
		if fields, ok := decodeObject(item); ok {
			m.ID, _ = decodeString(fields["id"])
			m.Acct, _ = decodeString(fields["acct"])
		}
		post.Mentions = append(post.Mentions, m)
	}

	for _, item := range decodeList(raw.Media) {
		fields, ok := decodeObject(item)
		if !ok {
			continue
		}
		var a Attachment
		a.ID, _ = decodeString(fields["id"])
		a.Type, _ = decodeString(fields["type"])
		a.URL, _ = decodeString(fields["url"])
		a.Blurhash, _ = decodeString(fields["blurhash"])
		post.MediaAttachments = append(post.MediaAttachments, a)
	}

	if fields, ok := decodeObject(raw.Card); ok {
		c := &Card{}
		c.Type, _ = decodeString(fields["type"])
		c.Title, _ = decodeString(fields["title"])
		c.URL, _ = decodeString(fields["url"])
		c.Description, _ = decodeString(fields["description"])
		c.ProviderName, _ = decodeString(fields["provider_name"])
		c.Image, _ = decodeString(fields["image"])
		c.Blurhash, _ = decodeString(fields["blurhash"])
		post.Card = c
	}

	*p = post
	return nil
}

func decodeString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

func decodeList(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	return items
}

// CompareIDs orders two integer-like identifiers numerically without
// parsing them, so IDs wider than 64 bits still compare correctly.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// ValidID reports whether s is a non-empty string of decimal digits.
func ValidID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// SortByID returns a copy of posts ordered by ascending identifier.
func SortByID(posts []Post) []Post {
	sorted := slices.Clone(posts)
	slices.SortStableFunc(sorted, func(a, b Post) int {
		return CompareIDs(a.ID, b.ID)
	})
	return sorted
}
