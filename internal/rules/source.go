package rules

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// Source loads the rule document from an http(s) URL or a local file.
type Source struct {
	location   string
	httpClient *http.Client
	now        func() time.Time
}

// SourceConfig holds configuration for a rule source.
type SourceConfig struct {
	// Location is an http:// or https:// URL, a file:// URL or a path.
	Location   string
	HTTPClient *http.Client
}

// NewSource creates a new rule source.
func NewSource(cfg SourceConfig) *Source {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Source{
		location:   cfg.Location,
		httpClient: client,
		now:        time.Now,
	}
}

// Location returns where the rules are read from.
func (s *Source) Location() string {
	return s.location
}

// Load fetches and parses the rule document. If previous is non-nil and
// the source reports the document unchanged, previous is returned as is,
// so callers can detect a no-op refresh by pointer equality.
func (s *Source) Load(ctx context.Context, previous *Set) (*Set, error) {
	if s.isRemote() {
		return s.loadHTTP(ctx, previous)
	}
	return s.loadFile(previous)
}

func (s *Source) isRemote() bool {
	return strings.HasPrefix(s.location, "http://") || strings.HasPrefix(s.location, "https://")
}

func (s *Source) loadHTTP(ctx context.Context, previous *Set) (*Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if previous != nil && previous.ETag != "" {
		req.Header.Set("If-None-Match", previous.ETag)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rules: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && previous != nil {
		slog.Debug("rule document unchanged", "source", s.location, "etag", previous.ETag)
		return previous, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rules: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	return s.build(body, resp.Header.Get("ETag"))
}

func (s *Source) loadFile(previous *Set) (*Set, error) {
	path := strings.TrimPrefix(s.location, "file://")

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules: %w", err)
	}

	// Files have no ETag; modification time and size stand in for one.
	etag := fmt.Sprintf(`"%x-%x"`, info.ModTime().UnixNano(), info.Size())
	if previous != nil && previous.ETag == etag {
		slog.Debug("rule document unchanged", "source", path)
		return previous, nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	return s.build(body, etag)
}

func (s *Source) build(body []byte, etag string) (*Set, error) {
	rules, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if len(rules) == 0 {
		slog.Warn("rule document is empty, nothing will match", "source", s.location)
	}

	return &Set{
		Rules:    rules,
		ETag:     etag,
		Source:   s.location,
		LoadedAt: s.now(),
	}, nil
}
