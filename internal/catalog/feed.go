// Package catalog adapts the catalog service: the target feed and document
// submission.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/ratelimit"
)

const defaultTimeout = 30 * time.Second

// Credentials are the basic-auth user and password for the catalog API.
type Credentials struct {
	User     string
	Password string
}

func (c Credentials) apply(req *http.Request) {
	if c.User != "" {
		req.SetBasicAuth(c.User, c.Password)
	}
}

// HTTPFeed loads the target list from a JSON endpoint.
type HTTPFeed struct {
	url     string
	creds   Credentials
	client  *http.Client
	limiter *ratelimit.Limiter
}

var _ docs.TargetFeed = (*HTTPFeed)(nil)

// NewHTTPFeed builds a feed reading url. client and limiter may be nil.
func NewHTTPFeed(url string, creds Credentials, client *http.Client, limiter *ratelimit.Limiter) *HTTPFeed {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &HTTPFeed{url: url, creds: creds, client: client, limiter: limiter}
}

// Load implements docs.TargetFeed.
func (f *HTTPFeed) Load(ctx context.Context) ([]docs.Target, error) {
	if err := f.limiter.Wait(ctx, f.url); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	f.creds.apply(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch feed: unexpected status %d", resp.StatusCode)
	}
	return decodeTargets(resp.Body)
}

// FileFeed loads the target list from a JSON file, typically a saved copy
// of the HTTP feed.
type FileFeed struct {
	path string
}

var _ docs.TargetFeed = (*FileFeed)(nil)

// NewFileFeed builds a feed reading path.
func NewFileFeed(path string) *FileFeed {
	return &FileFeed{path: path}
}

// Load implements docs.TargetFeed.
func (f *FileFeed) Load(_ context.Context) ([]docs.Target, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("open feed file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return decodeTargets(file)
}

func decodeTargets(r io.Reader) ([]docs.Target, error) {
	var targets []docs.Target
	if err := json.NewDecoder(r).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return targets, nil
}
