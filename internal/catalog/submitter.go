package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/metrics"
	"github.com/JakeFAU/docwatch/internal/ratelimit"
)

const maxErrorBody = 512

// Submitter posts accepted documents to the catalog's document endpoint.
// Only a 200 response counts as success.
type Submitter struct {
	url     string
	creds   Credentials
	client  *http.Client
	limiter *ratelimit.Limiter
}

var _ docs.Catalog = (*Submitter)(nil)

// NewSubmitter builds a Submitter posting to url. client and limiter may be nil.
func NewSubmitter(url string, creds Credentials, client *http.Client, limiter *ratelimit.Limiter) *Submitter {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &Submitter{url: url, creds: creds, client: client, limiter: limiter}
}

// Submit implements docs.Catalog. Non-200 responses return *docs.SubmitError.
func (s *Submitter) Submit(ctx context.Context, doc docs.Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if err := s.limiter.Wait(ctx, s.url); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.creds.apply(req)

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObserveCatalogSubmission(0)
		return fmt.Errorf("submit document: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveCatalogSubmission(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &docs.SubmitError{
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
			Body:       string(snippet),
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("catalog submit url is not configured")

// Disabled stands in for the catalog when no submit URL is configured. Every
// accepted document fails to publish and stays unrecorded.
type Disabled struct{}

// Submit implements docs.Catalog.
func (Disabled) Submit(context.Context, docs.Document) error {
	return ErrNotConfigured
}
