// Package wayback resolves whether a capture is visible in the wayback index.
package wayback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/metrics"
	"github.com/JakeFAU/docwatch/internal/ratelimit"
)

const (
	// DefaultPageSize is the number of captures requested per xmlquery page.
	DefaultPageSize = 10000
	defaultTimeout  = 15 * time.Second
)

// Config controls how the index is queried.
type Config struct {
	// Prefix is the wayback base URL, e.g. http://wayback:8080/wayback.
	Prefix string
	// CheckAvailable additionally requires a HEAD on the capture to return 200.
	CheckAvailable bool
	PageSize       int
	// MaxPages caps paging; zero pages until a page adds no new capture dates.
	MaxPages  int
	UserAgent string
	Timeout   time.Duration
}

// Poller implements docs.AvailabilityResolver over the wayback xmlquery
// endpoint.
type Poller struct {
	cfg     Config
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	base    *colly.Collector
}

var _ docs.AvailabilityResolver = (*Poller)(nil)

type collectorHooks interface {
	OnXML(string, colly.XMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Poller. The limiter may be nil.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Poller, error) {
	if strings.TrimSpace(cfg.Prefix) == "" {
		return nil, errors.New("wayback prefix is required")
	}
	cfg.Prefix = strings.TrimRight(cfg.Prefix, "/")
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)
	c.ParseHTTPErrorResponse = true
	// A probe that redirects resolved to some other capture.
	c.SetRedirectHandler(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	})
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}

	return &Poller{
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.Named("wayback"),
		base:    c,
	}, nil
}

// Resolve classifies (url, timestamp). Any failure is logged as a
// *docs.PollError and reported as {false,false} so callers poll again later.
func (p *Poller) Resolve(ctx context.Context, rawURL, timestamp string) docs.Availability {
	known, err := p.Known(ctx, rawURL, timestamp)
	if err != nil {
		p.fail(rawURL, timestamp, err)
		return docs.Availability{}
	}
	if !known {
		metrics.ObserveAvailability("unknown")
		return docs.Availability{}
	}
	if !p.cfg.CheckAvailable {
		metrics.ObserveAvailability("available")
		return docs.Availability{Known: true, Available: true}
	}

	ok, err := p.Probe(ctx, rawURL, timestamp)
	if err != nil {
		p.fail(rawURL, timestamp, err)
		return docs.Availability{Known: true}
	}
	if !ok {
		metrics.ObserveAvailability("known")
		return docs.Availability{Known: true}
	}
	metrics.ObserveAvailability("available")
	return docs.Availability{Known: true, Available: true}
}

func (p *Poller) fail(rawURL, timestamp string, err error) {
	pollErr := &docs.PollError{URL: rawURL, Timestamp: timestamp, Err: err}
	p.logger.Warn("availability check failed", zap.Error(pollErr))
	metrics.ObserveAvailability("error")
}

// Known reports whether the index lists a capture of rawURL at exactly
// timestamp.
func (p *Poller) Known(ctx context.Context, rawURL, timestamp string) (bool, error) {
	found := false
	err := p.walkCaptures(ctx, rawURL, func(date string) bool {
		if date == timestamp {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// CaptureDates returns every capture date the index lists for rawURL, in
// the order returned.
func (p *Poller) CaptureDates(ctx context.Context, rawURL string) ([]string, error) {
	var dates []string
	err := p.walkCaptures(ctx, rawURL, func(date string) bool {
		dates = append(dates, date)
		return true
	})
	return dates, err
}

// walkCaptures pages through the xmlquery results calling fn once per
// distinct capture date until fn returns false, a page adds nothing new, a
// short page arrives, or MaxPages is reached.
func (p *Poller) walkCaptures(ctx context.Context, rawURL string, fn func(string) bool) error {
	seen := make(map[string]struct{})
	for page := 0; p.cfg.MaxPages <= 0 || page < p.cfg.MaxPages; page++ {
		dates, err := p.queryPage(ctx, rawURL, page*p.cfg.PageSize)
		if err != nil {
			return err
		}
		fresh := 0
		for _, d := range dates {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			fresh++
			if !fn(d) {
				return nil
			}
		}
		if fresh == 0 || len(dates) < p.cfg.PageSize {
			return nil
		}
	}
	return nil
}

// QueryURL builds the xmlquery URL for one page.
func (p *Poller) QueryURL(rawURL string, offset int) string {
	q := url.Values{}
	q.Set("type", "urlquery")
	q.Set("url", rawURL)
	q.Set("firstreturned", strconv.Itoa(offset))
	q.Set("resultsrequested", strconv.Itoa(p.cfg.PageSize))
	return p.cfg.Prefix + "/xmlquery.jsp?" + q.Encode()
}

// ProbeURL builds the replay URL for a capture.
func (p *Poller) ProbeURL(rawURL, timestamp string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.Prefix, timestamp, rawURL)
}

func (p *Poller) queryPage(ctx context.Context, rawURL string, offset int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("xmlquery: %w", err)
	}
	target := p.QueryURL(rawURL, offset)
	if err := p.limiter.Wait(ctx, target); err != nil {
		return nil, err
	}

	var (
		dates  []string
		status int
		cbErr  error
	)
	collector := p.base.Clone()
	configureQueryHooks(collector, &dates, &status, &cbErr)
	if err := runCollector(ctx, func() error { return collector.Visit(target) }); err != nil {
		return nil, err
	}
	if cbErr != nil {
		return nil, fmt.Errorf("xmlquery: %w", cbErr)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("xmlquery returned %d", status)
	}
	return dates, nil
}

func configureQueryHooks(hooks collectorHooks, dates *[]string, status *int, cbErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*status = r.StatusCode
	})
	hooks.OnXML("//capturedate", func(e *colly.XMLElement) {
		if d := strings.TrimSpace(e.Text); d != "" {
			*dates = append(*dates, d)
		}
	})
	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*status = r.StatusCode
		}
		*cbErr = err
	})
}

// Probe reports whether a HEAD on the capture returns 200 without following
// redirects.
func (p *Poller) Probe(ctx context.Context, rawURL, timestamp string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("probe: %w", err)
	}
	target := p.ProbeURL(rawURL, timestamp)
	if err := p.limiter.Wait(ctx, target); err != nil {
		return false, err
	}

	var (
		status int
		cbErr  error
	)
	collector := p.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
	})
	collector.OnError(func(_ *colly.Response, err error) {
		cbErr = err
	})
	if err := runCollector(ctx, func() error { return collector.Head(target) }); err != nil {
		return false, err
	}
	if cbErr != nil {
		return false, fmt.Errorf("probe: %w", cbErr)
	}
	return status == http.StatusOK, nil
}

func runCollector(ctx context.Context, visit func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- visit()
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wayback request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("wayback request failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
