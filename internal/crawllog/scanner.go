package crawllog

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/metrics"
	"github.com/JakeFAU/docwatch/internal/surt"
	"github.com/JakeFAU/docwatch/internal/watch"
)

// DefaultMediaType is the mimetype substring used when none is configured.
const DefaultMediaType = "application/pdf"

const progressEvery = 10000

// Config controls the Scanner.
type Config struct {
	// Root is the directory holding <job>/<launch>/crawl.log* shards.
	Root string
	// MediaType must be contained in a record's mimetype for it to match.
	MediaType string
}

// Stats summarizes one scan.
type Stats struct {
	Shards      ShardSet
	Lines       int
	ParseErrors int
	Matched     int
}

// Scanner streams crawl logs and yields candidate documents.
type Scanner struct {
	store  docs.ShardStore
	cfg    Config
	logger *zap.Logger
}

// NewScanner constructs a Scanner.
func NewScanner(store docs.ShardStore, cfg Config, logger *zap.Logger) *Scanner {
	if cfg.MediaType == "" {
		cfg.MediaType = DefaultMediaType
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{store: store, cfg: cfg, logger: logger}
}

// Scan lists the shards of a launch and streams them in order, calling yield
// for every matching record. Scanning stops early without error when yield
// returns false. Re-running a scan over closed shards reproduces the same
// sequence.
func (s *Scanner) Scan(
	ctx context.Context,
	job, launch string,
	idx *watch.Index,
	yield func(docs.Candidate) bool,
) (Stats, error) {
	shards, err := ListShards(ctx, s.store, LaunchPath(s.cfg.Root, job, launch))
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Shards: shards}
	s.logger.Info("scanning launch",
		zap.String("job", job),
		zap.String("launch", launch),
		zap.Strings("shards", shards.Names()),
	)
	for _, shard := range shards {
		more, err := s.scanShard(ctx, job, launch, shard, idx, yield, &stats)
		if err != nil {
			return stats, err
		}
		if !more {
			break
		}
	}
	return stats, nil
}

func (s *Scanner) scanShard(
	ctx context.Context,
	job, launch string,
	shard Shard,
	idx *watch.Index,
	yield func(docs.Candidate) bool,
	stats *Stats,
) (bool, error) {
	rc, err := s.store.Open(ctx, shard.Path)
	if err != nil {
		return false, fmt.Errorf("open shard %s: %w", shard.Path, err)
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			s.logger.Warn("close shard failed", zap.String("shard", shard.Path), zap.Error(cerr))
		}
	}()

	logger := s.logger.With(zap.String("shard", shard.Path))
	logger.Info("processing shard")
	reader := bufio.NewReaderSize(rc, 64*1024)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("scan %s canceled at line %d: %w", shard.Path, lineNo, err)
		}
		line, readErr := reader.ReadString('\n')
		if line != "" {
			lineNo++
			stats.Lines++
			if lineNo%progressEvery == 0 {
				logger.Debug("scan progress", zap.Int("line", lineNo))
			}
			c, ok, err := s.match(line, job, launch, idx)
			switch {
			case err != nil:
				stats.ParseErrors++
				metrics.ObserveLogLine("parse_error")
				var perr *docs.ParseError
				if errors.As(err, &perr) {
					perr.Shard = shard.Path
					perr.Line = lineNo
				}
				logger.Warn("skipping malformed line", zap.Int("line", lineNo), zap.Error(err))
			case ok:
				stats.Matched++
				metrics.ObserveLogLine("matched")
				logger.Info("found document",
					zap.Int("line", lineNo),
					zap.String("document_url", c.DocumentURL),
					zap.String("landing_page_url", c.LandingPageURL),
				)
				if !yield(c) {
					return false, nil
				}
			default:
				metrics.ObserveLogLine("skipped")
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return true, nil
			}
			return false, fmt.Errorf("read shard %s at line %d: %w", shard.Path, lineNo, readErr)
		}
	}
}

// match applies the status, mimetype, and watched scope filters in order.
func (s *Scanner) match(line, job, launch string, idx *watch.Index) (docs.Candidate, bool, error) {
	if strings.TrimSpace(line) == "" {
		return docs.Candidate{}, false, nil
	}
	rec, err := ParseLine(line)
	if err != nil {
		return docs.Candidate{}, false, err
	}
	if !rec.Success() {
		return docs.Candidate{}, false, nil
	}
	if !strings.Contains(rec.MimeType, s.cfg.MediaType) {
		return docs.Candidate{}, false, nil
	}
	if rec.Via == "" || rec.Via == "-" {
		return docs.Candidate{}, false, nil
	}
	docSURT, err := surt.FromURL(rec.URL)
	if err != nil {
		return docs.Candidate{}, false, nil
	}
	landingSURT, err := surt.FromURL(rec.Via)
	if err != nil {
		return docs.Candidate{}, false, nil
	}
	if _, ok := idx.SharedPrefix(docSURT, landingSURT); !ok {
		return docs.Candidate{}, false, nil
	}
	c, err := NewCandidate(rec, job, launch)
	if err != nil {
		return docs.Candidate{}, false, err
	}
	return c, true, nil
}

// NewCandidate maps a matched record onto a candidate document.
func NewCandidate(rec Record, job, launch string) (docs.Candidate, error) {
	if len(rec.StartTimePlusDuration) < 14 {
		return docs.Candidate{}, &docs.ParseError{
			Reason: fmt.Sprintf("start time %q shorter than 14 digits", rec.StartTimePlusDuration),
		}
	}
	size, err := strconv.ParseInt(rec.ContentLength, 10, 64)
	if err != nil {
		return docs.Candidate{}, &docs.ParseError{
			Reason: fmt.Sprintf("content length %q is not a number", rec.ContentLength),
		}
	}
	return docs.Candidate{
		JobName:          job,
		LaunchID:         launch,
		WaybackTimestamp: rec.StartTimePlusDuration[:14],
		LandingPageURL:   rec.Via,
		DocumentURL:      rec.URL,
		Filename:         Filename(rec.URL),
		Size:             size,
		Source:           rec.Source,
	}, nil
}

// Filename is the last segment of the escaped URL path, empty for directory
// URLs. Percent escapes are kept so an encoded slash stays in the name.
func Filename(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := u.EscapedPath()
	return p[strings.LastIndex(p, "/")+1:]
}
