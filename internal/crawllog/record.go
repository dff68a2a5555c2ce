package crawllog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/docwatch/internal/docs"
)

// fieldCount is the number of whitespace-separated fields in a crawl log line.
const fieldCount = 12

// Record is one parsed crawl log line.
type Record struct {
	Timestamp             string
	StatusCode            string
	ContentLength         string
	URL                   string
	HopPath               string
	Via                   string
	MimeType              string
	ThreadID              string
	StartTimePlusDuration string
	ContentDigest         string
	Source                string
	// Annotations holds the rest of the line, which may itself contain
	// whitespace when extra info is logged.
	Annotations string
}

// ParseLine splits a crawl log line into its twelve fields. Lines with fewer
// fields yield a *docs.ParseError with Line set to zero; callers fill in the
// shard and line number.
func ParseLine(line string) (Record, error) {
	fields := splitFields(strings.TrimRight(line, "\r\n"), fieldCount)
	if len(fields) != fieldCount {
		return Record{}, &docs.ParseError{Reason: fmt.Sprintf("expected %d fields, got %d", fieldCount, len(fields))}
	}
	return Record{
		Timestamp:             fields[0],
		StatusCode:            fields[1],
		ContentLength:         fields[2],
		URL:                   fields[3],
		HopPath:               fields[4],
		Via:                   fields[5],
		MimeType:              fields[6],
		ThreadID:              fields[7],
		StartTimePlusDuration: fields[8],
		ContentDigest:         fields[9],
		Source:                fields[10],
		Annotations:           fields[11],
	}, nil
}

// Status returns the numeric status code. Missing ("-" or empty) and
// non-numeric values report false.
func (r Record) Status() (int, bool) {
	if r.StatusCode == "" || r.StatusCode == "-" {
		return 0, false
	}
	code, err := strconv.Atoi(r.StatusCode)
	if err != nil {
		return 0, false
	}
	return code, true
}

// Success reports whether the status code is in [200,299].
func (r Record) Success() bool {
	code, ok := r.Status()
	return ok && code >= 200 && code <= 299
}

// splitFields splits on runs of spaces or tabs into at most n fields; the
// last field keeps the remainder of the line.
func splitFields(line string, n int) []string {
	const sep = " \t"
	out := make([]string, 0, n)
	rest := strings.TrimLeft(line, sep)
	for rest != "" && len(out) < n-1 {
		i := strings.IndexAny(rest, sep)
		if i < 0 {
			out = append(out, rest)
			return out
		}
		out = append(out, rest[:i])
		rest = strings.TrimLeft(rest[i:], sep)
	}
	if rest = strings.TrimRight(rest, sep); rest != "" {
		out = append(out, rest)
	}
	return out
}
