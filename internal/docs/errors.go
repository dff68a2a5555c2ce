package docs

import (
	"errors"
	"fmt"
)

var (
	// ErrFeedUnavailable means the target feed could not be loaded; nothing
	// can be matched and the whole scan aborts.
	ErrFeedUnavailable = errors.New("target feed unavailable")
	// ErrRecordExists is returned by RecordStore.Create when the key is taken.
	ErrRecordExists = errors.New("publish record already exists")
	// ErrRecordNotFound is returned by RecordStore.Get for unknown keys.
	ErrRecordNotFound = errors.New("publish record not found")
)

// ParseError describes a malformed crawl log or candidates line. It is
// logged and skipped. Shard names the source the line came from.
type ParseError struct {
	Shard  string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Shard == "" {
		return fmt.Sprintf("parse line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse %s line %d: %s", e.Shard, e.Line, e.Reason)
}

// PollError is a network or parse failure while resolving availability.
// Callers treat it as "not yet known" and poll again later.
type PollError struct {
	URL       string
	Timestamp string
	Err       error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll %s at %s: %v", e.URL, e.Timestamp, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// PublishError is a failed catalog submission. No PublishRecord is written,
// so a later run retries the document.
type PublishError struct {
	DocumentURL string
	StatusCode  int
	Reason      string
	Err         error
}

func (e *PublishError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("publish %s: catalog returned %d %s", e.DocumentURL, e.StatusCode, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("publish %s: %v", e.DocumentURL, e.Err)
	default:
		return fmt.Sprintf("publish %s: %s", e.DocumentURL, e.Reason)
	}
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SubmitError is returned by Catalog implementations for non-success
// responses.
type SubmitError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("catalog submit failed with %d %s: %s", e.StatusCode, e.Reason, e.Body)
}
