package docs

import (
	"time"
)

// Target is one catalog entry from the target feed.
type Target struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Watched bool     `json:"watched"`
	Seeds   []string `json:"seeds"`
}

// Candidate is a crawl log record matched as a capturable document.
type Candidate struct {
	JobName          string `json:"job_name"`
	LaunchID         string `json:"launch_id"`
	WaybackTimestamp string `json:"wayback_timestamp"`
	LandingPageURL   string `json:"landing_page_url"`
	DocumentURL      string `json:"document_url"`
	Filename         string `json:"filename"`
	Size             int64  `json:"size"`
	Source           string `json:"source"`
}

// Availability is the resolution of a (url, timestamp) pair against the
// wayback index. Available implies Known.
type Availability struct {
	Known     bool `json:"known"`
	Available bool `json:"available"`
}

// Status is the terminal classification of a document.
type Status string

// Document statuses.
const (
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

// Document is a Candidate after enrichment. Rejected documents carry only the
// candidate fields and the status.
type Document struct {
	Candidate
	Status          Status            `json:"status"`
	WatchedTargetID int64             `json:"id_watched_target,omitempty"`
	Title           string            `json:"title,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// PublishKey identifies a document by the host and hash of its URL.
type PublishKey struct {
	Host string `json:"host"`
	Hash string `json:"hash"`
}

// String renders the key as the record store path {host}/{hash}.
func (k PublishKey) String() string {
	return k.Host + "/" + k.Hash
}

// PublishRecord marks a document as handled. The store holding it is the
// only source of truth for "already published".
type PublishRecord struct {
	Key        PublishKey `json:"key"`
	Outcome    Status     `json:"outcome"`
	Document   Document   `json:"document"`
	RecordedAt time.Time  `json:"recorded_at"`
}
