// Package enrich classifies candidate documents as accepted or rejected and
// attaches catalog metadata to accepted ones.
package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/docs"
	"github.com/JakeFAU/docwatch/internal/watch"
)

// Metadata is what a Policy extracts for an accepted document.
type Metadata struct {
	WatchedTargetID int64
	Title           string
	Fields          map[string]string
}

// Policy extracts document metadata. Returning ok=false rejects the
// candidate; reason is only logged.
type Policy interface {
	Extract(ctx context.Context, targets *watch.Snapshot, c docs.Candidate, source string) (md Metadata, reason string, ok bool)
}

// Gate applies a Policy to candidates. It never talks to the catalog.
type Gate struct {
	policy Policy
	logger *zap.Logger
}

// NewGate wires a Gate around policy.
func NewGate(policy Policy, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{policy: policy, logger: logger.Named("enrich")}
}

// Enrich classifies c against the loaded targets. Rejected documents carry
// the candidate fields and status only.
func (g *Gate) Enrich(ctx context.Context, c docs.Candidate, targets *watch.Snapshot) docs.Document {
	md, reason, ok := g.policy.Extract(ctx, targets, c, c.Source)
	if !ok {
		g.logger.Info("document rejected",
			zap.String("document_url", c.DocumentURL),
			zap.String("source", c.Source),
			zap.String("reason", reason),
		)
		return docs.Document{Candidate: c, Status: docs.StatusRejected}
	}
	return docs.Document{
		Candidate:       c,
		Status:          docs.StatusAccepted,
		WatchedTargetID: md.WatchedTargetID,
		Title:           md.Title,
		Metadata:        md.Fields,
	}
}
