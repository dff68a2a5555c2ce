// Package docs defines the core types shared across the document discovery
// pipeline: watched targets, candidate and enriched documents, availability
// results, publish records, the collaborator interfaces, and the error
// taxonomy used by the scanner, poller, and publisher.
package docs
