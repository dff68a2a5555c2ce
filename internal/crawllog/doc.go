// Package crawllog enumerates and streams crawl log shards for a job launch,
// parses fixed-field log lines, and emits the records that qualify as
// watched documents.
//
// Shards are read strictly one after another in ShardSet order. A malformed
// line is logged and skipped; it never aborts the shard.
package crawllog
