// Package storage groups the crawl log shard stores. Each backend implements
// docs.ShardStore: List returns the entry names directly below a parent
// path, Open streams one object.
package storage
