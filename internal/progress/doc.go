// Package progress streams run lifecycle and per-document outcome events from
// the pipeline to pluggable sinks. A Hub batches events so emitters never
// block on slow sinks.
package progress
