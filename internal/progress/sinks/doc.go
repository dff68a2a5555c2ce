// Package sinks implements progress consumers: run history updates and
// structured logging.
package sinks
