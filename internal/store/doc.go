// Package store defines the run history repository used by the HTTP surface,
// with in-memory and Postgres implementations.
package store
