// Package recordstore holds the PublishRecord store backends. Every backend
// implements docs.RecordStore with an atomic create-if-absent per key.
package recordstore
