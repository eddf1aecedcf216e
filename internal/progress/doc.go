// Package progress carries run and item events from workers to pluggable
// sinks. The Hub batches events on a background goroutine so emitters never
// block on logging, metrics or the live run tally.
package progress
