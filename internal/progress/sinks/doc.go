// Package sinks holds progress.Sink implementations: structured logs, Prometheus
// collectors and an in-memory tally of runs in flight.
package sinks
