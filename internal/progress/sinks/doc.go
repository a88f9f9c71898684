// Package sinks implements progress consumers for structured logs,
// Prometheus and the run ledger. Each sink satisfies progress.Sink.
package sinks
