// Package progress carries collection-run events from the collectors to
// pluggable sinks. Collectors report through a Recorder; the Hub batches the
// events on a background goroutine so reporting never blocks a run.
package progress
