package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/blogi-collector/internal/progress"
)

// PrometheusSink exports run and item counters.
type PrometheusSink struct {
	items       *prometheus.CounterVec
	runs        *prometheus.CounterVec
	runsActive  *prometheus.GaugeVec
	runDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_items_total",
			Help: "Collection items by step and outcome.",
		}, []string{"step", "outcome"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collector_runs_total",
			Help: "Finished collection runs by step and outcome.",
		}, []string{"step", "outcome"}),
		runsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "collector_runs_active",
			Help: "Collection runs currently in progress.",
		}, []string{"step"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "collector_run_duration_seconds",
			Help:    "Wall time per finished collection run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"step", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{s.items, s.runs, s.runsActive, s.runDuration} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if s.tracker.start(evt.RunID) {
				s.runsActive.WithLabelValues(evt.Step).Inc()
			}
		case progress.StageItemDone:
			s.items.WithLabelValues(evt.Step, "done").Inc()
		case progress.StageItemSkipped:
			s.items.WithLabelValues(evt.Step, "skipped").Inc()
		case progress.StageItemFailed:
			s.items.WithLabelValues(evt.Step, "failed").Inc()
		case progress.StageRunDone, progress.StageRunAborted:
			outcome := "done"
			if evt.Stage == progress.StageRunAborted {
				outcome = "aborted"
			}
			s.runs.WithLabelValues(evt.Step, outcome).Inc()
			if evt.Dur > 0 {
				s.runDuration.WithLabelValues(evt.Step, outcome).Observe(evt.Dur.Seconds())
			}
			if s.tracker.complete(evt.RunID) {
				s.runsActive.WithLabelValues(evt.Step).Dec()
			}
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
