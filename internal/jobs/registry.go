// Package jobs tracks asynchronous article collection jobs in a bounded,
// in-memory registry.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/collect"
	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/pipeline"
)

// Status is the lifecycle state of a job.
type Status string

// Job statuses. StatusNotFound is only ever reported, never stored.
const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusNotFound Status = "not_found"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

var (
	// ErrJobExists is returned when creating an id that is already tracked.
	ErrJobExists = errors.New("jobs: job already exists")
	// ErrRegistryFull is returned when every slot holds an unfinished job.
	ErrRegistryFull = errors.New("jobs: registry full")
	// ErrClosed is returned once the registry stopped accepting jobs.
	ErrClosed = errors.New("jobs: registry closed")
)

const completedMessage = "article collection completed"

// Result is stored on a job that finished without error.
type Result struct {
	Message string              `json:"message"`
	OK      bool                `json:"ok"`
	Summary *collect.RunSummary `json:"summary,omitempty"`
}

// Snapshot is the externally visible state of a job.
type Snapshot struct {
	Status Status  `json:"status"`
	Result *Result `json:"result"`
	Error  *string `json:"error"`
}

// Runner performs the collection a job stands for.
type Runner func(ctx context.Context) (collect.RunSummary, error)

// Recycler tears down the browser once a job finishes.
type Recycler interface {
	Recycle(ctx context.Context) error
}

// Config bounds the registry.
type Config struct {
	// TTL is how long a finished job stays queryable.
	TTL time.Duration
	// MaxEntries caps the tracked jobs.
	MaxEntries int
	// RecycleTimeout bounds the browser teardown after each job.
	RecycleTimeout time.Duration
}

type entry struct {
	status   Status
	result   *Result
	err      string
	created  time.Time
	finished time.Time
}

// Registry owns the job map. All access goes through its methods.
type Registry struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	cfg      Config
	runner   Runner
	recycler Recycler
	ids      pipeline.IDGenerator
	clock    pipeline.Clock
	logger   *zap.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	running int
}

// New constructs a Registry. recycler may be nil.
func New(cfg Config, runner Runner, recycler Recycler, ids pipeline.IDGenerator, clock pipeline.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RecycleTimeout <= 0 {
		cfg.RecycleTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		jobs:     make(map[string]*entry),
		cfg:      cfg,
		runner:   runner,
		recycler: recycler,
		ids:      ids,
		clock:    clock,
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Create registers id as pending.
func (r *Registry) Create(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if _, ok := r.jobs[id]; ok {
		return fmt.Errorf("%w: %s", ErrJobExists, id)
	}
	r.evictLocked(r.clock.Now())
	if r.cfg.MaxEntries > 0 && len(r.jobs) >= r.cfg.MaxEntries {
		return ErrRegistryFull
	}
	r.jobs[id] = &entry{status: StatusPending, created: r.clock.Now()}
	r.logger.Info("job created", zap.String("job_id", id))
	metrics.ObserveJob(string(StatusPending))
	return nil
}

// Run executes a pending job synchronously and returns the runner's error,
// which is also recorded on the job. Unknown ids and jobs that are not
// pending are ignored with a warning. The browser is recycled once the last
// running job finishes, unless the runner was turned away because another
// run holds the collector.
func (r *Registry) Run(ctx context.Context, id string) error {
	logger := r.logger.With(zap.String("job_id", id))
	r.mu.Lock()
	e, ok := r.jobs[id]
	switch {
	case !ok:
		r.mu.Unlock()
		logger.Warn("job not found")
		return nil
	case e.status == StatusRunning:
		r.mu.Unlock()
		logger.Warn("job already running")
		return nil
	case e.status != StatusPending:
		r.mu.Unlock()
		logger.Warn("job already finished", zap.String("status", string(e.status)))
		return nil
	}
	e.status = StatusRunning
	r.running++
	r.mu.Unlock()
	metrics.ObserveJob(string(StatusRunning))
	logger.Info("job running")

	summary, err := r.runner(ctx)

	r.mu.Lock()
	r.running--
	idle := r.running == 0
	e.finished = r.clock.Now()
	if err != nil {
		e.status = StatusFailed
		e.err = err.Error()
	} else {
		e.status = StatusDone
		e.result = &Result{Message: completedMessage, OK: true, Summary: &summary}
	}
	status := e.status
	r.mu.Unlock()

	if idle && !errors.Is(err, collect.ErrRunInProgress) {
		r.recycle(logger)
	}

	metrics.ObserveJob(string(status))
	if err != nil {
		logger.Error("job failed", zap.Error(err))
		return err
	}
	logger.Info("job done",
		zap.Int("processed", summary.Processed),
		zap.Int("submitted", summary.Submitted),
	)
	return nil
}

// Launch creates a job under a fresh id and runs it in the background.
func (r *Registry) Launch() (string, error) {
	id, err := r.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	if err := r.Create(id); err != nil {
		return "", err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		_ = r.Run(r.baseCtx, id)
	}()
	return id, nil
}

// Get returns the job's state, or StatusNotFound.
func (r *Registry) Get(id string) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.jobs[id]
	if !ok {
		return Snapshot{Status: StatusNotFound}
	}
	snap := Snapshot{Status: e.status}
	if e.result != nil {
		res := *e.result
		snap.Result = &res
	}
	if e.err != "" {
		msg := e.err
		snap.Error = &msg
	}
	return snap
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Close stops accepting jobs, cancels running ones and waits for them until
// ctx ends.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for jobs: %w", ctx.Err())
	}
}

func (r *Registry) evictLocked(now time.Time) {
	if r.cfg.TTL > 0 {
		for id, e := range r.jobs {
			if e.status.Terminal() && now.Sub(e.finished) >= r.cfg.TTL {
				delete(r.jobs, id)
			}
		}
	}
	if r.cfg.MaxEntries <= 0 || len(r.jobs) < r.cfg.MaxEntries {
		return
	}
	// Still full: drop the oldest finished jobs first.
	for len(r.jobs) >= r.cfg.MaxEntries {
		oldestID := ""
		var oldest time.Time
		for id, e := range r.jobs {
			if !e.status.Terminal() {
				continue
			}
			if oldestID == "" || e.finished.Before(oldest) {
				oldestID, oldest = id, e.finished
			}
		}
		if oldestID == "" {
			return
		}
		delete(r.jobs, oldestID)
	}
}

func (r *Registry) recycle(logger *zap.Logger) {
	if r.recycler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.RecycleTimeout)
	defer cancel()
	if err := r.recycler.Recycle(ctx); err != nil {
		logger.Warn("browser recycle failed", zap.Error(err))
	}
}
