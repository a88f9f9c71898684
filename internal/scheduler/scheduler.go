// Package scheduler drives the periodic keyword → article → image cycle.
//
// A Scheduler is constructed explicitly and owned by the composition root.
// The control loop waits once after start, then runs one cycle per schedule
// tick. Administrative calls (pause, resume, run-now, cancel-running) act on
// the loop through its methods.
package scheduler

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/metrics"
)

// Step is one stage of a cycle.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Config tunes the control loop.
type Config struct {
	// InitialDelay is waited once per process before the first cycle.
	InitialDelay time.Duration
	// Schedule is a cron expression or descriptor such as "@every 6h".
	Schedule string
	// MaxJitter bounds the random delay before each cycle.
	MaxJitter time.Duration
	// PausePoll is how often a paused loop re-checks its state.
	PausePoll time.Duration
	// StopTimeout bounds how long an immediate Stop waits for the loop.
	StopTimeout time.Duration
}

// Status is the observable scheduler state.
type Status struct {
	Running     bool    `json:"running"`
	Paused      bool    `json:"paused"`
	CurrentStep *string `json:"current_step"`
}

// Scheduler runs collection cycles on a schedule.
type Scheduler struct {
	cfg      Config
	schedule cron.Schedule
	steps    []Step
	logger   *zap.Logger
	now      func() time.Time
	jitter   func(max time.Duration) time.Duration

	mu          sync.Mutex
	running     bool
	stopping    bool
	paused      bool
	delayed     bool
	currentStep string
	stepCancel  context.CancelFunc
	stop        chan struct{}
	done        chan struct{}
	loopCancel  context.CancelFunc

	wake    chan struct{}
	cycleMu sync.Mutex
}

// New validates cfg and builds a Scheduler over the ordered steps.
func New(cfg Config, steps []Step, logger *zap.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PausePoll <= 0 {
		cfg.PausePoll = 200 * time.Millisecond
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	return &Scheduler{
		cfg:      cfg,
		schedule: schedule,
		steps:    append([]Step(nil), steps...),
		logger:   logger,
		now:      time.Now,
		jitter:   randomJitter,
		wake:     make(chan struct{}, 1),
	}, nil
}

// Start launches the control loop. It is a no-op while the loop is running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.stopping = false
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.loopCancel = cancel
	go s.loop(ctx, s.stop, s.done)
	s.logger.Info("scheduler started", zap.String("schedule", s.cfg.Schedule))
}

// Stop signals the loop to end. With immediate set it also cancels the
// running step and waits for the loop, forcing cancellation once
// StopTimeout elapses.
func (s *Scheduler) Stop(immediate bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.stopping = true
	close(s.stop)
	done, loopCancel := s.done, s.loopCancel
	s.mu.Unlock()

	if !immediate {
		s.logger.Info("scheduler stop requested")
		return
	}
	s.CancelRunningStep()
	timer := time.NewTimer(s.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("scheduler loop did not stop in time; forcing cancellation")
		loopCancel()
		timer.Reset(s.cfg.StopTimeout)
		select {
		case <-done:
		case <-timer.C:
			s.logger.Error("scheduler loop still running after forced cancellation")
			return
		}
	}
	loopCancel()
	s.logger.Info("scheduler stopped")
}

// Pause makes the loop hold at the next cycle or step boundary.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("scheduler paused")
}

// Resume clears the pause flag and wakes an idle loop.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.kick()
	s.logger.Info("scheduler resumed")
}

// RunNow cuts the current wait short so the next cycle starts immediately.
// A step that is already running is not affected.
func (s *Scheduler) RunNow() {
	s.kick()
	s.logger.Info("scheduler run-now requested")
}

// CancelRunningStep cancels the step currently executing and reports
// whether there was one. The loop moves on to the next step.
func (s *Scheduler) CancelRunningStep() bool {
	s.mu.Lock()
	cancel, name := s.stepCancel, s.currentStep
	s.mu.Unlock()
	if cancel == nil {
		return false
	}
	s.logger.Info("cancelling running step", zap.String("step", name))
	cancel()
	return true
}

// Status reports the loop state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{Running: s.running, Paused: s.paused}
	if s.currentStep != "" {
		name := s.currentStep
		st.CurrentStep = &name
	}
	return st
}

// RunCycle runs every step once, in order. It returns false without running
// anything when another cycle is in flight.
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	if !s.cycleMu.TryLock() {
		s.logger.Warn("previous cycle still running; skipping")
		metrics.ObserveCycle("skipped")
		return false
	}
	defer s.cycleMu.Unlock()

	started := s.now()
	s.logger.Info("cycle start")
	outcome := "completed"
	for _, step := range s.steps {
		if s.halted() {
			s.logger.Info("skipping remaining steps", zap.String("step", step.Name))
			outcome = "interrupted"
			break
		}
		if ctx.Err() != nil {
			outcome = "interrupted"
			break
		}
		s.runStep(ctx, step)
	}
	metrics.ObserveCycle(outcome)
	s.logger.Info("cycle end", zap.String("outcome", outcome), zap.Duration("elapsed", s.now().Sub(started)))
	return true
}

func (s *Scheduler) runStep(ctx context.Context, step Step) {
	stepCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.currentStep, s.stepCancel = step.Name, cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.currentStep, s.stepCancel = "", nil
		s.mu.Unlock()
		cancel()
	}()

	logger := s.logger.With(zap.String("step", step.Name))
	started := s.now()
	err := step.Run(stepCtx)
	elapsed := s.now().Sub(started)
	switch {
	case err == nil:
		logger.Info("step done", zap.Duration("elapsed", elapsed))
		metrics.ObserveStep(step.Name, "ok", elapsed)
	case stepCtx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		logger.Info("step cancelled", zap.Duration("elapsed", elapsed))
		metrics.ObserveStep(step.Name, "cancelled", elapsed)
	default:
		logger.Error("step failed", zap.Duration("elapsed", elapsed), zap.Error(err))
		metrics.ObserveStep(step.Name, "error", elapsed)
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	s.mu.Lock()
	first := !s.delayed
	s.delayed = true
	s.mu.Unlock()
	if first && s.cfg.InitialDelay > 0 {
		s.logger.Info("initial wait before first cycle", zap.Duration("delay", s.cfg.InitialDelay))
		if !s.wait(ctx, stop, s.cfg.InitialDelay, false) {
			return
		}
	}

	for {
		if s.stopped(ctx, stop) {
			return
		}
		if s.isPaused() {
			s.wait(ctx, stop, s.cfg.PausePoll, true)
			continue
		}
		if j := s.jitter(s.cfg.MaxJitter); j > 0 {
			s.logger.Debug("jitter before cycle", zap.Duration("delay", j))
			if !s.wait(ctx, stop, j, false) {
				return
			}
		}
		// The cycle ignores stop; a running step ends on its own, through
		// CancelRunningStep, or when an immediate Stop forces ctx down.
		s.RunCycle(ctx)
		if s.stopped(ctx, stop) {
			return
		}
		next := s.schedule.Next(s.now())
		s.logger.Info("next cycle scheduled", zap.Time("at", next))
		s.wait(ctx, stop, time.Until(next), true)
	}
}

// wait sleeps for d. It returns false when the loop must end; wakeable waits
// also return early on RunNow or Resume.
func (s *Scheduler) wait(ctx context.Context, stop <-chan struct{}, d time.Duration, wakeable bool) bool {
	if d <= 0 {
		return !s.stopped(ctx, stop)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	var wake <-chan struct{}
	if wakeable {
		wake = s.wake
	}
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}

func (s *Scheduler) stopped(ctx context.Context, stop <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func (s *Scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) isPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// halted reports whether a pause or stop was requested.
func (s *Scheduler) halted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused || s.stopping
}

func randomJitter(maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxJitter)+1))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
