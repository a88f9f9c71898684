package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stepLog struct {
	mu    sync.Mutex
	names []string
}

func (l *stepLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
}

func (l *stepLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.names...)
}

func recordingStep(log *stepLog, name string, err error) Step {
	return Step{Name: name, Run: func(context.Context) error {
		log.add(name)
		return err
	}}
}

func newTestScheduler(t *testing.T, cfg Config, steps ...Step) *Scheduler {
	t.Helper()
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	s, err := New(cfg, steps, nil)
	require.NoError(t, err)
	s.jitter = func(time.Duration) time.Duration { return 0 }
	return s
}

func TestNewRejectsBadSchedule(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Schedule: "not a schedule"}, nil, nil)
	require.Error(t, err)
}

func TestCancelRunningStepWithoutStep(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{})
	require.False(t, s.CancelRunningStep())
	require.Equal(t, Status{}, s.Status())
}

func TestRunCycleRunsStepsInOrderDespiteFailures(t *testing.T) {
	t.Parallel()

	log := &stepLog{}
	s := newTestScheduler(t, Config{},
		recordingStep(log, "keyword", nil),
		recordingStep(log, "article", errors.New("boom")),
		recordingStep(log, "image", nil),
	)
	require.True(t, s.RunCycle(context.Background()))
	require.Equal(t, []string{"keyword", "article", "image"}, log.snapshot())
}

func TestRunCycleMutualExclusion(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	s := newTestScheduler(t, Config{}, Step{Name: "slow", Run: func(context.Context) error {
		close(entered)
		<-release
		return nil
	}})

	done := make(chan bool, 1)
	go func() { done <- s.RunCycle(context.Background()) }()
	<-entered

	require.False(t, s.RunCycle(context.Background()))
	close(release)
	require.True(t, <-done)
}

func TestCancelRunningStepMovesToNextStep(t *testing.T) {
	t.Parallel()

	log := &stepLog{}
	entered := make(chan struct{})
	blocking := Step{Name: "article", Run: func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		return ctx.Err()
	}}
	s := newTestScheduler(t, Config{}, blocking, recordingStep(log, "image", nil))

	done := make(chan struct{})
	go func() {
		s.RunCycle(context.Background())
		close(done)
	}()
	<-entered
	require.Eventually(t, func() bool {
		st := s.Status()
		return st.CurrentStep != nil && *st.CurrentStep == "article"
	}, time.Second, time.Millisecond)

	require.True(t, s.CancelRunningStep())
	<-done
	require.Equal(t, []string{"image"}, log.snapshot())
	require.Nil(t, s.Status().CurrentStep)
}

func TestPauseSkipsRemainingSteps(t *testing.T) {
	t.Parallel()

	log := &stepLog{}
	var s *Scheduler
	pausing := Step{Name: "keyword", Run: func(context.Context) error {
		log.add("keyword")
		s.Pause()
		return nil
	}}
	s = newTestScheduler(t, Config{}, pausing, recordingStep(log, "article", nil))

	s.RunCycle(context.Background())
	require.Equal(t, []string{"keyword"}, log.snapshot())
	require.True(t, s.Status().Paused)

	s.Resume()
	require.False(t, s.Status().Paused)
	s.RunCycle(context.Background())
	require.Equal(t, []string{"keyword", "keyword"}, log.snapshot())
}

func TestLoopRunsImmediatelyAndOnRunNow(t *testing.T) {
	t.Parallel()

	cycles := make(chan struct{}, 4)
	s := newTestScheduler(t, Config{}, Step{Name: "keyword", Run: func(context.Context) error {
		cycles <- struct{}{}
		return nil
	}})
	s.Start()
	s.Start()
	defer s.Stop(true)

	waitCycle(t, cycles)
	require.True(t, s.Status().Running)

	s.RunNow()
	waitCycle(t, cycles)
}

func TestLoopHonorsInitialDelay(t *testing.T) {
	t.Parallel()

	cycles := make(chan struct{}, 1)
	s := newTestScheduler(t, Config{InitialDelay: time.Hour}, Step{Name: "keyword", Run: func(context.Context) error {
		cycles <- struct{}{}
		return nil
	}})
	s.Start()

	select {
	case <-cycles:
		t.Fatal("cycle ran before the initial delay")
	case <-time.After(50 * time.Millisecond):
	}
	s.Stop(true)
	require.False(t, s.Status().Running)
}

func TestPausedLoopWaitsForResume(t *testing.T) {
	t.Parallel()

	cycles := make(chan struct{}, 2)
	s := newTestScheduler(t, Config{PausePoll: 5 * time.Millisecond}, Step{Name: "keyword", Run: func(context.Context) error {
		cycles <- struct{}{}
		return nil
	}})
	s.Pause()
	s.Start()
	defer s.Stop(true)

	select {
	case <-cycles:
		t.Fatal("cycle ran while paused")
	case <-time.After(50 * time.Millisecond):
	}
	s.Resume()
	waitCycle(t, cycles)
}

func TestStopImmediateCancelsRunningStep(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	cancelled := make(chan struct{})
	s := newTestScheduler(t, Config{StopTimeout: time.Second}, Step{Name: "article", Run: func(ctx context.Context) error {
		close(entered)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}})
	s.Start()
	<-entered

	s.Stop(true)
	select {
	case <-cancelled:
	default:
		t.Fatal("running step was not cancelled")
	}
	st := s.Status()
	require.False(t, st.Running)
	require.Nil(t, st.CurrentStep)
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()

	s := newTestScheduler(t, Config{})
	s.Stop(true)
	s.Stop(false)
	require.False(t, s.Status().Running)
}

func TestRandomJitterBounds(t *testing.T) {
	t.Parallel()

	require.Zero(t, randomJitter(0))
	for range 50 {
		j := randomJitter(10 * time.Millisecond)
		require.GreaterOrEqual(t, j, time.Duration(0))
		require.LessOrEqual(t, j, 10*time.Millisecond)
	}
}

func waitCycle(t *testing.T, cycles <-chan struct{}) {
	t.Helper()
	select {
	case <-cycles:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not run")
	}
}
