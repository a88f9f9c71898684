// Package collect implements the three collection steps: trending keyword
// scraping, article acquisition and representative image acquisition.
//
// Each collector allows one run at a time and reports per-item progress
// through a progress.Recorder. Within a run a keyword is attempted at most
// once and an article URL is submitted at most once.
package collect

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/progress"
)

// ErrRunInProgress is returned when a collector is asked to start while a
// run of the same collector is active.
var ErrRunInProgress = errors.New("collect: run already in progress")

// Step names as they appear in progress events and metrics.
const (
	StepKeyword = "keyword"
	StepArticle = "article"
	StepImage   = "image"
)

// Abort reasons.
const (
	AbortQuota    = "quota_exceeded"
	AbortStuck    = "stuck_keyword"
	AbortStore    = "content_store"
	AbortCanceled = "canceled"
)

// DefaultMaxRepeats is how many times the store may hand back the same
// keyword in one run before the run gives up on it.
const DefaultMaxRepeats = 3

// ContextSweeper closes every open browser context.
type ContextSweeper interface {
	CloseAllContexts() int
}

// RunIDs yields identifiers for collection runs.
type RunIDs interface {
	NewRunID() [16]byte
}

// RunSummary reports what a run did.
type RunSummary struct {
	RunID       string `json:"run_id"`
	Processed   int    `json:"processed"`
	Submitted   int    `json:"submitted"`
	Deactivated int    `json:"deactivated"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Aborted     bool   `json:"aborted"`
	AbortReason string `json:"abort_reason,omitempty"`
}

// Deps are the collaborators shared by every collector.
type Deps struct {
	Emitter progress.Emitter
	RunIDs  RunIDs
	Sweeper ContextSweeper
	Logger  *zap.Logger
	Now     func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

func (d Deps) recorder(step string) (*progress.Recorder, string) {
	var id [16]byte
	if d.RunIDs != nil {
		id = d.RunIDs.NewRunID()
	}
	return progress.NewRecorder(d.Emitter, step, id, d.Now), uuid.UUID(id).String()
}

func (d Deps) sweep() {
	if d.Sweeper == nil {
		return
	}
	if n := d.Sweeper.CloseAllContexts(); n > 0 {
		d.Logger.Debug("closed browser contexts", zap.Int("count", n))
	}
}

// gate admits one run at a time.
type gate struct {
	mu sync.Mutex
}

func (g *gate) enter() bool { return g.mu.TryLock() }

func (g *gate) leave() { g.mu.Unlock() }

// runGuard tracks what a single run has already seen.
type runGuard struct {
	maxRepeats int
	attempts   map[int64]int
	urls       map[string]struct{}
}

func newRunGuard(maxRepeats int) *runGuard {
	if maxRepeats <= 0 {
		maxRepeats = DefaultMaxRepeats
	}
	return &runGuard{
		maxRepeats: maxRepeats,
		attempts:   make(map[int64]int),
		urls:       make(map[string]struct{}),
	}
}

// attempt counts one more visit of id and returns the total.
func (g *runGuard) attempt(id int64) int {
	g.attempts[id]++
	return g.attempts[id]
}

// stuck reports whether id has come back more often than allowed.
func (g *runGuard) stuck(n int) bool { return n > g.maxRepeats }

// claimURL returns false when the URL was already claimed in this run.
func (g *runGuard) claimURL(u string) bool {
	if _, ok := g.urls[u]; ok {
		return false
	}
	g.urls[u] = struct{}{}
	return true
}

// abortRun closes rec as aborted and returns s marked accordingly.
func abortRun(rec *progress.Recorder, s RunSummary, reason string, err error) (RunSummary, error) {
	s.Aborted = true
	s.AbortReason = reason
	note := ""
	if err != nil {
		note = err.Error()
	}
	rec.Finish(reason, note)
	return s, err
}

func isCanceled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
