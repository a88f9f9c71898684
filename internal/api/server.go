package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/collect"
	"github.com/JakeFAU/blogi-collector/internal/jobs"
	"github.com/JakeFAU/blogi-collector/internal/metrics"
	"github.com/JakeFAU/blogi-collector/internal/scheduler"
	"github.com/JakeFAU/blogi-collector/internal/store"
)

// SchedulerControl is the subset of the scheduler the admin routes drive.
type SchedulerControl interface {
	Status() scheduler.Status
	Pause()
	Resume()
	RunNow()
	CancelRunningStep() bool
}

// JobService starts and reports article collection jobs.
type JobService interface {
	Launch() (string, error)
	Get(id string) jobs.Snapshot
}

// StepRunner runs one collection step synchronously.
type StepRunner interface {
	RunStep(ctx context.Context, step string) (collect.RunSummary, error)
}

// RunLister reads recent collection runs.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

// Config controls authentication and timeouts.
type Config struct {
	// InternalSecret is compared with the X-Internal-Secret header.
	InternalSecret string
	// Production refuses guarded routes when no secret is configured.
	Production     bool
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the scheduler, job registry and run ledger.
type Server struct {
	router    chi.Router
	scheduler SchedulerControl
	jobs      JobService
	steps     StepRunner
	runs      RunLister
	logger    *zap.Logger
}

// Deps are the collaborators behind the routes. Nil members make their
// routes report the feature as unavailable.
type Deps struct {
	Scheduler SchedulerControl
	Jobs      JobService
	Steps     StepRunner
	Runs      RunLister
	Logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	s := &Server{
		scheduler: deps.Scheduler,
		jobs:      deps.Jobs,
		steps:     deps.Steps,
		runs:      deps.Runs,
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	timeout := timeoutMiddleware(cfg.RequestTimeout)
	r.With(timeout).Get("/healthz", s.healthz)
	r.With(timeout).Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(secretMiddleware(cfg.InternalSecret, cfg.Production))
		r.Group(func(r chi.Router) {
			r.Use(timeout)
			r.Route("/admin", func(r chi.Router) {
				r.Route("/scheduler", func(r chi.Router) {
					r.Get("/status", s.schedulerStatus)
					r.Post("/pause", s.schedulerPause)
					r.Post("/resume", s.schedulerResume)
					r.Post("/run-now", s.schedulerRunNow)
					r.Post("/cancel-running", s.schedulerCancelRunning)
				})
				r.Get("/runs", s.listRuns)
			})
			r.Post("/internal/fetch/article/job", s.startArticleJob)
			r.Get("/internal/fetch/article/job/{job_id}", s.getArticleJob)
		})
		// Synchronous steps run for minutes; only the client ends them early.
		r.Post("/internal/collect/{step}", s.runStep)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
