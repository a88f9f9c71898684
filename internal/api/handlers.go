package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/blogi-collector/internal/collect"
	"github.com/JakeFAU/blogi-collector/internal/jobs"
	"github.com/JakeFAU/blogi-collector/internal/scheduler"
	"github.com/JakeFAU/blogi-collector/internal/store"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
	ledgerTimeout   = 3 * time.Second
)

// ErrUnknownStep is returned by a StepRunner for an unrecognized step name.
var ErrUnknownStep = errors.New("unknown step")

func (s *Server) schedulerStatus(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeJSON(w, http.StatusOK, scheduler.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.Status())
}

func (s *Server) schedulerPause(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Pause()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) schedulerResume(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler != nil {
		s.scheduler.Resume()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) schedulerRunNow(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler != nil {
		s.scheduler.RunNow()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) schedulerCancelRunning(w http.ResponseWriter, _ *http.Request) {
	cancelled := false
	if s.scheduler != nil {
		cancelled = s.scheduler.CancelRunningStep()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) startArticleJob(w http.ResponseWriter, _ *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job registry unavailable")
		return
	}
	id, err := s.jobs.Launch()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, jobs.ErrRegistryFull) || errors.Is(err, jobs.ErrClosed) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Error("start article job failed", zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "status": string(jobs.StatusPending)})
}

func (s *Server) getArticleJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		writeError(w, http.StatusServiceUnavailable, "job registry unavailable")
		return
	}
	snap := s.jobs.Get(chi.URLParam(r, "job_id"))
	if snap.Status == jobs.StatusNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": string(jobs.StatusNotFound)})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) runStep(w http.ResponseWriter, r *http.Request) {
	if s.steps == nil {
		writeError(w, http.StatusServiceUnavailable, "collection unavailable")
		return
	}
	step := chi.URLParam(r, "step")
	summary, err := s.steps.RunStep(r.Context(), step)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, summary)
	case errors.Is(err, ErrUnknownStep):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, collect.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, err.Error())
	default:
		s.logger.Error("collection step failed", zap.String("step", step), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error(), "summary": summary})
	}
}

// listRuns handles GET /admin/runs?limit=. It returns {"runs": [...]}, 400
// for an invalid limit and 503 without a ledger.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
		return
	}
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), ledgerTimeout)
	defer cancel()
	runs, err := s.runs.RecentRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toRunDTOs(runs)})
}

func parseLimit(r *http.Request, def, maxLimit int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	return min(val, maxLimit), nil
}

type runDTO struct {
	ID         string     `json:"id"`
	Step       string     `json:"step"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
	Done       int64      `json:"done"`
	Skip       int64      `json:"skip"`
	Failed     int64      `json:"failed"`
}

func toRunDTOs(in []store.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, runDTO{
			ID:         run.ID.String(),
			Step:       run.Step,
			Status:     string(run.Status),
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Reason:     run.Reason,
			Done:       run.Done,
			Skip:       run.Skip,
			Failed:     run.Failed,
		})
	}
	return out
}
