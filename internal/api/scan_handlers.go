package api

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/docwatch/internal/crawllog"
	"github.com/JakeFAU/docwatch/internal/id"
	"github.com/JakeFAU/docwatch/internal/pipeline"
	"github.com/JakeFAU/docwatch/internal/store"
)

var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type scanResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// startScan handles POST /v1/launches/{job}/{launch}/scan. The run executes
// in the background; 202 carries its ID, 409 names the run already scanning
// the same launch.
func (s *Server) startScan(w http.ResponseWriter, r *http.Request) {
	job := chi.URLParam(r, "job")
	launch := chi.URLParam(r, "launch")
	if !jobNamePattern.MatchString(job) || strings.Contains(job, "..") {
		writeError(w, http.StatusBadRequest, "invalid job name")
		return
	}
	if !crawllog.ValidLaunchID(launch) {
		writeError(w, http.StatusBadRequest, "launch must be a 14-digit timestamp")
		return
	}
	if s.runner == nil || s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}
	runID := id.New()
	key := job + "/" + launch

	s.mu.Lock()
	if existing, busy := s.inflight[key]; busy {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  "launch already scanning",
			"run_id": existing,
		})
		return
	}
	s.inflight[key] = runID
	s.mu.Unlock()

	run := store.Run{ID: runID, Job: job, Launch: launch, StartedAt: s.clock.Now()}
	if err := s.runs.Start(r.Context(), run); err != nil {
		s.release(key)
		s.logger.Error("record run start failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record run")
		return
	}

	s.wg.Add(1)
	go s.execute(runID, job, launch, key)
	writeJSON(w, http.StatusAccepted, scanResponse{RunID: runID, Status: string(store.RunRunning)})
}

func (s *Server) execute(runID, job, launch, key string) {
	defer s.wg.Done()
	defer s.release(key)

	logger := s.logger.With(
		zap.String("run_id", runID),
		zap.String("job", job),
		zap.String("launch", launch),
	)
	opts := []pipeline.RunOption{pipeline.WithRunID(runID)}
	if s.progress != nil {
		opts = append(opts, pipeline.WithEmitter(s.progress))
	}
	res, err := s.runner.Run(s.base, job, launch, opts...)
	switch {
	case err != nil:
		logger.Error("scan failed", zap.Error(err))
	case !res.Complete():
		logger.Warn("scan incomplete", zap.Int("failed", res.Failed), zap.Int("pending", res.Pending))
	default:
		logger.Info("scan complete", zap.Int("accepted", res.Accepted))
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(s.base), progressTimeout)
	defer cancel()
	if ferr := s.runs.Finish(finishCtx, runID, s.clock.Now(), res, err); ferr != nil {
		logger.Error("record run finish failed", zap.Error(ferr))
	}
}

func (s *Server) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}

// availability handles GET /v1/availability?url=&timestamp=.
func (s *Server) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL := strings.TrimSpace(q.Get("url"))
	ts := strings.TrimSpace(q.Get("timestamp"))
	if rawURL == "" || ts == "" {
		writeError(w, http.StatusBadRequest, "url and timestamp are required")
		return
	}
	if !crawllog.ValidLaunchID(ts) {
		writeError(w, http.StatusBadRequest, "timestamp must have 14 digits")
		return
	}
	if s.resolver == nil {
		writeError(w, http.StatusServiceUnavailable, "wayback index not configured")
		return
	}
	avail := s.resolver.Resolve(r.Context(), rawURL, ts)
	writeJSON(w, http.StatusOK, map[string]any{
		"url":       rawURL,
		"timestamp": ts,
		"known":     avail.Known,
		"available": avail.Available,
	})
}
