// Package server exposes job submission and result browsing over HTTP.
// Reads go straight to the store; the single write path (job submission)
// registers synchronously and hands the batch to the engine in the
// background, so the response carries a job ID the caller can poll.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/analytics"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/reconcile"
	"github.com/sells-group/mdm-cli/internal/store"
)

// batchRunner is the slice of reconcile.Engine the server needs.
type batchRunner interface {
	Register(ctx context.Context, seed model.JobRun, total int) (*model.JobRun, error)
	RunJob(ctx context.Context, job *model.JobRun, records []model.PersonRecord) (*reconcile.BatchResult, error)
}

// Server handles the status API. base is the lifetime context for batches
// started over HTTP: cancelling it winds down in-flight batches the same
// way interrupting a CLI run does, with partial results persisted.
type Server struct {
	store   store.Store
	runner  batchRunner
	metrics *analytics.Collector
	base    context.Context
	meta    model.JobRun
}

// New builds a Server. meta supplies the provider and model stamped onto
// jobs submitted over HTTP; the server runs every batch on the one resolver
// its engine was built with, so callers cannot pick a backend per request.
func New(base context.Context, st store.Store, runner batchRunner, meta model.JobRun) *Server {
	return &Server{
		store:   st,
		runner:  runner,
		metrics: analytics.NewCollector(st),
		base:    base,
		meta:    meta,
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Get("/jobs", s.handleListJobs)
	r.Post("/jobs", s.handleCreateJob)
	r.Route("/jobs/{jobID}", func(r chi.Router) {
		r.Get("/", s.handleGetJob)
		r.Get("/stats", s.handleJobStats)
		r.Get("/records", s.handleListRecords)
		r.Get("/companies", s.handleListCompanies)
		r.Get("/audit", s.handleListAudit)
		r.Patch("/companies/{decisionID}/mdm-flag", s.handleSetMdmFlag)
	})

	r.Get("/analytics/system", s.handleSystemAnalytics)

	return r
}

// runBatch drives a registered job in the background. Failures land in the
// job row; the log line is for operators tailing the server.
func (s *Server) runBatch(job *model.JobRun, records []model.PersonRecord) {
	result, err := s.runner.RunJob(s.base, job, records)
	if err != nil {
		zap.L().Error("server: batch failed",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}
	zap.L().Info("server: batch finished",
		zap.String("job_id", job.ID),
		zap.String("status", string(result.Job.Status)),
		zap.Int("processed", result.Job.Processed))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
