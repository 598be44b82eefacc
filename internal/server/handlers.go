package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/mdm-cli/internal/ingest"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

type createJobRequest struct {
	InputFile string `json:"input_file"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{
		Status: model.JobStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	jobs, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list jobs"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

// handleCreateJob reads the input file and registers the job synchronously,
// then runs the batch in the background. Parse problems surface here as a
// 400; everything after the 202 lands in the job row.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if req.InputFile == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "input_file is required"})
		return
	}

	records, err := ingest.ReadFile(r.Context(), req.InputFile, ingest.Options{})
	if err != nil {
		zap.L().Warn("server: ingest failed", zap.String("file", req.InputFile), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "failed to read input file"})
		return
	}

	seed := s.meta
	seed.InputFile = req.InputFile
	job, err := s.runner.Register(r.Context(), seed, len(records))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to register job"})
		return
	}

	go s.runBatch(job, records)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"total":  job.Total,
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJobStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.Job(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to collect job stats"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	filter := store.RecordFilter{
		ActionFlag: model.ActionFlag(r.URL.Query().Get("flag")),
		Status:     model.RecordStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit"),
		Offset:     queryInt(r, "offset"),
	}
	records, err := s.store.ListRecords(r.Context(), job.ID, filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list records"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	decisions, err := s.store.ListDecisions(r.Context(), job.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list companies"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"companies": decisions, "count": len(decisions)})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit")
	if limit == 0 {
		limit = 50
	}
	entries, err := s.store.ListAudit(r.Context(), job.ID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to list audit trail"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleSetMdmFlag updates the review flag on one company decision and
// leaves an audit entry so flag flips are attributable after the fact.
func (s *Server) handleSetMdmFlag(w http.ResponseWriter, r *http.Request) {
	job, ok := s.getJob(w, r)
	if !ok {
		return
	}
	var req struct {
		MdmFlag *bool `json:"mdm_flag"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MdmFlag == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "mdm_flag is required"})
		return
	}

	decisionID := chi.URLParam(r, "decisionID")
	if err := s.store.SetMdmFlag(r.Context(), decisionID, *req.MdmFlag); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "decision not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to set mdm flag"})
		return
	}

	if err := s.store.AppendAudit(r.Context(), model.AuditEntry{
		JobID:  job.ID,
		Action: model.AuditMdmFlagToggled,
		Details: map[string]any{
			"decision_id": decisionID,
			"mdm_flag":    *req.MdmFlag,
		},
	}); err != nil {
		zap.L().Warn("server: audit append failed",
			zap.String("job_id", job.ID), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"decision_id": decisionID,
		"mdm_flag":    *req.MdmFlag,
	})
}

func (s *Server) handleSystemAnalytics(w http.ResponseWriter, r *http.Request) {
	snap, err := s.metrics.System(r.Context(), queryInt(r, "lookback_hours"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to collect analytics"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// getJob resolves {jobID} or writes the error response. The bool reports
// whether the caller should continue.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) (*model.JobRun, bool) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": "job not found"})
		} else {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "failed to fetch job"})
		}
		return nil, false
	}
	return job, true
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	if n < 0 {
		return 0
	}
	return n
}
