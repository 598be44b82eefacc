package model

import "time"

// JobStatus is the batch lifecycle state. Transitions run one way:
// pending -> running -> completed | failed. Cancellation lands on failed
// with partial results kept.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobRun is one batch execution over an uploaded file.
type JobRun struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	InputFile   string     `json:"input_file"`
	Provider    string     `json:"provider,omitempty"`
	Model       string     `json:"model,omitempty"`
	Total       int        `json:"total_records"`
	Processed   int        `json:"processed_records"`
	Failed      int        `json:"error_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CompletionPercent returns processed/total as 0-100, 0 for an empty job.
func (j JobRun) CompletionPercent() float64 {
	if j.Total <= 0 {
		return 0
	}
	return float64(j.Processed) / float64(j.Total) * 100
}

// ProcessingSeconds returns wall time from start to completion, or to now
// for a still-running job. Zero before the job starts.
func (j JobRun) ProcessingSeconds() float64 {
	if j.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if j.CompletedAt != nil {
		end = *j.CompletedAt
	}
	return end.Sub(*j.StartedAt).Seconds()
}

// AuditEntry is one row of the append-only action trail.
type AuditEntry struct {
	ID        string         `json:"id"`
	JobID     string         `json:"job_id,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Audit action names written by the engine and the API layer.
const (
	AuditJobCreated     = "job_created"
	AuditJobStarted     = "job_started"
	AuditJobCompleted   = "job_completed"
	AuditJobFailed      = "job_failed"
	AuditJobCancelled   = "job_cancelled"
	AuditRecordResolved = "record_resolved"
	AuditRecordReview   = "record_review"
	AuditMdmFlagToggled = "mdm_flag_toggled"
)
