package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
)

// ErrNotFound reports a lookup that matched no row. Both backends wrap it,
// so callers can errors.Is without knowing the driver.
var ErrNotFound = eris.New("not found")

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status       model.JobStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// RecordFilter specifies criteria for listing a job's person results.
type RecordFilter struct {
	ActionFlag model.ActionFlag   `json:"action_flag,omitempty"`
	Status     model.RecordStatus `json:"status,omitempty"`
	Limit      int                `json:"limit,omitempty"`
	Offset     int                `json:"offset,omitempty"`
}

// Store defines the persistence interface for the consolidation engine.
// The engine writes job transitions plus the final person and company
// result sets; the API layer reads them back.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, seed model.JobRun) (*model.JobRun, error)
	StartJob(ctx context.Context, jobID string) error
	UpdateJobProgress(ctx context.Context, jobID string, processed, failed int) error
	FinishJob(ctx context.Context, jobID string, status model.JobStatus, processed, failed int, errMsg string) error
	GetJob(ctx context.Context, jobID string) (*model.JobRun, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.JobRun, error)

	// Person results
	SaveRecords(ctx context.Context, jobID string, records []model.PersonRecord) error
	ListRecords(ctx context.Context, jobID string, filter RecordFilter) ([]model.PersonRecord, error)
	CountRecordsByFlag(ctx context.Context, jobID string) (map[model.ActionFlag]int, error)

	// Company decisions
	SaveDecisions(ctx context.Context, jobID string, decisions []model.CompanyMdmDecision) error
	ListDecisions(ctx context.Context, jobID string) ([]model.CompanyMdmDecision, error)
	CountDecisionsByType(ctx context.Context, jobID string) (map[model.DecisionType]int, error)
	SetMdmFlag(ctx context.Context, decisionID string, flag bool) error

	// Audit trail
	AppendAudit(ctx context.Context, entry model.AuditEntry) error
	ListAudit(ctx context.Context, jobID string, limit int) ([]model.AuditEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
