// Package analytics computes job and system metric snapshots from the
// store. Snapshots are plain values; the serve layer returns them as JSON
// and the CLI prints them.
package analytics

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

const defaultLookbackHours = 24

// SystemSnapshot holds a point-in-time view of reconciliation work within a
// lookback window.
type SystemSnapshot struct {
	JobsTotal     int     `json:"jobs_total"`
	JobsCompleted int     `json:"jobs_completed"`
	JobsFailed    int     `json:"jobs_failed"`
	JobsRunning   int     `json:"jobs_running"`
	JobsPending   int     `json:"jobs_pending"`
	JobFailRate   float64 `json:"job_fail_rate"`

	RecordsProcessed int `json:"records_processed"`
	RecordsFailed    int `json:"records_failed"`

	TitleUpdates int `json:"title_updates"`
	ReviewQueue  int `json:"review_queue"`
	TitlesKept   int `json:"titles_kept"`

	TrueJobChanges     int `json:"true_job_changes"`
	CompanyDataUpdates int `json:"company_data_updates"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// JobSnapshot holds detailed statistics for one job.
type JobSnapshot struct {
	JobID             string          `json:"job_id"`
	Status            model.JobStatus `json:"status"`
	Total             int             `json:"total_records"`
	Processed         int             `json:"processed_records"`
	FailedRecords     int             `json:"failed_records"`
	SuccessRate       float64         `json:"success_rate"`
	CompletionPercent float64         `json:"completion_percent"`
	ProcessingSeconds float64         `json:"processing_seconds"`

	FlagCounts     map[model.ActionFlag]int   `json:"flag_counts"`
	DecisionCounts map[model.DecisionType]int `json:"decision_counts"`
	ReviewShare    float64                    `json:"review_share"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// System gathers a snapshot across jobs created within the lookback window.
func (c *Collector) System(ctx context.Context, lookbackHours int) (*SystemSnapshot, error) {
	if lookbackHours <= 0 {
		lookbackHours = defaultLookbackHours
	}
	snap := &SystemSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
	jobs, err := c.store.ListJobs(ctx, store.JobFilter{
		CreatedAfter: cutoff,
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analytics: list jobs")
	}

	snap.JobsTotal = len(jobs)
	for _, j := range jobs {
		switch j.Status {
		case model.JobStatusCompleted:
			snap.JobsCompleted++
		case model.JobStatusFailed:
			snap.JobsFailed++
		case model.JobStatusRunning:
			snap.JobsRunning++
		case model.JobStatusPending:
			snap.JobsPending++
		}
		snap.RecordsProcessed += j.Processed
		snap.RecordsFailed += j.Failed

		flags, err := c.store.CountRecordsByFlag(ctx, j.ID)
		if err != nil {
			return nil, eris.Wrap(err, "analytics: count flags")
		}
		snap.TitleUpdates += flags[model.ActionUpdateTitle]
		snap.ReviewQueue += flags[model.ActionReviewTitle]
		snap.TitlesKept += flags[model.ActionKeepOriginal]

		decisions, err := c.store.CountDecisionsByType(ctx, j.ID)
		if err != nil {
			return nil, eris.Wrap(err, "analytics: count decisions")
		}
		snap.TrueJobChanges += decisions[model.DecisionTrueJobChange]
		snap.CompanyDataUpdates += decisions[model.DecisionCompanyDataUpdate]
	}

	if finished := snap.JobsCompleted + snap.JobsFailed; finished > 0 {
		snap.JobFailRate = float64(snap.JobsFailed) / float64(finished)
	}
	return snap, nil
}

// Job gathers detailed statistics for one job.
func (c *Collector) Job(ctx context.Context, jobID string) (*JobSnapshot, error) {
	job, err := c.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: get job")
	}

	flags, err := c.store.CountRecordsByFlag(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count flags")
	}
	decisions, err := c.store.CountDecisionsByType(ctx, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "analytics: count decisions")
	}

	snap := &JobSnapshot{
		JobID:             job.ID,
		Status:            job.Status,
		Total:             job.Total,
		Processed:         job.Processed,
		FailedRecords:     job.Failed,
		CompletionPercent: job.CompletionPercent(),
		ProcessingSeconds: job.ProcessingSeconds(),
		FlagCounts:        flags,
		DecisionCounts:    decisions,
	}
	if job.Total > 0 {
		snap.SuccessRate = float64(job.Processed-job.Failed) / float64(job.Total) * 100
	}
	flagged := 0
	for _, n := range flags {
		flagged += n
	}
	if flagged > 0 {
		snap.ReviewShare = float64(flags[model.ActionReviewTitle]) / float64(flagged)
	}
	return snap, nil
}
