// Package monitoring watches reconciliation health in the background and
// raises alerts when job outcomes drift past configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/analytics"
	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

// HealthSnapshot is a point-in-time view of reconciliation health: the
// system-wide analytics plus any jobs that appear wedged.
type HealthSnapshot struct {
	System *analytics.SystemSnapshot `json:"system"`

	// StuckJobIDs are running jobs whose start is older than the stuck
	// threshold. A healthy batch finishes or fails well inside it.
	StuckJobIDs []string `json:"stuck_job_ids,omitempty"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers health snapshots from the store.
type Collector struct {
	store      store.Store
	metrics    *analytics.Collector
	stuckAfter time.Duration
}

// NewCollector creates a collector. stuckAfter bounds how long a job may
// stay running before it is reported as stuck; zero disables that check.
func NewCollector(st store.Store, stuckAfter time.Duration) *Collector {
	return &Collector{
		store:      st,
		metrics:    analytics.NewCollector(st),
		stuckAfter: stuckAfter,
	}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*HealthSnapshot, error) {
	sys, err := c.metrics.System(ctx, lookbackHours)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: system snapshot")
	}

	snap := &HealthSnapshot{
		System:      sys,
		CollectedAt: time.Now().UTC(),
	}

	if c.stuckAfter > 0 {
		running, err := c.store.ListJobs(ctx, store.JobFilter{
			Status: model.JobStatusRunning,
			Limit:  1000,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list running jobs")
		}

		cutoff := time.Now().UTC().Add(-c.stuckAfter)
		for _, j := range running {
			if j.StartedAt != nil && j.StartedAt.Before(cutoff) {
				snap.StuckJobIDs = append(snap.StuckJobIDs, j.ID)
			}
		}
	}

	return snap, nil
}
