package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
)

const (
	defaultEngineConcurrency     = 4
	defaultProgressFlushInterval = 2 * time.Second
)

// titleResolver is the slice of Resolver the engine needs. Resolve must be
// safe for concurrent use and must always return a terminal result.
type titleResolver interface {
	Resolve(ctx context.Context, rec model.PersonRecord, mode TriggerMode) model.ResolutionResult
}

// EngineConfig tunes the batch orchestrator. Zero values take defaults.
type EngineConfig struct {
	// Concurrency bounds the worker pool. Retries happen inside a worker
	// slot, so this also bounds concurrent provider calls.
	Concurrency int

	// FlushInterval is how often live progress counters are written back to
	// the store while the pool runs.
	FlushInterval time.Duration
}

// Engine drives one reconciliation batch end to end: classify every record,
// resolve the triggered ones, assign action flags, consolidate companies,
// and persist the lot with an audit trail.
type Engine struct {
	store         store.Store
	resolver      titleResolver
	concurrency   int
	flushInterval time.Duration
}

// BatchResult is everything one finished batch produced. Records are the
// callers' rows with engine fields filled in; Decisions is empty for a
// cancelled job.
type BatchResult struct {
	Job       *model.JobRun
	Records   []model.PersonRecord
	Decisions []model.CompanyMdmDecision
}

// NewEngine wires an orchestrator around a store and a resolver.
func NewEngine(st store.Store, resolver titleResolver, cfg EngineConfig) *Engine {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultEngineConcurrency
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultProgressFlushInterval
	}
	return &Engine{
		store:         st,
		resolver:      resolver,
		concurrency:   cfg.Concurrency,
		flushInterval: cfg.FlushInterval,
	}
}

// Run registers a new job for the given records and drives it to a terminal
// state. seed carries the display metadata (input file, provider, model);
// the total is taken from the record count.
func (e *Engine) Run(ctx context.Context, seed model.JobRun, records []model.PersonRecord) (*BatchResult, error) {
	job, err := e.Register(ctx, seed, len(records))
	if err != nil {
		return nil, err
	}
	return e.RunJob(ctx, job, records)
}

// Register creates the pending job row for a batch without running it.
// Callers that need the job ID before dispatch (the HTTP API) register
// first, then call RunJob when ready.
func (e *Engine) Register(ctx context.Context, seed model.JobRun, total int) (*model.JobRun, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}

	seed.Total = total
	job, err := e.store.CreateJob(ctx, seed)
	if err != nil {
		return nil, eris.Wrap(err, "engine: create job")
	}
	e.audit(context.WithoutCancel(ctx), model.AuditEntry{
		JobID:  job.ID,
		Action: model.AuditJobCreated,
		Details: map[string]any{
			"input_file": job.InputFile,
			"total":      job.Total,
		},
	})
	return job, nil
}

// RunJob drives an already-registered pending job. Per-record failures flag
// the record for review and never abort the batch; the job only lands on
// failed when setup breaks before dispatch or ctx is cancelled mid-run.
//
// Cancellation stops new resolver calls while calls already in flight run to
// completion, then the job is marked failed with every record's partial
// outcome persisted. A cancelled run is not an error: inspect the returned
// job status.
func (e *Engine) RunJob(ctx context.Context, job *model.JobRun, records []model.PersonRecord) (*BatchResult, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if job == nil || job.ID == "" {
		return nil, eris.New("engine: job not registered")
	}

	log := zap.L().With(zap.String("job_id", job.ID), zap.Int("records", len(records)))

	// Store writes must survive caller cancellation: partial results are
	// only partial if they actually land.
	persistCtx := context.WithoutCancel(ctx)

	if err := e.store.StartJob(ctx, job.ID); err != nil {
		return nil, eris.Wrap(err, "engine: start job")
	}
	now := time.Now().UTC()
	job.Status = model.JobStatusRunning
	job.StartedAt = &now
	e.audit(persistCtx, model.AuditEntry{JobID: job.ID, Action: model.AuditJobStarted})

	// IDs are assigned before dispatch so audit entries and workers can
	// reference records without coordinating.
	total := len(records)
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.New().String()
		}
		records[i].JobID = job.ID
		records[i].Status = model.RecordStatusPending
	}

	progress := NewProgress(total)
	stopFlush := e.startProgressFlush(persistCtx, job.ID, progress)

	log.Info("engine: dispatching", zap.Int("concurrency", e.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				rec.Status = model.RecordStatusSkipped
				return nil
			}
			e.processRecord(gctx, rec)
			if rec.Status == model.RecordStatusFailed {
				progress.MarkFailed()
			}
			progress.MarkProcessed()
			return nil // individual outcomes never abort the batch
		})
	}
	_ = g.Wait()
	stopFlush()

	cancelled := ctx.Err() != nil
	job.Processed = int(progress.Processed())
	job.Failed = int(progress.Failed())

	// Consolidation only makes sense over a complete batch; a partial group
	// map would contradict the rerun.
	var decisions []model.CompanyMdmDecision
	if !cancelled {
		decisions = Consolidate(job.ID, records)
	}

	if err := e.store.SaveRecords(persistCtx, job.ID, records); err != nil {
		e.finishBestEffort(persistCtx, job, "persist person results: "+err.Error())
		return nil, eris.Wrap(err, "engine: save records")
	}
	if len(decisions) > 0 {
		if err := e.store.SaveDecisions(persistCtx, job.ID, decisions); err != nil {
			e.finishBestEffort(persistCtx, job, "persist company decisions: "+err.Error())
			return nil, eris.Wrap(err, "engine: save decisions")
		}
	}
	e.recordAudits(persistCtx, job.ID, records)

	status := model.JobStatusCompleted
	errMsg := ""
	auditAction := model.AuditJobCompleted
	if cancelled {
		status = model.JobStatusFailed
		errMsg = fmt.Sprintf("cancelled after %d of %d records", job.Processed, total)
		auditAction = model.AuditJobCancelled
	}
	if err := e.store.FinishJob(persistCtx, job.ID, status, job.Processed, job.Failed, errMsg); err != nil {
		return nil, eris.Wrap(err, "engine: finish job")
	}
	done := time.Now().UTC()
	job.Status = status
	job.Error = errMsg
	job.CompletedAt = &done

	e.audit(persistCtx, model.AuditEntry{
		JobID:  job.ID,
		Action: auditAction,
		Details: map[string]any{
			"processed": job.Processed,
			"failed":    job.Failed,
			"decisions": len(decisions),
		},
	})

	log.Info("engine: batch finished",
		zap.String("status", string(status)),
		zap.Int("processed", job.Processed),
		zap.Int("failed", job.Failed),
		zap.Int("decisions", len(decisions)))

	return &BatchResult{Job: job, Records: records, Decisions: decisions}, nil
}

func (e *Engine) validate() error {
	if e.store == nil {
		return eris.New("engine: no store configured")
	}
	if e.resolver == nil {
		return eris.New("engine: no resolver configured")
	}
	return nil
}

// processRecord takes one record to a terminal state. All outcomes fold into
// the record itself; nothing propagates as an error.
func (e *Engine) processRecord(ctx context.Context, rec *model.PersonRecord) {
	mode := Classify(*rec)

	var res *model.ResolutionResult
	if mode.NeedsResolution() {
		r := e.resolver.Resolve(ctx, *rec, mode)
		res = &r
	}

	flag, title := AssignFlag(*rec, mode, res)
	rec.ActionFlag = flag
	rec.ResolvedTitle = title
	rec.Resolution = res

	now := time.Now().UTC()
	rec.ProcessedAt = &now
	if res != nil && res.Failed {
		rec.Status = model.RecordStatusFailed
	} else {
		rec.Status = model.RecordStatusCompleted
	}
}

// startProgressFlush periodically writes live counters to the store so a
// watcher polling the job row sees movement. The returned func stops the
// flusher and blocks until it exits.
func (e *Engine) startProgressFlush(ctx context.Context, jobID string, p *Progress) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(e.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := e.store.UpdateJobProgress(ctx, jobID, int(p.Processed()), int(p.Failed())); err != nil {
					zap.L().Warn("engine: progress flush failed",
						zap.String("job_id", jobID), zap.Error(err))
				}
			}
		}
	}()
	return func() { close(done); wg.Wait() }
}

// recordAudits appends one trail entry per resolver-triggered record.
func (e *Engine) recordAudits(ctx context.Context, jobID string, records []model.PersonRecord) {
	for i := range records {
		rec := &records[i]
		if rec.Resolution == nil {
			continue
		}
		action := model.AuditRecordResolved
		if rec.ActionFlag == model.ActionReviewTitle {
			action = model.AuditRecordReview
		}
		e.audit(ctx, model.AuditEntry{
			JobID:    jobID,
			RecordID: rec.ID,
			Action:   action,
			Details: map[string]any{
				"mode":       rec.Resolution.Mode,
				"attempts":   rec.Resolution.Attempts,
				"confidence": rec.Resolution.Confidence,
			},
		})
	}
}

func (e *Engine) finishBestEffort(ctx context.Context, job *model.JobRun, reason string) {
	if err := e.store.FinishJob(ctx, job.ID, model.JobStatusFailed, job.Processed, job.Failed, reason); err != nil {
		zap.L().Warn("engine: finish after persistence failure",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

// audit appends a trail entry, logging rather than failing on error. The
// trail is advisory; losing an entry must not take down a batch.
func (e *Engine) audit(ctx context.Context, entry model.AuditEntry) {
	if err := e.store.AppendAudit(ctx, entry); err != nil {
		zap.L().Warn("engine: audit append failed",
			zap.String("job_id", entry.JobID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}
