package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/mdm-cli/internal/db"
	"github.com/sells-group/mdm-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_job":          `INSERT INTO jobs (id, status, input_file, provider, model, total, processed, failed, created_at) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`,
	"start_job":           `UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3`,
	"update_job_progress": `UPDATE jobs SET processed = $1, failed = $2 WHERE id = $3`,
	"get_job":             `SELECT id, status, input_file, provider, model, total, processed, failed, error, created_at, started_at, completed_at FROM jobs WHERE id = $1`,
	"insert_audit":        `INSERT INTO audit_log (id, job_id, record_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
	"set_mdm_flag":        `UPDATE company_decisions SET mdm_flag = $1 WHERE id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status       TEXT NOT NULL DEFAULT 'pending',
	input_file   TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS person_results (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL REFERENCES jobs(id),
	row_index      INTEGER NOT NULL,
	record         JSONB NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	action_flag    TEXT,
	resolved_title TEXT,
	processed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS company_decisions (
	id                  TEXT PRIMARY KEY,
	job_id              TEXT NOT NULL REFERENCES jobs(id),
	company_key         TEXT NOT NULL,
	decision            TEXT NOT NULL,
	unified             JSONB NOT NULL,
	source_record_count INTEGER NOT NULL DEFAULT 0,
	mdm_flag            BOOLEAN NOT NULL DEFAULT false,
	conflicts           JSONB,
	UNIQUE(job_id, company_key)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	job_id     TEXT NOT NULL,
	record_id  TEXT,
	action     TEXT NOT NULL,
	details    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_person_results_job_id ON person_results(job_id);
CREATE INDEX IF NOT EXISTS idx_person_results_job_flag ON person_results(job_id, action_flag);
CREATE INDEX IF NOT EXISTS idx_company_decisions_job_id ON company_decisions(job_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_job_id ON audit_log(job_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, seed model.JobRun) (*model.JobRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, input_file, provider, model, total, processed, failed, created_at) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)`,
		id, string(model.JobStatusPending), seed.InputFile, seed.Provider, seed.Model, seed.Total, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}

	return &model.JobRun{
		ID:        id,
		Status:    model.JobStatusPending,
		InputFile: seed.InputFile,
		Provider:  seed.Provider,
		Model:     seed.Model,
		Total:     seed.Total,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) StartJob(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, started_at = $2 WHERE id = $3`,
		string(model.JobStatusRunning), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: start job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) UpdateJobProgress(ctx context.Context, jobID string, processed, failed int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET processed = $1, failed = $2 WHERE id = $3`,
		processed, failed, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job progress %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, processed, failed int, errMsg string) error {
	var errVal *string
	if errMsg != "" {
		errVal = &errMsg
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, processed = $2, failed = $3, error = $4, completed_at = $5 WHERE id = $6`,
		string(status), processed, failed, errVal, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "job %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.JobRun, error) {
	var j model.JobRun
	var errMsg *string

	err := s.pool.QueryRow(ctx,
		`SELECT id, status, input_file, provider, model, total, processed, failed, error, created_at, started_at, completed_at FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&j.ID, &j.Status, &j.InputFile, &j.Provider, &j.Model,
		&j.Total, &j.Processed, &j.Failed, &errMsg, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get job %s", jobID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.JobRun, error) {
	query := `SELECT id, status, input_file, provider, model, total, processed, failed, error, created_at, started_at, completed_at FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if !filter.CreatedAfter.IsZero() {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, filter.CreatedAfter.UTC())
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.JobRun
	for rows.Next() {
		var j model.JobRun
		var errMsg *string
		if err := rows.Scan(&j.ID, &j.Status, &j.InputFile, &j.Provider, &j.Model,
			&j.Total, &j.Processed, &j.Failed, &errMsg, &j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		if errMsg != nil {
			j.Error = *errMsg
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// SaveRecords bulk-inserts a job's person rows over the COPY protocol.
// Records missing an ID are assigned one in place so callers can reference
// them afterward.
func (s *PostgresStore) SaveRecords(ctx context.Context, jobID string, records []model.PersonRecord) error {
	if len(records) == 0 {
		return nil
	}

	columns := []string{"id", "job_id", "row_index", "record", "status", "action_flag", "resolved_title", "processed_at"}
	rows := make([][]any, 0, len(records))

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		rec.JobID = jobID

		blob, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal record %s", rec.ID)
		}
		rows = append(rows, []any{
			rec.ID, jobID, rec.RowIndex, blob,
			string(rec.Status), string(rec.ActionFlag), rec.ResolvedTitle, rec.ProcessedAt,
		})
	}

	_, err := db.CopyFrom(ctx, s.pool, "person_results", columns, rows)
	return eris.Wrap(err, "postgres: save records")
}

func (s *PostgresStore) ListRecords(ctx context.Context, jobID string, filter RecordFilter) ([]model.PersonRecord, error) {
	query := `SELECT record FROM person_results WHERE job_id = $1`
	args := []any{jobID}
	argIdx := 2

	if filter.ActionFlag != "" {
		query += fmt.Sprintf(` AND action_flag = $%d`, argIdx)
		args = append(args, string(filter.ActionFlag))
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY row_index ASC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
		if filter.Offset > 0 {
			query += fmt.Sprintf(` OFFSET $%d`, argIdx)
			args = append(args, filter.Offset)
			argIdx++
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var records []model.PersonRecord
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		var rec model.PersonRecord
		if err := json.Unmarshal(blob, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) CountRecordsByFlag(ctx context.Context, jobID string) (map[model.ActionFlag]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT action_flag, COUNT(*) FROM person_results WHERE job_id = $1 AND action_flag != '' GROUP BY action_flag`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count records by flag")
	}
	defer rows.Close()

	counts := make(map[model.ActionFlag]int)
	for rows.Next() {
		var flag string
		var n int
		if err := rows.Scan(&flag, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan flag count")
		}
		counts[model.ActionFlag(flag)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count records iterate")
}

// SaveDecisions bulk-upserts a job's company decisions. The (job_id,
// company_key) constraint makes a re-run of consolidation replace rather
// than duplicate.
func (s *PostgresStore) SaveDecisions(ctx context.Context, jobID string, decisions []model.CompanyMdmDecision) error {
	if len(decisions) == 0 {
		return nil
	}

	cfg := db.UpsertConfig{
		Table:        "company_decisions",
		Columns:      []string{"id", "job_id", "company_key", "decision", "unified", "source_record_count", "mdm_flag", "conflicts"},
		ConflictKeys: []string{"job_id", "company_key"},
	}

	rows := make([][]any, 0, len(decisions))
	for i := range decisions {
		d := &decisions[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.JobID = jobID

		unifiedJSON, err := json.Marshal(d.Unified)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal unified for %s", d.Key)
		}
		var conflictsJSON []byte
		if len(d.Conflicts) > 0 {
			conflictsJSON, err = json.Marshal(d.Conflicts)
			if err != nil {
				return eris.Wrapf(err, "postgres: marshal conflicts for %s", d.Key)
			}
		}
		rows = append(rows, []any{
			d.ID, jobID, d.Key, string(d.Decision), unifiedJSON,
			d.SourceRecordCount, d.MdmFlag, conflictsJSON,
		})
	}

	_, err := db.BulkUpsert(ctx, s.pool, cfg, rows)
	return eris.Wrap(err, "postgres: save decisions")
}

func (s *PostgresStore) ListDecisions(ctx context.Context, jobID string) ([]model.CompanyMdmDecision, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, company_key, decision, unified, source_record_count, mdm_flag, conflicts
		 FROM company_decisions WHERE job_id = $1 ORDER BY company_key ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var decisions []model.CompanyMdmDecision
	for rows.Next() {
		var d model.CompanyMdmDecision
		var unifiedJSON, conflictsJSON []byte
		if err := rows.Scan(&d.ID, &d.JobID, &d.Key, &d.Decision, &unifiedJSON,
			&d.SourceRecordCount, &d.MdmFlag, &conflictsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		if err := json.Unmarshal(unifiedJSON, &d.Unified); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal unified")
		}
		if len(conflictsJSON) > 0 {
			if err := json.Unmarshal(conflictsJSON, &d.Conflicts); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal conflicts")
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) CountDecisionsByType(ctx context.Context, jobID string) (map[model.DecisionType]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT decision, COUNT(*) FROM company_decisions WHERE job_id = $1 GROUP BY decision`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: count decisions by type")
	}
	defer rows.Close()

	counts := make(map[model.DecisionType]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision count")
		}
		counts[model.DecisionType(decision)] = n
	}
	return counts, eris.Wrap(rows.Err(), "postgres: count decisions iterate")
}

func (s *PostgresStore) SetMdmFlag(ctx context.Context, decisionID string, flag bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE company_decisions SET mdm_flag = $1 WHERE id = $2`,
		flag, decisionID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set mdm flag %s", decisionID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "decision %s", decisionID)
	}
	return nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var detailsJSON []byte
	if len(entry.Details) > 0 {
		var err error
		detailsJSON, err = json.Marshal(entry.Details)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal audit details")
		}
	}
	var recordID *string
	if entry.RecordID != "" {
		recordID = &entry.RecordID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (id, job_id, record_id, action, details, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.JobID, recordID, entry.Action, detailsJSON, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: append audit")
}

func (s *PostgresStore) ListAudit(ctx context.Context, jobID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, record_id, action, details, created_at FROM audit_log
		 WHERE job_id = $1 ORDER BY created_at DESC LIMIT $2`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var recordID *string
		var detailsJSON []byte
		if err := rows.Scan(&e.ID, &e.JobID, &recordID, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan audit entry")
		}
		if recordID != nil {
			e.RecordID = *recordID
		}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &e.Details); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "postgres: list audit iterate")
}
