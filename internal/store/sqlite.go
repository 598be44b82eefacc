package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mdm-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'pending',
	input_file   TEXT NOT NULL DEFAULT '',
	provider     TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL DEFAULT '',
	total        INTEGER NOT NULL DEFAULT 0,
	processed    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	started_at   DATETIME,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS person_results (
	id             TEXT PRIMARY KEY,
	job_id         TEXT NOT NULL REFERENCES jobs(id),
	row_index      INTEGER NOT NULL,
	record         TEXT NOT NULL,
	status         TEXT NOT NULL DEFAULT 'pending',
	action_flag    TEXT,
	resolved_title TEXT,
	processed_at   DATETIME
);

CREATE TABLE IF NOT EXISTS company_decisions (
	id                  TEXT PRIMARY KEY,
	job_id              TEXT NOT NULL REFERENCES jobs(id),
	company_key         TEXT NOT NULL,
	decision            TEXT NOT NULL,
	unified             TEXT NOT NULL,
	source_record_count INTEGER NOT NULL DEFAULT 0,
	mdm_flag            INTEGER NOT NULL DEFAULT 0,
	conflicts           TEXT,
	UNIQUE(job_id, company_key)
);

CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL,
	record_id  TEXT,
	action     TEXT NOT NULL,
	details    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_person_results_job_id ON person_results(job_id);
CREATE INDEX IF NOT EXISTS idx_person_results_job_flag ON person_results(job_id, action_flag);
CREATE INDEX IF NOT EXISTS idx_company_decisions_job_id ON company_decisions(job_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_job_id ON audit_log(job_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, seed model.JobRun) (*model.JobRun, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, input_file, provider, model, total, processed, failed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		id, string(model.JobStatusPending), seed.InputFile, seed.Provider, seed.Model, seed.Total, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
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

func (s *SQLiteStore) StartJob(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, started_at = ? WHERE id = ?`,
		string(model.JobStatusRunning), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: start job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) UpdateJobProgress(ctx context.Context, jobID string, processed, failed int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET processed = ?, failed = ? WHERE id = ?`,
		processed, failed, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job progress %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, processed, failed int, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, processed = ?, failed = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(status), processed, failed,
		sql.NullString{String: errMsg, Valid: errMsg != ""},
		time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish job %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, input_file, provider, model, total, processed, failed, error, created_at, started_at, completed_at
		 FROM jobs WHERE id = ?`,
		jobID,
	)
	return scanJob(row)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.JobRun, error) {
	query := `SELECT id, status, input_file, provider, model, total, processed, failed, error, created_at, started_at, completed_at
	          FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.JobRun
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// SaveRecords persists a job's person rows in one transaction. Records
// missing an ID are assigned one in place so callers can reference them
// afterward.
func (s *SQLiteStore) SaveRecords(ctx context.Context, jobID string, records []model.PersonRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save records")
	}
	defer tx.Rollback()

	for i := range records {
		rec := &records[i]
		if rec.ID == "" {
			rec.ID = uuid.New().String()
		}
		rec.JobID = jobID

		blob, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal record %s", rec.ID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO person_results (id, job_id, row_index, record, status, action_flag, resolved_title, processed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, jobID, rec.RowIndex, string(blob),
			string(rec.Status), string(rec.ActionFlag), rec.ResolvedTitle, rec.ProcessedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s", rec.ID)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save records")
}

func (s *SQLiteStore) ListRecords(ctx context.Context, jobID string, filter RecordFilter) ([]model.PersonRecord, error) {
	query := `SELECT record FROM person_results WHERE job_id = ?`
	args := []any{jobID}

	if filter.ActionFlag != "" {
		query += ` AND action_flag = ?`
		args = append(args, string(filter.ActionFlag))
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY row_index ASC`

	// Limit <= 0 returns the full result set; exports and consolidation
	// read whole jobs.
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close()

	var records []model.PersonRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		var rec model.PersonRecord
		if err := json.Unmarshal([]byte(blob), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal record")
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) CountRecordsByFlag(ctx context.Context, jobID string) (map[model.ActionFlag]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT action_flag, COUNT(*) FROM person_results WHERE job_id = ? AND action_flag != '' GROUP BY action_flag`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count records by flag")
	}
	defer rows.Close()

	counts := make(map[model.ActionFlag]int)
	for rows.Next() {
		var flag string
		var n int
		if err := rows.Scan(&flag, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan flag count")
		}
		counts[model.ActionFlag(flag)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count records iterate")
}

// SaveDecisions persists a job's company decisions. The (job_id,
// company_key) constraint makes a re-run of consolidation replace rather
// than duplicate.
func (s *SQLiteStore) SaveDecisions(ctx context.Context, jobID string, decisions []model.CompanyMdmDecision) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save decisions")
	}
	defer tx.Rollback()

	for i := range decisions {
		d := &decisions[i]
		if d.ID == "" {
			d.ID = uuid.New().String()
		}
		d.JobID = jobID

		unifiedJSON, err := json.Marshal(d.Unified)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal unified for %s", d.Key)
		}
		var conflictsJSON sql.NullString
		if len(d.Conflicts) > 0 {
			blob, err := json.Marshal(d.Conflicts)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal conflicts for %s", d.Key)
			}
			conflictsJSON = sql.NullString{String: string(blob), Valid: true}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO company_decisions (id, job_id, company_key, decision, unified, source_record_count, mdm_flag, conflicts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ID, jobID, d.Key, string(d.Decision), string(unifiedJSON),
			d.SourceRecordCount, d.MdmFlag, conflictsJSON,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %s", d.Key)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit save decisions")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, jobID string) ([]model.CompanyMdmDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, company_key, decision, unified, source_record_count, mdm_flag, conflicts
		 FROM company_decisions WHERE job_id = ? ORDER BY company_key ASC`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var decisions []model.CompanyMdmDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *d)
	}
	return decisions, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) CountDecisionsByType(ctx context.Context, jobID string) (map[model.DecisionType]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM company_decisions WHERE job_id = ? GROUP BY decision`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: count decisions by type")
	}
	defer rows.Close()

	counts := make(map[model.DecisionType]int)
	for rows.Next() {
		var decision string
		var n int
		if err := rows.Scan(&decision, &n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision count")
		}
		counts[model.DecisionType(decision)] = n
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: count decisions iterate")
}

func (s *SQLiteStore) SetMdmFlag(ctx context.Context, decisionID string, flag bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE company_decisions SET mdm_flag = ? WHERE id = ?`,
		flag, decisionID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set mdm flag %s", decisionID)
	}
	return checkRowsAffected(res, "decision", decisionID)
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var detailsJSON sql.NullString
	if len(entry.Details) > 0 {
		blob, err := json.Marshal(entry.Details)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit details")
		}
		detailsJSON = sql.NullString{String: string(blob), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, job_id, record_id, action, details, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.JobID,
		sql.NullString{String: entry.RecordID, Valid: entry.RecordID != ""},
		entry.Action, detailsJSON, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: append audit")
}

func (s *SQLiteStore) ListAudit(ctx context.Context, jobID string, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, record_id, action, details, created_at FROM audit_log
		 WHERE job_id = ? ORDER BY created_at DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list audit")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var recordID, detailsJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.JobID, &recordID, &e.Action, &detailsJSON, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		e.RecordID = recordID.String
		if detailsJSON.Valid {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit details")
			}
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list audit iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*model.JobRun, error) {
	var j model.JobRun
	var errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Status, &j.InputFile, &j.Provider, &j.Model,
		&j.Total, &j.Processed, &j.Failed, &errMsg, &j.CreatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "job")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}

	j.Error = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func scanDecision(row scannable) (*model.CompanyMdmDecision, error) {
	var d model.CompanyMdmDecision
	var unifiedJSON string
	var conflictsJSON sql.NullString

	err := row.Scan(&d.ID, &d.JobID, &d.Key, &d.Decision, &unifiedJSON,
		&d.SourceRecordCount, &d.MdmFlag, &conflictsJSON)
	if err == sql.ErrNoRows {
		return nil, eris.Wrap(ErrNotFound, "decision")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan decision")
	}

	if err := json.Unmarshal([]byte(unifiedJSON), &d.Unified); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal unified")
	}
	if conflictsJSON.Valid {
		if err := json.Unmarshal([]byte(conflictsJSON.String), &d.Conflicts); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal conflicts")
		}
	}
	return &d, nil
}
