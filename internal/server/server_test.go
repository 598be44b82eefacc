package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/reconcile"
	"github.com/sells-group/mdm-cli/internal/store"
)

// stubRunner registers jobs against the real store but captures the batch
// instead of running it, so tests can assert on the async hand-off.
type stubRunner struct {
	st  store.Store
	ran chan []model.PersonRecord
}

var _ batchRunner = (*stubRunner)(nil)

func newStubRunner(st store.Store) *stubRunner {
	return &stubRunner{st: st, ran: make(chan []model.PersonRecord, 1)}
}

func (r *stubRunner) Register(ctx context.Context, seed model.JobRun, total int) (*model.JobRun, error) {
	seed.Total = total
	return r.st.CreateJob(ctx, seed)
}

func (r *stubRunner) RunJob(ctx context.Context, job *model.JobRun, records []model.PersonRecord) (*reconcile.BatchResult, error) {
	r.ran <- records
	return &reconcile.BatchResult{Job: job, Records: records}, nil
}

func newTestServer(t *testing.T) (http.Handler, store.Store, *stubRunner) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	runner := newStubRunner(st)
	srv := New(context.Background(), st, runner, model.JobRun{
		Provider: "anthropic",
		Model:    "claude-haiku-4-5-20251001",
	})
	return srv.Router(), st, runner
}

func seedJob(t *testing.T, st store.Store) *model.JobRun {
	t.Helper()
	job, err := st.CreateJob(context.Background(), model.JobRun{InputFile: "contacts.csv", Total: 4})
	require.NoError(t, err)
	return job
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestServer_Health(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "ok", decodeBody(t, rr)["status"])
}

func TestServer_CreateJob(t *testing.T) {
	router, st, runner := newTestServer(t)

	input := filepath.Join(t.TempDir(), "contacts.csv")
	csv := "full_name,title_input,title_new,company_input,augmentation_status\n" +
		"Dana Scully,Director,VP of Operations,Acme,matched\n" +
		"Fox Mulder,Agent,,Acme,not_matched\n"
	require.NoError(t, os.WriteFile(input, []byte(csv), 0o644))

	payload, _ := json.Marshal(map[string]string{"input_file": input})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusAccepted, rr.Code)
	body := decodeBody(t, rr)
	require.NotEmpty(t, body["job_id"])
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, float64(2), body["total"])

	select {
	case records := <-runner.ran:
		assert.Len(t, records, 2)
		assert.Equal(t, "Dana Scully", records[0].FullName)
	case <-time.After(time.Second):
		t.Fatal("batch was never handed to the runner")
	}

	job, err := st.GetJob(context.Background(), body["job_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, input, job.InputFile)
	assert.Equal(t, "anthropic", job.Provider)
	assert.Equal(t, 2, job.Total)
}

func TestServer_CreateJob_UnreadableFile(t *testing.T) {
	router, _, _ := newTestServer(t)

	payload, _ := json.Marshal(map[string]string{"input_file": "/nonexistent/contacts.csv"})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "failed to read input file")
}

func TestServer_CreateJob_MissingInputFile(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte("{}")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "input_file is required")
}

func TestServer_CreateJob_InvalidJSON(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "invalid json")
}

func TestServer_GetJob(t *testing.T) {
	router, st, _ := newTestServer(t)
	job := seedJob(t, st)

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, job.ID, body["id"])
	assert.Equal(t, "contacts.csv", body["input_file"])
}

func TestServer_GetJob_NotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "job not found")
}

func TestServer_ListJobs(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()

	first := seedJob(t, st)
	seedJob(t, st)
	require.NoError(t, st.FinishJob(ctx, first.ID, model.JobStatusFailed, 1, 1, "boom"))

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])

	req = httptest.NewRequest(http.MethodGet, "/jobs?status=failed", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
	jobs := body["jobs"].([]any)
	require.Len(t, jobs, 1)
	assert.Equal(t, first.ID, jobs[0].(map[string]any)["id"])
}

func TestServer_ListRecords(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)

	records := []model.PersonRecord{
		{RowIndex: 1, FullName: "Dana", Status: model.RecordStatusCompleted, ActionFlag: model.ActionUpdateTitle},
		{RowIndex: 2, FullName: "Fox", Status: model.RecordStatusCompleted, ActionFlag: model.ActionKeepOriginal},
	}
	require.NoError(t, st.SaveRecords(ctx, job.ID, records))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/records", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])

	req = httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/records?flag=update_title", nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
	got := body["records"].([]any)
	require.Len(t, got, 1)
	assert.Equal(t, "Dana", got[0].(map[string]any)["full_name"])
}

func TestServer_ListRecords_JobNotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent/records", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_ListCompanies(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)

	decisions := []model.CompanyMdmDecision{{
		Key:               "acme.com",
		Decision:          model.DecisionCompanyDataUpdate,
		Unified:           model.Firmographics{CompanyName: "Acme", Domain: "acme.com"},
		SourceRecordCount: 2,
	}}
	require.NoError(t, st.SaveDecisions(ctx, job.ID, decisions))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/companies", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["count"])
	companies := body["companies"].([]any)
	require.Len(t, companies, 1)
	assert.Equal(t, "acme.com", companies[0].(map[string]any)["key"])
}

func TestServer_SetMdmFlag(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)

	decisions := []model.CompanyMdmDecision{{
		Key:               "acme.com",
		Decision:          model.DecisionTrueJobChange,
		Unified:           model.Firmographics{CompanyName: "Acme"},
		SourceRecordCount: 1,
	}}
	require.NoError(t, st.SaveDecisions(ctx, job.ID, decisions))

	payload := []byte(`{"mdm_flag": true}`)
	url := "/jobs/" + job.ID + "/companies/" + decisions[0].ID + "/mdm-flag"
	req := httptest.NewRequest(http.MethodPatch, url, bytes.NewReader(payload))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, decisions[0].ID, body["decision_id"])
	assert.Equal(t, true, body["mdm_flag"])

	got, err := st.ListDecisions(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].MdmFlag)

	entries, err := st.ListAudit(ctx, job.ID, 10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, model.AuditMdmFlagToggled, entries[0].Action)
	assert.Equal(t, decisions[0].ID, entries[0].Details["decision_id"])
}

func TestServer_SetMdmFlag_DecisionNotFound(t *testing.T) {
	router, st, _ := newTestServer(t)
	job := seedJob(t, st)

	url := "/jobs/" + job.ID + "/companies/nonexistent/mdm-flag"
	req := httptest.NewRequest(http.MethodPatch, url, bytes.NewReader([]byte(`{"mdm_flag": false}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "decision not found")
}

func TestServer_SetMdmFlag_MissingFlag(t *testing.T) {
	router, st, _ := newTestServer(t)
	job := seedJob(t, st)

	url := "/jobs/" + job.ID + "/companies/whatever/mdm-flag"
	req := httptest.NewRequest(http.MethodPatch, url, bytes.NewReader([]byte(`{}`)))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "mdm_flag is required")
}

func TestServer_JobStats(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)

	records := []model.PersonRecord{
		{RowIndex: 1, Status: model.RecordStatusCompleted, ActionFlag: model.ActionUpdateTitle},
		{RowIndex: 2, Status: model.RecordStatusCompleted, ActionFlag: model.ActionUpdateTitle},
		{RowIndex: 3, Status: model.RecordStatusFailed, ActionFlag: model.ActionReviewTitle},
		{RowIndex: 4, Status: model.RecordStatusCompleted, ActionFlag: model.ActionKeepOriginal},
	}
	require.NoError(t, st.SaveRecords(ctx, job.ID, records))
	require.NoError(t, st.StartJob(ctx, job.ID))
	require.NoError(t, st.FinishJob(ctx, job.ID, model.JobStatusCompleted, 4, 1, ""))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, job.ID, body["job_id"])
	assert.Equal(t, float64(75), body["success_rate"])
	assert.Equal(t, float64(0.25), body["review_share"])
	flags := body["flag_counts"].(map[string]any)
	assert.Equal(t, float64(2), flags["update_title"])
}

func TestServer_JobStats_NotFound(t *testing.T) {
	router, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/jobs/nonexistent/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_SystemAnalytics(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)
	require.NoError(t, st.FinishJob(ctx, job.ID, model.JobStatusCompleted, 4, 0, ""))

	req := httptest.NewRequest(http.MethodGet, "/analytics/system", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, float64(1), body["jobs_total"])
	assert.Equal(t, float64(1), body["jobs_completed"])
	assert.Equal(t, float64(4), body["records_processed"])
}

func TestServer_ListAudit(t *testing.T) {
	router, st, _ := newTestServer(t)
	ctx := context.Background()
	job := seedJob(t, st)

	require.NoError(t, st.AppendAudit(ctx, model.AuditEntry{JobID: job.ID, Action: model.AuditJobCreated}))
	require.NoError(t, st.AppendAudit(ctx, model.AuditEntry{JobID: job.ID, Action: model.AuditJobStarted}))

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/audit", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(2), decodeBody(t, rr)["count"])
}
