package reconcile

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/mdm-cli/internal/model"
	"github.com/sells-group/mdm-cli/internal/store"
	"github.com/sells-group/mdm-cli/pkg/llm"
)

// --- Provider Mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string {
	return "mock"
}

func (m *mockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateJob(ctx context.Context, seed model.JobRun) (*model.JobRun, error) {
	args := m.Called(ctx, seed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobRun), args.Error(1)
}

func (m *mockStore) StartJob(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *mockStore) UpdateJobProgress(ctx context.Context, jobID string, processed, failed int) error {
	args := m.Called(ctx, jobID, processed, failed)
	return args.Error(0)
}

func (m *mockStore) FinishJob(ctx context.Context, jobID string, status model.JobStatus, processed, failed int, errMsg string) error {
	args := m.Called(ctx, jobID, status, processed, failed, errMsg)
	return args.Error(0)
}

func (m *mockStore) GetJob(ctx context.Context, jobID string) (*model.JobRun, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.JobRun), args.Error(1)
}

func (m *mockStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]model.JobRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.JobRun), args.Error(1)
}

func (m *mockStore) SaveRecords(ctx context.Context, jobID string, records []model.PersonRecord) error {
	args := m.Called(ctx, jobID, records)
	return args.Error(0)
}

func (m *mockStore) ListRecords(ctx context.Context, jobID string, filter store.RecordFilter) ([]model.PersonRecord, error) {
	args := m.Called(ctx, jobID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PersonRecord), args.Error(1)
}

func (m *mockStore) CountRecordsByFlag(ctx context.Context, jobID string) (map[model.ActionFlag]int, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.ActionFlag]int), args.Error(1)
}

func (m *mockStore) SaveDecisions(ctx context.Context, jobID string, decisions []model.CompanyMdmDecision) error {
	args := m.Called(ctx, jobID, decisions)
	return args.Error(0)
}

func (m *mockStore) ListDecisions(ctx context.Context, jobID string) ([]model.CompanyMdmDecision, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CompanyMdmDecision), args.Error(1)
}

func (m *mockStore) CountDecisionsByType(ctx context.Context, jobID string) (map[model.DecisionType]int, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[model.DecisionType]int), args.Error(1)
}

func (m *mockStore) SetMdmFlag(ctx context.Context, decisionID string, flag bool) error {
	args := m.Called(ctx, decisionID, flag)
	return args.Error(0)
}

func (m *mockStore) AppendAudit(ctx context.Context, entry model.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockStore) ListAudit(ctx context.Context, jobID string, limit int) ([]model.AuditEntry, error) {
	args := m.Called(ctx, jobID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AuditEntry), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// --- Ensure interface compliance ---
var (
	_ llm.Provider  = (*mockProvider)(nil)
	_ store.Store   = (*mockStore)(nil)
	_ titleResolver = (*Resolver)(nil)
)
