package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"go-reports/internal/common/errs"
	"go-reports/internal/features/execution"
	"go-reports/internal/features/notification"
	"go-reports/internal/features/report"
	"go-reports/internal/features/tenant"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockScheduleRepository keeps schedules in memory with the same lease
// semantics as the Mongo repository.
type MockScheduleRepository struct {
	mu        sync.Mutex
	schedules map[primitive.ObjectID]*Schedule
	runs      []RunRecord
}

func NewMockScheduleRepository(schedules ...*Schedule) *MockScheduleRepository {
	m := &MockScheduleRepository{schedules: make(map[primitive.ObjectID]*Schedule)}
	for _, s := range schedules {
		m.schedules[s.ID] = s
	}
	return m
}

func (m *MockScheduleRepository) get(id primitive.ObjectID) Schedule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.schedules[id]
}

func (m *MockScheduleRepository) Create(ctx context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.schedules[s.ID] = &c
	return nil
}

func (m *MockScheduleRepository) FindByID(ctx context.Context, id primitive.ObjectID, org string) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.OrganizationID != org {
		return nil, errs.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *MockScheduleRepository) List(ctx context.Context, org, ownerUserID, reportID string) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Schedule{}
	for _, s := range m.schedules {
		if s.OrganizationID == org && s.OwnerUserID == ownerUserID && (reportID == "" || s.ReportID == reportID) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *MockScheduleRepository) Update(ctx context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[s.ID]; !ok {
		return errs.ErrNotFound
	}
	c := *s
	m.schedules[s.ID] = &c
	return nil
}

func (m *MockScheduleRepository) SetActive(ctx context.Context, id primitive.ObjectID, org string, active bool, nextRunAt *time.Time, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.OrganizationID != org {
		return errs.ErrNotFound
	}
	s.IsActive = active
	s.NextRunAt = nextRunAt
	s.UpdatedAt = at
	return nil
}

func (m *MockScheduleRepository) Delete(ctx context.Context, id primitive.ObjectID, org string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *MockScheduleRepository) DeleteByReport(ctx context.Context, reportID, org string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.schedules {
		if s.ReportID == reportID && s.OrganizationID == org {
			delete(m.schedules, id)
		}
	}
	return nil
}

func (m *MockScheduleRepository) FindDue(ctx context.Context, now time.Time, limit int64) ([]Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Schedule
	for _, s := range m.schedules {
		if s.IsActive && s.NextRunAt != nil && !s.NextRunAt.After(now) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].NextRunAt.Equal(*out[j].NextRunAt) {
			return out[i].ID.Hex() < out[j].ID.Hex()
		}
		return out[i].NextRunAt.Before(*out[j].NextRunAt)
	})
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockScheduleRepository) Claim(ctx context.Context, id primitive.ObjectID, owner string, dueAt, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || !s.IsActive || s.NextRunAt == nil || !s.NextRunAt.Equal(dueAt) {
		return false, nil
	}
	if s.ClaimedUntil != nil && s.ClaimedUntil.After(now) {
		return false, nil
	}
	s.ClaimedBy = owner
	s.ClaimedUntil = &until
	return true, nil
}

func (m *MockScheduleRepository) Renew(ctx context.Context, id primitive.ObjectID, owner string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok || s.ClaimedBy != owner {
		return ErrLeaseLost
	}
	s.ClaimedUntil = &until
	return nil
}

func (m *MockScheduleRepository) Release(ctx context.Context, id primitive.ObjectID, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedules[id]; ok && s.ClaimedBy == owner {
		s.ClaimedBy = ""
		s.ClaimedUntil = nil
	}
	return nil
}

func (m *MockScheduleRepository) RecordRun(ctx context.Context, id primitive.ObjectID, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, rec)
	s, ok := m.schedules[id]
	if !ok {
		return nil
	}
	if rec.ExecutionID != "" {
		s.LastExecutionID = rec.ExecutionID
	}
	runAt := rec.RunAt
	s.LastRunAt = &runAt
	s.LastStatus = rec.Status
	s.LastDeliveryError = rec.DeliveryError
	if rec.NextRunAt == nil || !s.IsActive || !s.UpdatedAt.Equal(rec.SeenUpdatedAt) {
		return nil
	}
	if rec.Slot != nil && (s.NextRunAt == nil || !s.NextRunAt.Equal(*rec.Slot)) {
		return nil
	}
	next := *rec.NextRunAt
	s.NextRunAt = &next
	return nil
}

func (m *MockScheduleRepository) EnsureIndexes(ctx context.Context) error { return nil }

func (m *MockScheduleRepository) runCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs)
}

// MockEngine lets tests decide how each report run behaves.
type MockEngine struct {
	mu      sync.Mutex
	calls   []execution.ExecuteRequest
	started chan string
	execute func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error)
}

func NewMockEngine() *MockEngine {
	return &MockEngine{started: make(chan string, 16)}
}

func (m *MockEngine) Preview(ctx context.Context, req execution.PreviewRequest, caller tenant.Caller) (*execution.PreviewResult, error) {
	return &execution.PreviewResult{}, nil
}

func (m *MockEngine) Execute(ctx context.Context, req execution.ExecuteRequest, caller tenant.Caller) (*execution.ExecutionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	fn := m.execute
	m.mu.Unlock()
	m.started <- req.ScheduleID
	if fn != nil {
		return fn(ctx, req)
	}
	return succeeded(), nil
}

func (m *MockEngine) Get(ctx context.Context, id string, caller tenant.Caller) (*execution.Execution, error) {
	return nil, errs.ErrNotFound
}

func (m *MockEngine) ListByReport(ctx context.Context, reportID string, caller tenant.Caller, limit int) ([]execution.Execution, error) {
	return nil, nil
}

func (m *MockEngine) ListBySchedule(ctx context.Context, scheduleID, org string, limit int) ([]execution.Execution, error) {
	return []execution.Execution{{ScheduleID: scheduleID, OrganizationID: org}}, nil
}

func (m *MockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func succeeded() *execution.ExecutionResult {
	return &execution.ExecutionResult{
		Execution: &execution.Execution{ID: primitive.NewObjectID(), Status: execution.StatusSucceeded, RowCount: 2},
		TotalRows: 2,
		Artifact:  &execution.Artifact{Filename: "works.csv", ContentType: "text/csv", Data: []byte("a\n1\n2\n")},
	}
}

type MockSink struct {
	mu       sync.Mutex
	messages []notification.Message
	err      error
}

func (m *MockSink) Send(ctx context.Context, msg notification.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return m.err
}

func (m *MockSink) sent() []notification.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notification.Message{}, m.messages...)
}

type MockReportSource struct {
	reports map[string]*report.Report
}

func (m *MockReportSource) Get(ctx context.Context, id string, caller tenant.Caller) (*report.ReportView, error) {
	r, ok := m.reports[id]
	if !ok || r.OrganizationID != caller.OrganizationID || (r.OwnerUserID != caller.UserID && !r.IsShared) {
		return nil, errs.ErrNotFound
	}
	return &report.ReportView{Report: *r}, nil
}
