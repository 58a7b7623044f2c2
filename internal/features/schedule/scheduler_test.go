package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	"go-reports/internal/features/execution"
	"go-reports/internal/features/export"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var tickTime = time.Date(2026, 3, 2, 9, 0, 20, 0, time.UTC)

func dueSchedule(name string) *Schedule {
	due := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &Schedule{
		ID:              primitive.NewObjectID(),
		ReportID:        primitive.NewObjectID().Hex(),
		OrganizationID:  "7",
		OwnerUserID:     "alice",
		Name:            name,
		ScheduleType:    TypeDaily,
		ScheduleConfig:  Config{TimeOfDay: "09:00"},
		RecipientEmails: []string{"pm@example.com"},
		ExportFormat:    export.FormatCSV,
		IsActive:        true,
		NextRunAt:       &due,
	}
}

func newTestScheduler(repo ScheduleRepository, engine *MockEngine, sink *MockSink, workers int64) *Scheduler {
	clk := clock.NewFake(tickTime)
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Repo:       repo,
		Runner:     &Runner{Engine: engine, Sink: sink, Clock: clk, Logger: zap.NewNop()},
		Clock:      clk,
		Logger:     zap.NewNop(),
		InstanceID: "instance-a",
		TickSpec:   "@every 1m",
		Lease:      time.Minute,
		Batch:      100,
		sem:        semaphore.NewWeighted(workers),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func waitStarted(t *testing.T, engine *MockEngine) string {
	t.Helper()
	select {
	case id := <-engine.started:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
		return ""
	}
}

func TestTickRunsDueScheduleAndAdvances(t *testing.T) {
	sched := dueSchedule("Weekly works")
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	sink := &MockSink{}
	s := newTestScheduler(repo, engine, sink, 4)

	assert.Equal(t, 1, s.Tick(context.Background()))
	s.wg.Wait()

	got := repo.get(sched.ID)
	assert.True(t, got.IsActive)
	assert.Equal(t, execution.StatusSucceeded, got.LastStatus)
	assert.NotEmpty(t, got.LastExecutionID)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *got.NextRunAt)
	assert.Empty(t, got.ClaimedBy)

	msgs := sink.sent()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"pm@example.com"}, msgs[0].Recipients)
	require.NotNil(t, msgs[0].Attachment)
	assert.Equal(t, "works.csv", msgs[0].Attachment.Filename)

	assert.Equal(t, sched.ID.Hex(), engine.calls[0].ScheduleID)
	assert.Equal(t, export.FormatCSV, engine.calls[0].ExportFormat)
}

func TestOverlappingTicksSkipClaimedSchedule(t *testing.T) {
	sched := dueSchedule("Slow report")
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	release := make(chan struct{})
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		<-release
		return succeeded(), nil
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	assert.Equal(t, 1, s.Tick(context.Background()))
	waitStarted(t, engine)

	// Second tick at the same instant finds the schedule still due but leased
	assert.Equal(t, 0, s.Tick(context.Background()))

	// A second instance is refused as well
	other := newTestScheduler(repo, engine, &MockSink{}, 4)
	other.InstanceID = "instance-b"
	assert.Equal(t, 0, other.Tick(context.Background()))

	close(release)
	s.wg.Wait()
	assert.Equal(t, 1, engine.callCount())
	assert.Equal(t, 1, repo.runCount())
}

func TestExpiredLeaseIsReclaimed(t *testing.T) {
	sched := dueSchedule("Crashed run")
	expired := tickTime.Add(-time.Second)
	sched.ClaimedBy = "dead-instance"
	sched.ClaimedUntil = &expired
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	assert.Equal(t, 1, s.Tick(context.Background()))
	s.wg.Wait()
	assert.Equal(t, 1, engine.callCount())
}

func TestTickIsolatesFailingRuns(t *testing.T) {
	panics := dueSchedule("Panics")
	fails := dueSchedule("Fails")
	works := dueSchedule("Works")
	repo := NewMockScheduleRepository(panics, fails, works)
	engine := NewMockEngine()
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		switch req.ScheduleID {
		case panics.ID.Hex():
			panic("renderer exploded")
		case fails.ID.Hex():
			return nil, errs.NewExecutionError("exec-1", errs.KindQuery, "Report query failed", true, errors.New("boom"))
		}
		return succeeded(), nil
	}
	sink := &MockSink{}
	s := newTestScheduler(repo, engine, sink, 4)

	assert.Equal(t, 3, s.Tick(context.Background()))
	s.wg.Wait()

	for _, id := range []primitive.ObjectID{panics.ID, fails.ID} {
		got := repo.get(id)
		assert.True(t, got.IsActive, got.Name)
		assert.Equal(t, execution.StatusFailed, got.LastStatus, got.Name)
		assert.True(t, got.NextRunAt.After(tickTime), got.Name)
		assert.Empty(t, got.ClaimedBy, got.Name)
	}
	assert.Equal(t, "exec-1", repo.get(fails.ID).LastExecutionID)
	assert.Equal(t, execution.StatusSucceeded, repo.get(works.ID).LastStatus)
	assert.Len(t, sink.sent(), 1)
}

func TestDeliveryFailureIsRecorded(t *testing.T) {
	sched := dueSchedule("Mail down")
	repo := NewMockScheduleRepository(sched)
	sink := &MockSink{err: errors.New("dial tcp: connection refused")}
	s := newTestScheduler(repo, NewMockEngine(), sink, 4)

	s.Tick(context.Background())
	s.wg.Wait()

	got := repo.get(sched.ID)
	assert.Equal(t, execution.StatusSucceeded, got.LastStatus)
	assert.Contains(t, got.LastDeliveryError, "connection refused")
}

func TestSaturatedPoolLeavesSchedulesUnclaimed(t *testing.T) {
	first := dueSchedule("First")
	second := dueSchedule("Second")
	later := time.Date(2026, 3, 2, 9, 0, 1, 0, time.UTC)
	second.NextRunAt = &later
	repo := NewMockScheduleRepository(first, second)
	engine := NewMockEngine()
	release := make(chan struct{})
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		<-release
		return succeeded(), nil
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 1)

	assert.Equal(t, 1, s.Tick(context.Background()))
	assert.Equal(t, "", repo.get(second.ID).ClaimedBy)
	assert.Equal(t, "instance-a", repo.get(first.ID).ClaimedBy)

	close(release)
	s.wg.Wait()

	assert.Equal(t, 1, s.Tick(context.Background()))
	s.wg.Wait()
	assert.Equal(t, 2, engine.callCount())
}

func TestStopCancelsInFlightRuns(t *testing.T) {
	sched := dueSchedule("Long export")
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		<-ctx.Done()
		return nil, errs.NewExecutionError("exec-2", errs.KindCancelled, "Execution was cancelled", true, ctx.Err())
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	s.Tick(context.Background())
	waitStarted(t, engine)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))

	got := repo.get(sched.ID)
	assert.Equal(t, execution.StatusFailed, got.LastStatus)
	assert.Equal(t, "exec-2", got.LastExecutionID)
	assert.True(t, got.IsActive)
	assert.Equal(t, 0, s.Tick(context.Background()))
}

func TestInactiveSchedulesAreNotDue(t *testing.T) {
	sched := dueSchedule("Paused")
	sched.IsActive = false
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	assert.Equal(t, 0, s.Tick(context.Background()))
	assert.Equal(t, 0, engine.callCount())
}

// lateInstanceRepository hands a tick the due list it read before another
// instance finished the same slot.
type lateInstanceRepository struct {
	*MockScheduleRepository
	snapshot []Schedule
}

func (r *lateInstanceRepository) FindDue(ctx context.Context, now time.Time, limit int64) ([]Schedule, error) {
	return r.snapshot, nil
}

func TestFinishedSlotIsNotRunAgainFromStaleDueList(t *testing.T) {
	sched := dueSchedule("Morning works")
	repo := NewMockScheduleRepository(sched)
	snapshot, err := repo.FindDue(context.Background(), tickTime, 100)
	require.NoError(t, err)
	require.Len(t, snapshot, 1)

	engine := NewMockEngine()
	sink := &MockSink{}
	a := newTestScheduler(repo, engine, sink, 4)
	assert.Equal(t, 1, a.Tick(context.Background()))
	a.wg.Wait()
	require.Nil(t, repo.get(sched.ID).ClaimedUntil)

	b := newTestScheduler(&lateInstanceRepository{MockScheduleRepository: repo, snapshot: snapshot}, engine, sink, 4)
	b.InstanceID = "instance-b"
	assert.Equal(t, 0, b.Tick(context.Background()))
	b.wg.Wait()

	assert.Equal(t, 1, engine.callCount())
	assert.Len(t, sink.sent(), 1)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), *repo.get(sched.ID).NextRunAt)
}

func TestDeactivateDuringRunIsKept(t *testing.T) {
	sched := dueSchedule("Paused mid-run")
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		assert.NoError(t, repo.SetActive(ctx, sched.ID, "7", false, nil, tickTime.Add(time.Second)))
		return succeeded(), nil
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	assert.Equal(t, 1, s.Tick(context.Background()))
	s.wg.Wait()

	got := repo.get(sched.ID)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, execution.StatusSucceeded, got.LastStatus)
}

func TestRescheduleDuringRunIsKept(t *testing.T) {
	sched := dueSchedule("Moved mid-run")
	repo := NewMockScheduleRepository(sched)
	moved := time.Date(2026, 3, 2, 17, 30, 0, 0, time.UTC)
	engine := NewMockEngine()
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		assert.NoError(t, repo.SetActive(ctx, sched.ID, "7", true, &moved, tickTime.Add(time.Second)))
		return succeeded(), nil
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	s.Tick(context.Background())
	s.wg.Wait()

	assert.Equal(t, moved, *repo.get(sched.ID).NextRunAt)
}

func TestFailureBeforeExecutionKeepsLastExecutionID(t *testing.T) {
	sched := dueSchedule("Report gone")
	sched.LastExecutionID = "exec-previous"
	repo := NewMockScheduleRepository(sched)
	engine := NewMockEngine()
	engine.execute = func(ctx context.Context, req execution.ExecuteRequest) (*execution.ExecutionResult, error) {
		return nil, errs.ErrNotFound
	}
	s := newTestScheduler(repo, engine, &MockSink{}, 4)

	s.Tick(context.Background())
	s.wg.Wait()

	got := repo.get(sched.ID)
	assert.Equal(t, execution.StatusFailed, got.LastStatus)
	assert.Equal(t, "exec-previous", got.LastExecutionID)
	assert.True(t, got.NextRunAt.After(tickTime))
}
