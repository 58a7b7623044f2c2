package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-reports/internal/common/clock"
	"go-reports/internal/common/errs"
	"go-reports/internal/config"
	"go-reports/internal/features/execution"
	"go-reports/internal/metrics"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Scheduler finds due schedules on every tick and runs each on a bounded
// pool. A store lease keeps two ticks, or two instances, from running the
// same schedule at once.
type Scheduler struct {
	Repo       ScheduleRepository
	Runner     *Runner
	Clock      clock.Clock
	Logger     *zap.Logger
	InstanceID string
	TickSpec   string
	Lease      time.Duration
	Batch      int64

	sem    *semaphore.Weighted
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(repo ScheduleRepository, runner *Runner, cfg *config.Config, clk clock.Clock, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		Repo:       repo,
		Runner:     runner,
		Clock:      clk,
		Logger:     logger.Named("scheduler"),
		InstanceID: uuid.NewString(),
		TickSpec:   cfg.SchedulerTick,
		Lease:      cfg.SchedulerLease,
		Batch:      int64(cfg.SchedulerBatch),
		sem:        semaphore.NewWeighted(int64(cfg.SchedulerWorkers)),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Scheduler) Start() error {
	s.cron = cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := s.cron.AddFunc(s.TickSpec, func() { s.Tick(s.ctx) }); err != nil {
		return fmt.Errorf("invalid scheduler tick %q: %w", s.TickSpec, err)
	}
	s.cron.Start()
	s.Logger.Info("scheduler started", zap.String("instance_id", s.InstanceID), zap.String("tick", s.TickSpec))
	return nil
}

// Stop halts ticking, cancels in-flight runs and waits for them to record
// their outcome, or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.Logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick dispatches due schedules and returns how many were started. It never
// waits for a run to finish.
func (s *Scheduler) Tick(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	now := s.Clock.Now()
	due, err := s.Repo.FindDue(ctx, now, s.Batch)
	if err != nil {
		s.Logger.Error("failed to load due schedules", zap.Error(err))
		return 0
	}

	started := 0
	for i := range due {
		sched := due[i]
		if sched.NextRunAt == nil {
			continue
		}
		if !s.sem.TryAcquire(1) {
			metrics.ObserveScheduleRun("saturated")
			s.Logger.Info("worker pool saturated, leaving schedules for the next tick", zap.Int("remaining", len(due)-i))
			break
		}

		claimed, err := s.Repo.Claim(ctx, sched.ID, s.InstanceID, *sched.NextRunAt, now, now.Add(s.Lease))
		if err != nil || !claimed {
			s.sem.Release(1)
			if err != nil {
				s.Logger.Error("failed to claim schedule", zap.String("schedule_id", sched.ID.Hex()), zap.Error(err))
				continue
			}
			metrics.ObserveScheduleRun("conflict")
			s.Logger.Info("skipping schedule", zap.String("schedule_id", sched.ID.Hex()), zap.Error(errs.ErrScheduleConflict))
			continue
		}

		metrics.ObserveScheduleRun("started")
		started++
		s.wg.Add(1)
		go s.runClaimed(sched)
	}
	return started
}

func (s *Scheduler) runClaimed(sched Schedule) {
	defer s.wg.Done()
	defer s.sem.Release(1)

	log := s.Logger.With(zap.String("schedule_id", sched.ID.Hex()), zap.String("organization_id", sched.OrganizationID))
	runCtx, stopRun := context.WithCancel(s.ctx)
	defer stopRun()

	slot := *sched.NextRunAt
	seen := sched.UpdatedAt

	renewDone := make(chan struct{})
	go s.renew(runCtx, sched, stopRun, renewDone, log)

	rec, err := s.safeRun(runCtx, &sched)
	stopRun()
	<-renewDone
	if err != nil {
		metrics.ObserveScheduleRun("failed")
		rec.Status = execution.StatusFailed
		log.Warn("scheduled run failed", zap.String("execution_id", rec.ExecutionID), zap.Error(err))
	}

	rec.Slot = &slot
	rec.SeenUpdatedAt = seen

	// Recorded whether or not the run was cancelled by shutdown
	store := context.WithoutCancel(s.ctx)
	sched.NextRunAt = &slot
	next, nerr := Advance(&sched, s.Clock.Now())
	if nerr != nil {
		log.Error("failed to compute next run", zap.Error(nerr))
	} else {
		rec.NextRunAt = &next
	}
	if err := s.Repo.RecordRun(store, sched.ID, rec); err != nil {
		log.Error("failed to record scheduled run", zap.Error(err))
	}
	if err := s.Repo.Release(store, sched.ID, s.InstanceID); err != nil {
		log.Error("failed to release schedule lease", zap.Error(err))
	}
}

// safeRun turns a panic in one run into an error for that run only.
func (s *Scheduler) safeRun(ctx context.Context, sched *Schedule) (rec RunRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = RunRecord{RunAt: s.Clock.Now(), Status: execution.StatusFailed}
			err = fmt.Errorf("panic in scheduled run: %v", r)
		}
	}()
	return s.Runner.Run(ctx, sched)
}

// renew extends the lease every third of its length until the run ends.
// Losing the lease cancels the run.
func (s *Scheduler) renew(ctx context.Context, sched Schedule, stopRun context.CancelFunc, done chan<- struct{}, log *zap.Logger) {
	defer close(done)
	interval := s.Lease / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.Repo.Renew(ctx, sched.ID, s.InstanceID, s.Clock.Now().Add(s.Lease))
			if errors.Is(err, ErrLeaseLost) {
				log.Warn("schedule lease lost, cancelling run")
				stopRun()
				return
			}
			if err != nil && ctx.Err() == nil {
				log.Warn("failed to renew schedule lease", zap.Error(err))
			}
		}
	}
}
