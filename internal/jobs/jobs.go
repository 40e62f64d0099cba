// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"growtube/internal/career"
	"growtube/internal/cooldown"

	"github.com/robfig/cron/v3"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler struct {
	cron    *cron.Cron
	log     *slog.Logger
	ctx     context.Context
	timeout time.Duration
}

// New builds a scheduler whose jobs run under ctx. Each run is bounded by
// timeout; a run still going when its next tick fires is skipped.
func New(ctx context.Context, logger *slog.Logger, timeout time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:     logger.With("component", "jobs"),
		ctx:     ctx,
		timeout: timeout,
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Add registers job. Schedules use the six-field form ("*/30 * * * * *") or
// descriptors such as "@every 5m".
func (s *Scheduler) Add(schedule string, job Job) error {
	if _, err := s.cron.AddFunc(schedule, func() { _ = s.RunNow(job) }); err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}
	s.log.Info("job registered", "job", job.Name(), "schedule", schedule)
	return nil
}

func (s *Scheduler) RunNow(job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	start := time.Now()
	err := job.Run(ctx)
	if err != nil {
		s.log.Error("job failed", "job", job.Name(), "err", err)
		return err
	}
	s.log.Debug("job completed", "job", job.Name(), "took", time.Since(start))
	return nil
}

// Every formats d as a cron descriptor.
func Every(d time.Duration) string {
	return "@every " + d.String()
}

type reconcileJob struct {
	careers *career.Scheduler
	log     *slog.Logger
}

// Reconcile pays out work sessions that are overdue and have no live timer.
func Reconcile(careers *career.Scheduler, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return reconcileJob{careers: careers, log: logger}
}

func (reconcileJob) Name() string { return "career-reconcile" }

func (j reconcileJob) Run(ctx context.Context) error {
	n, err := j.careers.Reconcile(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.log.Info("reconciled overdue shifts", "paid", n)
	}
	return nil
}

type pruneJob struct {
	limits *cooldown.Limiter
	now    func() time.Time
}

// PruneCooldowns drops expired cooldown windows.
func PruneCooldowns(limits *cooldown.Limiter, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return pruneJob{limits: limits, now: now}
}

func (pruneJob) Name() string { return "cooldown-prune" }

func (j pruneJob) Run(context.Context) error {
	j.limits.Prune(j.now())
	return nil
}
