package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	"github.com/smallbiznis/worksuite/internal/billingcycle"
	"github.com/smallbiznis/worksuite/internal/clock"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/smallbiznis/worksuite/internal/runlock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobBillingPeriod     = "billing_period"
	JobRemoteMirrorRetry = "remote_mirror_retry"

	keyBillingPeriodLock = "billing_period:%s"
	keyMirrorRetryLock   = "remote_mirror_retry"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrLockHeld      = errors.New("run_lock_held")
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Invoicer batchdomain.Invoicer
	Locker   *runlock.Locker `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type runLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	invoicer batchdomain.Invoicer
	locker   runLocker

	mu   sync.Mutex
	cron *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Invoicer == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	var locker runLocker = runlock.NewLocker(nil)
	if p.Locker != nil {
		locker = p.Locker
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		invoicer: p.Invoicer,
		locker:   locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name, batchSize)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 && !errors.Is(err, ErrLockHeld) {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		schedMetrics.MarkSuccess(name, s.clock.Now())
		return nil
	}

	if errors.Is(err, ErrLockHeld) {
		schedMetrics.IncJobSkipped(name)
		log.Info("job skipped, lock held by another instance")
		return nil
	}

	// a deadline is a soft timeout; the next tick picks the work up again
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// BillingPeriodJob invoices the period selected by the configured month offset.
func (s *Scheduler) BillingPeriodJob(ctx context.Context) error {
	period := billingcycle.ForTime(s.clock.Now(), s.cfg.Location, s.cfg.PeriodOffsetMonths)
	_, err := s.RunPeriod(ctx, period)
	return err
}

// RunPeriod runs both sweeps for period while holding the period lock.
// ErrLockHeld is returned when another instance holds it.
func (s *Scheduler) RunPeriod(ctx context.Context, period billingcycle.Period) (batchdomain.Report, error) {
	key := fmt.Sprintf(keyBillingPeriodLock, period)
	token, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		return batchdomain.Report{}, err
	}
	if !ok {
		return batchdomain.Report{}, ErrLockHeld
	}
	defer s.release(key, token)

	report, err := s.invoicer.RunPeriod(ctx, period)
	run := jobRunFromContext(ctx)

	usage := report.UsageCounts()
	recurring := report.RecurringCounts()
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.AddBatchProcessed(JobBillingPeriod, "usage", len(report.Usage))
	schedMetrics.AddBatchProcessed(JobBillingPeriod, "recurring", len(report.Recurring))
	if run != nil {
		run.AddProcessed(len(report.Usage) + len(report.Recurring))
		for i := 0; i < usage.Failed+recurring.Failed; i++ {
			run.IncError()
		}
	}
	s.logPeriodReport(ctx, report)

	if err != nil {
		s.logSchedulerError(ctx, run, "scheduler.billing_period.failed", JobBillingPeriod, err,
			zap.String("period", period.String()),
		)
	}
	return report, err
}

// MirrorRetryJob pushes invoices whose remote mirror is still pending or failed.
func (s *Scheduler) MirrorRetryJob(ctx context.Context) error {
	token, ok, err := s.locker.TryLock(ctx, keyMirrorRetryLock, s.cfg.MirrorTimeout)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	defer s.release(keyMirrorRetryLock, token)

	report, err := s.invoicer.RetryMirrors(ctx, s.cfg.MirrorBatchSize)
	obsmetrics.Scheduler().AddBatchProcessed(JobRemoteMirrorRetry, "invoice", report.Attempted)
	if run := jobRunFromContext(ctx); run != nil {
		run.AddProcessed(report.Attempted)
		for i := 0; i < report.Failed; i++ {
			run.IncError()
		}
	}
	return err
}

// RunOnce runs every job a single time, in order.
func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobBillingPeriod, func(ctx context.Context) error {
			return s.runJob(ctx, JobBillingPeriod, 0, s.cfg.RunTimeout, s.BillingPeriodJob)
		}},
		{JobRemoteMirrorRetry, func(ctx context.Context) error {
			return s.runJob(ctx, JobRemoteMirrorRetry, s.cfg.MirrorBatchSize, s.cfg.MirrorTimeout, s.MirrorRetryJob)
		}},
	}

	var err error
	for _, job := range jobs {
		err = errors.Join(err, job.Run(parent))
	}
	return err
}

// Start registers the cron entries and starts the cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	c := cron.New(
		cron.WithLocation(s.cfg.Location),
		cron.WithLogger(cronLogger{log: s.log}),
		cron.WithChain(cron.Recover(cronLogger{log: s.log}), cron.SkipIfStillRunning(cronLogger{log: s.log})),
	)

	entries := []struct {
		name    string
		spec    string
		batch   int
		timeout time.Duration
		fn      func(context.Context) error
	}{
		{JobBillingPeriod, s.cfg.BillingSchedule, 0, s.cfg.RunTimeout, s.BillingPeriodJob},
		{JobRemoteMirrorRetry, s.cfg.MirrorSchedule, s.cfg.MirrorBatchSize, s.cfg.MirrorTimeout, s.MirrorRetryJob},
	}
	for _, entry := range entries {
		if _, err := c.AddFunc(entry.spec, func() {
			if err := s.runJob(ctx, entry.name, entry.batch, entry.timeout, entry.fn); err != nil {
				s.log.Warn("scheduler job failed", zap.String("job", entry.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", entry.name, entry.spec, err)
		}
		s.log.Info("scheduler job registered",
			zap.String("job", entry.name),
			zap.String("schedule", entry.spec),
		)
	}

	c.Start()
	s.cron = c
	return nil
}

// Stop stops the cron runner and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.locker.Release(ctx, key, token); err != nil {
		s.log.Warn("release run lock failed", zap.String("key", key), zap.Error(err))
	}
}
