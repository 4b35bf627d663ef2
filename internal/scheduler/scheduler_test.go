package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	batchdomain "github.com/smallbiznis/worksuite/internal/batchinvoice/domain"
	"github.com/smallbiznis/worksuite/internal/billingcycle"
	"github.com/smallbiznis/worksuite/internal/clock"
	obsmetrics "github.com/smallbiznis/worksuite/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoicer struct {
	mu          sync.Mutex
	periods     []billingcycle.Period
	report      batchdomain.Report
	err         error
	mirrorCalls int
	mirrorLimit int
	mirror      batchdomain.MirrorReport
}

func (f *fakeInvoicer) RunPeriod(_ context.Context, period billingcycle.Period) (batchdomain.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.periods = append(f.periods, period)
	report := f.report
	report.Period = period.String()
	return report, f.err
}

func (f *fakeInvoicer) RetryMirrors(_ context.Context, limit int) (batchdomain.MirrorReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrorCalls++
	f.mirrorLimit = limit
	return f.mirror, nil
}

type heldLocker struct {
	keys []string
}

func (l *heldLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, bool, error) {
	l.keys = append(l.keys, key)
	return "", false, nil
}

func (l *heldLocker) Release(context.Context, string, string) error { return nil }

func newTestScheduler(t *testing.T, inv batchdomain.Invoicer) (*Scheduler, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetSchedulerMetricsForTest()
	obsmetrics.SchedulerWithConfig(obsmetrics.Config{
		ServiceName: "worksuite",
		Environment: "test",
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s, err := New(Params{
		Log:      zap.NewNop(),
		Invoicer: inv,
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)),
		Config:   DefaultConfig(),
	})
	require.NoError(t, err)
	return s, registry
}

func TestRunJobTimeoutDoesNotReturnErrorAndIncrementsTimeout(t *testing.T) {
	s, registry := newTestScheduler(t, &fakeInvoicer{})

	err := s.runJob(context.Background(), "timeout_job", 0, 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	labels := map[string]string{
		"service": "worksuite",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "worksuite_scheduler_job_timeouts_total", labels))

	errorLabels := map[string]string{
		"service": "worksuite",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.SchedulerJobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "worksuite_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsHardErrors(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeInvoicer{})
	boom := errors.New("boom")

	err := s.runJob(context.Background(), "failing_job", 0, time.Second, func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
}

func TestBillingPeriodJobInvoicesPreviousMonth(t *testing.T) {
	inv := &fakeInvoicer{report: batchdomain.Report{
		Usage: []batchdomain.TenantResult{
			{ContactID: "1", Status: batchdomain.ItemCreated},
			{ContactID: "2", Status: batchdomain.ItemFailed},
		},
		Recurring: []batchdomain.SubscriptionResult{
			{SubscriptionID: "9", Status: batchdomain.ItemSkipped},
		},
	}}
	s, registry := newTestScheduler(t, inv)

	err := s.runJob(context.Background(), JobBillingPeriod, 0, time.Minute, s.BillingPeriodJob)
	require.NoError(t, err)

	require.Len(t, inv.periods, 1)
	assert.Equal(t, "2026-02", inv.periods[0].String())

	base := map[string]string{"service": "worksuite", "env": "test", "job": JobBillingPeriod}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "worksuite_scheduler_job_runs_total", base))
	assert.Equal(t, float64(2), getCounterValue(t, registry, "worksuite_scheduler_batch_processed_total", withLabel(base, "resource", "usage")))
	assert.Equal(t, float64(1), getCounterValue(t, registry, "worksuite_scheduler_batch_processed_total", withLabel(base, "resource", "recurring")))
}

func TestRunPeriodHonoursConfiguredOffsetAndZone(t *testing.T) {
	inv := &fakeInvoicer{}
	s, _ := newTestScheduler(t, inv)
	s.cfg.PeriodOffsetMonths = 0
	s.cfg.Location = time.FixedZone("UTC-8", -8*3600)

	require.NoError(t, s.BillingPeriodJob(context.Background()))
	require.Len(t, inv.periods, 1)
	// 2026-03-01 06:00 UTC is still February in UTC-8.
	assert.Equal(t, "2026-02", inv.periods[0].String())
}

func TestRunPeriodSkipsWhenLockHeld(t *testing.T) {
	inv := &fakeInvoicer{}
	s, registry := newTestScheduler(t, inv)
	locker := &heldLocker{}
	s.locker = locker

	_, err := s.RunPeriod(context.Background(), billingcycle.Period{Year: 2026, Month: time.February})
	require.ErrorIs(t, err, ErrLockHeld)
	assert.Empty(t, inv.periods)
	assert.Equal(t, []string{"billing_period:2026-02"}, locker.keys)

	require.NoError(t, s.runJob(context.Background(), JobBillingPeriod, 0, time.Minute, s.BillingPeriodJob))
	labels := map[string]string{"service": "worksuite", "env": "test", "job": JobBillingPeriod}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "worksuite_scheduler_job_skipped_total", labels))
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	inv := &fakeInvoicer{mirror: batchdomain.MirrorReport{Attempted: 3, Synced: 2, Failed: 1}}
	s, registry := newTestScheduler(t, inv)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Len(t, inv.periods, 1)
	assert.Equal(t, 1, inv.mirrorCalls)
	assert.Equal(t, DefaultConfig().MirrorBatchSize, inv.mirrorLimit)

	labels := map[string]string{"service": "worksuite", "env": "test", "job": JobRemoteMirrorRetry, "resource": "invoice"}
	assert.Equal(t, float64(3), getCounterValue(t, registry, "worksuite_scheduler_batch_processed_total", labels))
}

func TestRunPeriodSurfacesListingErrors(t *testing.T) {
	listing := errors.New("list bookings: connection refused")
	inv := &fakeInvoicer{err: listing}
	s, _ := newTestScheduler(t, inv)

	err := s.runJob(context.Background(), JobBillingPeriod, 0, time.Minute, s.BillingPeriodJob)
	require.ErrorIs(t, err, listing)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeInvoicer{})
	s.cfg.BillingSchedule = "not a schedule"

	require.Error(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartAndStop(t *testing.T) {
	s, _ := newTestScheduler(t, &fakeInvoicer{})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func withLabel(labels map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		out[k] = v
	}
	out[key] = value
	return out
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetSchedulerMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
