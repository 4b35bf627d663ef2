package scheduler

import (
	"time"

	"github.com/smallbiznis/worksuite/internal/billingcycle"
	"github.com/smallbiznis/worksuite/internal/config"
)

// Config controls job schedules, deadlines and batch sizes.
type Config struct {
	Enabled            bool
	BillingSchedule    string
	MirrorSchedule     string
	PeriodOffsetMonths int
	Location           *time.Location
	RunTimeout         time.Duration
	MirrorTimeout      time.Duration
	MirrorBatchSize    int
	LockTTL            time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		BillingSchedule:    "0 6 1 * *",
		MirrorSchedule:     "@every 15m",
		PeriodOffsetMonths: -1,
		Location:           time.UTC,
		RunTimeout:         30 * time.Minute,
		MirrorTimeout:      5 * time.Minute,
		MirrorBatchSize:    100,
		LockTTL:            time.Hour,
	}
}

func ProvideConfig(cfg config.Config) Config {
	b := cfg.Billing
	return Config{
		Enabled:            b.SchedulerEnabled,
		BillingSchedule:    b.Schedule,
		MirrorSchedule:     b.MirrorRetrySchedule,
		PeriodOffsetMonths: b.PeriodOffsetMonths,
		Location:           billingcycle.LoadLocation(b.Timezone),
		RunTimeout:         b.RunTimeout,
		LockTTL:            b.SchedulerLockTTL,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BillingSchedule == "" {
		c.BillingSchedule = defaults.BillingSchedule
	}
	if c.MirrorSchedule == "" {
		c.MirrorSchedule = defaults.MirrorSchedule
	}
	if c.Location == nil {
		c.Location = defaults.Location
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = defaults.MirrorTimeout
	}
	if c.MirrorBatchSize <= 0 {
		c.MirrorBatchSize = defaults.MirrorBatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	return c
}
