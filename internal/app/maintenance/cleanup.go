package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/tippster/internal/monitoring"
	"github.com/charlesng35/tippster/pkg/logger"
)

const (
	JobTokenReaper = "token_reaper"
	JobResetPurge  = "reset_token_purge"
	JobCachePurge  = "cache_purge"

	defaultTokenSpec = "@every 15m"
	defaultResetSpec = "@hourly"
	defaultCacheSpec = "@hourly"
)

// TokenReaper expires refresh tokens whose lifetime elapsed and closes their sessions.
type TokenReaper interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// ResetPurger deletes used or expired password reset tokens.
type ResetPurger interface {
	PurgeStale(ctx context.Context) (int64, error)
}

// CachePurger deletes expired rows of the database-backed cache.
type CachePurger interface {
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner coordinates background maintenance: the refresh token reaper, reset token purge and
// database cache purge. Each job is skipped when its dependency is nil.
type Cleaner struct {
	tokens TokenReaper
	resets ResetPurger
	cache  CachePurger
	jobs   *monitoring.JobTracker
	cron   *cron.Cron
	now    func() time.Time
	log    *zap.Logger

	tokenSchedule string
	resetSchedule string
	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cache expiry comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithJobTracker records every run so health probes can report stale or failing jobs.
func WithJobTracker(jobs *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.jobs = jobs
	}
}

// WithResetPurger enables the password reset token purge.
func WithResetPurger(resets ResetPurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.resets = resets
	}
}

// WithCachePurger enables the database cache purge.
func WithCachePurger(store CachePurger) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = store
	}
}

// WithTokenSchedule overrides the cron specification for the refresh token reaper.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithResetSchedule overrides the cron specification for the reset token purge.
func WithResetSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.resetSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for the cache purge.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with default schedules.
func NewCleaner(tokens TokenReaper, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		tokens:        tokens,
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		resetSchedule: defaultResetSpec,
		cacheSchedule: defaultCacheSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	}

	return cleaner
}

type job struct {
	name     string
	schedule string
	run      func(ctx context.Context) (int64, error)
}

func (c *Cleaner) enabledJobs() []job {
	var jobs []job
	if c.tokens != nil {
		jobs = append(jobs, job{name: JobTokenReaper, schedule: c.tokenSchedule, run: c.tokens.ExpireStale})
	}
	if c.resets != nil {
		jobs = append(jobs, job{name: JobResetPurge, schedule: c.resetSchedule, run: c.resets.PurgeStale})
	}
	if c.cache != nil {
		jobs = append(jobs, job{name: JobCachePurge, schedule: c.cacheSchedule, run: func(ctx context.Context) (int64, error) {
			return c.cache.PurgeExpired(ctx, c.now().UTC())
		}})
	}
	return jobs
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	jobs := c.enabledJobs()
	if len(jobs) == 0 {
		return nil
	}

	for _, j := range jobs {
		j := j
		if _, err := c.cron.AddFunc(j.schedule, func() {
			_ = c.execute(context.Background(), j)
		}); err != nil {
			return fmt.Errorf("maintenance: schedule %s: %w", j.name, err)
		}
		c.jobs.Register(j.name)
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially and combines their errors.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error
	for _, j := range c.enabledJobs() {
		errs = multierr.Append(errs, c.execute(ctx, j))
	}
	return errs
}

func (c *Cleaner) execute(ctx context.Context, j job) error {
	start := time.Now()
	affected, err := j.run(ctx)
	c.jobs.Record(j.name, affected, time.Since(start), err)

	if err != nil {
		c.log.Warn("maintenance job failed", zap.String("job", j.name), zap.Error(err))
		return fmt.Errorf("maintenance: %s: %w", j.name, err)
	}
	if affected > 0 {
		c.log.Info("maintenance job completed", zap.String("job", j.name), zap.Int64("affected", affected))
	}
	return nil
}
