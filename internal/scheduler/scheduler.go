package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jdships/yodoo-rebuild/pkg/log"
)

const (
	// MonthlyResetSpec runs at 00:00 UTC on the first day of each month.
	MonthlyResetSpec = "0 0 1 * *"
	// DailyResetSpec runs at 00:00 UTC.
	DailyResetSpec = "0 0 * * *"
)

// UsageResetter clears periodic usage counters.
type UsageResetter interface {
	ResetMonthly(ctx context.Context) (int64, error)
	ResetDaily(ctx context.Context) (int64, error)
}

// Config holds the cron specs. Empty specs disable the job.
type Config struct {
	Enabled      bool          `mapstructure:"enabled"`
	MonthlyReset string        `mapstructure:"monthly_reset"`
	DailyReset   string        `mapstructure:"daily_reset"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// Scheduler runs usage resets on a UTC cron.
type Scheduler struct {
	cron     *cron.Cron
	resetter UsageResetter
	timeout  time.Duration
}

// New registers the configured jobs.
func New(cfg Config, resetter UsageResetter) (*Scheduler, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		resetter: resetter,
		timeout:  timeout,
	}

	if cfg.MonthlyReset != "" {
		if _, err := s.cron.AddFunc(cfg.MonthlyReset, func() { s.run("monthly_reset", resetter.ResetMonthly) }); err != nil {
			return nil, fmt.Errorf("invalid monthly reset schedule: %w", err)
		}
	}
	if cfg.DailyReset != "" {
		if _, err := s.cron.AddFunc(cfg.DailyReset, func() { s.run("daily_reset", resetter.ResetDaily) }); err != nil {
			return nil, fmt.Errorf("invalid daily reset schedule: %w", err)
		}
	}
	return s, nil
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

// Start runs the scheduler in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(job string, fn func(context.Context) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	logger := log.L().With().Str("job", job).Logger()
	ctx = log.WithLogger(ctx, logger)

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("scheduled job failed")
		return
	}
	logger.Info().Int64("rows", n).Dur("took", time.Since(start)).Msg("scheduled job completed")
}
