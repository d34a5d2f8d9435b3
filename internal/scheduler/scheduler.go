package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context) error

// Loop drives periodic execution of one task. A failed tick is logged and
// the loop continues on the next interval; only context cancellation stops
// it.
type Loop struct {
	name     string
	interval time.Duration
	logger   zerolog.Logger
}

// New constructs a Loop instance.
func New(name string, interval time.Duration, logger zerolog.Logger) *Loop {
	if interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{
		name:     name,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Str("loop", name).Logger(),
	}
}

// Run blocks, invoking tick immediately and then at each interval until ctx
// is cancelled.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		start := time.Now()
		if err := tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			l.logger.Error().Err(err).Msg("tick execution failed")
		}
		l.logger.Debug().Dur("elapsed", time.Since(start)).Msg("tick complete")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
