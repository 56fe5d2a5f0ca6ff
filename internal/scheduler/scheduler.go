package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc performs one refresh cycle.
type TickFunc func(ctx context.Context) error

// Options tune loop behaviour.
type Options struct {
	Interval     time.Duration
	StartupDelay time.Duration
}

// Loop drives a fixed-interval background job. One tick, one sleep,
// repeat until the context is cancelled. Tick errors are logged and
// never stop the loop.
type Loop struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Loop instance.
func New(opts Options, logger zerolog.Logger) *Loop {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Loop{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking the tick function immediately and then on every
// interval until ctx is cancelled.
func (l *Loop) Run(ctx context.Context, tick TickFunc) error {
	if l.opts.StartupDelay > 0 {
		if err := sleep(ctx, l.opts.StartupDelay); err != nil {
			return err
		}
	}

	for {
		started := time.Now().UTC()
		l.logger.Debug().Time("started", started).Msg("executing refresh tick")

		if err := tick(ctx); err != nil {
			l.logger.Error().Err(err).Msg("tick execution failed")
		}

		if err := sleep(ctx, l.opts.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
