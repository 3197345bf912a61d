package server

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
)

// Sweeper periodically removes finished and abandoned sessions
type Sweeper struct {
	clock    quartz.Clock
	interval time.Duration
	sweep    func() int
	logger   *log.Logger
}

func NewSweeper(clock quartz.Clock, interval time.Duration, sweep func() int, logger *log.Logger) *Sweeper {
	return &Sweeper{
		clock:    clock,
		interval: interval,
		sweep:    sweep,
		logger:   logger.WithPrefix("sweeper"),
	}
}

// Start registers the sweep ticker and returns at once. The waiter returns
// when the context is cancelled.
func (s *Sweeper) Start(ctx context.Context) quartz.Waiter {
	s.logger.Info("Starting session sweeper", "interval", s.interval)
	return s.clock.TickerFunc(ctx, s.interval, func() error {
		if n := s.sweep(); n > 0 {
			s.logger.Info("Removed sessions", "count", n)
		}
		return nil
	}, "housekeeping", "sweep")
}

// Run sweeps every interval until the context is cancelled
func (s *Sweeper) Run(ctx context.Context) error {
	err := s.Start(ctx).Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
