// Package sweeper runs the periodic liveness check that demotes silent
// nodes.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Registry is the slice of the registry the sweeper needs.
type Registry interface {
	Sweep(ctx context.Context, staleAfter time.Duration) (int, error)
}

// Sweeper demotes running nodes that have not reported within
// StaleAfter. Period should stay well under StaleAfter to bound
// detection latency.
type Sweeper struct {
	reg        Registry
	log        *zap.Logger
	period     time.Duration
	staleAfter time.Duration
}

func New(reg Registry, period, staleAfter time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		reg:        reg,
		log:        log,
		period:     period,
		staleAfter: staleAfter,
	}
}

// Start runs the sweep loop until ctx is cancelled. A failed sweep is
// logged and retried on the next tick; it never aborts the schedule.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	s.log.Info("sweeper started",
		zap.Duration("period", s.period),
		zap.Duration("stale_after", s.staleAfter))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		case <-ticker.C:
			demoted, err := s.reg.Sweep(ctx, s.staleAfter)
			if err != nil {
				s.log.Warn("sweep failed", zap.Error(err))
			}
			if demoted > 0 {
				s.log.Info("sweep demoted stale nodes", zap.Int("count", demoted))
			}
		}
	}
}
