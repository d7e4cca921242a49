package server

import (
	"context"
	"time"

	"go.uber.org/zap"

	"harvestlink/internal/events"
	"harvestlink/internal/metrics"
	"harvestlink/internal/session"
)

const defaultSweepInterval = time.Minute

// Sweeper periodically drops sessions whose farmers hung up without
// reaching an END screen.
type Sweeper struct {
	Store    session.Store
	Events   events.Writer
	Interval time.Duration
	Logger   *zap.Logger
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
			s.log().Warn("session sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep purges expired sessions once and reports how many were removed.
func (s Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.Store.Purge(ctx)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	metrics.SessionsPurged(n)
	s.log().Info("purged expired sessions", zap.Int64("count", n))
	if s.Events.DB != nil {
		if err := s.Events.Append(ctx, nil, events.SessionExpired, "", "", events.EventPayload{"count": n}); err != nil {
			s.log().Warn("append event", zap.Error(err))
		}
	}
	return n, nil
}

func (s Sweeper) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
