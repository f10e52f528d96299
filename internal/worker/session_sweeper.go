package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPurger deletes expired session rows.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionSweeper periodically purges expired sessions. Expired rows already fail rotation,
// so a sweep only keeps the table small.
type SessionSweeper struct {
	purger   SessionPurger
	interval time.Duration
	logger   *zap.Logger
}

// NewSessionSweeper builds a sweeper. A non-positive interval disables it.
func NewSessionSweeper(purger SessionPurger, interval time.Duration, logger *zap.Logger) *SessionSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionSweeper{purger: purger, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *SessionSweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("session sweeper disabled")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	removed, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
		return
	}
	if removed > 0 {
		s.logger.Info("expired sessions purged", zap.Int64("removed", removed))
	}
}
