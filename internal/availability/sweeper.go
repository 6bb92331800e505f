package availability

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
)

// Sweeper periodically turns expired holds back to OPEN.  Expiry is
// also evaluated lazily on every access, so the sweeper only keeps
// persisted status tidy for listings and reports.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *log.Logger
}

func NewSweeper(store Store, interval time.Duration) *Sweeper {
	return &Sweeper{store: store, interval: interval, logger: log.New("sweeper")}
}

// Start runs the sweep loop in its own goroutine until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Warn("sweeper disabled: non-positive interval")
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single sweep and returns the number of holds that
// were reopened.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	n, err := s.store.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Errorf("sweep failed: %v", err)
		}
		return n
	}
	if n > 0 {
		s.logger.Infof("reopened %d expired holds", n)
	}
	return n
}
