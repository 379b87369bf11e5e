package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
)

// Sweeper periodically purges expired tokens.
type Sweeper struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	interval    time.Duration
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewSweeper(db *sql.DB, rm repomanager.RepositoryManager, interval time.Duration, m *metrics.Metrics, log logging.Logger) *Sweeper {
	return &Sweeper{db: db, repomanager: rm, interval: interval, metrics: m, log: log.With("module", "sweeper")}
}

// SweepOnce deletes every token whose deadline has passed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	n, err := s.repomanager.DownloadTokens(s.db).DeleteExpired(ctx, nowFn())
	if err != nil {
		return 0, err
	}
	s.metrics.TokensSwept.Add(float64(n))
	if n > 0 {
		s.log.Info(ctx, "expired tokens purged", "count", n)
	}
	return n, nil
}

// Run sweeps every interval until ctx is done. A non-positive interval
// disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.log.Info(ctx, "sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Error(ctx, "sweep failed", "error", err)
			}
		}
	}
}
