package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
)

// TokenStatus is the read-only view of a token served by the status endpoint.
type TokenStatus struct {
	DownloadCount int
	MaxDownloads  int
	Remaining     int
	ExpiresAt     time.Time
}

// RedemptionService validates presented tokens and accounts for downloads.
type RedemptionService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewRedemptionService(db *sql.DB, rm repomanager.RepositoryManager, m *metrics.Metrics, log logging.Logger) *RedemptionService {
	return &RedemptionService{db: db, repomanager: rm, metrics: m, log: log.With("module", "redemption")}
}

func (s *RedemptionService) lookup(ctx context.Context, token, fileKey string) (*models.DownloadToken, error) {
	if token == "" || fileKey == "" {
		return nil, common.ErrMalformedRequest
	}

	rec, err := s.repomanager.DownloadTokens(s.db).FindByTokenAndFileKey(ctx, token, fileKey)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("token lookup: %w", err)
	}
	return rec, nil
}

// Validate runs lookup, expiry and usage checks. An expired record is
// deleted before ErrTokenExpired is returned. Nothing is mutated otherwise.
func (s *RedemptionService) Validate(ctx context.Context, token, fileKey string) (*models.DownloadToken, error) {
	rec, err := s.lookup(ctx, token, fileKey)
	if err != nil {
		return nil, err
	}

	if rec.ExpiredAt(nowFn()) {
		if err := s.repomanager.DownloadTokens(s.db).DeleteByToken(ctx, token); err != nil {
			s.log.Warn(ctx, "failed to delete expired token", "order_id", rec.OrderID, "error", err)
		}
		return nil, common.ErrTokenExpired
	}

	if rec.Exhausted() {
		return nil, common.ErrLimitExceeded
	}

	return rec, nil
}

// Consume records one download for a validated record and returns the new
// count. Losing the conditional update to a concurrent redemption yields
// ErrLimitExceeded. A store failure is logged and the download is allowed,
// unless the request context is already done, which rejects it.
func (s *RedemptionService) Consume(ctx context.Context, rec *models.DownloadToken) (int, error) {
	count, granted, err := s.repomanager.DownloadTokens(s.db).IncrementDownloadCount(ctx, rec.Token, nowFn())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.log.Warn(ctx, "download aborted before it was recorded",
				"order_id", rec.OrderID, "file_key", rec.FileKey, "error", err)
			return 0, fmt.Errorf("record download: %w", ctxErr)
		}
		s.log.Warn(ctx, "download count not recorded",
			"order_id", rec.OrderID, "file_key", rec.FileKey, "error", err)
		s.metrics.AccountingFailures.Inc()
		return rec.DownloadCount + 1, nil
	}
	if !granted {
		return 0, common.ErrLimitExceeded
	}
	return count, nil
}

// Status reports usage without consuming a download. Expired tokens are
// reported as ErrTokenExpired but left for the sweeper.
func (s *RedemptionService) Status(ctx context.Context, token, fileKey string) (*TokenStatus, error) {
	rec, err := s.lookup(ctx, token, fileKey)
	if err != nil {
		return nil, err
	}
	if rec.ExpiredAt(nowFn()) {
		return nil, common.ErrTokenExpired
	}
	return &TokenStatus{
		DownloadCount: rec.DownloadCount,
		MaxDownloads:  rec.MaxDownloads,
		Remaining:     rec.Remaining(),
		ExpiresAt:     rec.ExpiresAt,
	}, nil
}
