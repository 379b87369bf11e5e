package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	"github.com/dmitrijs2005/dlkeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
)

// ContentTypeFor picks the response media type from the file extension.
func ContentTypeFor(fileKey string) string {
	switch strings.ToLower(strings.TrimPrefix(path.Ext(fileKey), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return "application/pdf"
	case "zip":
		return "application/zip"
	default:
		return "application/octet-stream"
	}
}

// Download is an authorized, already counted artifact ready to be streamed.
// The caller must Close it.
type Download struct {
	FileName      string
	ContentType   string
	Size          int64
	DownloadCount int
	Remaining     int

	body    io.ReadCloser
	metrics *metrics.Metrics
}

// WriteTo streams the artifact bytes to w.
func (d *Download) WriteTo(w io.Writer) (int64, error) {
	start := time.Now()
	n, err := io.Copy(w, d.body)
	d.metrics.BytesServed.Add(float64(n))
	d.metrics.StreamDuration.Observe(time.Since(start).Seconds())
	return n, err
}

func (d *Download) Close() error {
	return d.body.Close()
}

// DownloadService ties token redemption to blob storage.
type DownloadService struct {
	redemption *RedemptionService
	store      blobstore.Store
	metrics    *metrics.Metrics
	log        logging.Logger
}

func NewDownloadService(redemption *RedemptionService, store blobstore.Store, m *metrics.Metrics, log logging.Logger) *DownloadService {
	return &DownloadService{redemption: redemption, store: store, metrics: m, log: log.With("module", "download")}
}

// Open validates token and fileKey, opens the blob and only then consumes a
// download, so a missing file never costs the customer an attempt.
func (s *DownloadService) Open(ctx context.Context, token, fileKey string) (*Download, error) {
	rec, err := s.redemption.Validate(ctx, token, fileKey)
	if err != nil {
		return nil, err
	}

	body, size, err := s.store.Get(ctx, rec.FileKey)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "blob read failed", "file_key", rec.FileKey, "error", err)
		}
		return nil, fmt.Errorf("%w: %s", common.ErrFileUnavailable, rec.FileKey)
	}

	count, err := s.redemption.Consume(ctx, rec)
	if err != nil {
		_ = body.Close()
		return nil, err
	}

	remaining := rec.MaxDownloads - count
	if remaining < 0 {
		remaining = 0
	}

	s.log.Info(ctx, "download granted",
		"order_id", rec.OrderID, "file_key", rec.FileKey, "download_count", count, "max_downloads", rec.MaxDownloads)

	return &Download{
		FileName:      rec.FileKey,
		ContentType:   ContentTypeFor(rec.FileKey),
		Size:          size,
		DownloadCount: count,
		Remaining:     remaining,
		body:          body,
		metrics:       s.metrics,
	}, nil
}
