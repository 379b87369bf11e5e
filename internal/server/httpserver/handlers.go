package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
)

type statusResponse struct {
	DownloadCount int       `json:"downloadCount"`
	MaxDownloads  int       `json:"maxDownloads"`
	Remaining     int       `json:"remaining"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *HTTPServer) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// download validates the token, opens the artifact and streams it. The whole
// sequence shares one deadline.
func (s *HTTPServer) download(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	token := r.URL.Query().Get("token")
	fileKey := r.URL.Query().Get("file")

	d, err := s.downloads.Open(ctx, token, fileKey)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = context.DeadlineExceeded
		}
		s.fail(ctx, w, err)
		return
	}
	defer d.Close()

	h := w.Header()
	h.Set("Content-Type", d.ContentType)
	h.Set("Content-Disposition", contentDisposition(d.FileName))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	if d.Size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	n, err := d.WriteTo(w)
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = metrics.OutcomeTimeout
		}
		s.metrics.Redemptions.WithLabelValues(outcome).Inc()
		s.logger.Error(ctx, "stream interrupted", "file_key", d.FileName, "bytes", n, "error", err)
		return
	}

	s.metrics.Redemptions.WithLabelValues(metrics.OutcomeGranted).Inc()
}

func (s *HTTPServer) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	st, err := s.redemption.Status(ctx, r.URL.Query().Get("token"), r.URL.Query().Get("file"))
	if err != nil {
		status, code, msg, _ := mapRedemptionError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error(ctx, "status lookup failed", "error", err)
		}
		writeError(w, status, code, msg)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		DownloadCount: st.DownloadCount,
		MaxDownloads:  st.MaxDownloads,
		Remaining:     st.Remaining,
		ExpiresAt:     st.ExpiresAt,
	})
}

func (s *HTTPServer) fail(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, msg, outcome := mapRedemptionError(err)
	s.metrics.Redemptions.WithLabelValues(outcome).Inc()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "download failed", "error", err)
	}
	writeError(w, status, code, msg)
}

func contentDisposition(fileKey string) string {
	name := strings.ReplaceAll(path.Base(fileKey), `"`, "")
	return fmt.Sprintf(`attachment; filename="%s"`, name)
}
