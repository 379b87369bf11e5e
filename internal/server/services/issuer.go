package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/cryptox"
	"github.com/dmitrijs2005/dlkeeper/internal/logging"
	sc "github.com/dmitrijs2005/dlkeeper/internal/server/config"
	"github.com/dmitrijs2005/dlkeeper/internal/server/metrics"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/downloadtokens"
	"github.com/dmitrijs2005/dlkeeper/internal/server/repositories/repomanager"
)

// nowFn is the clock used by every service in this package.
var nowFn = time.Now

// newDownloadToken is a seam for tests that need a failing generator.
var newDownloadToken = cryptox.NewDownloadToken

// LineItem is one purchased product of a completed order.
type LineItem struct {
	LineItemID  string
	ProductID   string
	ProductName string
}

// ItemStatus is the per-item outcome of an issuance run.
type ItemStatus string

const (
	StatusIssued        ItemStatus = "issued"
	StatusAlreadyIssued ItemStatus = "already_issued"
	StatusFailed        ItemStatus = "failed"
)

// ItemResult reports what happened to a single line item. Token, ExpiresAt
// and DownloadURL are set only for StatusIssued.
type ItemResult struct {
	LineItemID  string
	ProductID   string
	ProductName string
	FileKey     string
	DisplayName string
	Resolution  Resolution
	Status      ItemStatus
	Token       string
	ExpiresAt   time.Time
	DownloadURL string
	Err         error
}

// IssuanceReport lists item results in the order the items were given.
type IssuanceReport struct {
	OrderID string
	Issued  int
	Results []ItemResult
}

// IssuerService mints download tokens for the line items of completed orders.
type IssuerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	resolver    *FileKeyResolver
	config      *sc.Config
	metrics     *metrics.Metrics
	log         logging.Logger
}

func NewIssuerService(db *sql.DB, rm repomanager.RepositoryManager, resolver *FileKeyResolver,
	config *sc.Config, m *metrics.Metrics, log logging.Logger) *IssuerService {
	return &IssuerService{
		db:          db,
		repomanager: rm,
		resolver:    resolver,
		config:      config,
		metrics:     m,
		log:         log.With("module", "issuer"),
	}
}

// IssueTokens creates one token per line item. Items are independent: a
// failure is recorded in its result and the remaining items still proceed.
// Nothing already written is rolled back.
func (s *IssuerService) IssueTokens(ctx context.Context, orderID string, items []LineItem) (*IssuanceReport, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", common.ErrIssuanceFailure)
	}

	repo := s.repomanager.DownloadTokens(s.db)
	report := &IssuanceReport{OrderID: orderID, Results: make([]ItemResult, 0, len(items))}

	for _, item := range items {
		res := s.issueOne(ctx, repo, orderID, item)
		if res.Status == StatusIssued {
			report.Issued++
		}
		report.Results = append(report.Results, res)
	}

	s.log.Info(ctx, "tokens issued", "order_id", orderID, "items", len(items), "issued", report.Issued)
	return report, nil
}

func (s *IssuerService) issueOne(ctx context.Context, repo downloadtokens.Repository, orderID string, item LineItem) ItemResult {
	resolved := s.resolver.Resolve(ctx, item.ProductID, item.ProductName)

	res := ItemResult{
		LineItemID:  item.LineItemID,
		ProductID:   item.ProductID,
		ProductName: item.ProductName,
		FileKey:     resolved.FileKey,
		DisplayName: resolved.DisplayName,
		Resolution:  resolved.Kind,
	}

	if resolved.Fallback() {
		s.log.Warn(ctx, "fallback file mapping",
			"order_id", orderID, "line_item_id", item.LineItemID, "product_name", item.ProductName,
			"resolution", string(resolved.Kind), "file_key", resolved.FileKey)
		s.metrics.FallbackMappings.WithLabelValues(string(resolved.Kind)).Inc()
	}

	if strings.TrimSpace(resolved.FileKey) == "" {
		return s.failed(ctx, res, orderID, fmt.Errorf("no file key resolved for %q", item.ProductName))
	}

	token, err := newDownloadToken()
	if err != nil {
		return s.failed(ctx, res, orderID, fmt.Errorf("generate token: %w", err))
	}

	now := nowFn()
	rec := &models.DownloadToken{
		Token:         token,
		OrderID:       orderID,
		LineItemID:    item.LineItemID,
		ProductID:     item.ProductID,
		FileKey:       resolved.FileKey,
		DisplayName:   resolved.DisplayName,
		ExpiresAt:     now.Add(s.config.TokenTTL),
		DownloadCount: 0,
		MaxDownloads:  s.config.MaxDownloads,
		CreatedAt:     now,
	}

	if err := repo.Insert(ctx, rec); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			s.log.Info(ctx, "line item already provisioned", "order_id", orderID, "line_item_id", item.LineItemID)
			res.Status = StatusAlreadyIssued
			return res
		}
		return s.failed(ctx, res, orderID, err)
	}

	s.metrics.TokensIssued.WithLabelValues(string(resolved.Kind)).Inc()

	res.Status = StatusIssued
	res.Token = token
	res.ExpiresAt = rec.ExpiresAt
	res.DownloadURL = DownloadURL(s.config.DownloadBaseURL, token, resolved.FileKey)
	return res
}

func (s *IssuerService) failed(ctx context.Context, res ItemResult, orderID string, err error) ItemResult {
	s.log.Error(ctx, "token issuance failed",
		"order_id", orderID, "line_item_id", res.LineItemID, "file_key", res.FileKey, "error", err)
	s.metrics.IssuanceFailures.Inc()
	res.Status = StatusFailed
	res.Err = fmt.Errorf("%w: %v", common.ErrIssuanceFailure, err)
	return res
}

// DownloadURL builds the customer link for a token. The base may already
// carry a query string.
func DownloadURL(base, token, fileKey string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token) + "&file=" + url.QueryEscape(fileKey)
}
