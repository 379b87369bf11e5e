package grpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/server/models"
	"github.com/dmitrijs2005/dlkeeper/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Order statuses the storefront may report for a paid order.
var paidStatuses = map[string]bool{"completed": true, "paid": true}

func stringField(s *structpb.Struct, key string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[key].GetStringValue()
}

func structList(s *structpb.Struct, key string) []*structpb.Struct {
	var out []*structpb.Struct
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if sv := v.GetStructValue(); sv != nil {
			out = append(out, sv)
		}
	}
	return out
}

func (s *GRPCServer) IssueTokens(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID := stringField(req, "order_id")
	if orderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	orderStatus := strings.ToLower(stringField(req, "order_status"))
	if !paidStatuses[orderStatus] {
		s.logger.Warn(ctx, "issuance refused", "order_id", orderID, "order_status", orderStatus)
		return nil, status.Error(codes.FailedPrecondition, common.ErrOrderNotPaid.Error())
	}

	var items []services.LineItem
	for _, it := range structList(req, "items") {
		items = append(items, services.LineItem{
			LineItemID:  stringField(it, "line_item_id"),
			ProductID:   stringField(it, "product_id"),
			ProductName: stringField(it, "product_name"),
		})
	}

	s.logger.Info(ctx, "Issuance request", "order_id", orderID, "items", len(items), "caller", callerFromContext(ctx))

	report, err := s.issuer.IssueTokens(ctx, orderID, items)
	if err != nil {
		if errors.Is(err, common.ErrIssuanceFailure) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Error(codes.Internal, "internal error")
	}

	results := make([]interface{}, 0, len(report.Results))
	for _, r := range report.Results {
		m := map[string]interface{}{
			"line_item_id": r.LineItemID,
			"product_id":   r.ProductID,
			"product_name": r.ProductName,
			"file_key":     r.FileKey,
			"display_name": r.DisplayName,
			"resolution":   string(r.Resolution),
			"status":       string(r.Status),
		}
		if r.Status == services.StatusIssued {
			m["token"] = r.Token
			m["download_url"] = r.DownloadURL
			m["expires_at"] = r.ExpiresAt.UTC().Format(time.RFC3339)
		}
		if r.Err != nil {
			m["error"] = r.Err.Error()
		}
		results = append(results, m)
	}

	resp, err := structpb.NewStruct(map[string]interface{}{
		"order_id": report.OrderID,
		"issued":   report.Issued,
		"results":  results,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return resp, nil
}

func (s *GRPCServer) PublishArtifactMap(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var entries []models.ArtifactMapping
	for _, e := range structList(req, "entries") {
		entries = append(entries, models.ArtifactMapping{
			ProductID:   stringField(e, "product_id"),
			FileKey:     stringField(e, "file_key"),
			DisplayName: stringField(e, "display_name"),
		})
	}

	version, err := s.catalog.Publish(ctx, stringField(req, "note"), entries)
	if err != nil {
		if errors.Is(err, common.ErrInvalidArtifactMap) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		s.logger.Error(ctx, "publish failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	s.logger.Info(ctx, "Artifact map published", "version", version, "caller", callerFromContext(ctx))

	resp, err := structpb.NewStruct(map[string]interface{}{"version": version})
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return resp, nil
}
