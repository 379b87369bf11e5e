// Package client is the gRPC side of dlkeeperctl: it mints a short-lived
// service JWT for every call and talks to the fulfillment endpoint.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/server/auth"
	gs "github.com/dmitrijs2005/dlkeeper/internal/server/grpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Item is one purchased line item sent for issuance.
type Item struct {
	LineItemID  string `json:"line_item_id"`
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
}

// Order is the issuance request for one paid order.
type Order struct {
	OrderID     string `json:"order_id"`
	OrderStatus string `json:"order_status"`
	Items       []Item `json:"items"`
}

// ArtifactEntry maps one product to the blob delivered for it.
type ArtifactEntry struct {
	ProductID   string `json:"product_id"`
	FileKey     string `json:"file_key"`
	DisplayName string `json:"display_name"`
}

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      gs.FulfillmentClient
	mintToken   func() (string, error)
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	token, err := s.mintToken()
	if err != nil {
		return fmt.Errorf("mint service token: %w", err)
	}
	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// NewFulfillmentClientService dials endpointURL lazily. Every call carries a
// fresh JWT signed with secret and naming service as the caller.
func NewFulfillmentClientService(endpointURL, service, secret string, validity time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL: endpointURL,
		mintToken: func() (string, error) {
			return auth.GenerateToken(service, []byte(secret), validity)
		},
	}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient(opts ...grpc.DialOption) error {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(s.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(s.endpointURL, opts...)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = gs.NewFulfillmentClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// IssueTokens asks the server to issue download tokens for order.
func (s *GRPCClient) IssueTokens(ctx context.Context, order Order) (*structpb.Struct, error) {
	items := make([]interface{}, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, map[string]interface{}{
			"line_item_id": it.LineItemID,
			"product_id":   it.ProductID,
			"product_name": it.ProductName,
		})
	}

	req, err := structpb.NewStruct(map[string]interface{}{
		"order_id":     order.OrderID,
		"order_status": order.OrderStatus,
		"items":        items,
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.client.IssueTokens(ctx, req)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

// PublishArtifactMap uploads entries as a new catalog version and returns it.
func (s *GRPCClient) PublishArtifactMap(ctx context.Context, note string, entries []ArtifactEntry) (int64, error) {
	list := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		list = append(list, map[string]interface{}{
			"product_id":   e.ProductID,
			"file_key":     e.FileKey,
			"display_name": e.DisplayName,
		})
	}

	req, err := structpb.NewStruct(map[string]interface{}{"note": note, "entries": list})
	if err != nil {
		return 0, err
	}

	resp, err := s.client.PublishArtifactMap(ctx, req)
	if err != nil {
		return 0, s.mapError(err)
	}
	return int64(resp.GetFields()["version"].GetNumberValue()), nil
}

func (s *GRPCClient) mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return err
	}
}
