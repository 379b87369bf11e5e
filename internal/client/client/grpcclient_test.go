package client

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/dlkeeper/internal/common"
	"github.com/dmitrijs2005/dlkeeper/internal/server/auth"
	gs "github.com/dmitrijs2005/dlkeeper/internal/server/grpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

const secret = "client-secret"

type fakeFulfillment struct {
	lastToken string
	lastReq   *structpb.Struct
	resp      *structpb.Struct
	err       error
}

func (f *fakeFulfillment) capture(ctx context.Context, in *structpb.Struct) {
	f.lastReq = in
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
			f.lastToken = v[0]
		}
	}
}

func (f *fakeFulfillment) IssueTokens(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.capture(ctx, in)
	return f.resp, f.err
}

func (f *fakeFulfillment) PublishArtifactMap(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	f.capture(ctx, in)
	return f.resp, f.err
}

func newTestClient(t *testing.T, fake *fakeFulfillment) *GRPCClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	gs.RegisterFulfillmentServer(srv, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c := &GRPCClient{
		endpointURL: "passthrough:///bufnet",
		mintToken: func() (string, error) {
			return auth.GenerateToken("ops", []byte(secret), time.Minute)
		},
	}
	err := c.InitGRPCClient(grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestIssueTokens_SendsOrderAndToken(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]interface{}{"order_id": "O1", "issued": 1})
	require.NoError(t, err)
	fake := &fakeFulfillment{resp: resp}
	c := newTestClient(t, fake)

	got, err := c.IssueTokens(context.Background(), Order{
		OrderID:     "O1",
		OrderStatus: "completed",
		Items:       []Item{{LineItemID: "l1", ProductID: "p1", ProductName: "Spiral Poster"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.GetFields()["issued"].GetNumberValue())

	fields := fake.lastReq.GetFields()
	assert.Equal(t, "O1", fields["order_id"].GetStringValue())
	assert.Equal(t, "completed", fields["order_status"].GetStringValue())
	items := fields["items"].GetListValue().GetValues()
	require.Len(t, items, 1)
	assert.Equal(t, "Spiral Poster", items[0].GetStructValue().GetFields()["product_name"].GetStringValue())

	caller, err := auth.GetServiceFromToken(fake.lastToken, []byte(secret))
	require.NoError(t, err)
	assert.Equal(t, "ops", caller)
}

func TestPublishArtifactMap_ReturnsVersion(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]interface{}{"version": 4})
	require.NoError(t, err)
	fake := &fakeFulfillment{resp: resp}
	c := newTestClient(t, fake)

	v, err := c.PublishArtifactMap(context.Background(), "autumn", []ArtifactEntry{{ProductID: "p1", FileKey: "a.png"}})
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)
	assert.Equal(t, "autumn", fake.lastReq.GetFields()["note"].GetStringValue())
}

func TestMapError(t *testing.T) {
	c := &GRPCClient{}

	tests := []struct {
		in   error
		want error
	}{
		{status.Error(codes.Unavailable, "down"), ErrUnavailable},
		{status.Error(codes.Unauthenticated, "invalid token"), ErrUnauthorized},
		{status.Error(codes.FailedPrecondition, "order not paid"), ErrRejected},
		{status.Error(codes.InvalidArgument, "bad"), ErrRejected},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, c.mapError(tt.in), tt.want)
	}

	plain := errors.New("boom")
	assert.Equal(t, plain, c.mapError(plain))

	internal := status.Error(codes.Internal, "internal error")
	assert.Equal(t, internal, c.mapError(internal))
}

func TestIssueTokens_RejectedOrder(t *testing.T) {
	fake := &fakeFulfillment{err: status.Error(codes.FailedPrecondition, "order not paid")}
	c := newTestClient(t, fake)

	_, err := c.IssueTokens(context.Background(), Order{OrderID: "O1", OrderStatus: "pending"})
	assert.ErrorIs(t, err, ErrRejected)
}

func TestMintFailureAbortsCall(t *testing.T) {
	fake := &fakeFulfillment{}
	c := newTestClient(t, fake)
	c.mintToken = func() (string, error) { return "", errors.New("no key") }

	_, err := c.IssueTokens(context.Background(), Order{OrderID: "O1"})
	require.Error(t, err)
	assert.Nil(t, fake.lastReq)
}
