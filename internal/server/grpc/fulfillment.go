package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified names of the fulfillment service and its methods.
const (
	FulfillmentServiceName   = "dlkeeper.fulfillment.FulfillmentService"
	IssueTokensMethod        = "/" + FulfillmentServiceName + "/IssueTokens"
	PublishArtifactMapMethod = "/" + FulfillmentServiceName + "/PublishArtifactMap"
)

// FulfillmentServer is the server API of the fulfillment service. Requests
// and responses are google.protobuf.Struct documents.
type FulfillmentServer interface {
	IssueTokens(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PublishArtifactMap(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// FulfillmentClient is the client API of the fulfillment service.
type FulfillmentClient interface {
	IssueTokens(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	PublishArtifactMap(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type fulfillmentClient struct {
	cc grpc.ClientConnInterface
}

func NewFulfillmentClient(cc grpc.ClientConnInterface) FulfillmentClient {
	return &fulfillmentClient{cc: cc}
}

func (c *fulfillmentClient) IssueTokens(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, IssueTokensMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *fulfillmentClient) PublishArtifactMap(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PublishArtifactMapMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterFulfillmentServer registers srv on s.
func RegisterFulfillmentServer(s grpc.ServiceRegistrar, srv FulfillmentServer) {
	s.RegisterService(&FulfillmentServiceDesc, srv)
}

func issueTokensHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FulfillmentServer).IssueTokens(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: IssueTokensMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FulfillmentServer).IssueTokens(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func publishArtifactMapHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FulfillmentServer).PublishArtifactMap(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PublishArtifactMapMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(FulfillmentServer).PublishArtifactMap(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// FulfillmentServiceDesc is the grpc.ServiceDesc for the fulfillment service.
var FulfillmentServiceDesc = grpc.ServiceDesc{
	ServiceName: FulfillmentServiceName,
	HandlerType: (*FulfillmentServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssueTokens", Handler: issueTokensHandler},
		{MethodName: "PublishArtifactMap", Handler: publishArtifactMapHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dlkeeper/fulfillment.proto",
}
