// Package adminpb describes the chat relay admin service. Messages are
// protobuf well-known types so no generated code is needed.
package adminpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName = "chatrelay.admin.v1.AdminService"

	GetStatsFullMethodName   = "/" + ServiceName + "/GetStats"
	ListRoomsFullMethodName  = "/" + ServiceName + "/ListRooms"
	GetHistoryFullMethodName = "/" + ServiceName + "/GetHistory"
)

// Field names shared by the server and clients.
const (
	FieldActiveRooms    = "active_rooms"
	FieldActiveSessions = "active_sessions"
	FieldOnlineUsers    = "online_users"
	FieldTotalMessages  = "total_messages"
	FieldUptimeSeconds  = "uptime_seconds"

	FieldRooms     = "rooms"
	FieldName      = "name"
	FieldProtected = "protected"
	FieldMembers   = "members"

	FieldUserA     = "user_a"
	FieldUserB     = "user_b"
	FieldMessages  = "messages"
	FieldSender    = "sender"
	FieldRecipient = "recipient"
	FieldBody      = "body"
	FieldTimestamp = "timestamp"
)

type AdminServiceServer interface {
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListRooms(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedAdminServiceServer can be embedded to stay forward compatible.
type UnimplementedAdminServiceServer struct{}

func (UnimplementedAdminServiceServer) GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStats not implemented")
}

func (UnimplementedAdminServiceServer) ListRooms(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method ListRooms not implemented")
}

func (UnimplementedAdminServiceServer) GetHistory(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetHistory not implemented")
}

func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminServiceDesc, srv)
}

func getStatsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).GetStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetStatsFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).GetStats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func listRoomsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).ListRooms(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListRoomsFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).ListRooms(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getHistoryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AdminServiceServer).GetHistory(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetHistoryFullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AdminServiceServer).GetHistory(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var AdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStats", Handler: getStatsHandler},
		{MethodName: "ListRooms", Handler: listRoomsHandler},
		{MethodName: "GetHistory", Handler: getHistoryHandler},
	},
	Streams: []grpc.StreamDesc{},
}

type AdminServiceClient interface {
	GetStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	ListRooms(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type adminServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAdminServiceClient(cc grpc.ClientConnInterface) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) GetStats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetStatsFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) ListRooms(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListRoomsFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *adminServiceClient) GetHistory(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetHistoryFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// NewHistoryRequest builds the GetHistory argument for a pair of users.
func NewHistoryRequest(userA, userB string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		FieldUserA: structpb.NewStringValue(userA),
		FieldUserB: structpb.NewStringValue(userB),
	}}
}
