package adaptor

import (
	"context"
	"time"

	"github.com/ponyo877/chatrelay/adminpb"
	"github.com/ponyo877/chatrelay/server/domain"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Adaptor serves the admin gRPC service.
type Adaptor struct {
	uc     Usecase
	logger *zap.Logger
	adminpb.UnimplementedAdminServiceServer
}

func NewAdaptor(uc Usecase, logger *zap.Logger) *Adaptor {
	return &Adaptor{uc: uc, logger: logger}
}

func toPbRoom(room domain.RoomInfo) map[string]any {
	members := make([]any, len(room.Members))
	for i, m := range room.Members {
		members[i] = m
	}
	return map[string]any{
		adminpb.FieldName:      room.Name,
		adminpb.FieldProtected: room.Protected,
		adminpb.FieldMembers:   members,
	}
}

func toPbMessage(message domain.PrivateMessage) map[string]any {
	return map[string]any{
		adminpb.FieldSender:    message.Sender,
		adminpb.FieldRecipient: message.Recipient,
		adminpb.FieldBody:      message.Body,
		adminpb.FieldTimestamp: message.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (a *Adaptor) GetStats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	stats := a.uc.GetStats()
	res, err := structpb.NewStruct(map[string]any{
		adminpb.FieldActiveRooms:    stats.ActiveRooms,
		adminpb.FieldActiveSessions: stats.ActiveSessions,
		adminpb.FieldOnlineUsers:    stats.OnlineUsers,
		adminpb.FieldTotalMessages:  stats.TotalMessages,
		adminpb.FieldUptimeSeconds:  stats.Uptime.Seconds(),
	})
	if err != nil {
		a.logger.Error("Error encoding stats", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to encode stats: %v", err)
	}
	return res, nil
}

func (a *Adaptor) ListRooms(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	rooms := a.uc.ListRooms()
	pbRooms := make([]any, len(rooms))
	for i, room := range rooms {
		pbRooms[i] = toPbRoom(room)
	}
	res, err := structpb.NewStruct(map[string]any{adminpb.FieldRooms: pbRooms})
	if err != nil {
		a.logger.Error("Error encoding rooms", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to encode rooms: %v", err)
	}
	return res, nil
}

func (a *Adaptor) GetHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userA := in.GetFields()[adminpb.FieldUserA].GetStringValue()
	userB := in.GetFields()[adminpb.FieldUserB].GetStringValue()
	if userA == "" || userB == "" {
		return nil, status.Errorf(codes.InvalidArgument, "%s and %s are required", adminpb.FieldUserA, adminpb.FieldUserB)
	}

	messages, err := a.uc.ListPrivateHistory(ctx, userA, userB)
	if err != nil {
		a.logger.Error("Error listing private history", zap.String("user_a", userA), zap.String("user_b", userB), zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to list history: %v", err)
	}

	pbMessages := make([]any, len(messages))
	for i, message := range messages {
		pbMessages[i] = toPbMessage(message)
	}
	res, err := structpb.NewStruct(map[string]any{adminpb.FieldMessages: pbMessages})
	if err != nil {
		a.logger.Error("Error encoding history", zap.Error(err))
		return nil, status.Errorf(codes.Internal, "failed to encode history: %v", err)
	}
	return res, nil
}
