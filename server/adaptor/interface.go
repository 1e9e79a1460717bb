package adaptor

import (
	"context"

	"github.com/ponyo877/chatrelay/server/domain"
)

type Usecase interface {
	// HandleSession serves one connection until it closes.
	HandleSession(ctx context.Context, conn domain.Conn) error

	GetStats() domain.RegistryStats
	ListRooms() []domain.RoomInfo
	ListPrivateHistory(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error)
}
