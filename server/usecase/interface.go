package usecase

import (
	"context"

	"github.com/ponyo877/chatrelay/server/domain"
)

// Repository persists users and private messages. Every mutating call is
// durable before it returns, and CreateUser is an atomic insert-if-absent
// that reports domain.ErrAlreadyExists on a duplicate.
type Repository interface {
	// User
	CreateUser(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, username string) (domain.User, error)

	// Private message
	CreatePrivateMessage(ctx context.Context, message domain.PrivateMessage) error
	ListPrivateMessages(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}
