package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ponyo877/chatrelay/server/domain"
)

// CredentialUsecase is the credential store the session handler talks to.
type CredentialUsecase struct {
	repo   Repository
	hasher PasswordHasher
	now    func() time.Time
}

func NewCredentialUsecase(repo Repository, hasher PasswordHasher) *CredentialUsecase {
	return &CredentialUsecase{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

func (u *CredentialUsecase) Register(ctx context.Context, username, password string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}
	digest, err := u.hasher.Hash(password)
	if err != nil {
		return err
	}
	if err := u.repo.CreateUser(ctx, domain.NewUser(username, digest)); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to create user %s: %w", username, err)
	}
	return nil
}

func (u *CredentialUsecase) Authenticate(ctx context.Context, username, password string) (bool, error) {
	user, err := u.repo.GetUser(ctx, username)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return u.hasher.Verify(password, user.PasswordDigest), nil
}

func (u *CredentialUsecase) SavePrivateMessage(ctx context.Context, sender, recipient, body string) (domain.PrivateMessage, error) {
	message := domain.NewPrivateMessage(sender, recipient, body, u.now())
	if err := u.repo.CreatePrivateMessage(ctx, message); err != nil {
		return domain.PrivateMessage{}, fmt.Errorf("failed to save private message: %w", err)
	}
	return message, nil
}

func (u *CredentialUsecase) PrivateHistory(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	messages, err := u.repo.ListPrivateMessages(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("failed to list private messages: %w", err)
	}
	return messages, nil
}
