package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ponyo877/chatrelay/server/domain"
	"github.com/ponyo877/chatrelay/server/usecase"
	"github.com/redis/go-redis/v9"
)

const (
	redisUsersKey    = "chatrelay:users"
	redisPMKeyPrefix = "chatrelay:pms:"
)

// RedisRepository は users をハッシュに、PM を会話ペアごとのリストに保存します。
// 永続性は Redis 側の AOF 設定に依存します。
type RedisRepository struct {
	rdb *redis.Client
}

func NewRedisRepository(rdb *redis.Client) usecase.Repository {
	return &RedisRepository{rdb: rdb}
}

func pmKey(userA, userB string) string {
	return redisPMKeyPrefix + domain.PairKey(userA, userB)
}

func (r *RedisRepository) CreateUser(ctx context.Context, user domain.User) error {
	created, err := r.rdb.HSetNX(ctx, redisUsersKey, user.Username, user.PasswordDigest).Result()
	if err != nil {
		return fmt.Errorf("failed to store user %s: %w", user.Username, err)
	}
	if !created {
		return domain.ErrAlreadyExists
	}
	return nil
}

func (r *RedisRepository) GetUser(ctx context.Context, username string) (domain.User, error) {
	digest, err := r.rdb.HGet(ctx, redisUsersKey, username).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return domain.NewUser(username, digest), nil
}

func (r *RedisRepository) CreatePrivateMessage(ctx context.Context, message domain.PrivateMessage) error {
	payload, err := json.Marshal(newPMRecord(message))
	if err != nil {
		return fmt.Errorf("failed to encode private message: %w", err)
	}
	if err := r.rdb.RPush(ctx, pmKey(message.Sender, message.Recipient), string(payload)).Err(); err != nil {
		return fmt.Errorf("failed to store private message: %w", err)
	}
	return nil
}

func (r *RedisRepository) ListPrivateMessages(ctx context.Context, userA, userB string) ([]domain.PrivateMessage, error) {
	values, err := r.rdb.LRange(ctx, pmKey(userA, userB), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list private messages between %s and %s: %w", userA, userB, err)
	}
	messages := make([]domain.PrivateMessage, 0, len(values))
	for _, v := range values {
		var rec pmRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode private message: %w", err)
		}
		messages = append(messages, rec.toDomain())
	}
	return messages, nil
}
