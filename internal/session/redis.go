package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"harvestlink/internal/domain"
)

const redisKeyPrefix = "ussd:session:"

// RedisStore keeps one JSON document per session and lets Redis expire it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore connects to redisURL and pings it.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return NewRedisStoreFromClient(client, ttl), nil
}

func NewRedisStoreFromClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Get(ctx context.Context, id string) (domain.Session, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return Fresh(id), nil
	}
	if err != nil {
		return domain.Session{}, unavailable("get", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, unavailable("decode", err)
	}
	return sess, nil
}

func (s *RedisStore) Put(ctx context.Context, sess domain.Session) error {
	now := s.now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	sess.UpdatedAt = now
	data, err := json.Marshal(sess)
	if err != nil {
		return unavailable("encode", err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+sess.ID, data, s.ttl).Err(); err != nil {
		return unavailable("put", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// Purge is a no-op: Redis expires keys on its own.
func (s *RedisStore) Purge(context.Context) (int64, error) {
	return 0, nil
}

func (s *RedisStore) List(ctx context.Context) ([]domain.Session, error) {
	var (
		res    []domain.Session
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, unavailable("scan", err)
		}
		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, unavailable("get", err)
			}
			var sess domain.Session
			if err := json.Unmarshal(data, &sess); err != nil {
				return nil, unavailable("decode", err)
			}
			res = append(res, sess)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return res, nil
}
