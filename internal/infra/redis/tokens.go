package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTokenTTL = 24 * time.Hour
	historyLimit    = 20
)

// TokenStore caches consistency tokens per table. The latest token lives in a
// plain key; a sorted set keeps the most recent tokens by generation time.
type TokenStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenStore creates a token store on client. A zero ttl means 24h.
func NewTokenStore(client *Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenStore{
		rdb:    client.rdb,
		prefix: client.prefix,
		ttl:    ttl,
		now:    time.Now,
	}
}

// PutToken stores token as the latest for tableName.
func (s *TokenStore) PutToken(ctx context.Context, tableName, token string) error {
	now := s.now()
	hkey := historyKey(s.prefix, tableName)

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, tokenKey(s.prefix, tableName), token, s.ttl)
	pipe.ZAdd(ctx, hkey, redis.Z{Score: float64(now.UnixNano()), Member: token})
	pipe.ZRemRangeByRank(ctx, hkey, 0, -historyLimit-1)
	pipe.Expire(ctx, hkey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store consistency token: %w", err)
	}
	return nil
}

// Token returns the latest token for tableName.
func (s *TokenStore) Token(ctx context.Context, tableName string) (string, bool, error) {
	val, err := s.rdb.Get(ctx, tokenKey(s.prefix, tableName)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get failed: %w", err)
	}
	return val, true, nil
}

// History returns up to n recent tokens for tableName, newest first.
func (s *TokenStore) History(ctx context.Context, tableName string, n int) ([]string, error) {
	if n <= 0 || n > historyLimit {
		n = historyLimit
	}
	return s.rdb.ZRevRange(ctx, historyKey(s.prefix, tableName), 0, int64(n-1)).Result()
}

// Forget drops every cached token for tableName.
func (s *TokenStore) Forget(ctx context.Context, tableName string) error {
	return s.rdb.Del(ctx, tokenKey(s.prefix, tableName), historyKey(s.prefix, tableName)).Err()
}
