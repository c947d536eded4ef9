package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// checkAndIncr はGETとINCRを1つのスクリプトで実行し、
// 複数プロセスから同時に呼ばれても残り1枠を二重に許可しないようにする。
// 戻り値は {count, allowed(0|1)}。
var checkAndIncr = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return {current, 0}
end
current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {current, 1}
`)

// RedisStore はRedisを共有バケットストアとするStore実装。
// キーのTTLにより期限切れバケットはRedis側で自動削除される。
type RedisStore struct {
	rdb    redis.Scripter
	prefix string
}

// RedisStoreOption はRedisStoreの設定関数。
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix はRedisキーのプレフィックスを設定する。
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// NewRedisStore は新しいRedisStoreを生成する。
func NewRedisStore(rdb redis.Scripter, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: "jobgate:ratelimit",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key はバケットキーに対応するRedisキーを返す。
func (s *RedisStore) Key(key string) string {
	return s.prefix + ":" + key
}

// Increment はStoreインターフェースを実装する。
func (s *RedisStore) Increment(ctx context.Context, key string, limit int, ttl time.Duration) (int, bool, error) {
	if s == nil || s.rdb == nil {
		return 0, false, fmt.Errorf("redis store is not configured")
	}

	ttlMs := ttl.Milliseconds()
	if ttlMs < 1 {
		ttlMs = 1
	}

	res, err := checkAndIncr.Run(ctx, s.rdb, []string{s.Key(key)}, limit, ttlMs).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis check-and-increment: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis check-and-increment: unexpected reply length %d", len(res))
	}
	return int(res[0]), res[1] == 1, nil
}

var _ Store = (*RedisStore)(nil)
