package ratelimit

import (
	"context"
	"sync"
	"time"
)

// sweepEvery は期限切れバケットを一括削除する操作回数の間隔。
const sweepEvery = 1024

type bucket struct {
	count     int
	expiresAt time.Time
}

// MemoryStore はプロセス内のミューテックス保護マップによるStore実装。
// 期限切れバケットはアクセス時に遅延削除し、バックグラウンドの掃除は行わない。
// 複数プロセスで制限を共有する場合はRedisStoreを使用する。
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	ops     int
	now     func() time.Time
}

// NewMemoryStore は新しいMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Increment はStoreインターフェースを実装する。
func (s *MemoryStore) Increment(_ context.Context, key string, limit int, ttl time.Duration) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	s.ops++
	if s.ops >= sweepEvery {
		s.ops = 0
		s.sweep(now)
	}

	b, ok := s.buckets[key]
	if ok && !now.Before(b.expiresAt) {
		delete(s.buckets, key)
		ok = false
	}
	if !ok {
		b = &bucket{expiresAt: now.Add(ttl)}
		s.buckets[key] = b
	}

	if b.count >= limit {
		return b.count, false, nil
	}
	b.count++
	return b.count, true, nil
}

// Len は現在保持しているバケット数を返す。テスト用。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// sweep は期限切れのバケットを削除する。mu保持中に呼ぶこと。
func (s *MemoryStore) sweep(now time.Time) {
	for k, b := range s.buckets {
		if !now.Before(b.expiresAt) {
			delete(s.buckets, k)
		}
	}
}

var _ Store = (*MemoryStore)(nil)
