// Package ratelimit は(スコープ, 識別子)単位の固定ウィンドウ方式レート制限を提供する。
//
// ウィンドウはwindow長で揃えた時刻境界でリセットされる。
// 境界をまたぐバーストでは一時的に名目レートの最大2倍まで通過しうるが、
// 固定ウィンドウ方式の既知の近似として許容する。
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Identity はレート制限の対象を識別する不透明なキー。
// マップのキーとしてのみ使用する。
type Identity string

// UserIdentity は認証済みユーザーの識別子を返す。
func UserIdentity(userID string) Identity {
	return Identity("user:" + userID)
}

// AddrIdentity は未認証リクエストのネットワークアドレスによる識別子を返す。
func AddrIdentity(addr string) Identity {
	if addr == "" {
		addr = "anon"
	}
	return Identity("ip:" + addr)
}

// Rule はスコープごとの制限値。
type Rule struct {
	Scope  string
	Limit  int
	Window time.Duration
}

// Decision はレート制限の判定結果。
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // 次のウィンドウが始まるまでの時間
	ResetAt    time.Time
}

// Store はバケットの原子的なチェック・インクリメントを提供する。
// インクリメント前のカウントがlimit以上ならカウントを変更せずallowed=falseを返す。
// そうでなければインクリメントしてallowed=trueと新しいカウントを返す。
// 新規バケットはttl経過後に破棄される。
type Store interface {
	Increment(ctx context.Context, key string, limit int, ttl time.Duration) (count int, allowed bool, err error)
}

// ErrInvalidWindow はウィンドウ長が1秒未満の場合のエラー。
var ErrInvalidWindow = errors.New("ratelimit: window must be at least 1s")

// Limiter は固定ウィンドウ方式のレートリミッター。
type Limiter struct {
	store Store
	now   func() time.Time
}

// NewLimiter は指定ストアを使うLimiterを生成する。
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock はテスト用に時刻関数を差し替えたLimiterを返す。
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	return &Limiter{store: l.store, now: now}
}

// Allow は(scope, identity)に対するリクエストを1件消費できるかを判定する。
// limitが0以下の場合は常に拒否する。
// ストアのエラーは呼び出し側に返し、呼び出し側は拒否として扱う。
func (l *Limiter) Allow(ctx context.Context, scope string, id Identity, limit int, window time.Duration) (Decision, error) {
	if window < time.Second {
		return Decision{}, ErrInvalidWindow
	}

	now := l.now()
	windowSec := int64(window / time.Second)
	index := now.Unix() / windowSec
	resetAt := time.Unix((index+1)*windowSec, 0)

	dec := Decision{
		Limit:      limit,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(now, resetAt),
	}
	if limit <= 0 {
		return dec, nil
	}

	key := fmt.Sprintf("%s:%s:%d", scope, id, index)
	count, allowed, err := l.store.Increment(ctx, key, limit, window)
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: increment %s: %w", scope, err)
	}

	dec.Allowed = allowed
	dec.Remaining = limit - count
	if dec.Remaining < 0 {
		dec.Remaining = 0
	}
	return dec, nil
}

// AllowRule はRuleの設定でAllowを呼び出す。
func (l *Limiter) AllowRule(ctx context.Context, rule Rule, id Identity) (Decision, error) {
	return l.Allow(ctx, rule.Scope, id, rule.Limit, rule.Window)
}

// retryAfter はリセット時刻までの時間を秒単位に切り上げて返す。最小1秒。
func retryAfter(now, resetAt time.Time) time.Duration {
	d := resetAt.Sub(now)
	secs := (d + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return secs * time.Second
}

// ExceededError はレート制限超過を表す。
// 呼び出し側は429とRetry-Afterに変換し、エスカレーションはしない。
type ExceededError struct {
	Scope    string
	Decision Decision
}

// Error はerrorインターフェースを実装する。
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (retry after %s)", e.Scope, e.Decision.RetryAfter)
}

// Enforce はAllowRuleを実行し、拒否された場合はExceededErrorを返す。
func (l *Limiter) Enforce(ctx context.Context, rule Rule, id Identity) (Decision, error) {
	dec, err := l.AllowRule(ctx, rule, id)
	if err != nil {
		return dec, err
	}
	if !dec.Allowed {
		return dec, &ExceededError{Scope: rule.Scope, Decision: dec}
	}
	return dec, nil
}
