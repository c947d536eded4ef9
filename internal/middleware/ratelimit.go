package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/jobgate/internal/ratelimit"
)

// RateLimiterConfig はAPI全般のレート制限の設定を保持する。
// 操作単位の制限（求人作成・応募）はratelimitパッケージの固定ウィンドウで別に行う。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 120 req/min/identity
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120)
}

// NewRateLimiterConfig は1分あたりのリクエスト数から設定を生成する。
func NewRateLimiterConfig(perMinute int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = 120
	}
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(perMinute) / 60.0),
		GeneralBurst:    perMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// identityLimiter は識別子ごとのレートリミッターとアクセス時刻を保持する。
type identityLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter は識別子（ユーザーIDまたは接続元アドレス）ごとのトークンバケットを管理する。
type RateLimiter struct {
	config RateLimiterConfig

	mu       sync.Mutex
	limiters map[ratelimit.Identity]*identityLimiter

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:   config,
		limiters: make(map[ratelimit.Identity]*identityLimiter),
		stopCh:   make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// ActorMiddlewareの後に配置し、認証済みならユーザーID、未認証なら接続元アドレスで識別する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := requestIdentity(r)
			limiter := rl.limiterFor(id)

			if !limiter.Allow() {
				WriteRateLimitResponse(w, rl.retryAfter(), rl.config.GeneralBurst, 0)
				slog.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("identity", string(id)),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LimiterCount は現在管理されているリミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) LimiterCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) limiterFor(id ratelimit.Identity) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if il, ok := rl.limiters[id]; ok {
		il.lastAccess = time.Now()
		return il.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.limiters[id] = &identityLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}
	return limiter
}

// retryAfter は1トークンが補充されるまでの時間を返す。
func (rl *RateLimiter) retryAfter() time.Duration {
	if rl.config.GeneralRate <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(rl.config.GeneralRate))
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, il := range rl.limiters {
		if now.Sub(il.lastAccess) > ttl {
			delete(rl.limiters, id)
		}
	}
}

// requestIdentity はレート制限の識別子を返す。
func requestIdentity(r *http.Request) ratelimit.Identity {
	actor := ActorFromContext(r.Context())
	if actor.IsAuthenticated() {
		return ratelimit.UserIdentity(actor.UserID)
	}
	addr := actor.RemoteAddr
	if addr == "" {
		addr = remoteHost(r)
	}
	return ratelimit.AddrIdentity(addr)
}

// WriteRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterは秒単位に切り上げ、最小1秒とする。
func WriteRateLimitResponse(w http.ResponseWriter, retryAfter time.Duration, limit, remaining int) {
	retryAfterSec := int(math.Ceil(retryAfter.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Prea multe cereri. Încearcă mai târziu.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
