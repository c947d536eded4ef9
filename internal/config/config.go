package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Redis。空の場合はインメモリのレート制限ストアを使い、Redisへのイベント配信は行わない。
	RedisURL string

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral         int // 1分あたりのリクエスト数
	RateLimitJobCreate       int
	RateLimitJobCreateWindow time.Duration
	RateLimitApply           int
	RateLimitApplyWindow     time.Duration

	// Moderation
	TrustThreshold       int
	DuplicateWindow      time.Duration
	ModerationPolicyFile string
	Denylist             []string // ポリシーファイルから設定。空なら検出器の既定リスト

	// Notify
	NotifyWebhookURL string
	NotifyQueueSize  int

	// Worker
	EventRetentionDays int
	CleanupSchedule    string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv は.envファイルの内容を環境変数に読み込む。
// 既に設定されている環境変数は上書きしない。ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitJobCreate = getEnvInt("RATE_LIMIT_JOB_CREATE", 10)
	cfg.RateLimitJobCreateWindow = getEnvDuration("RATE_LIMIT_JOB_CREATE_WINDOW", time.Hour)
	cfg.RateLimitApply = getEnvInt("RATE_LIMIT_APPLY", 30)
	cfg.RateLimitApplyWindow = getEnvDuration("RATE_LIMIT_APPLY_WINDOW", time.Hour)
	cfg.TrustThreshold = getEnvInt("TRUST_THRESHOLD", 5)
	cfg.DuplicateWindow = getEnvDuration("DUPLICATE_WINDOW", 7*24*time.Hour)
	cfg.ModerationPolicyFile = getEnvString("MODERATION_POLICY_FILE", "")
	cfg.NotifyWebhookURL = getEnvString("NOTIFY_WEBHOOK_URL", "")
	cfg.NotifyQueueSize = getEnvInt("NOTIFY_QUEUE_SIZE", 256)
	cfg.EventRetentionDays = getEnvInt("EVENT_RETENTION_DAYS", 90)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "@every 1h")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.validateRateLimits(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateRateLimits はレート制限の上限とウィンドウ長を検証する。
// 上限0は全リクエストの拒否、1秒未満のウィンドウは判定不能になるため起動時に弾く。
func (c *Config) validateRateLimits() error {
	var errs []error
	limits := []struct {
		key   string
		value int
	}{
		{"RATE_LIMIT_JOB_CREATE", c.RateLimitJobCreate},
		{"RATE_LIMIT_APPLY", c.RateLimitApply},
	}
	for _, l := range limits {
		if l.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive: %d", l.key, l.value))
		}
	}
	windows := []struct {
		key   string
		value time.Duration
	}{
		{"RATE_LIMIT_JOB_CREATE_WINDOW", c.RateLimitJobCreateWindow},
		{"RATE_LIMIT_APPLY_WINDOW", c.RateLimitApplyWindow},
	}
	for _, w := range windows {
		if w.value < time.Second {
			errs = append(errs, fmt.Errorf("%s must be at least 1s: %s", w.key, w.value))
		}
	}
	return errors.Join(errs...)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
