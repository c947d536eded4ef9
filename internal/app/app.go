package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/jobgate/internal/abuse"
	"github.com/hitoshi/jobgate/internal/appstatus"
	"github.com/hitoshi/jobgate/internal/config"
	"github.com/hitoshi/jobgate/internal/database"
	"github.com/hitoshi/jobgate/internal/handler"
	"github.com/hitoshi/jobgate/internal/logger"
	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/moderation"
	"github.com/hitoshi/jobgate/internal/notify"
	"github.com/hitoshi/jobgate/internal/ratelimit"
	"github.com/hitoshi/jobgate/internal/repository"
	"github.com/hitoshi/jobgate/internal/security"
	"github.com/hitoshi/jobgate/internal/worker/cleanup"
)

const (
	dbPingTimeout   = 5 * time.Second
	webhookTimeout  = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// 審査ポリシーファイルが指定されていればその値で上書きする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. .env → 環境変数の順に設定を読み込む
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 審査ポリシー
	if cfg.ModerationPolicyFile != "" {
		policy, err := config.LoadPolicy(cfg.ModerationPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load moderation policy: %w", err)
		}
		policy.Apply(cfg)
		slog.Info("moderation policy loaded",
			slog.String("path", cfg.ModerationPolicyFile),
			slog.Int("denylist_size", len(cfg.Denylist)),
		)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		migrateArgs, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(w, cfg, migrateArgs)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(context.Background(), db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// openRedis はREDIS_URLが設定されていればRedisクライアントを返す。未設定ならnil。
func openRedis(cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dbPingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// newRateLimitStore はRedisがあれば共有ストア、なければプロセス内ストアを返す。
func newRateLimitStore(rdb *redis.Client) ratelimit.Store {
	if rdb != nil {
		return ratelimit.NewRedisStore(rdb)
	}
	slog.Warn("REDIS_URL is not set; rate limit buckets are per-process")
	return ratelimit.NewMemoryStore()
}

// newPublishers はイベントの配信先を構成する。
// DBへの保存は常に行い、RedisとWebhookは設定されている場合のみ追加する。
func newPublishers(cfg *config.Config, events repository.EventRepository, rdb *redis.Client, guard security.SSRFGuardService) ([]notify.Publisher, error) {
	publishers := []notify.Publisher{notify.NewStorePublisher(events)}
	if rdb != nil {
		publishers = append(publishers, notify.NewRedisPublisher(rdb, notify.DefaultChannel))
	}
	if cfg.NotifyWebhookURL != "" {
		if err := guard.ValidateURL(cfg.NotifyWebhookURL); err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_WEBHOOK_URL: %w", err)
		}
		publishers = append(publishers, notify.NewWebhookPublisher(guard.NewSafeClient(webhookTimeout), cfg.NotifyWebhookURL))
	}
	return publishers, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB・Redis接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established")

	rdb, err := openRedis(cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		slog.Info("redis connection established")
	}

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	companyRepo := repository.NewPostgresCompanyRepo(db)
	postingRepo := repository.NewPostgresPostingRepo(db)
	applicationRepo := repository.NewPostgresApplicationRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)

	// 3. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// 4. 通知
	publishers, err := newPublishers(cfg, eventRepo, rdb, security.NewSSRFGuard())
	if err != nil {
		return err
	}
	dispatcher := notify.NewDispatcher(publishers,
		notify.WithQueueSize(cfg.NotifyQueueSize),
		notify.WithMetrics(collector),
	)
	dispatcher.Start()

	// 5. ドメインサービスの初期化
	limiter := ratelimit.NewLimiter(newRateLimitStore(rdb))
	sanitizer := security.NewTextSanitizer()
	detector := abuse.NewDetector(abuse.Config{
		Denylist:        cfg.Denylist,
		DuplicateWindow: cfg.DuplicateWindow,
	})

	moderationService := moderation.NewService(postingRepo, detector, limiter, sanitizer, dispatcher, collector, moderation.Config{
		TrustThreshold: cfg.TrustThreshold,
		JobCreateRule:  ratelimit.Rule{Limit: cfg.RateLimitJobCreate, Window: cfg.RateLimitJobCreateWindow},
	})
	applicationService := appstatus.NewService(applicationRepo, postingRepo, limiter, sanitizer, dispatcher, collector, appstatus.Config{
		ApplyRule: ratelimit.Rule{Limit: cfg.RateLimitApply, Window: cfg.RateLimitApplyWindow},
	})

	// 6. ルーターの構築
	generalLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral))
	defer generalLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Sessions:          sessionRepo,
		Users:             userRepo,
		Companies:         companyRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: generalLimiter,
		Logger:      slog.Default(),

		HealthChecker: db,
		Metrics:       collector,
		Gatherer:      registry,

		PostingService:     moderationService,
		ModerationService:  moderationService,
		ApplicationService: applicationService,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
		slog.Info("shutting down API server...")
	case err := <-serverErr:
		dispatcher.Close(context.Background())
		return fmt.Errorf("server listen error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 受付済みのイベントを配信し切ってから終了する
	if err := dispatcher.Close(ctx); err != nil {
		slog.Warn("notification queue was not drained", slog.String("error", err.Error()))
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 古いイベントと期限切れセッションの削除をCLEANUP_SCHEDULEに従って実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(
		repository.NewPostgresEventRepo(db),
		repository.NewPostgresSessionRepo(db),
		slog.Default(),
	)
	job.RetentionDays = cfg.EventRetentionDays

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	scheduler := cleanup.NewScheduler(job, cfg.CleanupSchedule, slog.Default())
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	slog.Info("worker starting",
		slog.String("schedule", cfg.CleanupSchedule),
		slog.Int("event_retention_days", cfg.EventRetentionDays),
	)

	<-ctx.Done()
	slog.Info("shutting down worker...")
	scheduler.Stop()

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// upは未適用分をすべて適用し、downは指定件数を戻し、versionは現在の版をwに書き出す。
func runMigrate(w io.Writer, cfg *config.Config, args MigrateArgs) error {
	slog.Info("running database migrations",
		slog.String("action", string(args.Action)),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch args.Action {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", args.Steps))
	case MigrateVersion:
		status, err := database.CurrentMigration(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("migration version failed: %w", err)
		}
		if !status.Applied {
			fmt.Fprintln(w, "no migrations applied")
			return nil
		}
		fmt.Fprintf(w, "version %d (dirty: %t)\n", status.Version, status.Dirty)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
