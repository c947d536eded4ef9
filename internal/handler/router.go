package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/jobgate/internal/metrics"
	"github.com/hitoshi/jobgate/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Sessions          middleware.SessionFinder
	Users             middleware.UserFinder
	Companies         middleware.CompanyLister
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 監視
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	Gatherer      prometheus.Gatherer // nilの場合/metricsを公開しない

	// ドメインサービス
	PostingService     PostingServiceInterface
	ModerationService  ModerationServiceInterface
	ApplicationService ApplicationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Metrics → SecurityHeaders → CORS
//	  → Actor → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はActor以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	collector := deps.Metrics
	if collector == nil {
		collector = metrics.Nop{}
	}
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewMetricsMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	postingHandler := NewPostingHandler(deps.PostingService)
	moderationHandler := NewModerationHandler(deps.ModerationService)
	applicationHandler := NewApplicationHandler(deps.ApplicationService)

	// --- 認証・CSRF不要のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- Actorを解決するルート ---
	// 認証の要否は各操作の認可判定で決まる
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewActorMiddleware(deps.Sessions, deps.Users, deps.Companies))
		r.Use(middleware.NewLoggingMiddleware(log))
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

		// 求人
		r.Route("/api/jobs", func(r chi.Router) {
			r.Post("/", postingHandler.CreateJob)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", postingHandler.GetJob)
				r.Put("/", postingHandler.UpdateJob)
				r.Post("/apply", applicationHandler.Apply)
			})
		})

		// モデレーション
		r.Route("/api/moderation", func(r chi.Router) {
			r.Get("/queue", moderationHandler.Queue)
			r.Post("/jobs/{id}/approve", moderationHandler.Approve)
			r.Post("/jobs/{id}/reject", moderationHandler.Reject)
		})

		// 選考状態
		r.Get("/api/applications/statuses", applicationHandler.ListStatuses)
		r.Route("/applications/status", func(r chi.Router) {
			r.Post("/", applicationHandler.UpdateStatus)
			r.Post("/{id}", applicationHandler.UpdateStatus)
		})
	})

	return r
}
