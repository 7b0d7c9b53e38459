package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	AuthSecret        []byte
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（Gathererがnilの場合は/metricsを公開しない）
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// ヘルスチェック
	HealthChecker HealthChecker

	// ドメインサービス
	PhotoService   PhotoServiceInterface
	CascadeService CascadeServiceInterface
	StatsService   StatsServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RequestID → Logging → StatusMetrics → SecurityHeaders → CORS
//	  /api/*: Auth → RateLimit(General) [→ RateLimit(Delete)]
//
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.Nop{}
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewStatusMetricsMiddleware(mc))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	photoHandler := NewPhotoHandler(deps.PhotoService)
	albumHandler := NewAlbumHandler(deps.CascadeService)
	userHandler := NewUserHandler(deps.CascadeService, deps.StatsService)

	// --- 認証不要のルート ---
	r.Get("/health", newHealthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.AuthSecret))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/api/albums", func(r chi.Router) {
			r.Get("/", photoHandler.ListAlbums)

			r.Route("/{albumID}", func(r chi.Router) {
				// DELETE /api/albums/{albumID} - 削除専用レート制限を追加
				r.With(deps.RateLimiter.DeleteMiddleware()).Delete("/", albumHandler.DeleteAlbum)

				r.Get("/photos", photoHandler.ListPhotos)
				r.Get("/cover", photoHandler.Cover)
			})
		})

		r.Route("/api/users", func(r chi.Router) {
			r.With(deps.RateLimiter.DeleteMiddleware()).Delete("/me", userHandler.Withdraw)
		})

		r.Get("/api/stats", userHandler.Stats)
	})

	return r
}
