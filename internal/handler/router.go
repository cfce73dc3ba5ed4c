package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/adboard/internal/metrics"
	"github.com/hitoshi/adboard/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	TokenVerifier     middleware.TokenVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// メトリクス（nilの場合は記録・公開しない）
	Metrics         metrics.MetricsCollector
	MetricsGatherer prometheus.Gatherer

	// 広告
	AdsService AdsServiceInterface
	AdsConfig  AdsHandlerConfig
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → CORS → SecurityHeaders
//	（認証が必要なルートのみ）→ Auth → RateLimit(General)
//
// 広告一覧と画像配信は認証不要とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.HealthChecker)
	adsHandler := NewAdsHandler(deps.AdsService, deps.AdsConfig)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Check)
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	r.Route("/ads", func(r chi.Router) {
		// --- 認証不要のルート ---
		r.Get("/", adsHandler.ListAll)
		r.Get("/image/{name}", adsHandler.Image)

		// --- 認証が必要なルート ---
		// ミドルウェアスタック: Auth → RateLimit(General)
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
			r.Use(deps.RateLimiter.GeneralMiddleware())

			r.Get("/me", adsHandler.ListMine)

			// POST /ads - 広告作成（作成専用レート制限を追加）
			r.With(deps.RateLimiter.ListingCreationMiddleware()).Post("/", adsHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", adsHandler.Get)
				r.Patch("/", adsHandler.Update)
				r.Delete("/", adsHandler.Delete)
				r.Patch("/image", adsHandler.UpdateImage)
			})
		})
	})

	return r
}
