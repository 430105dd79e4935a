package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/guilddash/internal/metrics"
	"github.com/hitoshi/guilddash/internal/middleware"
	"github.com/hitoshi/guilddash/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionVerifier   middleware.SessionVerifier
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 認証
	AuthService AuthServiceInterface

	// ダッシュボードデータ
	DashboardService DashboardServiceInterface

	// メトリクス。nilの場合は/metricsを公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter はダッシュボードAPIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → OptionalAuth → RateLimit → (BearerAuth)
//
// OptionalAuthが有効なトークンのユーザーIDを注入するため、一般レート制限はユーザー単位になる。
// /api/auth/discord と /api/auth/refresh には認証用のレート制限を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	useCommonMiddleware(r, deps.Logger, middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)

	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewOptionalAuthMiddleware(deps.SessionVerifier))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// --- 認証不要のルート ---
		r.Route("/auth", func(r chi.Router) {
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/discord", authHandler.DiscordLogin)
			r.With(deps.RateLimiter.AuthMiddleware()).Post("/refresh", authHandler.Refresh)
			r.Get("/discord/url", authHandler.LoginURL)

			// --- 認証が必要なルート ---
			r.Group(func(r chi.Router) {
				r.Use(middleware.NewBearerAuthMiddleware(deps.SessionVerifier))
				r.Get("/me", authHandler.Me)
				r.Get("/user", authHandler.User)
				r.Put("/profile", authHandler.UpdateProfile)
			})
		})

		// ダッシュボードデータ（公開）
		r.Get("/servers", dashboardHandler.Servers)
		r.Get("/analytics/dashboard", dashboardHandler.Analytics)
		r.Get("/commands", dashboardHandler.Commands)
		r.Get("/bot/status", dashboardHandler.BotStatus)
	})

	return r
}

// BotRouterDeps はNewBotRouterに必要な依存関係。
type BotRouterDeps struct {
	Source   SnapshotSource
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
}

// NewBotRouter はポーラー読み取りAPIのルーティングを構成したchi.Routerを返す。
// 内部ネットワークからのみ呼ばれるため、CORSと認証は設定しない。
func NewBotRouter(deps *BotRouterDeps) http.Handler {
	r := chi.NewRouter()
	useCommonMiddleware(r, deps.Logger)

	h := NewBotHandler(deps.Source)

	r.Get("/health", Health)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Get("/api/bot/real-status", h.Status)
	r.Get("/api/servers/real", h.Servers)
	r.Get("/api/analytics/real", h.Analytics)
	r.Get("/api/commands/real", h.Commands)

	return r
}

// useCommonMiddleware は両ルーター共通のミドルウェアを登録する。extraは共通ミドルウェアの後に追加する。
func useCommonMiddleware(r chi.Router, logger *slog.Logger, extra ...func(http.Handler) http.Handler) {
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(extra...)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError())
	})
}

// Health はGET /health を処理する。
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}
