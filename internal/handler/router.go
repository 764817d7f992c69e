package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/driverdash/internal/guard"
	"github.com/hitoshi/driverdash/internal/middleware"
)

// VisitorRegistry は訪問者の解決とセッション状態の取得を行う。
// visitor.Registryが実装する。
type VisitorRegistry interface {
	Middleware() func(next http.Handler) http.Handler
	SessionPersister
	guard.StateSource
	middleware.UserResolver
}

// MetricsRecorder はHTTPステータスとガード判定の記録先。
// metrics.Collectorが実装する。
type MetricsRecorder interface {
	middleware.StatusRecorder
	guard.Recorder
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker      HealthChecker
	Visitors           VisitorRegistry
	CORSAllowedOrigins []string
	RateLimiter        *middleware.RateLimiter
	CSRF               middleware.CSRFConfig
	Logger             *slog.Logger

	// メトリクス（nilの場合は記録しない）
	Metrics        MetricsRecorder
	MetricsHandler http.Handler

	// ページ
	Renderer      *Renderer
	MaxUploadSize int64

	// ドライバー
	ProfileService      ProfileServiceInterface
	TripService         TripServiceInterface
	VerificationService VerificationServiceInterface
	AdminService        AdminServiceInterface

	// アップロード画像
	Uploads ObjectOpener
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Metrics
//	  → Visitor → Session → Logging → RateLimit(General) → CSRF → Guard
//
// /health、/metrics、/uploads/* は訪問者を生成しない。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.Metrics))
	}

	var guardOpts []guard.Option
	if deps.Metrics != nil {
		guardOpts = append(guardOpts, guard.WithRecorder(deps.Metrics))
	}
	gate := func(kind guard.Kind) func(http.Handler) http.Handler {
		return guard.Middleware(kind, deps.Visitors, nil, guardOpts...)
	}

	authHandler := NewAuthHandler(deps.Visitors, deps.Renderer)
	dashboardHandler := NewDashboardHandler(deps.ProfileService, deps.TripService, deps.VerificationService, deps.Renderer, deps.MaxUploadSize)
	adminHandler := NewAdminHandler(deps.AdminService, deps.VerificationService, deps.Renderer)
	sessionHandler := NewSessionHandler()
	uploadHandler := NewUploadHandler(deps.Uploads)
	healthHandler := NewHealthHandler(deps.HealthChecker)

	// --- 訪問者を必要としないルート ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.With(middleware.NewLoggingMiddleware(logger)).Get("/uploads/{bucket}/*", uploadHandler.Serve)

	// --- 訪問者ごとのセッション状態を使うルート ---
	r.Group(func(r chi.Router) {
		r.Use(deps.Visitors.Middleware())
		r.Use(middleware.NewSessionMiddleware(deps.Visitors))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.With(gate(guard.Index)).Get("/", authHandler.Index)

		// ログイン前のみ（ログイン・サインアップは専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(gate(guard.PublicOnly))
			r.Use(deps.RateLimiter.AuthMiddleware())
			r.Get("/login", authHandler.LoginPage)
			r.Post("/login", authHandler.Login)
			r.Get("/signup", authHandler.SignupPage)
			r.Post("/signup", authHandler.Signup)
		})

		// ガードなし
		r.Post("/logout", authHandler.Logout)
		r.Get("/auth/confirm", authHandler.ConfirmEmail)

		// ログイン必須
		r.Group(func(r chi.Router) {
			r.Use(gate(guard.Protected))
			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/", dashboardHandler.Dashboard)
				r.Post("/profile", dashboardHandler.UpdateProfile)
				r.Post("/verifications", dashboardHandler.SubmitVerification)
				r.Get("/trips", dashboardHandler.Trips)
				r.Post("/trips", dashboardHandler.LogTrip)
			})
			r.Post("/account/password", authHandler.ChangePassword)
		})

		// 管理者専用
		r.Group(func(r chi.Router) {
			r.Use(gate(guard.Admin))
			r.Get("/admin", adminHandler.Admin)
			r.Post("/admin/verifications/{id}/{action}", adminHandler.Review)
		})

		// セッション状態API
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigins...))
			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))
			r.Get("/session", sessionHandler.Current)
			r.Get("/session/stream", sessionHandler.Stream)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			deps.Renderer.Render(w, r, http.StatusNotFound, pageNotFound, "Not found", nil)
		})
	})

	return r
}
