package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hitoshi/driverdash/internal/authz"
	"github.com/hitoshi/driverdash/internal/config"
	"github.com/hitoshi/driverdash/internal/database"
	"github.com/hitoshi/driverdash/internal/driver"
	"github.com/hitoshi/driverdash/internal/handler"
	"github.com/hitoshi/driverdash/internal/identity"
	"github.com/hitoshi/driverdash/internal/logger"
	"github.com/hitoshi/driverdash/internal/metrics"
	"github.com/hitoshi/driverdash/internal/middleware"
	"github.com/hitoshi/driverdash/internal/repository"
	"github.com/hitoshi/driverdash/internal/security"
	"github.com/hitoshi/driverdash/internal/storage"
	"github.com/hitoshi/driverdash/internal/visitor"
	"github.com/hitoshi/driverdash/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// csrfFormOverhead はmultipartフォームのうち画像以外の部分に許容するバイト数。
const csrfFormOverhead = 1 << 20

// tripImageFields は1回のトリップ記録で受け付ける画像の最大数。
const tripImageFields = 3

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定値のログレベルで再設定
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	if cmd == CommandHelp {
		_, err := io.WriteString(w, Usage())
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
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newAuthService は認証バックエンドを構築する。
func newAuthService(cfg *config.Config, db *sql.DB) (*identity.Service, error) {
	tokens, err := identity.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}
	return identity.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		tokens,
		identity.NewLogMailer(slog.Default()),
		identity.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAgeDuration(),
			AutoConfirm:   cfg.AuthAutoConfirm,
			BcryptCost:    cfg.BcryptCost,
			BaseURL:       cfg.BaseURL,
		},
	), nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. メトリクス
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(promReg)

	// 3. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	tripRepo := repository.NewPostgresTripRepo(db)
	verificationRepo := repository.NewPostgresVerificationRepo(db)

	// 4. 認証と訪問者
	authService, err := newAuthService(cfg, db)
	if err != nil {
		return err
	}
	adminLookup := authz.NewLookup(profileRepo, collector, slog.Default())

	visitorCfg := visitor.DefaultConfig()
	visitorCfg.IdleTimeout = cfg.VisitorIdleTimeout
	visitorCfg.SettleTimeout = cfg.GuardSettleTimeout
	visitorCfg.SessionMaxAge = cfg.SessionMaxAge
	visitorCfg.CookieSecure = cfg.CookieSecure
	visitorCfg.CookieDomain = cfg.CookieDomain
	visitors := visitor.NewRegistry(authService, adminLookup, visitorCfg,
		visitor.WithRecorder(collector),
		visitor.WithLogger(slog.Default()),
	)
	defer visitors.Stop()

	// 5. ストレージとドメインサービス
	store, err := storage.NewLocalStore(cfg.UploadDir, cfg.BaseURL+"/uploads")
	if err != nil {
		return fmt.Errorf("failed to open upload storage: %w", err)
	}
	sanitizer := security.NewTextSanitizer()

	renderer, err := handler.NewRenderer(func(key string) string {
		bucket, objectPath, _ := strings.Cut(key, "/")
		return store.PublicURL(bucket, objectPath)
	})
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitAuth),
	)
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		HealthChecker:      db,
		Visitors:           visitors,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        rateLimiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
			MaxBodyBytes: tripImageFields*cfg.UploadMaxSize + csrfFormOverhead,
		},
		Logger: slog.Default(),

		Metrics:        collector,
		MetricsHandler: metrics.Handler(promReg),

		Renderer:      renderer,
		MaxUploadSize: cfg.UploadMaxSize,

		ProfileService:      driver.NewProfileService(profileRepo, store),
		TripService:         driver.NewTripService(tripRepo, store, sanitizer),
		VerificationService: driver.NewVerificationService(verificationRepo, store, sanitizer),
		AdminService:        driver.NewAdminService(profileRepo),

		Uploads: store,
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	// セッション状態のストリーム配信があるためWriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップをスケジュール実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. クリーンアップジョブとスケジューラの初期化
	collector := metrics.NewCollector(prometheus.NewRegistry())
	cleanupJob := cleanup.NewCleanupJob(db, collector, slog.Default())
	scheduler, err := cleanup.NewScheduler(cleanupJob, cfg.SessionCleanupSchedule, slog.Default())
	if err != nil {
		return err
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("cleanup_schedule", cfg.SessionCleanupSchedule),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	v, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(v.Version)),
	)
	return nil
}

// runSeed はデモ用のドライバーと管理者アカウントを作成する。
func runSeed(cfg *config.Config) error {
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	seeder := driver.NewSeeder(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresProfileRepo(db),
		cfg.BcryptCost,
		slog.Default(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	created, err := seeder.SeedDemoAccounts(ctx)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("seed completed", slog.Int("created", created))
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
