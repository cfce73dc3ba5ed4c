package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/adboard/internal/announce"
	"github.com/hitoshi/adboard/internal/asset"
	"github.com/hitoshi/adboard/internal/auth"
	"github.com/hitoshi/adboard/internal/config"
	"github.com/hitoshi/adboard/internal/database"
	"github.com/hitoshi/adboard/internal/handler"
	"github.com/hitoshi/adboard/internal/logger"
	"github.com/hitoshi/adboard/internal/metrics"
	"github.com/hitoshi/adboard/internal/middleware"
	"github.com/hitoshi/adboard/internal/model"
	"github.com/hitoshi/adboard/internal/repository"
	"github.com/hitoshi/adboard/internal/security"
	"github.com/hitoshi/adboard/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// multipartOverhead は画像以外のマルチパート部分（properties、境界文字列）に許容するバイト数。
const multipartOverhead = 1 << 20

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（LOG_LEVELを反映するためログ初期化より前に行う）
	dotEnvErr := config.LoadDotEnv()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)
	if dotEnvErr != nil {
		return nil, dotEnvErr
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck と token は軽量サブコマンドのため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandToken:
		_ = config.LoadDotEnv()
		return runToken(w, os.Getenv("JWT_SECRET"), subArg(args, 1), subArg(args, 2))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("asset_backend", cfg.AssetBackend),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg, subArg(args, 1))
	default:
		return runServe(cfg)
	}
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

	// 2. 画像ストアの初期化
	store, err := newAssetStore(context.Background(), cfg)
	if err != nil {
		return err
	}

	// 3. メトリクスレジストリ
	reg := newRegistry()

	// 4. ルーターの構築
	router, rateLimiter := buildAPIHandler(cfg, db, store, reg)
	defer rateLimiter.Stop()

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "API server")
}

// buildAPIHandler はリポジトリ、画像ストア、広告サービスをワイヤリングし、APIのルーターを返す。
// 返されたRateLimiterは終了時にStopすること。
func buildAPIHandler(cfg *config.Config, db *sql.DB, store *asset.Store, reg *prometheus.Registry) (http.Handler, *middleware.RateLimiter) {
	// リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	listingRepo := repository.NewPostgresListingRepo(db)
	commentRepo := repository.NewPostgresCommentRepo(db)

	// ドメインサービスの初期化
	collector := metrics.NewCollector(reg)
	resolver := auth.NewResolver(userRepo)
	adsService := announce.NewService(listingRepo, commentRepo, userRepo, resolver, store, announce.Options{
		ApplyTitleOnUpdate: cfg.ListingUpdateAppliesTitle,
		Sanitizer:          security.NewTextSanitizer(),
		Metrics:            collector,
	})

	// レート制限（configはreq/min単位）
	rateLimiter := middleware.NewRateLimiter(
		middleware.PerMinuteRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCreate),
	)

	deps := &handler.RouterDeps{
		HealthChecker:     db,
		TokenVerifier:     auth.NewTokenVerifier(cfg.JWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		Metrics:         collector,
		MetricsGatherer: reg,

		AdsService: handler.NewAdsServiceAdapter(adsService, store.URL),
		AdsConfig: handler.AdsHandlerConfig{
			MaxUploadBytes: cfg.AssetMaxSize + multipartOverhead,
		},
	}

	return handler.NewRouter(deps), rateLimiter
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、孤立画像のクリーンアップジョブを定期実行する。
// /health と /metrics を公開し、SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. 画像ストアとリポジトリの初期化
	store, err := newAssetStore(context.Background(), cfg)
	if err != nil {
		return err
	}
	listingRepo := repository.NewPostgresListingRepo(db)

	// 3. クリーンアップジョブの初期化
	reg := newRegistry()
	sweepJob := cleanup.NewSweepJob(store.Backend(), listingRepo, slog.Default(), metrics.NewCollector(reg))
	sweepJob.Grace = cfg.AssetSweepGrace

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. 運用エンドポイントをバックグラウンドで公開
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           buildWorkerHandler(db, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker endpoint listen error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.AssetSweepInterval),
		slog.Duration("sweep_grace", cfg.AssetSweepGrace),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	sweepJob.Start(ctx, cfg.AssetSweepInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker endpoint shutdown failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// buildWorkerHandler はワーカーの運用エンドポイント（/health、/metrics）を返す。
func buildWorkerHandler(checker handler.HealthChecker, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware())
	r.Get("/health", handler.NewHealthHandler(checker).Check)
	r.Handle("/metrics", metrics.Handler(reg))
	return r
}

// runMigrate はデータベースマイグレーションを実行する。
// action が空または"up"の場合はすべての未適用マイグレーションを適用し、
// "down"の場合は直近の1件をロールバックし、"version"の場合は現在のバージョンを出力する。
func runMigrate(cfg *config.Config, action string) error {
	slog.Info("running database migrations",
		slog.String("action", action),
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	switch action {
	case "", "up":
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	case "down":
		if err := database.RollbackLast(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		slog.Info("last database migration rolled back")
	case "version":
		version, dirty, err := database.Version(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("database migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		return fmt.Errorf("unknown migrate action: %q (want up, down or version)", action)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// runToken は開発・検証用に24時間有効なアクセストークンを発行してwに出力する。
func runToken(w io.Writer, secret, email, role string) error {
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if email == "" {
		return errors.New("usage: token <email> [USER|ADMIN]")
	}

	caller := model.Caller{Email: email, Role: model.RoleUser}
	if model.Role(strings.ToUpper(role)) == model.RoleAdmin {
		caller.Role = model.RoleAdmin
	}

	token, err := auth.NewTokenVerifier(secret).Sign(caller, 24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// openDB はDB接続を開き、疎通を確認する。
func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newAssetStore は設定に応じた保存先の上に画像ストアを生成する。
func newAssetStore(ctx context.Context, cfg *config.Config) (*asset.Store, error) {
	storeCfg := asset.Config{
		URLPrefix: cfg.AssetURLPrefix,
		Dir:       cfg.AssetDir,
		MaxSize:   cfg.AssetMaxSize,
	}

	switch cfg.AssetBackend {
	case config.AssetBackendS3:
		backend, err := asset.NewS3Backend(ctx, asset.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize s3 asset backend: %w", err)
		}
		return asset.NewStore(storeCfg, backend), nil
	default:
		store, err := asset.NewFSStore(storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize fs asset backend: %w", err)
		}
		return store, nil
	}
}

// newRegistry はGoランタイムとプロセスのメトリクスを登録したレジストリを返す。
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMでグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
