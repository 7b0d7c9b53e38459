package app

import (
	"context"
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
	"golang.org/x/time/rate"

	"github.com/hitoshi/photolib/internal/cascade"
	"github.com/hitoshi/photolib/internal/config"
	"github.com/hitoshi/photolib/internal/database"
	"github.com/hitoshi/photolib/internal/handler"
	"github.com/hitoshi/photolib/internal/listing"
	"github.com/hitoshi/photolib/internal/logger"
	"github.com/hitoshi/photolib/internal/metrics"
	"github.com/hitoshi/photolib/internal/middleware"
	"github.com/hitoshi/photolib/internal/stats"
	"github.com/hitoshi/photolib/internal/worker/cleanup"
	"github.com/hitoshi/photolib/internal/worker/sweep"
)

// Init はアプリケーションの初期化を行う。
// 環境変数（と.env）からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// 設定エラーも構造化ログで出せるようにする
		logger.SetupDefault(w, slog.LevelInfo)
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

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
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("blob_backend", cfg.BlobBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSweep:
		return runSweep(ctx, cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// services は各モードで共有するドメインサービス。
type services struct {
	paginator *listing.Paginator
	listing   *listing.Service
	deleter   *cascade.Deleter
	stats     *stats.Service
}

func newServices(b *backends, cfg *config.Config, mc metrics.MetricsCollector) *services {
	log := slog.Default()
	paginator := listing.NewPaginator(b.repos.Photos, mc, log)

	deleter := cascade.NewDeleter(b.repos, paginator, b.blobs, mc, log)
	if cfg.BlobDeleteBatchSize > 0 {
		deleter.MaxBlobBatch = cfg.BlobDeleteBatchSize
	}

	return &services{
		paginator: paginator,
		listing:   listing.NewService(b.repos.Albums, paginator, b.blobs, cfg.SignedURLTTL, mc, log),
		deleter:   deleter,
		stats:     stats.NewService(b.repos.Albums, paginator),
	}
}

// newMetricsRegistry はランタイムのメトリクスとアプリケーションのCollectorを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// rateLimiterConfig はreq/min単位の設定値をreq/secのレートに変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rl := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rl.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rl.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitDelete > 0 {
		rl.DeleteRate = rate.Limit(float64(cfg.RateLimitDelete) / 60.0)
		rl.DeleteBurst = cfg.RateLimitDelete
	}
	return rl
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	reg, mc := newMetricsRegistry()
	svc := newServices(b, cfg, mc)

	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		AuthSecret:        []byte(cfg.JWTSecret),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           mc,
		MetricsGatherer:   reg,
		HealthChecker:     b.health,
		PhotoService:      svc.listing,
		CascadeService:    svc.deleter,
		StatsService:      svc.stats,
	})

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
		// アカウント削除は大量のblob削除を伴うため書き込みタイムアウトを長めに取る
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newSweepJob は孤立blob掃除ジョブを組み立てる。
func newSweepJob(b *backends, cfg *config.Config, mc metrics.MetricsCollector) *sweep.Job {
	svc := newServices(b, cfg, mc)
	return sweep.NewJob(b.repos, b.blobs, svc.deleter, mc, slog.Default())
}

// runWorker はワーカーモードで起動する。
// ORPHAN_SWEEP_SCHEDULEに従って孤立blob掃除を定期実行する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := sweep.ValidateSchedule(cfg.OrphanSweepSchedule); err != nil {
		return err
	}

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	_, mc := newMetricsRegistry()
	job := newSweepJob(b, cfg, mc)

	slog.Info("worker starting", slog.String("schedule", cfg.OrphanSweepSchedule))

	// 期限切れトークンの削除はPostgreSQLバックエンドのみ
	if b.db != nil {
		go runTokenCleanup(ctx, cleanup.NewTokenCleanupJob(b.db, slog.Default()), 24*time.Hour)
	}

	// スケジューラをメインgoroutineで実行（ブロッキング）
	if err := sweep.NewScheduler(job, slog.Default()).Start(ctx, cfg.OrphanSweepSchedule); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runTokenCleanup は起動直後に1回、以後interval毎にトークンクリーンアップを実行する。
func runTokenCleanup(ctx context.Context, job *cleanup.TokenCleanupJob, interval time.Duration) {
	if err := job.Run(ctx); err != nil {
		slog.Error("token cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job.Run(ctx); err != nil {
				slog.Error("token cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}

// runSweep は孤立blob掃除を1回実行して終了する。
func runSweep(ctx context.Context, cfg *config.Config) error {
	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	_, mc := newMetricsRegistry()
	summary, err := newSweepJob(b, cfg, mc).Run(ctx)
	if err != nil {
		return fmt.Errorf("orphan sweep failed: %w", err)
	}
	if summary.KeysFailed > 0 {
		return fmt.Errorf("orphan sweep left %d keys undeleted", summary.KeysFailed)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。PostgreSQLバックエンドのみ対象。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.BackendPostgres {
		return fmt.Errorf("migrate is only supported for STORE_BACKEND=postgres (got %q)", cfg.StoreBackend)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
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
