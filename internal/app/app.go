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

	"github.com/hitoshi/feedpipe/internal/config"
	"github.com/hitoshi/feedpipe/internal/database"
	"github.com/hitoshi/feedpipe/internal/handler"
	"github.com/hitoshi/feedpipe/internal/logger"
	"github.com/hitoshi/feedpipe/internal/metrics"
	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/security"
)

// errMissingFile はOPMLサブコマンドにファイルパスが指定されていないことを表す。
var errMissingFile = errors.New("file path argument is required")

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再構成する
	return cfg, logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel)), nil
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

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("アプリケーションを起動します",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.Bool("memory_store", cfg.DatabaseURL == ""),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg, log)
	case CommandMigrate:
		return runMigrate(cfg, log)
	case CommandImportOPML:
		path, ok := fileArg(args)
		if !ok {
			return fmt.Errorf("import-opml: %w", errMissingFile)
		}
		return runImportOPML(cfg, log, path)
	case CommandExportOPML:
		path, ok := fileArg(args)
		if !ok {
			return fmt.Errorf("export-opml: %w", errMissingFile)
		}
		return runExportOPML(cfg, log, path)
	default:
		return runServe(cfg, log)
	}
}

// runServe はAPIサーバーモードで起動する。
// 依存関係をワイヤリングしてHTTPサーバーを起動し、バックグラウンドリフレッシュと
// 記事クリーンアップも同じプロセスで実行する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 依存関係の構築
	c, err := newComponents(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer c.Close()

	// 2. バックグラウンドジョブの起動
	c.refresher.StartBackground(ctx, cfg.RefreshInterval, nil)
	go func() {
		// エラーはRun内でログ出力済み
		_, _ = c.cleanup.Run(ctx)
		c.cleanup.Start(ctx, cfg.CleanupInterval)
	}()

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigPerMinute(cfg.RateLimitPerMinute), log)
	defer rateLimiter.Stop()

	refreshHandler := handler.NewRefreshHandler(c.refresher, log)
	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Feeds:         c.store,
		Subscriber:    c.subscription,
		FeedRefresher: c.refresher,

		Articles:    c.store,
		FullContent: handler.NewExtractionService(c.store, c.extractor, log),
		Sanitizer:   security.NewContentSanitizer(),

		Refresh:      refreshHandler,
		OPML:         c.subscription,
		SmartFolders: cfg.SmartFolders,

		MetricsHandler: metrics.Handler(c.registry),
	}
	if c.db != nil {
		deps.Health = c.db
	}

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("APIサーバーを起動しました",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		c.refresher.StopBackground()
		return fmt.Errorf("server listen error: %w", err)
	}
	log.Info("APIサーバーを停止しています")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	cancel()
	c.refresher.StopBackground()
	refreshHandler.Wait()

	log.Info("APIサーバーを停止しました")
	return nil
}

// runWorker はワーカーモードで起動する。
// 定期リフレッシュと記事クリーンアップを実行し、/metricsのみを公開する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := newComponents(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Info("ワーカーを停止しています")
		cancel()
	}()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(c.registry),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("メトリクスサーバーの起動に失敗しました", slog.String("error", err.Error()))
		}
	}()

	log.Info("ワーカーを起動しました",
		slog.Duration("refresh_interval", cfg.RefreshInterval),
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cfg.ArticleRetentionDays),
	)

	c.refresher.StartBackground(ctx, cfg.RefreshInterval, nil)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	_, _ = c.cleanup.Run(ctx)
	c.cleanup.Start(ctx, cfg.CleanupInterval)

	c.refresher.StopBackground()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	log.Info("ワーカーを停止しました")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("migration failed: DATABASE_URL is required")
	}

	log.Info("マイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("マイグレーションが完了しました", slog.Uint64("version", uint64(version)))
	return nil
}

// runImportOPML はOPMLファイルを読み込み、未登録のフィードを登録する。
func runImportOPML(cfg *config.Config, log *slog.Logger, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read OPML file: %w", err)
	}

	ctx := context.Background()
	c, err := newComponents(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	result, err := c.subscription.ImportOPML(ctx, data)
	if err != nil {
		return fmt.Errorf("import-opml: %w", err)
	}

	log.Info("OPMLをインポートしました",
		slog.String("path", path),
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
	)
	return nil
}

// runExportOPML は登録済みフィードをOPMLとしてファイルに書き出す。
func runExportOPML(cfg *config.Config, log *slog.Logger, path string) error {
	ctx := context.Background()
	c, err := newComponents(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.subscription.ExportOPML(ctx, "")
	if err != nil {
		return fmt.Errorf("export-opml: %w", err)
	}

	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		return fmt.Errorf("failed to write OPML file: %w", err)
	}

	log.Info("OPMLをエクスポートしました", slog.String("path", path))
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
