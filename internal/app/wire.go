package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/feedpipe/internal/config"
	"github.com/hitoshi/feedpipe/internal/database"
	"github.com/hitoshi/feedpipe/internal/extract"
	"github.com/hitoshi/feedpipe/internal/feed"
	"github.com/hitoshi/feedpipe/internal/fetcher"
	"github.com/hitoshi/feedpipe/internal/metrics"
	"github.com/hitoshi/feedpipe/internal/repository"
	"github.com/hitoshi/feedpipe/internal/security"
	"github.com/hitoshi/feedpipe/internal/subscription"
	"github.com/hitoshi/feedpipe/internal/worker/cleanup"
	"github.com/hitoshi/feedpipe/internal/worker/refresh"
)

// components はサブコマンド間で共有する依存関係をまとめた構造体。
type components struct {
	db    *sql.DB // メモリストア使用時はnil
	store repository.Store

	registry  *prometheus.Registry
	collector *metrics.Collector

	client       fetcher.Client
	parser       *feed.Parser
	extractor    *extract.Extractor
	subscription *subscription.Service
	refresher    *refresh.Manager
	cleanup      *cleanup.Job
}

// newComponents は設定に従って依存関係を構築する。
// DATABASE_URLが空の場合はメモリストアを使う。requireDBがtrueの場合は空をエラーとする。
func newComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger, requireDB bool) (*components, error) {
	c := &components{}

	if cfg.DatabaseURL == "" {
		if requireDB {
			return nil, fmt.Errorf("DATABASE_URL is required for this command")
		}
		logger.Warn("DATABASE_URLが未設定のためメモリストアを使用します。再起動するとデータは失われます")
		c.store = repository.NewMemoryStore()
	} else {
		db, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		logger.Info("データベースに接続しました")
		c.db = db
		c.store = repository.NewPostgresStore(db)
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.collector = metrics.NewCollector(c.registry)

	// 開発時にローカルのフィードを購読する場合のみSSRF検証を無効にする
	var guard fetcher.SSRFValidator
	if cfg.AllowPrivateNetworks {
		logger.Warn("プライベートネットワークへのアクセスを許可しています")
	} else {
		guard = security.NewSSRFGuard()
	}
	c.client = fetcher.NewHTTPClient(guard, c.collector, logger, cfg.FetchMaxSize)

	c.parser = feed.NewParser(c.client, logger, cfg.FetchTimeout)
	detector := feed.NewDetector(c.client, logger, cfg.FetchTimeout)
	icons := feed.NewIconResolver(c.client, logger)
	c.extractor = extract.NewExtractor(c.client, c.collector, logger, cfg.ExtractCacheTTL)

	c.subscription = subscription.NewService(c.store, detector, c.parser, icons, logger)
	c.refresher = refresh.NewManager(c.store, c.parser, c.collector, logger)
	c.cleanup = cleanup.NewJob(c.store, logger, cfg.ArticleRetentionDays)

	return c, nil
}

// Close はデータベース接続を閉じる。
func (c *components) Close() {
	if c.db != nil {
		c.db.Close()
	}
}
