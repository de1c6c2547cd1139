// Package refresh は購読フィードの一括リフレッシュとバックグラウンド定期実行を提供する。
//
// 一括リフレッシュはフィードごとに1つのgoroutineを起動し、全件の完了を待ってから
// ストレージへ1回だけ書き込む。実行中に再度呼び出された場合は何もしない。
package refresh

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedpipe/internal/metrics"
	"github.com/hitoshi/feedpipe/internal/model"
)

// DefaultInterval はバックグラウンドリフレッシュの既定の間隔。
const DefaultInterval = 30 * time.Minute

// Store はリフレッシュが使用するストレージポート。
type Store interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	KnownArticleURLs(ctx context.Context, feedID string) (map[string]struct{}, error)
	ApplyRefresh(ctx context.Context, updates []model.FeedUpdate, articles []model.Article) (int, error)
}

// FeedParser はフィードURLを取得して正規化するインターフェース。
type FeedParser interface {
	ParseURL(ctx context.Context, feedURL string) (*model.ParsedFeed, error)
}

// MetricsRecorder はリフレッシュ結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordFeedSuccess()
	RecordFeedFailure(reason string)
	RecordArticlesInserted(n int)
	RecordRefreshRun(duration time.Duration, skipped bool)
}

// FeedsProvider はバックグラウンド実行の各回で対象フィードを返す。
type FeedsProvider func(ctx context.Context) ([]model.Feed, error)

// Manager はフィードのリフレッシュを調整する。
type Manager struct {
	store   Store
	parser  FeedParser
	metrics MetricsRecorder
	logger  *slog.Logger

	now   func() time.Time
	newID func() string

	running atomic.Bool

	progressMu sync.Mutex
	completed  int
	total      int

	bgMu     sync.Mutex
	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

// NewManager はManagerを生成する。metricsはnilでもよい。
func NewManager(store Store, parser FeedParser, metrics MetricsRecorder, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		parser:  parser,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// feedResult は1フィード分のリフレッシュ結果。
type feedResult struct {
	update   *model.FeedUpdate
	articles []model.Article
	err      error
}

// RefreshFeed は1フィードをリフレッシュし、結果をストレージへ1回で反映する。
func (m *Manager) RefreshFeed(ctx context.Context, feed model.Feed) model.RefreshReport {
	res := m.refreshOne(ctx, feed)

	report := model.RefreshReport{Attempted: 1}
	if res.err != nil {
		report.LastError = res.err
		report.CompletedAt = m.now()
		return report
	}
	report.Succeeded = 1

	inserted, err := m.store.ApplyRefresh(ctx, []model.FeedUpdate{*res.update}, res.articles)
	if err != nil {
		report.LastError = &model.StorageError{Op: "apply_refresh", Err: err}
		m.logger.Error("リフレッシュ結果の保存に失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
	} else {
		report.Inserted = inserted
		m.recordInserted(report.Inserted)
	}
	report.CompletedAt = m.now()
	return report
}

// RefreshAll は全フィードを並行してリフレッシュする。
// 既に実行中の場合はSkipped=trueのレポートを返し、何もしない。
// 個々のフィードの失敗は集計のみ行い、最後に観測したエラーをLastErrorに残す。
func (m *Manager) RefreshAll(ctx context.Context, feeds []model.Feed) model.RefreshReport {
	if !m.running.CompareAndSwap(false, true) {
		m.logger.Info("リフレッシュが実行中のためスキップしました")
		if m.metrics != nil {
			m.metrics.RecordRefreshRun(0, true)
		}
		return model.RefreshReport{Skipped: true, CompletedAt: m.now()}
	}
	defer m.running.Store(false)

	start := time.Now()
	m.setProgress(0, len(feeds))

	m.logger.Info("リフレッシュを開始します",
		slog.Int("feed_count", len(feeds)),
	)

	results := make([]feedResult, len(feeds))
	var (
		wg      sync.WaitGroup
		errMu   sync.Mutex
		lastErr error
	)

	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, f model.Feed) {
			defer wg.Done()

			results[i] = m.refreshOne(ctx, f)

			errMu.Lock()
			if results[i].err != nil {
				lastErr = results[i].err
			}
			errMu.Unlock()
			m.advanceProgress()
		}(i, feed)
	}

	wg.Wait()

	report := model.RefreshReport{Attempted: len(feeds)}
	var updates []model.FeedUpdate
	var articles []model.Article
	for _, r := range results {
		if r.err != nil {
			continue
		}
		report.Succeeded++
		updates = append(updates, *r.update)
		articles = append(articles, r.articles...)
	}

	if len(updates) > 0 {
		inserted, err := m.store.ApplyRefresh(ctx, updates, articles)
		if err != nil {
			lastErr = &model.StorageError{Op: "apply_refresh", Err: err}
			m.logger.Error("リフレッシュ結果の保存に失敗しました",
				slog.Int("feed_count", len(updates)),
				slog.Int("article_count", len(articles)),
				slog.String("error", err.Error()),
			)
		} else {
			report.Inserted = inserted
			m.recordInserted(report.Inserted)
		}
	}

	report.LastError = lastErr
	report.CompletedAt = m.now()

	duration := time.Since(start)
	if m.metrics != nil {
		m.metrics.RecordRefreshRun(duration, false)
	}
	m.logger.Info("リフレッシュが完了しました",
		slog.Int("attempted", report.Attempted),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("inserted", report.Inserted),
		slog.Duration("duration", duration),
	)
	return report
}

// RefreshStored はストアに登録された全フィードを一括リフレッシュする。
func (m *Manager) RefreshStored(ctx context.Context) (model.RefreshReport, error) {
	feeds, err := m.store.ListFeeds(ctx)
	if err != nil {
		return model.RefreshReport{}, &model.StorageError{Op: "list_feeds", Err: err}
	}
	return m.RefreshAll(ctx, feeds), nil
}

// refreshOne は1フィードを取得・正規化し、新規記事とフィード更新を組み立てる。
// ストレージへの書き込みは行わない。
func (m *Manager) refreshOne(ctx context.Context, feed model.Feed) feedResult {
	known, err := m.store.KnownArticleURLs(ctx, feed.ID)
	if err != nil {
		return m.fail(feed, &model.StorageError{Op: "known_article_urls", Err: err})
	}

	parsed, err := m.parser.ParseURL(ctx, feed.FeedURL)
	if err != nil {
		return m.fail(feed, err)
	}

	var articles []model.Article
	for _, pa := range parsed.Articles {
		if _, ok := known[pa.URL]; ok {
			continue
		}
		known[pa.URL] = struct{}{}
		articles = append(articles, pa.NewArticle(m.newID(), feed.ID))
	}

	update := &model.FeedUpdate{
		FeedID:        feed.ID,
		LastFetchedAt: m.now(),
		Title:         backfillTitle(feed, parsed.Title),
	}
	if feed.SiteURL == "" {
		update.SiteURL = parsed.SiteURL
	}
	if feed.IconURL == "" {
		update.IconURL = parsed.IconURL
	}

	if m.metrics != nil {
		m.metrics.RecordFeedSuccess()
	}
	m.logger.Debug("フィードを取得しました",
		slog.String("feed_id", feed.ID),
		slog.Int("parsed", len(parsed.Articles)),
		slog.Int("new", len(articles)),
	)
	return feedResult{update: update, articles: articles}
}

func (m *Manager) fail(feed model.Feed, err error) feedResult {
	if m.metrics != nil {
		m.metrics.RecordFeedFailure(failureReason(err))
	}
	m.logger.Warn("フィードのリフレッシュに失敗しました",
		slog.String("feed_id", feed.ID),
		slog.String("feed_url", feed.FeedURL),
		slog.String("error", err.Error()),
	)
	return feedResult{err: err}
}

func failureReason(err error) string {
	switch {
	case model.IsNetworkError(err):
		return metrics.ReasonNetwork
	case model.IsStorageError(err):
		return metrics.ReasonStorage
	default:
		return metrics.ReasonParse
	}
}

// backfillTitle はフィードのタイトルを補完すべき場合に新しいタイトルを返す。
// 未設定、またはフィードURLのホスト名のままの場合のみ補完する。
func backfillTitle(feed model.Feed, parsedTitle string) string {
	if parsedTitle == "" || parsedTitle == feed.Title {
		return ""
	}
	switch {
	case feed.Title == "":
		return parsedTitle
	case strings.EqualFold(feed.Title, hostOf(feed.FeedURL)) && parsedTitle != model.DefaultFeedTitle:
		return parsedTitle
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func (m *Manager) recordInserted(n int) {
	if m.metrics != nil {
		m.metrics.RecordArticlesInserted(n)
	}
}

func (m *Manager) setProgress(completed, total int) {
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	m.completed = completed
	m.total = total
}

func (m *Manager) advanceProgress() {
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	m.completed++
}

// Progress は直近（または実行中）の一括リフレッシュの完了数と対象数を返す。
func (m *Manager) Progress() (completed, total int) {
	m.progressMu.Lock()
	defer m.progressMu.Unlock()
	return m.completed, m.total
}

// IsRefreshing は一括リフレッシュが実行中かを返す。
func (m *Manager) IsRefreshing() bool {
	return m.running.Load()
}
