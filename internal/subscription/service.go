// Package subscription はフィードの購読登録とOPMLによる一括登録・書き出しを提供する。
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedpipe/internal/feed"
	"github.com/hitoshi/feedpipe/internal/model"
	"github.com/hitoshi/feedpipe/internal/opml"
	"github.com/hitoshi/feedpipe/internal/repository"
)

// FeedStore は購読管理が使用するストレージポート。
type FeedStore interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error)
	Create(ctx context.Context, feed *model.Feed, articles []model.Article) error
}

// Discoverer は入力URLからフィードURLを特定するインターフェース。
type Discoverer interface {
	Discover(ctx context.Context, inputURL string) (*feed.Discovery, error)
}

// FeedParser はフィードURLを取得して正規化するインターフェース。
type FeedParser interface {
	ParseURL(ctx context.Context, feedURL string) (*model.ParsedFeed, error)
}

// IconResolver はサイトURLからアイコンURLを推測するインターフェース。
type IconResolver interface {
	ResolveIcon(ctx context.Context, siteURL string) string
}

// ImportResult はOPMLインポートの集計結果。
type ImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Service は購読管理のサービス層。
type Service struct {
	store    FeedStore
	detector Discoverer
	parser   FeedParser
	icons    IconResolver
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewService はServiceを生成する。iconsはnilでもよい。
func NewService(store FeedStore, detector Discoverer, parser FeedParser, icons IconResolver, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		detector: detector,
		parser:   parser,
		icons:    icons,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Subscribe はURLのフィードを検出して登録し、初回取得分の記事と合わせて保存する。
// HTMLページのURLが渡された場合は<link rel="alternate">からフィードを検出する。
func (s *Service) Subscribe(ctx context.Context, rawURL, folder string) (*model.Feed, error) {
	inputURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	if err := s.ensureNotSubscribed(ctx, inputURL); err != nil {
		return nil, err
	}

	disc, err := s.detector.Discover(ctx, inputURL)
	if err != nil {
		return nil, err
	}
	if disc.FeedURL != inputURL {
		if err := s.ensureNotSubscribed(ctx, disc.FeedURL); err != nil {
			return nil, err
		}
	}

	parsed := disc.Feed
	if parsed == nil {
		parsed, err = s.parser.ParseURL(ctx, disc.FeedURL)
		if err != nil {
			return nil, err
		}
	}

	fetchedAt := s.now()
	f := &model.Feed{
		ID:            s.newID(),
		FeedURL:       disc.FeedURL,
		Title:         parsed.Title,
		SiteURL:       parsed.SiteURL,
		IconURL:       parsed.IconURL,
		Folder:        strings.TrimSpace(folder),
		LastFetchedAt: &fetchedAt,
		CreatedAt:     fetchedAt,
	}
	if f.IconURL == "" && s.icons != nil {
		f.IconURL = s.icons.ResolveIcon(ctx, firstNonEmpty(f.SiteURL, f.FeedURL))
	}

	articles := make([]model.Article, 0, len(parsed.Articles))
	seen := make(map[string]struct{}, len(parsed.Articles))
	for _, pa := range parsed.Articles {
		if _, ok := seen[pa.URL]; ok {
			continue
		}
		seen[pa.URL] = struct{}{}
		articles = append(articles, pa.NewArticle(s.newID(), f.ID))
	}

	if err := s.store.Create(ctx, f, articles); err != nil {
		if errors.Is(err, repository.ErrDuplicateFeed) {
			return nil, model.NewDuplicateFeedError(f.FeedURL)
		}
		return nil, &model.StorageError{Op: "create_feed", Err: err}
	}

	s.logger.Info("フィードを購読しました",
		slog.String("feed_id", f.ID),
		slog.String("feed_url", f.FeedURL),
		slog.Int("articles", len(articles)),
	)
	return f, nil
}

func (s *Service) ensureNotSubscribed(ctx context.Context, feedURL string) error {
	existing, err := s.store.FindByFeedURL(ctx, feedURL)
	if err != nil {
		return &model.StorageError{Op: "find_feed", Err: err}
	}
	if existing != nil {
		return model.NewDuplicateFeedError(feedURL)
	}
	return nil
}

// ImportOPML はOPMLの各フィードを登録する。登録済みのURLはスキップする。
// 記事は次回のリフレッシュで取得する。
func (s *Service) ImportOPML(ctx context.Context, data []byte) (*ImportResult, error) {
	doc, err := opml.Parse(data)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, e := range doc.Entries {
		existing, err := s.store.FindByFeedURL(ctx, e.FeedURL)
		if err != nil {
			return result, &model.StorageError{Op: "find_feed", Err: err}
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		f := &model.Feed{
			ID:        s.newID(),
			FeedURL:   e.FeedURL,
			Title:     e.Title,
			SiteURL:   e.SiteURL,
			Folder:    e.Folder,
			CreatedAt: s.now(),
		}
		if err := s.store.Create(ctx, f, nil); err != nil {
			// 同一OPML内の重複URL
			if errors.Is(err, repository.ErrDuplicateFeed) {
				result.Skipped++
				continue
			}
			return result, &model.StorageError{Op: "create_feed", Err: err}
		}
		result.Created++
	}

	s.logger.Info("OPMLをインポートしました",
		slog.Int("entries", len(doc.Entries)),
		slog.Int("created", result.Created),
		slog.Int("skipped", result.Skipped),
	)
	return result, nil
}

// ExportOPML は登録済みの全フィードをOPML文字列として返す。
func (s *Service) ExportOPML(ctx context.Context, title string) (string, error) {
	feeds, err := s.store.ListFeeds(ctx)
	if err != nil {
		return "", &model.StorageError{Op: "list_feeds", Err: err}
	}

	entries := make([]opml.Entry, len(feeds))
	for i, f := range feeds {
		entries[i] = opml.Entry{
			Title:   firstNonEmpty(f.Title, model.DefaultFeedTitle),
			FeedURL: f.FeedURL,
			SiteURL: f.SiteURL,
			Folder:  f.Folder,
		}
	}
	if title == "" {
		title = opml.DefaultTitle
	}
	return opml.Export(entries, title), nil
}

// NormalizeURL は入力URLの前後の空白を除去し、スキームが無い場合はhttps://を補う。
// http/https以外のスキームやホストの無いURLはINVALID_URLエラーとなる。
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", model.NewInvalidURLError("URLが入力されていません")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", model.NewInvalidURLError(err.Error())
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", model.NewInvalidURLError("http または https のURLを指定してください")
	}
	if u.Hostname() == "" {
		return "", model.NewInvalidURLError("ホスト名がありません")
	}
	u.Scheme = scheme
	return u.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
