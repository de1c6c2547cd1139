// Package repository はフィードと記事の永続化を提供する。
// PostgreSQL実装と、DATABASE_URL未設定時に使うインメモリ実装を持つ。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/feedpipe/internal/model"
)

var (
	// ErrNotFound は更新対象のレコードが存在しないことを表す。
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateFeed は同じフィードURLが既に登録されていることを表す。
	ErrDuplicateFeed = errors.New("feed already exists")
)

// FeedRepository はフィードデータの永続化インターフェース。
type FeedRepository interface {
	// ListFeeds は登録済みの全フィードを登録順に返す。
	ListFeeds(ctx context.Context) ([]model.Feed, error)

	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
	FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error)

	// Create はフィードと初回取得分の記事を同一トランザクションで作成する。
	// フィードURLが重複する場合はErrDuplicateFeedを返す。
	Create(ctx context.Context, feed *model.Feed, articles []model.Article) error
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	// KnownArticleURLs はフィードに保存済みの記事URLの集合を返す。
	KnownArticleURLs(ctx context.Context, feedID string) (map[string]struct{}, error)

	// ApplyRefresh はリフレッシュ結果（フィード更新と新規記事）を一括で反映する。
	// 既に存在する(feed_id, url)の記事は無視し、実際に挿入した記事数を返す。
	ApplyRefresh(ctx context.Context, updates []model.FeedUpdate, articles []model.Article) (int, error)

	// FindArticle は指定IDの記事を取得する。見つからない場合はnilを返す。
	FindArticle(ctx context.Context, id string) (*model.ArticleWithFeed, error)

	// ListArticles は記事を公開日時の新しい順に返す。feedIDが空の場合は全フィードが対象。
	ListArticles(ctx context.Context, feedID string, limit int) ([]model.ArticleWithFeed, error)

	// SetFullContent は本文抽出の結果を保存する。
	SetFullContent(ctx context.Context, id, content string) error

	// SetArticleState は既読・スター状態を更新する。nilの項目は変更しない。
	SetArticleState(ctx context.Context, id string, isRead, isStarred *bool) error

	// PruneArticles はbeforeより前に取り込んだスター無しの記事を削除し、削除件数を返す。
	PruneArticles(ctx context.Context, before time.Time) (int64, error)
}

// Store はフィードと記事の両方を扱う永続化インターフェース。
type Store interface {
	FeedRepository
	ArticleRepository
}
