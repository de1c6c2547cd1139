package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/hitoshi/feedpipe/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresStore はPostgreSQLを使用したフィード・記事リポジトリ。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

const feedColumns = `id, feed_url, title, site_url, icon_url, folder, last_fetched_at, created_at`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeed(row rowScanner) (*model.Feed, error) {
	feed := &model.Feed{}
	var siteURL, iconURL, folder sql.NullString
	var lastFetched sql.NullTime

	if err := row.Scan(
		&feed.ID, &feed.FeedURL, &feed.Title, &siteURL, &iconURL, &folder,
		&lastFetched, &feed.CreatedAt,
	); err != nil {
		return nil, err
	}

	feed.SiteURL = nullStringValue(siteURL)
	feed.IconURL = nullStringValue(iconURL)
	feed.Folder = nullStringValue(folder)
	if lastFetched.Valid {
		t := lastFetched.Time
		feed.LastFetchedAt = &t
	}
	return feed, nil
}

// ListFeeds は登録済みの全フィードを登録順に返す。
func (s *PostgresStore) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+` FROM feeds ORDER BY created_at, feed_url`,
	)
	if err != nil {
		return nil, fmt.Errorf("フィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("フィードのスキャンに失敗しました: %w", err)
		}
		feeds = append(feeds, *feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の走査に失敗しました: %w", err)
	}
	return feeds, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (s *PostgresStore) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	if !isUUID(id) {
		return nil, nil
	}
	feed, err := scanFeed(s.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE id = $1`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return feed, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (s *PostgresStore) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	feed, err := scanFeed(s.db.QueryRowContext(ctx,
		`SELECT `+feedColumns+` FROM feeds WHERE feed_url = $1`, feedURL,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードURLによるフィードの検索に失敗しました: %w", err)
	}
	return feed, nil
}

// Create はフィードと初回取得分の記事を同一トランザクションで作成する。
func (s *PostgresStore) Create(ctx context.Context, feed *model.Feed, articles []model.Article) error {
	if feed.ID == "" {
		feed.ID = uuid.New().String()
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feeds (id, feed_url, title, site_url, icon_url, folder, last_fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		feed.ID, feed.FeedURL, feed.Title,
		nullString(feed.SiteURL), nullString(feed.IconURL), nullString(feed.Folder),
		feed.LastFetchedAt, feed.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateFeed
		}
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}

	if _, err := insertArticles(ctx, tx, ownedBy(feed.ID, articles)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ownedBy は記事のFeedIDをfeedIDに揃えたコピーを返す。
func ownedBy(feedID string, articles []model.Article) []model.Article {
	owned := make([]model.Article, len(articles))
	for i, a := range articles {
		a.FeedID = feedID
		owned[i] = a
	}
	return owned
}

// KnownArticleURLs はフィードに保存済みの記事URLの集合を返す。
func (s *PostgresStore) KnownArticleURLs(ctx context.Context, feedID string) (map[string]struct{}, error) {
	known := make(map[string]struct{})
	if !isUUID(feedID) {
		return known, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT url FROM articles WHERE feed_id = $1`, feedID)
	if err != nil {
		return nil, fmt.Errorf("既知の記事URLの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("記事URLのスキャンに失敗しました: %w", err)
		}
		known[u] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事URLの走査に失敗しました: %w", err)
	}
	return known, nil
}

// ApplyRefresh はフィード更新と新規記事を1トランザクションで反映する。
// タイトルは更新値が空でない場合のみ上書きし、サイトURLとアイコンURLは未設定の場合のみ補完する。
// 戻り値は実際に挿入された記事数（重複として無視された記事は含まない）。
func (s *PostgresStore) ApplyRefresh(ctx context.Context, updates []model.FeedUpdate, articles []model.Article) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, u := range updates {
		if err := updateFeed(ctx, tx, u); err != nil {
			return 0, fmt.Errorf("フィードの更新に失敗しました (feed_id=%s): %w", u.FeedID, err)
		}
	}

	inserted, err := insertArticles(ctx, tx, articles)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inserted, nil
}

// updateFeed はフィードの最終取得日時を更新する。補完値がある場合のみメタデータも更新する。
func updateFeed(ctx context.Context, tx *sql.Tx, u model.FeedUpdate) error {
	if !u.HasBackfill() {
		_, err := tx.ExecContext(ctx,
			`UPDATE feeds SET last_fetched_at = $2 WHERE id = $1`,
			u.FeedID, u.LastFetchedAt,
		)
		return err
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE feeds SET
		    last_fetched_at = $2,
		    title = COALESCE(NULLIF($3, ''), title),
		    site_url = COALESCE(site_url, NULLIF($4, '')),
		    icon_url = COALESCE(icon_url, NULLIF($5, ''))
		 WHERE id = $1`,
		u.FeedID, u.LastFetchedAt, u.Title, u.SiteURL, u.IconURL,
	)
	return err
}

// insertArticles は記事をトランザクション内で挿入する。(feed_id, url)が重複する記事は無視する。
// 戻り値は実際に挿入された行数。
func insertArticles(ctx context.Context, tx *sql.Tx, articles []model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO articles (id, feed_id, guid, title, url, content, author, image_url, published_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (feed_id, url) DO NOTHING`,
	)
	if err != nil {
		return 0, fmt.Errorf("記事挿入文の準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	inserted := 0
	for _, a := range articles {
		id := a.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := a.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		res, err := stmt.ExecContext(ctx,
			id, a.FeedID, a.GUID, a.Title, a.URL,
			nullString(a.Content), nullString(a.Author), nullString(a.ImageURL),
			a.PublishedAt, createdAt,
		)
		if err != nil {
			return 0, fmt.Errorf("記事の挿入に失敗しました (url=%s): %w", a.URL, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	return inserted, nil
}

const articleSelect = `SELECT a.id, a.feed_id, a.guid, a.title, a.url, a.content, a.full_content,
	a.author, a.image_url, a.published_at, a.is_read, a.is_starred, a.created_at, f.title
	FROM articles a JOIN feeds f ON f.id = a.feed_id`

func scanArticle(row rowScanner) (*model.ArticleWithFeed, error) {
	a := &model.ArticleWithFeed{}
	var content, fullContent, author, imageURL sql.NullString
	var published sql.NullTime

	if err := row.Scan(
		&a.ID, &a.FeedID, &a.GUID, &a.Title, &a.URL, &content, &fullContent,
		&author, &imageURL, &published, &a.IsRead, &a.IsStarred, &a.CreatedAt, &a.FeedTitle,
	); err != nil {
		return nil, err
	}

	a.Content = nullStringValue(content)
	a.FullContent = nullStringValue(fullContent)
	a.Author = nullStringValue(author)
	a.ImageURL = nullStringValue(imageURL)
	if published.Valid {
		t := published.Time
		a.PublishedAt = &t
	}
	return a, nil
}

// FindArticle は指定IDの記事を取得する。見つからない場合はnilを返す。
func (s *PostgresStore) FindArticle(ctx context.Context, id string) (*model.ArticleWithFeed, error) {
	if !isUUID(id) {
		return nil, nil
	}
	a, err := scanArticle(s.db.QueryRowContext(ctx, articleSelect+` WHERE a.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// ListArticles は記事を公開日時の新しい順に返す。
func (s *PostgresStore) ListArticles(ctx context.Context, feedID string, limit int) ([]model.ArticleWithFeed, error) {
	if feedID != "" && !isUUID(feedID) {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		articleSelect+`
		 WHERE ($1 = '' OR a.feed_id::text = $1)
		 ORDER BY a.published_at DESC NULLS LAST, a.created_at DESC
		 LIMIT $2`,
		feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []model.ArticleWithFeed
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("記事のスキャンに失敗しました: %w", err)
		}
		articles = append(articles, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// SetFullContent は本文抽出の結果を保存する。
func (s *PostgresStore) SetFullContent(ctx context.Context, id, content string) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET full_content = $2 WHERE id = $1`, id, content,
	)
	if err != nil {
		return fmt.Errorf("本文の保存に失敗しました: %w", err)
	}
	return requireAffected(res)
}

// SetArticleState は既読・スター状態を更新する。nilの項目は変更しない。
func (s *PostgresStore) SetArticleState(ctx context.Context, id string, isRead, isStarred *bool) error {
	if !isUUID(id) {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE articles SET
		    is_read = COALESCE($2, is_read),
		    is_starred = COALESCE($3, is_starred)
		 WHERE id = $1`,
		id, nullBool(isRead), nullBool(isStarred),
	)
	if err != nil {
		return fmt.Errorf("記事状態の更新に失敗しました: %w", err)
	}
	return requireAffected(res)
}

// PruneArticles はbeforeより前に取り込んだスター無しの記事を削除する。
func (s *PostgresStore) PruneArticles(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM articles WHERE created_at < $1 AND is_starred = false`, before,
	)
	if err != nil {
		return 0, fmt.Errorf("古い記事の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}
	return n, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUUID はidがUUIDとして解釈できるかを返す。
// UUID型の列に不正な文字列を渡すとクエリ自体が失敗するため、事前に弾く。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullStringValue はsql.NullStringから文字列を取得する。
func nullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}
