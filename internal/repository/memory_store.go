package repository

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedpipe/internal/model"
)

// MemoryStore はプロセス内メモリにフィードと記事を保持するリポジトリ。
// DATABASE_URL未設定時の開発用、およびテスト用に使用する。
type MemoryStore struct {
	mu       sync.RWMutex
	feeds    []*model.Feed
	articles map[string][]*model.Article // feedID -> 記事
	byID     map[string]*model.Article
}

// NewMemoryStore は空のMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		articles: make(map[string][]*model.Article),
		byID:     make(map[string]*model.Article),
	}
}

var _ Store = (*MemoryStore)(nil)

// ListFeeds は登録済みの全フィードを登録順に返す。
func (s *MemoryStore) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	feeds := make([]model.Feed, 0, len(s.feeds))
	for _, f := range s.feeds {
		feeds = append(feeds, *f)
	}
	return feeds, nil
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f := s.feedLocked(id); f != nil {
		copied := *f
		return &copied, nil
	}
	return nil, nil
}

// FindByFeedURL はフィードURLでフィードを検索する。見つからない場合はnilを返す。
func (s *MemoryStore) FindByFeedURL(ctx context.Context, feedURL string) (*model.Feed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.feeds {
		if f.FeedURL == feedURL {
			copied := *f
			return &copied, nil
		}
	}
	return nil, nil
}

// Create はフィードと初回取得分の記事を登録する。記事のFeedIDは作成したフィードのIDになる。
func (s *MemoryStore) Create(ctx context.Context, feed *model.Feed, articles []model.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.feeds {
		if f.FeedURL == feed.FeedURL {
			return ErrDuplicateFeed
		}
	}

	if feed.ID == "" {
		feed.ID = uuid.New().String()
	}
	if feed.CreatedAt.IsZero() {
		feed.CreatedAt = time.Now()
	}
	stored := *feed
	s.feeds = append(s.feeds, &stored)
	s.insertLocked(ownedBy(feed.ID, articles))
	return nil
}

// KnownArticleURLs はフィードに保存済みの記事URLの集合を返す。
func (s *MemoryStore) KnownArticleURLs(ctx context.Context, feedID string) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	known := make(map[string]struct{}, len(s.articles[feedID]))
	for _, a := range s.articles[feedID] {
		known[a.URL] = struct{}{}
	}
	return known, nil
}

// ApplyRefresh はフィード更新と新規記事を反映する。
// 存在しないフィードへの更新は無視する。
func (s *MemoryStore) ApplyRefresh(ctx context.Context, updates []model.FeedUpdate, articles []model.Article) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range updates {
		f := s.feedLocked(u.FeedID)
		if f == nil {
			continue
		}
		fetched := u.LastFetchedAt
		f.LastFetchedAt = &fetched
		if !u.HasBackfill() {
			continue
		}
		if u.Title != "" {
			f.Title = u.Title
		}
		if f.SiteURL == "" {
			f.SiteURL = u.SiteURL
		}
		if f.IconURL == "" {
			f.IconURL = u.IconURL
		}
	}
	return s.insertLocked(articles), nil
}

// insertLocked は記事を追加し、追加した件数を返す。同じフィード内で既にあるURLの記事は無視する。
func (s *MemoryStore) insertLocked(articles []model.Article) int {
	now := time.Now()
	inserted := 0
	for _, a := range articles {
		if slices.ContainsFunc(s.articles[a.FeedID], func(existing *model.Article) bool {
			return existing.URL == a.URL
		}) {
			continue
		}
		stored := a
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
		s.articles[stored.FeedID] = append(s.articles[stored.FeedID], &stored)
		s.byID[stored.ID] = &stored
		inserted++
	}
	return inserted
}

// FindArticle は指定IDの記事を取得する。見つからない場合はnilを返す。
func (s *MemoryStore) FindArticle(ctx context.Context, id string) (*model.ArticleWithFeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	return s.withFeedLocked(a), nil
}

// ListArticles は記事を公開日時の新しい順に返す。公開日時の無い記事は末尾に並ぶ。
func (s *MemoryStore) ListArticles(ctx context.Context, feedID string, limit int) ([]model.ArticleWithFeed, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.ArticleWithFeed
	for _, f := range s.feeds {
		if feedID != "" && f.ID != feedID {
			continue
		}
		for _, a := range s.articles[f.ID] {
			result = append(result, *s.withFeedLocked(a))
		}
	}

	slices.SortStableFunc(result, compareNewestFirst)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func compareNewestFirst(a, b model.ArticleWithFeed) int {
	switch {
	case a.PublishedAt == nil && b.PublishedAt == nil:
	case a.PublishedAt == nil:
		return 1
	case b.PublishedAt == nil:
		return -1
	default:
		if c := b.PublishedAt.Compare(*a.PublishedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
}

// SetFullContent は本文抽出の結果を保存する。
func (s *MemoryStore) SetFullContent(ctx context.Context, id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.FullContent = content
	return nil
}

// SetArticleState は既読・スター状態を更新する。nilの項目は変更しない。
func (s *MemoryStore) SetArticleState(ctx context.Context, id string, isRead, isStarred *bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if isRead != nil {
		a.IsRead = *isRead
	}
	if isStarred != nil {
		a.IsStarred = *isStarred
	}
	return nil
}

// PruneArticles はbeforeより前に取り込んだスター無しの記事を削除する。
func (s *MemoryStore) PruneArticles(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for feedID, list := range s.articles {
		kept := list[:0]
		for _, a := range list {
			if !a.IsStarred && a.CreatedAt.Before(before) {
				delete(s.byID, a.ID)
				deleted++
				continue
			}
			kept = append(kept, a)
		}
		s.articles[feedID] = kept
	}
	return deleted, nil
}

func (s *MemoryStore) feedLocked(id string) *model.Feed {
	for _, f := range s.feeds {
		if f.ID == id {
			return f
		}
	}
	return nil
}

func (s *MemoryStore) withFeedLocked(a *model.Article) *model.ArticleWithFeed {
	out := &model.ArticleWithFeed{Article: *a}
	if f := s.feedLocked(a.FeedID); f != nil {
		out.FeedTitle = f.Title
	}
	return out
}
