package model

import "time"

// ParsedArticle はフィードから正規化された未保存の記事を表す。
// 同一フィード内でIDが等しい記事は同一の論理記事とみなす。
type ParsedArticle struct {
	ID          string
	Title       string
	URL         string // 解決済みの絶対URL
	Content     string
	Summary     string
	Author      string
	PublishedAt *time.Time
	ImageURL    string
}

// Article は保存済みの記事を表す。
type Article struct {
	ID          string
	FeedID      string
	GUID        string
	Title       string
	URL         string
	Content     string
	FullContent string // 本文抽出の結果（未取得の場合は空）
	Author      string
	ImageURL    string
	PublishedAt *time.Time
	IsRead      bool
	IsStarred   bool
	CreatedAt   time.Time
}

// ArticleWithFeed は記事と所属フィードのタイトルを結合したモデル。
// スマートフォルダのフィルタ評価やAPI応答で使用する。
type ArticleWithFeed struct {
	Article
	FeedTitle string
}

// NewArticle は正規化済みの記事から保存用の記事を組み立てる。
// 本文が無い場合は要約を本文として使う。
func (p ParsedArticle) NewArticle(id, feedID string) Article {
	content := p.Content
	if content == "" {
		content = p.Summary
	}
	return Article{
		ID:          id,
		FeedID:      feedID,
		GUID:        p.ID,
		Title:       p.Title,
		URL:         p.URL,
		Content:     content,
		Author:      p.Author,
		ImageURL:    p.ImageURL,
		PublishedAt: p.PublishedAt,
	}
}
