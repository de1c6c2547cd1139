// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultFeedTitle はフィードがタイトルを持たない場合に使用する表示名。
const DefaultFeedTitle = "Untitled Feed"

// Feed は購読中のフィードを表す。
// FeedURLが一意キーとなる。空文字列のフィールドは「未設定」を意味する。
type Feed struct {
	ID            string
	FeedURL       string
	Title         string
	SiteURL       string
	IconURL       string
	Folder        string
	LastFetchedAt *time.Time
	CreatedAt     time.Time
}

// ParsedFeed はフィードを取得・正規化した結果を表す。
// フェッチのたびに生成され、そのままの形では永続化されない。
type ParsedFeed struct {
	Title       string
	Description string
	SiteURL     string
	IconURL     string
	Articles    []ParsedArticle
}

// FeedUpdate はリフレッシュ結果としてフィードに適用する変更を表す。
// Title/SiteURL/IconURLは未設定だった項目の補完値のみを持ち、空文字列は「変更なし」。
type FeedUpdate struct {
	FeedID        string
	LastFetchedAt time.Time
	Title         string
	SiteURL       string
	IconURL       string
}

// HasBackfill は補完対象のフィールドが1つ以上あるかを返す。
func (u FeedUpdate) HasBackfill() bool {
	return u.Title != "" || u.SiteURL != "" || u.IconURL != ""
}
