package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/model"
	"github.com/hitoshi/feedpipe/internal/security"
)

// feedResponse はフィード情報のAPIレスポンス。
type feedResponse struct {
	ID            string     `json:"id"`
	FeedURL       string     `json:"feed_url"`
	Title         string     `json:"title"`
	SiteURL       string     `json:"site_url,omitempty"`
	IconURL       string     `json:"icon_url,omitempty"`
	Folder        string     `json:"folder,omitempty"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// articleResponse は記事のAPIレスポンス。Contentはサニタイズ済みHTML。
type articleResponse struct {
	ID          string     `json:"id"`
	FeedID      string     `json:"feed_id"`
	FeedTitle   string     `json:"feed_title"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	FullContent string     `json:"full_content,omitempty"`
	Author      string     `json:"author,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	IsRead      bool       `json:"is_read"`
	IsStarred   bool       `json:"is_starred"`
	CreatedAt   time.Time  `json:"created_at"`
}

// reportResponse はリフレッシュ結果のAPIレスポンス。
type reportResponse struct {
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Inserted    int       `json:"inserted"`
	LastError   string    `json:"last_error,omitempty"`
	Skipped     bool      `json:"skipped"`
	CompletedAt time.Time `json:"completed_at"`
}

func toFeedResponse(f model.Feed) feedResponse {
	return feedResponse{
		ID:            f.ID,
		FeedURL:       f.FeedURL,
		Title:         f.Title,
		SiteURL:       f.SiteURL,
		IconURL:       f.IconURL,
		Folder:        f.Folder,
		LastFetchedAt: f.LastFetchedAt,
		CreatedAt:     f.CreatedAt,
	}
}

func toArticleResponse(a model.ArticleWithFeed, sanitizer *security.ContentSanitizer) articleResponse {
	return articleResponse{
		ID:          a.ID,
		FeedID:      a.FeedID,
		FeedTitle:   a.FeedTitle,
		Title:       a.Title,
		URL:         a.URL,
		Content:     sanitizer.Sanitize(a.Content),
		FullContent: a.FullContent,
		Author:      a.Author,
		ImageURL:    a.ImageURL,
		PublishedAt: a.PublishedAt,
		IsRead:      a.IsRead,
		IsStarred:   a.IsStarred,
		CreatedAt:   a.CreatedAt,
	}
}

func toArticleResponses(articles []model.ArticleWithFeed, sanitizer *security.ContentSanitizer) []articleResponse {
	out := make([]articleResponse, len(articles))
	for i, a := range articles {
		out[i] = toArticleResponse(a, sanitizer)
	}
	return out
}

func toReportResponse(r model.RefreshReport) reportResponse {
	resp := reportResponse{
		Attempted:   r.Attempted,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed(),
		Inserted:    r.Inserted,
		Skipped:     r.Skipped,
		CompletedAt: r.CompletedAt,
	}
	if r.LastError != nil {
		resp.LastError = r.LastError.Error()
	}
	return resp
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// writeInvalidRequest はリクエスト不正の統一エラーレスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter, message string) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  message,
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}
