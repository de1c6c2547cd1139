package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/model"
)

// FeedReader はフィードハンドラーが参照するストレージのインターフェース。
type FeedReader interface {
	ListFeeds(ctx context.Context) ([]model.Feed, error)
	FindByID(ctx context.Context, id string) (*model.Feed, error)
}

// Subscriber はフィードを購読登録するインターフェース。
type Subscriber interface {
	Subscribe(ctx context.Context, rawURL, folder string) (*model.Feed, error)
}

// FeedRefresher は1フィードをリフレッシュするインターフェース。
type FeedRefresher interface {
	RefreshFeed(ctx context.Context, feed model.Feed) model.RefreshReport
}

// FeedHandler はフィード管理のHTTPハンドラー。
type FeedHandler struct {
	feeds      FeedReader
	subscriber Subscriber
	refresher  FeedRefresher
}

// NewFeedHandler はFeedHandlerを生成する。
func NewFeedHandler(feeds FeedReader, subscriber Subscriber, refresher FeedRefresher) *FeedHandler {
	return &FeedHandler{feeds: feeds, subscriber: subscriber, refresher: refresher}
}

// subscribeRequest はフィード登録リクエストのボディ。
type subscribeRequest struct {
	URL    string `json:"url"`
	Folder string `json:"folder"`
}

// ListFeeds は登録済みのフィード一覧を返す。
// GET /api/feeds
func (h *FeedHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.feeds.ListFeeds(r.Context())
	if err != nil {
		middleware.WriteError(w, &model.StorageError{Op: "list_feeds", Err: err})
		return
	}

	resp := make([]feedResponse, len(feeds))
	for i, f := range feeds {
		resp[i] = toFeedResponse(f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Subscribe はURLからフィードを検出して登録する。
// POST /api/feeds
func (h *FeedHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}

	if req.URL == "" {
		middleware.WriteError(w, model.NewInvalidURLError("URLが空です"))
		return
	}

	feed, err := h.subscriber.Subscribe(r.Context(), req.URL, req.Folder)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFeedResponse(*feed))
}

// RefreshFeed は1フィードをリフレッシュして結果を返す。
// 取得に失敗した場合はその原因をエラーレスポンスとして返す。
// POST /api/feeds/{id}/refresh
func (h *FeedHandler) RefreshFeed(w http.ResponseWriter, r *http.Request) {
	feedID := chi.URLParam(r, "id")

	feed, err := h.feeds.FindByID(r.Context(), feedID)
	if err != nil {
		middleware.WriteError(w, &model.StorageError{Op: "find_feed", Err: err})
		return
	}
	if feed == nil {
		middleware.WriteError(w, model.NewFeedNotFoundError(feedID))
		return
	}

	report := h.refresher.RefreshFeed(r.Context(), *feed)
	if report.LastError != nil {
		middleware.WriteError(w, report.LastError)
		return
	}
	writeJSON(w, http.StatusOK, toReportResponse(report))
}
