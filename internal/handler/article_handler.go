package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedpipe/internal/filter"
	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/model"
	"github.com/hitoshi/feedpipe/internal/repository"
	"github.com/hitoshi/feedpipe/internal/security"
)

const (
	// defaultArticleLimit は記事一覧の1回の取得件数（デフォルト）。
	defaultArticleLimit = 50
	// maxArticleLimit は記事一覧の取得件数の上限。フィルタ適用前の取得件数にも使う。
	maxArticleLimit = 500
)

// ArticleStore は記事ハンドラーが使用するストレージのインターフェース。
type ArticleStore interface {
	ListArticles(ctx context.Context, feedID string, limit int) ([]model.ArticleWithFeed, error)
	FindArticle(ctx context.Context, id string) (*model.ArticleWithFeed, error)
	SetArticleState(ctx context.Context, id string, isRead, isStarred *bool) error
}

// FullContentService は記事の本文抽出を行うサービスのインターフェース。
type FullContentService interface {
	FullContent(ctx context.Context, articleID string) (*model.ArticleWithFeed, error)
}

// ArticleHandler は記事のHTTPハンドラー。
type ArticleHandler struct {
	store     ArticleStore
	full      FullContentService
	sanitizer *security.ContentSanitizer
}

// NewArticleHandler はArticleHandlerを生成する。
func NewArticleHandler(store ArticleStore, full FullContentService, sanitizer *security.ContentSanitizer) *ArticleHandler {
	return &ArticleHandler{store: store, full: full, sanitizer: sanitizer}
}

// articleStateRequest は記事状態更新リクエストのボディ。
type articleStateRequest struct {
	IsRead    *bool `json:"is_read,omitempty"`
	IsStarred *bool `json:"is_starred,omitempty"`
}

// ListArticles は記事一覧を新しい順に返す。
// field/op/valueを指定した場合はその条件に一致する記事だけを返す。
// GET /api/articles?feed_id=&limit=&field=&op=&value=
func (h *ArticleHandler) ListArticles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeInvalidRequest(w, "limitには1以上の整数を指定してください。")
		return
	}

	var rule *filter.Rule
	if q.Has("field") || q.Has("op") {
		parsed, err := filter.NewRule(q.Get("field"), q.Get("op"), q.Get("value"))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		rule = &parsed
	}

	fetchLimit := limit
	if rule != nil {
		fetchLimit = maxArticleLimit
	}
	articles, err := h.store.ListArticles(r.Context(), q.Get("feed_id"), fetchLimit)
	if err != nil {
		middleware.WriteError(w, &model.StorageError{Op: "list_articles", Err: err})
		return
	}

	if rule != nil {
		articles = filter.SmartFolder{Name: "query", Rules: []filter.Rule{*rule}}.Apply(articles)
		if len(articles) > limit {
			articles = articles[:limit]
		}
	}

	writeJSON(w, http.StatusOK, toArticleResponses(articles, h.sanitizer))
}

// GetFullContent は記事ページから本文を抽出して返す。抽出済みの場合は保存済みの結果を返す。
// GET /api/articles/{id}/full
func (h *ArticleHandler) GetFullContent(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "id")

	article, err := h.full.FullContent(r.Context(), articleID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(*article, h.sanitizer))
}

// UpdateState は記事の既読・スター状態を部分更新する。
// PATCH /api/articles/{id}
func (h *ArticleHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	articleID := chi.URLParam(r, "id")

	var req articleStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, "リクエストボディの解析に失敗しました。")
		return
	}
	if req.IsRead == nil && req.IsStarred == nil {
		writeInvalidRequest(w, "is_readまたはis_starredのいずれかを指定してください。")
		return
	}

	if err := h.store.SetArticleState(r.Context(), articleID, req.IsRead, req.IsStarred); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			middleware.WriteError(w, model.NewArticleNotFoundError(articleID))
			return
		}
		middleware.WriteError(w, &model.StorageError{Op: "set_article_state", Err: err})
		return
	}

	article, err := h.store.FindArticle(r.Context(), articleID)
	if err != nil {
		middleware.WriteError(w, &model.StorageError{Op: "find_article", Err: err})
		return
	}
	if article == nil {
		middleware.WriteError(w, model.NewArticleNotFoundError(articleID))
		return
	}
	writeJSON(w, http.StatusOK, toArticleResponse(*article, h.sanitizer))
}

// parseLimit はlimitクエリを解釈する。未指定は既定値、上限を超える値は上限に丸める。
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultArticleLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("invalid limit")
	}
	return min(n, maxArticleLimit), nil
}
