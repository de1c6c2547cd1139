package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedpipe/internal/filter"
	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/model"
	"github.com/hitoshi/feedpipe/internal/security"
)

// SmartFolderHandler は設定ファイルで定義したスマートフォルダのHTTPハンドラー。
type SmartFolderHandler struct {
	folders   []filter.SmartFolder
	store     ArticleStore
	sanitizer *security.ContentSanitizer
}

// NewSmartFolderHandler はSmartFolderHandlerを生成する。
func NewSmartFolderHandler(folders []filter.SmartFolder, store ArticleStore, sanitizer *security.ContentSanitizer) *SmartFolderHandler {
	return &SmartFolderHandler{folders: folders, store: store, sanitizer: sanitizer}
}

// List はスマートフォルダの定義一覧を返す。
// GET /api/smart-folders
func (h *SmartFolderHandler) List(w http.ResponseWriter, r *http.Request) {
	folders := h.folders
	if folders == nil {
		folders = []filter.SmartFolder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

// Articles はスマートフォルダの条件に一致する記事を新しい順に返す。
// GET /api/smart-folders/{name}/articles?limit=
func (h *SmartFolderHandler) Articles(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	folder, ok := h.find(name)
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, &model.APIError{
			Code:     "SMART_FOLDER_NOT_FOUND",
			Message:  "スマートフォルダが見つかりません: " + name,
			Category: "validation",
			Action:   "設定ファイルのスマートフォルダ名を確認してください。",
		})
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeInvalidRequest(w, "limitには1以上の整数を指定してください。")
		return
	}

	articles, err := h.store.ListArticles(r.Context(), "", maxArticleLimit)
	if err != nil {
		middleware.WriteError(w, &model.StorageError{Op: "list_articles", Err: err})
		return
	}

	matched := folder.Apply(articles)
	if len(matched) > limit {
		matched = matched[:limit]
	}
	writeJSON(w, http.StatusOK, toArticleResponses(matched, h.sanitizer))
}

func (h *SmartFolderHandler) find(name string) (filter.SmartFolder, bool) {
	for _, f := range h.folders {
		if f.Name == name {
			return f, true
		}
	}
	return filter.SmartFolder{}, false
}
