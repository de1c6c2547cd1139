package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/subscription"
)

// maxOPMLSize はインポートするOPMLファイルの最大サイズ（1MB）。
const maxOPMLSize = 1 << 20

// OPMLService はOPMLの入出力を行うインターフェース。
type OPMLService interface {
	ImportOPML(ctx context.Context, data []byte) (*subscription.ImportResult, error)
	ExportOPML(ctx context.Context, title string) (string, error)
}

// OPMLHandler はOPMLインポート・エクスポートのHTTPハンドラー。
type OPMLHandler struct {
	service OPMLService
}

// NewOPMLHandler はOPMLHandlerを生成する。
func NewOPMLHandler(service OPMLService) *OPMLHandler {
	return &OPMLHandler{service: service}
}

// Import はリクエストボディのOPMLを読み込み、未登録のフィードを追加する。
// POST /api/opml/import
func (h *OPMLHandler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOPMLSize))
	if err != nil {
		writeInvalidRequest(w, "OPMLの読み込みに失敗しました。ファイルサイズは1MB以下にしてください。")
		return
	}

	result, err := h.service.ImportOPML(r.Context(), data)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Export は登録済みフィードをOPMLとしてダウンロードさせる。
// GET /api/opml/export?title=
func (h *OPMLHandler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.service.ExportOPML(r.Context(), r.URL.Query().Get("title"))
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.opml"`)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, doc)
}
