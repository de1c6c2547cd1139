package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/model"
)

// BulkRefresher は登録済み全フィードの一括リフレッシュを行うインターフェース。
type BulkRefresher interface {
	RefreshStored(ctx context.Context) (model.RefreshReport, error)
	IsRefreshing() bool
	Progress() (completed, total int)
}

// RefreshHandler は一括リフレッシュのHTTPハンドラー。
type RefreshHandler struct {
	refresher BulkRefresher
	logger    *slog.Logger

	mu   sync.Mutex
	last *model.RefreshReport
	wg   sync.WaitGroup
}

// NewRefreshHandler はRefreshHandlerを生成する。
func NewRefreshHandler(refresher BulkRefresher, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{refresher: refresher, logger: logger}
}

// refreshStatusResponse はリフレッシュ状態のAPIレスポンス。
type refreshStatusResponse struct {
	Running    bool            `json:"running"`
	Completed  int             `json:"completed"`
	Total      int             `json:"total"`
	LastReport *reportResponse `json:"last_report,omitempty"`
}

// Refresh は一括リフレッシュを開始する。
// 既定ではバックグラウンドで実行して202を返す。?wait=true の場合は完了を待って結果を返す。
// POST /api/refresh
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.refresher.IsRefreshing() {
		middleware.WriteError(w, model.NewRefreshRunningError())
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		report, err := h.run(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		if report.Skipped {
			middleware.WriteError(w, model.NewRefreshRunningError())
			return
		}
		writeJSON(w, http.StatusOK, toReportResponse(report))
		return
	}

	// リクエスト終了後も処理を続けるため、キャンセルを引き継がない
	ctx := context.WithoutCancel(r.Context())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if _, err := h.run(ctx); err != nil {
			h.logger.Error("一括リフレッシュに失敗しました", slog.String("error", err.Error()))
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// Status は実行状態と直近のリフレッシュ結果を返す。
// GET /api/refresh/status
func (h *RefreshHandler) Status(w http.ResponseWriter, r *http.Request) {
	completed, total := h.refresher.Progress()
	resp := refreshStatusResponse{
		Running:   h.refresher.IsRefreshing(),
		Completed: completed,
		Total:     total,
	}

	h.mu.Lock()
	if h.last != nil {
		report := toReportResponse(*h.last)
		resp.LastReport = &report
	}
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

// Wait はバックグラウンドで開始したリフレッシュの完了を待つ。
func (h *RefreshHandler) Wait() {
	h.wg.Wait()
}

func (h *RefreshHandler) run(ctx context.Context) (model.RefreshReport, error) {
	report, err := h.refresher.RefreshStored(ctx)
	if err != nil {
		return report, err
	}
	if !report.Skipped {
		h.mu.Lock()
		h.last = &report
		h.mu.Unlock()
	}
	return report, nil
}
