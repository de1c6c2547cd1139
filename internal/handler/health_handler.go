package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker はストレージの疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthTimeout はヘルスチェック時の疎通確認のタイムアウト。
const healthTimeout = 2 * time.Second

// NewHealthHandler はヘルスチェック用のハンドラーを返す。
// checkerがnilの場合（メモリストア利用時）は常に200を返す。
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
