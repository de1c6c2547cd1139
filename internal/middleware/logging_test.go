package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// decodeAccessLog は1行分のJSONログをmapに変換する。
func decodeAccessLog(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONログの解析に失敗: %v\nraw: %s", err, buf.String())
	}
	return entry
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"feeds":[]}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/feeds", nil)
	req.RemoteAddr = "203.0.113.7:4321"
	h.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeAccessLog(t, &buf)
	if entry["msg"] != "http_request" {
		t.Errorf("msg = %v, want http_request", entry["msg"])
	}
	if entry["method"] != "GET" || entry["path"] != "/api/feeds" {
		t.Errorf("method/path = %v %v", entry["method"], entry["path"])
	}
	// WriteHeaderを呼ばないWriteは200として記録される
	if entry["status"] != float64(200) {
		t.Errorf("status = %v, want 200", entry["status"])
	}
	if entry["bytes"] != float64(len(`{"feeds":[]}`)) {
		t.Errorf("bytes = %v", entry["bytes"])
	}
	if entry["remote_addr"] != "203.0.113.7:4321" {
		t.Errorf("remote_addr = %v", entry["remote_addr"])
	}
	if d, ok := entry["duration_ms"].(float64); !ok || d < 0 {
		t.Errorf("duration_ms = %v", entry["duration_ms"])
	}
	if _, ok := entry["request_id"]; ok {
		t.Error("RequestIDミドルウェアが無い場合request_idは出力されないべき")
	}
	if _, ok := entry["route"]; ok {
		t.Error("ルーター外ではrouteは出力されないべき")
	}
}

func TestLoggingMiddleware_EmptyResponseIs200(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	entry := decodeAccessLog(t, &buf)
	if entry["status"] != float64(200) || entry["bytes"] != float64(0) {
		t.Errorf("status/bytes = %v/%v, want 200/0", entry["status"], entry["bytes"])
	}
}

func TestLoggingMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string // 空文字列はInfoレベルのロガーでは出力されないことを表す
	}{
		{"成功", "/api/articles", http.StatusOK, "INFO"},
		{"受理", "/api/refresh", http.StatusAccepted, "INFO"},
		{"クライアントエラー", "/api/feeds", http.StatusBadRequest, "WARN"},
		{"競合", "/api/refresh", http.StatusConflict, "WARN"},
		{"上流エラー", "/api/feeds", http.StatusBadGateway, "ERROR"},
		{"ヘルスチェック", "/health", http.StatusOK, ""},
		{"メトリクス", "/metrics", http.StatusOK, ""},
		{"ヘルスチェック失敗", "/health", http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

			h := NewLoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			if tt.wantLevel == "" {
				if buf.Len() != 0 {
					t.Errorf("Debugで記録されるべき: %s", buf.String())
				}
				return
			}
			entry := decodeAccessLog(t, &buf)
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
		})
	}
}

func TestLoggingMiddleware_RouteAndRequestIDFromRouter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(NewLoggingMiddleware(logger))
	r.Post("/api/feeds/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/feeds/feed-1/refresh", nil)
	req.Header.Set(chimw.RequestIDHeader, "req-123")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entry := decodeAccessLog(t, &buf)
	if entry["route"] != "/api/feeds/{id}/refresh" {
		t.Errorf("route = %v, want /api/feeds/{id}/refresh", entry["route"])
	}
	if entry["path"] != "/api/feeds/feed-1/refresh" {
		t.Errorf("path = %v", entry["path"])
	}
	if entry["request_id"] != "req-123" {
		t.Errorf("request_id = %v, want req-123", entry["request_id"])
	}
}
