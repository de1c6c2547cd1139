package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/feedpipe/internal/model"
	"github.com/hitoshi/feedpipe/internal/repository"
)

// --- テストヘルパー ---

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// seedStore はフィード1件と記事3件を登録したMemoryStoreを返す。
func seedStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	store := repository.NewMemoryStore()

	day := func(d int) *time.Time {
		ts := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}
	feed := &model.Feed{ID: "feed-1", FeedURL: "https://blog.example.com/feed", Title: "Example Blog"}
	articles := []model.Article{
		{ID: "a1", Title: "Learning Go", URL: "https://blog.example.com/go", Content: `<p>go</p><script>alert(1)</script>`, PublishedAt: day(1)},
		{ID: "a2", Title: "Rust notes", URL: "https://blog.example.com/rust", Content: "<p>rust</p>", PublishedAt: day(2)},
		{ID: "a3", Title: "Go generics", URL: "https://blog.example.com/generics", Content: "<p>generics</p>", PublishedAt: day(3)},
	}
	if err := store.Create(context.Background(), feed, articles); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return store
}
