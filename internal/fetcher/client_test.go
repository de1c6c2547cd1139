package fetcher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedpipe/internal/model"
)

// --- モック定義 ---

type mockSSRFValidator struct {
	validateFunc func(rawURL string) error
}

func (m *mockSSRFValidator) ValidateURL(rawURL string) error {
	if m.validateFunc != nil {
		return m.validateFunc(rawURL)
	}
	return nil
}

func (m *mockSSRFValidator) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

type mockMetrics struct {
	statuses  []int
	latencies int
}

func (m *mockMetrics) RecordHTTPStatus(statusCode int) {
	m.statuses = append(m.statuses, statusCode)
}

func (m *mockMetrics) RecordFetchLatency(duration time.Duration) {
	m.latencies++
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func TestHTTPClient_Fetch_SendsHeadersAndReturnsBody(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	metrics := &mockMetrics{}
	c := NewHTTPClient(nil, metrics, newTestLogger(&buf), 0)

	header := http.Header{}
	header.Set("User-Agent", "test-agent")
	header.Set("Accept", "text/html")

	resp, err := c.Fetch(context.Background(), server.URL, header, time.Second)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if string(resp.Body) != "hello" {
		t.Errorf("Body = %q, want %q", resp.Body, "hello")
	}
	if !resp.IsSuccess() {
		t.Errorf("IsSuccess() = false, want true (status %d)", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
	if gotUA != "test-agent" || gotAccept != "text/html" {
		t.Errorf("送信ヘッダーが一致しない: UA=%q Accept=%q", gotUA, gotAccept)
	}
	if len(metrics.statuses) != 1 || metrics.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", metrics.statuses)
	}
	if metrics.latencies != 1 {
		t.Errorf("latencies = %d, want 1", metrics.latencies)
	}
}

func TestHTTPClient_Fetch_Non2xxIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHTTPClient(nil, nil, newTestLogger(&buf), 0)

	resp, err := c.Fetch(context.Background(), server.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("予期しないエラー: %v", err)
	}
	if resp.IsSuccess() {
		t.Error("404はIsSuccess() = falseであるべき")
	}
}

func TestHTTPClient_Fetch_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHTTPClient(nil, nil, newTestLogger(&buf), 10)

	_, err := c.Fetch(context.Background(), server.URL, nil, time.Second)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("err = %v, want ErrBodyTooLarge", err)
	}
	if !model.IsNetworkError(err) {
		t.Errorf("NetworkErrorであるべき: %T", err)
	}
}

func TestHTTPClient_Fetch_ConnectionFailureIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	c := NewHTTPClient(nil, nil, newTestLogger(&buf), 0)

	_, err := c.Fetch(context.Background(), url, nil, time.Second)
	if !model.IsNetworkError(err) {
		t.Errorf("NetworkErrorであるべき: %v", err)
	}
}

func TestHTTPClient_Fetch_SSRFBlocked(t *testing.T) {
	var buf bytes.Buffer
	guard := &mockSSRFValidator{
		validateFunc: func(rawURL string) error { return errors.New("blocked IP address") },
	}
	c := NewHTTPClient(guard, nil, newTestLogger(&buf), 0)

	_, err := c.Fetch(context.Background(), "http://127.0.0.1/feed", nil, time.Second)
	if !model.IsNetworkError(err) {
		t.Errorf("NetworkErrorであるべき: %v", err)
	}
	if !errors.Is(err, model.ErrSSRFBlocked) {
		t.Errorf("ErrSSRFBlockedをラップするべき: %v", err)
	}
	if got := model.ToAPIError(err).Code; got != model.ErrCodeSSRFBlocked {
		t.Errorf("APIErrorのコード = %q, want %q", got, model.ErrCodeSSRFBlocked)
	}
	if !strings.Contains(buf.String(), "SSRF検証に失敗しました") {
		t.Errorf("SSRFブロックのログが出力されるべき: %s", buf.String())
	}
}

func TestHTTPClient_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewHTTPClient(nil, nil, newTestLogger(&buf), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, server.URL, nil, time.Second)
	if !model.IsNetworkError(err) {
		t.Errorf("NetworkErrorであるべき: %v", err)
	}
}
