// Package fetcher はパイプライン全体で共有するHTTP取得ポートを提供する。
// フィード取得と本文抽出はどちらもこのポート経由でネットワークにアクセスする。
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedpipe/internal/model"
)

// DefaultTimeout は呼び出し側がタイムアウトを指定しなかった場合の上限。
const DefaultTimeout = 30 * time.Second

// DefaultMaxBodySize はレスポンスボディの最大サイズ（5MB）。
const DefaultMaxBodySize = 5 * 1024 * 1024

// ErrBodyTooLarge はレスポンスボディが上限を超えたことを表す。
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// Response は取得結果を表す。ステータスコードの判定は呼び出し側で行う。
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess はステータスコードが2xxかどうかを返す。
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client はネットワーク取得ポートのインターフェース。
// 通信に失敗した場合は *model.NetworkError を返す。
type Client interface {
	Fetch(ctx context.Context, rawURL string, header http.Header, timeout time.Duration) (*Response, error)
}

// SSRFValidator はSSRF検証のインターフェース。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration) *http.Client
}

// MetricsRecorder は取得処理が記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// HTTPClient はClientの実装。
// SSRFValidatorが設定されている場合はsafeurlベースのクライアントで取得する。
type HTTPClient struct {
	guard       SSRFValidator
	metrics     MetricsRecorder
	logger      *slog.Logger
	maxBodySize int64
}

// NewHTTPClient はHTTPClientの新しいインスタンスを生成する。
// guardとmetricsはnilを許容する。maxBodySizeが0以下の場合はDefaultMaxBodySizeを使用する。
func NewHTTPClient(guard SSRFValidator, metrics MetricsRecorder, logger *slog.Logger, maxBodySize int64) *HTTPClient {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		guard:       guard,
		metrics:     metrics,
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// Fetch は指定URLをGETで取得する。
// 2xx以外のレスポンスもエラーにはせず、Responseとして返す。
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string, header http.Header, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	if c.guard != nil {
		if err := c.guard.ValidateURL(rawURL); err != nil {
			c.logger.Warn("SSRF検証に失敗しました",
				slog.String("url", rawURL),
				slog.String("error", err.Error()),
			)
			return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("%w: %w", model.ErrSSRFBlocked, err)}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("リクエスト作成に失敗: %w", err)}
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient(timeout).Do(req)
	if err != nil {
		c.logger.Warn("HTTPリクエストに失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, &model.NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("レスポンス読み取りに失敗: %w", err)}
	}
	if int64(len(body)) > c.maxBodySize {
		return nil, &model.NetworkError{URL: rawURL, Err: ErrBodyTooLarge}
	}

	duration := time.Since(start)
	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordFetchLatency(duration)
	}

	c.logger.Debug("HTTP取得が完了しました",
		slog.String("url", rawURL),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func (c *HTTPClient) httpClient(timeout time.Duration) *http.Client {
	if c.guard != nil {
		return c.guard.NewSafeClient(timeout)
	}
	return &http.Client{Timeout: timeout}
}

var _ Client = (*HTTPClient)(nil)
