// Package feed はRSS 2.0・Atom・JSON Feedを共通の記事モデルに正規化し、
// URLからのフィード取得と自動検出を提供する。
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/feedpipe/internal/fetcher"
	"github.com/hitoshi/feedpipe/internal/model"
)

// userAgent はフィード取得時のUser-Agent。
const userAgent = "feedpipe/1.0 (+https://github.com/hitoshi/feedpipe)"

// feedAccept はフィード取得時のAcceptヘッダー。
const feedAccept = "application/rss+xml, application/atom+xml, application/feed+json, application/json;q=0.9, application/xml;q=0.9, text/xml;q=0.9, */*;q=0.8"

// Parser はURLからフィードを取得して正規化する。
type Parser struct {
	client  fetcher.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewParser はParserを生成する。timeoutが0以下の場合はfetcher.DefaultTimeoutを使う。
func NewParser(client fetcher.Client, logger *slog.Logger, timeout time.Duration) *Parser {
	if timeout <= 0 {
		timeout = fetcher.DefaultTimeout
	}
	return &Parser{client: client, logger: logger, timeout: timeout}
}

// ParseURL はフィードURLを取得して正規化する。
// 通信失敗はNetworkError、2xx以外のステータスや解釈できない内容はParseErrorを返す。
func (p *Parser) ParseURL(ctx context.Context, feedURL string) (*model.ParsedFeed, error) {
	resp, err := p.client.Fetch(ctx, feedURL, feedHeaders(), p.timeout)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		p.logger.Warn("フィード取得でエラーステータスを受信しました",
			slog.String("url", feedURL),
			slog.Int("status", resp.StatusCode),
		)
		return nil, &model.ParseError{
			Source: "feed",
			Err:    fmt.Errorf("unexpected HTTP status %d", resp.StatusCode),
		}
	}

	parsed, err := Normalize(resp.Body, resp.URL)
	if err != nil {
		p.logger.Warn("フィードの解析に失敗しました",
			slog.String("url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	p.logger.Debug("フィードを解析しました",
		slog.String("url", feedURL),
		slog.Int("articles", len(parsed.Articles)),
	)
	return parsed, nil
}

func feedHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", feedAccept)
	return h
}
