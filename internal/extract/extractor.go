// Package extract は記事ページのHTMLから本文を特定し、
// 見出し・リスト・リンクなどを軽量なmarkdown記法で残したテキストに変換する。
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/patrickmn/go-cache"

	"github.com/hitoshi/feedpipe/internal/fetcher"
	"github.com/hitoshi/feedpipe/internal/metrics"
	"github.com/hitoshi/feedpipe/internal/model"
)

const (
	// browserUserAgent は記事ページ取得時に名乗るデスクトップブラウザのUser-Agent。
	browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15"
	htmlAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

	// fetchTimeout は記事ページ取得のタイムアウト。
	fetchTimeout = 30 * time.Second

	// minContentLength は本文候補として採用する最小文字数（この値を超える必要がある）。
	minContentLength = 100
)

// MetricsRecorder は抽出結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordExtraction(outcome string, duration time.Duration)
}

// Extractor は記事URLから本文を取得・抽出する。
// 成功した抽出結果はURL単位でキャッシュする。
type Extractor struct {
	client  fetcher.Client
	cache   *cache.Cache
	metrics MetricsRecorder
	logger  *slog.Logger
}

// NewExtractor はExtractorを生成する。cacheTTLが0以下の場合はキャッシュしない。
func NewExtractor(client fetcher.Client, metrics MetricsRecorder, logger *slog.Logger, cacheTTL time.Duration) *Extractor {
	e := &Extractor{
		client:  client,
		metrics: metrics,
		logger:  logger,
	}
	if cacheTTL > 0 {
		e.cache = cache.New(cacheTTL, 2*cacheTTL)
	}
	return e
}

// Extract は記事URLを取得して本文を抽出する。
// 通信失敗と2xx以外の応答はNetworkError、デコード失敗はEncodingErrorを返す。
func (e *Extractor) Extract(ctx context.Context, articleURL string) (string, error) {
	start := time.Now()

	if e.cache != nil {
		if v, ok := e.cache.Get(articleURL); ok {
			e.record(metrics.ExtractionCacheHit, start)
			return v.(string), nil
		}
	}

	content, err := e.fetchAndExtract(ctx, articleURL)
	if err != nil {
		outcome := metrics.ExtractionError
		if model.IsNoContentError(err) {
			outcome = metrics.ExtractionNoContent
		}
		e.record(outcome, start)
		e.logger.Warn("本文の抽出に失敗しました",
			slog.String("url", articleURL),
			slog.String("error", err.Error()),
		)
		return "", err
	}

	if e.cache != nil {
		e.cache.SetDefault(articleURL, content)
	}
	e.record(metrics.ExtractionSuccess, start)
	e.logger.Debug("本文を抽出しました",
		slog.String("url", articleURL),
		slog.Int("length", utf8.RuneCountInString(content)),
		slog.Duration("duration", time.Since(start)),
	)
	return content, nil
}

func (e *Extractor) fetchAndExtract(ctx context.Context, articleURL string) (string, error) {
	h := http.Header{}
	h.Set("User-Agent", browserUserAgent)
	h.Set("Accept", htmlAccept)

	resp, err := e.client.Fetch(ctx, articleURL, h, fetchTimeout)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", &model.NetworkError{URL: articleURL, Err: fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)}
	}

	page, err := decode(resp.Body, detectEncoding(resp.Header.Get("Content-Type"), resp.Body))
	if err != nil {
		return "", err
	}

	content, err := ExtractHTML(page)
	if model.IsNoContentError(err) {
		return "", &model.NoContentError{URL: articleURL}
	}
	return content, err
}

func (e *Extractor) record(outcome string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordExtraction(outcome, time.Since(start))
	}
}

// ExtractHTML はHTML文字列から本文を抽出する。
// 除去対象の要素を取り除いた後、候補セレクタを先頭から評価し、
// 100文字を超えた最初の候補を採用する。該当が無ければ<body>全体を使う。
func ExtractHTML(page string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", &model.ParseError{Source: "html", Err: err}
	}

	doc.Find(strings.Join(removeSelectors, ", ")).Remove()

	for _, selector := range contentSelectors {
		candidate := doc.Find(selector).First()
		if candidate.Length() == 0 {
			continue
		}
		if content := serialize(candidate); utf8.RuneCountInString(content) > minContentLength {
			return content, nil
		}
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		if content := serialize(body); content != "" {
			return content, nil
		}
	}
	return "", &model.NoContentError{}
}
