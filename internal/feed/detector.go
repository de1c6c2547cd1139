package feed

import (
	"bytes"
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/feedpipe/internal/fetcher"
	"github.com/hitoshi/feedpipe/internal/model"
)

// Candidate はHTMLの<link rel="alternate">から検出したフィード候補。
type Candidate struct {
	URL     string
	Dialect Dialect
	Title   string
}

// linkTypes は<link type>とフィード形式の対応。
var linkTypes = map[string]Dialect{
	"application/rss+xml":   DialectRSS,
	"application/rdf+xml":   DialectRSS,
	"application/atom+xml":  DialectAtom,
	"application/feed+json": DialectJSON,
	"application/json":      DialectJSON,
}

// Discovery はフィード検出の結果。
// 入力URLがそのままフィードだった場合は取得済みの本文をFeedに保持する。
type Discovery struct {
	FeedURL string
	Feed    *model.ParsedFeed
}

// Detector は入力URLがフィードかHTMLページかを判定し、フィードURLを特定する。
type Detector struct {
	client  fetcher.Client
	logger  *slog.Logger
	timeout time.Duration
}

// NewDetector はDetectorを生成する。
func NewDetector(client fetcher.Client, logger *slog.Logger, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = fetcher.DefaultTimeout
	}
	return &Detector{client: client, logger: logger, timeout: timeout}
}

// Discover は入力URLを取得し、フィードであれば正規化結果を、
// HTMLであれば<head>内のリンクから最適なフィードURLを返す。
func (d *Detector) Discover(ctx context.Context, inputURL string) (*Discovery, error) {
	if inputURL == "" {
		return nil, model.NewInvalidURLError("URLが入力されていません")
	}

	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", feedAccept+", text/html;q=0.7")

	resp, err := d.client.Fetch(ctx, inputURL, h, d.timeout)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, model.NewFetchFailedError("HTTPステータス " + http.StatusText(resp.StatusCode))
	}

	if _, ok := DetectDialect(resp.Body); ok {
		parsed, err := Normalize(resp.Body, resp.URL)
		if err != nil {
			return nil, err
		}
		return &Discovery{FeedURL: resp.URL, Feed: parsed}, nil
	}

	if !isHTML(resp.Header.Get("Content-Type"), resp.Body) {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	candidates := ParseFeedLinks(resp.Body, resp.URL)
	best := SelectBest(candidates, resp.URL)
	if best == nil {
		return nil, model.NewFeedNotDetectedError(inputURL)
	}

	d.logger.Info("HTMLからフィードを検出しました",
		slog.String("page", inputURL),
		slog.String("feed", best.URL),
		slog.Int("candidates", len(candidates)),
	)
	return &Discovery{FeedURL: best.URL}, nil
}

func isHTML(contentType string, body []byte) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return strings.Contains(mediaType, "html")
	}
	prefix := bytes.ToLower(body[:min(len(body), 512)])
	return bytes.Contains(prefix, []byte("<html")) || bytes.Contains(prefix, []byte("<!doctype html"))
}

// ParseFeedLinks はHTMLの<head>からフィードを指す<link rel="alternate">を抽出する。
// 相対URLはbaseURLを基準に解決する。<body>に到達した時点で走査を終える。
func ParseFeedLinks(body []byte, baseURL string) []Candidate {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var candidates []Candidate
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return candidates

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "head" {
				return candidates
			}

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "body":
				return candidates
			case "link":
				if !hasAttr {
					continue
				}
				if c, ok := linkCandidate(z, base); ok {
					candidates = append(candidates, c)
				}
			}
		}
	}
}

func linkCandidate(z *html.Tokenizer, base *url.URL) (Candidate, bool) {
	var rel, typ, href, title string
	for more := true; more; {
		var key, val []byte
		key, val, more = z.TagAttr()
		switch strings.ToLower(string(key)) {
		case "rel":
			rel = strings.ToLower(string(val))
		case "type":
			typ = strings.ToLower(strings.TrimSpace(string(val)))
		case "href":
			href = strings.TrimSpace(string(val))
		case "title":
			title = string(val)
		}
	}

	if href == "" || !containsToken(rel, "alternate") {
		return Candidate{}, false
	}
	dialect, ok := linkTypes[typ]
	if !ok {
		return Candidate{}, false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return Candidate{}, false
	}
	return Candidate{URL: base.ResolveReference(ref).String(), Dialect: dialect, Title: title}, true
}

func containsToken(list, token string) bool {
	for _, f := range strings.Fields(list) {
		if f == token {
			return true
		}
	}
	return false
}

// SelectBest は候補から1件を選ぶ。
// 入力と同じホストを優先し、同点ならAtom、JSON Feed、RSSの順、さらに同点なら先に現れたものを選ぶ。
func SelectBest(candidates []Candidate, pageURL string) *Candidate {
	if len(candidates) == 0 {
		return nil
	}

	pageHost := hostOf(pageURL)
	best, bestScore := 0, -1
	for i, c := range candidates {
		score := 0
		if hostOf(c.URL) == pageHost {
			score += 100
		}
		switch c.Dialect {
		case DialectAtom:
			score += 10
		case DialectJSON:
			score += 5
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return &candidates[best]
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
