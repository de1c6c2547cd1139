package feed

import (
	"context"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hitoshi/feedpipe/internal/fetcher"
)

// iconTimeout はアイコン確認のタイムアウト。
const iconTimeout = 5 * time.Second

// IconResolver はフィードがアイコンを宣言していない場合に
// サイトの/favicon.icoが画像として取得できるかを確認する。
type IconResolver struct {
	client fetcher.Client
	logger *slog.Logger
}

// NewIconResolver はIconResolverを生成する。
func NewIconResolver(client fetcher.Client, logger *slog.Logger) *IconResolver {
	return &IconResolver{client: client, logger: logger}
}

// ResolveIcon はサイトURLからアイコンURLを推測して返す。
// 取得できない場合は空文字列を返し、エラーにはしない。
func (r *IconResolver) ResolveIcon(ctx context.Context, siteURL string) string {
	iconURL := faviconURL(siteURL)
	if iconURL == "" {
		return ""
	}

	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "image/*")

	resp, err := r.client.Fetch(ctx, iconURL, h, iconTimeout)
	if err != nil {
		r.logger.Debug("アイコン取得に失敗しました", slog.String("url", iconURL), slog.String("error", err.Error()))
		return ""
	}
	if !resp.IsSuccess() || len(resp.Body) == 0 {
		return ""
	}

	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !isImageType(mediaType) {
		r.logger.Debug("アイコンが画像ではありません",
			slog.String("url", iconURL),
			slog.String("content_type", resp.Header.Get("Content-Type")),
		)
		return ""
	}
	return iconURL
}

// faviconURL はサイトURLのオリジン直下の/favicon.icoを返す。
func faviconURL(siteURL string) string {
	u, ok := absoluteHTTPURL(siteURL)
	if !ok {
		return ""
	}
	return (&url.URL{Scheme: strings.ToLower(u.Scheme), Host: u.Host, Path: "/favicon.ico"}).String()
}
