package feed

import (
	"net/url"
	"strings"
	"unicode/utf8"

	ext "github.com/mmcdole/gofeed/extensions"
)

// titleFallbackLength はタイトルが無い記事で説明文から切り出す文字数。
const titleFallbackLength = 100

// firstNonEmpty は前後の空白を除いて最初に空でない値を返す。
// 各マッピングの優先順位はこの引数順で表す。
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// truncateRunes は先頭からn文字（rune単位）を返す。
func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n]))
}

// articleTitle はタイトル、無ければ説明文の先頭100文字を返す。
func articleTitle(title, description string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return truncateRunes(description, titleFallbackLength)
}

// urlResolver は記事URLの相対参照をサイトURL、次にフィードURLを基準に解決する。
type urlResolver struct {
	bases []*url.URL
}

func newURLResolver(candidates ...string) urlResolver {
	var r urlResolver
	for _, c := range candidates {
		if u, ok := absoluteHTTPURL(c); ok {
			r.bases = append(r.bases, u)
		}
	}
	return r
}

// resolve はrawを絶対http(s) URLに解決する。解決できない場合は空文字列を返す。
func (r urlResolver) resolve(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if u, ok := absoluteHTTPURL(raw); ok {
		return u.String()
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	for _, base := range r.bases {
		if u, ok := absoluteHTTPURL(base.ResolveReference(ref).String()); ok {
			return u.String()
		}
	}
	return ""
}

// absoluteHTTPURL はホストを持つhttp/httpsの絶対URLかどうかを判定する。
func absoluteHTTPURL(raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Host == "" {
		return nil, false
	}
	return u, true
}

func isImageType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

// mediaImage はMedia RSS拡張から代表画像を探す。
// media:content（画像のもの）、media:thumbnail の順に評価し、media:group内も対象とする。
func mediaImage(exts ext.Extensions) string {
	media, ok := exts["media"]
	if !ok {
		return ""
	}

	contents := media["content"]
	thumbnails := media["thumbnail"]
	for _, group := range media["group"] {
		contents = append(contents, group.Children["content"]...)
		thumbnails = append(thumbnails, group.Children["thumbnail"]...)
	}

	for _, c := range contents {
		u := c.Attrs["url"]
		if u == "" {
			continue
		}
		medium := strings.ToLower(c.Attrs["medium"])
		if medium == "image" || isImageType(c.Attrs["type"]) || (medium == "" && c.Attrs["type"] == "") {
			return u
		}
	}
	for _, th := range thumbnails {
		if u := th.Attrs["url"]; u != "" {
			return u
		}
	}
	return ""
}
