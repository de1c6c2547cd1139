package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer はフィード由来の記事HTMLをAPI応答前に無害化する。
// 保存済みの本文は正規化結果のまま保持し、表示用に出力する時点でのみ適用する。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerを生成する。
//   - 段落・見出し・リスト・引用・コード・強調・図版を許可
//   - script/style/iframeとon*属性は除去
//   - a/imgは http/https の絶対URLのみ許可し、リンクには rel="noopener noreferrer" と target="_blank" を付与
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h1", "h2", "h3", "h4", "h5", "h6",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "b", "em", "i",
		"figure", "figcaption",
	)

	p.AllowStandardURLs()
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)

	p.AllowAttrs("href").OnElements("a")
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTML文字列を無害化して返す。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
