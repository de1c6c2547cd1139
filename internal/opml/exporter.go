package opml

import (
	"sort"
	"strings"
	"time"
)

// DefaultTitle はエクスポート時のデフォルトのドキュメントタイトル。
const DefaultTitle = "RSS Subscriptions"

// rfc822Layout はdateCreatedに使用するRFC-822形式の日時レイアウト。
const rfc822Layout = "Mon, 02 Jan 2006 15:04:05 -0700"

// Outline はエクスポート時のアウトライン木のノードを表す。
// FeedURLが空のノードはフォルダで、Childrenにフィードを持つ。
type Outline struct {
	Title    string
	FeedURL  string
	SiteURL  string
	Children []Outline
}

// IsFolder はノードがフォルダかどうかを返す。
func (o Outline) IsFolder() bool {
	return o.FeedURL == ""
}

// Tree はフラットなEntry列をアウトライン木に変換する。
// フォルダなしのフィードを入力順に先頭に並べ、続いてフォルダ名の昇順でフォルダを並べる。
// 各フォルダ内のフィードは入力順を保つ。
func Tree(entries []Entry) []Outline {
	var roots []Outline
	byFolder := make(map[string][]Outline)
	var folders []string

	for _, e := range entries {
		leaf := Outline{Title: e.Title, FeedURL: e.FeedURL, SiteURL: e.SiteURL}
		if e.Folder == "" {
			roots = append(roots, leaf)
			continue
		}
		if _, ok := byFolder[e.Folder]; !ok {
			folders = append(folders, e.Folder)
		}
		byFolder[e.Folder] = append(byFolder[e.Folder], leaf)
	}

	sort.Strings(folders)
	for _, name := range folders {
		roots = append(roots, Outline{Title: name, Children: byFolder[name]})
	}
	return roots
}

// Export は現在時刻をdateCreatedとしてOPML文字列を生成する。
func Export(entries []Entry, title string) string {
	return ExportAt(entries, title, time.Now())
}

// ExportAt は指定時刻をdateCreatedとしてOPML文字列を生成する。
// 同じ入力に対して常に同じ出力を返す。titleが空の場合はDefaultTitleを使用する。
func ExportAt(entries []Entry, title string, now time.Time) string {
	if title == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<opml version="2.0">` + "\n")
	b.WriteString("    <head>\n")
	b.WriteString("        <title>" + escape(title) + "</title>\n")
	b.WriteString("        <dateCreated>" + now.Format(rfc822Layout) + "</dateCreated>\n")
	b.WriteString("    </head>\n")
	b.WriteString("    <body>\n")

	for _, node := range Tree(entries) {
		if !node.IsFolder() {
			b.WriteString("        " + leafElement(node) + "\n")
			continue
		}
		b.WriteString(`        <outline text="` + escape(node.Title) + `" title="` + escape(node.Title) + `">` + "\n")
		for _, child := range node.Children {
			b.WriteString("            " + leafElement(child) + "\n")
		}
		b.WriteString("        </outline>\n")
	}

	b.WriteString("    </body>\n")
	b.WriteString("</opml>\n")
	return b.String()
}

func leafElement(o Outline) string {
	attrs := []string{
		`type="rss"`,
		`text="` + escape(o.Title) + `"`,
		`title="` + escape(o.Title) + `"`,
		`xmlUrl="` + escape(o.FeedURL) + `"`,
	}
	if o.SiteURL != "" {
		attrs = append(attrs, `htmlUrl="`+escape(o.SiteURL)+`"`)
	}
	return "<outline " + strings.Join(attrs, " ") + "/>"
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func escape(s string) string {
	return xmlEscaper.Replace(s)
}
