package feed

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed/atom"

	"github.com/hitoshi/feedpipe/internal/model"
)

func normalizeAtom(f *atom.Feed, baseURL string) *model.ParsedFeed {
	siteURL := atomSiteURL(f.Links)
	resolver := newURLResolver(siteURL, baseURL)

	out := &model.ParsedFeed{
		Title:       firstNonEmpty(f.Title),
		Description: firstNonEmpty(f.Subtitle),
		SiteURL:     resolver.resolve(siteURL),
		IconURL:     resolver.resolve(firstNonEmpty(f.Icon, f.Logo)),
		Articles:    make([]model.ParsedArticle, 0, len(f.Entries)),
	}

	for _, entry := range f.Entries {
		if entry == nil {
			continue
		}
		link := resolver.resolve(atomEntryLink(entry.Links))
		if link == "" {
			continue
		}

		var content string
		if entry.Content != nil {
			content = entry.Content.Value
		}
		var author string
		if len(entry.Authors) > 0 && entry.Authors[0] != nil {
			author = entry.Authors[0].Name
		}

		out.Articles = append(out.Articles, model.ParsedArticle{
			ID:          firstNonEmpty(entry.ID, link),
			Title:       articleTitle(entry.Title, entry.Summary),
			URL:         link,
			Content:     firstNonEmpty(content, entry.Summary),
			Summary:     firstNonEmpty(entry.Summary),
			Author:      firstNonEmpty(author),
			PublishedAt: atomPublished(entry),
			ImageURL:    resolver.resolve(atomImage(entry)),
		})
	}
	return out
}

// atomEntryLink はrel="alternate"のリンク、無ければ先頭のリンクを返す。
// relが省略されたリンクはパーサーがalternateとして扱う。
func atomEntryLink(links []*atom.Link) string {
	var first string
	for _, l := range links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		if strings.EqualFold(l.Rel, "alternate") {
			return l.Href
		}
		if first == "" {
			first = l.Href
		}
	}
	return first
}

// atomSiteURL はalternate、text/html、先頭リンクの順でサイトURLを選ぶ。
func atomSiteURL(links []*atom.Link) string {
	var html, first string
	for _, l := range links {
		if l == nil || strings.TrimSpace(l.Href) == "" {
			continue
		}
		if strings.EqualFold(l.Rel, "alternate") {
			return l.Href
		}
		if html == "" && strings.EqualFold(l.Type, "text/html") {
			html = l.Href
		}
		if first == "" {
			first = l.Href
		}
	}
	return firstNonEmpty(html, first)
}

func atomPublished(entry *atom.Entry) *time.Time {
	for _, t := range []*time.Time{entry.PublishedParsed, entry.UpdatedParsed} {
		if t != nil {
			u := t.UTC()
			return &u
		}
	}
	return parseDate(firstNonEmpty(entry.Published, entry.Updated))
}

// atomImage はmedia:content、media:thumbnail、画像タイプのリンクの順で代表画像を探す。
func atomImage(entry *atom.Entry) string {
	if u := mediaImage(entry.Extensions); u != "" {
		return u
	}
	for _, l := range entry.Links {
		if l != nil && isImageType(l.Type) && l.Href != "" {
			return l.Href
		}
	}
	return ""
}
