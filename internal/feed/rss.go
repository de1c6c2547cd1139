package feed

import (
	"slices"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed/rss"

	"github.com/hitoshi/feedpipe/internal/model"
)

func normalizeRSS(f *rss.Feed, baseURL string) *model.ParsedFeed {
	siteURL := firstNonEmpty(f.Link)
	resolver := newURLResolver(siteURL, baseURL)

	out := &model.ParsedFeed{
		Title:       firstNonEmpty(f.Title),
		Description: firstNonEmpty(f.Description),
		SiteURL:     resolver.resolve(siteURL),
		Articles:    make([]model.ParsedArticle, 0, len(f.Items)),
	}
	if f.Image != nil {
		out.IconURL = resolver.resolve(f.Image.URL)
	}

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		link := resolver.resolve(item.Link)
		if link == "" {
			continue
		}

		var guid string
		if item.GUID != nil {
			guid = item.GUID.Value
		}

		out.Articles = append(out.Articles, model.ParsedArticle{
			ID:          firstNonEmpty(guid, link),
			Title:       articleTitle(item.Title, item.Description),
			URL:         link,
			Content:     firstNonEmpty(item.Content, item.Description),
			Summary:     firstNonEmpty(item.Description),
			Author:      firstNonEmpty(item.Author, dublinCoreCreator(item)),
			PublishedAt: rssPublished(item),
			ImageURL:    resolver.resolve(rssImage(item)),
		})
	}
	return out
}

func dublinCoreCreator(item *rss.Item) string {
	if item.DublinCoreExt == nil {
		return ""
	}
	return firstNonEmpty(slices.Concat(item.DublinCoreExt.Creator, item.DublinCoreExt.Author)...)
}

func rssPublished(item *rss.Item) *time.Time {
	if item.PubDateParsed != nil {
		t := item.PubDateParsed.UTC()
		return &t
	}
	raw := firstNonEmpty(item.PubDate)
	if raw == "" && item.DublinCoreExt != nil {
		raw = firstNonEmpty(item.DublinCoreExt.Date...)
	}
	return parseDate(raw)
}

// rssImage はmedia:content、media:thumbnail、画像のenclosureの順で代表画像を探す。
func rssImage(item *rss.Item) string {
	if u := mediaImage(item.Extensions); u != "" {
		return u
	}
	if item.Enclosure != nil && isImageType(item.Enclosure.Type) && item.Enclosure.URL != "" {
		return item.Enclosure.URL
	}
	for _, enc := range item.Enclosures {
		if enc != nil && isImageType(enc.Type) && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}

// parseDate は形式が決まっていない日時文字列を解釈する。解釈できなければnilを返す。
func parseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
