package feed

import (
	"github.com/mmcdole/gofeed/json"

	"github.com/hitoshi/feedpipe/internal/model"
)

func normalizeJSON(f *json.Feed, baseURL string) *model.ParsedFeed {
	resolver := newURLResolver(f.HomePageURL, baseURL)

	out := &model.ParsedFeed{
		Title:       firstNonEmpty(f.Title),
		Description: firstNonEmpty(f.Description),
		SiteURL:     resolver.resolve(f.HomePageURL),
		IconURL:     resolver.resolve(firstNonEmpty(f.Icon, f.Favicon)),
		Articles:    make([]model.ParsedArticle, 0, len(f.Items)),
	}
	feedAuthor := jsonAuthor(f.Author, f.Authors)

	for _, item := range f.Items {
		if item == nil {
			continue
		}
		link := resolver.resolve(firstNonEmpty(item.URL, item.ExternalURL))
		if link == "" {
			continue
		}

		out.Articles = append(out.Articles, model.ParsedArticle{
			ID:          firstNonEmpty(item.ID, link),
			Title:       articleTitle(item.Title, item.Summary),
			URL:         link,
			Content:     firstNonEmpty(item.ContentHTML, item.ContentText, item.Summary),
			Summary:     firstNonEmpty(item.Summary),
			Author:      firstNonEmpty(jsonAuthor(item.Author, item.Authors), feedAuthor),
			PublishedAt: parseDate(item.DatePublished),
			ImageURL:    resolver.resolve(firstNonEmpty(item.Image, item.BannerImage)),
		})
	}
	return out
}

// jsonAuthor はversion 1.0のauthor、無ければversion 1.1のauthorsの先頭の名前を返す。
func jsonAuthor(author *json.Author, authors []*json.Author) string {
	if author != nil && author.Name != "" {
		return author.Name
	}
	for _, a := range authors {
		if a != nil && a.Name != "" {
			return a.Name
		}
	}
	return ""
}
