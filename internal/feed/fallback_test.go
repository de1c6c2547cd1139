package feed

import (
	"strings"
	"testing"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
)

func atomLinks(specs []string) []*atom.Link {
	var links []*atom.Link
	for _, s := range specs {
		rel, href, _ := strings.Cut(s, "|")
		links = append(links, &atom.Link{Rel: rel, Href: href})
	}
	return links
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", " b ", "c"); got != "b" {
		t.Errorf("firstNonEmpty = %q, want b", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Errorf("firstNonEmpty() = %q, want empty", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("short", 100); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("日本語のテキスト", 3); got != "日本語" {
		t.Errorf("got %q, want 日本語", got)
	}
}

func TestMediaImage(t *testing.T) {
	tests := []struct {
		name string
		exts ext.Extensions
		want string
	}{
		{name: "拡張無し", exts: nil, want: ""},
		{
			name: "画像のmedia:content",
			exts: ext.Extensions{"media": {"content": {{Attrs: map[string]string{"url": "https://i/1.jpg", "medium": "image"}}}}},
			want: "https://i/1.jpg",
		},
		{
			name: "動画のmedia:contentはthumbnailに譲る",
			exts: ext.Extensions{"media": {
				"content":   {{Attrs: map[string]string{"url": "https://v/1.mp4", "type": "video/mp4"}}},
				"thumbnail": {{Attrs: map[string]string{"url": "https://i/thumb.jpg"}}},
			}},
			want: "https://i/thumb.jpg",
		},
		{
			name: "media:group内のcontent",
			exts: ext.Extensions{"media": {"group": {{Children: map[string][]ext.Extension{
				"content": {{Attrs: map[string]string{"url": "https://i/g.png", "type": "image/png"}}},
			}}}}},
			want: "https://i/g.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mediaImage(tt.exts); got != tt.want {
				t.Errorf("mediaImage() = %q, want %q", got, tt.want)
			}
		})
	}
}
