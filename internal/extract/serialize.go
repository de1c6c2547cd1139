package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// serialize は要素の子孫を軽量なmarkdown付きテキストに変換する。
func serialize(sel *goquery.Selection) string {
	var w writer
	w.children(sel)
	out := excessNewlines.ReplaceAllString(w.String(), "\n\n")
	return strings.TrimSpace(out)
}

type writer struct {
	strings.Builder
}

func (w *writer) children(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		switch c.Get(0).Type {
		case html.TextNode:
			if t := collapseSpace(c.Get(0).Data); t != "" {
				w.WriteString(t + " ")
			}
		case html.ElementNode:
			w.element(c)
		}
	})
}

func (w *writer) element(el *goquery.Selection) {
	tag := goquery.NodeName(el)

	switch tag {
	case "p":
		w.block("", text(el), "\n\n")
	case "h1":
		w.block("# ", text(el), "\n\n")
	case "h2":
		w.block("## ", text(el), "\n\n")
	case "h3":
		w.block("### ", text(el), "\n\n")
	case "h4", "h5", "h6":
		w.block("#### ", text(el), "\n\n")

	case "ul":
		el.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			w.block("- ", text(li), "\n")
		})
		w.WriteString("\n")
	case "ol":
		n := 1
		el.ChildrenFiltered("li").Each(func(_ int, li *goquery.Selection) {
			if t := text(li); t != "" {
				w.WriteString(strconv.Itoa(n) + ". " + t + "\n")
				n++
			}
		})
		w.WriteString("\n")

	case "blockquote":
		var lines []string
		for _, line := range strings.Split(el.Text(), "\n") {
			if t := collapseSpace(line); t != "" {
				lines = append(lines, t)
			}
		}
		if len(lines) == 0 {
			return
		}
		for _, line := range lines {
			w.WriteString("> " + line + "\n")
		}
		w.WriteString("\n")

	case "pre":
		if raw := el.Text(); raw != "" {
			w.WriteString("```\n" + raw + "\n```\n\n")
		}
	case "code":
		if el.ParentsFiltered("pre").Length() > 0 {
			return
		}
		if raw := el.Text(); raw != "" {
			w.WriteString("`" + raw + "`")
		}

	case "br":
		w.WriteString("\n")
	case "hr":
		w.WriteString("\n---\n\n")

	case "a":
		t := text(el)
		if t == "" {
			return
		}
		href := strings.TrimSpace(el.AttrOr("href", ""))
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
			w.WriteString(t)
			return
		}
		w.WriteString("[" + t + "](" + href + ")")

	case "strong", "b":
		w.block("**", text(el), "**")
	case "em", "i":
		w.block("*", text(el), "*")

	case "img":
		src := strings.TrimSpace(el.AttrOr("src", ""))
		if src == "" {
			return
		}
		alt := strings.TrimSpace(el.AttrOr("alt", ""))
		if alt == "" {
			alt = "image"
		}
		w.WriteString("![" + alt + "](" + src + ")\n\n")

	case "figure":
		w.children(el)
	case "figcaption":
		w.block("*", text(el), "*\n\n")

	case "table":
		w.block("", text(el), "\n\n")

	default:
		if el.Children().Length() == 0 {
			w.block("", text(el), " ")
			return
		}
		w.children(el)
	}
}

// block は本文が空でない場合に限り前後の記号を付けて書き出す。
func (w *writer) block(prefix, body, suffix string) {
	if body == "" {
		return
	}
	w.WriteString(prefix + body + suffix)
}

// text は子孫のテキストを連結し、連続する空白を1つにまとめる。
func text(sel *goquery.Selection) string {
	return collapseSpace(sel.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
