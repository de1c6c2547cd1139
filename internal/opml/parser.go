// Package opml はOPML購読リストの読み込みと書き出しを提供する。
//
// 読み込みはencoding/xmlのトークンストリームを1回走査するだけで、DOMツリーは構築しない。
// フォルダの判定はフォルダスタックで行い、</outline> を閉じるたびに1段ポップする。
// このため複数のフィードを含むフォルダでは、先頭のフィードにのみフォルダ名が付与される。
// 既存の取り込み結果と一致させるため、この挙動は変更しないこと。
package opml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/hitoshi/feedpipe/internal/model"
)

// Entry はOPMLに含まれる1件のフィード購読を表す。
// Folderが空の場合はどのフォルダにも属さない。
type Entry struct {
	Title   string
	FeedURL string
	SiteURL string
	Folder  string
}

// Document はOPMLの解析結果を表す。
// Titleは<head>内に<title>が存在しない場合nilとなる。
type Document struct {
	Title   *string
	Entries []Entry
}

// ErrNoRootElement はXMLとして解釈できる要素が1つも見つからなかったことを表す。
var ErrNoRootElement = errors.New("no root element found")

// Parse はOPMLのバイト列を解析してDocumentを返す。
// 不正な・途中で切れたXMLはデコーダのメッセージを保持したParseErrorとなる。
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &model.ParseError{Source: "opml", Err: errors.New("empty document")}
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel
	dec.Entity = xml.HTMLEntity

	p := &parser{}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &model.ParseError{Source: "opml", Err: err}
		}
		p.handle(tok)
	}

	if !p.sawElement {
		return nil, &model.ParseError{Source: "opml", Err: ErrNoRootElement}
	}

	return &Document{Title: p.title, Entries: p.entries}, nil
}

// parser は1回のParse呼び出しの走査状態を保持する。
type parser struct {
	entries    []Entry
	title      *string
	folders    []string
	inHead     bool
	inTitle    bool
	titleText  strings.Builder
	sawElement bool
}

func (p *parser) handle(tok xml.Token) {
	switch t := tok.(type) {
	case xml.StartElement:
		p.sawElement = true
		switch strings.ToLower(t.Name.Local) {
		case "head":
			p.inHead = true
		case "title":
			if p.inHead {
				p.inTitle = true
				p.titleText.Reset()
			}
		case "outline":
			p.openOutline(t.Attr)
		}

	case xml.EndElement:
		switch strings.ToLower(t.Name.Local) {
		case "head":
			p.inHead = false
		case "title":
			if p.inHead && p.inTitle {
				title := strings.TrimSpace(p.titleText.String())
				p.title = &title
				p.inTitle = false
			}
		case "outline":
			// 閉じたのがフォルダかどうかに関係なく1段ポップする
			if len(p.folders) > 0 {
				p.folders = p.folders[:len(p.folders)-1]
			}
		}

	case xml.CharData:
		if p.inTitle {
			p.titleText.Write(t)
		}
	}
}

// openOutline は<outline>開始タグを処理する。
// xmlUrlを持つ場合はフィード、持たない場合はフォルダとして扱う。
func (p *parser) openOutline(attrs []xml.Attr) {
	// lookup は最初に存在する属性の値を返す。空文字列でも存在すれば採用する。
	lookup := func(names ...string) (string, bool) {
		for _, name := range names {
			for _, a := range attrs {
				if a.Name.Local == name {
					return a.Value, true
				}
			}
		}
		return "", false
	}

	rawURL, _ := lookup("xmlUrl", "xmlurl")
	rawURL = strings.TrimSpace(rawURL)
	if feedURL, ok := parseFeedURL(rawURL); ok {
		title, ok := lookup("title", "text")
		if !ok {
			title = firstNonEmpty(feedURL.Hostname(), model.DefaultFeedTitle)
		}
		siteURL, _ := lookup("htmlUrl", "htmlurl")
		p.entries = append(p.entries, Entry{
			Title:   title,
			FeedURL: rawURL,
			SiteURL: siteURL,
			Folder:  p.currentFolder(),
		})
		return
	}

	if name, ok := lookup("title", "text"); ok {
		p.folders = append(p.folders, name)
	}
}

func (p *parser) currentFolder() string {
	if len(p.folders) == 0 {
		return ""
	}
	return p.folders[len(p.folders)-1]
}

// parseFeedURL はxmlUrl属性値をURLとして解釈する。
// 空文字列や解釈できない値はフィードとみなさない。
func parseFeedURL(raw string) (*url.URL, bool) {
	if raw == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	return u, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// String はデバッグ用にEntryを文字列化する。
func (e Entry) String() string {
	if e.Folder == "" {
		return fmt.Sprintf("%s <%s>", e.Title, e.FeedURL)
	}
	return fmt.Sprintf("%s/%s <%s>", e.Folder, e.Title, e.FeedURL)
}
