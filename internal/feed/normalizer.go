package feed

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/json"
	"github.com/mmcdole/gofeed/rss"

	"github.com/hitoshi/feedpipe/internal/model"
)

// ErrUnknownFormat はRSS/Atom/JSON Feedのいずれとも判定できなかったことを表す。
var ErrUnknownFormat = errors.New("unknown feed format")

// Dialect はフィードの形式を表す。
type Dialect string

const (
	DialectRSS  Dialect = "rss"
	DialectAtom Dialect = "atom"
	DialectJSON Dialect = "json"
)

// DetectDialect はバイト列からフィード形式を判定する。
func DetectDialect(data []byte) (Dialect, bool) {
	switch gofeed.DetectFeedType(bytes.NewReader(data)) {
	case gofeed.FeedTypeRSS:
		return DialectRSS, true
	case gofeed.FeedTypeAtom:
		return DialectAtom, true
	case gofeed.FeedTypeJSON:
		return DialectJSON, true
	default:
		return "", false
	}
}

// Normalize はフィードのバイト列を形式に依存しないParsedFeedに変換する。
// baseURLはフィード自体のURLで、記事URLの相対参照解決の最終候補として使う。
// 同じ入力に対して常に同じ結果を返し、状態を持たない。
func Normalize(data []byte, baseURL string) (*model.ParsedFeed, error) {
	dialect, ok := DetectDialect(data)
	if !ok {
		return nil, &model.ParseError{Source: "feed", Err: ErrUnknownFormat}
	}

	var (
		parsed *model.ParsedFeed
		err    error
	)
	switch dialect {
	case DialectRSS:
		var fp rss.Parser
		var f *rss.Feed
		if f, err = fp.Parse(bytes.NewReader(data)); err == nil {
			parsed = normalizeRSS(f, baseURL)
		}
	case DialectAtom:
		var fp atom.Parser
		var f *atom.Feed
		if f, err = fp.Parse(bytes.NewReader(data)); err == nil {
			parsed = normalizeAtom(f, baseURL)
		}
	case DialectJSON:
		var fp json.Parser
		var f *json.Feed
		if f, err = fp.Parse(bytes.NewReader(data)); err == nil {
			parsed = normalizeJSON(f, baseURL)
		}
	}
	if err != nil {
		return nil, &model.ParseError{Source: "feed", Err: fmt.Errorf("%s: %w", dialect, err)}
	}

	if parsed.Title == "" {
		parsed.Title = model.DefaultFeedTitle
	}
	return parsed, nil
}
