// Package filter はスマートフォルダの条件評価を提供する。
// 条件の比較は大文字小文字を区別せず、フォルダ内のすべての条件を満たす記事だけが一致する。
package filter

import (
	"fmt"
	"strings"

	"github.com/hitoshi/feedpipe/internal/model"
)

// Field は条件の対象となる記事の項目。
type Field string

const (
	FieldTitle     Field = "title"
	FieldAuthor    Field = "author"
	FieldContent   Field = "content"
	FieldFeedTitle Field = "feedTitle"
)

// Operator は条件の比較方法。
type Operator string

const (
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
)

// Rule はスマートフォルダの1つの条件。
type Rule struct {
	Field    Field    `toml:"field" json:"field"`
	Operator Operator `toml:"op" json:"op"`
	Value    string   `toml:"value" json:"value"`
}

// NewRule は文字列から条件を組み立てて検証する。
func NewRule(field, op, value string) (Rule, error) {
	r := Rule{Field: Field(field), Operator: Operator(op), Value: value}
	if err := r.Validate(); err != nil {
		return Rule{}, err
	}
	return r, nil
}

// Validate は項目と比較方法が既知の値かを検証する。
func (r Rule) Validate() error {
	switch r.Field {
	case FieldTitle, FieldAuthor, FieldContent, FieldFeedTitle:
	default:
		return model.NewInvalidFilterError(fmt.Sprintf("unknown field %q", r.Field))
	}
	switch r.Operator {
	case OpContains, OpNotContains, OpEquals, OpNotEquals, OpStartsWith, OpEndsWith:
	default:
		return model.NewInvalidFilterError(fmt.Sprintf("unknown operator %q", r.Operator))
	}
	return nil
}

// Matches は記事が条件を満たすかを返す。未設定の項目は空文字列として比較する。
func (r Rule) Matches(a model.ArticleWithFeed) bool {
	var v string
	switch r.Field {
	case FieldTitle:
		v = a.Title
	case FieldAuthor:
		v = a.Author
	case FieldContent:
		v = a.Content
	case FieldFeedTitle:
		v = a.FeedTitle
	}

	v = strings.ToLower(v)
	want := strings.ToLower(r.Value)

	switch r.Operator {
	case OpContains:
		return strings.Contains(v, want)
	case OpNotContains:
		return !strings.Contains(v, want)
	case OpEquals:
		return v == want
	case OpNotEquals:
		return v != want
	case OpStartsWith:
		return strings.HasPrefix(v, want)
	case OpEndsWith:
		return strings.HasSuffix(v, want)
	}
	return false
}
