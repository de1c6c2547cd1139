package filter

import (
	"fmt"

	"github.com/hitoshi/feedpipe/internal/model"
)

// SmartFolder は条件の組み合わせで記事を集める仮想フォルダ。
type SmartFolder struct {
	Name  string `toml:"name" json:"name"`
	Rules []Rule `toml:"rules" json:"rules"`
}

// Validate はフォルダ名とすべての条件を検証する。
func (f SmartFolder) Validate() error {
	if f.Name == "" {
		return model.NewInvalidFilterError("smart folder name is empty")
	}
	for i, r := range f.Rules {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("smart folder %q rule %d: %w", f.Name, i, err)
		}
	}
	return nil
}

// Matches は記事がすべての条件を満たすかを返す。条件が無いフォルダはすべての記事に一致する。
func (f SmartFolder) Matches(a model.ArticleWithFeed) bool {
	for _, r := range f.Rules {
		if !r.Matches(a) {
			return false
		}
	}
	return true
}

// Apply は一致する記事だけを元の順序のまま返す。
func (f SmartFolder) Apply(articles []model.ArticleWithFeed) []model.ArticleWithFeed {
	out := make([]model.ArticleWithFeed, 0, len(articles))
	for _, a := range articles {
		if f.Matches(a) {
			out = append(out, a)
		}
	}
	return out
}
