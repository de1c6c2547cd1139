package handler

import (
	"context"
	"log/slog"

	"github.com/hitoshi/feedpipe/internal/model"
)

// ArticleContentStore は本文抽出サービスが使用するストレージのインターフェース。
type ArticleContentStore interface {
	FindArticle(ctx context.Context, id string) (*model.ArticleWithFeed, error)
	SetFullContent(ctx context.Context, id, content string) error
}

// ContentExtractor は記事URLから本文を抽出するインターフェース。
type ContentExtractor interface {
	Extract(ctx context.Context, articleURL string) (string, error)
}

// ExtractionService は記事の本文抽出とその結果の保存を行う。
// FullContentServiceを満たす。
type ExtractionService struct {
	store     ArticleContentStore
	extractor ContentExtractor
	logger    *slog.Logger
}

// NewExtractionService はExtractionServiceを生成する。
func NewExtractionService(store ArticleContentStore, extractor ContentExtractor, logger *slog.Logger) *ExtractionService {
	return &ExtractionService{store: store, extractor: extractor, logger: logger}
}

// FullContent は記事の本文を返す。保存済みの本文があればそれを使い、無ければ抽出して保存する。
// 保存に失敗しても抽出結果は返す。
func (s *ExtractionService) FullContent(ctx context.Context, articleID string) (*model.ArticleWithFeed, error) {
	article, err := s.store.FindArticle(ctx, articleID)
	if err != nil {
		return nil, &model.StorageError{Op: "find_article", Err: err}
	}
	if article == nil {
		return nil, model.NewArticleNotFoundError(articleID)
	}
	if article.FullContent != "" {
		return article, nil
	}

	content, err := s.extractor.Extract(ctx, article.URL)
	if err != nil {
		return nil, err
	}
	article.FullContent = content

	if err := s.store.SetFullContent(ctx, articleID, content); err != nil {
		s.logger.Warn("抽出した本文の保存に失敗しました",
			slog.String("article_id", articleID),
			slog.String("error", err.Error()),
		)
	}
	return article, nil
}
