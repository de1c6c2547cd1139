package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/feedpipe/internal/filter"
	"github.com/hitoshi/feedpipe/internal/middleware"
	"github.com/hitoshi/feedpipe/internal/security"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// フィード
	Feeds         FeedReader
	Subscriber    Subscriber
	FeedRefresher FeedRefresher

	// 記事
	Articles    ArticleStore
	FullContent FullContentService
	Sanitizer   *security.ContentSanitizer

	// 一括リフレッシュ・OPML・スマートフォルダ
	Refresh      *RefreshHandler
	OPML         OPMLService
	SmartFolders []filter.SmartFolder

	// 運用
	Health         HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General)
//
// /health と /metrics はレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewContentSanitizer()
	}
	refreshHandler := deps.Refresh

	feedHandler := NewFeedHandler(deps.Feeds, deps.Subscriber, deps.FeedRefresher)
	articleHandler := NewArticleHandler(deps.Articles, deps.FullContent, sanitizer)
	opmlHandler := NewOPMLHandler(deps.OPML)
	folderHandler := NewSmartFolderHandler(deps.SmartFolders, deps.Articles, sanitizer)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.Health))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// フィード管理
		r.Route("/feeds", func(r chi.Router) {
			r.Get("/", feedHandler.ListFeeds)
			// POST /api/feeds - フィード登録（登録専用レート制限を追加）
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/", feedHandler.Subscribe)
			r.Post("/{id}/refresh", feedHandler.RefreshFeed)
		})

		// 記事
		r.Route("/articles", func(r chi.Router) {
			r.Get("/", articleHandler.ListArticles)
			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", articleHandler.UpdateState)
				r.Get("/full", articleHandler.GetFullContent)
			})
		})

		// 一括リフレッシュ
		r.Post("/refresh", refreshHandler.Refresh)
		r.Get("/refresh/status", refreshHandler.Status)

		// OPML
		r.Route("/opml", func(r chi.Router) {
			r.With(deps.RateLimiter.SubscribeMiddleware()).Post("/import", opmlHandler.Import)
			r.Get("/export", opmlHandler.Export)
		})

		// スマートフォルダ
		r.Route("/smart-folders", func(r chi.Router) {
			r.Get("/", folderHandler.List)
			r.Get("/{name}/articles", folderHandler.Articles)
		})
	})

	return r
}
