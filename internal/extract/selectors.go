package extract

// contentSelectors は本文コンテナの候補。先頭から順に評価し、最初に条件を満たしたものを採用する。
var contentSelectors = []string{
	"article",
	"[role=main]",
	".post-content",
	".article-content",
	".entry-content",
	".post-body",
	".article-body",
	".story-body",
	".content-body",
	".markdown-body",
	".blog-post-content",
	"#article-content",
	"#post-content",
	"#main-content",
	".content",
	"main",
}

// removeSelectors は本文探索の前に無条件で取り除く要素。
var removeSelectors = []string{
	"script",
	"style",
	"nav",
	"header",
	"footer",
	"aside",
	"noscript",
	"iframe",
	"form",
	".ads",
	".ad",
	".advertisement",
	".social-share",
	".share-buttons",
	".comments",
	".comment-section",
	".sidebar",
	".related-posts",
	".related-articles",
	".newsletter",
	".subscription",
	".popup",
	".modal",
	"[role=navigation]",
	"[role=banner]",
	"[role=complementary]",
	"[aria-hidden=true]",
}
