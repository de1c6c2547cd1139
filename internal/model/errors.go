// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: network, parse, content, storage, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeFeedNotDetected = "FEED_NOT_DETECTED"
	ErrCodeInvalidURL      = "INVALID_URL"
	ErrCodeSSRFBlocked     = "SSRF_BLOCKED"
	ErrCodeFetchFailed     = "FETCH_FAILED"
	ErrCodeParseFailed     = "PARSE_FAILED"
	ErrCodeEncodingFailed  = "ENCODING_FAILED"
	ErrCodeNoContent       = "NO_CONTENT"
	ErrCodeStorageFailed   = "STORAGE_FAILED"
	ErrCodeFeedNotFound    = "FEED_NOT_FOUND"
	ErrCodeArticleNotFound = "ARTICLE_NOT_FOUND"
	ErrCodeDuplicateFeed   = "DUPLICATE_FEED"
	ErrCodeInvalidFilter   = "INVALID_FILTER"
	ErrCodeRefreshRunning  = "REFRESH_RUNNING"
)

// ErrSSRFBlocked は取得先がSSRF対策により拒否されたことを表す。
// NetworkErrorのErrにラップされて返される。
var ErrSSRFBlocked = errors.New("blocked by SSRF policy")

// NetworkError は取得・タイムアウト・DNS解決などの通信失敗を表す。
// 呼び出し側での再試行が可能だが、パイプライン内では自動再試行しない。
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ParseError はフィード・OPML・HTMLの解析失敗、および2xx以外の応答を表す。再試行しない。
type ParseError struct {
	Source string // "feed", "opml", "html" など
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s parse error: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// EncodingError はバイト列を文字列にデコードできなかったことを表す。
type EncodingError struct {
	Charset string
	Err     error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding error (%s): %v", e.Charset, e.Err)
	}
	return fmt.Sprintf("encoding error: content is not valid %s", e.Charset)
}

func (e *EncodingError) Unwrap() error { return e.Err }

// NoContentError は本文抽出で利用可能なコンテンツが見つからなかったことを表す。
type NoContentError struct {
	URL string
}

func (e *NoContentError) Error() string {
	if e.URL == "" {
		return "no content found"
	}
	return fmt.Sprintf("no content found: %s", e.URL)
}

// StorageError はストレージポートで発生した失敗を表す。
// コミット処理のみを中断し、メモリ上の計算結果は破棄しない。
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsNetworkError はerrのチェーンにNetworkErrorが含まれるかを返す。
func IsNetworkError(err error) bool {
	var target *NetworkError
	return errors.As(err, &target)
}

// IsParseError はerrのチェーンにParseErrorが含まれるかを返す。
func IsParseError(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}

// IsEncodingError はerrのチェーンにEncodingErrorが含まれるかを返す。
func IsEncodingError(err error) bool {
	var target *EncodingError
	return errors.As(err, &target)
}

// IsNoContentError はerrのチェーンにNoContentErrorが含まれるかを返す。
func IsNoContentError(err error) bool {
	var target *NoContentError
	return errors.As(err, &target)
}

// IsStorageError はerrのチェーンにStorageErrorが含まれるかを返す。
func IsStorageError(err error) bool {
	var target *StorageError
	return errors.As(err, &target)
}

// ToAPIError はドメインエラーをAPI応答用のAPIErrorに変換する。
// 既にAPIErrorの場合はそのまま返す。未知のエラーはシステムエラーとして扱う。
func ToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, ErrSSRFBlocked):
		return NewSSRFBlockedError()
	case IsNetworkError(err):
		return NewFetchFailedError(err.Error())
	case IsParseError(err):
		return NewParseFailedError(err.Error())
	case IsEncodingError(err):
		return &APIError{
			Code:     ErrCodeEncodingFailed,
			Message:  "ページの文字コードを解釈できませんでした。",
			Category: "content",
			Action:   "元のページをブラウザで開いて確認してください。",
		}
	case IsNoContentError(err):
		return &APIError{
			Code:     ErrCodeNoContent,
			Message:  "ページから本文を抽出できませんでした。",
			Category: "content",
			Action:   "元のページをブラウザで開いて確認してください。",
		}
	case IsStorageError(err):
		return &APIError{
			Code:     ErrCodeStorageFailed,
			Message:  "データの保存に失敗しました。",
			Category: "storage",
			Action:   "しばらく待ってから再度お試しください。",
		}
	default:
		return &APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "内部エラーが発生しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		}
	}
}

// NewFeedNotDetectedError はフィード未検出エラーを生成する。
func NewFeedNotDetectedError(url string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotDetected,
		Message:  fmt.Sprintf("指定されたURLからRSS/Atom/JSONフィードを検出できませんでした: %s", url),
		Category: "parse",
		Action:   "フィードのURLを直接入力するか、フィードが公開されているページのURLを確認してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: "validation",
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: "validation",
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}

// NewFetchFailedError はフェッチ失敗エラーを生成する。
func NewFetchFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFetchFailed,
		Message:  fmt.Sprintf("URLの取得に失敗しました: %s", reason),
		Category: "network",
		Action:   "URLが正しいか確認し、しばらく待ってから再度お試しください。",
	}
}

// NewParseFailedError はパース失敗エラーを生成する。
func NewParseFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeParseFailed,
		Message:  fmt.Sprintf("データの解析に失敗しました: %s", reason),
		Category: "parse",
		Action:   "有効なRSS/Atom/JSONフィードまたはOPMLファイルかどうか確認してください。",
	}
}

// NewFeedNotFoundError はフィード未検出エラーを生成する。
func NewFeedNotFoundError(feedID string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedNotFound,
		Message:  fmt.Sprintf("指定されたフィードが見つかりません: %s", feedID),
		Category: "validation",
		Action:   "フィードIDを確認してください。",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(articleID string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("指定された記事が見つかりません: %s", articleID),
		Category: "validation",
		Action:   "記事IDを確認してください。",
	}
}

// NewDuplicateFeedError は登録済みのフィードを再度登録しようとした場合のエラーを生成する。
func NewDuplicateFeedError(feedURL string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateFeed,
		Message:  fmt.Sprintf("このフィードは既に登録されています: %s", feedURL),
		Category: "validation",
		Action:   "フィード一覧から該当フィードを確認してください。",
	}
}

// NewInvalidFilterError は無効なフィルタ条件のエラーを生成する。
func NewInvalidFilterError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidFilter,
		Message:  fmt.Sprintf("無効なフィルタ条件です: %s", reason),
		Category: "validation",
		Action:   "field には title/author/content/feedTitle、op には contains/notContains/equals/notEquals/startsWith/endsWith を指定してください。",
	}
}

// NewRefreshRunningError はリフレッシュ実行中エラーを生成する。
func NewRefreshRunningError() *APIError {
	return &APIError{
		Code:     ErrCodeRefreshRunning,
		Message:  "リフレッシュは既に実行中です。",
		Category: "validation",
		Action:   "実行中のリフレッシュが完了するまでお待ちください。",
	}
}
