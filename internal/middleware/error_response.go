package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/feedpipe/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はドメインエラーをAPIErrorに変換し、エラーコードに応じたステータスで書き込む。
func WriteError(w http.ResponseWriter, err error) {
	apiErr := model.ToAPIError(err)
	WriteErrorResponse(w, StatusForError(apiErr), apiErr)
}

// StatusForError はAPIErrorのコードに対応するHTTPステータスを返す。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidURL, model.ErrCodeSSRFBlocked, model.ErrCodeInvalidFilter:
		return http.StatusBadRequest
	case model.ErrCodeFeedNotFound, model.ErrCodeArticleNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateFeed, model.ErrCodeRefreshRunning:
		return http.StatusConflict
	case model.ErrCodeFeedNotDetected, model.ErrCodeParseFailed, model.ErrCodeEncodingFailed, model.ErrCodeNoContent:
		return http.StatusUnprocessableEntity
	case model.ErrCodeFetchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
