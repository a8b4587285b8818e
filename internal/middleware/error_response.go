package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/newsdesk/internal/model"
)

// ErrorResponseBody は運用エンドポイントのエラーレスポンス形式。
// model.APIErrorのフィールドをそのままJSONにする。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse はAPIErrorを統一フォーマットのJSONとして書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部エラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// WriteServiceUnavailable は依存先（データベース等）が利用できない場合の503レスポンスを書き込む。
func WriteServiceUnavailable(w http.ResponseWriter, dependency string) {
	WriteErrorResponse(w, http.StatusServiceUnavailable, &model.APIError{
		Code:     "DEPENDENCY_UNAVAILABLE",
		Message:  "依存サービスに接続できません: " + dependency,
		Category: "system",
		Action:   "データベースの稼働状況を確認してください。",
	})
}
