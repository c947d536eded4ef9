package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/jobgate/internal/model"
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

// statusByCode はエラーコードに対応するHTTPステータス。
var statusByCode = map[string]int{
	model.ErrCodeAuthRequired:         http.StatusUnauthorized,
	model.ErrCodeRoleMismatch:         http.StatusForbidden,
	model.ErrCodeNotOwner:             http.StatusForbidden,
	model.ErrCodeNoCompany:            http.StatusForbidden,
	model.ErrCodeRateLimited:          http.StatusTooManyRequests,
	model.ErrCodeInvalidRequest:       http.StatusBadRequest,
	model.ErrCodeInvalidPosting:       http.StatusBadRequest,
	model.ErrCodeInvalidStatus:        http.StatusBadRequest,
	model.ErrCodeInvalidReason:        http.StatusBadRequest,
	model.ErrCodeMissingID:            http.StatusBadRequest,
	model.ErrCodePostingNotFound:      http.StatusNotFound,
	model.ErrCodeApplicationNotFound:  http.StatusNotFound,
	model.ErrCodeDuplicateApplication: http.StatusConflict,
}

// StatusForAPIError はAPIErrorに対応するHTTPステータスコードを返す。
// 未知のコードは400として扱う。
func StatusForAPIError(apiErr *model.APIError) int {
	if status, ok := statusByCode[apiErr.Code]; ok {
		return status
	}
	return http.StatusBadRequest
}
