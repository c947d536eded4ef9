package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hitoshi/jobgate/internal/access"
	"github.com/hitoshi/jobgate/internal/middleware"
	"github.com/hitoshi/jobgate/internal/model"
	"github.com/hitoshi/jobgate/internal/ratelimit"
)

// maxBodyBytes はJSONリクエストボディの上限。
const maxBodyBytes = 64 << 10

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvにデコードする。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeInvalidRequest は解析できないリクエストボディに対する400を返す。
func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPレスポンスに変換する。
//
//	access.DecisionError    → 401 / 403
//	ratelimit.ExceededError → 429 + Retry-After
//	model.APIError          → コードに対応するステータス
//	その他                   → 500（詳細はログのみ）
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var denied *access.DecisionError
	if errors.As(err, &denied) {
		status := http.StatusForbidden
		if denied.Unauthenticated() {
			status = http.StatusUnauthorized
		}
		middleware.WriteErrorResponse(w, status, denied.APIError())
		return
	}

	var exceeded *ratelimit.ExceededError
	if errors.As(err, &exceeded) {
		writeRateLimitExceeded(w, exceeded.Decision)
		return
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForAPIError(apiErr), apiErr)
		return
	}

	slog.ErrorContext(r.Context(), "internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// writeRateLimitExceeded は固定ウィンドウの判定結果から429レスポンスを書き込む。
func writeRateLimitExceeded(w http.ResponseWriter, dec ratelimit.Decision) {
	if !dec.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(dec.ResetAt.Unix(), 10))
	}
	middleware.WriteRateLimitResponse(w, dec.RetryAfter, dec.Limit, dec.Remaining)
}

// parseID はパスパラメータを正の整数IDとして解釈する。
// "42-senior-go" のようなスラッグ付きの値は先頭の数字部分を使う。
func parseID(raw string) (int64, bool) {
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 || (end < len(raw) && raw[end] != '-') {
		return 0, false
	}
	id, err := strconv.ParseInt(raw[:end], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
