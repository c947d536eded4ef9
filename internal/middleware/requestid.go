package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/hitoshi/jobgate/internal/logger"
)

// RequestIDHeader はリクエストIDを受け渡すヘッダー名。
const RequestIDHeader = "X-Request-ID"

// maxRequestIDLength は受け付けるリクエストIDの最大長。超える場合は生成し直す。
const maxRequestIDLength = 128

// NewRequestIDMiddleware はリクエストIDをコンテキストに注入し、レスポンスヘッダーに返すミドルウェアを返す。
// X-Request-IDが指定されていればそれを使い、無ければUUIDを生成する。
func NewRequestIDMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > maxRequestIDLength {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(logger.ContextWithRequestID(r.Context(), id)))
		})
	}
}
