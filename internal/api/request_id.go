package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader 是请求追踪 ID 使用的 HTTP 头。
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID 为每个请求分配追踪 ID，调用方提供的 ID 原样透传。
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext 返回当前请求的追踪 ID，缺失时返回空串。
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}
