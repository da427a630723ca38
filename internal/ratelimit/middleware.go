package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"bothub/internal/auth"
	"bothub/pkg/logger"
)

// Limits 配置按调用方类型区分的每分钟配额。
type Limits struct {
	HumanPerMinute int
	AgentPerMinute int
}

// Middleware 返回限流中间件。必须挂在认证中间件之后，
// 以便按认证主体区分 human 与 agent 配额。
func Middleware(limiter Limiter, limits Limits, onLimited func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			subject := auth.SubjectFromContext(r.Context())
			if subject != nil && subject.Superuser {
				next.ServeHTTP(w, r)
				return
			}
			key, limit := callerQuota(r, subject, limits)
			allowed, retryAfter, err := limiter.Allow(r.Context(), key, limit)
			if err != nil {
				// 限流后端故障时放行请求，只记录日志。
				logger.L().Error("限流检查失败", slog.Any("error", err), slog.String("key", key))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				onLimitedSafe(onLimited)
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprintf(w, `{"error":{"code":"RATE_LIMITED","message":"rate limit exceeded, retry in %ds"}}`, seconds)
				logger.Audit().Warn("rate_limited",
					slog.String("key", key),
					slog.String("path", r.URL.Path),
					slog.Int("retry_after_seconds", seconds),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerQuota 解析调用方的限流键与配额。匿名请求按来源地址限流，
// 使用 human 配额。
func callerQuota(r *http.Request, subject *auth.Subject, limits Limits) (string, int) {
	if subject == nil {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		return "anon:" + host, limits.HumanPerMinute
	}
	key := "user:" + strconv.FormatInt(subject.ID, 10)
	if subject.Kind == auth.KindAgent {
		return key, limits.AgentPerMinute
	}
	return key, limits.HumanPerMinute
}

func onLimitedSafe(fn func()) {
	if fn != nil {
		fn()
	}
}
