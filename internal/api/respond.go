package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	xerrors "bothub/internal/errors"
	"bothub/internal/hub"
	"bothub/pkg/logger"
)

// errorBody 是统一的错误响应格式。
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON 输出 JSON 响应。
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// writeError 将业务错误映射为 HTTP 响应，未注册的错误按 500 处理。
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := xerrors.StatusOf(err)
	code := string(xerrors.CodeOf(err))
	message := "internal server error"
	if e, ok := xerrors.From(err); ok {
		message = e.Message()
	}
	if status >= 500 {
		logger.L().Error("请求处理失败",
			slog.Any("error", err),
			slog.String("path", r.URL.Path),
			slog.String("method", r.Method),
			slog.String("request_id", RequestIDFromContext(r.Context())),
		)
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// decodeJSON 解析请求体，格式非法时返回统一的校验错误。
func decodeJSON(r *http.Request, target any) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

// pathID 解析路径参数中的数字 ID。
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "非法的资源 ID")
	}
	return id, nil
}

// listOptionsFromQuery 将查询参数转换为列表选项，非法取值直接忽略。
// 外键过滤同时接受 project_id 和 project 两种写法。
func listOptionsFromQuery(r *http.Request) []hub.ListOption {
	q := r.URL.Query()
	var opts []hub.ListOption
	if n, ok := intParam(q.Get("limit")); ok {
		opts = append(opts, hub.WithLimit(int(n)))
	}
	if n, ok := intParam(q.Get("offset")); ok {
		opts = append(opts, hub.WithOffset(int(n)))
	}
	if n, ok := intParam(firstParam(q, "project_id", "project")); ok {
		opts = append(opts, hub.WithProject(n))
	}
	if n, ok := intParam(firstParam(q, "task_id", "task")); ok {
		opts = append(opts, hub.WithTask(n))
	}
	if n, ok := intParam(firstParam(q, "thread_id", "thread")); ok {
		opts = append(opts, hub.WithThread(n))
	}
	if raw := firstParam(q, "parent_id", "parent"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n >= 0 {
			opts = append(opts, hub.WithParent(n))
		}
	}
	if raw := q.Get("status"); raw != "" {
		parts := strings.Split(raw, ",")
		statuses := make([]hub.TaskStatus, 0, len(parts))
		for _, part := range parts {
			statuses = append(statuses, hub.TaskStatus(strings.TrimSpace(part)))
		}
		opts = append(opts, hub.WithStatuses(statuses...))
	}
	if verb := strings.TrimSpace(q.Get("verb")); verb != "" {
		opts = append(opts, hub.WithVerb(verb))
	}
	if kind := strings.TrimSpace(q.Get("kind")); kind != "" {
		opts = append(opts, hub.WithProfileKind(hub.ProfileKind(kind)))
	}
	if q.Get("include_archived") == "true" {
		opts = append(opts, hub.WithArchived())
	}
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		opts = append(opts, hub.WithQuery(query))
	}
	return opts
}

// firstParam 返回第一个非空的查询参数取值。
func firstParam(q url.Values, names ...string) string {
	for _, name := range names {
		if raw := q.Get(name); raw != "" {
			return raw
		}
	}
	return ""
}

func intParam(raw string) (int64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
