package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"bothub/internal/auth"
	"bothub/internal/hub"
	"bothub/internal/observability/metrics"
	"bothub/internal/ratelimit"
)

// Server 负责暴露 REST 接口。
type Server struct {
	addr    string
	hub     *hub.Service
	auth    *auth.Service
	limiter ratelimit.Limiter
	limits  ratelimit.Limits
	graphql http.Handler
}

// Option 配置 Server 的可选能力。
type Option func(*Server)

// WithRateLimit 启用限流中间件。
func WithRateLimit(limiter ratelimit.Limiter, limits ratelimit.Limits) Option {
	return func(s *Server) {
		s.limiter = limiter
		s.limits = limits
	}
}

// WithGraphQL 挂载 GraphQL 端点。
func WithGraphQL(handler http.Handler) Option {
	return func(s *Server) {
		s.graphql = handler
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, hubSvc *hub.Service, authSvc *auth.Service, opts ...Option) *Server {
	server := &Server{addr: addr, hub: hubSvc, auth: authSvc}
	for _, opt := range opts {
		if opt != nil {
			opt(server)
		}
	}
	return server
}

// Handler 组装完整的路由与中间件链，测试可以直接使用。
func (s *Server) Handler() http.Handler {
	root := http.NewServeMux()
	root.Handle("GET /healthz", instrument("healthz", s.handleHealth))
	root.Handle("POST /api/v1/auth/token", instrument("auth_token", s.handleToken))
	root.Handle("/api/v1/", s.secure(s.restRoutes()))
	if s.graphql != nil {
		root.Handle("POST /graphql", s.secure(instrument("graphql", s.graphql.ServeHTTP)))
	}
	return RequestID(root)
}

// restRoutes 返回 /api/v1 下的业务路由表。
func (s *Server) restRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/users", instrument("users", s.handleListUsers))
	mux.Handle("GET /api/v1/users/{id}", instrument("user", s.handleGetUser))
	mux.Handle("GET /api/v1/users/{id}/profile", instrument("user_profile", s.handleGetProfile))
	mux.Handle("GET /api/v1/profiles", instrument("profiles", s.handleListProfiles))

	mux.Handle("POST /api/v1/projects", instrument("projects", s.handleCreateProject))
	mux.Handle("GET /api/v1/projects", instrument("projects", s.handleListProjects))
	mux.Handle("GET /api/v1/projects/{id}", instrument("project", s.handleGetProject))
	mux.Handle("PATCH /api/v1/projects/{id}", instrument("project", s.handleUpdateProject))
	mux.Handle("DELETE /api/v1/projects/{id}", instrument("project", s.handleDeleteProject))
	mux.Handle("GET /api/v1/projects/{id}/tasks/tree", instrument("task_tree", s.handleTaskTree))

	mux.Handle("POST /api/v1/memberships", instrument("memberships", s.handleCreateMembership))
	mux.Handle("GET /api/v1/memberships", instrument("memberships", s.handleListMemberships))
	mux.Handle("GET /api/v1/memberships/{id}", instrument("membership", s.handleGetMembership))
	mux.Handle("PATCH /api/v1/memberships/{id}", instrument("membership", s.handleUpdateMembership))
	mux.Handle("DELETE /api/v1/memberships/{id}", instrument("membership", s.handleDeleteMembership))

	mux.Handle("POST /api/v1/tags", instrument("tags", s.handleCreateTag))
	mux.Handle("GET /api/v1/tags", instrument("tags", s.handleListTags))
	mux.Handle("GET /api/v1/tags/{id}", instrument("tag", s.handleGetTag))
	mux.Handle("PATCH /api/v1/tags/{id}", instrument("tag", s.handleUpdateTag))
	mux.Handle("DELETE /api/v1/tags/{id}", instrument("tag", s.handleDeleteTag))

	mux.Handle("POST /api/v1/tasks", instrument("tasks", s.handleCreateTask))
	mux.Handle("GET /api/v1/tasks", instrument("tasks", s.handleListTasks))
	mux.Handle("GET /api/v1/tasks/{id}", instrument("task", s.handleGetTask))
	mux.Handle("PATCH /api/v1/tasks/{id}", instrument("task", s.handleUpdateTask))
	mux.Handle("DELETE /api/v1/tasks/{id}", instrument("task", s.handleDeleteTask))

	mux.Handle("POST /api/v1/assignments", instrument("assignments", s.handleCreateAssignment))
	mux.Handle("GET /api/v1/assignments", instrument("assignments", s.handleListAssignments))
	mux.Handle("GET /api/v1/assignments/{id}", instrument("assignment", s.handleGetAssignment))
	mux.Handle("DELETE /api/v1/assignments/{id}", instrument("assignment", s.handleDeleteAssignment))

	mux.Handle("POST /api/v1/threads", instrument("threads", s.handleCreateThread))
	mux.Handle("GET /api/v1/threads", instrument("threads", s.handleListThreads))
	mux.Handle("GET /api/v1/threads/{id}", instrument("thread", s.handleGetThread))
	mux.Handle("PATCH /api/v1/threads/{id}", instrument("thread", s.handleUpdateThread))
	mux.Handle("DELETE /api/v1/threads/{id}", instrument("thread", s.handleDeleteThread))

	mux.Handle("POST /api/v1/messages", instrument("messages", s.handleCreateMessage))
	mux.Handle("GET /api/v1/messages", instrument("messages", s.handleListMessages))
	mux.Handle("GET /api/v1/messages/{id}", instrument("message", s.handleGetMessage))

	mux.Handle("GET /api/v1/audit-events", instrument("audit_events", s.handleListAuditEvents))
	mux.Handle("GET /api/v1/audit-events/{id}", instrument("audit_event", s.handleGetAuditEvent))

	return mux
}

// secure 为业务路由挂载认证与限流中间件。认证在最外层，
// 限流才能按认证主体区分配额。
func (s *Server) secure(handler http.Handler) http.Handler {
	if s.limiter != nil {
		handler = ratelimit.Middleware(s.limiter, s.limits, metrics.IncRateLimited)(handler)
	}
	if s.auth != nil {
		handler = s.auth.Middleware(auth.MiddlewareConfig{AuditEvent: "api_request"})(handler)
	}
	return handler
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// instrument 包装处理函数，按资源名记录请求指标。
func instrument(name string, handler http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		handler(sw, r)
		metrics.ObserveHTTPRequest(name, r.Method, sw.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
