package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"bothub/internal/auth"
	"bothub/internal/graphql"
	"bothub/internal/hub"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	store := hub.NewMemoryStore()
	authSvc, err := auth.NewService(t.Context(), auth.Config{
		Mode: auth.ModeJWT,
		JWT:  auth.JWTOptions{Secret: "unit-test-secret"},
		Seeds: []auth.Seed{
			{Username: "alice", Password: "alice-pass", Kind: auth.KindHuman, Superuser: true},
			{Username: "bob", Password: "bob-pass", Kind: auth.KindHuman},
			{Username: "crawler", Password: "crawler-pass", Kind: auth.KindAgent},
		},
	}, store)
	if err != nil {
		t.Fatalf("构造认证服务失败: %v", err)
	}
	hubSvc := hub.NewService(store)
	gql, err := graphql.NewHandler(hubSvc)
	if err != nil {
		t.Fatalf("构造 GraphQL 处理器失败: %v", err)
	}
	return NewServer("127.0.0.1:0", hubSvc, authSvc, WithGraphQL(gql)).Handler()
}

// do 发送一次请求并把 JSON 响应体解码到 out（可为 nil）。
func do(t *testing.T, handler http.Handler, method, target, token string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("编码请求体失败: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("解码响应体失败: %v, body=%s", err, rec.Body.String())
		}
	}
	return rec
}

func issueToken(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	var pair auth.TokenPair
	rec := do(t, handler, http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{
		GrantType: "password",
		Username:  username,
		Password:  password,
	}, &pair)
	if rec.Code != http.StatusOK {
		t.Fatalf("签发令牌返回 %d: %s", rec.Code, rec.Body.String())
	}
	if pair.AccessToken == "" {
		t.Fatal("access token 为空")
	}
	return pair.AccessToken
}

func TestTokenIssuanceRejectsBadPassword(t *testing.T) {
	handler := newTestHandler(t)

	var body errorBody
	rec := do(t, handler, http.MethodPost, "/api/v1/auth/token", "", auth.TokenRequest{
		Username: "alice",
		Password: "wrong",
	}, &body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("期望 401, 实际 %d", rec.Code)
	}
	if body.Error.Code != "INVALID_CREDENTIALS" {
		t.Fatalf("期望 INVALID_CREDENTIALS, 实际 %q", body.Error.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	handler := newTestHandler(t)

	var body errorBody
	rec := do(t, handler, http.MethodGet, "/api/v1/projects", "", nil, &body)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("期望 401, 实际 %d", rec.Code)
	}
	// 认证失败也要返回统一的 JSON 错误信封
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("期望 JSON 响应, 实际 Content-Type=%q", ct)
	}
	if body.Error.Code != "UNAUTHENTICATED" || body.Error.Message == "" {
		t.Fatalf("非预期错误信封: %+v", body)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/projects", "not-a-token", nil, &body)
	if rec.Code != http.StatusUnauthorized || body.Error.Code != "UNAUTHENTICATED" {
		t.Fatalf("非法令牌应返回 401 信封, 实际 %d %+v", rec.Code, body)
	}
}

func TestHealthzBypassesAuth(t *testing.T) {
	handler := newTestHandler(t)

	var body map[string]string
	rec := do(t, handler, http.MethodGet, "/healthz", "", nil, &body)
	if rec.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("非预期响应: %v", body)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	handler := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "trace-42" {
		t.Fatalf("请求 ID 未透传: %q", got)
	}

	rec = do(t, handler, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("缺省请求 ID 未生成")
	}
}

func TestProjectLifecycle(t *testing.T) {
	handler := newTestHandler(t)
	token := issueToken(t, handler, "alice", "alice-pass")

	var project hub.Project
	rec := do(t, handler, http.MethodPost, "/api/v1/projects", token,
		hub.CreateProjectInput{Name: "apollo", Description: "launch planning"}, &project)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建项目返回 %d: %s", rec.Code, rec.Body.String())
	}
	if project.ID == 0 || project.Name != "apollo" {
		t.Fatalf("非预期项目: %+v", project)
	}

	newName := "apollo-v2"
	var updated hub.Project
	rec = do(t, handler, http.MethodPatch, fmt.Sprintf("/api/v1/projects/%d", project.ID), token,
		hub.UpdateProjectInput{Name: &newName}, &updated)
	if rec.Code != http.StatusOK || updated.Name != "apollo-v2" {
		t.Fatalf("更新项目失败: %d %+v", rec.Code, updated)
	}

	var task hub.Task
	rec = do(t, handler, http.MethodPost, "/api/v1/tasks", token,
		hub.CreateTaskInput{ProjectID: project.ID, Title: "design review"}, &task)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建任务返回 %d: %s", rec.Code, rec.Body.String())
	}

	var thread hub.Thread
	rec = do(t, handler, http.MethodPost, "/api/v1/threads", token,
		hub.CreateThreadInput{Title: "kickoff", ProjectID: &project.ID}, &thread)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建讨论串返回 %d: %s", rec.Code, rec.Body.String())
	}

	var message hub.Message
	rec = do(t, handler, http.MethodPost, "/api/v1/messages", token,
		hub.CreateMessageInput{ThreadID: thread.ID, Body: "welcome aboard"}, &message)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建消息返回 %d: %s", rec.Code, rec.Body.String())
	}
	if message.ThreadID != thread.ID {
		t.Fatalf("消息归属错误: %+v", message)
	}

	var tree []*hub.TaskNode
	rec = do(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d/tasks/tree", project.ID), token, nil, &tree)
	if rec.Code != http.StatusOK || len(tree) != 1 {
		t.Fatalf("任务树返回 %d, 节点数 %d", rec.Code, len(tree))
	}

	var events []*hub.AuditEvent
	rec = do(t, handler, http.MethodGet, "/api/v1/audit-events", token, nil, &events)
	if rec.Code != http.StatusOK || len(events) == 0 {
		t.Fatalf("审计事件列表返回 %d, 条数 %d", rec.Code, len(events))
	}

	rec = do(t, handler, http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", project.ID), token, nil, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("删除项目返回 %d", rec.Code)
	}
	rec = do(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", project.ID), token, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("删除后期望 404, 实际 %d", rec.Code)
	}
}

func TestValidationErrorsMapTo400(t *testing.T) {
	handler := newTestHandler(t)
	token := issueToken(t, handler, "alice", "alice-pass")

	var body errorBody
	rec := do(t, handler, http.MethodPost, "/api/v1/projects", token,
		hub.CreateProjectInput{Name: "   "}, &body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d: %s", rec.Code, rec.Body.String())
	}
	if body.Error.Code == "" {
		t.Fatal("错误码缺失")
	}
}

func TestViewerCannotUpdateProject(t *testing.T) {
	handler := newTestHandler(t)
	owner := issueToken(t, handler, "alice", "alice-pass")
	viewer := issueToken(t, handler, "bob", "bob-pass")

	var project hub.Project
	rec := do(t, handler, http.MethodPost, "/api/v1/projects", owner,
		hub.CreateProjectInput{Name: "restricted"}, &project)
	if rec.Code != http.StatusCreated {
		t.Fatalf("创建项目返回 %d", rec.Code)
	}

	var users []*hub.User
	rec = do(t, handler, http.MethodGet, "/api/v1/users?q=bob", owner, nil, &users)
	if rec.Code != http.StatusOK || len(users) != 1 {
		t.Fatalf("查找用户返回 %d, 条数 %d", rec.Code, len(users))
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/memberships", owner,
		hub.CreateMembershipInput{ProjectID: project.ID, UserID: users[0].ID, Role: hub.RoleViewer}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("添加成员返回 %d: %s", rec.Code, rec.Body.String())
	}

	name := "hijacked"
	rec = do(t, handler, http.MethodPatch, fmt.Sprintf("/api/v1/projects/%d", project.ID), viewer,
		hub.UpdateProjectInput{Name: &name}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer 改名期望 403, 实际 %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/projects/%d", project.ID), viewer, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("viewer 读取期望 200, 实际 %d", rec.Code)
	}
}

func TestGraphQLEndpoint(t *testing.T) {
	handler := newTestHandler(t)
	token := issueToken(t, handler, "alice", "alice-pass")

	rec := do(t, handler, http.MethodPost, "/graphql", "", map[string]any{
		"query": `{ projects { id } }`,
	}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("匿名 GraphQL 请求期望 401, 实际 %d", rec.Code)
	}

	var created struct {
		Data struct {
			CreateProject struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"createProject"`
		} `json:"data"`
		Errors []any `json:"errors"`
	}
	rec = do(t, handler, http.MethodPost, "/graphql", token, map[string]any{
		"query": `mutation($input: ProjectInput!) { createProject(input: $input) { id name } }`,
		"variables": map[string]any{
			"input": map[string]any{"name": "gql-project"},
		},
	}, &created)
	if rec.Code != http.StatusOK || len(created.Errors) != 0 {
		t.Fatalf("GraphQL 变更失败: %d %s", rec.Code, rec.Body.String())
	}
	if created.Data.CreateProject.Name != "gql-project" {
		t.Fatalf("非预期项目: %+v", created.Data.CreateProject)
	}
}

func TestListFilterParamAliases(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks?project=3&parent=0", nil)
	options := hub.BuildListOptions(listOptionsFromQuery(req)...)
	if options.ProjectID != 3 {
		t.Fatalf("project 别名未生效: %+v", options)
	}
	if options.ParentID == nil || *options.ParentID != 0 {
		t.Fatalf("parent 别名未生效: %+v", options)
	}

	// 带 _id 后缀的写法优先
	req = httptest.NewRequest(http.MethodGet, "/api/v1/threads?thread_id=7&thread=9&task=5", nil)
	options = hub.BuildListOptions(listOptionsFromQuery(req)...)
	if options.ThreadID != 7 || options.TaskID != 5 {
		t.Fatalf("过滤参数解析错误: %+v", options)
	}
}

func TestInvalidPathIDReturns400(t *testing.T) {
	handler := newTestHandler(t)
	token := issueToken(t, handler, "alice", "alice-pass")

	rec := do(t, handler, http.MethodGet, "/api/v1/projects/abc", token, nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("期望 400, 实际 %d", rec.Code)
	}
}
