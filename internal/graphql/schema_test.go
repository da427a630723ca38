package graphql

import (
	"context"
	"testing"

	"github.com/graphql-go/graphql"

	"bothub/internal/auth"
	"bothub/internal/hub"
)

func newTestService(t *testing.T) (*hub.Service, context.Context) {
	t.Helper()
	store := hub.NewMemoryStore()
	if err := store.ApplySeed(t.Context(), auth.Seed{
		Username: "alice", Password: "alice-pass", Superuser: true,
	}); err != nil {
		t.Fatalf("写入种子账号失败: %v", err)
	}
	users, err := store.ListUsers(t.Context())
	if err != nil || len(users) != 1 {
		t.Fatalf("读取种子账号失败: %v", err)
	}
	svc := hub.NewService(store)
	ctx := auth.WithSubject(t.Context(), &auth.Subject{
		ID: users[0].ID, Username: "alice", Kind: auth.KindHuman, Superuser: true,
	})
	return svc, ctx
}

func execute(t *testing.T, svc *hub.Service, ctx context.Context, query string, variables map[string]any) *graphql.Result {
	t.Helper()
	schema, err := NewSchema(svc)
	if err != nil {
		t.Fatalf("构建 schema 失败: %v", err)
	}
	return graphql.Do(graphql.Params{
		Schema:         schema,
		RequestString:  query,
		VariableValues: variables,
		Context:        ctx,
	})
}

func TestQueryProjects(t *testing.T) {
	svc, ctx := newTestService(t)
	if _, err := svc.CreateProject(ctx, hub.CreateProjectInput{Name: "apollo"}); err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}

	result := execute(t, svc, ctx, `{ projects { id name } }`, nil)
	if result.HasErrors() {
		t.Fatalf("查询失败: %v", result.Errors)
	}
	projects := result.Data.(map[string]any)["projects"].([]any)
	if len(projects) != 1 {
		t.Fatalf("期望 1 个项目, 实际 %d", len(projects))
	}
	if name := projects[0].(map[string]any)["name"]; name != "apollo" {
		t.Fatalf("非预期项目名: %v", name)
	}
}

func TestQueryRequiresSubject(t *testing.T) {
	svc, _ := newTestService(t)

	result := execute(t, svc, context.Background(), `{ projects { id } }`, nil)
	if !result.HasErrors() {
		t.Fatal("匿名查询应当失败")
	}
}

func TestCreateProjectMutation(t *testing.T) {
	svc, ctx := newTestService(t)

	result := execute(t, svc, ctx, `
		mutation($input: ProjectInput!) {
			createProject(input: $input) { id name description }
		}
	`, map[string]any{
		"input": map[string]any{"name": "hermes", "description": "messaging revamp"},
	})
	if result.HasErrors() {
		t.Fatalf("变更失败: %v", result.Errors)
	}
	created := result.Data.(map[string]any)["createProject"].(map[string]any)
	if created["name"] != "hermes" {
		t.Fatalf("非预期项目: %v", created)
	}

	// 创建者自动获得 owner 成员关系。
	memberships, err := svc.ListMemberships(ctx)
	if err != nil || len(memberships) != 1 {
		t.Fatalf("读取成员关系失败: err=%v, 条数=%d", err, len(memberships))
	}
	if memberships[0].Role != hub.RoleOwner {
		t.Fatalf("期望 owner 角色, 实际 %s", memberships[0].Role)
	}
}

func TestCreateThreadRequiresScope(t *testing.T) {
	svc, ctx := newTestService(t)

	result := execute(t, svc, ctx, `
		mutation($input: ThreadInput!) {
			createThread(input: $input) { id }
		}
	`, map[string]any{
		"input": map[string]any{"title": "floating"},
	})
	if !result.HasErrors() {
		t.Fatal("缺少挂载点的讨论串应当被拒绝")
	}
}

func TestNestedTaskResolvers(t *testing.T) {
	svc, ctx := newTestService(t)
	project, err := svc.CreateProject(ctx, hub.CreateProjectInput{Name: "nested"})
	if err != nil {
		t.Fatalf("创建项目失败: %v", err)
	}
	parent, err := svc.CreateTask(ctx, hub.CreateTaskInput{ProjectID: project.ID, Title: "epic"})
	if err != nil {
		t.Fatalf("创建任务失败: %v", err)
	}
	if _, err := svc.CreateTask(ctx, hub.CreateTaskInput{
		ProjectID: project.ID, ParentID: &parent.ID, Title: "subtask",
	}); err != nil {
		t.Fatalf("创建子任务失败: %v", err)
	}

	result := execute(t, svc, ctx, `
		query($id: ID!) {
			project(id: $id) {
				name
				tasks { title project { id } }
			}
		}
	`, map[string]any{"id": project.ID})
	if result.HasErrors() {
		t.Fatalf("查询失败: %v", result.Errors)
	}
	data := result.Data.(map[string]any)["project"].(map[string]any)
	tasks := data["tasks"].([]any)
	if len(tasks) != 2 {
		t.Fatalf("期望 2 个任务, 实际 %d", len(tasks))
	}
}
