package hub

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"

	"bothub/internal/auth"
	xerrors "bothub/internal/errors"
)

func seedUsers(t *testing.T, store *MemoryStore, seeds ...auth.Seed) map[string]*auth.Subject {
	t.Helper()
	subjects := make(map[string]*auth.Subject, len(seeds))
	for _, seed := range seeds {
		if err := store.ApplySeed(context.Background(), seed); err != nil {
			t.Fatalf("ApplySeed %s: %v", seed.Username, err)
		}
		user, err := store.FindUserByUsername(context.Background(), seed.Username)
		if err != nil {
			t.Fatalf("FindUserByUsername %s: %v", seed.Username, err)
		}
		subject, err := store.LoadSubject(context.Background(), user.ID)
		if err != nil {
			t.Fatalf("LoadSubject %s: %v", seed.Username, err)
		}
		subjects[seed.Username] = subject
	}
	return subjects
}

func asUser(subject *auth.Subject) context.Context {
	return auth.WithSubject(context.Background(), subject)
}

func TestCreateProjectGrantsOwnerMembership(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)

	project, err := svc.CreateProject(asUser(subjects["ada"]), CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	membership, err := store.FindMembership(context.Background(), project.ID, subjects["ada"].ID)
	if err != nil {
		t.Fatalf("FindMembership: %v", err)
	}
	if membership.Role != RoleOwner {
		t.Fatalf("expected owner role, got %s", membership.Role)
	}
	if membership.InvitedBy != subjects["ada"].ID {
		t.Fatalf("expected invited_by to be the creator")
	}
}

func TestProjectVisibilityFollowsMembership(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "grace", Password: "pw"},
		auth.Seed{Username: "root", Password: "pw", Superuser: true},
	)
	svc := NewService(store)

	project, err := svc.CreateProject(asUser(subjects["ada"]), CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := svc.GetProject(asUser(subjects["grace"]), project.ID); xerrors.CodeOf(err) != xerrors.CodePermissionDenied {
		t.Fatalf("expected permission denied for non-member, got %v", err)
	}
	if _, err := svc.GetProject(asUser(subjects["root"]), project.ID); err != nil {
		t.Fatalf("superuser should see the project: %v", err)
	}

	visible, err := svc.ListProjects(asUser(subjects["grace"]))
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(visible) != 0 {
		t.Fatalf("non-member should see no projects, got %d", len(visible))
	}
	all, err := svc.ListProjects(asUser(subjects["root"]))
	if err != nil {
		t.Fatalf("ListProjects as superuser: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("superuser should see every project, got %d", len(all))
	}
}

func TestListProjectsFiltersBeforePaginating(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "grace", Password: "pw"},
	)
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	// 25 个项目按名称排序，grace 只加入最后一个。
	// 可见性过滤必须先于分页，否则该项目会被挤出默认第一页。
	var last *Project
	for i := 1; i <= 25; i++ {
		project, err := svc.CreateProject(ctx, CreateProjectInput{Name: fmt.Sprintf("proj-%02d", i)})
		if err != nil {
			t.Fatalf("CreateProject %d: %v", i, err)
		}
		last = project
	}
	if _, err := svc.CreateMembership(ctx, CreateMembershipInput{
		ProjectID: last.ID, UserID: subjects["grace"].ID, Role: RoleMember,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	visible, err := svc.ListProjects(asUser(subjects["grace"]))
	if err != nil {
		t.Fatalf("ListProjects: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != last.ID {
		t.Fatalf("member's project must appear on the first page, got %d results", len(visible))
	}

	// 成员视角的分页窗口作用于过滤后的结果
	paged, err := svc.ListProjects(asUser(subjects["grace"]), WithLimit(10), WithOffset(1))
	if err != nil {
		t.Fatalf("ListProjects with offset: %v", err)
	}
	if len(paged) != 0 {
		t.Fatalf("offset past the filtered set should be empty, got %d", len(paged))
	}

	// 所有者不受影响，仍按 store 的分页返回
	firstPage, err := svc.ListProjects(ctx, WithLimit(20))
	if err != nil {
		t.Fatalf("ListProjects as owner: %v", err)
	}
	if len(firstPage) != 20 {
		t.Fatalf("owner first page should hold 20 projects, got %d", len(firstPage))
	}
}

func TestListTasksFiltersBeforePaginating(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "grace", Password: "pw"},
	)
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	hidden, err := svc.CreateProject(ctx, CreateProjectInput{Name: "hidden"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	shared, err := svc.CreateProject(ctx, CreateProjectInput{Name: "shared"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.CreateMembership(ctx, CreateMembershipInput{
		ProjectID: shared.ID, UserID: subjects["grace"].ID, Role: RoleMember,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	for i := 0; i < 25; i++ {
		if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: hidden.ID, Title: fmt.Sprintf("noise-%02d", i)}); err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
	}
	task, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: shared.ID, Title: "visible"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	visible, err := svc.ListTasks(asUser(subjects["grace"]))
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != task.ID {
		t.Fatalf("member's task must appear on the first page, got %d results", len(visible))
	}
}

func TestProjectDeleteRequiresOwner(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "grace", Password: "pw"},
	)
	svc := NewService(store)

	project, err := svc.CreateProject(asUser(subjects["ada"]), CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.CreateMembership(asUser(subjects["ada"]), CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["grace"].ID, Role: RoleAdmin,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	if err := svc.DeleteProject(asUser(subjects["grace"]), project.ID); xerrors.CodeOf(err) != xerrors.CodePermissionDenied {
		t.Fatalf("admin must not delete project, got %v", err)
	}
	if err := svc.DeleteProject(asUser(subjects["ada"]), project.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	if _, err := store.GetProject(context.Background(), project.ID); !stdErrors.Is(err, ErrNotFound) {
		t.Fatalf("project should be gone, got %v", err)
	}
}

func TestMembershipManagementRequiresAdmin(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "grace", Password: "pw"},
		auth.Seed{Username: "linus", Password: "pw"},
	)
	svc := NewService(store)

	project, err := svc.CreateProject(asUser(subjects["ada"]), CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if _, err := svc.CreateMembership(asUser(subjects["ada"]), CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["grace"].ID, Role: RoleMember,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	// member 不能管理成员
	if _, err := svc.CreateMembership(asUser(subjects["grace"]), CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["linus"].ID,
	}); xerrors.CodeOf(err) != xerrors.CodePermissionDenied {
		t.Fatalf("member must not manage memberships, got %v", err)
	}

	// 重复添加返回冲突
	if _, err := svc.CreateMembership(asUser(subjects["ada"]), CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["grace"].ID,
	}); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("expected conflict for duplicate membership, got %v", err)
	}
}

func TestTaskValidation(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, err := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	other, err := svc.CreateProject(ctx, CreateProjectInput{Name: "gemini"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "  "}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected validation error for blank title, got %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "t", Priority: 9}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected validation error for priority, got %v", err)
	}

	task, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "build"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.Status != TaskStatusBacklog || task.Priority != 2 {
		t.Fatalf("expected defaults backlog/2, got %s/%d", task.Status, task.Priority)
	}

	// 父任务必须属于同一项目
	foreign, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: other.ID, Title: "elsewhere"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{
		ProjectID: project.ID, Title: "child", ParentID: &foreign.ID,
	}); xerrors.CodeOf(err) != CodeTaskHierarchy {
		t.Fatalf("expected hierarchy error, got %v", err)
	}

	// 任务不能作为自身的父任务
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{ParentID: &task.ID}); xerrors.CodeOf(err) != CodeTaskHierarchy {
		t.Fatalf("expected self-parent rejection, got %v", err)
	}
}

func TestTaskParentCycleRejected(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	root, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "root"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	child, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "child", ParentID: &root.ID})
	if err != nil {
		t.Fatalf("CreateTask child: %v", err)
	}
	if _, err := svc.UpdateTask(ctx, root.ID, UpdateTaskInput{ParentID: &child.ID}); xerrors.CodeOf(err) != CodeTaskHierarchy {
		t.Fatalf("expected cycle rejection, got %v", err)
	}
}

func TestThreadScopeValidation(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	task, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "build"})

	if _, err := svc.CreateThread(ctx, CreateThreadInput{Title: "loose"}); xerrors.CodeOf(err) != CodeThreadScope {
		t.Fatalf("expected scope error for no anchor, got %v", err)
	}
	if _, err := svc.CreateThread(ctx, CreateThreadInput{
		Title: "both", ProjectID: &project.ID, TaskID: &task.ID,
	}); xerrors.CodeOf(err) != CodeThreadScope {
		t.Fatalf("expected scope error for double anchor, got %v", err)
	}

	thread, err := svc.CreateThread(ctx, CreateThreadInput{Title: "standup", TaskID: &task.ID})
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if thread.Kind != ThreadKindGeneral {
		t.Fatalf("expected default kind general, got %s", thread.Kind)
	}
}

func TestMessageAuthorDefaults(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw", Kind: auth.KindHuman},
		auth.Seed{Username: "crawler", Password: "pw", Kind: auth.KindAgent},
	)
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	if _, err := svc.CreateMembership(ctx, CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["crawler"].ID, Role: RoleMember,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}
	thread, _ := svc.CreateThread(ctx, CreateThreadInput{Title: "general", ProjectID: &project.ID})

	human, err := svc.CreateMessage(ctx, CreateMessageInput{ThreadID: thread.ID, Body: "hello"})
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if human.AuthorRole != AuthorRoleHuman || human.AuthorLabel != "ada" {
		t.Fatalf("unexpected human defaults %s/%s", human.AuthorRole, human.AuthorLabel)
	}

	agent, err := svc.CreateMessage(asUser(subjects["crawler"]), CreateMessageInput{ThreadID: thread.ID, Body: "ack"})
	if err != nil {
		t.Fatalf("CreateMessage as agent: %v", err)
	}
	if agent.AuthorRole != AuthorRoleAgent || agent.AuthorLabel != "crawler" {
		t.Fatalf("unexpected agent defaults %s/%s", agent.AuthorRole, agent.AuthorLabel)
	}

	messages, err := svc.ListMessages(ctx, WithThread(thread.ID))
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 || messages[0].ID != human.ID {
		t.Fatalf("expected chronological order, got %d messages", len(messages))
	}
}

func TestViewerCannotEdit(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store,
		auth.Seed{Username: "ada", Password: "pw"},
		auth.Seed{Username: "guest", Password: "pw"},
	)
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	if _, err := svc.CreateMembership(ctx, CreateMembershipInput{
		ProjectID: project.ID, UserID: subjects["guest"].ID, Role: RoleViewer,
	}); err != nil {
		t.Fatalf("CreateMembership: %v", err)
	}

	guestCtx := asUser(subjects["guest"])
	if _, err := svc.GetProject(guestCtx, project.ID); err != nil {
		t.Fatalf("viewer should read the project: %v", err)
	}
	if _, err := svc.CreateTask(guestCtx, CreateTaskInput{ProjectID: project.ID, Title: "nope"}); xerrors.CodeOf(err) != xerrors.CodePermissionDenied {
		t.Fatalf("viewer must not create tasks, got %v", err)
	}
}

func TestMutationsRecordAuditEvents(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, _ := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "build"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	events, err := svc.ListAuditEvents(ctx, WithVerb("task.created"))
	if err != nil {
		t.Fatalf("ListAuditEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected one task.created event, got %d", len(events))
	}
	if events[0].ActorID != subjects["ada"].ID || events[0].TargetKind != "task" {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	svc := NewService(NewMemoryStore())
	if _, err := svc.ListProjects(context.Background()); xerrors.CodeOf(err) != xerrors.CodeUnauthenticated {
		t.Fatalf("expected unauthenticated error, got %v", err)
	}

	devSvc := NewService(NewMemoryStore(), WithAnonymousAccess())
	if _, err := devSvc.ListProjects(context.Background()); err != nil {
		t.Fatalf("anonymous access should pass in dev mode: %v", err)
	}
}

type captureSink struct {
	events []*AuditEvent
}

func (c *captureSink) Publish(_ context.Context, event *AuditEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestEventSinkReceivesMutations(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	sink := &captureSink{}
	svc := NewService(store, WithEventSink(sink))

	if _, err := svc.CreateProject(asUser(subjects["ada"]), CreateProjectInput{Name: "apollo"}); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(sink.events) != 1 || sink.events[0].Verb != "project.created" {
		t.Fatalf("expected project.created in sink, got %+v", sink.events)
	}
}
