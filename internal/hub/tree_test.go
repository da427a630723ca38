package hub

import (
	"testing"

	"bothub/internal/auth"
)

func TestTaskTreeNesting(t *testing.T) {
	store := NewMemoryStore()
	subjects := seedUsers(t, store, auth.Seed{Username: "ada", Password: "pw"})
	svc := NewService(store)
	ctx := asUser(subjects["ada"])

	project, err := svc.CreateProject(ctx, CreateProjectInput{Name: "apollo"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	root1, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "design", Position: 1})
	root2, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "build", Position: 2})
	child, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "schema", ParentID: &root1.ID, Position: 1})
	if err != nil {
		t.Fatalf("CreateTask child: %v", err)
	}
	if _, err := svc.CreateTask(ctx, CreateTaskInput{ProjectID: project.ID, Title: "api", ParentID: &child.ID, Position: 1}); err != nil {
		t.Fatalf("CreateTask grandchild: %v", err)
	}

	tree, err := svc.TaskTree(ctx, project.ID)
	if err != nil {
		t.Fatalf("TaskTree: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(tree))
	}
	if tree[0].Task.ID != root1.ID || tree[1].Task.ID != root2.ID {
		t.Fatalf("roots out of order")
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Task.ID != child.ID {
		t.Fatalf("expected schema under design")
	}
	if len(tree[0].Children[0].Children) != 1 {
		t.Fatalf("expected grandchild under schema")
	}
	if len(tree[1].Children) != 0 {
		t.Fatalf("build should have no children")
	}
}

func TestTaskTreeRequiresView(t *testing.T) {
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
	if _, err := svc.TaskTree(asUser(subjects["grace"]), project.ID); err == nil {
		t.Fatalf("expected permission denied for non-member")
	}
}
