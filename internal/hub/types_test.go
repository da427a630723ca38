package hub

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Infra", "infra"},
		{"  Needs Review  ", "needs-review"},
		{"C++ / Go!", "c-go"},
		{"already-slugged", "already-slugged"},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRoleRanking(t *testing.T) {
	if !RoleOwner.AtLeast(RoleAdmin) {
		t.Fatalf("owner should outrank admin")
	}
	if RoleViewer.AtLeast(RoleMember) {
		t.Fatalf("viewer must not reach member")
	}
	if !RoleMember.AtLeast(RoleMember) {
		t.Fatalf("role should satisfy itself")
	}
	if Role("stranger").AtLeast(RoleViewer) {
		t.Fatalf("unknown role must rank below viewer")
	}
}

func TestEnumValidation(t *testing.T) {
	if !IsValidTaskStatus(TaskStatusInProgress) || IsValidTaskStatus("paused") {
		t.Fatalf("task status validation broken")
	}
	if !IsValidThreadKind(ThreadKindPlanning) || IsValidThreadKind("retro") {
		t.Fatalf("thread kind validation broken")
	}
	if !IsValidAuthorRole(AuthorRoleSystem) || IsValidAuthorRole("robot") {
		t.Fatalf("author role validation broken")
	}
	if !IsValidAssignmentRole(AssignmentRoleReviewer) || IsValidAssignmentRole("owner2") {
		t.Fatalf("assignment role validation broken")
	}
}
