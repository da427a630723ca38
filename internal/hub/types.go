package hub

import (
	"regexp"
	"strings"

	xerrors "bothub/internal/errors"
)

// Role 表示成员在项目中的角色。
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// IsValidRole 检查给定的成员角色是否为支持的枚举值。
func IsValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer:
		return true
	default:
		return false
	}
}

// TaskStatus 表示任务在生命周期中的状态。
type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "backlog"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDone       TaskStatus = "done"
)

// IsValidTaskStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusBlocked, TaskStatusDone:
		return true
	default:
		return false
	}
}

// AssignmentRole 表示任务指派记录的角色。
type AssignmentRole string

const (
	AssignmentRoleOwner    AssignmentRole = "owner"
	AssignmentRoleAssignee AssignmentRole = "assignee"
	AssignmentRoleReviewer AssignmentRole = "reviewer"
)

// IsValidAssignmentRole 检查任务指派角色是否合法。
func IsValidAssignmentRole(role AssignmentRole) bool {
	switch role {
	case AssignmentRoleOwner, AssignmentRoleAssignee, AssignmentRoleReviewer:
		return true
	default:
		return false
	}
}

// ThreadKind 表示讨论串的类型。
type ThreadKind string

const (
	ThreadKindGeneral  ThreadKind = "general"
	ThreadKindPlanning ThreadKind = "planning"
	ThreadKindUpdate   ThreadKind = "update"
)

// IsValidThreadKind 检查讨论串类型是否合法。
func IsValidThreadKind(kind ThreadKind) bool {
	switch kind {
	case ThreadKindGeneral, ThreadKindPlanning, ThreadKindUpdate:
		return true
	default:
		return false
	}
}

// AuthorRole 表示消息作者的身份来源。
type AuthorRole string

const (
	AuthorRoleHuman  AuthorRole = "human"
	AuthorRoleAgent  AuthorRole = "agent"
	AuthorRoleSystem AuthorRole = "system"
)

// IsValidAuthorRole 检查消息作者身份是否合法。
func IsValidAuthorRole(role AuthorRole) bool {
	switch role {
	case AuthorRoleHuman, AuthorRoleAgent, AuthorRoleSystem:
		return true
	default:
		return false
	}
}

// ProfileKind 表示用户的类别，agent 享有更高的限流配额。
type ProfileKind string

const (
	ProfileKindHuman ProfileKind = "human"
	ProfileKindAgent ProfileKind = "agent"
)

// IsValidProfileKind 检查用户类别是否合法。
func IsValidProfileKind(kind ProfileKind) bool {
	switch kind {
	case ProfileKindHuman, ProfileKindAgent:
		return true
	default:
		return false
	}
}

// User 描述协作平台上的账号。
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	Superuser bool   `json:"superuser"`
	Disabled  bool   `json:"disabled"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// UserProfile 描述账号的扩展信息，每个账号仅有一条。
type UserProfile struct {
	UserID      int64       `json:"user_id"`
	Kind        ProfileKind `json:"kind"`
	DisplayName string      `json:"display_name,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   int64       `json:"created_at"`
}

// Project 描述一个协作项目。
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Archived    bool   `json:"is_archived"`
	CreatedBy   int64  `json:"created_by,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Membership 描述账号在项目中的成员关系，(project,user) 唯一。
type Membership struct {
	ID        int64 `json:"id"`
	ProjectID int64 `json:"project_id"`
	UserID    int64 `json:"user_id"`
	Role      Role  `json:"role"`
	InvitedBy int64 `json:"invited_by,omitempty"`
	CreatedAt int64 `json:"created_at"`
}

// Tag 描述可以附加到任务上的标签，名称与 slug 全局唯一。
type Tag struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

// Task 描述项目内的一项工作，可以拥有父任务形成树。
type Task struct {
	ID          int64      `json:"id"`
	ProjectID   int64      `json:"project_id"`
	ParentID    *int64     `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	Position    int        `json:"position"`
	DueAt       *int64     `json:"due_at,omitempty"`
	TagIDs      []int64    `json:"tag_ids,omitempty"`
	CreatedBy   int64      `json:"created_by,omitempty"`
	CreatedAt   int64      `json:"created_at"`
	UpdatedAt   int64      `json:"updated_at"`
}

// Clone 返回任务的深拷贝，避免调用方修改存储内部状态。
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ParentID != nil {
		parent := *t.ParentID
		clone.ParentID = &parent
	}
	if t.DueAt != nil {
		due := *t.DueAt
		clone.DueAt = &due
	}
	if t.TagIDs != nil {
		clone.TagIDs = append([]int64(nil), t.TagIDs...)
	}
	return &clone
}

// Assignment 描述任务的指派记录，(task,assignee,role) 唯一。
type Assignment struct {
	ID         int64          `json:"id"`
	TaskID     int64          `json:"task_id"`
	AssigneeID int64          `json:"assignee_id"`
	Role       AssignmentRole `json:"role"`
	AddedBy    int64          `json:"added_by,omitempty"`
	CreatedAt  int64          `json:"created_at"`
}

// Thread 描述一个讨论串，必须且只能挂在项目或任务之一上。
type Thread struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Kind      ThreadKind `json:"kind"`
	ProjectID *int64     `json:"project_id,omitempty"`
	TaskID    *int64     `json:"task_id,omitempty"`
	CreatedBy int64      `json:"created_by,omitempty"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
}

// Clone 返回讨论串的深拷贝。
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	clone := *t
	if t.ProjectID != nil {
		project := *t.ProjectID
		clone.ProjectID = &project
	}
	if t.TaskID != nil {
		task := *t.TaskID
		clone.TaskID = &task
	}
	return &clone
}

// Message 描述讨论串内的一条消息，按 created_at,id 升序排列。
type Message struct {
	ID          int64          `json:"id"`
	ThreadID    int64          `json:"thread_id"`
	CreatedBy   int64          `json:"created_by,omitempty"`
	AuthorRole  AuthorRole     `json:"author_role"`
	AuthorLabel string         `json:"author_label,omitempty"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   int64          `json:"created_at"`
}

// Clone 返回消息的深拷贝。
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Metadata = cloneMetadata(m.Metadata)
	return &clone
}

// AuditEvent 描述一次写操作的审计记录，按时间倒序排列。
type AuditEvent struct {
	ID         int64          `json:"id"`
	ActorID    int64          `json:"actor_id,omitempty"`
	Verb       string         `json:"verb"`
	TargetKind string         `json:"target_kind,omitempty"`
	TargetID   int64          `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  int64          `json:"created_at"`
}

// Clone 返回审计记录的深拷贝。
func (e *AuditEvent) Clone() *AuditEvent {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Metadata = cloneMetadata(e.Metadata)
	return &clone
}

// Webhook 描述一个事件推送目标。Events 为空表示订阅全部事件。
type Webhook struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	URL       string   `json:"url"`
	Secret    string   `json:"secret,omitempty"`
	Events    []string `json:"events,omitempty"`
	Active    bool     `json:"is_active"`
	CreatedAt int64    `json:"created_at"`
}

// Clone 返回 Webhook 的深拷贝。
func (w *Webhook) Clone() *Webhook {
	if w == nil {
		return nil
	}
	clone := *w
	if w.Events != nil {
		clone.Events = append([]string(nil), w.Events...)
	}
	return &clone
}

var (
	// ErrNotFound 表示指定的资源不存在。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "resource not found")
	// ErrConflict 表示资源与现有记录冲突。
	ErrConflict = xerrors.New(xerrors.CodeConflict, "resource conflict")
	// ErrValidation 表示请求内容未通过校验。
	ErrValidation = xerrors.New(xerrors.CodeInvalidArgument, "validation failed")
	// ErrPermissionDenied 表示调用方没有执行该操作的权限。
	ErrPermissionDenied = xerrors.New(xerrors.CodePermissionDenied, "permission denied")
)

const (
	CodeThreadScope   xerrors.Code = "THREAD_SCOPE_INVALID"
	CodeTaskHierarchy xerrors.Code = "TASK_HIERARCHY_INVALID"
)

func init() {
	xerrors.Register(CodeThreadScope, xerrors.Attributes{
		Message:    "thread must reference exactly one of project or task",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: 400,
	})
	xerrors.Register(CodeTaskHierarchy, xerrors.Attributes{
		Message:    "task parent must belong to the same project",
		Severity:   xerrors.SeverityInfo,
		HTTPStatus: 400,
	})
}

func cloneMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]any, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

var slugStrip = regexp.MustCompile(`[^a-z0-9\s-]`)

// Slugify 将标签名称转换为 URL 友好的 slug。
func Slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = strings.Join(strings.Fields(slug), "-")
	slug = strings.Trim(slug, "-")
	return slug
}
