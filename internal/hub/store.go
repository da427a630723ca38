package hub

import "context"

// Store 定义协作数据的持久化接口。
type Store interface {
	// 用户与档案（只读，账号写入由认证种子完成）。
	GetUser(ctx context.Context, id int64) (*User, error)
	ListUsers(ctx context.Context, opts ...ListOption) ([]*User, error)
	GetProfile(ctx context.Context, userID int64) (*UserProfile, error)
	ListProfiles(ctx context.Context, opts ...ListOption) ([]*UserProfile, error)

	// 项目。
	CreateProject(ctx context.Context, project *Project) error
	GetProject(ctx context.Context, id int64) (*Project, error)
	UpdateProject(ctx context.Context, project *Project) error
	DeleteProject(ctx context.Context, id int64) error
	ListProjects(ctx context.Context, opts ...ListOption) ([]*Project, error)

	// 成员关系。
	CreateMembership(ctx context.Context, membership *Membership) error
	GetMembership(ctx context.Context, id int64) (*Membership, error)
	FindMembership(ctx context.Context, projectID, userID int64) (*Membership, error)
	UpdateMembership(ctx context.Context, membership *Membership) error
	DeleteMembership(ctx context.Context, id int64) error
	ListMemberships(ctx context.Context, opts ...ListOption) ([]*Membership, error)

	// 标签。
	CreateTag(ctx context.Context, tag *Tag) error
	GetTag(ctx context.Context, id int64) (*Tag, error)
	UpdateTag(ctx context.Context, tag *Tag) error
	DeleteTag(ctx context.Context, id int64) error
	ListTags(ctx context.Context, opts ...ListOption) ([]*Tag, error)

	// 任务。
	CreateTask(ctx context.Context, task *Task) error
	GetTask(ctx context.Context, id int64) (*Task, error)
	UpdateTask(ctx context.Context, task *Task) error
	DeleteTask(ctx context.Context, id int64) error
	ListTasks(ctx context.Context, opts ...ListOption) ([]*Task, error)

	// 任务指派。
	CreateAssignment(ctx context.Context, assignment *Assignment) error
	GetAssignment(ctx context.Context, id int64) (*Assignment, error)
	DeleteAssignment(ctx context.Context, id int64) error
	ListAssignments(ctx context.Context, opts ...ListOption) ([]*Assignment, error)

	// 讨论串与消息。
	CreateThread(ctx context.Context, thread *Thread) error
	GetThread(ctx context.Context, id int64) (*Thread, error)
	UpdateThread(ctx context.Context, thread *Thread) error
	DeleteThread(ctx context.Context, id int64) error
	ListThreads(ctx context.Context, opts ...ListOption) ([]*Thread, error)
	CreateMessage(ctx context.Context, message *Message) error
	GetMessage(ctx context.Context, id int64) (*Message, error)
	ListMessages(ctx context.Context, opts ...ListOption) ([]*Message, error)

	// 审计。
	AppendAuditEvent(ctx context.Context, event *AuditEvent) error
	GetAuditEvent(ctx context.Context, id int64) (*AuditEvent, error)
	ListAuditEvents(ctx context.Context, opts ...ListOption) ([]*AuditEvent, error)

	// Webhook 订阅。
	CreateWebhook(ctx context.Context, webhook *Webhook) error
	ListWebhooks(ctx context.Context, activeOnly bool) ([]*Webhook, error)
}
