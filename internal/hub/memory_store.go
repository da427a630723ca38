package hub

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bothub/internal/auth"
	xerrors "bothub/internal/errors"
)

// MemoryStore 以内存方式保存协作数据，用于开发模式与测试。
// 同时实现认证层的用户查询接口，使内存模式下两者共享账号。
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[int64]*User
	usersByName map[string]int64
	passwords   map[int64]string
	profiles    map[int64]*UserProfile
	projects    map[int64]*Project
	memberships map[int64]*Membership
	tags        map[int64]*Tag
	tasks       map[int64]*Task
	assignments map[int64]*Assignment
	threads     map[int64]*Thread
	messages    map[int64]*Message
	audits      map[int64]*AuditEvent
	webhooks    map[int64]*Webhook
	nextID      int64
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[int64]*User),
		usersByName: make(map[string]int64),
		passwords:   make(map[int64]string),
		profiles:    make(map[int64]*UserProfile),
		projects:    make(map[int64]*Project),
		memberships: make(map[int64]*Membership),
		tags:        make(map[int64]*Tag),
		tasks:       make(map[int64]*Task),
		assignments: make(map[int64]*Assignment),
		threads:     make(map[int64]*Thread),
		messages:    make(map[int64]*Message),
		audits:      make(map[int64]*AuditEvent),
		webhooks:    make(map[int64]*Webhook),
		nextID:      1,
	}
}

func (m *MemoryStore) allocID() int64 {
	id := m.nextID
	m.nextID++
	return id
}

// ---- 认证接口 ----

// ApplySeed 实现 auth.SeedWriter，按用户名幂等写入账号与档案。
func (m *MemoryStore) ApplySeed(_ context.Context, seed auth.Seed) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "seed username cannot be empty")
	}
	hashed, err := auth.HashPassword(seed.Password)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	id, ok := m.usersByName[username]
	if !ok {
		id = m.allocID()
		m.users[id] = &User{ID: id, Username: username, CreatedAt: now}
		m.usersByName[username] = id
	}
	user := m.users[id]
	user.Superuser = seed.Superuser
	user.Disabled = seed.Disabled
	user.UpdatedAt = now
	m.passwords[id] = hashed
	kind := ProfileKindHuman
	if auth.ParseKind(string(seed.Kind)) == auth.KindAgent {
		kind = ProfileKindAgent
	}
	profile, ok := m.profiles[id]
	if !ok {
		profile = &UserProfile{UserID: id, CreatedAt: now}
		m.profiles[id] = profile
	}
	profile.Kind = kind
	profile.DisplayName = seed.DisplayName
	return nil
}

// FindUserByUsername 实现 auth.Store。
func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.usersByName[strings.TrimSpace(username)]
	if !ok {
		return nil, ErrNotFound
	}
	user := m.users[id]
	return &auth.User{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		PasswordHash: m.passwords[id],
		Superuser:    user.Superuser,
		Disabled:     user.Disabled,
	}, nil
}

// LoadSubject 实现 auth.Store，档案缺失时按 human 处理。
func (m *MemoryStore) LoadSubject(_ context.Context, userID int64) (*auth.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	kind := auth.KindHuman
	if profile, ok := m.profiles[userID]; ok && profile.Kind == ProfileKindAgent {
		kind = auth.KindAgent
	}
	return &auth.Subject{
		ID:        user.ID,
		Username:  user.Username,
		Kind:      kind,
		Superuser: user.Superuser,
		Disabled:  user.Disabled,
	}, nil
}

// ---- 用户与档案 ----

// GetUser 返回用户。
func (m *MemoryStore) GetUser(_ context.Context, id int64) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// ListUsers 按用户名升序返回用户。
func (m *MemoryStore) ListUsers(_ context.Context, opts ...ListOption) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*User, 0, len(m.users))
	for _, user := range m.users {
		if options.Query != "" && !strings.Contains(strings.ToLower(user.Username), strings.ToLower(options.Query)) {
			continue
		}
		clone := *user
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Username == results[j].Username {
			return results[i].ID < results[j].ID
		}
		return results[i].Username < results[j].Username
	})
	return paginate(results, options), nil
}

// GetProfile 返回用户档案。
func (m *MemoryStore) GetProfile(_ context.Context, userID int64) (*UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	profile, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *profile
	return &clone, nil
}

// ListProfiles 按 user_id 升序返回档案。
func (m *MemoryStore) ListProfiles(_ context.Context, opts ...ListOption) ([]*UserProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*UserProfile, 0, len(m.profiles))
	for _, profile := range m.profiles {
		if options.ProfileKind != "" && profile.Kind != options.ProfileKind {
			continue
		}
		clone := *profile
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].UserID < results[j].UserID })
	return paginate(results, options), nil
}

// ---- 项目 ----

// CreateProject 实现 Store 接口。
func (m *MemoryStore) CreateProject(_ context.Context, project *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if project == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "project 不能为空")
	}
	now := time.Now().Unix()
	project.ID = m.allocID()
	project.CreatedAt = now
	project.UpdatedAt = now
	clone := *project
	m.projects[project.ID] = &clone
	return nil
}

// GetProject 返回项目。
func (m *MemoryStore) GetProject(_ context.Context, id int64) (*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	project, ok := m.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *project
	return &clone, nil
}

// UpdateProject 覆盖项目的可变字段。
func (m *MemoryStore) UpdateProject(_ context.Context, project *Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.projects[project.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Name = project.Name
	existing.Description = project.Description
	existing.Archived = project.Archived
	existing.UpdatedAt = time.Now().Unix()
	*project = *existing
	return nil
}

// DeleteProject 删除项目并级联其成员、任务与讨论。
func (m *MemoryStore) DeleteProject(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[id]; !ok {
		return ErrNotFound
	}
	delete(m.projects, id)
	for mid, membership := range m.memberships {
		if membership.ProjectID == id {
			delete(m.memberships, mid)
		}
	}
	for tid, task := range m.tasks {
		if task.ProjectID == id {
			m.deleteTaskLocked(tid)
		}
	}
	for thid, thread := range m.threads {
		if thread.ProjectID != nil && *thread.ProjectID == id {
			m.deleteThreadLocked(thid)
		}
	}
	return nil
}

// ListProjects 按 name,id 升序返回项目。
func (m *MemoryStore) ListProjects(_ context.Context, opts ...ListOption) ([]*Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Project, 0, len(m.projects))
	for _, project := range m.projects {
		if project.Archived && !options.IncludeArchived {
			continue
		}
		if options.Query != "" && !strings.Contains(strings.ToLower(project.Name), strings.ToLower(options.Query)) {
			continue
		}
		clone := *project
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name == results[j].Name {
			return results[i].ID < results[j].ID
		}
		return results[i].Name < results[j].Name
	})
	return paginate(results, options), nil
}

// ---- 成员关系 ----

// CreateMembership 实现 Store 接口，(project,user) 冲突时返回 ErrConflict。
func (m *MemoryStore) CreateMembership(_ context.Context, membership *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[membership.ProjectID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.memberships {
		if existing.ProjectID == membership.ProjectID && existing.UserID == membership.UserID {
			return ErrConflict
		}
	}
	membership.ID = m.allocID()
	membership.CreatedAt = time.Now().Unix()
	clone := *membership
	m.memberships[membership.ID] = &clone
	return nil
}

// GetMembership 返回成员关系。
func (m *MemoryStore) GetMembership(_ context.Context, id int64) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	membership, ok := m.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *membership
	return &clone, nil
}

// FindMembership 按 (project,user) 返回成员关系。
func (m *MemoryStore) FindMembership(_ context.Context, projectID, userID int64) (*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, membership := range m.memberships {
		if membership.ProjectID == projectID && membership.UserID == userID {
			clone := *membership
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateMembership 更新成员角色。
func (m *MemoryStore) UpdateMembership(_ context.Context, membership *Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.memberships[membership.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Role = membership.Role
	*membership = *existing
	return nil
}

// DeleteMembership 删除成员关系。
func (m *MemoryStore) DeleteMembership(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.memberships[id]; !ok {
		return ErrNotFound
	}
	delete(m.memberships, id)
	return nil
}

// ListMemberships 按 id 升序返回成员关系。
func (m *MemoryStore) ListMemberships(_ context.Context, opts ...ListOption) ([]*Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Membership, 0, len(m.memberships))
	for _, membership := range m.memberships {
		if options.ProjectID != 0 && membership.ProjectID != options.ProjectID {
			continue
		}
		clone := *membership
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return paginate(results, options), nil
}

// ---- 标签 ----

// CreateTag 实现 Store 接口，名称或 slug 冲突时返回 ErrConflict。
func (m *MemoryStore) CreateTag(_ context.Context, tag *Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tags {
		if existing.Name == tag.Name || existing.Slug == tag.Slug {
			return ErrConflict
		}
	}
	tag.ID = m.allocID()
	tag.CreatedAt = time.Now().Unix()
	clone := *tag
	m.tags[tag.ID] = &clone
	return nil
}

// GetTag 返回标签。
func (m *MemoryStore) GetTag(_ context.Context, id int64) (*Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tag, ok := m.tags[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *tag
	return &clone, nil
}

// UpdateTag 更新标签字段，冲突检查不包含自身。
func (m *MemoryStore) UpdateTag(_ context.Context, tag *Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tags[tag.ID]
	if !ok {
		return ErrNotFound
	}
	for _, other := range m.tags {
		if other.ID == tag.ID {
			continue
		}
		if other.Name == tag.Name || other.Slug == tag.Slug {
			return ErrConflict
		}
	}
	existing.Name = tag.Name
	existing.Slug = tag.Slug
	existing.Color = tag.Color
	existing.Description = tag.Description
	*tag = *existing
	return nil
}

// DeleteTag 删除标签并解除任务关联。
func (m *MemoryStore) DeleteTag(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[id]; !ok {
		return ErrNotFound
	}
	delete(m.tags, id)
	for _, task := range m.tasks {
		task.TagIDs = removeID(task.TagIDs, id)
	}
	return nil
}

// ListTags 按名称升序返回标签。
func (m *MemoryStore) ListTags(_ context.Context, opts ...ListOption) ([]*Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Tag, 0, len(m.tags))
	for _, tag := range m.tags {
		if options.Query != "" && !strings.Contains(strings.ToLower(tag.Name), strings.ToLower(options.Query)) {
			continue
		}
		clone := *tag
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Name == results[j].Name {
			return results[i].ID < results[j].ID
		}
		return results[i].Name < results[j].Name
	})
	return paginate(results, options), nil
}

// ---- 任务 ----

// CreateTask 实现 Store 接口。
func (m *MemoryStore) CreateTask(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.projects[task.ProjectID]; !ok {
		return ErrNotFound
	}
	now := time.Now().Unix()
	task.ID = m.allocID()
	task.CreatedAt = now
	task.UpdatedAt = now
	m.tasks[task.ID] = task.Clone()
	return nil
}

// GetTask 返回任务。
func (m *MemoryStore) GetTask(_ context.Context, id int64) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return task.Clone(), nil
}

// UpdateTask 覆盖任务的可变字段。
func (m *MemoryStore) UpdateTask(_ context.Context, task *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[task.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = task.Title
	existing.Description = task.Description
	existing.Status = task.Status
	existing.Priority = task.Priority
	existing.Position = task.Position
	existing.ParentID = task.ParentID
	existing.DueAt = task.DueAt
	existing.TagIDs = append([]int64(nil), task.TagIDs...)
	existing.UpdatedAt = time.Now().Unix()
	*task = *existing.Clone()
	return nil
}

// DeleteTask 删除任务并级联子任务、指派与讨论。
func (m *MemoryStore) DeleteTask(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	m.deleteTaskLocked(id)
	return nil
}

func (m *MemoryStore) deleteTaskLocked(id int64) {
	delete(m.tasks, id)
	for _, task := range m.tasks {
		if task.ParentID != nil && *task.ParentID == id {
			m.deleteTaskLocked(task.ID)
		}
	}
	for aid, assignment := range m.assignments {
		if assignment.TaskID == id {
			delete(m.assignments, aid)
		}
	}
	for thid, thread := range m.threads {
		if thread.TaskID != nil && *thread.TaskID == id {
			m.deleteThreadLocked(thid)
		}
	}
}

// ListTasks 按 position,id 升序返回任务。
func (m *MemoryStore) ListTasks(_ context.Context, opts ...ListOption) ([]*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Task, 0, len(m.tasks))
	for _, task := range m.tasks {
		if !matchesTaskFilters(task, options) {
			continue
		}
		results = append(results, task.Clone())
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Position == results[j].Position {
			return results[i].ID < results[j].ID
		}
		return results[i].Position < results[j].Position
	})
	return paginate(results, options), nil
}

func matchesTaskFilters(task *Task, opts ListOptions) bool {
	if opts.ProjectID != 0 && task.ProjectID != opts.ProjectID {
		return false
	}
	if opts.ParentID != nil {
		if *opts.ParentID == 0 {
			if task.ParentID != nil {
				return false
			}
		} else if task.ParentID == nil || *task.ParentID != *opts.ParentID {
			return false
		}
	}
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if task.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.Query != "" && !strings.Contains(strings.ToLower(task.Title), strings.ToLower(opts.Query)) {
		return false
	}
	return true
}

// ---- 任务指派 ----

// CreateAssignment 实现 Store 接口，(task,assignee,role) 冲突时返回 ErrConflict。
func (m *MemoryStore) CreateAssignment(_ context.Context, assignment *Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[assignment.TaskID]; !ok {
		return ErrNotFound
	}
	for _, existing := range m.assignments {
		if existing.TaskID == assignment.TaskID &&
			existing.AssigneeID == assignment.AssigneeID &&
			existing.Role == assignment.Role {
			return ErrConflict
		}
	}
	assignment.ID = m.allocID()
	assignment.CreatedAt = time.Now().Unix()
	clone := *assignment
	m.assignments[assignment.ID] = &clone
	return nil
}

// GetAssignment 返回任务指派。
func (m *MemoryStore) GetAssignment(_ context.Context, id int64) (*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	assignment, ok := m.assignments[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *assignment
	return &clone, nil
}

// DeleteAssignment 删除任务指派。
func (m *MemoryStore) DeleteAssignment(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.assignments[id]; !ok {
		return ErrNotFound
	}
	delete(m.assignments, id)
	return nil
}

// ListAssignments 按 id 升序返回任务指派。
func (m *MemoryStore) ListAssignments(_ context.Context, opts ...ListOption) ([]*Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Assignment, 0, len(m.assignments))
	for _, assignment := range m.assignments {
		if options.TaskID != 0 && assignment.TaskID != options.TaskID {
			continue
		}
		clone := *assignment
		results = append(results, &clone)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return paginate(results, options), nil
}

// ---- 讨论串与消息 ----

// CreateThread 实现 Store 接口。
func (m *MemoryStore) CreateThread(_ context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if thread.ProjectID != nil {
		if _, ok := m.projects[*thread.ProjectID]; !ok {
			return ErrNotFound
		}
	}
	if thread.TaskID != nil {
		if _, ok := m.tasks[*thread.TaskID]; !ok {
			return ErrNotFound
		}
	}
	now := time.Now().Unix()
	thread.ID = m.allocID()
	thread.CreatedAt = now
	thread.UpdatedAt = now
	m.threads[thread.ID] = thread.Clone()
	return nil
}

// GetThread 返回讨论串。
func (m *MemoryStore) GetThread(_ context.Context, id int64) (*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	thread, ok := m.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	return thread.Clone(), nil
}

// UpdateThread 更新讨论串标题与类型，挂载点不可变。
func (m *MemoryStore) UpdateThread(_ context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.threads[thread.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Title = thread.Title
	existing.Kind = thread.Kind
	existing.UpdatedAt = time.Now().Unix()
	*thread = *existing.Clone()
	return nil
}

// DeleteThread 删除讨论串及其消息。
func (m *MemoryStore) DeleteThread(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[id]; !ok {
		return ErrNotFound
	}
	m.deleteThreadLocked(id)
	return nil
}

func (m *MemoryStore) deleteThreadLocked(id int64) {
	delete(m.threads, id)
	for mid, message := range m.messages {
		if message.ThreadID == id {
			delete(m.messages, mid)
		}
	}
}

// ListThreads 按 id 升序返回讨论串。
func (m *MemoryStore) ListThreads(_ context.Context, opts ...ListOption) ([]*Thread, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Thread, 0, len(m.threads))
	for _, thread := range m.threads {
		if options.ProjectID != 0 && (thread.ProjectID == nil || *thread.ProjectID != options.ProjectID) {
			continue
		}
		if options.TaskID != 0 && (thread.TaskID == nil || *thread.TaskID != options.TaskID) {
			continue
		}
		results = append(results, thread.Clone())
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return paginate(results, options), nil
}

// CreateMessage 实现 Store 接口。
func (m *MemoryStore) CreateMessage(_ context.Context, message *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	thread, ok := m.threads[message.ThreadID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().Unix()
	message.ID = m.allocID()
	message.CreatedAt = now
	thread.UpdatedAt = now
	m.messages[message.ID] = message.Clone()
	return nil
}

// GetMessage 返回消息。
func (m *MemoryStore) GetMessage(_ context.Context, id int64) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	message, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return message.Clone(), nil
}

// ListMessages 按 created_at,id 升序返回消息。
func (m *MemoryStore) ListMessages(_ context.Context, opts ...ListOption) ([]*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*Message, 0, len(m.messages))
	for _, message := range m.messages {
		if options.ThreadID != 0 && message.ThreadID != options.ThreadID {
			continue
		}
		results = append(results, message.Clone())
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID < results[j].ID
		}
		return results[i].CreatedAt < results[j].CreatedAt
	})
	return paginate(results, options), nil
}

// ---- 审计 ----

// AppendAuditEvent 实现 Store 接口。
func (m *MemoryStore) AppendAuditEvent(_ context.Context, event *AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.allocID()
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	m.audits[event.ID] = event.Clone()
	return nil
}

// GetAuditEvent 返回审计记录。
func (m *MemoryStore) GetAuditEvent(_ context.Context, id int64) (*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	event, ok := m.audits[id]
	if !ok {
		return nil, ErrNotFound
	}
	return event.Clone(), nil
}

// ListAuditEvents 按时间倒序返回审计记录。
func (m *MemoryStore) ListAuditEvents(_ context.Context, opts ...ListOption) ([]*AuditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	options := buildListOptions(opts)
	results := make([]*AuditEvent, 0, len(m.audits))
	for _, event := range m.audits {
		if options.Verb != "" && event.Verb != options.Verb {
			continue
		}
		results = append(results, event.Clone())
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt == results[j].CreatedAt {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt > results[j].CreatedAt
	})
	return paginate(results, options), nil
}

// ---- Webhook ----

// CreateWebhook 实现 Store 接口。
func (m *MemoryStore) CreateWebhook(_ context.Context, webhook *Webhook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	webhook.ID = m.allocID()
	if webhook.CreatedAt == 0 {
		webhook.CreatedAt = time.Now().Unix()
	}
	m.webhooks[webhook.ID] = webhook.Clone()
	return nil
}

// ListWebhooks 按 id 升序返回 Webhook 订阅。
func (m *MemoryStore) ListWebhooks(_ context.Context, activeOnly bool) ([]*Webhook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := make([]*Webhook, 0, len(m.webhooks))
	for _, webhook := range m.webhooks {
		if activeOnly && !webhook.Active {
			continue
		}
		results = append(results, webhook.Clone())
	}
	sort.Slice(results, func(i, j int) bool { return results[i].ID < results[j].ID })
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func paginate[T any](items []*T, opts ListOptions) []*T {
	if opts.Offset >= len(items) {
		return []*T{}
	}
	items = items[opts.Offset:]
	if !opts.unbounded && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

func removeID(ids []int64, target int64) []int64 {
	if len(ids) == 0 {
		return ids
	}
	result := ids[:0]
	for _, id := range ids {
		if id != target {
			result = append(result, id)
		}
	}
	return result
}

// ensure interface compliance at compile time
var (
	_ Store           = (*MemoryStore)(nil)
	_ auth.Store      = (*MemoryStore)(nil)
	_ auth.SeedWriter = (*MemoryStore)(nil)
)
