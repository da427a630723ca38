package hub

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"bothub/internal/auth"
	xerrors "bothub/internal/errors"
	"bothub/pkg/logger"
)

// EventSink 接收服务产生的审计事件并负责向外推送。
type EventSink interface {
	Publish(ctx context.Context, event *AuditEvent) error
}

// Service 是协作数据的业务入口，负责校验、权限与审计。
type Service struct {
	store          Store
	sink           EventSink
	allowAnonymous bool
}

// Option 配置 Service 的可选行为。
type Option func(*Service)

// WithEventSink 配置审计事件的推送通道。
func WithEventSink(sink EventSink) Option {
	return func(s *Service) {
		s.sink = sink
	}
}

// WithAnonymousAccess 允许无认证主体的请求通过权限检查，仅用于关闭认证的开发模式。
func WithAnonymousAccess() Option {
	return func(s *Service) {
		s.allowAnonymous = true
	}
}

// NewService 构造业务服务。
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{store: store}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// subject 从上下文解析调用方，未认证时按配置决定放行或拒绝。
func (s *Service) subject(ctx context.Context) (*auth.Subject, error) {
	if subject := auth.SubjectFromContext(ctx); subject != nil {
		return subject, nil
	}
	if s.allowAnonymous {
		return &auth.Subject{Username: "anonymous", Kind: auth.KindHuman, Superuser: true}, nil
	}
	return nil, xerrors.New(xerrors.CodeUnauthenticated, "")
}

// record 写入审计记录并推送给事件通道。
func (s *Service) record(ctx context.Context, actor *auth.Subject, verb, targetKind string, targetID int64, metadata map[string]any) {
	event := &AuditEvent{
		Verb:       verb,
		TargetKind: targetKind,
		TargetID:   targetID,
		Metadata:   metadata,
	}
	if actor != nil {
		event.ActorID = actor.ID
	}
	if err := s.store.AppendAuditEvent(ctx, event); err != nil {
		logger.L().Error("审计记录写入失败", slog.Any("error", err), slog.String("verb", verb))
		return
	}
	logger.Audit().Info("domain_event",
		slog.String("verb", verb),
		slog.String("target_kind", targetKind),
		slog.Int64("target_id", targetID),
		slog.Int64("actor_id", event.ActorID),
	)
	if s.sink != nil {
		if err := s.sink.Publish(ctx, event.Clone()); err != nil {
			logger.L().Error("事件推送入队失败", slog.Any("error", err), slog.String("verb", verb))
		}
	}
}

// wholeSet 去掉调用方的分页窗口。可见性过滤必须在完整结果集上进行，
// 否则成员的记录会被前面的不可见记录挤出当前页。
func wholeSet(opts []ListOption) []ListOption {
	return append(append([]ListOption(nil), opts...), WithOffset(0), withUnbounded())
}

// pageSlice 对过滤后的结果应用调用方请求的分页窗口。
func pageSlice[T any](items []T, options ListOptions) []T {
	if options.Offset >= len(items) {
		return []T{}
	}
	items = items[options.Offset:]
	if options.Limit > 0 && len(items) > options.Limit {
		items = items[:options.Limit]
	}
	return items
}

// ---- 项目 ----

// CreateProjectInput 描述创建项目的请求。
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateProject 创建项目，并自动为创建者添加 owner 成员关系。
func (s *Service) CreateProject(ctx context.Context, in CreateProjectInput) (*Project, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "项目名称不能为空")
	}
	project := &Project{
		Name:        name,
		Description: in.Description,
		CreatedBy:   subject.ID,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	if subject.ID != 0 {
		membership := &Membership{
			ProjectID: project.ID,
			UserID:    subject.ID,
			Role:      RoleOwner,
			InvitedBy: subject.ID,
		}
		if err := s.store.CreateMembership(ctx, membership); err != nil && !stdErrors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	s.record(ctx, subject, "project.created", "project", project.ID, map[string]any{"name": project.Name})
	return project, nil
}

// GetProject 返回项目，要求调用方具有查看权限。
func (s *Service) GetProject(ctx context.Context, id int64) (*Project, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, project.ID); err != nil {
		return nil, err
	}
	return project, nil
}

// UpdateProjectInput 描述项目更新请求，nil 字段保持不变。
type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Archived    *bool   `json:"is_archived"`
}

// UpdateProject 更新项目，需要管理员角色。
func (s *Service) UpdateProject(ctx context.Context, id int64, in UpdateProjectInput) (*Project, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, subject, project.ID); err != nil {
		return nil, err
	}
	wasArchived := project.Archived
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "项目名称不能为空")
		}
		project.Name = name
	}
	if in.Description != nil {
		project.Description = *in.Description
	}
	if in.Archived != nil {
		project.Archived = *in.Archived
	}
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	verb := "project.updated"
	if !wasArchived && project.Archived {
		verb = "project.archived"
	}
	s.record(ctx, subject, verb, "project", project.ID, map[string]any{"name": project.Name})
	return project, nil
}

// DeleteProject 删除项目，仅限 owner。
func (s *Service) DeleteProject(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireOwner(ctx, subject, project.ID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "project.deleted", "project", id, map[string]any{"name": project.Name})
	return nil
}

// ListProjects 返回调用方可见的项目，超级用户可见全部。
// 先按成员关系过滤完整结果集，再分页。
func (s *Service) ListProjects(ctx context.Context, opts ...ListOption) ([]*Project, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if subject.Superuser {
		return s.store.ListProjects(ctx, opts...)
	}
	projects, err := s.store.ListProjects(ctx, wholeSet(opts)...)
	if err != nil {
		return nil, err
	}
	visible := make([]*Project, 0, len(projects))
	for _, project := range projects {
		if _, err := s.store.FindMembership(ctx, project.ID, subject.ID); err == nil {
			visible = append(visible, project)
		}
	}
	return pageSlice(visible, buildListOptions(opts)), nil
}

// ---- 成员关系 ----

// CreateMembershipInput 描述添加成员的请求。
type CreateMembershipInput struct {
	ProjectID int64 `json:"project_id"`
	UserID    int64 `json:"user_id"`
	Role      Role  `json:"role"`
}

// CreateMembership 添加项目成员，需要管理员角色。
func (s *Service) CreateMembership(ctx context.Context, in CreateMembershipInput) (*Membership, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, subject, in.ProjectID); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = RoleMember
	}
	if !IsValidRole(in.Role) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的成员角色")
	}
	if _, err := s.store.GetUser(ctx, in.UserID); err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "成员用户不存在")
	}
	membership := &Membership{
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		Role:      in.Role,
		InvitedBy: subject.ID,
	}
	if err := s.store.CreateMembership(ctx, membership); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "membership.created", "membership", membership.ID, map[string]any{
		"project_id": membership.ProjectID,
		"user_id":    membership.UserID,
		"role":       string(membership.Role),
	})
	return membership, nil
}

// GetMembership 返回成员关系。
func (s *Service) GetMembership(ctx context.Context, id int64) (*Membership, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	membership, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, membership.ProjectID); err != nil {
		return nil, err
	}
	return membership, nil
}

// UpdateMembershipInput 描述成员角色变更。
type UpdateMembershipInput struct {
	Role Role `json:"role"`
}

// UpdateMembership 更新成员角色，需要管理员角色。
func (s *Service) UpdateMembership(ctx context.Context, id int64, in UpdateMembershipInput) (*Membership, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	membership, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(ctx, subject, membership.ProjectID); err != nil {
		return nil, err
	}
	if !IsValidRole(in.Role) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的成员角色")
	}
	membership.Role = in.Role
	if err := s.store.UpdateMembership(ctx, membership); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "membership.updated", "membership", membership.ID, map[string]any{
		"project_id": membership.ProjectID,
		"user_id":    membership.UserID,
		"role":       string(membership.Role),
	})
	return membership, nil
}

// DeleteMembership 移除项目成员，需要管理员角色。
func (s *Service) DeleteMembership(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	membership, err := s.store.GetMembership(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, subject, membership.ProjectID); err != nil {
		return err
	}
	if err := s.store.DeleteMembership(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "membership.deleted", "membership", id, map[string]any{
		"project_id": membership.ProjectID,
		"user_id":    membership.UserID,
	})
	return nil
}

// ListMemberships 返回成员关系，按项目过滤时要求查看权限。
func (s *Service) ListMemberships(ctx context.Context, opts ...ListOption) ([]*Membership, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	options := buildListOptions(opts)
	if options.ProjectID != 0 {
		if err := s.requireView(ctx, subject, options.ProjectID); err != nil {
			return nil, err
		}
		return s.store.ListMemberships(ctx, opts...)
	}
	if subject.Superuser {
		return s.store.ListMemberships(ctx, opts...)
	}
	memberships, err := s.store.ListMemberships(ctx, wholeSet(opts)...)
	if err != nil {
		return nil, err
	}
	visible := make([]*Membership, 0, len(memberships))
	for _, membership := range memberships {
		if s.requireView(ctx, subject, membership.ProjectID) == nil {
			visible = append(visible, membership)
		}
	}
	return pageSlice(visible, options), nil
}

// ---- 标签 ----

// CreateTagInput 描述创建标签的请求。
type CreateTagInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

// CreateTag 创建标签，slug 为空时由名称自动生成。
func (s *Service) CreateTag(ctx context.Context, in CreateTagInput) (*Tag, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "标签名称不能为空")
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = Slugify(name)
	}
	if slug == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "标签 slug 不能为空")
	}
	tag := &Tag{
		Name:        name,
		Slug:        slug,
		Color:       in.Color,
		Description: in.Description,
	}
	if err := s.store.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "tag.created", "tag", tag.ID, map[string]any{"name": tag.Name, "slug": tag.Slug})
	return tag, nil
}

// GetTag 返回标签。
func (s *Service) GetTag(ctx context.Context, id int64) (*Tag, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.GetTag(ctx, id)
}

// UpdateTagInput 描述标签更新请求，nil 字段保持不变。
type UpdateTagInput struct {
	Name        *string `json:"name"`
	Slug        *string `json:"slug"`
	Color       *string `json:"color"`
	Description *string `json:"description"`
}

// UpdateTag 更新标签。
func (s *Service) UpdateTag(ctx context.Context, id int64, in UpdateTagInput) (*Tag, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	tag, err := s.store.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "标签名称不能为空")
		}
		tag.Name = name
		if in.Slug == nil {
			tag.Slug = Slugify(name)
		}
	}
	if in.Slug != nil {
		slug := strings.TrimSpace(*in.Slug)
		if slug == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "标签 slug 不能为空")
		}
		tag.Slug = slug
	}
	if in.Color != nil {
		tag.Color = *in.Color
	}
	if in.Description != nil {
		tag.Description = *in.Description
	}
	if err := s.store.UpdateTag(ctx, tag); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "tag.updated", "tag", tag.ID, map[string]any{"name": tag.Name, "slug": tag.Slug})
	return tag, nil
}

// DeleteTag 删除标签。
func (s *Service) DeleteTag(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	tag, err := s.store.GetTag(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTag(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "tag.deleted", "tag", id, map[string]any{"name": tag.Name})
	return nil
}

// ListTags 返回标签列表。
func (s *Service) ListTags(ctx context.Context, opts ...ListOption) ([]*Tag, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.ListTags(ctx, opts...)
}

// ---- 用户、档案与审计（只读） ----

// GetUser 返回用户。
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

// ListUsers 返回用户列表。
func (s *Service) ListUsers(ctx context.Context, opts ...ListOption) ([]*User, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.ListUsers(ctx, opts...)
}

// GetProfile 返回用户档案。
func (s *Service) GetProfile(ctx context.Context, userID int64) (*UserProfile, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.GetProfile(ctx, userID)
}

// ListProfiles 返回用户档案列表。
func (s *Service) ListProfiles(ctx context.Context, opts ...ListOption) ([]*UserProfile, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.ListProfiles(ctx, opts...)
}

// GetAuditEvent 返回审计记录。
func (s *Service) GetAuditEvent(ctx context.Context, id int64) (*AuditEvent, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.GetAuditEvent(ctx, id)
}

// ListAuditEvents 返回审计记录列表。
func (s *Service) ListAuditEvents(ctx context.Context, opts ...ListOption) ([]*AuditEvent, error) {
	if _, err := s.subject(ctx); err != nil {
		return nil, err
	}
	return s.store.ListAuditEvents(ctx, opts...)
}
