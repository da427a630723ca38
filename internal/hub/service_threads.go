package hub

import (
	"context"
	"strings"

	xerrors "bothub/internal/errors"
)

// CreateThreadInput 描述创建讨论串的请求，必须且只能指定项目或任务之一。
type CreateThreadInput struct {
	Title     string     `json:"title"`
	Kind      ThreadKind `json:"kind"`
	ProjectID *int64     `json:"project_id"`
	TaskID    *int64     `json:"task_id"`
}

// CreateThread 创建讨论串，需要所属项目的编辑权限。
func (s *Service) CreateThread(ctx context.Context, in CreateThreadInput) (*Thread, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "讨论串标题不能为空")
	}
	if in.Kind == "" {
		in.Kind = ThreadKindGeneral
	}
	if !IsValidThreadKind(in.Kind) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的讨论串类型")
	}
	if (in.ProjectID == nil) == (in.TaskID == nil) {
		return nil, xerrors.New(CodeThreadScope, "")
	}
	var projectID int64
	if in.ProjectID != nil {
		project, err := s.store.GetProject(ctx, *in.ProjectID)
		if err != nil {
			return nil, err
		}
		projectID = project.ID
	} else {
		task, err := s.store.GetTask(ctx, *in.TaskID)
		if err != nil {
			return nil, err
		}
		projectID = task.ProjectID
	}
	if err := s.requireEdit(ctx, subject, projectID); err != nil {
		return nil, err
	}
	thread := &Thread{
		Title:     title,
		Kind:      in.Kind,
		ProjectID: in.ProjectID,
		TaskID:    in.TaskID,
		CreatedBy: subject.ID,
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "thread.created", "thread", thread.ID, map[string]any{
		"project_id": projectID,
		"title":      thread.Title,
	})
	return thread, nil
}

// GetThread 返回讨论串，要求所属项目的查看权限。
func (s *Service) GetThread(ctx context.Context, id int64) (*Thread, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, projectID); err != nil {
		return nil, err
	}
	return thread, nil
}

// UpdateThreadInput 描述讨论串更新请求，挂载点不可修改。
type UpdateThreadInput struct {
	Title *string     `json:"title"`
	Kind  *ThreadKind `json:"kind"`
}

// UpdateThread 更新讨论串，需要所属项目的编辑权限。
func (s *Service) UpdateThread(ctx context.Context, id int64, in UpdateThreadInput) (*Thread, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return nil, err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return nil, err
	}
	if err := s.requireEdit(ctx, subject, projectID); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "讨论串标题不能为空")
		}
		thread.Title = title
	}
	if in.Kind != nil {
		if !IsValidThreadKind(*in.Kind) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的讨论串类型")
		}
		thread.Kind = *in.Kind
	}
	if err := s.store.UpdateThread(ctx, thread); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "thread.updated", "thread", thread.ID, map[string]any{
		"project_id": projectID,
		"title":      thread.Title,
	})
	return thread, nil
}

// DeleteThread 删除讨论串，需要所属项目的编辑权限。
func (s *Service) DeleteThread(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	thread, err := s.store.GetThread(ctx, id)
	if err != nil {
		return err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return err
	}
	if err := s.requireEdit(ctx, subject, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteThread(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "thread.deleted", "thread", id, map[string]any{
		"project_id": projectID,
		"title":      thread.Title,
	})
	return nil
}

// ListThreads 返回讨论串列表，按项目或任务过滤时要求查看权限。
func (s *Service) ListThreads(ctx context.Context, opts ...ListOption) ([]*Thread, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	options := buildListOptions(opts)
	if options.ProjectID != 0 {
		if err := s.requireView(ctx, subject, options.ProjectID); err != nil {
			return nil, err
		}
		return s.store.ListThreads(ctx, opts...)
	}
	if options.TaskID != 0 {
		task, err := s.store.GetTask(ctx, options.TaskID)
		if err != nil {
			return nil, err
		}
		if err := s.requireView(ctx, subject, task.ProjectID); err != nil {
			return nil, err
		}
		return s.store.ListThreads(ctx, opts...)
	}
	if subject.Superuser {
		return s.store.ListThreads(ctx, opts...)
	}
	threads, err := s.store.ListThreads(ctx, wholeSet(opts)...)
	if err != nil {
		return nil, err
	}
	visible := make([]*Thread, 0, len(threads))
	for _, thread := range threads {
		projectID, err := s.projectOfThread(ctx, thread)
		if err != nil {
			continue
		}
		if s.requireView(ctx, subject, projectID) == nil {
			visible = append(visible, thread)
		}
	}
	return pageSlice(visible, options), nil
}

// ---- 消息 ----

// CreateMessageInput 描述发送消息的请求。
type CreateMessageInput struct {
	ThreadID    int64          `json:"thread_id"`
	AuthorRole  AuthorRole     `json:"author_role"`
	AuthorLabel string         `json:"author_label"`
	Body        string         `json:"body"`
	Metadata    map[string]any `json:"metadata"`
}

// CreateMessage 发送消息，需要所属项目的编辑权限。作者身份未指定时
// 根据作者档案推断，agent 档案默认为 agent。
func (s *Service) CreateMessage(ctx context.Context, in CreateMessageInput) (*Message, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Body) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}
	thread, err := s.store.GetThread(ctx, in.ThreadID)
	if err != nil {
		return nil, err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return nil, err
	}
	if err := s.requireEdit(ctx, subject, projectID); err != nil {
		return nil, err
	}
	role := in.AuthorRole
	if role == "" {
		role = AuthorRoleHuman
		if profile, err := s.store.GetProfile(ctx, subject.ID); err == nil && profile.Kind == ProfileKindAgent {
			role = AuthorRoleAgent
		}
	}
	if !IsValidAuthorRole(role) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的作者身份")
	}
	label := strings.TrimSpace(in.AuthorLabel)
	if label == "" {
		label = subject.Username
	}
	message := &Message{
		ThreadID:    in.ThreadID,
		CreatedBy:   subject.ID,
		AuthorRole:  role,
		AuthorLabel: label,
		Body:        in.Body,
		Metadata:    cloneMetadata(in.Metadata),
	}
	if err := s.store.CreateMessage(ctx, message); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "message.created", "message", message.ID, map[string]any{
		"thread_id":   message.ThreadID,
		"author_role": string(message.AuthorRole),
	})
	return message, nil
}

// GetMessage 返回消息，要求所属项目的查看权限。
func (s *Service) GetMessage(ctx context.Context, id int64) (*Message, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	message, err := s.store.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	thread, err := s.store.GetThread(ctx, message.ThreadID)
	if err != nil {
		return nil, err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, projectID); err != nil {
		return nil, err
	}
	return message, nil
}

// ListMessages 返回消息列表，必须指定讨论串。
func (s *Service) ListMessages(ctx context.Context, opts ...ListOption) ([]*Message, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	options := buildListOptions(opts)
	if options.ThreadID == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "必须指定讨论串")
	}
	thread, err := s.store.GetThread(ctx, options.ThreadID)
	if err != nil {
		return nil, err
	}
	projectID, err := s.projectOfThread(ctx, thread)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, opts...)
}
