package hub

import (
	"context"
	"strings"

	xerrors "bothub/internal/errors"
)

// CreateTaskInput 描述创建任务的请求。
type CreateTaskInput struct {
	ProjectID   int64      `json:"project_id"`
	ParentID    *int64     `json:"parent_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	Position    int        `json:"position"`
	DueAt       *int64     `json:"due_at"`
	TagIDs      []int64    `json:"tag_ids"`
}

// CreateTask 创建任务，需要项目编辑权限。
func (s *Service) CreateTask(ctx context.Context, in CreateTaskInput) (*Task, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, in.ProjectID); err != nil {
		return nil, err
	}
	if err := s.requireEdit(ctx, subject, in.ProjectID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务标题不能为空")
	}
	if in.Status == "" {
		in.Status = TaskStatusBacklog
	}
	if !IsValidTaskStatus(in.Status) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的任务状态")
	}
	if in.Priority == 0 {
		in.Priority = 2
	}
	if in.Priority < 1 || in.Priority > 4 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务优先级必须在 1 到 4 之间")
	}
	if in.ParentID != nil {
		parent, err := s.store.GetTask(ctx, *in.ParentID)
		if err != nil {
			return nil, xerrors.New(CodeTaskHierarchy, "父任务不存在")
		}
		if parent.ProjectID != in.ProjectID {
			return nil, xerrors.New(CodeTaskHierarchy, "")
		}
	}
	if err := s.checkTags(ctx, in.TagIDs); err != nil {
		return nil, err
	}
	task := &Task{
		ProjectID:   in.ProjectID,
		ParentID:    in.ParentID,
		Title:       title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Position:    in.Position,
		DueAt:       in.DueAt,
		TagIDs:      append([]int64(nil), in.TagIDs...),
		CreatedBy:   subject.ID,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "task.created", "task", task.ID, map[string]any{
		"project_id": task.ProjectID,
		"title":      task.Title,
	})
	return task, nil
}

// GetTask 返回任务，要求项目查看权限。
func (s *Service) GetTask(ctx context.Context, id int64) (*Task, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, task.ProjectID); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskInput 描述任务更新请求，nil 字段保持不变。
type UpdateTaskInput struct {
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	Status      *TaskStatus `json:"status"`
	Priority    *int        `json:"priority"`
	Position    *int        `json:"position"`
	ParentID    *int64      `json:"parent_id"`
	ClearParent bool        `json:"clear_parent"`
	DueAt       *int64      `json:"due_at"`
	TagIDs      []int64     `json:"tag_ids"`
}

// UpdateTask 更新任务，需要项目编辑权限。
func (s *Service) UpdateTask(ctx context.Context, id int64, in UpdateTaskInput) (*Task, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireEdit(ctx, subject, task.ProjectID); err != nil {
		return nil, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务标题不能为空")
		}
		task.Title = title
	}
	if in.Description != nil {
		task.Description = *in.Description
	}
	if in.Status != nil {
		if !IsValidTaskStatus(*in.Status) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的任务状态")
		}
		task.Status = *in.Status
	}
	if in.Priority != nil {
		if *in.Priority < 1 || *in.Priority > 4 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "任务优先级必须在 1 到 4 之间")
		}
		task.Priority = *in.Priority
	}
	if in.Position != nil {
		task.Position = *in.Position
	}
	if in.ClearParent {
		task.ParentID = nil
	} else if in.ParentID != nil {
		if *in.ParentID == task.ID {
			return nil, xerrors.New(CodeTaskHierarchy, "任务不能作为自身的父任务")
		}
		parent, err := s.store.GetTask(ctx, *in.ParentID)
		if err != nil {
			return nil, xerrors.New(CodeTaskHierarchy, "父任务不存在")
		}
		if parent.ProjectID != task.ProjectID {
			return nil, xerrors.New(CodeTaskHierarchy, "")
		}
		if err := s.checkAncestry(ctx, task.ID, parent); err != nil {
			return nil, err
		}
		task.ParentID = in.ParentID
	}
	if in.DueAt != nil {
		task.DueAt = in.DueAt
	}
	if in.TagIDs != nil {
		if err := s.checkTags(ctx, in.TagIDs); err != nil {
			return nil, err
		}
		task.TagIDs = append([]int64(nil), in.TagIDs...)
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "task.updated", "task", task.ID, map[string]any{
		"project_id": task.ProjectID,
		"title":      task.Title,
		"status":     string(task.Status),
	})
	return task, nil
}

// DeleteTask 删除任务，需要项目编辑权限。
func (s *Service) DeleteTask(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireEdit(ctx, subject, task.ProjectID); err != nil {
		return err
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "task.deleted", "task", id, map[string]any{
		"project_id": task.ProjectID,
		"title":      task.Title,
	})
	return nil
}

// ListTasks 返回任务列表，按项目过滤时要求查看权限。
func (s *Service) ListTasks(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	options := buildListOptions(opts)
	if options.ProjectID != 0 {
		if err := s.requireView(ctx, subject, options.ProjectID); err != nil {
			return nil, err
		}
		return s.store.ListTasks(ctx, opts...)
	}
	if subject.Superuser {
		return s.store.ListTasks(ctx, opts...)
	}
	tasks, err := s.store.ListTasks(ctx, wholeSet(opts)...)
	if err != nil {
		return nil, err
	}
	visible := make([]*Task, 0, len(tasks))
	for _, task := range tasks {
		if s.requireView(ctx, subject, task.ProjectID) == nil {
			visible = append(visible, task)
		}
	}
	return pageSlice(visible, options), nil
}

// checkTags 校验标签 ID 均存在。
func (s *Service) checkTags(ctx context.Context, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := s.store.GetTag(ctx, tagID); err != nil {
			return xerrors.New(xerrors.CodeInvalidArgument, "标签不存在")
		}
	}
	return nil
}

// checkAncestry 沿父链向上检查，避免产生环。
func (s *Service) checkAncestry(ctx context.Context, taskID int64, parent *Task) error {
	for parent != nil && parent.ParentID != nil {
		if *parent.ParentID == taskID {
			return xerrors.New(CodeTaskHierarchy, "父任务不能是该任务的后代")
		}
		next, err := s.store.GetTask(ctx, *parent.ParentID)
		if err != nil {
			return nil
		}
		parent = next
	}
	return nil
}

// ---- 任务指派 ----

// CreateAssignmentInput 描述任务指派请求。
type CreateAssignmentInput struct {
	TaskID     int64          `json:"task_id"`
	AssigneeID int64          `json:"assignee_id"`
	Role       AssignmentRole `json:"role"`
}

// CreateAssignment 为任务添加指派，需要项目编辑权限。
func (s *Service) CreateAssignment(ctx context.Context, in CreateAssignmentInput) (*Assignment, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireEdit(ctx, subject, task.ProjectID); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = AssignmentRoleAssignee
	}
	if !IsValidAssignmentRole(in.Role) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "非法的指派角色")
	}
	if _, err := s.store.GetUser(ctx, in.AssigneeID); err != nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "被指派用户不存在")
	}
	assignment := &Assignment{
		TaskID:     in.TaskID,
		AssigneeID: in.AssigneeID,
		Role:       in.Role,
		AddedBy:    subject.ID,
	}
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return nil, err
	}
	s.record(ctx, subject, "task.assignment.created", "assignment", assignment.ID, map[string]any{
		"task_id":     assignment.TaskID,
		"assignee_id": assignment.AssigneeID,
		"role":        string(assignment.Role),
	})
	return assignment, nil
}

// GetAssignment 返回任务指派。
func (s *Service) GetAssignment(ctx context.Context, id int64) (*Assignment, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}
	task, err := s.store.GetTask(ctx, assignment.TaskID)
	if err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, task.ProjectID); err != nil {
		return nil, err
	}
	return assignment, nil
}

// DeleteAssignment 删除任务指派，需要项目编辑权限。
func (s *Service) DeleteAssignment(ctx context.Context, id int64) error {
	subject, err := s.subject(ctx)
	if err != nil {
		return err
	}
	assignment, err := s.store.GetAssignment(ctx, id)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, assignment.TaskID)
	if err != nil {
		return err
	}
	if err := s.requireEdit(ctx, subject, task.ProjectID); err != nil {
		return err
	}
	if err := s.store.DeleteAssignment(ctx, id); err != nil {
		return err
	}
	s.record(ctx, subject, "task.assignment.deleted", "assignment", id, map[string]any{
		"task_id":     assignment.TaskID,
		"assignee_id": assignment.AssigneeID,
	})
	return nil
}

// ListAssignments 返回任务指派列表，按任务过滤时要求查看权限。
func (s *Service) ListAssignments(ctx context.Context, opts ...ListOption) ([]*Assignment, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	options := buildListOptions(opts)
	if options.TaskID != 0 {
		task, err := s.store.GetTask(ctx, options.TaskID)
		if err != nil {
			return nil, err
		}
		if err := s.requireView(ctx, subject, task.ProjectID); err != nil {
			return nil, err
		}
		return s.store.ListAssignments(ctx, opts...)
	}
	if subject.Superuser {
		return s.store.ListAssignments(ctx, opts...)
	}
	assignments, err := s.store.ListAssignments(ctx, wholeSet(opts)...)
	if err != nil {
		return nil, err
	}
	visible := make([]*Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		task, err := s.store.GetTask(ctx, assignment.TaskID)
		if err != nil {
			continue
		}
		if s.requireView(ctx, subject, task.ProjectID) == nil {
			visible = append(visible, assignment)
		}
	}
	return pageSlice(visible, options), nil
}
