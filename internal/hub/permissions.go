package hub

import (
	"context"

	"bothub/internal/auth"
)

// roleRanks 定义成员角色的权限序，数值越大权限越高。
var roleRanks = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// AtLeast 判断角色是否不低于给定的最小角色。
func (r Role) AtLeast(min Role) bool {
	return roleRanks[r] >= roleRanks[min]
}

// projectOfThread 解析讨论串所属的项目。
func (s *Service) projectOfThread(ctx context.Context, thread *Thread) (int64, error) {
	if thread == nil {
		return 0, ErrNotFound
	}
	if thread.ProjectID != nil {
		return *thread.ProjectID, nil
	}
	if thread.TaskID != nil {
		task, err := s.store.GetTask(ctx, *thread.TaskID)
		if err != nil {
			return 0, err
		}
		return task.ProjectID, nil
	}
	return 0, ErrNotFound
}

// requireRole 校验调用方在项目中的角色不低于 min。超级用户直接放行。
func (s *Service) requireRole(ctx context.Context, subject *auth.Subject, projectID int64, min Role) error {
	if subject == nil {
		return ErrPermissionDenied
	}
	if subject.Superuser {
		return nil
	}
	membership, err := s.store.FindMembership(ctx, projectID, subject.ID)
	if err != nil {
		return ErrPermissionDenied
	}
	if !membership.Role.AtLeast(min) {
		return ErrPermissionDenied
	}
	return nil
}

// requireView 校验调用方可以读取项目内容。
func (s *Service) requireView(ctx context.Context, subject *auth.Subject, projectID int64) error {
	return s.requireRole(ctx, subject, projectID, RoleViewer)
}

// requireEdit 校验调用方可以创建或修改项目内容。
func (s *Service) requireEdit(ctx context.Context, subject *auth.Subject, projectID int64) error {
	return s.requireRole(ctx, subject, projectID, RoleMember)
}

// requireAdmin 校验调用方可以管理项目成员。
func (s *Service) requireAdmin(ctx context.Context, subject *auth.Subject, projectID int64) error {
	return s.requireRole(ctx, subject, projectID, RoleAdmin)
}

// requireOwner 校验调用方拥有项目，仅项目删除需要。
func (s *Service) requireOwner(ctx context.Context, subject *auth.Subject, projectID int64) error {
	return s.requireRole(ctx, subject, projectID, RoleOwner)
}
