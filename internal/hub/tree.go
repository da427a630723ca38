package hub

import "context"

// TaskNode 是任务树中的一个节点。
type TaskNode struct {
	Task     *Task       `json:"task"`
	Children []*TaskNode `json:"children,omitempty"`
}

// TaskTree 返回项目的任务树，根节点为无父任务的任务，
// 兄弟节点按 position,id 升序排列。
func (s *Service) TaskTree(ctx context.Context, projectID int64) ([]*TaskNode, error) {
	subject, err := s.subject(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	if err := s.requireView(ctx, subject, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, WithProject(projectID), withUnbounded())
	if err != nil {
		return nil, err
	}
	return buildTaskTree(tasks), nil
}

// withUnbounded 取消列表分页上限，树构建需要项目的全部任务。
func withUnbounded() ListOption {
	return func(opts *ListOptions) {
		opts.Limit = 0
		opts.unbounded = true
	}
}

// buildTaskTree 将平铺的任务列表组装为森林，输入顺序即兄弟顺序。
func buildTaskTree(tasks []*Task) []*TaskNode {
	nodes := make(map[int64]*TaskNode, len(tasks))
	order := make([]*TaskNode, 0, len(tasks))
	for _, task := range tasks {
		node := &TaskNode{Task: task}
		nodes[task.ID] = node
		order = append(order, node)
	}
	roots := make([]*TaskNode, 0)
	for _, node := range order {
		parentID := node.Task.ParentID
		if parentID == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*parentID]
		if !ok {
			// orphaned subtree, surface it at the top level
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}
	return roots
}
