package hub

import "strings"

// ListOptions controls how records are selected when querying the store. The
// same option set is shared across entities; filters that do not apply to a
// given entity are ignored by the store.
type ListOptions struct {
	Limit           int
	Offset          int
	ProjectID       int64
	TaskID          int64
	ThreadID        int64
	ParentID        *int64
	Statuses        []TaskStatus
	Verb            string
	ProfileKind     ProfileKind
	IncludeArchived bool
	Query           string

	// unbounded disables the pagination cap for internal whole-set reads.
	unbounded bool
}

// applyDefaults sanitizes the options and fills in default values.
func (opts *ListOptions) applyDefaults() {
	if !opts.unbounded {
		if opts.Limit <= 0 {
			opts.Limit = 20
		}
		if opts.Limit > 100 {
			opts.Limit = 100
		}
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	if opts.Statuses != nil {
		opts.Statuses = normalizeStatuses(opts.Statuses)
	}
	opts.Verb = strings.TrimSpace(opts.Verb)
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of records returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) {
		opts.Limit = limit
	}
}

// WithOffset skips the first n matching records before returning results.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) {
		opts.Offset = offset
	}
}

// WithProject filters records by owning project.
func WithProject(projectID int64) ListOption {
	return func(opts *ListOptions) {
		opts.ProjectID = projectID
	}
}

// WithTask filters records by owning task.
func WithTask(taskID int64) ListOption {
	return func(opts *ListOptions) {
		opts.TaskID = taskID
	}
}

// WithThread filters messages by thread.
func WithThread(threadID int64) ListOption {
	return func(opts *ListOptions) {
		opts.ThreadID = threadID
	}
}

// WithParent filters tasks by parent task. A zero parent selects root tasks.
func WithParent(parentID int64) ListOption {
	return func(opts *ListOptions) {
		opts.ParentID = new(int64)
		*opts.ParentID = parentID
	}
}

// WithStatuses filters tasks by the provided statuses.
func WithStatuses(statuses ...TaskStatus) ListOption {
	return func(opts *ListOptions) {
		opts.Statuses = append(opts.Statuses[:0], statuses...)
	}
}

// WithVerb filters audit events by verb.
func WithVerb(verb string) ListOption {
	return func(opts *ListOptions) {
		opts.Verb = verb
	}
}

// WithProfileKind filters profiles by caller kind.
func WithProfileKind(kind ProfileKind) ListOption {
	return func(opts *ListOptions) {
		opts.ProfileKind = kind
	}
}

// WithArchived includes archived projects in list results.
func WithArchived() ListOption {
	return func(opts *ListOptions) {
		opts.IncludeArchived = true
	}
}

// WithQuery filters records by fuzzy matching across name and title fields.
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) {
		opts.Query = query
	}
}

// BuildListOptions applies option functions on top of defaults. Store
// implementations outside this package use it to resolve an option slice.
func BuildListOptions(opts ...ListOption) ListOptions {
	options := ListOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

// Unbounded reports whether the pagination cap has been disabled.
func (opts ListOptions) Unbounded() bool {
	return opts.unbounded
}

func buildListOptions(opts []ListOption) ListOptions {
	return BuildListOptions(opts...)
}

func normalizeStatuses(input []TaskStatus) []TaskStatus {
	if len(input) == 0 {
		return nil
	}
	seen := make(map[TaskStatus]struct{}, len(input))
	result := make([]TaskStatus, 0, len(input))
	for _, status := range input {
		if !IsValidTaskStatus(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		result = append(result, status)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
