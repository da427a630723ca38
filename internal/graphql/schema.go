// Package graphql exposes the collaboration data as a GraphQL endpoint.
// The schema is a read-heavy mirror of the REST surface with create
// mutations for the high-traffic entities. All resolvers delegate to the
// hub service, so permission checks and audit records apply unchanged.
package graphql

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"

	"bothub/internal/hub"
)

// schemaBuilder 持有服务引用，解决对象类型之间的循环依赖。
type schemaBuilder struct {
	svc *hub.Service

	userType    *graphql.Object
	tagType     *graphql.Object
	projectType *graphql.Object
	taskType    *graphql.Object
	threadType  *graphql.Object
	messageType *graphql.Object
}

// NewSchema 构建完整的查询与变更 Schema。
func NewSchema(svc *hub.Service) (graphql.Schema, error) {
	b := &schemaBuilder{svc: svc}
	b.buildTypes()
	b.wireRelations()
	return graphql.NewSchema(graphql.SchemaConfig{
		Query:    b.queryType(),
		Mutation: b.mutationType(),
	})
}

// parseID 接受 ID 标量的多种运行时表示。
func parseID(value any) (int64, error) {
	switch v := value.(type) {
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return 0, fmt.Errorf("invalid id: %q", v)
		}
		return id, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("invalid id type %T", value)
	}
}

func optionalID(args map[string]any, key string) (int64, bool, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func optionalString(args map[string]any, key string) string {
	if raw, ok := args[key]; ok {
		if s, ok := raw.(string); ok {
			return s
		}
	}
	return ""
}

func optionalInt(args map[string]any, key string) int {
	if raw, ok := args[key]; ok {
		switch v := raw.(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}

func (b *schemaBuilder) buildTypes() {
	b.userType = graphql.NewObject(graphql.ObjectConfig{
		Name: "User",
		Fields: graphql.Fields{
			"id":        idField(func(src any) int64 { return src.(*hub.User).ID }),
			"username":  &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"email":     &graphql.Field{Type: graphql.String},
			"superuser": &graphql.Field{Type: graphql.Boolean},
		},
	})

	b.tagType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Tag",
		Fields: graphql.Fields{
			"id":          idField(func(src any) int64 { return src.(*hub.Tag).ID }),
			"name":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"slug":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"color":       &graphql.Field{Type: graphql.String},
			"description": &graphql.Field{Type: graphql.String},
		},
	})

	b.projectType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Project",
		Fields: graphql.Fields{
			"id":          idField(func(src any) int64 { return src.(*hub.Project).ID }),
			"name":        &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.Field{Type: graphql.String},
			"isArchived": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(*hub.Project).Archived, nil
				},
			},
			"createdAt": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(*hub.Project).CreatedAt, nil
				},
			},
		},
	})

	b.taskType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Task",
		Fields: graphql.Fields{
			"id":          idField(func(src any) int64 { return src.(*hub.Task).ID }),
			"title":       &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.Field{Type: graphql.String},
			"status": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return string(p.Source.(*hub.Task).Status), nil
				},
			},
			"priority": &graphql.Field{Type: graphql.Int},
			"position": &graphql.Field{Type: graphql.Int},
			"dueAt": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					if due := p.Source.(*hub.Task).DueAt; due != nil {
						return *due, nil
					}
					return nil, nil
				},
			},
		},
	})

	b.threadType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Thread",
		Fields: graphql.Fields{
			"id":    idField(func(src any) int64 { return src.(*hub.Thread).ID }),
			"title": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"kind": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return string(p.Source.(*hub.Thread).Kind), nil
				},
			},
		},
	})

	b.messageType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Message",
		Fields: graphql.Fields{
			"id":   idField(func(src any) int64 { return src.(*hub.Message).ID }),
			"body": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"authorRole": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return string(p.Source.(*hub.Message).AuthorRole), nil
				},
			},
			"authorLabel": &graphql.Field{Type: graphql.String},
			"createdAt": &graphql.Field{
				Type: graphql.Int,
				Resolve: func(p graphql.ResolveParams) (any, error) {
					return p.Source.(*hub.Message).CreatedAt, nil
				},
			},
		},
	})
}

// wireRelations 在类型构建完成后补充互相引用的字段。
func (b *schemaBuilder) wireRelations() {
	b.projectType.AddFieldConfig("tasks", &graphql.Field{
		Type: graphql.NewList(b.taskType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			project := p.Source.(*hub.Project)
			return b.svc.ListTasks(p.Context, hub.WithProject(project.ID))
		},
	})
	b.projectType.AddFieldConfig("threads", &graphql.Field{
		Type: graphql.NewList(b.threadType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			project := p.Source.(*hub.Project)
			return b.svc.ListThreads(p.Context, hub.WithProject(project.ID))
		},
	})

	b.taskType.AddFieldConfig("project", &graphql.Field{
		Type: b.projectType,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			return b.svc.GetProject(p.Context, p.Source.(*hub.Task).ProjectID)
		},
	})
	b.taskType.AddFieldConfig("parent", &graphql.Field{
		Type: b.taskType,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			task := p.Source.(*hub.Task)
			if task.ParentID == nil {
				return nil, nil
			}
			return b.svc.GetTask(p.Context, *task.ParentID)
		},
	})
	b.taskType.AddFieldConfig("children", &graphql.Field{
		Type: graphql.NewList(b.taskType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			task := p.Source.(*hub.Task)
			return b.svc.ListTasks(p.Context,
				hub.WithProject(task.ProjectID), hub.WithParent(task.ID))
		},
	})
	b.taskType.AddFieldConfig("tags", &graphql.Field{
		Type: graphql.NewList(b.tagType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			task := p.Source.(*hub.Task)
			tags := make([]*hub.Tag, 0, len(task.TagIDs))
			for _, tagID := range task.TagIDs {
				tag, err := b.svc.GetTag(p.Context, tagID)
				if err != nil {
					return nil, err
				}
				tags = append(tags, tag)
			}
			return tags, nil
		},
	})

	b.threadType.AddFieldConfig("project", &graphql.Field{
		Type: b.projectType,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			thread := p.Source.(*hub.Thread)
			if thread.ProjectID == nil {
				return nil, nil
			}
			return b.svc.GetProject(p.Context, *thread.ProjectID)
		},
	})
	b.threadType.AddFieldConfig("task", &graphql.Field{
		Type: b.taskType,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			thread := p.Source.(*hub.Thread)
			if thread.TaskID == nil {
				return nil, nil
			}
			return b.svc.GetTask(p.Context, *thread.TaskID)
		},
	})
	b.threadType.AddFieldConfig("messages", &graphql.Field{
		Type: graphql.NewList(b.messageType),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			thread := p.Source.(*hub.Thread)
			return b.svc.ListMessages(p.Context, hub.WithThread(thread.ID))
		},
	})

	b.messageType.AddFieldConfig("thread", &graphql.Field{
		Type: b.threadType,
		Resolve: func(p graphql.ResolveParams) (any, error) {
			return b.svc.GetThread(p.Context, p.Source.(*hub.Message).ThreadID)
		},
	})
}

func (b *schemaBuilder) queryType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"projects": &graphql.Field{
				Type: graphql.NewList(b.projectType),
				Args: graphql.FieldConfigArgument{
					"limit":           &graphql.ArgumentConfig{Type: graphql.Int},
					"offset":          &graphql.ArgumentConfig{Type: graphql.Int},
					"includeArchived": &graphql.ArgumentConfig{Type: graphql.Boolean},
					"q":               &graphql.ArgumentConfig{Type: graphql.String},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					opts := pagingOptions(p.Args)
					if include, _ := p.Args["includeArchived"].(bool); include {
						opts = append(opts, hub.WithArchived())
					}
					if q := optionalString(p.Args, "q"); q != "" {
						opts = append(opts, hub.WithQuery(q))
					}
					return b.svc.ListProjects(p.Context, opts...)
				},
			},
			"project": &graphql.Field{
				Type: b.projectType,
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					id, err := parseID(p.Args["id"])
					if err != nil {
						return nil, err
					}
					return b.svc.GetProject(p.Context, id)
				},
			},
			"tasks": &graphql.Field{
				Type: graphql.NewList(b.taskType),
				Args: graphql.FieldConfigArgument{
					"projectId": &graphql.ArgumentConfig{Type: graphql.ID},
					"status":    &graphql.ArgumentConfig{Type: graphql.String},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int},
					"offset":    &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					opts := pagingOptions(p.Args)
					projectID, ok, err := optionalID(p.Args, "projectId")
					if err != nil {
						return nil, err
					}
					if ok {
						opts = append(opts, hub.WithProject(projectID))
					}
					if status := optionalString(p.Args, "status"); status != "" {
						opts = append(opts, hub.WithStatuses(hub.TaskStatus(status)))
					}
					return b.svc.ListTasks(p.Context, opts...)
				},
			},
			"threads": &graphql.Field{
				Type: graphql.NewList(b.threadType),
				Args: graphql.FieldConfigArgument{
					"projectId": &graphql.ArgumentConfig{Type: graphql.ID},
					"taskId":    &graphql.ArgumentConfig{Type: graphql.ID},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int},
					"offset":    &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					opts := pagingOptions(p.Args)
					if projectID, ok, err := optionalID(p.Args, "projectId"); err != nil {
						return nil, err
					} else if ok {
						opts = append(opts, hub.WithProject(projectID))
					}
					if taskID, ok, err := optionalID(p.Args, "taskId"); err != nil {
						return nil, err
					} else if ok {
						opts = append(opts, hub.WithTask(taskID))
					}
					return b.svc.ListThreads(p.Context, opts...)
				},
			},
			"messages": &graphql.Field{
				Type: graphql.NewList(b.messageType),
				Args: graphql.FieldConfigArgument{
					"threadId": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
					"limit":    &graphql.ArgumentConfig{Type: graphql.Int},
					"offset":   &graphql.ArgumentConfig{Type: graphql.Int},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					threadID, err := parseID(p.Args["threadId"])
					if err != nil {
						return nil, err
					}
					opts := append(pagingOptions(p.Args), hub.WithThread(threadID))
					return b.svc.ListMessages(p.Context, opts...)
				},
			},
		},
	})
}

func (b *schemaBuilder) mutationType() *graphql.Object {
	projectInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "ProjectInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"name":        &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})
	taskInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "TaskInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"projectId":   &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"parentId":    &graphql.InputObjectFieldConfig{Type: graphql.ID},
			"title":       &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"description": &graphql.InputObjectFieldConfig{Type: graphql.String},
			"status":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			"priority":    &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"position":    &graphql.InputObjectFieldConfig{Type: graphql.Int},
			"tagIds":      &graphql.InputObjectFieldConfig{Type: graphql.NewList(graphql.ID)},
		},
	})
	threadInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "ThreadInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"title":     &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"kind":      &graphql.InputObjectFieldConfig{Type: graphql.String},
			"projectId": &graphql.InputObjectFieldConfig{Type: graphql.ID},
			"taskId":    &graphql.InputObjectFieldConfig{Type: graphql.ID},
		},
	})
	messageInput := graphql.NewInputObject(graphql.InputObjectConfig{
		Name: "MessageInput",
		Fields: graphql.InputObjectConfigFieldMap{
			"threadId":    &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.ID)},
			"body":        &graphql.InputObjectFieldConfig{Type: graphql.NewNonNull(graphql.String)},
			"authorRole":  &graphql.InputObjectFieldConfig{Type: graphql.String},
			"authorLabel": &graphql.InputObjectFieldConfig{Type: graphql.String},
		},
	})

	return graphql.NewObject(graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createProject": &graphql.Field{
				Type: b.projectType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(projectInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					input := p.Args["input"].(map[string]any)
					return b.svc.CreateProject(p.Context, hub.CreateProjectInput{
						Name:        optionalString(input, "name"),
						Description: optionalString(input, "description"),
					})
				},
			},
			"createTask": &graphql.Field{
				Type: b.taskType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(taskInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					input := p.Args["input"].(map[string]any)
					projectID, err := parseID(input["projectId"])
					if err != nil {
						return nil, err
					}
					in := hub.CreateTaskInput{
						ProjectID:   projectID,
						Title:       optionalString(input, "title"),
						Description: optionalString(input, "description"),
						Status:      hub.TaskStatus(optionalString(input, "status")),
						Priority:    optionalInt(input, "priority"),
						Position:    optionalInt(input, "position"),
					}
					if parentID, ok, err := optionalID(input, "parentId"); err != nil {
						return nil, err
					} else if ok {
						in.ParentID = &parentID
					}
					if raw, ok := input["tagIds"].([]any); ok {
						for _, item := range raw {
							tagID, err := parseID(item)
							if err != nil {
								return nil, err
							}
							in.TagIDs = append(in.TagIDs, tagID)
						}
					}
					return b.svc.CreateTask(p.Context, in)
				},
			},
			"createThread": &graphql.Field{
				Type: b.threadType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(threadInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					input := p.Args["input"].(map[string]any)
					in := hub.CreateThreadInput{
						Title: optionalString(input, "title"),
						Kind:  hub.ThreadKind(optionalString(input, "kind")),
					}
					if projectID, ok, err := optionalID(input, "projectId"); err != nil {
						return nil, err
					} else if ok {
						in.ProjectID = &projectID
					}
					if taskID, ok, err := optionalID(input, "taskId"); err != nil {
						return nil, err
					} else if ok {
						in.TaskID = &taskID
					}
					return b.svc.CreateThread(p.Context, in)
				},
			},
			"createMessage": &graphql.Field{
				Type: b.messageType,
				Args: graphql.FieldConfigArgument{
					"input": &graphql.ArgumentConfig{Type: graphql.NewNonNull(messageInput)},
				},
				Resolve: func(p graphql.ResolveParams) (any, error) {
					input := p.Args["input"].(map[string]any)
					threadID, err := parseID(input["threadId"])
					if err != nil {
						return nil, err
					}
					return b.svc.CreateMessage(p.Context, hub.CreateMessageInput{
						ThreadID:    threadID,
						Body:        optionalString(input, "body"),
						AuthorRole:  hub.AuthorRole(optionalString(input, "authorRole")),
						AuthorLabel: optionalString(input, "authorLabel"),
					})
				},
			},
		},
	})
}

// idField 把 int64 主键编码为 GraphQL ID 字符串。
func idField(extract func(src any) int64) *graphql.Field {
	return &graphql.Field{
		Type: graphql.NewNonNull(graphql.ID),
		Resolve: func(p graphql.ResolveParams) (any, error) {
			return strconv.FormatInt(extract(p.Source), 10), nil
		},
	}
}

func pagingOptions(args map[string]any) []hub.ListOption {
	var opts []hub.ListOption
	if limit := optionalInt(args, "limit"); limit > 0 {
		opts = append(opts, hub.WithLimit(limit))
	}
	if offset := optionalInt(args, "offset"); offset > 0 {
		opts = append(opts, hub.WithOffset(offset))
	}
	return opts
}
