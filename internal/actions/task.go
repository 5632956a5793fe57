package actions

import "context"

// TaskAssignment is a standalone work item request.
type TaskAssignment struct {
	Title      string
	AssigneeID string
	Data       map[string]any
}

// TaskAssigner creates work items; implemented by the workflow service.
type TaskAssigner interface {
	AssignTask(ctx context.Context, a TaskAssignment) (string, error)
}

// TaskExecutor assigns a work item to a user.
type TaskExecutor struct {
	Assigner TaskAssigner
}

func (TaskExecutor) Kind() Kind { return KindTask }

func (e TaskExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.Task == nil {
		return Failure(KindTask, "task action missing spec")
	}
	if e.Assigner == nil {
		return Failure(KindTask, "task assigner not configured")
	}

	data := spec.Task.Data
	if data == nil {
		data = execCtx
	}
	id, err := e.Assigner.AssignTask(ctx, TaskAssignment{
		Title:      Interpolate(spec.Task.Title, execCtx),
		AssigneeID: spec.Task.AssigneeID,
		Data:       data,
	})
	if err != nil {
		return Failure(KindTask, "assign failed: "+err.Error())
	}
	return Success(KindTask, map[string]any{"workItemId": id, "assigneeId": spec.Task.AssigneeID})
}
