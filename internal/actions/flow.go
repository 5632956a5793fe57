package actions

import "context"

// WorkflowStarter starts a workflow instance; implemented by the workflow
// service.
type WorkflowStarter interface {
	StartWorkflow(ctx context.Context, definitionID, initiatorID string, contextData map[string]any) (string, error)
}

// FlowExecutor starts another workflow from a matched rule.
type FlowExecutor struct {
	Starter WorkflowStarter
}

func (FlowExecutor) Kind() Kind { return KindFlow }

func (e FlowExecutor) Execute(ctx context.Context, spec Spec, execCtx map[string]any) Result {
	if spec.Flow == nil {
		return Failure(KindFlow, "flow action missing spec")
	}
	if e.Starter == nil {
		return Failure(KindFlow, "workflow starter not configured")
	}

	initiator := spec.Flow.InitiatorID
	if initiator == "" {
		initiator = ContextString(execCtx, "initiatorId")
	}
	if initiator == "" {
		initiator = ContextString(execCtx, "userId")
	}
	if initiator == "" {
		return Failure(KindFlow, "no initiator in spec or event payload")
	}

	instanceID, err := e.Starter.StartWorkflow(ctx, spec.Flow.DefinitionID, initiator, execCtx)
	if err != nil {
		return Failure(KindFlow, "start workflow failed: "+err.Error())
	}
	return Success(KindFlow, map[string]any{"workflowInstanceId": instanceID})
}
