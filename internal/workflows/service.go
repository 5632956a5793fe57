package workflows

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"automation-platform/internal/actions"
	"automation-platform/internal/events"
)

// Service drives workflow lifecycle: starting instances, assigning work and
// completing work items. It satisfies the flow-start and task-assign
// collaborator boundaries of the action executors.
//
// Every lifecycle change is also published onto the event stream so
// automation rules can react to workflow activity.
type Service struct {
	repo   Repository
	bus    events.Bus
	stream string
	log    *slog.Logger
	clock  func() time.Time
}

func NewService(repo Repository, bus events.Bus, stream string, log *slog.Logger) *Service {
	return &Service{repo: repo, bus: bus, stream: stream, log: log, clock: time.Now}
}

var (
	_ actions.WorkflowStarter = (*Service)(nil)
	_ actions.TaskAssigner    = (*Service)(nil)
)

// StartWorkflow creates an IN_PROGRESS instance at the definition's first
// stage and hands out that stage's work items to the initiator.
func (s *Service) StartWorkflow(ctx context.Context, definitionID, initiatorID string, contextData map[string]any) (string, error) {
	if definitionID == "" || initiatorID == "" {
		return "", ErrInvalidArgument
	}
	def, err := s.repo.GetDefinition(ctx, definitionID)
	if err != nil {
		return "", err
	}
	first, ok := def.FirstStage()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoStages, definitionID)
	}

	inst, err := s.repo.CreateInstance(ctx, Instance{
		DefinitionID:      definitionID,
		InitiatorID:       initiatorID,
		CurrentStageOrder: first.Order,
		Status:            InstanceInProgress,
		ContextData:       contextData,
	})
	if err != nil {
		return "", err
	}

	if err := s.enterStage(ctx, inst, first); err != nil {
		return "", err
	}

	s.publish(ctx, events.TypeFlowStarted, map[string]any{
		"sourceId":           inst.ID,
		"workflowInstanceId": inst.ID,
		"definitionId":       definitionID,
		"initiatorId":        initiatorID,
	})
	return inst.ID, nil
}

// AssignTask creates a standalone work item, unattached to any instance.
func (s *Service) AssignTask(ctx context.Context, a actions.TaskAssignment) (string, error) {
	item, err := s.repo.CreateWorkItem(ctx, WorkItem{
		AssigneeID: a.AssigneeID,
		Title:      a.Title,
		Status:     WorkItemPending,
		Data:       a.Data,
	})
	if err != nil {
		return "", err
	}
	s.publish(ctx, events.TypeTaskAssigned, map[string]any{
		"sourceId":   item.ID,
		"workItemId": item.ID,
		"assigneeId": item.AssigneeID,
	})
	return item.ID, nil
}

// CompleteWorkItem marks an item COMPLETED and publishes the completion.
// The progression engine picks the event up and advances the owning
// instance if the whole stage is now done.
func (s *Service) CompleteWorkItem(ctx context.Context, id string) (WorkItem, error) {
	item, err := s.repo.CompleteWorkItem(ctx, id)
	if err != nil {
		return WorkItem{}, err
	}
	payload := map[string]any{
		"sourceId":   item.ID,
		"workItemId": item.ID,
		"assigneeId": item.AssigneeID,
	}
	if item.InstanceID != "" {
		payload["workflowInstanceId"] = item.InstanceID
	}
	s.publish(ctx, events.TypeTaskCompleted, payload)
	return item, nil
}

// GetInstance returns an instance with its work items, for the API.
func (s *Service) GetInstance(ctx context.Context, id string) (Instance, []WorkItem, error) {
	inst, err := s.repo.GetInstance(ctx, id)
	if err != nil {
		return Instance{}, nil, err
	}
	items, err := s.repo.ListWorkItems(ctx, id)
	if err != nil {
		return Instance{}, nil, err
	}
	return inst, items, nil
}

// enterStage hands the stage's tasks to the instance initiator. Role-based
// assignment is a declared simplification; the initiator owns all items.
func (s *Service) enterStage(ctx context.Context, inst Instance, stage Stage) error {
	for _, task := range stage.Tasks {
		item, err := s.repo.CreateWorkItem(ctx, WorkItem{
			InstanceID: inst.ID,
			StageID:    stage.ID,
			AssigneeID: inst.InitiatorID,
			Title:      task.Title,
			Status:     WorkItemPending,
			Data:       inst.ContextData,
		})
		if err != nil {
			return err
		}
		s.publish(ctx, events.TypeTaskAssigned, map[string]any{
			"sourceId":           item.ID,
			"workItemId":         item.ID,
			"assigneeId":         item.AssigneeID,
			"workflowInstanceId": inst.ID,
		})
	}
	return nil
}

// publish is best-effort: a bus outage must not roll back the store write.
func (s *Service) publish(ctx context.Context, t events.Type, payload map[string]any) {
	if s.bus == nil {
		return
	}
	if _, err := s.bus.Publish(ctx, s.stream, t, payload); err != nil {
		s.log.Error("publish failed", "type", string(t), "error", err)
	}
}
