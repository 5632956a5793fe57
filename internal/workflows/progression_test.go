package workflows

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"automation-platform/internal/actions"
	"automation-platform/internal/events"
)

func twoStageDefinition() Definition {
	return Definition{
		ID:   "def-1",
		Name: "Onboarding",
		Stages: []Stage{
			{ID: "stage-1", Order: 1, Name: "Prepare", Tasks: []StageTask{
				{ID: "t1", Title: "Collect documents"},
				{ID: "t2", Title: "Verify identity"},
			}},
			{ID: "stage-2", Order: 2, Name: "Approve", Tasks: []StageTask{
				{ID: "t3", Title: "Final approval"},
			}},
		},
	}
}

func newTestEngine(t *testing.T) (*Service, *Engine, *MemoryRepo, *events.MemoryBus) {
	t.Helper()
	repo := NewMemoryRepo()
	repo.PutDefinition(twoStageDefinition())
	bus := events.NewMemoryBus()
	log := slog.Default()
	svc := NewService(repo, bus, "events", log)
	return svc, NewEngine(svc, NopGuard{}, log), repo, bus
}

// completeStage drives every item of one stage through the service and the
// engine, the way the worker would on real deliveries.
func completeStage(t *testing.T, svc *Service, eng *Engine, repo *MemoryRepo, instanceID, stageID string) {
	t.Helper()
	ctx := context.Background()
	items, err := repo.ListWorkItems(ctx, instanceID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	for _, item := range items {
		if item.StageID != stageID || item.Status == WorkItemCompleted {
			continue
		}
		if _, err := svc.CompleteWorkItem(ctx, item.ID); err != nil {
			t.Fatalf("complete %s: %v", item.ID, err)
		}
		err := eng.Handle(ctx, "m", events.TypeTaskCompleted, map[string]any{
			"workItemId":         item.ID,
			"workflowInstanceId": instanceID,
		})
		if err != nil {
			t.Fatalf("handle completion of %s: %v", item.ID, err)
		}
	}
}

func TestStartWorkflow_EntersFirstStage(t *testing.T) {
	svc, _, repo, bus := newTestEngine(t)
	ctx := context.Background()

	id, err := svc.StartWorkflow(ctx, "def-1", "user-1", map[string]any{"customer": "acme"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	inst, err := repo.GetInstance(ctx, id)
	if err != nil {
		t.Fatalf("get instance: %v", err)
	}
	if inst.Status != InstanceInProgress || inst.CurrentStageOrder != 1 {
		t.Fatalf("unexpected instance state: %+v", inst)
	}

	items, _ := repo.ListWorkItems(ctx, id)
	if len(items) != 2 {
		t.Fatalf("expected 2 stage-1 items, got %d", len(items))
	}
	for _, item := range items {
		if item.AssigneeID != "user-1" || item.Status != WorkItemPending || item.StageID != "stage-1" {
			t.Fatalf("unexpected item: %+v", item)
		}
	}

	var started, assigned int
	for _, msg := range bus.Messages("events") {
		switch msg.Type {
		case events.TypeFlowStarted:
			started++
		case events.TypeTaskAssigned:
			assigned++
		}
	}
	if started != 1 || assigned != 2 {
		t.Fatalf("expected 1 start and 2 assignment events, got %d/%d", started, assigned)
	}
}

func TestEngine_AdvancesOnlyWhenWholeStageDone(t *testing.T) {
	svc, eng, repo, _ := newTestEngine(t)
	ctx := context.Background()

	id, err := svc.StartWorkflow(ctx, "def-1", "user-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	items, _ := repo.ListWorkItems(ctx, id)
	if _, err := svc.CompleteWorkItem(ctx, items[0].ID); err != nil {
		t.Fatalf("complete first: %v", err)
	}
	err = eng.Handle(ctx, "m1", events.TypeTaskCompleted, map[string]any{
		"workItemId": items[0].ID, "workflowInstanceId": id,
	})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	inst, _ := repo.GetInstance(ctx, id)
	if inst.CurrentStageOrder != 1 {
		t.Fatalf("instance advanced with stage-1 work outstanding")
	}

	completeStage(t, svc, eng, repo, id, "stage-1")
	inst, _ = repo.GetInstance(ctx, id)
	if inst.CurrentStageOrder != 2 || inst.Status != InstanceInProgress {
		t.Fatalf("expected advance to stage 2, got %+v", inst)
	}

	items, _ = repo.ListWorkItems(ctx, id)
	var stage2 int
	for _, item := range items {
		if item.StageID == "stage-2" {
			stage2++
			if item.AssigneeID != "user-1" {
				t.Fatalf("next-stage item not assigned to initiator: %+v", item)
			}
		}
	}
	if stage2 != 1 {
		t.Fatalf("expected 1 stage-2 item, got %d", stage2)
	}
}

func TestEngine_CompletesInstanceAfterLastStage(t *testing.T) {
	svc, eng, repo, bus := newTestEngine(t)
	ctx := context.Background()

	id, err := svc.StartWorkflow(ctx, "def-1", "user-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	completeStage(t, svc, eng, repo, id, "stage-1")
	completeStage(t, svc, eng, repo, id, "stage-2")

	inst, _ := repo.GetInstance(ctx, id)
	if inst.Status != InstanceCompleted || inst.CompletedAt == nil {
		t.Fatalf("expected completed instance, got %+v", inst)
	}

	var advanced, completed int
	for _, msg := range bus.Messages("events") {
		switch msg.Type {
		case events.TypeStageAdvanced:
			advanced++
		case events.TypeFlowCompleted:
			completed++
		}
	}
	if advanced != 1 || completed != 1 {
		t.Fatalf("expected 1 advance and 1 completion event, got %d/%d", advanced, completed)
	}
}

func TestEngine_RedundantCompletionEventIsHarmless(t *testing.T) {
	svc, eng, repo, _ := newTestEngine(t)
	ctx := context.Background()

	id, _ := svc.StartWorkflow(ctx, "def-1", "user-1", nil)
	completeStage(t, svc, eng, repo, id, "stage-1")

	// Redelivery of an already-processed completion must not double-advance.
	err := eng.Handle(ctx, "dup", events.TypeTaskCompleted, map[string]any{"workflowInstanceId": id})
	if err != nil {
		t.Fatalf("redelivered handle: %v", err)
	}
	inst, _ := repo.GetInstance(ctx, id)
	if inst.CurrentStageOrder != 2 {
		t.Fatalf("redelivery changed stage to %d", inst.CurrentStageOrder)
	}
	items, _ := repo.ListWorkItems(ctx, id)
	var stage2 int
	for _, item := range items {
		if item.StageID == "stage-2" {
			stage2++
		}
	}
	if stage2 != 1 {
		t.Fatalf("redelivery duplicated stage-2 items: %d", stage2)
	}
}

// contendedGuard denies the first few acquisitions, as if another worker
// held the instance lock, then admits the caller.
type contendedGuard struct {
	denials int
	calls   int
}

func (g *contendedGuard) Acquire(ctx context.Context, instanceID string) (func(), bool, error) {
	g.calls++
	if g.calls <= g.denials {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func TestEngine_WaitsOutAdvanceLockContention(t *testing.T) {
	repo := NewMemoryRepo()
	repo.PutDefinition(twoStageDefinition())
	svc := NewService(repo, events.NewMemoryBus(), "events", slog.Default())
	guard := &contendedGuard{denials: 2}
	eng := NewEngine(svc, guard, slog.Default())
	ctx := context.Background()

	id, err := svc.StartWorkflow(ctx, "def-1", "user-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	items, _ := repo.ListWorkItems(ctx, id)
	for _, item := range items {
		if _, err := svc.CompleteWorkItem(ctx, item.ID); err != nil {
			t.Fatalf("complete %s: %v", item.ID, err)
		}
	}

	// A delivery that loses the lock race must not surface an error: pending
	// entries are only re-read at restart, so the engine waits for the lock.
	err = eng.Handle(ctx, "m", events.TypeTaskCompleted, map[string]any{"workflowInstanceId": id})
	if err != nil {
		t.Fatalf("contended handle: %v", err)
	}
	if guard.calls != 3 {
		t.Fatalf("expected 3 acquire attempts, got %d", guard.calls)
	}
	inst, _ := repo.GetInstance(ctx, id)
	if inst.CurrentStageOrder != 2 {
		t.Fatalf("expected advance to stage 2, got %d", inst.CurrentStageOrder)
	}
}

func TestEngine_AcquireStopsOnCancelledContext(t *testing.T) {
	repo := NewMemoryRepo()
	repo.PutDefinition(twoStageDefinition())
	svc := NewService(repo, events.NewMemoryBus(), "events", slog.Default())
	eng := NewEngine(svc, &contendedGuard{denials: 1 << 30}, slog.Default())

	id, err := svc.StartWorkflow(context.Background(), "def-1", "user-1", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err = eng.Handle(ctx, "m", events.TypeTaskCompleted, map[string]any{"workflowInstanceId": id})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error while lock is held elsewhere, got %v", err)
	}
}

func TestEngine_IgnoresUnrelatedEvents(t *testing.T) {
	_, eng, _, _ := newTestEngine(t)
	ctx := context.Background()

	if err := eng.Handle(ctx, "m", events.TypeRecordUpdated, map[string]any{"workflowInstanceId": "x"}); err != nil {
		t.Fatalf("non-completion event must be acknowledged: %v", err)
	}
	if err := eng.Handle(ctx, "m", events.TypeTaskCompleted, map[string]any{"workItemId": "standalone"}); err != nil {
		t.Fatalf("standalone completion must be acknowledged: %v", err)
	}
}

func TestEngine_UnknownInstanceIsPermanent(t *testing.T) {
	_, eng, _, _ := newTestEngine(t)
	err := eng.Handle(context.Background(), "m", events.TypeTaskCompleted,
		map[string]any{"workflowInstanceId": "ghost"})
	if err == nil || !events.IsPermanent(err) {
		t.Fatalf("expected permanent error for unknown instance, got %v", err)
	}
}

func TestService_AssignTaskStandalone(t *testing.T) {
	svc, _, repo, bus := newTestEngine(t)
	ctx := context.Background()

	id, err := svc.AssignTask(ctx, actions.TaskAssignment{Title: "Review report", AssigneeID: "user-9"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	item, err := repo.GetWorkItem(ctx, id)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if item.InstanceID != "" || item.Status != WorkItemPending {
		t.Fatalf("unexpected standalone item: %+v", item)
	}
	msgs := bus.Messages("events")
	if len(msgs) != 1 || msgs[0].Type != events.TypeTaskAssigned {
		t.Fatalf("expected one assignment event, got %v", msgs)
	}
}

func TestService_CompleteWorkItemTwiceFails(t *testing.T) {
	svc, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	id, err := svc.AssignTask(ctx, actions.TaskAssignment{Title: "t", AssigneeID: "u"})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, err := svc.CompleteWorkItem(ctx, id); err != nil {
		t.Fatalf("first complete: %v", err)
	}
	if _, err := svc.CompleteWorkItem(ctx, id); err == nil {
		t.Fatalf("second complete must fail")
	}
}
