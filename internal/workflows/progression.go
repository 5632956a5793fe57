package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"automation-platform/internal/events"
	"automation-platform/pkg/utils"
)

// Guard serializes progression per instance across processes. Acquire
// returns ok=false when another holder owns the instance; the caller backs
// off and tries again.
type Guard interface {
	Acquire(ctx context.Context, instanceID string) (release func(), ok bool, err error)
}

// NopGuard admits every caller. Single-process deployments and tests.
type NopGuard struct{}

func (NopGuard) Acquire(ctx context.Context, instanceID string) (func(), bool, error) {
	return func() {}, true, nil
}

// RedisGuard holds a per-instance advance lock with an owner token.
type RedisGuard struct {
	Client *redis.Client
	TTL    time.Duration
}

func (g RedisGuard) Acquire(ctx context.Context, instanceID string) (func(), bool, error) {
	ttl := g.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	key := "workflows:advance:" + instanceID
	owner := uuid.NewString()
	ok, err := utils.AcquireAdvanceLock(ctx, g.Client, key, owner, ttl)
	if err != nil || !ok {
		return nil, false, err
	}
	release := func() {
		if err := utils.ReleaseAdvanceLock(context.WithoutCancel(ctx), g.Client, key, owner); err != nil {
			slog.Default().Warn("advance lock release failed", "instance_id", instanceID, "error", err)
		}
	}
	return release, true, nil
}

// Engine advances workflow instances as their work items complete.
//
// It consumes task-completion events under its own consumer group, so it
// sees every completion exactly once per process fleet, independent of the
// automation consumer. An instance advances only when every work item of
// its current stage is COMPLETED; the per-instance guard plus the stage
// compare in the instance update make concurrent completions settle to a
// single advance.
type Engine struct {
	svc   *Service
	guard Guard
	log   *slog.Logger
}

func NewEngine(svc *Service, guard Guard, log *slog.Logger) *Engine {
	if guard == nil {
		guard = NopGuard{}
	}
	return &Engine{svc: svc, guard: guard, log: log}
}

// Run subscribes until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, group, consumer string) error {
	return e.svc.bus.Subscribe(ctx, e.svc.stream, group, consumer, e.Handle)
}

// Handle processes one delivered event. Exposed for the worker loop and
// tests; non-completion events are acknowledged untouched.
func (e *Engine) Handle(ctx context.Context, messageID string, eventType events.Type, payload map[string]any) error {
	if eventType != events.TypeTaskCompleted {
		return nil
	}
	instanceID, _ := payload["workflowInstanceId"].(string)
	if instanceID == "" {
		// Standalone work item; nothing to progress.
		return nil
	}

	release, err := e.acquire(ctx, instanceID)
	if err != nil {
		return err
	}
	defer release()

	return e.progress(ctx, instanceID)
}

// acquire waits out contention on the per-instance advance lock. A delivery
// left pending is only re-read when the process restarts, so giving up here
// while another holder runs could strand the completion event with the stage
// already fully done. The wait is bounded by the lock TTL.
func (e *Engine) acquire(ctx context.Context, instanceID string) (func(), error) {
	wait := 50 * time.Millisecond
	for {
		release, ok, err := e.guard.Acquire(ctx, instanceID)
		if err != nil {
			return nil, fmt.Errorf("workflows: acquire advance lock for %s: %w", instanceID, err)
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if wait < time.Second {
			wait *= 2
		}
	}
}

func (e *Engine) progress(ctx context.Context, instanceID string) error {
	inst, err := e.svc.repo.GetInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return events.Permanent(fmt.Errorf("workflows: instance %s not found", instanceID))
		}
		return err
	}
	if inst.Status != InstanceInProgress {
		return nil
	}

	def, err := e.svc.repo.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}
	stage, ok := def.StageByOrder(inst.CurrentStageOrder)
	if !ok {
		return events.Permanent(fmt.Errorf("workflows: instance %s at unknown stage order %d", instanceID, inst.CurrentStageOrder))
	}

	items, err := e.svc.repo.ListWorkItems(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.StageID == stage.ID && item.Status != WorkItemCompleted {
			return nil
		}
	}

	next, hasNext := def.NextStage(inst.CurrentStageOrder)
	if !hasNext {
		done, err := e.svc.repo.CompleteInstance(ctx, instanceID, inst.CurrentStageOrder)
		if err != nil {
			return err
		}
		if done {
			e.log.Info("workflow completed", "instance_id", instanceID)
			e.svc.publish(ctx, events.TypeFlowCompleted, map[string]any{
				"sourceId":           instanceID,
				"workflowInstanceId": instanceID,
				"definitionId":       inst.DefinitionID,
			})
		}
		return nil
	}

	advanced, err := e.svc.repo.AdvanceInstance(ctx, instanceID, inst.CurrentStageOrder, next.Order)
	if err != nil {
		return err
	}
	if !advanced {
		// Lost the stage compare to a concurrent advance.
		return nil
	}

	inst.CurrentStageOrder = next.Order
	if err := e.svc.enterStage(ctx, inst, next); err != nil {
		return err
	}
	e.log.Info("workflow advanced",
		"instance_id", instanceID, "from_stage", stage.Order, "to_stage", next.Order)
	e.svc.publish(ctx, events.TypeStageAdvanced, map[string]any{
		"sourceId":           instanceID,
		"workflowInstanceId": instanceID,
		"fromStageOrder":     stage.Order,
		"toStageOrder":       next.Order,
	})
	return nil
}
